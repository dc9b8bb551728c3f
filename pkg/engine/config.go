package engine

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/slipway-sh/slipway/pkg/manifest"
)

// Config bounds a deployment run. Every timing knob lives here; the
// defaults are a starting point, not policy baked into the machinery.
type Config struct {
	// MaxConcurrency caps parallel per-resource tasks within a stage.
	MaxConcurrency int

	// PollInterval is the readiness poll cadence.
	PollInterval time.Duration

	// QueryBackoffMax caps backoff after readiness query errors.
	QueryBackoffMax time.Duration

	// MaxQueryRetries bounds consecutive readiness query errors.
	MaxQueryRetries int

	// WorkloadTimeout is the readiness timeout for pod-template kinds.
	WorkloadTimeout time.Duration

	// DefaultTimeout is the readiness timeout for everything else
	// (claims, secrets, services).
	DefaultTimeout time.Duration

	// ForceConflicts takes ownership of conflicting fields instead of
	// reporting a ConflictError for the resource.
	ForceConflicts bool

	// DryRun submits every request with DryRunAll and skips readiness.
	DryRun bool
}

// DefaultConfig returns the default run configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency:  10,
		PollInterval:    2 * time.Second,
		QueryBackoffMax: 30 * time.Second,
		MaxQueryRetries: 5,
		WorkloadTimeout: 120 * time.Second,
		DefaultTimeout:  30 * time.Second,
	}
}

// TimeoutFor returns the readiness timeout for a resource kind.
func (c Config) TimeoutFor(kind string) time.Duration {
	if manifest.IsWorkload(kind) {
		return c.WorkloadTimeout
	}
	return c.DefaultTimeout
}

// fileConfig is the YAML shape of an optional config file. Durations
// are Go duration strings ("45s", "2m").
type fileConfig struct {
	MaxConcurrency  *int    `yaml:"maxConcurrency"`
	PollInterval    *string `yaml:"pollInterval"`
	QueryBackoffMax *string `yaml:"queryBackoffMax"`
	MaxQueryRetries *int    `yaml:"maxQueryRetries"`
	WorkloadTimeout *string `yaml:"workloadTimeout"`
	DefaultTimeout  *string `yaml:"defaultTimeout"`
	Conflicts       *string `yaml:"conflicts"` // "fail" or "force"
}

// LoadConfig overlays a YAML config file onto base. Unset fields keep
// their base values; command-line flags are applied on top by the CLI.
func LoadConfig(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("failed to read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return base, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg := base
	if fc.MaxConcurrency != nil {
		cfg.MaxConcurrency = *fc.MaxConcurrency
	}
	if fc.MaxQueryRetries != nil {
		cfg.MaxQueryRetries = *fc.MaxQueryRetries
	}
	for _, d := range []struct {
		raw *string
		dst *time.Duration
		key string
	}{
		{fc.PollInterval, &cfg.PollInterval, "pollInterval"},
		{fc.QueryBackoffMax, &cfg.QueryBackoffMax, "queryBackoffMax"},
		{fc.WorkloadTimeout, &cfg.WorkloadTimeout, "workloadTimeout"},
		{fc.DefaultTimeout, &cfg.DefaultTimeout, "defaultTimeout"},
	} {
		if d.raw == nil {
			continue
		}
		parsed, err := time.ParseDuration(*d.raw)
		if err != nil {
			return base, fmt.Errorf("invalid %s in config file: %w", d.key, err)
		}
		*d.dst = parsed
	}
	if fc.Conflicts != nil {
		switch *fc.Conflicts {
		case "fail":
			cfg.ForceConflicts = false
		case "force":
			cfg.ForceConflicts = true
		default:
			return base, fmt.Errorf("invalid conflicts strategy %q (want fail or force)", *fc.Conflicts)
		}
	}
	return cfg, nil
}
