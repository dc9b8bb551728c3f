package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/slipway-sh/slipway/pkg/cluster"
	"github.com/slipway-sh/slipway/pkg/engine"
	"github.com/slipway-sh/slipway/pkg/manifest"
	"github.com/slipway-sh/slipway/pkg/metrics"
	"github.com/slipway-sh/slipway/pkg/plan"
	"github.com/slipway-sh/slipway/pkg/report"
)

type deployOptions struct {
	sources      []string
	kubeconfig   string
	configFile   string
	timeout      time.Duration
	pollInterval time.Duration
	concurrency  int
	conflicts    string
	dryRun       bool
	output       string
	metricsAddr  string
	verbose      bool
}

func newDeployCmd(setExit func(int)) *cobra.Command {
	opts := &deployOptions{}

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Apply manifests in dependency order and wait for readiness",
		Long: `Deploy loads the given manifest sources, computes the staged
dependency plan, applies each stage, and waits for readiness before
moving on. The final report lists every resource's terminal status.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(cmd, opts, setExit)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.sources, "sources", "s", nil, "Manifest files, directories, or CUE packages (required)")
	cmd.Flags().StringVar(&opts.kubeconfig, "kubeconfig", "", "Path to the kubeconfig file")
	cmd.Flags().StringVar(&opts.configFile, "config", "", "Optional YAML config file with run settings")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Readiness timeout for workloads (overrides config)")
	cmd.Flags().DurationVar(&opts.pollInterval, "poll-interval", 0, "Readiness poll interval (overrides config)")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "Max concurrent resources per stage (overrides config)")
	cmd.Flags().StringVar(&opts.conflicts, "conflicts", "", "Conflict strategy: fail or force")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Submit every request with dry-run; nothing is persisted")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "text", "Report format: text or json")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address for the duration of the run (e.g. :9090)")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose logging")
	_ = cmd.MarkFlagRequired("sources")

	return cmd
}

func runDeploy(cmd *cobra.Command, opts *deployOptions, setExit func(int)) error {
	log := zap.New(zap.UseDevMode(opts.verbose))
	ctrl.SetLogger(log)

	cfg, err := buildConfig(opts)
	if err != nil {
		return err
	}

	set, err := manifest.Load(opts.sources...)
	if err != nil {
		return err
	}
	p, err := plan.Build(set)
	if err != nil {
		return err
	}

	c, err := cluster.NewClient(opts.kubeconfig)
	if err != nil {
		setExit(exitFailed)
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return nil
	}

	if opts.metricsAddr != "" {
		srv := &http.Server{Addr: opts.metricsAddr, Handler: metrics.Handler()}
		go func() {
			if serveErr := srv.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
				log.Error(serveErr, "metrics listener failed", "addr", opts.metricsAddr)
			}
		}()
		defer func() { _ = srv.Shutdown(context.Background()) }()
	}

	ctx := ctrl.SetupSignalHandler()
	rep, fatal := engine.New(c, cfg, log.WithName("engine")).Run(ctx, p)

	if err := renderReport(rep, opts.output, cmd.OutOrStdout()); err != nil {
		return err
	}
	if fatal != nil {
		setExit(exitFailed)
		return nil
	}
	setExit(rep.ExitCode())
	return nil
}

func buildConfig(opts *deployOptions) (engine.Config, error) {
	cfg := engine.DefaultConfig()
	if opts.configFile != "" {
		loaded, err := engine.LoadConfig(opts.configFile, cfg)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if opts.timeout > 0 {
		cfg.WorkloadTimeout = opts.timeout
	}
	if opts.pollInterval > 0 {
		cfg.PollInterval = opts.pollInterval
	}
	if opts.concurrency > 0 {
		cfg.MaxConcurrency = opts.concurrency
	}
	switch opts.conflicts {
	case "":
	case "fail":
		cfg.ForceConflicts = false
	case "force":
		cfg.ForceConflicts = true
	default:
		return cfg, fmt.Errorf("invalid --conflicts value %q (want fail or force)", opts.conflicts)
	}
	cfg.DryRun = opts.dryRun
	return cfg, nil
}

func renderReport(rep *report.Report, output string, w io.Writer) error {
	switch output {
	case "json":
		return rep.RenderJSON(w)
	case "text":
		return rep.RenderText(w)
	default:
		return fmt.Errorf("invalid --output value %q (want text or json)", output)
	}
}
