package readiness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/slipway-sh/slipway/pkg/metrics"
)

// State is the terminal-once lifecycle of a watched resource.
type State string

const (
	// StatePending means no terminal observation has been made yet.
	StatePending State = "Pending"

	// StateReady means all predicates were satisfied.
	StateReady State = "Ready"

	// StateFailed means the platform reported a terminal failure, or
	// status queries kept failing beyond the retry budget.
	StateFailed State = "Failed"

	// StateTimedOut means the per-resource timeout elapsed first.
	StateTimedOut State = "TimedOut"
)

// Status is the outcome of watching one resource. Message carries the
// last observed condition verbatim; the reporter prints it untouched.
type Status struct {
	State    State     `json:"state"`
	Message  string    `json:"message,omitempty"`
	Observed time.Time `json:"observed,omitempty"`
}

// WatcherConfig bounds the poll loop.
type WatcherConfig struct {
	// PollInterval is the delay between status queries.
	PollInterval time.Duration

	// QueryBackoffMax caps the exponential backoff applied after query
	// errors. Not-ready observations never back off.
	QueryBackoffMax time.Duration

	// MaxQueryRetries is how many consecutive query errors are
	// tolerated before the resource is marked failed.
	MaxQueryRetries int
}

// DefaultWatcherConfig returns the default poll bounds.
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		PollInterval:    2 * time.Second,
		QueryBackoffMax: 30 * time.Second,
		MaxQueryRetries: 5,
	}
}

// StatusChecker is the query side of the watcher, satisfied by
// *Checker and by test doubles.
type StatusChecker interface {
	Check(ctx context.Context, obj *unstructured.Unstructured, predicates []Predicate) (Observation, error)
}

// Watcher polls resources until they reach a terminal readiness state.
type Watcher struct {
	checker StatusChecker
	config  WatcherConfig
	log     logr.Logger
}

// NewWatcher creates a watcher around a status checker.
func NewWatcher(checker StatusChecker, config WatcherConfig, log logr.Logger) *Watcher {
	return &Watcher{checker: checker, config: config, log: log}
}

// Wait polls the resource until it is ready, fails, or the timeout
// elapses. Query errors are retried with exponential backoff up to the
// configured budget; a not-ready observation is not an error and polls
// at the fixed interval.
func (w *Watcher) Wait(ctx context.Context, obj *unstructured.Unstructured, predicates []Predicate, timeout time.Duration) Status {
	log := w.log.WithValues("kind", obj.GetKind(), "namespace", obj.GetNamespace(), "name", obj.GetName())

	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	backoff := w.config.PollInterval
	retries := 0
	lastMessage := ""

	for {
		obs, err := w.checker.Check(pollCtx, obj, predicates)
		metrics.RecordReadinessCheck(checkResult(obs, err), obj.GetKind())
		switch {
		case err != nil:
			retries++
			if retries > w.config.MaxQueryRetries {
				return Status{
					State:    StateFailed,
					Message:  fmt.Sprintf("status query failed %d times, last error: %v", retries, err),
					Observed: time.Now(),
				}
			}
			log.V(1).Info("status query failed, backing off", "error", err, "attempt", retries)
			backoff = min(backoff*2, w.config.QueryBackoffMax)

		case obs.Failed:
			return Status{State: StateFailed, Message: obs.Message, Observed: time.Now()}

		case obs.Ready:
			return Status{State: StateReady, Message: obs.Message, Observed: time.Now()}

		default:
			// Not ready yet. Reset the error budget and poll steadily.
			retries = 0
			backoff = w.config.PollInterval
			lastMessage = obs.Message
		}

		select {
		case <-pollCtx.Done():
			if errors.Is(pollCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				return Status{
					State:    StateTimedOut,
					Message:  fmt.Sprintf("not ready after %s: %s", timeout, lastMessage),
					Observed: time.Now(),
				}
			}
			// The run itself was cancelled.
			return Status{State: StatePending, Message: lastMessage, Observed: time.Now()}
		case <-time.After(backoff):
		}
	}
}

func checkResult(obs Observation, err error) string {
	switch {
	case err != nil:
		return "error"
	case obs.Failed:
		return "failed"
	case obs.Ready:
		return "ready"
	default:
		return "pending"
	}
}
