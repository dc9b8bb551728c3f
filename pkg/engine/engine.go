package engine

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/sourcegraph/conc/pool"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/slipway-sh/slipway/pkg/apply"
	"github.com/slipway-sh/slipway/pkg/cluster"
	"github.com/slipway-sh/slipway/pkg/manifest"
	"github.com/slipway-sh/slipway/pkg/metrics"
	"github.com/slipway-sh/slipway/pkg/plan"
	"github.com/slipway-sh/slipway/pkg/readiness"
	"github.com/slipway-sh/slipway/pkg/report"
)

// Applier submits a resource to the cluster.
type Applier interface {
	Apply(ctx context.Context, res *manifest.Resource) (apply.Result, error)
}

// Watcher waits for a resource to reach a terminal readiness state.
type Watcher interface {
	Wait(ctx context.Context, obj *unstructured.Unstructured, predicates []readiness.Predicate, timeout time.Duration) readiness.Status
}

// Engine drives a plan through the cluster, one stage at a time.
type Engine struct {
	applier Applier
	watcher Watcher
	config  Config
	log     logr.Logger

	mu    sync.Mutex
	fatal error
}

// New wires an engine to a cluster client.
func New(c client.Client, config Config, log logr.Logger) *Engine {
	applier := apply.NewApplier(c).
		WithForceConflicts(config.ForceConflicts).
		WithDryRun(config.DryRun)
	watcher := readiness.NewWatcher(
		readiness.NewChecker(c),
		readiness.WatcherConfig{
			PollInterval:    config.PollInterval,
			QueryBackoffMax: config.QueryBackoffMax,
			MaxQueryRetries: config.MaxQueryRetries,
		},
		log.WithName("readiness"),
	)
	return NewWithComponents(applier, watcher, config, log)
}

// NewWithComponents wires an engine from parts, for tests and callers
// with custom appliers or watchers.
func NewWithComponents(applier Applier, watcher Watcher, config Config, log logr.Logger) *Engine {
	return &Engine{
		applier: applier,
		watcher: watcher,
		config:  config,
		log:     log,
	}
}

// Run executes the plan. Stages are strictly sequential: stage N+1 is
// never submitted before every stage N resource reached a terminal
// readiness state. Within a stage, resources deploy concurrently on a
// bounded pool. A fatal cluster error aborts everything in flight; the
// report still enumerates every resource, attempted or not.
//
// The returned error is the fatal cluster error, if any. Per-resource
// failures are not errors here; they live in the report.
func (e *Engine) Run(ctx context.Context, p *plan.Plan) (*report.Report, error) {
	startedAt := time.Now()
	state := NewRunState(p.Order)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for stageIdx, stage := range p.Stages {
		if runCtx.Err() != nil || e.fatalErr() != nil {
			break
		}

		e.log.Info("applying stage", "stage", stageIdx, "resources", len(stage))
		stageStart := time.Now()

		tasks := pool.New().WithMaxGoroutines(e.config.MaxConcurrency)
		for _, key := range stage {
			node := p.Nodes[key]
			tasks.Go(func() {
				e.deploy(runCtx, node, state, cancel)
			})
		}
		tasks.Wait()
		metrics.RecordStage(strconv.Itoa(stageIdx), time.Since(stageStart).Seconds())

		if fatal := e.fatalErr(); fatal != nil {
			e.log.Error(fatal, "aborting run", "stage", stageIdx)
			break
		}
		if !state.AllReady(stage) {
			e.log.Info("stage did not reach ready, blocking later stages", "stage", stageIdx)
			break
		}
	}

	state.SkipPending(skipReason(e.fatalErr(), ctx.Err()))

	rep := report.Summarize(p.Hash, startedAt, e.collect(p, state), fatalMessage(e.fatalErr()))
	rep.DryRun = e.config.DryRun
	return rep, e.fatalErr()
}

// deploy runs one resource's full lifecycle: apply, then wait for
// readiness. Sibling failures never cancel it; only fatal cluster
// errors and run cancellation do.
func (e *Engine) deploy(ctx context.Context, node *plan.Node, state *RunState, abort context.CancelFunc) {
	key := node.ID.String()
	if ctx.Err() != nil {
		return
	}
	if err := state.Transition(key, StateApplying); err != nil {
		state.Fail(key, err.Error())
		return
	}

	result, err := e.applier.Apply(ctx, node.Resource)
	state.SetOutcome(key, result.Outcome)
	if err != nil {
		if cluster.IsFatal(err) {
			e.recordFatal(err)
			abort()
		}
		state.Fail(key, err.Error())
		return
	}

	e.log.V(1).Info("applied", "resource", key, "outcome", string(result.Outcome))

	if e.config.DryRun {
		// Nothing was persisted; there is no readiness to wait for.
		if err := state.Transition(key, StateReady); err != nil {
			state.Fail(key, err.Error())
		}
		return
	}

	if err := state.Transition(key, StateWaitingReady); err != nil {
		state.Fail(key, err.Error())
		return
	}
	ws := e.watcher.Wait(ctx, &node.Resource.Object, node.ReadyWhen, e.config.TimeoutFor(node.ID.Kind))
	state.Finish(key, ws)
}

func (e *Engine) recordFatal(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fatal == nil {
		e.fatal = &cluster.FatalError{Op: "apply", Err: err}
		var fatal *cluster.FatalError
		if errors.As(err, &fatal) {
			e.fatal = fatal
		}
	}
}

func (e *Engine) fatalErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fatal
}

func (e *Engine) collect(p *plan.Plan, state *RunState) []report.ResourceReport {
	rows := make([]report.ResourceReport, 0, p.Size())
	for key, node := range p.Nodes {
		status, _ := state.Get(key)
		row := report.ResourceReport{
			Resource: key,
			Stage:    node.Stage,
			Outcome:  string(status.Outcome),
			State:    string(status.State),
			Message:  status.Message,
		}
		if status.StartTime != nil && status.EndTime != nil {
			row.Duration = status.EndTime.Sub(*status.StartTime)
		}
		rows = append(rows, row)
	}
	return rows
}

func skipReason(fatal, cancelled error) string {
	switch {
	case fatal != nil:
		return "not attempted: run aborted by fatal cluster error"
	case cancelled != nil:
		return "not attempted: run cancelled"
	default:
		return "not attempted: earlier stage did not reach ready"
	}
}

func fatalMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
