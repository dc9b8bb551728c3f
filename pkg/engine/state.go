package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/slipway-sh/slipway/pkg/apply"
	"github.com/slipway-sh/slipway/pkg/readiness"
)

// ResourceState is the per-resource lifecycle during a run.
type ResourceState string

const (
	// StatePending means the resource's stage has not started.
	StatePending ResourceState = "Pending"

	// StateApplying means the submission is in flight.
	StateApplying ResourceState = "Applying"

	// StateWaitingReady means the resource was applied and readiness
	// polling is underway.
	StateWaitingReady ResourceState = "WaitingReady"

	// StateReady is terminal success.
	StateReady ResourceState = "Ready"

	// StateFailed is terminal: apply failed or the platform reported
	// the resource broken.
	StateFailed ResourceState = "Failed"

	// StateTimedOut is terminal: readiness did not arrive in time.
	StateTimedOut ResourceState = "TimedOut"

	// StateSkipped is terminal: an earlier stage failure, a fatal
	// cluster error, or cancellation prevented the attempt.
	StateSkipped ResourceState = "Skipped"
)

func (s ResourceState) terminal() bool {
	switch s {
	case StateReady, StateFailed, StateTimedOut, StateSkipped:
		return true
	}
	return false
}

// ResourceStatus is the tracked status of one resource.
type ResourceStatus struct {
	State     ResourceState
	Outcome   apply.Outcome
	Message   string
	StartTime *time.Time
	EndTime   *time.Time
}

// RunState tracks every resource's status for a run. Each resource is
// owned by exactly one task for its lifetime; the lock only guards the
// map against concurrent same-stage writers of different keys.
type RunState struct {
	mu       sync.RWMutex
	statuses map[string]*ResourceStatus
}

// NewRunState initializes tracking for the given resource keys.
func NewRunState(keys []string) *RunState {
	statuses := make(map[string]*ResourceStatus, len(keys))
	for _, k := range keys {
		statuses[k] = &ResourceStatus{State: StatePending}
	}
	return &RunState{statuses: statuses}
}

// Transition moves a resource to a new state, enforcing the lifecycle.
func (rs *RunState) Transition(key string, next ResourceState) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	status, found := rs.statuses[key]
	if !found {
		return fmt.Errorf("resource %s not tracked", key)
	}
	if err := validateTransition(status.State, next); err != nil {
		return fmt.Errorf("resource %s: %w", key, err)
	}

	status.State = next
	now := time.Now()
	switch next {
	case StateApplying:
		status.StartTime = &now
	case StateReady, StateFailed, StateTimedOut, StateSkipped:
		status.EndTime = &now
	}
	return nil
}

// SetOutcome records the apply outcome for a resource.
func (rs *RunState) SetOutcome(key string, outcome apply.Outcome) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if status, found := rs.statuses[key]; found {
		status.Outcome = outcome
	}
}

// Fail marks a resource terminally failed with a message. Unlike
// Transition it is valid from any non-terminal state.
func (rs *RunState) Fail(key, message string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	status, found := rs.statuses[key]
	if !found || status.State.terminal() {
		return
	}
	status.State = StateFailed
	status.Message = message
	now := time.Now()
	status.EndTime = &now
}

// Finish records a watcher verdict for an applied resource. A pending
// verdict means the run was cancelled mid-poll; the resource is
// reported skipped rather than silently dropped.
func (rs *RunState) Finish(key string, ws readiness.Status) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	status, found := rs.statuses[key]
	if !found || status.State.terminal() {
		return
	}

	switch ws.State {
	case readiness.StateReady:
		status.State = StateReady
	case readiness.StateFailed:
		status.State = StateFailed
	case readiness.StateTimedOut:
		status.State = StateTimedOut
	default:
		status.State = StateSkipped
		if ws.Message == "" {
			ws.Message = "run cancelled while waiting for readiness"
		}
	}
	status.Message = ws.Message
	now := time.Now()
	status.EndTime = &now
}

// SkipPending marks every still-pending resource skipped with the
// given reason.
func (rs *RunState) SkipPending(reason string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	now := time.Now()
	for _, status := range rs.statuses {
		if status.State == StatePending {
			status.State = StateSkipped
			status.Message = reason
			status.EndTime = &now
		}
	}
}

// Get returns a copy of a resource's status.
func (rs *RunState) Get(key string) (ResourceStatus, bool) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	status, found := rs.statuses[key]
	if !found {
		return ResourceStatus{}, false
	}
	return *status, true
}

// AllReady reports whether every listed resource reached Ready.
func (rs *RunState) AllReady(keys []string) bool {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	for _, k := range keys {
		if status, found := rs.statuses[k]; !found || status.State != StateReady {
			return false
		}
	}
	return true
}

func validateTransition(from, to ResourceState) error {
	valid := map[ResourceState][]ResourceState{
		StatePending:      {StateApplying, StateSkipped},
		StateApplying:     {StateWaitingReady, StateReady, StateFailed},
		StateWaitingReady: {StateReady, StateFailed, StateTimedOut, StateSkipped},
	}
	for _, allowed := range valid[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("cannot transition from %s to %s", from, to)
}
