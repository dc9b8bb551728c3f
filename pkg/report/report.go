package report

import (
	"sort"
	"time"
)

// Verdict is the overall outcome of a deployment run.
type Verdict string

const (
	// VerdictSuccess means every resource reached ready.
	VerdictSuccess Verdict = "Success"

	// VerdictPartial means at least one resource is ready and at least
	// one is failed, timed out, or skipped.
	VerdictPartial Verdict = "Partial"

	// VerdictFailed means no resource reached ready.
	VerdictFailed Verdict = "Failed"
)

// Resource terminal states as rendered in the report.
const (
	StatePending  = "Pending"
	StateReady    = "Ready"
	StateFailed   = "Failed"
	StateTimedOut = "TimedOut"
	StateSkipped  = "Skipped"
)

// ResourceReport is the terminal record for one resource. Message is
// the last observed condition, verbatim; it is never summarized away.
type ResourceReport struct {
	Resource string        `json:"resource"`
	Stage    int           `json:"stage"`
	Outcome  string        `json:"outcome,omitempty"`
	State    string        `json:"state"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// Report is the aggregate outcome of a run. It enumerates every
// resource's terminal status; no outcome is ever dropped.
type Report struct {
	Verdict    Verdict          `json:"verdict"`
	Hash       string           `json:"hash,omitempty"`
	DryRun     bool             `json:"dryRun,omitempty"`
	StartedAt  time.Time        `json:"startedAt"`
	FinishedAt time.Time        `json:"finishedAt"`
	Resources  []ResourceReport `json:"resources"`
	Fatal      string           `json:"fatal,omitempty"`
}

// Summarize computes the verdict over per-resource records and returns
// the finished report. A fatal error message, when present, is carried
// verbatim alongside the per-resource outcomes.
func Summarize(hash string, startedAt time.Time, resources []ResourceReport, fatal string) *Report {
	sorted := make([]ResourceReport, len(resources))
	copy(sorted, resources)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Stage != sorted[j].Stage {
			return sorted[i].Stage < sorted[j].Stage
		}
		return sorted[i].Resource < sorted[j].Resource
	})

	ready := 0
	for _, r := range sorted {
		if r.State == StateReady {
			ready++
		}
	}

	verdict := VerdictFailed
	switch {
	case ready == len(sorted):
		verdict = VerdictSuccess
	case ready > 0:
		verdict = VerdictPartial
	}

	return &Report{
		Verdict:    verdict,
		Hash:       hash,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
		Resources:  sorted,
		Fatal:      fatal,
	}
}

// ExitCode maps the verdict to the CLI exit code contract.
func (r *Report) ExitCode() int {
	switch r.Verdict {
	case VerdictSuccess:
		return 0
	case VerdictPartial:
		return 1
	default:
		return 2
	}
}
