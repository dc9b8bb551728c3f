// Package engine drives a staged plan against the cluster. A single
// control loop walks stages in order; within a stage, per-resource
// tasks (apply, then readiness) run concurrently on a bounded pool.
// Each resource is owned by exactly one task for its lifetime. The
// sole cross-stage contract: stage N+1 is never submitted before every
// stage N resource reached a terminal readiness state.
package engine
