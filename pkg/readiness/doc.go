// Package readiness decides when an applied resource is actually
// functioning as declared. Predicates are kind-specific: a claim is
// ready when bound, a workload when its minimum-available replicas
// condition holds, a service when it has at least one ready endpoint.
// The watcher polls at a bounded interval, backing off only on query
// errors, and reports a terminal pending/ready/failed/timed-out status
// per resource.
package readiness
