// Package plan turns a manifest set into a staged execution plan.
//
// Dependencies are inferred by an ordered, replaceable rule set
// (claims bind volumes, workloads need their claims, secrets, and
// upstream services, proxies need their backend services) and merged
// with explicit depends-on annotations. The resulting graph must be
// acyclic; cycles are reported with their members named in traversal
// order. Stages are longest-path layers: every dependency of a node
// lives in a strictly earlier stage, so members of one stage are safe
// to apply concurrently.
package plan
