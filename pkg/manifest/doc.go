// Package manifest loads and validates declarative resource sets from
// YAML, JSON, and CUE sources. Loading is a pure parse-and-validate
// step: every resource must carry a unique (kind, namespace, name)
// identity and the fields the orchestrator relies on for dependency
// inference. Nothing here talks to a cluster.
package manifest
