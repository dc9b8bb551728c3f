package plan

import (
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/slipway-sh/slipway/pkg/manifest"
)

// Rule infers dependencies for a single resource against the rest of
// the set. Inference rules are policy, not a fixed algorithm: callers
// can replace or reorder them. A rule that resolves an inferred
// reference to a resource outside the set simply stays silent, since
// the target may legitimately pre-exist in the cluster. Rules backed by
// explicit annotations return an error instead, since the operator
// named a resource that is not being deployed.
type Rule struct {
	// Name identifies the rule for configuration and diagnostics.
	Name string

	// Infer returns the identities the resource depends on.
	Infer func(r *manifest.Resource, set *manifest.Set) ([]manifest.ID, error)
}

// DefaultRules returns the built-in inference rules in evaluation
// order. Order matters for determinism of diagnostics, not of the
// resulting graph.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "claim-binds-volume", Infer: inferClaimVolume},
		{Name: "workload-mounts-claims", Infer: inferWorkloadClaims},
		{Name: "workload-references-secrets", Infer: inferWorkloadSecrets},
		{Name: "service-selects-workload", Infer: inferServiceBackends},
		{Name: "workload-upstream-services", Infer: inferUpstreamServices},
		{Name: "proxy-backend-services", Infer: inferProxyBackends},
	}
}

// inferClaimVolume makes a claim depend on the volume it binds.
func inferClaimVolume(r *manifest.Resource, set *manifest.Set) ([]manifest.ID, error) {
	if r.Object.GetKind() != "PersistentVolumeClaim" {
		return nil, nil
	}
	volumeName, found, _ := unstructured.NestedString(r.Object.Object, "spec", "volumeName")
	if !found || volumeName == "" {
		return nil, nil
	}
	id := manifest.ID{Kind: "PersistentVolume", Name: volumeName}
	if _, ok := set.Get(id); !ok {
		return nil, nil
	}
	return []manifest.ID{id}, nil
}

// inferWorkloadClaims makes a workload depend on every claim its pod
// template mounts.
func inferWorkloadClaims(r *manifest.Resource, set *manifest.Set) ([]manifest.ID, error) {
	if !manifest.IsWorkload(r.Object.GetKind()) {
		return nil, nil
	}
	var deps []manifest.ID
	for _, claim := range manifest.ClaimRefs(&r.Object) {
		id := manifest.ID{Kind: "PersistentVolumeClaim", Namespace: r.Object.GetNamespace(), Name: claim}
		if _, ok := set.Get(id); ok {
			deps = append(deps, id)
		}
	}
	return deps, nil
}

// inferWorkloadSecrets makes a workload depend on every secret it
// references.
func inferWorkloadSecrets(r *manifest.Resource, set *manifest.Set) ([]manifest.ID, error) {
	if !manifest.IsWorkload(r.Object.GetKind()) {
		return nil, nil
	}
	var deps []manifest.ID
	for _, secret := range manifest.SecretRefs(&r.Object) {
		id := manifest.ID{Kind: "Secret", Namespace: r.Object.GetNamespace(), Name: secret}
		if _, ok := set.Get(id); ok {
			deps = append(deps, id)
		}
	}
	return deps, nil
}

// inferServiceBackends makes a Service depend on every workload in the
// set whose pod labels match its selector. A depended-on Service waits
// for ready endpoints, and endpoints cannot appear until the backing
// pods run; without this edge the Service would wait in a stage before
// the workload that feeds it.
func inferServiceBackends(r *manifest.Resource, set *manifest.Set) ([]manifest.ID, error) {
	if r.Object.GetKind() != "Service" {
		return nil, nil
	}
	selector := manifest.Selector(&r.Object)
	if len(selector) == 0 {
		return nil, nil
	}
	var deps []manifest.ID
	for _, candidate := range set.Resources {
		if !manifest.IsWorkload(candidate.Object.GetKind()) {
			continue
		}
		if candidate.Object.GetNamespace() != r.Object.GetNamespace() {
			continue
		}
		if selectorMatches(selector, manifest.PodLabels(&candidate.Object)) {
			deps = append(deps, candidate.ID())
		}
	}
	return deps, nil
}

func selectorMatches(selector, labels map[string]string) bool {
	for k, v := range selector {
		if labels[k] != v {
			return false
		}
	}
	return true
}

// inferUpstreamServices makes a workload depend on the Services named
// in its upstreams annotation. The edge orders the Service before the
// workload; endpoint readiness is enforced by the Service's readiness
// predicate, since object existence alone leaves connections failing.
func inferUpstreamServices(r *manifest.Resource, set *manifest.Set) ([]manifest.ID, error) {
	return annotatedServices(r, set, manifest.AnnotationUpstreams)
}

// inferProxyBackends makes a proxy workload depend on the Service of
// every backend it forwards to.
func inferProxyBackends(r *manifest.Resource, set *manifest.Set) ([]manifest.ID, error) {
	return annotatedServices(r, set, manifest.AnnotationProxies)
}

func annotatedServices(r *manifest.Resource, set *manifest.Set, annotation string) ([]manifest.ID, error) {
	if !manifest.IsWorkload(r.Object.GetKind()) {
		return nil, nil
	}
	raw := r.Object.GetAnnotations()[annotation]
	if raw == "" {
		return nil, nil
	}
	var deps []manifest.ID
	for _, name := range manifest.SplitList(raw) {
		id := manifest.ID{Kind: "Service", Namespace: r.Object.GetNamespace(), Name: name}
		target, ok := set.Get(id)
		if !ok {
			return nil, &MissingDependencyError{Resource: r.ID(), Missing: id}
		}
		deps = append(deps, target.ID())
	}
	return deps, nil
}
