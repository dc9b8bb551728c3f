package manifest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// Annotation keys understood by the orchestrator.
const (
	// AnnotationDependsOn declares explicit dependencies as a
	// comma-separated list of "Kind/name" or "Kind/namespace/name".
	AnnotationDependsOn = "slipway.sh/depends-on"

	// AnnotationUpstreams names Services a workload connects to.
	// The Service must exist (and have ready endpoints) before the
	// workload's stage is considered unblocked.
	AnnotationUpstreams = "slipway.sh/upstreams"

	// AnnotationProxies names Services a proxy workload forwards to.
	AnnotationProxies = "slipway.sh/proxies"

	// AnnotationSpecHash carries the content hash of the last applied
	// manifest, used to detect identical re-applies.
	AnnotationSpecHash = "slipway.sh/spec-hash"
)

// ID uniquely identifies a resource within a deployment set.
type ID struct {
	Kind      string `json:"kind"`
	Namespace string `json:"namespace,omitempty"`
	Name      string `json:"name"`
}

// String renders the ID as Kind/name for cluster-scoped resources and
// Kind/namespace/name otherwise.
func (id ID) String() string {
	if id.Namespace == "" {
		return id.Kind + "/" + id.Name
	}
	return id.Kind + "/" + id.Namespace + "/" + id.Name
}

// ParseID parses the forms accepted by the depends-on annotation.
func ParseID(s string) (ID, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	switch len(parts) {
	case 2:
		return ID{Kind: parts[0], Name: parts[1]}, nil
	case 3:
		return ID{Kind: parts[0], Namespace: parts[1], Name: parts[2]}, nil
	default:
		return ID{}, fmt.Errorf("invalid resource reference %q (want Kind/name or Kind/namespace/name)", s)
	}
}

// Resource is a single declarative resource loaded from a source.
// It is immutable once loaded; the orchestrator never mutates the
// payload after validation.
type Resource struct {
	// Object is the declarative payload as parsed from the source.
	Object unstructured.Unstructured `json:"object"`

	// Source records where the resource was loaded from, for diagnostics.
	Source string `json:"source,omitempty"`

	// DependsOn holds explicit dependencies from the depends-on annotation.
	DependsOn []ID `json:"dependsOn,omitempty"`
}

// ID returns the resource's identity key.
func (r *Resource) ID() ID {
	return ID{
		Kind:      r.Object.GetKind(),
		Namespace: r.Object.GetNamespace(),
		Name:      r.Object.GetName(),
	}
}

// Hash returns the content hash of the resource payload, excluding
// status. The hash is stable across load order.
func (r *Resource) Hash() string {
	obj := r.Object.DeepCopy()
	unstructured.RemoveNestedField(obj.Object, "status")
	data, err := json.Marshal(obj.Object)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%x", xxhash.Sum64(data))
}

// Set is a validated collection of resources with unique identities.
type Set struct {
	// Resources in load order.
	Resources []*Resource

	index map[ID]*Resource
}

// Get looks up a resource by identity. When the reference carries no
// namespace, a namespaced resource with a matching kind and name is
// also accepted; this lets cluster-scoped-style references in
// annotations resolve against namespaced objects.
func (s *Set) Get(id ID) (*Resource, bool) {
	if r, ok := s.index[id]; ok {
		return r, true
	}
	if id.Namespace == "" {
		for _, r := range s.Resources {
			rid := r.ID()
			if rid.Kind == id.Kind && rid.Name == id.Name {
				return r, true
			}
		}
	}
	return nil, false
}

// Len returns the number of resources in the set.
func (s *Set) Len() int {
	return len(s.Resources)
}

// Hash returns a content hash over the whole set, for report
// correlation and change detection.
func (s *Set) Hash() string {
	h := xxhash.New()
	for _, r := range s.Resources {
		_, _ = h.WriteString(r.ID().String())
		_, _ = h.WriteString(r.Hash())
	}
	return fmt.Sprintf("%x", h.Sum64())
}
