package plan

import (
	"sort"

	"github.com/slipway-sh/slipway/pkg/manifest"
	"github.com/slipway-sh/slipway/pkg/readiness"
)

// Node is a resource placed in the dependency graph.
type Node struct {
	// Resource is the underlying declaration.
	Resource *manifest.Resource `json:"-"`

	// ID is the resource identity key.
	ID manifest.ID `json:"id"`

	// DependsOn lists the identities that must be ready before this
	// node may be applied. Merged from explicit annotations and the
	// inference rules, deduplicated and sorted.
	DependsOn []manifest.ID `json:"dependsOn,omitempty"`

	// Stage is the longest-path layer index: 0 for roots, otherwise
	// 1 + max(stage of dependencies).
	Stage int `json:"stage"`

	// ReadyWhen holds the readiness predicates assigned for this kind.
	ReadyWhen []readiness.Predicate `json:"readyWhen,omitempty"`
}

// Plan is the staged execution plan derived from a manifest set.
type Plan struct {
	// Nodes keyed by identity string.
	Nodes map[string]*Node `json:"nodes"`

	// Stages partitions node keys into ordered groups; members of a
	// group have no dependency on each other and every dependency of a
	// member lives in an earlier group. Members are sorted for
	// deterministic output.
	Stages [][]string `json:"stages"`

	// Order is a flat topological order over all node keys.
	Order []string `json:"order"`

	// Hash is the content hash of the originating manifest set.
	Hash string `json:"hash"`
}

// Node returns the node for an identity key.
func (p *Plan) Node(key string) (*Node, bool) {
	n, ok := p.Nodes[key]
	return n, ok
}

// Size returns the number of nodes in the plan.
func (p *Plan) Size() int {
	return len(p.Nodes)
}

// Dependents returns the keys of nodes that depend on the given node,
// sorted for determinism.
func (p *Plan) Dependents(key string) []string {
	var out []string
	for k, n := range p.Nodes {
		for _, dep := range n.DependsOn {
			if dep.String() == key {
				out = append(out, k)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}
