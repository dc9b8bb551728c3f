package plan

import (
	"fmt"
	"sort"

	"github.com/dominikbraun/graph"

	"github.com/slipway-sh/slipway/pkg/manifest"
	"github.com/slipway-sh/slipway/pkg/readiness"
)

// Build derives a staged execution plan from a manifest set using the
// default inference rules.
func Build(set *manifest.Set) (*Plan, error) {
	return BuildWithRules(set, DefaultRules())
}

// BuildWithRules derives a staged execution plan using the given rule
// set. Explicit depends-on annotations are always honored regardless
// of the rules supplied.
func BuildWithRules(set *manifest.Set, rules []Rule) (*Plan, error) {
	nodes := make(map[string]*Node, set.Len())

	for _, r := range set.Resources {
		node := &Node{Resource: r, ID: r.ID()}
		deps := map[string]manifest.ID{}

		// Explicit annotations first; an unresolvable explicit edge is
		// an operator mistake, never silently dropped.
		for _, ref := range r.DependsOn {
			target, ok := set.Get(ref)
			if !ok {
				return nil, &MissingDependencyError{Resource: r.ID(), Missing: ref}
			}
			deps[target.ID().String()] = target.ID()
		}

		for _, rule := range rules {
			inferred, err := rule.Infer(r, set)
			if err != nil {
				return nil, err
			}
			for _, id := range inferred {
				if id != r.ID() {
					deps[id.String()] = id
				}
			}
		}

		keys := make([]string, 0, len(deps))
		for k := range deps {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			node.DependsOn = append(node.DependsOn, deps[k])
		}

		nodes[node.ID.String()] = node
	}

	if err := detectCycles(nodes); err != nil {
		return nil, err
	}

	order, err := topologicalOrder(nodes)
	if err != nil {
		return nil, err
	}

	p := &Plan{
		Nodes: nodes,
		Order: order,
		Hash:  set.Hash(),
	}
	computeStages(p)
	assignReadiness(p)

	if err := validateStageVolumes(p, set); err != nil {
		return nil, err
	}
	return p, nil
}

// detectCycles walks dependency edges depth-first with visitation
// coloring. An edge back to an in-progress node is a cycle; members
// are reported in traversal order.
func detectCycles(nodes map[string]*Node) error {
	const (
		white = iota // unvisited
		grey         // in progress
		black        // done
	)
	colors := make(map[string]int, len(nodes))
	var stack []string

	var visit func(key string) *CycleError
	visit = func(key string) *CycleError {
		colors[key] = grey
		stack = append(stack, key)

		node := nodes[key]
		for _, dep := range node.DependsOn {
			depKey := dep.String()
			switch colors[depKey] {
			case grey:
				start := 0
				for i, k := range stack {
					if k == depKey {
						start = i
						break
					}
				}
				members := append(append([]string{}, stack[start:]...), depKey)
				return &CycleError{Members: members}
			case white:
				if cErr := visit(depKey); cErr != nil {
					return cErr
				}
			}
		}

		stack = stack[:len(stack)-1]
		colors[key] = black
		return nil
	}

	keys := sortedKeys(nodes)
	for _, key := range keys {
		if colors[key] == white {
			if cErr := visit(key); cErr != nil {
				return cErr
			}
		}
	}
	return nil
}

// topologicalOrder builds the DAG and computes a flat order. Cycles
// are already ruled out, so PreventCycles here only guards against
// builder bugs.
func topologicalOrder(nodes map[string]*Node) ([]string, error) {
	dg := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())

	for _, key := range sortedKeys(nodes) {
		if err := dg.AddVertex(key); err != nil {
			return nil, fmt.Errorf("failed to add vertex %s: %w", key, err)
		}
	}
	for _, key := range sortedKeys(nodes) {
		for _, dep := range nodes[key].DependsOn {
			// dep must complete before key, so the edge is dep -> key.
			if err := dg.AddEdge(dep.String(), key); err != nil {
				return nil, fmt.Errorf("failed to add edge %s -> %s: %w", dep, key, err)
			}
		}
	}

	order, err := graph.StableTopologicalSort(dg, func(a, b string) bool { return a < b })
	if err != nil {
		return nil, fmt.Errorf("failed to compute topological sort: %w", err)
	}
	return order, nil
}

// computeStages assigns longest-path layer indices and partitions the
// nodes. Walking in topological order guarantees dependency stages are
// known before their dependents.
func computeStages(p *Plan) {
	maxStage := 0
	for _, key := range p.Order {
		node := p.Nodes[key]
		stage := 0
		for _, dep := range node.DependsOn {
			if depNode, ok := p.Nodes[dep.String()]; ok && depNode.Stage+1 > stage {
				stage = depNode.Stage + 1
			}
		}
		node.Stage = stage
		if stage > maxStage {
			maxStage = stage
		}
	}

	p.Stages = make([][]string, maxStage+1)
	for key, node := range p.Nodes {
		p.Stages[node.Stage] = append(p.Stages[node.Stage], key)
	}
	for i := range p.Stages {
		sort.Strings(p.Stages[i])
	}
}

// assignReadiness gives each node its kind-specific readiness
// predicates. A Service that other nodes depend on must have ready
// endpoints; a bare Service only has to exist.
func assignReadiness(p *Plan) {
	depended := map[string]bool{}
	for _, node := range p.Nodes {
		for _, dep := range node.DependsOn {
			depended[dep.String()] = true
		}
	}

	for key, node := range p.Nodes {
		if len(node.ReadyWhen) > 0 {
			continue
		}
		switch node.ID.Kind {
		case "PersistentVolumeClaim":
			node.ReadyWhen = []readiness.Predicate{{Type: readiness.PredicateClaimBound}}
		case "Deployment", "StatefulSet", "DaemonSet", "ReplicaSet":
			node.ReadyWhen = []readiness.Predicate{{Type: readiness.PredicateWorkloadAvailable}}
		case "Pod":
			node.ReadyWhen = []readiness.Predicate{{
				Type:            readiness.PredicateConditionMatch,
				ConditionType:   "Ready",
				ConditionStatus: "True",
			}}
		case "Service":
			if depended[key] {
				node.ReadyWhen = []readiness.Predicate{{Type: readiness.PredicateServiceHasEndpoints}}
			} else {
				node.ReadyWhen = []readiness.Predicate{{Type: readiness.PredicateExists}}
			}
		default:
			node.ReadyWhen = []readiness.Predicate{{Type: readiness.PredicateExists}}
		}
	}
}

// validateStageVolumes rejects two same-stage workloads mounting the
// same ReadWriteOnce claim. They carry no ordering edge between them,
// so the apply engine would race them for the volume.
func validateStageVolumes(p *Plan, set *manifest.Set) error {
	for stageIdx, stage := range p.Stages {
		claimOwner := map[string]string{}
		for _, key := range stage {
			node := p.Nodes[key]
			if !manifest.IsWorkload(node.ID.Kind) {
				continue
			}
			for _, claimName := range manifest.ClaimRefs(&node.Resource.Object) {
				claimID := manifest.ID{
					Kind:      "PersistentVolumeClaim",
					Namespace: node.ID.Namespace,
					Name:      claimName,
				}
				claim, ok := set.Get(claimID)
				if !ok || !isReadWriteOnce(claim) {
					continue
				}
				claimKey := claim.ID().String()
				if owner, taken := claimOwner[claimKey]; taken {
					return &SharedVolumeError{
						Claim:     claim.ID(),
						Workloads: []string{owner, key},
						Stage:     stageIdx,
					}
				}
				claimOwner[claimKey] = key
			}
		}
	}
	return nil
}

func isReadWriteOnce(claim *manifest.Resource) bool {
	rwo := false
	for _, mode := range manifest.AccessModes(&claim.Object) {
		switch mode {
		case "ReadWriteOnce", "ReadWriteOncePod":
			rwo = true
		case "ReadWriteMany":
			// A claim that also allows many writers cannot race.
			return false
		}
	}
	return rwo
}

func sortedKeys(nodes map[string]*Node) []string {
	keys := make([]string, 0, len(nodes))
	for k := range nodes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
