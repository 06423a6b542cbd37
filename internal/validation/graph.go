package validation

import (
	"fmt"
	"sort"

	"github.com/repairkit/fixtree/pkg/schema"
)

// Issue codes used by graph-level checks.
const (
	codeNoStart          = "no_start_node"
	codeMultipleStarts   = "multiple_start_nodes"
	codeDanglingEdge     = "dangling_edge"
	codeOptionIndexRange = "option_index_out_of_range"
	codeUnreachable      = "unreachable_node"
	codeCycle            = "graph_cycle"
	codeNoSolution       = "no_solution_node"
)

// validateGraphSemantic checks referential integrity of the node/edge graph:
// exactly one start node, edge endpoints exist, and option-indexed edges
// point at a real option on their source question.
func validateGraphSemantic(wf *schema.SavedWorkflow) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	nodesByID := make(map[string]*schema.Node, len(wf.Nodes))
	starts := 0
	solutions := 0
	for i := range wf.Nodes {
		n := &wf.Nodes[i]
		nodesByID[n.ID] = n
		switch n.Type {
		case schema.NodeTypeStart:
			starts++
		case schema.NodeTypeSolution:
			solutions++
		}
	}

	switch {
	case starts == 0:
		result.AddError("nodes", codeNoStart, "workflow must have a start node")
	case starts > 1:
		result.AddError("nodes", codeMultipleStarts,
			fmt.Sprintf("workflow has %d start nodes, expected exactly one", starts))
	}

	for i, e := range wf.Edges {
		path := fmt.Sprintf("edges[%d]", i)

		src, srcOK := nodesByID[e.Source]
		if !srcOK {
			result.AddError(path+".source", codeDanglingEdge,
				fmt.Sprintf("edge %q references non-existent source node %q", e.ID, e.Source))
		}
		if _, ok := nodesByID[e.Target]; !ok {
			result.AddError(path+".target", codeDanglingEdge,
				fmt.Sprintf("edge %q references non-existent target node %q", e.ID, e.Target))
		}

		if e.OptionIndex != nil && srcOK {
			if idx := *e.OptionIndex; idx < 0 || idx >= len(src.Options) {
				result.AddError(path+".optionIndex", codeOptionIndexRange,
					fmt.Sprintf("edge %q option index %d out of range for node %q with %d options",
						e.ID, idx, e.Source, len(src.Options)))
			}
		}
	}

	if solutions == 0 {
		result.AddWarning("nodes", codeNoSolution, "workflow has no solution node")
	}

	return result
}

// validateGraphFlow performs graph analysis: unreachable nodes (BFS from the
// start node) and cycles (Kahn's algorithm). Both produce warnings only; a
// technician can still run a partially wired workflow while it is drafted.
func validateGraphFlow(wf *schema.SavedWorkflow) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	g := wf.Graph()
	start := g.StartNode()
	if start == nil {
		return result // semantic stage already reported the missing start
	}

	adjacent := make(map[string][]string, len(wf.Nodes))
	for _, e := range wf.Edges {
		adjacent[e.Source] = append(adjacent[e.Source], e.Target)
	}

	// Reachability: BFS from the start node.
	reachable := map[string]bool{start.ID: true}
	queue := []string{start.ID}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, next := range adjacent[node] {
			if !reachable[next] {
				reachable[next] = true
				queue = append(queue, next)
			}
		}
	}

	for _, n := range wf.Nodes {
		if !reachable[n.ID] {
			result.AddWarning(fmt.Sprintf("nodes[%s]", n.ID), codeUnreachable,
				fmt.Sprintf("node %q is unreachable from the start node", n.ID))
		}
	}

	// Kahn's algorithm for cycle detection.
	inDegree := make(map[string]int, len(wf.Nodes))
	for _, n := range wf.Nodes {
		inDegree[n.ID] = 0
	}
	for _, e := range wf.Edges {
		if _, ok := inDegree[e.Target]; ok {
			inDegree[e.Target]++
		}
	}

	roots := make([]string, 0, len(wf.Nodes))
	for id, deg := range inDegree {
		if deg == 0 {
			roots = append(roots, id)
		}
	}
	// Sort roots for deterministic output.
	sort.Strings(roots)

	visited := 0
	for len(roots) > 0 {
		node := roots[0]
		roots = roots[1:]
		visited++
		for _, next := range adjacent[node] {
			if _, ok := inDegree[next]; !ok {
				continue
			}
			inDegree[next]--
			if inDegree[next] == 0 {
				roots = append(roots, next)
			}
		}
	}

	if visited != len(wf.Nodes) {
		result.AddWarning("edges", codeCycle,
			"workflow contains a cycle; sessions may revisit the same steps")
	}

	return result
}
