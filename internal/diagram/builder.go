package diagram

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/repairkit/fixtree/internal/store"
	"github.com/repairkit/fixtree/pkg/schema"
)

// Build constructs a diagram Model from a workflow. When sess is non-nil,
// nodes the session has passed through get a status overlay and the current
// node is highlighted.
func Build(wf *schema.SavedWorkflow, sess *store.SessionRecord) (*Model, error) {
	if wf == nil {
		return nil, fmt.Errorf("diagram: workflow is nil")
	}

	overlay := sessionOverlay(sess)

	nodes := make([]*Node, 0, len(wf.Nodes))
	index := make(map[string]*Node, len(wf.Nodes))
	for i := range wf.Nodes {
		src := &wf.Nodes[i]
		n := &Node{
			ID:    src.ID,
			Label: src.Label,
			Kind:  nodeTypeToKind(src.Type),
		}
		if st, ok := overlay[src.ID]; ok {
			n.Status = st
		}
		nodes = append(nodes, n)
		index[src.ID] = n
	}

	edges := make([]Edge, 0, len(wf.Edges))
	for _, e := range wf.Edges {
		if index[e.Source] == nil || index[e.Target] == nil {
			continue // dangling edges are a validation problem, not a rendering one
		}
		edges = append(edges, Edge{
			From:  e.Source,
			To:    e.Target,
			Label: edgeLabel(wf, e),
		})
	}

	return &Model{
		Title:  wf.Metadata.Name,
		Nodes:  nodes,
		Edges:  edges,
		Levels: buildLevels(wf, index),
	}, nil
}

// nodeTypeToKind maps the editor's node types onto renderer shapes.
func nodeTypeToKind(t schema.NodeType) NodeKind {
	switch t {
	case schema.NodeTypeStart:
		return NodeKindStart
	case schema.NodeTypeQuestion:
		return NodeKindQuestion
	case schema.NodeTypeSolution:
		return NodeKindSolution
	case schema.NodeTypeTest, schema.NodeTypeMeasurement, schema.NodeTypeEquipmentTest:
		return NodeKindTest
	case schema.NodeTypeDecisionTree:
		return NodeKindDecision
	case schema.NodeTypeDataCollection, schema.NodeTypeDataForm, schema.NodeTypePhotoCapture:
		return NodeKindCollection
	default:
		return NodeKindAction
	}
}

// edgeLabel picks a display label: the option text for question branches,
// the condition for expression branches.
func edgeLabel(wf *schema.SavedWorkflow, e schema.Edge) string {
	if e.OptionIndex != nil {
		if src := wf.Graph().NodeByID(e.Source); src != nil {
			if idx := *e.OptionIndex; idx >= 0 && idx < len(src.Options) {
				return src.Options[idx]
			}
		}
	}
	return e.Condition
}

// sessionOverlay computes per-node status from the session record.
func sessionOverlay(sess *store.SessionRecord) map[string]*StatusOverlay {
	overlay := make(map[string]*StatusOverlay)
	if sess == nil {
		return overlay
	}

	mark := func(nodeID, answer string) {
		st, ok := overlay[nodeID]
		if !ok {
			st = &StatusOverlay{}
			overlay[nodeID] = st
		}
		st.Visited = true
		if answer != "" {
			st.Answer = answer
		}
	}

	var answers map[string]any
	if json.Unmarshal(sess.Answers, &answers) == nil {
		for nodeID, v := range answers {
			if s, ok := v.(string); ok {
				mark(nodeID, s)
			} else {
				mark(nodeID, "")
			}
		}
	}

	var measurements map[string]map[string]any
	if json.Unmarshal(sess.Measurements, &measurements) == nil {
		for nodeID, m := range measurements {
			label := ""
			if v, ok := m["value"].(float64); ok {
				label = fmt.Sprintf("%g", v)
				if u, ok := m["unit"].(string); ok {
					label += " " + u
				}
			}
			mark(nodeID, label)
		}
	}

	if sess.CurrentNode != "" {
		st, ok := overlay[sess.CurrentNode]
		if !ok {
			st = &StatusOverlay{}
			overlay[sess.CurrentNode] = st
		}
		st.Current = true
		st.Visited = true
	}

	return overlay
}

// buildLevels lays nodes out by BFS depth from the start node. Nodes the
// start cannot reach go in one trailing level so they still render.
func buildLevels(wf *schema.SavedWorkflow, index map[string]*Node) [][]string {
	g := wf.Graph()
	start := g.StartNode()
	if start == nil {
		ids := make([]string, 0, len(wf.Nodes))
		for _, n := range wf.Nodes {
			ids = append(ids, n.ID)
		}
		sort.Strings(ids)
		if len(ids) == 0 {
			return nil
		}
		return [][]string{ids}
	}

	adjacent := make(map[string][]string, len(wf.Nodes))
	for _, e := range wf.Edges {
		if index[e.Source] != nil && index[e.Target] != nil {
			adjacent[e.Source] = append(adjacent[e.Source], e.Target)
		}
	}

	depth := map[string]int{start.ID: 0}
	queue := []string{start.ID}
	maxDepth := 0
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, next := range adjacent[node] {
			if _, seen := depth[next]; seen {
				continue
			}
			depth[next] = depth[node] + 1
			if depth[next] > maxDepth {
				maxDepth = depth[next]
			}
			queue = append(queue, next)
		}
	}

	levels := make([][]string, maxDepth+1)
	for _, n := range wf.Nodes {
		if d, ok := depth[n.ID]; ok {
			levels[d] = append(levels[d], n.ID)
		}
	}

	var orphans []string
	for _, n := range wf.Nodes {
		if _, ok := depth[n.ID]; !ok {
			orphans = append(orphans, n.ID)
		}
	}
	if len(orphans) > 0 {
		sort.Strings(orphans)
		levels = append(levels, orphans)
	}

	return levels
}
