// Package diagram renders workflow graphs as Mermaid flowcharts or ASCII
// art, optionally overlaying the progress of a diagnostic session.
package diagram

// NodeKind classifies a diagram node by its workflow step type.
type NodeKind string

const (
	NodeKindStart      NodeKind = "start"
	NodeKindQuestion   NodeKind = "question"
	NodeKindAction     NodeKind = "action"
	NodeKindSolution   NodeKind = "solution"
	NodeKindTest       NodeKind = "test"
	NodeKindDecision   NodeKind = "decision"
	NodeKindCollection NodeKind = "collection"
)

// Model is the intermediate representation used by all renderers.
type Model struct {
	Title  string
	Nodes  []*Node
	Edges  []Edge
	Levels [][]string
}

// Node represents a single diagnostic step in the diagram.
type Node struct {
	ID     string
	Label  string
	Kind   NodeKind
	Status *StatusOverlay
}

// StatusOverlay carries session progress for a node.
type StatusOverlay struct {
	Current bool
	Visited bool
	Answer  string // recorded answer or measurement, for display
}

// Edge represents a connection between two nodes. Label holds the option
// text or branch condition the edge is taken on.
type Edge struct {
	From  string
	To    string
	Label string
}
