package schema

// NodeType enumerates the kinds of steps in a diagnostic workflow.
type NodeType string

const (
	NodeTypeStart          NodeType = "start"
	NodeTypeQuestion       NodeType = "question"
	NodeTypeAction         NodeType = "action"
	NodeTypeSolution       NodeType = "solution"
	NodeTypeTest           NodeType = "test"
	NodeTypeMeasurement    NodeType = "measurement"
	NodeTypeDataCollection NodeType = "data-collection"
	NodeTypeDecisionTree   NodeType = "decision-tree"
	NodeTypeEquipmentTest  NodeType = "equipment-test"
	NodeTypeProcedureStep  NodeType = "procedure-step"
	NodeTypePhotoCapture   NodeType = "photo-capture"
	NodeTypeDataForm       NodeType = "data-form"
)

// MediaType classifies a media attachment.
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
	MediaTypePDF   MediaType = "pdf"
)

// MediaItem is one attachment on a node. URL may be a blob reference
// (local mirror) or a remote object-storage URL.
type MediaItem struct {
	Type MediaType `json:"type"`
	URL  string    `json:"url"`
}

// Range is a numeric acceptance window for technical measurements.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// TechnicalSpecs holds the technical fields present only on node types
// that require them (test, measurement, equipment-test).
type TechnicalSpecs struct {
	Range             *Range   `json:"range,omitempty"`
	TestPoints        []string `json:"testPoints,omitempty"`
	MeasurementPoints []string `json:"measurementPoints,omitempty"`
}

// Node is one diagnostic step in a workflow graph.
//
// Content, Media, and Options are the persisted result of combining the
// editor's field list (see pkg/fields); RichInfo is a legacy content field
// honored on read for records saved before the composer existed.
type Node struct {
	ID             string          `json:"id"`
	Type           NodeType        `json:"type"`
	Label          string          `json:"label"`
	Content        string          `json:"content,omitempty"`
	RichInfo       string          `json:"richInfo,omitempty"`
	Media          []MediaItem     `json:"media,omitempty"`
	Options        []string        `json:"options,omitempty"`
	TechnicalSpecs *TechnicalSpecs `json:"technicalSpecs,omitempty"`
}

// Edge is a directed connection between two node IDs.
//
// OptionIndex tags the originating option for question branches: the walker
// follows the edge whose index matches the chosen answer. Condition holds an
// expression for decision-tree branches, evaluated against session data by
// the engine named in Engine (default "cel").
type Edge struct {
	ID          string `json:"id"`
	Source      string `json:"source"`
	Target      string `json:"target"`
	OptionIndex *int   `json:"optionIndex,omitempty"`
	Condition   string `json:"condition,omitempty"`
	Engine      string `json:"engine,omitempty"`
}

// Graph is the node/edge body of a workflow.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// NodeByID returns the node with the given ID, or nil.
func (g *Graph) NodeByID(id string) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// StartNode returns the graph's start node, or nil if absent.
// Validation guarantees exactly one for saved workflows.
func (g *Graph) StartNode() *Node {
	for i := range g.Nodes {
		if g.Nodes[i].Type == NodeTypeStart {
			return &g.Nodes[i]
		}
	}
	return nil
}

// OutgoingEdges returns the edges whose source is the given node ID,
// in definition order.
func (g *Graph) OutgoingEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}
	return out
}
