package schema

// DefaultFolder is the protected fallback folder. It cannot be renamed or
// deleted, and workflows with no folder set belong to it.
const DefaultFolder = "Default"

// WorkflowMetadata identifies and organizes a saved workflow.
// Identity is the (Name, Folder) pair.
//
// Appliance is a legacy alias for Folder from before the folder migration;
// reads honor it, writes always set Folder.
type WorkflowMetadata struct {
	Name       string `json:"name"`
	Folder     string `json:"folder,omitempty"`
	Appliance  string `json:"appliance,omitempty"`
	IsActive   bool   `json:"isActive"`
	OrderIndex int    `json:"orderIndex,omitempty"`
}

// EffectiveFolder resolves the folder a workflow belongs to:
// Folder, else the legacy Appliance value, else "Default".
func (m WorkflowMetadata) EffectiveFolder() string {
	if m.Folder != "" {
		return m.Folder
	}
	if m.Appliance != "" {
		return m.Appliance
	}
	return DefaultFolder
}

// SavedWorkflow is the JSON-serializable persisted form of a diagnostic
// workflow: metadata plus the node/edge graph authored in the editor.
// NodeCounter is the editor's monotonically increasing node ID counter,
// persisted so re-opened workflows never reuse IDs.
type SavedWorkflow struct {
	Metadata    WorkflowMetadata `json:"metadata"`
	Nodes       []Node           `json:"nodes"`
	Edges       []Edge           `json:"edges"`
	NodeCounter int              `json:"nodeCounter"`
}

// Graph returns the workflow body as a Graph value.
func (w *SavedWorkflow) Graph() *Graph {
	return &Graph{Nodes: w.Nodes, Edges: w.Edges}
}

// SessionStatus represents the lifecycle state of a diagnostic session.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusAbandoned SessionStatus = "abandoned"
)
