package store

import (
	"encoding/json"
	"time"

	"github.com/repairkit/fixtree/pkg/schema"
)

// WorkflowDefinition is the graph payload persisted as a single JSON column.
type WorkflowDefinition struct {
	Nodes       []schema.Node `json:"nodes"`
	Edges       []schema.Edge `json:"edges"`
	NodeCounter int           `json:"nodeCounter"`
}

// WorkflowRecord is the persisted representation of a saved workflow.
// A workflow is identified by its row ID; (name, folder) is unique so the
// sync layer can match records coming from clients that only know the name.
type WorkflowRecord struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Folder     string             `json:"folder"`
	Appliance  string             `json:"appliance,omitempty"`
	IsActive   bool               `json:"is_active"`
	OrderIndex int                `json:"order_index"`
	Definition WorkflowDefinition `json:"definition"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// Saved converts the record to the wire shape used by clients and the
// local mirror.
func (r *WorkflowRecord) Saved() schema.SavedWorkflow {
	return schema.SavedWorkflow{
		Metadata: schema.WorkflowMetadata{
			Name:       r.Name,
			Folder:     r.Folder,
			Appliance:  r.Appliance,
			IsActive:   r.IsActive,
			OrderIndex: r.OrderIndex,
		},
		Nodes:       r.Definition.Nodes,
		Edges:       r.Definition.Edges,
		NodeCounter: r.Definition.NodeCounter,
	}
}

// Folder is a named grouping of workflows.
type Folder struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// UsageCounter tracks how many times a metered action has been performed
// in the current period.
type UsageCounter struct {
	Action    string    `json:"action"`
	Count     int64     `json:"count"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Subscription is the company's current plan. At most one row exists;
// callers treat a missing row as the entry-level plan.
type Subscription struct {
	Plan      string    `json:"plan"`
	Status    string    `json:"status"` // active, past_due, canceled
	UpdatedAt time.Time `json:"updated_at"`
}

// Notification is a persisted in-app notice, e.g. a denied action that
// requires a plan upgrade.
type Notification struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	Message   string          `json:"message"`
	Details   json.RawMessage `json:"details,omitempty"`
	Read      bool            `json:"read"`
	CreatedAt time.Time       `json:"created_at"`
}

// ChangeEntry is an immutable record in the per-workflow change log.
type ChangeEntry struct {
	ID         int64           `json:"id"`
	WorkflowID string          `json:"workflow_id"`
	Type       string          `json:"change_type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Actor      string          `json:"actor,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Sequence   int64           `json:"sequence"`
}

// SessionRecord is a guided diagnostic run through a workflow.
type SessionRecord struct {
	ID           string               `json:"id"`
	WorkflowID   string               `json:"workflow_id"`
	Status       schema.SessionStatus `json:"status"`
	CurrentNode  string               `json:"current_node,omitempty"`
	Answers      json.RawMessage      `json:"answers,omitempty"`
	Measurements json.RawMessage      `json:"measurements,omitempty"`
	StartedAt    time.Time            `json:"started_at"`
	CompletedAt  *time.Time           `json:"completed_at,omitempty"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// --- Filter and update types ---

// WorkflowFilter specifies criteria for listing workflows.
type WorkflowFilter struct {
	Folder string `json:"folder,omitempty"`
	Name   string `json:"name,omitempty"`
	Active *bool  `json:"active,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// WorkflowUpdate specifies mutable fields of a workflow.
type WorkflowUpdate struct {
	Name       *string             `json:"name,omitempty"`
	Folder     *string             `json:"folder,omitempty"`
	IsActive   *bool               `json:"is_active,omitempty"`
	OrderIndex *int                `json:"order_index,omitempty"`
	Definition *WorkflowDefinition `json:"definition,omitempty"`
}

// ChangeFilter specifies criteria for listing change log entries.
type ChangeFilter struct {
	WorkflowID string     `json:"workflow_id,omitempty"`
	Type       string     `json:"change_type,omitempty"`
	Since      *time.Time `json:"since,omitempty"`
	Limit      int        `json:"limit,omitempty"`
}

// SessionUpdate specifies mutable fields of a diagnostic session.
type SessionUpdate struct {
	Status       *schema.SessionStatus `json:"status,omitempty"`
	CurrentNode  *string               `json:"current_node,omitempty"`
	Answers      json.RawMessage       `json:"answers,omitempty"`
	Measurements json.RawMessage       `json:"measurements,omitempty"`
	CompletedAt  *time.Time            `json:"completed_at,omitempty"`
}

// SessionFilter specifies criteria for listing sessions.
type SessionFilter struct {
	WorkflowID string                `json:"workflow_id,omitempty"`
	Status     *schema.SessionStatus `json:"status,omitempty"`
	Limit      int                   `json:"limit,omitempty"`
}
