package streaming

import "context"

// ChangeEvent is a real-time notice that workflow or folder state changed.
// Connected editors use these to refresh their lists without polling, the
// way cross-window storage notifications would.
type ChangeEvent struct {
	EventType  string `json:"event_type"`
	WorkflowID string `json:"workflow_id,omitempty"`
	Workflow   string `json:"workflow,omitempty"`
	Folder     string `json:"folder,omitempty"`
	Payload    any    `json:"payload,omitempty"`
}

// EventFilter specifies which events a subscriber wants to receive.
type EventFilter struct {
	Folder     string   `json:"folder,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for real-time change events.
type EventHub interface {
	Publish(ctx context.Context, event ChangeEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan ChangeEvent, func(), error)
}
