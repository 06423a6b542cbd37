package store

import (
	"context"
	"time"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Workflows
	CreateWorkflow(ctx context.Context, wf *WorkflowRecord) error
	GetWorkflow(ctx context.Context, id string) (*WorkflowRecord, error)
	FindWorkflowByName(ctx context.Context, name string) (*WorkflowRecord, error)
	UpdateWorkflow(ctx context.Context, id string, update WorkflowUpdate) error
	ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*WorkflowRecord, error)
	DeleteWorkflow(ctx context.Context, id string) error

	// Folders
	CreateFolder(ctx context.Context, name string) error
	ListFolders(ctx context.Context) ([]*Folder, error)
	RenameFolder(ctx context.Context, oldName, newName string) error
	DeleteFolder(ctx context.Context, name string) error
	ReassignFolder(ctx context.Context, from, to string) (int64, error)

	// Usage metering
	IncrementUsage(ctx context.Context, action string) (int64, error)
	GetUsage(ctx context.Context, action string) (int64, error)
	ResetUsage(ctx context.Context, actions ...string) error

	// Subscription
	GetSubscription(ctx context.Context) (*Subscription, error)
	SetSubscription(ctx context.Context, sub *Subscription) error

	// Notifications
	CreateNotification(ctx context.Context, n *Notification) error
	ListNotifications(ctx context.Context, unreadOnly bool, limit int) ([]*Notification, error)
	MarkNotificationRead(ctx context.Context, id int64) error

	// Change log (append-only)
	AppendChange(ctx context.Context, entry *ChangeEntry) error
	GetChanges(ctx context.Context, workflowID string, since int64) ([]*ChangeEntry, error)
	GetChangesByType(ctx context.Context, changeType string, filter ChangeFilter) ([]*ChangeEntry, error)
	PruneChanges(ctx context.Context, before time.Time) (int64, error)

	// Diagnostic sessions
	CreateSession(ctx context.Context, sess *SessionRecord) error
	GetSession(ctx context.Context, id string) (*SessionRecord, error)
	UpdateSession(ctx context.Context, id string, update SessionUpdate) error
	ListSessions(ctx context.Context, filter SessionFilter) ([]*SessionRecord, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
