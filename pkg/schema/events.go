package schema

// Change-event type constants. Every mutation that goes through the storage
// adapter publishes one of these on the streaming hub and appends it to the
// change log, replacing the cross-tab storage listener of the original
// browser-based editor.
const (
	EventWorkflowSaved     = "workflow_saved"
	EventWorkflowDeleted   = "workflow_deleted"
	EventWorkflowToggled   = "workflow_toggled"
	EventWorkflowMoved     = "workflow_moved"
	EventWorkflowReordered = "workflow_reordered"

	EventFolderAdded   = "folder_added"
	EventFolderRenamed = "folder_renamed"
	EventFolderDeleted = "folder_deleted"

	EventLimitDenied = "limit_denied"

	EventSessionStarted   = "session_started"
	EventSessionAdvanced  = "session_advanced"
	EventSessionCompleted = "session_completed"
)
