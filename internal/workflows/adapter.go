// Package workflows implements saving, listing, and acting on diagnostic
// workflows across the two storage tiers: the remote database, which is the
// source of truth, and the local JSON mirror, which keeps the editor usable
// when the remote is unreachable.
package workflows

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/repairkit/fixtree/internal/logging"
	"github.com/repairkit/fixtree/internal/store"
	"github.com/repairkit/fixtree/internal/streaming"
	"github.com/repairkit/fixtree/pkg/schema"
)

// ActionResult is the outcome surfaced to the editor for a storage action.
// Storage failures never escape as errors: the adapter logs them, records a
// notification, and reports Success=false with a message the UI can show.
type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Adapter coordinates mutations across the remote store and the local
// mirror. The remote is patched when a matching record exists; the mirror
// is mutated unconditionally so the user's last view is always preserved,
// even for records the remote has never seen.
type Adapter struct {
	remote  store.Store
	local   *store.LocalStore
	changes *store.ChangeLog
	hub     streaming.EventHub
	logger  *slog.Logger
}

// NewAdapter creates a storage adapter. changes and hub may be nil.
func NewAdapter(remote store.Store, local *store.LocalStore, changes *store.ChangeLog, hub streaming.EventHub, logger *slog.Logger) *Adapter {
	return &Adapter{remote: remote, local: local, changes: changes, hub: hub, logger: logger}
}

// Save persists a workflow. An existing remote record with the same name is
// patched in place; otherwise a new record is created in the workflow's
// effective folder. The mirror copy is replaced either way.
func (a *Adapter) Save(ctx context.Context, wf schema.SavedWorkflow) ActionResult {
	name := wf.Metadata.Name
	folder := wf.Metadata.EffectiveFolder()
	ctx = logging.WithWorkflow(ctx, name)

	if err := a.local.PutWorkflow(wf); err != nil {
		a.logger.WarnContext(ctx, "local mirror save failed", "error", err)
	}

	def := store.WorkflowDefinition{Nodes: wf.Nodes, Edges: wf.Edges, NodeCounter: wf.NodeCounter}

	existing, err := a.remote.FindWorkflowByName(ctx, name)
	switch {
	case err == nil:
		update := store.WorkflowUpdate{
			Folder:     &folder,
			IsActive:   &wf.Metadata.IsActive,
			Definition: &def,
		}
		if err := a.remote.UpdateWorkflow(ctx, existing.ID, update); err != nil {
			return a.fail(ctx, "save", name, err)
		}
		a.record(ctx, existing.ID, schema.EventWorkflowSaved, name, folder)
	case schema.IsNotFound(err):
		rec := &store.WorkflowRecord{
			ID:         uuid.New().String(),
			Name:       name,
			Folder:     folder,
			IsActive:   wf.Metadata.IsActive,
			OrderIndex: wf.Metadata.OrderIndex,
			Definition: def,
		}
		if err := a.remote.CreateWorkflow(ctx, rec); err != nil {
			return a.fail(ctx, "save", name, err)
		}
		a.record(ctx, rec.ID, schema.EventWorkflowSaved, name, folder)
	default:
		return a.fail(ctx, "save", name, err)
	}

	return ActionResult{Success: true, Message: fmt.Sprintf("Workflow %q saved", name)}
}

// Delete retires a workflow. The mirror entry is removed; the remote record,
// when one exists, is marked inactive rather than dropped, so its change
// history and past sessions keep their referent. A record missing remotely
// is not an error: the mirror copy is still removed and the action succeeds,
// so stale local-only records can always be cleaned up.
func (a *Adapter) Delete(ctx context.Context, name, folder string) ActionResult {
	ctx = logging.WithWorkflow(ctx, name)
	if err := a.local.DeleteWorkflow(name, folder); err != nil {
		a.logger.WarnContext(ctx, "local mirror delete failed", "error", err)
	}

	existing, err := a.remote.FindWorkflowByName(ctx, name)
	if err != nil {
		if schema.IsNotFound(err) {
			return ActionResult{Success: true, Message: fmt.Sprintf("Workflow %q deleted", name)}
		}
		return a.fail(ctx, "delete", name, err)
	}
	inactive := false
	if err := a.remote.UpdateWorkflow(ctx, existing.ID, store.WorkflowUpdate{IsActive: &inactive}); err != nil {
		return a.fail(ctx, "delete", name, err)
	}
	a.record(ctx, existing.ID, schema.EventWorkflowDeleted, name, folder)

	return ActionResult{Success: true, Message: fmt.Sprintf("Workflow %q deleted", name)}
}

// ToggleActive flips a workflow's active flag. Like Delete, this succeeds
// for local-only records: the mirror is flipped even when the remote has
// nothing to patch.
func (a *Adapter) ToggleActive(ctx context.Context, name, folder string) ActionResult {
	ctx = logging.WithWorkflow(ctx, name)
	if err := a.local.UpdateWorkflows(name, folder, func(wf *schema.SavedWorkflow) {
		wf.Metadata.IsActive = !wf.Metadata.IsActive
	}); err != nil {
		a.logger.WarnContext(ctx, "local mirror toggle failed", "error", err)
	}

	existing, err := a.remote.FindWorkflowByName(ctx, name)
	if err != nil {
		if schema.IsNotFound(err) {
			return ActionResult{Success: true, Message: fmt.Sprintf("Workflow %q toggled", name)}
		}
		return a.fail(ctx, "toggle", name, err)
	}
	active := !existing.IsActive
	if err := a.remote.UpdateWorkflow(ctx, existing.ID, store.WorkflowUpdate{IsActive: &active}); err != nil {
		return a.fail(ctx, "toggle", name, err)
	}
	a.record(ctx, existing.ID, schema.EventWorkflowToggled, name, folder)

	state := "deactivated"
	if active {
		state = "activated"
	}
	return ActionResult{Success: true, Message: fmt.Sprintf("Workflow %q %s", name, state)}
}

// MoveToFolder reassigns a workflow to another folder. The legacy appliance
// value is cleared on the mirror copy so the record is fully migrated.
func (a *Adapter) MoveToFolder(ctx context.Context, name, fromFolder, toFolder string) ActionResult {
	ctx = logging.WithWorkflow(ctx, name)
	if err := a.local.UpdateWorkflows(name, fromFolder, func(wf *schema.SavedWorkflow) {
		wf.Metadata.Folder = toFolder
		wf.Metadata.Appliance = ""
	}); err != nil {
		a.logger.WarnContext(ctx, "local mirror move failed", "error", err)
	}

	existing, err := a.remote.FindWorkflowByName(ctx, name)
	if err != nil {
		if schema.IsNotFound(err) {
			return ActionResult{Success: true, Message: fmt.Sprintf("Workflow %q moved to %q", name, toFolder)}
		}
		return a.fail(ctx, "move", name, err)
	}
	if err := a.remote.UpdateWorkflow(ctx, existing.ID, store.WorkflowUpdate{Folder: &toFolder}); err != nil {
		return a.fail(ctx, "move", name, err)
	}
	a.record(ctx, existing.ID, schema.EventWorkflowMoved, name, toFolder)

	return ActionResult{Success: true, Message: fmt.Sprintf("Workflow %q moved to %q", name, toFolder)}
}

// fail logs the storage error, leaves a notification for the user, and
// converts it into a failed ActionResult.
func (a *Adapter) fail(ctx context.Context, action, name string, err error) ActionResult {
	a.logger.ErrorContext(ctx, "storage action failed", "action", action, "error", err)

	msg := fmt.Sprintf("Could not %s workflow %q. Your changes are kept locally.", action, name)
	details, _ := json.Marshal(map[string]string{"action": action, "workflow": name, "error": err.Error()})
	n := &store.Notification{Type: "sync_failed", Message: msg, Details: details}
	if nerr := a.remote.CreateNotification(ctx, n); nerr != nil {
		a.logger.WarnContext(ctx, "record sync notification failed", "error", nerr)
	}
	return ActionResult{Success: false, Message: msg}
}

// record appends the mutation to the change log and broadcasts it.
// Both are best effort; a full log or closed hub never fails the action.
func (a *Adapter) record(ctx context.Context, workflowID, eventType, name, folder string) {
	if a.changes != nil {
		entry := &store.ChangeEntry{WorkflowID: workflowID, Type: eventType}
		if err := a.changes.Append(ctx, entry); err != nil {
			a.logger.WarnContext(ctx, "append change failed", "event", eventType, "error", err)
		}
	}
	if a.hub != nil {
		event := streaming.ChangeEvent{
			EventType:  eventType,
			WorkflowID: workflowID,
			Workflow:   name,
			Folder:     folder,
		}
		if err := a.hub.Publish(ctx, event); err != nil {
			a.logger.WarnContext(ctx, "publish change event failed", "event", eventType, "error", err)
		}
	}
}
