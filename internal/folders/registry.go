// Package folders manages the named groupings workflows are filed under.
// The "Default" folder always exists, cannot be renamed or deleted, and
// absorbs the members of any folder that is removed.
package folders

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/repairkit/fixtree/internal/store"
	"github.com/repairkit/fixtree/internal/streaming"
	"github.com/repairkit/fixtree/pkg/schema"
)

// Registry is the folder catalog. Folder names come from two places: rows
// explicitly registered here and folders implied by existing workflows
// (including legacy appliance values), so List is always a superset of what
// any single table holds.
type Registry struct {
	store  store.Store
	local  *store.LocalStore
	hub    streaming.EventHub
	logger *slog.Logger
}

// NewRegistry creates a folder registry over the given stores.
func NewRegistry(st store.Store, local *store.LocalStore, hub streaming.EventHub, logger *slog.Logger) *Registry {
	return &Registry{store: st, local: local, hub: hub, logger: logger}
}

// List returns every known folder name. "Default" is always present and
// always first; the rest are sorted. Blank names are dropped.
func (r *Registry) List(ctx context.Context) ([]string, error) {
	seen := map[string]bool{schema.DefaultFolder: true}

	registered, err := r.store.ListFolders(ctx)
	if err != nil {
		return nil, err
	}
	for _, f := range registered {
		if name := strings.TrimSpace(f.Name); name != "" {
			seen[name] = true
		}
	}

	workflows, err := r.store.ListWorkflows(ctx, store.WorkflowFilter{})
	if err != nil {
		return nil, err
	}
	for _, wf := range workflows {
		if name := strings.TrimSpace(wf.Saved().Metadata.EffectiveFolder()); name != "" {
			seen[name] = true
		}
	}

	var rest []string
	for name := range seen {
		if name != schema.DefaultFolder {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append([]string{schema.DefaultFolder}, rest...), nil
}

// Add registers a new folder. The name must be non-blank and not collide
// with any known folder, including ones only implied by workflows.
func (r *Registry) Add(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return schema.NewError(schema.ErrCodeValidation, "Folder name is required")
	}

	known, err := r.List(ctx)
	if err != nil {
		return err
	}
	if contains(known, name) {
		return schema.NewErrorf(schema.ErrCodeConflict, "folder %q already exists", name)
	}

	if err := r.store.CreateFolder(ctx, name); err != nil {
		return err
	}
	r.mirrorFolders(ctx)
	r.publish(ctx, schema.EventFolderAdded, name)
	return nil
}

// Rename changes a folder's name and migrates its workflows. The Default
// folder is protected.
func (r *Registry) Rename(ctx context.Context, oldName, newName string) error {
	if oldName == schema.DefaultFolder {
		return schema.NewError(schema.ErrCodeFolderProtected, "the Default folder cannot be renamed")
	}
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return schema.NewError(schema.ErrCodeValidation, "Folder name is required")
	}
	if newName == oldName {
		return nil
	}

	known, err := r.List(ctx)
	if err != nil {
		return err
	}
	if !contains(known, oldName) {
		return schema.NewErrorf(schema.ErrCodeNotFound, "folder %q not found", oldName)
	}
	if contains(known, newName) {
		return schema.NewErrorf(schema.ErrCodeConflict, "folder %q already exists", newName)
	}

	if err := r.renameEverywhere(ctx, oldName, newName); err != nil {
		return err
	}

	if err := r.local.RenameFolder(oldName, newName); err != nil {
		r.logger.WarnContext(ctx, "local mirror rename failed", "folder", oldName, "error", err)
	}
	r.mirrorFolders(ctx)
	r.publish(ctx, schema.EventFolderRenamed, newName)
	return nil
}

// Delete removes a folder and files its workflows under Default. Returns
// how many workflows were moved. The Default folder is protected.
func (r *Registry) Delete(ctx context.Context, name string) (int64, error) {
	if name == schema.DefaultFolder {
		return 0, schema.NewError(schema.ErrCodeFolderProtected, "the Default folder cannot be deleted")
	}

	known, err := r.List(ctx)
	if err != nil {
		return 0, err
	}
	if !contains(known, name) {
		return 0, schema.NewErrorf(schema.ErrCodeNotFound, "folder %q not found", name)
	}

	moved, err := r.store.ReassignFolder(ctx, name, schema.DefaultFolder)
	if err != nil {
		return 0, err
	}
	// The folder may only have been implied by its workflows, in which case
	// there is no row to delete.
	if err := r.store.DeleteFolder(ctx, name); err != nil && !schema.IsNotFound(err) {
		return moved, err
	}

	if err := r.local.DeleteFolder(name, schema.DefaultFolder); err != nil {
		r.logger.WarnContext(ctx, "local mirror delete failed", "folder", name, "error", err)
	}
	r.mirrorFolders(ctx)
	r.publish(ctx, schema.EventFolderDeleted, name)
	return moved, nil
}

// renameEverywhere moves the folder row and any workflows still carrying
// the old name, covering folders that exist only implicitly.
func (r *Registry) renameEverywhere(ctx context.Context, oldName, newName string) error {
	err := r.store.RenameFolder(ctx, oldName, newName)
	if err == nil {
		return nil
	}
	if schema.IsNotFound(err) {
		// No registered row; the folder lives only on its workflows.
		if err := r.store.CreateFolder(ctx, newName); err != nil {
			return err
		}
		_, err := r.store.ReassignFolder(ctx, oldName, newName)
		return err
	}
	return err
}

func (r *Registry) mirrorFolders(ctx context.Context) {
	names, err := r.List(ctx)
	if err != nil {
		r.logger.WarnContext(ctx, "folder list for mirror failed", "error", err)
		return
	}
	if err := r.local.SetFolders(names); err != nil {
		r.logger.WarnContext(ctx, "local mirror folder write failed", "error", err)
	}
}

func (r *Registry) publish(ctx context.Context, eventType, folder string) {
	if r.hub == nil {
		return
	}
	if err := r.hub.Publish(ctx, streaming.ChangeEvent{EventType: eventType, Folder: folder}); err != nil {
		r.logger.WarnContext(ctx, "publish folder event failed", "event", eventType, "error", err)
	}
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
