package workflows

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/repairkit/fixtree/internal/store"
	"github.com/repairkit/fixtree/internal/streaming"
	"github.com/repairkit/fixtree/pkg/schema"
)

// Service keeps the in-memory workflow list the editor works against and
// routes every mutation through the storage adapter. The list is only ever
// replaced wholesale on load; individual actions patch it in place so the
// UI does not flicker through intermediate states.
type Service struct {
	adapter *Adapter
	remote  store.Store
	local   *store.LocalStore
	hub     streaming.EventHub
	logger  *slog.Logger

	mu    sync.RWMutex
	items []schema.SavedWorkflow
}

// NewService creates a workflow list service.
func NewService(adapter *Adapter, remote store.Store, local *store.LocalStore, hub streaming.EventHub, logger *slog.Logger) *Service {
	return &Service{adapter: adapter, remote: remote, local: local, hub: hub, logger: logger}
}

// Load replaces the in-memory list from the remote store and refreshes the
// mirror. When the remote is unreachable the mirror becomes the read
// source; the list is never partially merged from both tiers.
func (s *Service) Load(ctx context.Context) error {
	records, err := s.remote.ListWorkflows(ctx, store.WorkflowFilter{})
	if err != nil {
		s.logger.WarnContext(ctx, "remote load failed, falling back to local mirror", "error", err)
		mirrored, lerr := s.local.Workflows()
		if lerr != nil {
			return fmt.Errorf("load workflows: remote: %w, local: %v", err, lerr)
		}
		s.replace(mirrored)
		return nil
	}

	loaded := make([]schema.SavedWorkflow, 0, len(records))
	for _, rec := range records {
		loaded = append(loaded, rec.Saved())
	}
	s.replace(loaded)

	if err := s.local.ReplaceAll(loaded, s.Folders()); err != nil {
		s.logger.WarnContext(ctx, "mirror refresh failed", "error", err)
	}
	return nil
}

func (s *Service) replace(items []schema.SavedWorkflow) {
	s.mu.Lock()
	s.items = items
	s.mu.Unlock()
}

// All returns a copy of the loaded workflow list.
func (s *Service) All() []schema.SavedWorkflow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]schema.SavedWorkflow, len(s.items))
	copy(out, s.items)
	return out
}

// ByFolder returns the loaded workflows filed under the given folder,
// ordered by their persisted position.
func (s *Service) ByFolder(folder string) []schema.SavedWorkflow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []schema.SavedWorkflow
	for _, wf := range s.items {
		if wf.Metadata.EffectiveFolder() == folder {
			out = append(out, wf)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Metadata.OrderIndex < out[j].Metadata.OrderIndex
	})
	return out
}

// Get returns the loaded workflow with the given name and folder.
func (s *Service) Get(name, folder string) (schema.SavedWorkflow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, wf := range s.items {
		if wf.Metadata.Name == name && wf.Metadata.EffectiveFolder() == folder {
			return wf, true
		}
	}
	return schema.SavedWorkflow{}, false
}

// Folders derives the folder list from the loaded workflows: Default first,
// the rest sorted, blanks dropped.
func (s *Service) Folders() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := map[string]bool{schema.DefaultFolder: true}
	for _, wf := range s.items {
		if name := strings.TrimSpace(wf.Metadata.EffectiveFolder()); name != "" {
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
	return append([]string{schema.DefaultFolder}, rest...)
}

// Save stores the workflow and patches the in-memory list on success.
func (s *Service) Save(ctx context.Context, wf schema.SavedWorkflow) ActionResult {
	result := s.adapter.Save(ctx, wf)
	if !result.Success {
		return result
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].Metadata.Name == wf.Metadata.Name &&
			s.items[i].Metadata.EffectiveFolder() == wf.Metadata.EffectiveFolder() {
			s.items[i] = wf
			return result
		}
	}
	s.items = append(s.items, wf)
	return result
}

// Delete removes the workflow and drops it from the in-memory list on
// success.
func (s *Service) Delete(ctx context.Context, name, folder string) ActionResult {
	result := s.adapter.Delete(ctx, name, folder)
	if !result.Success {
		return result
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.items[:0]
	for _, wf := range s.items {
		if !(wf.Metadata.Name == name && wf.Metadata.EffectiveFolder() == folder) {
			out = append(out, wf)
		}
	}
	s.items = out
	return result
}

// Toggle flips the workflow's active flag and patches the in-memory list
// on success.
func (s *Service) Toggle(ctx context.Context, name, folder string) ActionResult {
	result := s.adapter.ToggleActive(ctx, name, folder)
	if !result.Success {
		return result
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].Metadata.Name == name && s.items[i].Metadata.EffectiveFolder() == folder {
			s.items[i].Metadata.IsActive = !s.items[i].Metadata.IsActive
		}
	}
	return result
}

// Move reassigns the workflow to another folder. A move changes which
// lists the workflow appears in, so the whole list is reloaded rather
// than patched.
func (s *Service) Move(ctx context.Context, name, fromFolder, toFolder string) ActionResult {
	result := s.adapter.MoveToFolder(ctx, name, fromFolder, toFolder)
	if !result.Success {
		return result
	}
	if err := s.Load(ctx); err != nil {
		s.logger.WarnContext(ctx, "reload after move failed", "workflow", name, "error", err)
	}
	return result
}

// Reorder persists a new ordering for the workflows in a folder. Positions
// are written as order indexes so the ordering survives reloads. Names not
// currently in the folder are ignored.
func (s *Service) Reorder(ctx context.Context, folder string, orderedNames []string) ActionResult {
	position := make(map[string]int, len(orderedNames))
	for i, name := range orderedNames {
		position[name] = i
	}

	var failed bool
	for _, wf := range s.ByFolder(folder) {
		idx, ok := position[wf.Metadata.Name]
		if !ok || wf.Metadata.OrderIndex == idx {
			continue
		}
		if err := s.persistOrder(ctx, wf.Metadata.Name, folder, idx); err != nil {
			s.logger.ErrorContext(ctx, "persist order failed", "workflow", wf.Metadata.Name, "error", err)
			failed = true
		}
	}
	if failed {
		return ActionResult{Success: false, Message: fmt.Sprintf("Could not reorder folder %q", folder)}
	}

	s.mu.Lock()
	for i := range s.items {
		if s.items[i].Metadata.EffectiveFolder() != folder {
			continue
		}
		if idx, ok := position[s.items[i].Metadata.Name]; ok {
			s.items[i].Metadata.OrderIndex = idx
		}
	}
	s.mu.Unlock()

	if s.hub != nil {
		_ = s.hub.Publish(ctx, streaming.ChangeEvent{
			EventType: schema.EventWorkflowReordered,
			Folder:    folder,
		})
	}
	return ActionResult{Success: true, Message: fmt.Sprintf("Folder %q reordered", folder)}
}

func (s *Service) persistOrder(ctx context.Context, name, folder string, idx int) error {
	if err := s.local.UpdateWorkflows(name, folder, func(wf *schema.SavedWorkflow) {
		wf.Metadata.OrderIndex = idx
	}); err != nil {
		s.logger.WarnContext(ctx, "local mirror reorder failed", "workflow", name, "error", err)
	}

	existing, err := s.remote.FindWorkflowByName(ctx, name)
	if err != nil {
		if schema.IsNotFound(err) {
			return nil
		}
		return err
	}
	return s.remote.UpdateWorkflow(ctx, existing.ID, store.WorkflowUpdate{OrderIndex: &idx})
}
