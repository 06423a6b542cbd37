package workflows

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repairkit/fixtree/internal/logging"
	"github.com/repairkit/fixtree/internal/store"
	"github.com/repairkit/fixtree/internal/streaming"
	"github.com/repairkit/fixtree/pkg/schema"
)

type testEnv struct {
	remote  *store.LibSQLStore
	local   *store.LocalStore
	changes *store.ChangeLog
	hub     *streaming.MemoryHub
	adapter *Adapter
	service *Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	remote, err := store.NewLibSQLStore("file:" + filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	require.NoError(t, remote.Migrate(context.Background()))
	t.Cleanup(func() { _ = remote.Close() })

	local := store.NewLocalStore(filepath.Join(dir, "mirror.json"))
	changes := store.NewChangeLog(remote)
	hub := streaming.NewMemoryHub()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	adapter := NewAdapter(remote, local, changes, hub, logger)
	service := NewService(adapter, remote, local, hub, logger)
	return &testEnv{remote: remote, local: local, changes: changes, hub: hub, adapter: adapter, service: service}
}

func iceMakerJam() schema.SavedWorkflow {
	opt0, opt1 := 0, 1
	return schema.SavedWorkflow{
		Metadata: schema.WorkflowMetadata{Name: "Ice Maker Jam", Folder: "Refrigerators", IsActive: true},
		Nodes: []schema.Node{
			{ID: "n1", Type: schema.NodeTypeStart, Label: "Start"},
			{ID: "n2", Type: schema.NodeTypeQuestion, Label: "Is the ice maker switched on?", Options: []string{"Yes", "No"}},
			{ID: "n3", Type: schema.NodeTypeAction, Label: "Inspect the fill tube for ice blockage"},
			{ID: "n4", Type: schema.NodeTypeSolution, Label: "Switch the ice maker on and wait 24 hours"},
		},
		Edges: []schema.Edge{
			{ID: "e1", Source: "n1", Target: "n2"},
			{ID: "e2", Source: "n2", Target: "n3", OptionIndex: &opt0},
			{ID: "e3", Source: "n2", Target: "n4", OptionIndex: &opt1},
		},
		NodeCounter: 4,
	}
}

func TestAdapterSave_CreatesThenPatches(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result := env.adapter.Save(ctx, iceMakerJam())
	require.True(t, result.Success, result.Message)

	rec, err := env.remote.FindWorkflowByName(ctx, "Ice Maker Jam")
	require.NoError(t, err)
	assert.Equal(t, "Refrigerators", rec.Folder)
	assert.Len(t, rec.Definition.Nodes, 4)

	// Saving again patches the existing record instead of creating a new one.
	updated := iceMakerJam()
	updated.NodeCounter = 9
	result = env.adapter.Save(ctx, updated)
	require.True(t, result.Success)

	all, err := env.remote.ListWorkflows(ctx, store.WorkflowFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, rec.ID, all[0].ID)
	assert.Equal(t, 9, all[0].Definition.NodeCounter)

	// Mirror holds the saved copy too.
	mirrored, err := env.local.Workflows()
	require.NoError(t, err)
	require.Len(t, mirrored, 1)
	assert.Equal(t, 9, mirrored[0].NodeCounter)

	// Both saves are in the change log under the same workflow ID.
	changes, err := env.remote.GetChanges(ctx, rec.ID, 0)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, schema.EventWorkflowSaved, changes[0].Type)
}

func TestAdapterSave_RemoteFailureIsCaught(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Closing the database makes every remote call fail.
	require.NoError(t, env.remote.Close())

	result := env.adapter.Save(ctx, iceMakerJam())
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "Ice Maker Jam")

	// The mirror mutation still happened, so nothing is lost.
	mirrored, err := env.local.Workflows()
	require.NoError(t, err)
	assert.Len(t, mirrored, 1)
}

func TestAdapterSave_FailureLeavesNotification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Seed the same name in two folders, then save into the folder the
	// other record occupies. The remote patch hits the (name, folder)
	// unique constraint and fails while the store itself stays healthy.
	now := time.Now().UTC()
	require.NoError(t, env.remote.CreateWorkflow(ctx, &store.WorkflowRecord{
		ID: "wf-a", Name: "Ice Maker Jam", Folder: "Refrigerators",
		CreatedAt: now.Add(-time.Hour), UpdatedAt: now.Add(-time.Hour),
	}))
	require.NoError(t, env.remote.CreateWorkflow(ctx, &store.WorkflowRecord{
		ID: "wf-b", Name: "Ice Maker Jam", Folder: "Freezers",
		CreatedAt: now, UpdatedAt: now,
	}))

	// The freshest record (wf-b) is the patch target; moving it into
	// Refrigerators collides with wf-a.
	a := iceMakerJam()
	a.Metadata.Folder = "Refrigerators"
	result := env.adapter.Save(ctx, a)
	require.False(t, result.Success)

	notes, err := env.remote.ListNotifications(ctx, true, 0)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "sync_failed", notes[0].Type)
	assert.Contains(t, notes[0].Message, "Ice Maker Jam")
}

func TestAdapterDelete_LocalOnlyRecordSucceeds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Record exists only in the mirror.
	require.NoError(t, env.local.PutWorkflow(schema.SavedWorkflow{
		Metadata: schema.WorkflowMetadata{Name: "Orphan", Folder: "Dryers"},
	}))

	result := env.adapter.Delete(ctx, "Orphan", "Dryers")
	assert.True(t, result.Success)

	mirrored, err := env.local.Workflows()
	require.NoError(t, err)
	assert.Empty(t, mirrored)

	// Deleting something that exists nowhere is still a success.
	assert.True(t, env.adapter.Delete(ctx, "Orphan", "Dryers").Success)
}

func TestAdapterDelete_MarksRemoteInactiveKeepsRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.True(t, env.adapter.Save(ctx, iceMakerJam()).Success)

	result := env.adapter.Delete(ctx, "Ice Maker Jam", "Refrigerators")
	require.True(t, result.Success)

	// The remote row survives, marked inactive, so its change history and
	// past sessions keep their referent.
	rec, err := env.remote.FindWorkflowByName(ctx, "Ice Maker Jam")
	require.NoError(t, err)
	assert.False(t, rec.IsActive)

	// Only the mirror entry is filtered out.
	mirrored, err := env.local.Workflows()
	require.NoError(t, err)
	assert.Empty(t, mirrored)
}

func TestAdapter_LogsCarryWorkflowCorrelation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var buf bytes.Buffer
	logger := slog.New(logging.NewCorrelationHandler(slog.NewJSONHandler(&buf, nil)))
	adapter := NewAdapter(env.remote, env.local, env.changes, env.hub, logger)

	// Force a remote failure so the adapter logs an error.
	require.NoError(t, env.remote.Close())
	result := adapter.Save(ctx, iceMakerJam())
	require.False(t, result.Success)

	assert.Contains(t, buf.String(), `"workflow":"Ice Maker Jam"`)
}

func TestAdapterToggle_FlipsBothTiers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.True(t, env.adapter.Save(ctx, iceMakerJam()).Success)

	result := env.adapter.ToggleActive(ctx, "Ice Maker Jam", "Refrigerators")
	require.True(t, result.Success)
	assert.Contains(t, result.Message, "deactivated")

	rec, err := env.remote.FindWorkflowByName(ctx, "Ice Maker Jam")
	require.NoError(t, err)
	assert.False(t, rec.IsActive)

	mirrored, err := env.local.Workflows()
	require.NoError(t, err)
	require.Len(t, mirrored, 1)
	assert.False(t, mirrored[0].Metadata.IsActive)

	// Toggling back reactivates.
	result = env.adapter.ToggleActive(ctx, "Ice Maker Jam", "Refrigerators")
	require.True(t, result.Success)
	assert.Contains(t, result.Message, "activated")
}

func TestAdapterToggle_LocalOnlyRecordSucceeds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.local.PutWorkflow(schema.SavedWorkflow{
		Metadata: schema.WorkflowMetadata{Name: "Orphan", Folder: "Dryers", IsActive: true},
	}))

	result := env.adapter.ToggleActive(ctx, "Orphan", "Dryers")
	assert.True(t, result.Success)

	mirrored, err := env.local.Workflows()
	require.NoError(t, err)
	require.Len(t, mirrored, 1)
	assert.False(t, mirrored[0].Metadata.IsActive)
}

func TestAdapterMove_ReassignsFolderAndClearsAppliance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	legacy := iceMakerJam()
	legacy.Metadata.Folder = ""
	legacy.Metadata.Appliance = "Fridges"
	require.True(t, env.adapter.Save(ctx, legacy).Success)

	result := env.adapter.MoveToFolder(ctx, "Ice Maker Jam", "Fridges", "Refrigerators")
	require.True(t, result.Success)

	rec, err := env.remote.FindWorkflowByName(ctx, "Ice Maker Jam")
	require.NoError(t, err)
	assert.Equal(t, "Refrigerators", rec.Folder)

	mirrored, err := env.local.Workflows()
	require.NoError(t, err)
	require.Len(t, mirrored, 1)
	assert.Equal(t, "Refrigerators", mirrored[0].Metadata.Folder)
	assert.Empty(t, mirrored[0].Metadata.Appliance)
}

func TestAdapter_PublishesChangeEvents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ch, cancel, err := env.hub.Subscribe(ctx, streaming.EventFilter{
		EventTypes: []string{schema.EventWorkflowSaved, schema.EventWorkflowDeleted},
	})
	require.NoError(t, err)
	defer cancel()

	require.True(t, env.adapter.Save(ctx, iceMakerJam()).Success)
	require.True(t, env.adapter.Delete(ctx, "Ice Maker Jam", "Refrigerators").Success)

	var types []string
	for i := 0; i < 2; i++ {
		select {
		case got := <-ch:
			types = append(types, got.EventType)
			assert.Equal(t, "Ice Maker Jam", got.Workflow)
		default:
			t.Fatal("expected buffered change event")
		}
	}
	assert.Equal(t, []string{schema.EventWorkflowSaved, schema.EventWorkflowDeleted}, types)
}
