package license

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repairkit/fixtree/internal/store"
	"github.com/repairkit/fixtree/pkg/schema"
)

func newTestGate(t *testing.T) (*Gate, *store.LibSQLStore) {
	t.Helper()
	s, err := store.NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return NewGate(s, slog.New(slog.NewTextHandler(io.Discard, nil))), s
}

func TestGate_NoSubscriptionUsesStarterLimits(t *testing.T) {
	g, _ := newTestGate(t)
	ctx := context.Background()

	plan, err := g.Plan(ctx)
	require.NoError(t, err)
	assert.Equal(t, PlanStarter, plan)

	// Starter allows one admin; the second is denied.
	require.NoError(t, g.Consume(ctx, ActionAddAdmin))
	err = g.Consume(ctx, ActionAddAdmin)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeLimitExceeded, schema.ErrorCode(err))
}

func TestGate_StrictlyBelowLimit(t *testing.T) {
	g, _ := newTestGate(t)
	ctx := context.Background()

	// Starter caps technicians at 2: exactly 2 consumes succeed.
	require.NoError(t, g.Consume(ctx, ActionAddTechnician))
	require.NoError(t, g.Consume(ctx, ActionAddTechnician))

	err := g.Consume(ctx, ActionAddTechnician)
	require.Error(t, err)

	count, limit, uerr := g.Usage(ctx, ActionAddTechnician)
	require.NoError(t, uerr)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, int64(2), limit)
}

func TestGate_PlanUpgradeRaisesLimit(t *testing.T) {
	g, s := newTestGate(t)
	ctx := context.Background()

	require.NoError(t, g.Consume(ctx, ActionAddAdmin))
	require.Error(t, g.Consume(ctx, ActionAddAdmin))

	require.NoError(t, s.SetSubscription(ctx, &store.Subscription{Plan: PlanProfessional, Status: "active"}))
	require.NoError(t, g.Consume(ctx, ActionAddAdmin))
}

func TestGate_EnterpriseIsUnlimited(t *testing.T) {
	g, s := newTestGate(t)
	ctx := context.Background()
	require.NoError(t, s.SetSubscription(ctx, &store.Subscription{Plan: PlanEnterprise, Status: "active"}))

	for i := 0; i < 50; i++ {
		require.NoError(t, g.Consume(ctx, ActionCreateWorkflow))
	}
}

func TestGate_DenialLeavesNotification(t *testing.T) {
	g, s := newTestGate(t)
	ctx := context.Background()

	require.NoError(t, g.Consume(ctx, ActionAddAdmin))
	require.Error(t, g.Consume(ctx, ActionAddAdmin))

	notes, err := s.ListNotifications(ctx, true, 0)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, schema.EventLimitDenied, notes[0].Type)
	assert.Contains(t, notes[0].Message, "Upgrade your plan")
	assert.JSONEq(t, `{"action":"add_admin","plan":"starter","count":1,"limit":1}`, string(notes[0].Details))
}

func TestGate_StoreErrorDenies(t *testing.T) {
	g, s := newTestGate(t)
	ctx := context.Background()
	require.NoError(t, s.Close())

	err := g.Allow(ctx, ActionCreateWorkflow)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeStore, schema.ErrorCode(err))
}

func TestGate_UnknownAction(t *testing.T) {
	g, _ := newTestGate(t)
	err := g.Allow(context.Background(), "teleport")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))
}

func TestGate_UnknownPlanFallsBackToStarter(t *testing.T) {
	g, s := newTestGate(t)
	ctx := context.Background()
	require.NoError(t, s.SetSubscription(ctx, &store.Subscription{Plan: "legacy-gold", Status: "active"}))

	require.NoError(t, g.Consume(ctx, ActionAddAdmin))
	require.Error(t, g.Consume(ctx, ActionAddAdmin))
}
