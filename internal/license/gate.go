package license

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/repairkit/fixtree/internal/store"
	"github.com/repairkit/fixtree/pkg/schema"
)

// Gate checks metered actions against the subscription's plan limits.
//
// The gate fails closed: a missing subscription means entry-level limits,
// and a store error denies the action rather than waving it through.
type Gate struct {
	store  store.Store
	logger *slog.Logger
}

// NewGate creates a usage gate over the given store.
func NewGate(st store.Store, logger *slog.Logger) *Gate {
	return &Gate{store: st, logger: logger}
}

// Allow reports whether the action may be performed right now. The check
// is strict: the action is allowed only while the current count is below
// the plan's cap, so the cap itself is never exceeded.
func (g *Gate) Allow(ctx context.Context, action string) error {
	limit, plan, err := g.limitFor(ctx, action)
	if err != nil {
		return err
	}
	if limit == Unlimited {
		return nil
	}

	count, err := g.store.GetUsage(ctx, action)
	if err != nil {
		g.logger.ErrorContext(ctx, "usage read failed, denying action", "action", action, "error", err)
		return schema.NewErrorf(schema.ErrCodeStore, "usage for %q unavailable", action).WithCause(err)
	}
	if count < limit {
		return nil
	}
	return g.deny(ctx, action, plan, count, limit)
}

// Consume performs the gate check and, when allowed, counts the action.
func (g *Gate) Consume(ctx context.Context, action string) error {
	if err := g.Allow(ctx, action); err != nil {
		return err
	}
	if _, err := g.store.IncrementUsage(ctx, action); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "count %q failed", action).WithCause(err)
	}
	return nil
}

// Usage returns the current count and cap for an action, for display.
func (g *Gate) Usage(ctx context.Context, action string) (count, limit int64, err error) {
	limit, _, err = g.limitFor(ctx, action)
	if err != nil {
		return 0, 0, err
	}
	count, err = g.store.GetUsage(ctx, action)
	return count, limit, err
}

// Plan returns the effective plan name.
func (g *Gate) Plan(ctx context.Context) (string, error) {
	sub, err := g.store.GetSubscription(ctx)
	if err != nil {
		if schema.IsNotFound(err) {
			return PlanStarter, nil
		}
		return "", err
	}
	return sub.Plan, nil
}

func (g *Gate) limitFor(ctx context.Context, action string) (int64, string, error) {
	plan := PlanStarter
	sub, err := g.store.GetSubscription(ctx)
	switch {
	case err == nil:
		plan = sub.Plan
	case schema.IsNotFound(err):
		// No subscription on record: entry-level limits apply.
	default:
		g.logger.ErrorContext(ctx, "subscription read failed, denying action", "action", action, "error", err)
		return 0, "", schema.NewErrorf(schema.ErrCodeStore, "subscription unavailable").WithCause(err)
	}

	limit, ok := LimitsFor(plan)[action]
	if !ok {
		return 0, "", schema.NewErrorf(schema.ErrCodeValidation, "unknown action %q", action)
	}
	return limit, plan, nil
}

// deny records the refusal so the user sees an upgrade prompt, then
// returns the limit error.
func (g *Gate) deny(ctx context.Context, action, plan string, count, limit int64) error {
	g.logger.InfoContext(ctx, "action denied by plan limit",
		"action", action, "plan", plan, "count", count, "limit", limit)

	details, _ := json.Marshal(map[string]any{
		"action": action, "plan": plan, "count": count, "limit": limit,
	})
	n := &store.Notification{
		Type:    schema.EventLimitDenied,
		Message: fmt.Sprintf("Plan limit reached for %s (%d of %d). Upgrade your plan to continue.", action, count, limit),
		Details: details,
	}
	if err := g.store.CreateNotification(ctx, n); err != nil {
		g.logger.WarnContext(ctx, "record limit notification failed", "error", err)
	}

	return schema.NewErrorf(schema.ErrCodeLimitExceeded,
		"limit reached for %s on the %s plan", action, plan).
		WithDetails(map[string]any{"action": action, "plan": plan, "count": count, "limit": limit})
}
