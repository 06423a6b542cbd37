package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/server"

	"github.com/repairkit/fixtree/internal/streaming"
)

// StartEventBridge subscribes to the change event hub and pushes every
// matching event to connected MCP clients as a notifications/message. It
// blocks until ctx is cancelled; run it in its own goroutine.
func (s *FixtreeServer) StartEventBridge(ctx context.Context, filter streaming.EventFilter) error {
	ch, cancel, err := s.hub.Subscribe(ctx, filter)
	if err != nil {
		return err
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-ch:
			if !ok {
				return nil
			}
			s.broadcast(event)
		}
	}
}

// broadcast pushes one change event to every connected client. Best effort:
// an expired session is dropped from the registry, nothing else is retried.
func (s *FixtreeServer) broadcast(event streaming.ChangeEvent) {
	payload := map[string]any{
		"event":    event.EventType,
		"workflow": event.Workflow,
		"folder":   event.Folder,
	}
	for _, sessionID := range s.clients.SessionIDs() {
		err := s.mcpServer.SendNotificationToSpecificClient(sessionID, "notifications/message", payload)
		if errors.Is(err, server.ErrSessionNotFound) {
			s.clients.Remove(sessionID)
			continue
		}
		if err != nil {
			s.logger.Warn("push change event failed", "session", sessionID, "error", err)
		}
	}
}

// captureClient maps the technician to the current MCP session so change
// events can be pushed back to them.
func (s *FixtreeServer) captureClient(ctx context.Context, technicianID string) {
	if technicianID == "" {
		return
	}
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.clients.Register(technicianID, session.SessionID())
	}
}
