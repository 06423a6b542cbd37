// Package api exposes the workflow editor's operations over JSON HTTP:
// workflow CRUD and actions, folder management, diagnostic sessions, usage
// queries, and an SSE stream of change events.
package api

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/repairkit/fixtree/internal/folders"
	"github.com/repairkit/fixtree/internal/license"
	"github.com/repairkit/fixtree/internal/session"
	"github.com/repairkit/fixtree/internal/store"
	"github.com/repairkit/fixtree/internal/streaming"
	"github.com/repairkit/fixtree/internal/validation"
	"github.com/repairkit/fixtree/internal/workflows"
)

// Deps holds the dependencies for the API server.
type Deps struct {
	Store     store.Store
	Changes   *store.ChangeLog
	Service   *workflows.Service
	Folders   *folders.Registry
	Sessions  *session.Walker
	Gate      *license.Gate
	Validator *validation.WorkflowValidator
	Hub       streaming.EventHub
	Logger    *slog.Logger
}

// Server serves the JSON API.
type Server struct {
	deps Deps
}

// NewServer creates an API server.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Server{deps: deps}
}

// Handler returns the HTTP handler with all API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Workflows. Named routes carry the workflow into the log context.
	mux.HandleFunc("GET /api/workflows", s.handleListWorkflows)
	mux.HandleFunc("GET /api/workflows/{name}", withWorkflowName(s.handleGetWorkflow))
	mux.HandleFunc("POST /api/workflows", s.handleSaveWorkflow)
	mux.HandleFunc("POST /api/workflows/validate", s.handleValidateWorkflow)
	mux.HandleFunc("DELETE /api/workflows/{name}", withWorkflowName(s.handleDeleteWorkflow))
	mux.HandleFunc("POST /api/workflows/{name}/toggle", withWorkflowName(s.handleToggleWorkflow))
	mux.HandleFunc("POST /api/workflows/{name}/move", withWorkflowName(s.handleMoveWorkflow))
	mux.HandleFunc("GET /api/workflows/{name}/diagram", withWorkflowName(s.handleWorkflowDiagram))
	mux.HandleFunc("GET /api/workflows/{name}/changes", withWorkflowName(s.handleWorkflowChanges))

	// Folders.
	mux.HandleFunc("GET /api/folders", s.handleListFolders)
	mux.HandleFunc("POST /api/folders", s.handleAddFolder)
	mux.HandleFunc("POST /api/folders/{name}/rename", s.handleRenameFolder)
	mux.HandleFunc("POST /api/folders/{name}/reorder", s.handleReorderFolder)
	mux.HandleFunc("DELETE /api/folders/{name}", s.handleDeleteFolder)

	// Diagnostic sessions.
	mux.HandleFunc("POST /api/sessions", s.handleStartSession)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("POST /api/sessions/{id}/advance", s.handleAdvanceSession)
	mux.HandleFunc("POST /api/sessions/{id}/abandon", s.handleAbandonSession)

	// Plan and notifications.
	mux.HandleFunc("GET /api/usage", s.handleUsage)
	mux.HandleFunc("GET /api/notifications", s.handleListNotifications)
	mux.HandleFunc("POST /api/notifications/{id}/read", s.handleMarkNotificationRead)

	// SSE stream.
	mux.HandleFunc("GET /api/events", s.handleSSE)

	return withCorrelation(mux)
}
