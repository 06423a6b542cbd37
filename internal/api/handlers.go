package api

import (
	"net/http"
	"strconv"

	"github.com/repairkit/fixtree/internal/diagram"
	"github.com/repairkit/fixtree/internal/license"
	"github.com/repairkit/fixtree/internal/session"
	"github.com/repairkit/fixtree/internal/store"
	"github.com/repairkit/fixtree/internal/workflows"
	"github.com/repairkit/fixtree/pkg/schema"
)

// --- Workflows ---

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	if folder := r.URL.Query().Get("folder"); folder != "" {
		writeJSON(w, http.StatusOK, map[string]any{
			"folder":    folder,
			"workflows": s.deps.Service.ByFolder(folder),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflows": s.deps.Service.All()})
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	folder := folderParam(r)

	wf, ok := s.deps.Service.Get(name, folder)
	if !ok {
		writeError(w, schema.NewErrorf(schema.ErrCodeNotFound,
			"workflow %q not found in folder %q", name, folder))
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) handleSaveWorkflow(w http.ResponseWriter, r *http.Request) {
	var wf schema.SavedWorkflow
	if err := decodeBody(r, &wf); err != nil {
		writeError(w, err)
		return
	}

	result := s.deps.Validator.Validate(&wf)
	if !result.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]any{"validation": result})
		return
	}

	// Creating a workflow is metered; updating an existing one is not.
	if _, exists := s.deps.Service.Get(wf.Metadata.Name, wf.Metadata.EffectiveFolder()); !exists {
		if err := s.deps.Gate.Consume(r.Context(), license.ActionCreateWorkflow); err != nil {
			writeError(w, err)
			return
		}
	}

	action := s.deps.Service.Save(r.Context(), wf)
	writeActionResult(w, action, map[string]any{"validation": result})
}

func (s *Server) handleValidateWorkflow(w http.ResponseWriter, r *http.Request) {
	var wf schema.SavedWorkflow
	if err := decodeBody(r, &wf); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"validation": s.deps.Validator.Validate(&wf)})
}

func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	result := s.deps.Service.Delete(r.Context(), r.PathValue("name"), folderParam(r))
	writeActionResult(w, result, nil)
}

func (s *Server) handleToggleWorkflow(w http.ResponseWriter, r *http.Request) {
	result := s.deps.Service.Toggle(r.Context(), r.PathValue("name"), folderParam(r))
	writeActionResult(w, result, nil)
}

func (s *Server) handleMoveWorkflow(w http.ResponseWriter, r *http.Request) {
	var body struct {
		From string `json:"from"`
		To   string `json:"to"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.To == "" {
		writeError(w, schema.NewError(schema.ErrCodeValidation, "target folder is required"))
		return
	}
	if body.From == "" {
		body.From = schema.DefaultFolder
	}

	result := s.deps.Service.Move(r.Context(), r.PathValue("name"), body.From, body.To)
	writeActionResult(w, result, nil)
}

func (s *Server) handleWorkflowDiagram(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	folder := folderParam(r)

	wf, ok := s.deps.Service.Get(name, folder)
	if !ok {
		writeError(w, schema.NewErrorf(schema.ErrCodeNotFound,
			"workflow %q not found in folder %q", name, folder))
		return
	}

	var sess *store.SessionRecord
	if sessionID := r.URL.Query().Get("session"); sessionID != "" {
		var err error
		sess, err = s.deps.Sessions.Get(r.Context(), sessionID)
		if err != nil {
			writeError(w, err)
			return
		}
	}

	model, err := diagram.Build(&wf, sess)
	if err != nil {
		writeError(w, schema.NewError(schema.ErrCodeValidation, err.Error()).WithCause(err))
		return
	}

	var rendered string
	format := r.URL.Query().Get("format")
	switch format {
	case "", "mermaid":
		format = "mermaid"
		rendered = diagram.RenderMermaid(model)
	case "ascii":
		rendered = diagram.RenderASCII(model)
	default:
		writeError(w, schema.NewErrorf(schema.ErrCodeValidation, "unknown diagram format %q", format))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"format": format, "diagram": rendered})
}

func (s *Server) handleWorkflowChanges(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	rec, err := s.deps.Store.FindWorkflowByName(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	entries, err := s.deps.Changes.History(r.Context(), rec.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflow_id": rec.ID, "changes": entries})
}

// writeActionResult maps an adapter ActionResult to a response. Failed
// actions come back 502: the change is safe in the local mirror but the
// remote write did not go through.
func writeActionResult(w http.ResponseWriter, result workflows.ActionResult, extra map[string]any) {
	body := map[string]any{"success": result.Success, "message": result.Message}
	for k, v := range extra {
		body[k] = v
	}
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, body)
}

// --- Folders ---

func (s *Server) handleListFolders(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Folders.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"folders": list})
}

func (s *Server) handleAddFolder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Folders.Add(r.Context(), body.Name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"name": body.Name})
}

func (s *Server) handleRenameFolder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		To string `json:"to"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Folders.Rename(r.Context(), r.PathValue("name"), body.To); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": body.To})
}

func (s *Server) handleReorderFolder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Names []string `json:"names"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	result := s.deps.Service.Reorder(r.Context(), r.PathValue("name"), body.Names)
	writeActionResult(w, result, nil)
}

func (s *Server) handleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	moved, err := s.deps.Folders.Delete(r.Context(), r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"moved_workflows": moved})
}

// --- Diagnostic sessions ---

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		WorkflowID string `json:"workflow_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.WorkflowID == "" {
		writeError(w, schema.NewError(schema.ErrCodeValidation, "workflow_id is required"))
		return
	}

	step, err := s.deps.Sessions.Start(r.Context(), body.WorkflowID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, step)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	filter := store.SessionFilter{
		WorkflowID: r.URL.Query().Get("workflow_id"),
	}
	if st := r.URL.Query().Get("status"); st != "" {
		status := schema.SessionStatus(st)
		filter.Status = &status
	}

	sessions, err := s.deps.Sessions.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.deps.Sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleAdvanceSession(w http.ResponseWriter, r *http.Request) {
	var input session.Input
	if err := decodeBody(r, &input); err != nil {
		writeError(w, err)
		return
	}

	step, err := s.deps.Sessions.Advance(r.Context(), r.PathValue("id"), input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, step)
}

func (s *Server) handleAbandonSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.deps.Sessions.Abandon(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// --- Plan and notifications ---

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	plan, err := s.deps.Gate.Plan(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	usage := make(map[string]map[string]int64)
	for action := range license.LimitsFor(plan) {
		count, limit, err := s.deps.Gate.Usage(r.Context(), action)
		if err != nil {
			writeError(w, err)
			return
		}
		usage[action] = map[string]int64{"count": count, "limit": limit}
	}
	writeJSON(w, http.StatusOK, map[string]any{"plan": plan, "usage": usage})
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	unreadOnly := r.URL.Query().Get("unread") == "true"
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	notes, err := s.deps.Store.ListNotifications(r.Context(), unreadOnly, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": notes})
}

func (s *Server) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, schema.NewError(schema.ErrCodeValidation, "invalid notification id"))
		return
	}
	if err := s.deps.Store.MarkNotificationRead(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"read": true})
}
