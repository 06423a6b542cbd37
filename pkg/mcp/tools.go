package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/repairkit/fixtree/internal/diagram"
	"github.com/repairkit/fixtree/internal/license"
	"github.com/repairkit/fixtree/internal/logging"
	"github.com/repairkit/fixtree/internal/session"
	"github.com/repairkit/fixtree/internal/store"
	"github.com/repairkit/fixtree/pkg/schema"
)

// handleQuery lists workflows, folders, sessions, or change history.
func (s *FixtreeServer) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, denied := s.meter(ctx, req)
	if denied != nil {
		return denied, nil
	}

	resource, err := req.RequireString("resource")
	if err != nil {
		return mcp.NewToolResultError("resource is required"), nil
	}
	filter := mcp.ParseStringMap(req, "filter", nil)

	switch resource {
	case "workflows":
		return s.queryWorkflows(filter)
	case "folders":
		return s.queryFolders(ctx)
	case "sessions":
		return s.querySessions(ctx, filter)
	case "changes":
		return s.queryChanges(ctx, filter)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown resource type: %s", resource)), nil
	}
}

// handleSave validates and persists a workflow. Creating a workflow that
// does not exist yet consumes one create_workflow unit.
func (s *FixtreeServer) handleSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, denied := s.meter(ctx, req)
	if denied != nil {
		return denied, nil
	}

	raw := mcp.ParseStringMap(req, "workflow", nil)
	if raw == nil {
		return mcp.NewToolResultError("workflow is required"), nil
	}

	// Round-trip through JSON to get a typed SavedWorkflow.
	data, err := json.Marshal(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid workflow: %v", err)), nil
	}
	var wf schema.SavedWorkflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid workflow: %v", err)), nil
	}

	result := s.validator.Validate(&wf)
	if !result.Valid() {
		return marshalResult(map[string]any{"saved": false, "validation": result})
	}

	if _, exists := s.service.Get(wf.Metadata.Name, wf.Metadata.EffectiveFolder()); !exists {
		if err := s.gate.Consume(ctx, license.ActionCreateWorkflow); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	action := s.service.Save(ctx, wf)
	return marshalResult(map[string]any{
		"saved":      action.Success,
		"message":    action.Message,
		"validation": result,
	})
}

// handleDiagram renders a workflow in the requested format, optionally
// overlaid with a session's progress.
func (s *FixtreeServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, denied := s.meter(ctx, req)
	if denied != nil {
		return denied, nil
	}

	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name is required"), nil
	}
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	folder := req.GetString("folder", schema.DefaultFolder)

	wf, ok := s.service.Get(name, folder)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("workflow %q not found in folder %q", name, folder)), nil
	}

	var sess *store.SessionRecord
	if sessionID := req.GetString("session_id", ""); sessionID != "" {
		sess, err = s.walker.Get(ctx, sessionID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("session lookup failed: %v", err)), nil
		}
	}

	model, err := diagram.Build(&wf, sess)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("diagram build failed: %v", err)), nil
	}

	switch format {
	case "ascii":
		return mcp.NewToolResultText(diagram.RenderASCII(model)), nil
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	default:
		return mcp.NewToolResultError("format must be ascii or mermaid"), nil
	}
}

// handleDiagnose walks a diagnostic session.
func (s *FixtreeServer) handleDiagnose(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, denied := s.meter(ctx, req)
	if denied != nil {
		return denied, nil
	}

	op, err := req.RequireString("op")
	if err != nil {
		return mcp.NewToolResultError("op is required"), nil
	}

	switch op {
	case "start":
		workflowID := req.GetString("workflow_id", "")
		if workflowID == "" {
			return mcp.NewToolResultError("workflow_id is required for start"), nil
		}
		step, err := s.walker.Start(ctx, workflowID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("start failed: %v", err)), nil
		}
		return stepResult(step)

	case "advance":
		sessionID := req.GetString("session_id", "")
		if sessionID == "" {
			return mcp.NewToolResultError("session_id is required for advance"), nil
		}
		step, err := s.walker.Advance(ctx, sessionID, diagnoseInput(req))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("advance failed: %v", err)), nil
		}
		return stepResult(step)

	case "status":
		sessionID := req.GetString("session_id", "")
		if sessionID == "" {
			return mcp.NewToolResultError("session_id is required for status"), nil
		}
		sess, err := s.walker.Get(ctx, sessionID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("session lookup failed: %v", err)), nil
		}
		return marshalResult(map[string]any{"session": sess})

	case "abandon":
		sessionID := req.GetString("session_id", "")
		if sessionID == "" {
			return mcp.NewToolResultError("session_id is required for abandon"), nil
		}
		sess, err := s.walker.Abandon(ctx, sessionID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("abandon failed: %v", err)), nil
		}
		return marshalResult(map[string]any{"session": sess})

	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown op: %s", op)), nil
	}
}

// --- Query helpers ---

func (s *FixtreeServer) queryWorkflows(filter map[string]any) (*mcp.CallToolResult, error) {
	if folder, ok := filter["folder"].(string); ok && folder != "" {
		return marshalResult(map[string]any{"workflows": s.service.ByFolder(folder)})
	}
	return marshalResult(map[string]any{"workflows": s.service.All()})
}

func (s *FixtreeServer) queryFolders(ctx context.Context) (*mcp.CallToolResult, error) {
	list, err := s.folders.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"folders": list})
}

func (s *FixtreeServer) querySessions(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	sf := store.SessionFilter{Limit: extractInt(filter, "limit", 50)}
	if wfID, ok := filter["workflow"].(string); ok {
		sf.WorkflowID = wfID
	}
	if status, ok := filter["status"].(string); ok && status != "" {
		st := schema.SessionStatus(status)
		sf.Status = &st
	}

	sessions, err := s.walker.List(ctx, sf)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"sessions": sessions})
}

func (s *FixtreeServer) queryChanges(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	name, _ := filter["workflow"].(string)
	if name == "" {
		return mcp.NewToolResultError("change query requires 'workflow' in filter"), nil
	}

	rec, err := s.store.FindWorkflowByName(ctx, name)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	entries, err := s.changes.History(ctx, rec.ID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"workflow_id": rec.ID, "changes": entries})
}

// --- Internal helpers ---

// meter counts the tool call against the plan's API limit and registers the
// calling technician for change notifications. The returned context carries
// the technician as the log actor; the result is non-nil when the plan cap
// is reached and the call must stop.
func (s *FixtreeServer) meter(ctx context.Context, req mcp.CallToolRequest) (context.Context, *mcp.CallToolResult) {
	technicianID := req.GetString("technician_id", "")
	if technicianID != "" {
		ctx = logging.WithActor(ctx, technicianID)
	}
	s.captureClient(ctx, technicianID)
	if err := s.gate.Consume(ctx, license.ActionAPICall); err != nil {
		return ctx, mcp.NewToolResultError(err.Error())
	}
	return ctx, nil
}

// diagnoseInput assembles a walker Input from the tool arguments.
func diagnoseInput(req mcp.CallToolRequest) session.Input {
	input := session.Input{
		Answer:   req.GetString("answer", ""),
		FormData: mcp.ParseStringMap(req, "form_data", nil),
	}
	if v, ok := req.GetArguments()["value"]; ok {
		if value, valueOK := toFloat(v); valueOK {
			input.Measurement = &session.Measurement{
				Value: value,
				Unit:  req.GetString("unit", ""),
			}
		}
	}
	return input
}

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// extractInt safely extracts an integer from a filter map.
func extractInt(filter map[string]any, key string, defaultVal int) int {
	if filter == nil {
		return defaultVal
	}
	v, ok := filter[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

// stepResult shapes a walker step for the agent: where the session now
// stands and what the node asks for next.
func stepResult(step *session.Step) (*mcp.CallToolResult, error) {
	return marshalResult(map[string]any{
		"session": step.Session,
		"node":    step.Node,
		"done":    step.Done,
	})
}

// marshalResult converts a value to a JSON tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
