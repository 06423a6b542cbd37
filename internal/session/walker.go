// Package session runs guided diagnostic sessions: a technician walks a
// workflow graph one node at a time, answering questions and recording
// measurements until a solution is reached.
package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/repairkit/fixtree/internal/expressions"
	"github.com/repairkit/fixtree/internal/license"
	"github.com/repairkit/fixtree/internal/logging"
	"github.com/repairkit/fixtree/internal/store"
	"github.com/repairkit/fixtree/internal/streaming"
	"github.com/repairkit/fixtree/pkg/schema"
)

// Measurement is a numeric reading taken at a measurement or test node.
type Measurement struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

// Input carries the technician's response to the current node. Which field
// is read depends on the node type: Answer for questions, Measurement for
// measurement and test nodes, FormData for data-collection and form nodes.
type Input struct {
	Answer      string         `json:"answer,omitempty"`
	Measurement *Measurement   `json:"measurement,omitempty"`
	FormData    map[string]any `json:"form_data,omitempty"`
}

// Step is the walker's view of a session after a transition: the updated
// record, the node the technician now stands on, and whether the run ended.
type Step struct {
	Session *store.SessionRecord `json:"session"`
	Node    *schema.Node         `json:"node"`
	Done    bool                 `json:"done"`
}

// Walker advances diagnostic sessions through workflow graphs. Each started
// run is metered against the plan's diagnostic limit.
type Walker struct {
	store   store.Store
	engines *expressions.Registry
	gate    *license.Gate
	hub     streaming.EventHub
	logger  *slog.Logger
}

// NewWalker creates a session walker.
func NewWalker(st store.Store, engines *expressions.Registry, gate *license.Gate, hub streaming.EventHub, logger *slog.Logger) *Walker {
	return &Walker{store: st, engines: engines, gate: gate, hub: hub, logger: logger}
}

// Start begins a session on the given workflow, positioned at its start
// node. Starting consumes one run_diagnostic unit; a denied gate check is
// returned unchanged so callers can surface the upgrade prompt.
func (w *Walker) Start(ctx context.Context, workflowID string) (*Step, error) {
	if err := w.gate.Consume(ctx, license.ActionRunDiagnostic); err != nil {
		return nil, err
	}

	wf, err := w.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithWorkflow(ctx, wf.Name)
	if !wf.IsActive {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "workflow %q is inactive", wf.Name)
	}

	graph := &schema.Graph{Nodes: wf.Definition.Nodes, Edges: wf.Definition.Edges}
	start := graph.StartNode()
	if start == nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "workflow %q has no start node", wf.Name)
	}

	now := time.Now().UTC()
	sess := &store.SessionRecord{
		ID:           uuid.NewString(),
		WorkflowID:   wf.ID,
		Status:       schema.SessionStatusActive,
		CurrentNode:  start.ID,
		Answers:      json.RawMessage(`{}`),
		Measurements: json.RawMessage(`{}`),
		StartedAt:    now,
		UpdatedAt:    now,
	}
	if err := w.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}

	w.logger.InfoContext(ctx, "session started",
		"session_id", sess.ID, "node", start.ID)
	w.publish(ctx, schema.EventSessionStarted, wf, sess)

	return &Step{Session: sess, Node: start}, nil
}

// Advance applies the technician's input to the current node and moves the
// session along the matching edge. Reaching a solution node completes the
// session.
func (w *Walker) Advance(ctx context.Context, sessionID string, input Input) (*Step, error) {
	sess, err := w.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != schema.SessionStatusActive {
		return nil, schema.NewErrorf(schema.ErrCodeSessionClosed,
			"session %s is %s", sess.ID, sess.Status)
	}

	wf, err := w.store.GetWorkflow(ctx, sess.WorkflowID)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithWorkflow(ctx, wf.Name)

	graph := &schema.Graph{Nodes: wf.Definition.Nodes, Edges: wf.Definition.Edges}
	current := graph.NodeByID(sess.CurrentNode)
	if current == nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"current node %q no longer exists in workflow %q", sess.CurrentNode, wf.Name).
			WithNode(sess.CurrentNode)
	}

	answers, err := decodeMap(sess.Answers)
	if err != nil {
		return nil, err
	}
	measurements, err := decodeMap(sess.Measurements)
	if err != nil {
		return nil, err
	}
	w.recordInput(current, input, answers, measurements)

	next, err := w.nextNode(ctx, graph, current, input, answers, measurements, wf, sess)
	if err != nil {
		return nil, err
	}

	update := store.SessionUpdate{CurrentNode: &next.ID}
	if update.Answers, err = json.Marshal(answers); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "encode answers").WithCause(err)
	}
	if update.Measurements, err = json.Marshal(measurements); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "encode measurements").WithCause(err)
	}

	done := next.Type == schema.NodeTypeSolution
	if done {
		completed := schema.SessionStatusCompleted
		now := time.Now().UTC()
		update.Status = &completed
		update.CompletedAt = &now
	}

	if err := w.store.UpdateSession(ctx, sessionID, update); err != nil {
		return nil, err
	}
	sess, err = w.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if done {
		w.logger.InfoContext(ctx, "session completed",
			"session_id", sess.ID, "solution", next.ID)
		w.publish(ctx, schema.EventSessionCompleted, wf, sess)
	} else {
		w.publish(ctx, schema.EventSessionAdvanced, wf, sess)
	}

	return &Step{Session: sess, Node: next, Done: done}, nil
}

// Abandon closes an active session without completing it.
func (w *Walker) Abandon(ctx context.Context, sessionID string) (*store.SessionRecord, error) {
	sess, err := w.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != schema.SessionStatusActive {
		return nil, schema.NewErrorf(schema.ErrCodeSessionClosed,
			"session %s is %s", sess.ID, sess.Status)
	}

	abandoned := schema.SessionStatusAbandoned
	now := time.Now().UTC()
	err = w.store.UpdateSession(ctx, sessionID, store.SessionUpdate{
		Status:      &abandoned,
		CompletedAt: &now,
	})
	if err != nil {
		return nil, err
	}
	return w.store.GetSession(ctx, sessionID)
}

// Get returns a session by ID.
func (w *Walker) Get(ctx context.Context, sessionID string) (*store.SessionRecord, error) {
	return w.store.GetSession(ctx, sessionID)
}

// List returns sessions matching the filter.
func (w *Walker) List(ctx context.Context, filter store.SessionFilter) ([]*store.SessionRecord, error) {
	return w.store.ListSessions(ctx, filter)
}

// recordInput stores the technician's response under the current node's ID.
func (w *Walker) recordInput(node *schema.Node, input Input, answers, measurements map[string]any) {
	switch node.Type {
	case schema.NodeTypeQuestion:
		if input.Answer != "" {
			answers[node.ID] = input.Answer
		}
	case schema.NodeTypeMeasurement, schema.NodeTypeTest, schema.NodeTypeEquipmentTest:
		if input.Measurement != nil {
			m := map[string]any{"value": input.Measurement.Value}
			if input.Measurement.Unit != "" {
				m["unit"] = input.Measurement.Unit
			}
			if specs := node.TechnicalSpecs; specs != nil && specs.Range != nil {
				m["in_range"] = input.Measurement.Value >= specs.Range.Min &&
					input.Measurement.Value <= specs.Range.Max
			}
			measurements[node.ID] = m
		}
	case schema.NodeTypeDataCollection, schema.NodeTypeDataForm, schema.NodeTypePhotoCapture:
		if input.FormData != nil {
			answers[node.ID] = input.FormData
		}
	}
}

// nextNode picks the outgoing edge to follow from the current node.
//
// Questions follow the edge whose optionIndex matches the chosen answer.
// Conditional edges are evaluated in definition order against the session
// data; the first truthy condition wins, and an unconditional edge acts as
// the fallback. Nodes with a single unconditional edge just follow it.
func (w *Walker) nextNode(ctx context.Context, graph *schema.Graph, current *schema.Node, input Input, answers, measurements map[string]any, wf *store.WorkflowRecord, sess *store.SessionRecord) (*schema.Node, error) {
	edges := graph.OutgoingEdges(current.ID)
	if len(edges) == 0 {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"node %q has no outgoing connections", current.ID).WithNode(current.ID)
	}

	if current.Type == schema.NodeTypeQuestion {
		return w.followOption(graph, current, input, edges)
	}

	data := map[string]any{
		"answers":      answers,
		"measurements": measurements,
		"workflow":     map[string]any{"name": wf.Name, "folder": wf.Folder},
		"session":      map[string]any{"id": sess.ID, "current_node": current.ID},
	}

	var fallback *schema.Edge
	for i := range edges {
		e := &edges[i]
		if e.Condition == "" {
			if fallback == nil {
				fallback = e
			}
			continue
		}

		engine, err := w.engines.Get(e.Engine)
		if err != nil {
			return nil, err
		}
		out, err := engine.Evaluate(ctx, e.Condition, data)
		if err != nil {
			return nil, err
		}
		if expressions.Truthy(out) {
			return w.resolveTarget(graph, e)
		}
	}

	if fallback == nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"no branch condition matched at node %q", current.ID).WithNode(current.ID)
	}
	return w.resolveTarget(graph, fallback)
}

// followOption resolves a question answer to its option-indexed edge.
func (w *Walker) followOption(graph *schema.Graph, current *schema.Node, input Input, edges []schema.Edge) (*schema.Node, error) {
	idx := -1
	for i, opt := range current.Options {
		if opt == input.Answer {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"answer %q is not an option of node %q", input.Answer, current.ID).
			WithNode(current.ID)
	}

	var fallback *schema.Edge
	for i := range edges {
		e := &edges[i]
		if e.OptionIndex == nil {
			if fallback == nil {
				fallback = e
			}
			continue
		}
		if *e.OptionIndex == idx {
			return w.resolveTarget(graph, e)
		}
	}

	if fallback == nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"no branch wired for answer %q at node %q", input.Answer, current.ID).
			WithNode(current.ID)
	}
	return w.resolveTarget(graph, fallback)
}

func (w *Walker) resolveTarget(graph *schema.Graph, e *schema.Edge) (*schema.Node, error) {
	target := graph.NodeByID(e.Target)
	if target == nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"edge %q points at missing node %q", e.ID, e.Target)
	}
	return target, nil
}

func (w *Walker) publish(ctx context.Context, eventType string, wf *store.WorkflowRecord, sess *store.SessionRecord) {
	if w.hub == nil {
		return
	}
	err := w.hub.Publish(ctx, streaming.ChangeEvent{
		EventType:  eventType,
		WorkflowID: wf.ID,
		Workflow:   wf.Name,
		Folder:     wf.Folder,
		Payload: map[string]any{
			"session_id": sess.ID,
			"node":       sess.CurrentNode,
			"status":     sess.Status,
		},
	})
	if err != nil {
		w.logger.WarnContext(ctx, "publish session event failed",
			"event", eventType, "session_id", sess.ID, "error", err)
	}
}

func decodeMap(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "decode session data").WithCause(err)
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}
