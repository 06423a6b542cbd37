package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repairkit/fixtree/pkg/schema"
)

func intPtr(i int) *int { return &i }

// validWorkflow returns a small well-formed diagnostic workflow:
// start -> question (two options) -> two solutions.
func validWorkflow() *schema.SavedWorkflow {
	return &schema.SavedWorkflow{
		Metadata: schema.WorkflowMetadata{
			Name:     "Ice Maker Jam",
			Folder:   "Refrigerators",
			IsActive: true,
		},
		Nodes: []schema.Node{
			{ID: "node_1", Type: schema.NodeTypeStart, Label: "Start"},
			{ID: "node_2", Type: schema.NodeTypeQuestion, Label: "Is ice dispensing?",
				Options: []string{"Yes", "No"}},
			{ID: "node_3", Type: schema.NodeTypeSolution, Label: "No repair needed"},
			{ID: "node_4", Type: schema.NodeTypeSolution, Label: "Clear the chute"},
		},
		Edges: []schema.Edge{
			{ID: "edge_1", Source: "node_1", Target: "node_2"},
			{ID: "edge_2", Source: "node_2", Target: "node_3", OptionIndex: intPtr(0)},
			{ID: "edge_3", Source: "node_2", Target: "node_4", OptionIndex: intPtr(1)},
		},
		NodeCounter: 4,
	}
}

func newValidator(t *testing.T) *WorkflowValidator {
	t.Helper()
	wv, err := NewWorkflowValidator()
	require.NoError(t, err)
	return wv
}

func TestValidate_ValidWorkflow(t *testing.T) {
	wv := newValidator(t)

	result := wv.Validate(validWorkflow())
	assert.True(t, result.Valid())
	assert.Empty(t, result.Warnings)
	assert.NoError(t, wv.ValidateWorkflow(validWorkflow()))
}

func TestValidate_NilWorkflow(t *testing.T) {
	wv := newValidator(t)

	result := wv.Validate(nil)
	assert.False(t, result.Valid())
}

// --- Structural stage ---

func TestValidate_MissingName(t *testing.T) {
	wv := newValidator(t)
	wf := validWorkflow()
	wf.Metadata.Name = ""

	result := wv.Validate(wf)
	assert.False(t, result.Valid())
}

func TestValidate_EmptyNodes(t *testing.T) {
	wv := newValidator(t)
	wf := validWorkflow()
	wf.Nodes = nil
	wf.Edges = nil

	result := wv.Validate(wf)
	assert.False(t, result.Valid())
}

func TestValidate_UnknownNodeType(t *testing.T) {
	wv := newValidator(t)
	wf := validWorkflow()
	wf.Nodes[1].Type = "teleporter"

	result := wv.Validate(wf)
	assert.False(t, result.Valid())
}

func TestValidate_UnknownEngine(t *testing.T) {
	wv := newValidator(t)
	wf := validWorkflow()
	wf.Edges[0].Engine = "lua"

	result := wv.Validate(wf)
	assert.False(t, result.Valid())
}

func TestValidate_DuplicateNodeID(t *testing.T) {
	wv := newValidator(t)
	wf := validWorkflow()
	wf.Nodes[3].ID = "node_2"

	result := wv.Validate(wf)
	assert.False(t, result.Valid())
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0].Message, "duplicate node id")
}

// --- Graph semantic stage ---

func TestValidate_NoStartNode(t *testing.T) {
	wv := newValidator(t)
	wf := validWorkflow()
	wf.Nodes[0].Type = schema.NodeTypeAction

	result := wv.Validate(wf)
	assert.False(t, result.Valid())
	assert.Equal(t, codeNoStart, result.Errors[0].Code)
}

func TestValidate_MultipleStartNodes(t *testing.T) {
	wv := newValidator(t)
	wf := validWorkflow()
	wf.Nodes[3].Type = schema.NodeTypeStart

	result := wv.Validate(wf)
	assert.False(t, result.Valid())
	assert.Equal(t, codeMultipleStarts, result.Errors[0].Code)
}

func TestValidate_DanglingEdge(t *testing.T) {
	wv := newValidator(t)
	wf := validWorkflow()
	wf.Edges[0].Target = "node_99"

	result := wv.Validate(wf)
	assert.False(t, result.Valid())
	assert.Equal(t, codeDanglingEdge, result.Errors[0].Code)
}

func TestValidate_OptionIndexOutOfRange(t *testing.T) {
	wv := newValidator(t)
	wf := validWorkflow()
	wf.Edges[1].OptionIndex = intPtr(5)

	result := wv.Validate(wf)
	assert.False(t, result.Valid())
	assert.Equal(t, codeOptionIndexRange, result.Errors[0].Code)
}

func TestValidate_AccumulatesAllSemanticErrors(t *testing.T) {
	wv := newValidator(t)
	wf := validWorkflow()
	wf.Edges[0].Target = "node_99"
	wf.Edges[1].OptionIndex = intPtr(5)

	result := wv.Validate(wf)
	assert.Len(t, result.Errors, 2)
}

func TestValidate_NoSolutionWarns(t *testing.T) {
	wv := newValidator(t)
	wf := &schema.SavedWorkflow{
		Metadata: schema.WorkflowMetadata{Name: "Draft"},
		Nodes: []schema.Node{
			{ID: "node_1", Type: schema.NodeTypeStart, Label: "Start"},
			{ID: "node_2", Type: schema.NodeTypeAction, Label: "Unplug the unit"},
		},
		Edges: []schema.Edge{
			{ID: "edge_1", Source: "node_1", Target: "node_2"},
		},
	}

	result := wv.Validate(wf)
	assert.True(t, result.Valid())
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, codeNoSolution, result.Warnings[0].Code)
}

// --- Graph flow stage ---

func TestValidate_UnreachableNodeWarns(t *testing.T) {
	wv := newValidator(t)
	wf := validWorkflow()
	wf.Nodes = append(wf.Nodes, schema.Node{
		ID: "node_5", Type: schema.NodeTypeAction, Label: "Orphaned step",
	})

	result := wv.Validate(wf)
	assert.True(t, result.Valid(), "unreachable nodes warn, not fail")
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, codeUnreachable, result.Warnings[0].Code)
	assert.Contains(t, result.Warnings[0].Message, "node_5")
}

func TestValidate_CycleWarns(t *testing.T) {
	wv := newValidator(t)
	wf := validWorkflow()
	wf.Edges = append(wf.Edges, schema.Edge{
		ID: "edge_4", Source: "node_3", Target: "node_2",
	})

	result := wv.Validate(wf)
	assert.True(t, result.Valid(), "cycles warn, not fail")

	found := false
	for _, w := range result.Warnings {
		if w.Code == codeCycle {
			found = true
		}
	}
	assert.True(t, found, "expected a cycle warning")
}

func TestValidate_SemanticErrorsSkipFlowStage(t *testing.T) {
	wv := newValidator(t)
	wf := validWorkflow()
	wf.Edges[0].Source = "node_99"
	wf.Nodes = append(wf.Nodes, schema.Node{
		ID: "node_5", Type: schema.NodeTypeAction, Label: "Orphaned step",
	})

	result := wv.Validate(wf)
	assert.False(t, result.Valid())
	assert.Empty(t, result.Warnings, "flow analysis skipped when the graph is broken")
}

// --- ToError ---

func TestValidate_ToError(t *testing.T) {
	wv := newValidator(t)
	wf := validWorkflow()
	wf.Edges[0].Target = "node_99"

	err := wv.ValidateWorkflow(wf)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))
}
