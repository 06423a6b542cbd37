package diagram

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repairkit/fixtree/internal/store"
	"github.com/repairkit/fixtree/pkg/schema"
)

func intPtr(i int) *int { return &i }

func iceMakerWorkflow() *schema.SavedWorkflow {
	return &schema.SavedWorkflow{
		Metadata: schema.WorkflowMetadata{Name: "Ice Maker Jam", Folder: "Refrigerators"},
		Nodes: []schema.Node{
			{ID: "node_1", Type: schema.NodeTypeStart, Label: "Start"},
			{ID: "node_2", Type: schema.NodeTypeQuestion, Label: "Is ice dispensing?",
				Options: []string{"Yes", "No"}},
			{ID: "node_3", Type: schema.NodeTypeSolution, Label: "No repair needed"},
			{ID: "node_4", Type: schema.NodeTypeMeasurement, Label: "Measure line voltage"},
			{ID: "node_5", Type: schema.NodeTypeSolution, Label: "Clear the chute"},
		},
		Edges: []schema.Edge{
			{ID: "e1", Source: "node_1", Target: "node_2"},
			{ID: "e2", Source: "node_2", Target: "node_3", OptionIndex: intPtr(0)},
			{ID: "e3", Source: "node_2", Target: "node_4", OptionIndex: intPtr(1)},
			{ID: "e4", Source: "node_4", Target: "node_5", Condition: "measurements.node_4.value > 110"},
		},
	}
}

func TestBuild_NodesAndKinds(t *testing.T) {
	model, err := Build(iceMakerWorkflow(), nil)
	require.NoError(t, err)

	assert.Equal(t, "Ice Maker Jam", model.Title)
	require.Len(t, model.Nodes, 5)
	assert.Equal(t, NodeKindStart, model.Nodes[0].Kind)
	assert.Equal(t, NodeKindQuestion, model.Nodes[1].Kind)
	assert.Equal(t, NodeKindSolution, model.Nodes[2].Kind)
	assert.Equal(t, NodeKindTest, model.Nodes[3].Kind)
}

func TestBuild_EdgeLabels(t *testing.T) {
	model, err := Build(iceMakerWorkflow(), nil)
	require.NoError(t, err)

	require.Len(t, model.Edges, 4)
	assert.Equal(t, "", model.Edges[0].Label)
	assert.Equal(t, "Yes", model.Edges[1].Label)
	assert.Equal(t, "No", model.Edges[2].Label)
	assert.Equal(t, "measurements.node_4.value > 110", model.Edges[3].Label)
}

func TestBuild_LevelsFollowBFSDepth(t *testing.T) {
	model, err := Build(iceMakerWorkflow(), nil)
	require.NoError(t, err)

	require.Len(t, model.Levels, 4)
	assert.Equal(t, []string{"node_1"}, model.Levels[0])
	assert.Equal(t, []string{"node_2"}, model.Levels[1])
	assert.ElementsMatch(t, []string{"node_3", "node_4"}, model.Levels[2])
	assert.Equal(t, []string{"node_5"}, model.Levels[3])
}

func TestBuild_OrphanNodesGetTrailingLevel(t *testing.T) {
	wf := iceMakerWorkflow()
	wf.Nodes = append(wf.Nodes, schema.Node{
		ID: "node_9", Type: schema.NodeTypeAction, Label: "Orphan",
	})

	model, err := Build(wf, nil)
	require.NoError(t, err)

	last := model.Levels[len(model.Levels)-1]
	assert.Equal(t, []string{"node_9"}, last)
}

func TestBuild_DanglingEdgeSkipped(t *testing.T) {
	wf := iceMakerWorkflow()
	wf.Edges = append(wf.Edges, schema.Edge{ID: "bad", Source: "node_1", Target: "node_99"})

	model, err := Build(wf, nil)
	require.NoError(t, err)
	assert.Len(t, model.Edges, 4)
}

func TestBuild_SessionOverlay(t *testing.T) {
	answers, _ := json.Marshal(map[string]any{"node_2": "No"})
	measurements, _ := json.Marshal(map[string]any{
		"node_4": map[string]any{"value": 118.5, "unit": "V"},
	})
	sess := &store.SessionRecord{
		ID:           "sess-1",
		WorkflowID:   "wf-ice",
		Status:       schema.SessionStatusActive,
		CurrentNode:  "node_5",
		Answers:      answers,
		Measurements: measurements,
	}

	model, err := Build(iceMakerWorkflow(), sess)
	require.NoError(t, err)

	byID := make(map[string]*Node)
	for _, n := range model.Nodes {
		byID[n.ID] = n
	}

	require.NotNil(t, byID["node_2"].Status)
	assert.True(t, byID["node_2"].Status.Visited)
	assert.Equal(t, "No", byID["node_2"].Status.Answer)

	require.NotNil(t, byID["node_4"].Status)
	assert.Equal(t, "118.5 V", byID["node_4"].Status.Answer)

	require.NotNil(t, byID["node_5"].Status)
	assert.True(t, byID["node_5"].Status.Current)

	assert.Nil(t, byID["node_3"].Status, "untouched nodes carry no overlay")
}

func TestBuild_NilWorkflow(t *testing.T) {
	_, err := Build(nil, nil)
	require.Error(t, err)
}
