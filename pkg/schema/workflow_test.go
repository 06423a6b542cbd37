package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectiveFolder(t *testing.T) {
	tests := []struct {
		name string
		meta WorkflowMetadata
		want string
	}{
		{"explicit folder", WorkflowMetadata{Folder: "Refrigerators"}, "Refrigerators"},
		{"legacy appliance only", WorkflowMetadata{Appliance: "Dishwashers"}, "Dishwashers"},
		{"folder wins over appliance", WorkflowMetadata{Folder: "Ovens", Appliance: "Dishwashers"}, "Ovens"},
		{"neither set", WorkflowMetadata{}, DefaultFolder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.meta.EffectiveFolder())
		})
	}
}

func TestGraph_StartNode(t *testing.T) {
	g := &Graph{Nodes: []Node{
		{ID: "n1", Type: NodeTypeQuestion},
		{ID: "n2", Type: NodeTypeStart},
	}}
	start := g.StartNode()
	require.NotNil(t, start)
	assert.Equal(t, "n2", start.ID)

	empty := &Graph{}
	assert.Nil(t, empty.StartNode())
}

func TestGraph_OutgoingEdgesOrder(t *testing.T) {
	g := &Graph{Edges: []Edge{
		{ID: "e1", Source: "a", Target: "b"},
		{ID: "e2", Source: "b", Target: "c"},
		{ID: "e3", Source: "a", Target: "c"},
	}}
	out := g.OutgoingEdges("a")
	require.Len(t, out, 2)
	assert.Equal(t, "e1", out[0].ID)
	assert.Equal(t, "e3", out[1].ID)
	assert.Empty(t, g.OutgoingEdges("c"))
}

func TestSavedWorkflow_JSONRoundTrip(t *testing.T) {
	opt := 1
	wf := SavedWorkflow{
		Metadata: WorkflowMetadata{Name: "Ice Maker Jam", Folder: "Refrigerators", IsActive: true},
		Nodes: []Node{
			{ID: "n1", Type: NodeTypeStart, Label: "Start"},
			{ID: "n2", Type: NodeTypeQuestion, Label: "Is the ice maker on?", Options: []string{"Yes", "No"}},
			{ID: "n3", Type: NodeTypeSolution, Label: "Turn it on", Media: []MediaItem{{Type: MediaTypeImage, URL: "https://cdn.example/switch.png"}}},
		},
		Edges: []Edge{
			{ID: "e1", Source: "n1", Target: "n2"},
			{ID: "e2", Source: "n2", Target: "n3", OptionIndex: &opt},
		},
		NodeCounter: 3,
	}

	data, err := json.Marshal(&wf)
	require.NoError(t, err)

	var got SavedWorkflow
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, wf, got)
	require.NotNil(t, got.Edges[1].OptionIndex)
	assert.Equal(t, 1, *got.Edges[1].OptionIndex)
}
