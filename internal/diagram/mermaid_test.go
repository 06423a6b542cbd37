package diagram

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repairkit/fixtree/internal/store"
	"github.com/repairkit/fixtree/pkg/schema"
)

func TestRenderMermaid_Shapes(t *testing.T) {
	model, err := Build(iceMakerWorkflow(), nil)
	require.NoError(t, err)

	out := RenderMermaid(model)
	assert.True(t, strings.HasPrefix(out, "graph TD\n"))
	assert.Contains(t, out, "%% Ice Maker Jam")
	assert.Contains(t, out, `node_1(("Start"))`)
	assert.Contains(t, out, `node_2{"Is ice dispensing?"}`)
	assert.Contains(t, out, `node_3(["No repair needed"])`)
	assert.Contains(t, out, `node_4[["Measure line voltage"]]`)
}

func TestRenderMermaid_EdgeLabels(t *testing.T) {
	model, err := Build(iceMakerWorkflow(), nil)
	require.NoError(t, err)

	out := RenderMermaid(model)
	assert.Contains(t, out, "node_1 --> node_2")
	assert.Contains(t, out, "node_2 -->|Yes| node_3")
	assert.Contains(t, out, "node_2 -->|No| node_4")
}

func TestRenderMermaid_SessionClasses(t *testing.T) {
	answers, _ := json.Marshal(map[string]any{"node_2": "No"})
	sess := &store.SessionRecord{
		CurrentNode: "node_4",
		Answers:     answers,
		Status:      schema.SessionStatusActive,
	}

	model, err := Build(iceMakerWorkflow(), sess)
	require.NoError(t, err)

	out := RenderMermaid(model)
	assert.Contains(t, out, "classDef current")
	assert.Contains(t, out, "class node_4 current")
	assert.Contains(t, out, "class node_2 visited")
}

func TestRenderMermaid_EscapesPipesInLabels(t *testing.T) {
	wf := iceMakerWorkflow()
	wf.Edges[3].Condition = `answers.node_2 == "a" || true`

	model, err := Build(wf, nil)
	require.NoError(t, err)

	out := RenderMermaid(model)
	assert.NotContains(t, out, "||", "pipes would break Mermaid edge labels")
}
