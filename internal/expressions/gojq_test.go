package expressions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repairkit/fixtree/pkg/schema"
)

func TestNewGoJQEngine(t *testing.T) {
	e := NewGoJQEngine()
	assert.NotNil(t, e)
	assert.Equal(t, "jq", e.Name())
}

func TestGoJQ_SelectField(t *testing.T) {
	e := NewGoJQEngine()
	data := map[string]any{
		"answers": map[string]any{"node_2": "No"},
	}

	out, err := e.Evaluate(context.Background(), `.answers.node_2`, data)
	require.NoError(t, err)
	assert.Equal(t, "No", out)
}

func TestGoJQ_MissingFieldIsNull(t *testing.T) {
	e := NewGoJQEngine()

	out, err := e.Evaluate(context.Background(), `.answers.node_9`, map[string]any{})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestGoJQ_FilterMeasurements(t *testing.T) {
	e := NewGoJQEngine()
	data := map[string]any{
		"measurements": []any{
			map[string]any{"node": "node_4", "value": 118.0},
			map[string]any{"node": "node_6", "value": 4.2},
			map[string]any{"node": "node_8", "value": 240.0},
		},
	}

	out, err := e.Evaluate(context.Background(), `[.measurements[] | select(.value > 100)] | length`, data)
	require.NoError(t, err)
	assert.Equal(t, 2, out)
}

func TestGoJQ_MultipleOutputsCollapse(t *testing.T) {
	e := NewGoJQEngine()
	data := map[string]any{"steps": []any{"a", "b", "c"}}

	out, err := e.Evaluate(context.Background(), `.steps[]`, data)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b", "c"}, out)
}

func TestGoJQ_EvaluateAll(t *testing.T) {
	e := NewGoJQEngine()
	data := map[string]any{"steps": []any{"a", "b"}}

	results, err := e.EvaluateAll(context.Background(), `.steps[]`, data)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, results)
}

func TestGoJQ_IntInputsNormalized(t *testing.T) {
	e := NewGoJQEngine()
	data := map[string]any{
		"count": int64(5),
		"items": []any{int(1), int(2), int(3)},
	}

	out, err := e.Evaluate(context.Background(), `.count + 1`, data)
	require.NoError(t, err)
	assert.Equal(t, 6.0, out)
}

func TestGoJQ_IfThenElse(t *testing.T) {
	e := NewGoJQEngine()
	data := map[string]any{"answers": map[string]any{"node_2": "Yes"}}

	out, err := e.Evaluate(context.Background(),
		`if .answers.node_2 == "Yes" then "dispensing" else "jammed" end`, data)
	require.NoError(t, err)
	assert.Equal(t, "dispensing", out)
}

func TestGoJQ_EmptyExpression(t *testing.T) {
	e := NewGoJQEngine()

	_, err := e.Evaluate(context.Background(), "", map[string]any{})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))
}

func TestGoJQ_ParseError(t *testing.T) {
	e := NewGoJQEngine()

	_, err := e.Evaluate(context.Background(), `.[invalid`, map[string]any{})
	require.Error(t, err)

	fxErr, ok := err.(*schema.FixtreeError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeValidation, fxErr.Code)
	assert.Contains(t, fxErr.Message, "parse")
}

func TestGoJQ_RuntimeError(t *testing.T) {
	e := NewGoJQEngine()

	_, err := e.Evaluate(context.Background(), `.name[]`, map[string]any{"name": "fixtree"})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeExecution, schema.ErrorCode(err))
}

func TestGoJQ_Sandbox_NoEnvAccess(t *testing.T) {
	e := NewGoJQEngine()

	out, err := e.Evaluate(context.Background(), `$ENV`, map[string]any{})
	require.NoError(t, err)

	m, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Empty(t, m)
}

func TestGoJQ_Caching(t *testing.T) {
	e := NewGoJQEngine()
	data := map[string]any{"x": 1.0}

	_, err := e.Evaluate(context.Background(), `.x`, data)
	require.NoError(t, err)

	e.mu.RLock()
	assert.Len(t, e.cache, 1)
	e.mu.RUnlock()

	_, err = e.Evaluate(context.Background(), `.x`, data)
	require.NoError(t, err)

	e.mu.RLock()
	assert.Len(t, e.cache, 1)
	e.mu.RUnlock()
}

func TestNormalizeForJQ(t *testing.T) {
	input := map[string]any{
		"int_val":   42,
		"int64_val": int64(100),
		"float_val": 3.14,
		"str_val":   "hello",
		"nested":    map[string]any{"count": int(5)},
		"list":      []any{int(1), int(2)},
	}

	result := normalizeForJQ(input).(map[string]any)

	assert.Equal(t, 42.0, result["int_val"])
	assert.Equal(t, 100.0, result["int64_val"])
	assert.Equal(t, 3.14, result["float_val"])
	assert.Equal(t, "hello", result["str_val"])
	assert.Equal(t, 5.0, result["nested"].(map[string]any)["count"])
	assert.Equal(t, []any{1.0, 2.0}, result["list"])
}
