package expressions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repairkit/fixtree/pkg/schema"
)

func TestNewExprEngine(t *testing.T) {
	e := NewExprEngine()
	assert.NotNil(t, e)
	assert.Equal(t, "expr", e.Name())
}

func TestExpr_BasicLogic(t *testing.T) {
	e := NewExprEngine()

	data := map[string]any{
		"answers": map[string]any{
			"node_2": "No",
		},
	}

	out, err := e.Evaluate(context.Background(), `answers.node_2 == "No"`, data)
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestExpr_NilCoalescing(t *testing.T) {
	e := NewExprEngine()

	data := map[string]any{
		"measurements": map[string]any{},
	}

	out, err := e.Evaluate(context.Background(), `measurements?.node_4?.value ?? 0`, data)
	require.NoError(t, err)
	assert.Equal(t, 0, out)
}

func TestExpr_ArrayOperations(t *testing.T) {
	e := NewExprEngine()

	data := map[string]any{
		"readings": []any{112.0, 118.0, 121.0, 98.0},
	}

	t.Run("filter and count", func(t *testing.T) {
		out, err := e.Evaluate(context.Background(), `count(readings, # < 110)`, data)
		require.NoError(t, err)
		assert.Equal(t, 1, out)
	})

	t.Run("all in range", func(t *testing.T) {
		out, err := e.Evaluate(context.Background(), `all(readings, # >= 90 and # <= 130)`, data)
		require.NoError(t, err)
		assert.Equal(t, true, out)
	})
}

func TestExpr_UndefinedVariablesAllowed(t *testing.T) {
	e := NewExprEngine()

	out, err := e.Evaluate(context.Background(), `missing == nil`, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestExpr_EmptyExpression(t *testing.T) {
	e := NewExprEngine()

	_, err := e.Evaluate(context.Background(), "", map[string]any{})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))
}

func TestExpr_CompileError(t *testing.T) {
	e := NewExprEngine()

	_, err := e.Evaluate(context.Background(), `1 +`, map[string]any{})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))
}

func TestExpr_ProgramCaching(t *testing.T) {
	e := NewExprEngine()
	data := map[string]any{"x": 1}

	_, err := e.Evaluate(context.Background(), `x + 1`, data)
	require.NoError(t, err)

	e.mu.RLock()
	assert.Len(t, e.cache, 1)
	e.mu.RUnlock()

	_, err = e.Evaluate(context.Background(), `x + 1`, data)
	require.NoError(t, err)

	e.mu.RLock()
	assert.Len(t, e.cache, 1)
	e.mu.RUnlock()
}

func TestExpr_NilData(t *testing.T) {
	e := NewExprEngine()

	out, err := e.Evaluate(context.Background(), `1 + 2`, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, out)
}
