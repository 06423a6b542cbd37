package expressions

import (
	"context"

	"github.com/repairkit/fixtree/pkg/schema"
)

// Engine evaluates the condition expressions attached to decision-tree
// branches and the queries run against collected session data.
// Three implementations: CEL (conditions), GoJQ (data queries), Expr (logic).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// Registry holds the available engines. Edges name their engine; edges
// that leave it blank get the default.
type Registry struct {
	engines  map[string]Engine
	fallback Engine
}

// NewRegistry creates a registry with all three engines. CEL is the
// default for branch conditions.
func NewRegistry() (*Registry, error) {
	celEngine, err := NewCELEngine()
	if err != nil {
		return nil, err
	}
	exprEngine := NewExprEngine()
	jqEngine := NewGoJQEngine()

	return &Registry{
		engines: map[string]Engine{
			celEngine.Name():  celEngine,
			exprEngine.Name(): exprEngine,
			jqEngine.Name():   jqEngine,
		},
		fallback: celEngine,
	}, nil
}

// Get returns the named engine, or the default when name is empty.
func (r *Registry) Get(name string) (Engine, error) {
	if name == "" {
		return r.fallback, nil
	}
	if e, ok := r.engines[name]; ok {
		return e, nil
	}
	return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown expression engine %q", name)
}

// Truthy folds an evaluation result into a branch decision. nil, false,
// zero numbers, and empty strings are false; everything else is true.
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case int64:
		return val != 0
	case uint64:
		return val != 0
	case float64:
		return val != 0
	default:
		return true
	}
}
