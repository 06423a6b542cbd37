package validation

import "github.com/repairkit/fixtree/pkg/schema"

// Validator checks workflow documents for correctness before they are saved.
type Validator interface {
	ValidateWorkflow(wf *schema.SavedWorkflow) error
	ValidateFormData(data map[string]any, formSchema []byte) error
}

// WorkflowValidator orchestrates the three-stage validation pipeline:
// 1. Structural (JSON Schema)
// 2. Graph semantic (start node, edge endpoints, option indexes)
// 3. Graph flow (reachability, cycles — warnings only)
type WorkflowValidator struct {
	jsonSchema *JSONSchemaValidator
}

// NewWorkflowValidator creates a WorkflowValidator.
func NewWorkflowValidator() (*WorkflowValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &WorkflowValidator{jsonSchema: jsv}, nil
}

// Validate runs the full pipeline and returns an aggregated result.
// Structural errors short-circuit: the graph stages are skipped.
func (wv *WorkflowValidator) Validate(wf *schema.SavedWorkflow) *schema.ValidationResult {
	if wf == nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeValidation, "workflow is nil")
		return r
	}

	// Stage 1: Structural (JSON Schema).
	result := validateStructural(wv.jsonSchema, wf)
	if !result.Valid() {
		return result
	}

	// Stage 2: Graph semantic.
	result.Merge(validateGraphSemantic(wf))

	// Stage 3: Graph flow (skip on semantic errors; the graph may be broken).
	if result.Valid() {
		result.Merge(validateGraphFlow(wf))
	}

	return result
}

// ValidateWorkflow satisfies the Validator interface.
func (wv *WorkflowValidator) ValidateWorkflow(wf *schema.SavedWorkflow) error {
	return wv.Validate(wf).ToError()
}

// ValidateFormData delegates to the underlying JSONSchemaValidator.
func (wv *WorkflowValidator) ValidateFormData(data map[string]any, formSchema []byte) error {
	return wv.jsonSchema.ValidateFormData(data, formSchema)
}

// validateStructural wraps JSONSchemaValidator.ValidateWorkflow, converting
// its error output into ValidationResult.
func validateStructural(v *JSONSchemaValidator, wf *schema.SavedWorkflow) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	err := v.ValidateWorkflow(wf)
	if err == nil {
		return result
	}

	fxErr, ok := err.(*schema.FixtreeError)
	if !ok {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return result
	}

	if fxErr.Details != nil {
		if violations, ok := fxErr.Details["violations"].([]string); ok {
			for _, v := range violations {
				result.AddError("/", schema.ErrCodeValidation, v)
			}
			return result
		}
	}
	result.AddError("/", schema.ErrCodeValidation, fxErr.Message)
	return result
}
