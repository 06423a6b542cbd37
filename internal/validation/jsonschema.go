package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/repairkit/fixtree/pkg/schema"
)

// workflowSchemaJSON is the JSON Schema for SavedWorkflow validation.
// Embedded as a constant to avoid filesystem dependencies.
const workflowSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://fixtree.dev/schemas/workflow.json",
  "type": "object",
  "required": ["metadata", "nodes", "edges"],
  "properties": {
    "metadata": {
      "type": "object",
      "required": ["name"],
      "properties": {
        "name": {
          "type": "string",
          "minLength": 1
        },
        "folder": { "type": "string" },
        "appliance": { "type": "string" },
        "isActive": { "type": "boolean" },
        "orderIndex": {
          "type": "integer",
          "minimum": 0
        }
      },
      "additionalProperties": false
    },
    "nodes": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/node" }
    },
    "edges": {
      "type": "array",
      "items": { "$ref": "#/$defs/edge" }
    },
    "nodeCounter": {
      "type": "integer",
      "minimum": 0
    }
  },
  "additionalProperties": false,
  "$defs": {
    "node": {
      "type": "object",
      "required": ["id", "type", "label"],
      "properties": {
        "id": {
          "type": "string",
          "minLength": 1
        },
        "type": {
          "type": "string",
          "enum": ["start", "question", "action", "solution", "test", "measurement", "data-collection", "decision-tree", "equipment-test", "procedure-step", "photo-capture", "data-form"]
        },
        "label": {
          "type": "string",
          "minLength": 1
        },
        "content": { "type": "string" },
        "richInfo": { "type": "string" },
        "media": {
          "type": "array",
          "items": { "$ref": "#/$defs/media" }
        },
        "options": {
          "type": "array",
          "items": { "type": "string" }
        },
        "technicalSpecs": { "$ref": "#/$defs/technical_specs" }
      },
      "additionalProperties": false
    },
    "edge": {
      "type": "object",
      "required": ["id", "source", "target"],
      "properties": {
        "id": {
          "type": "string",
          "minLength": 1
        },
        "source": {
          "type": "string",
          "minLength": 1
        },
        "target": {
          "type": "string",
          "minLength": 1
        },
        "optionIndex": {
          "type": "integer",
          "minimum": 0
        },
        "condition": { "type": "string" },
        "engine": {
          "type": "string",
          "enum": ["", "cel", "expr", "jq"]
        }
      },
      "additionalProperties": false
    },
    "media": {
      "type": "object",
      "required": ["type", "url"],
      "properties": {
        "type": {
          "type": "string",
          "enum": ["image", "video", "pdf"]
        },
        "url": {
          "type": "string",
          "minLength": 1
        }
      },
      "additionalProperties": false
    },
    "technical_specs": {
      "type": "object",
      "properties": {
        "range": {
          "type": "object",
          "required": ["min", "max"],
          "properties": {
            "min": { "type": "number" },
            "max": { "type": "number" }
          },
          "additionalProperties": false
        },
        "testPoints": {
          "type": "array",
          "items": { "type": "string" }
        },
        "measurementPoints": {
          "type": "array",
          "items": { "type": "string" }
        }
      },
      "additionalProperties": false
    }
  }
}`

// JSONSchemaValidator validates workflow documents against the embedded
// JSON Schema (Draft 2020-12). It is safe for concurrent use.
type JSONSchemaValidator struct {
	workflowSchema *jsonschema.Schema

	// mu guards the cache for dynamic form-schema compilation.
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewJSONSchemaValidator creates a JSONSchemaValidator with the workflow
// schema pre-compiled.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(workflowSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal workflow schema: %w", err)
	}
	if err := c.AddResource("https://fixtree.dev/schemas/workflow.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add workflow schema resource: %w", err)
	}

	wfSchema, err := c.Compile("https://fixtree.dev/schemas/workflow.json")
	if err != nil {
		return nil, fmt.Errorf("compile workflow schema: %w", err)
	}

	return &JSONSchemaValidator{
		workflowSchema: wfSchema,
		cache:          make(map[string]*jsonschema.Schema),
	}, nil
}

// ValidateWorkflow validates a SavedWorkflow against the workflow JSON Schema.
func (v *JSONSchemaValidator) ValidateWorkflow(wf *schema.SavedWorkflow) error {
	if wf == nil {
		return schema.NewError(schema.ErrCodeValidation, "workflow is nil")
	}

	doc, err := toJSONValue(wf)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize workflow").WithCause(err)
	}

	if err := v.workflowSchema.Validate(doc); err != nil {
		return toFixtreeError(err)
	}

	// Structural checks JSON Schema cannot express: duplicate IDs.
	seenNodes := make(map[string]struct{}, len(wf.Nodes))
	for _, n := range wf.Nodes {
		if _, exists := seenNodes[n.ID]; exists {
			return schema.NewErrorf(schema.ErrCodeValidation, "duplicate node id %q", n.ID)
		}
		seenNodes[n.ID] = struct{}{}
	}
	seenEdges := make(map[string]struct{}, len(wf.Edges))
	for _, e := range wf.Edges {
		if _, exists := seenEdges[e.ID]; exists {
			return schema.NewErrorf(schema.ErrCodeValidation, "duplicate edge id %q", e.ID)
		}
		seenEdges[e.ID] = struct{}{}
	}

	return nil
}

// ValidateFormData validates data-form submissions against a JSON Schema
// provided as raw bytes. The schema is compiled and cached for subsequent
// calls with the same schema.
func (v *JSONSchemaValidator) ValidateFormData(data map[string]any, formSchema []byte) error {
	if data == nil {
		return schema.NewError(schema.ErrCodeValidation, "form data is nil")
	}
	if len(formSchema) == 0 {
		return nil // no schema means no validation needed
	}

	compiled, err := v.getOrCompile(formSchema)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "invalid form schema").WithCause(err)
	}

	doc, err := toJSONValue(data)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize form data").WithCause(err)
	}

	if err := compiled.Validate(doc); err != nil {
		return toFixtreeError(err)
	}

	return nil
}

// getOrCompile returns a cached compiled schema or compiles and caches a new one.
func (v *JSONSchemaValidator) getOrCompile(schemaBytes []byte) (*jsonschema.Schema, error) {
	key := string(schemaBytes)

	v.mu.RLock()
	if cached, ok := v.cache[key]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	// Double-check after acquiring write lock.
	if cached, ok := v.cache[key]; ok {
		return cached, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(key))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	// Each dynamic schema gets a unique URL to avoid collisions.
	url := fmt.Sprintf("fixtree://form-schema/%d", len(v.cache))

	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v.cache[key] = compiled
	return compiled, nil
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toFixtreeError converts a jsonschema.ValidationError into a FixtreeError
// with the instance location of each violation.
func toFixtreeError(err error) *schema.FixtreeError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error
// messages with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
