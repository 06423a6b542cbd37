package fields

import (
	"strings"

	"github.com/repairkit/fixtree/pkg/schema"
)

// ValidateNode gates "apply changes" in the editor. All rules are checked;
// nothing short-circuits, so the editor can surface every problem at once.
//
// Rules:
//  1. label must be non-empty after trimming
//  2. the field list must be non-empty
//  3. when technical fields are shown, range.max must exceed range.min
func ValidateNode(label string, list []Field, showTechnical bool, specs *schema.TechnicalSpecs) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	if strings.TrimSpace(label) == "" {
		result.AddError("label", schema.ErrCodeValidation, "Label is required")
	}
	if len(list) == 0 {
		result.AddError("fields", schema.ErrCodeValidation, "At least one field is required")
	}
	if showTechnical && specs != nil && specs.Range != nil && specs.Range.Max <= specs.Range.Min {
		result.AddError("technicalSpecs.range", schema.ErrCodeValidation,
			"Maximum range must be greater than minimum range")
	}

	return result
}
