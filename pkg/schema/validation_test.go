package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationResult_Empty(t *testing.T) {
	r := &ValidationResult{}
	assert.True(t, r.Valid())
	assert.NoError(t, r.ToError())
}

func TestValidationResult_ErrorsInvalidate(t *testing.T) {
	r := &ValidationResult{}
	r.AddError("nodes[0].label", ErrCodeValidation, "Label is required")
	assert.False(t, r.Valid())

	err := r.ToError()
	require.Error(t, err)
	ftErr, ok := err.(*FixtreeError)
	require.True(t, ok)
	assert.Equal(t, ErrCodeValidation, ftErr.Code)
	assert.Equal(t, "Label is required", ftErr.Message)
}

func TestValidationResult_WarningsStayValid(t *testing.T) {
	r := &ValidationResult{}
	r.AddWarning("nodes[n3]", ErrCodeValidation, "node is unreachable")
	assert.True(t, r.Valid())
	assert.NoError(t, r.ToError())
	assert.Len(t, r.Warnings, 1)
}

func TestValidationResult_MultiErrorMessage(t *testing.T) {
	r := &ValidationResult{}
	r.AddError("label", ErrCodeValidation, "Label is required")
	r.AddError("fields", ErrCodeValidation, "At least one field is required")

	err := r.ToError()
	require.Error(t, err)
	ftErr := err.(*FixtreeError)
	assert.Contains(t, ftErr.Message, "2 errors")
	assert.Equal(t, 2, ftErr.Details["error_count"])
}

func TestValidationResult_Merge(t *testing.T) {
	a := &ValidationResult{}
	a.AddError("x", ErrCodeValidation, "first")

	b := &ValidationResult{}
	b.AddError("y", ErrCodeValidation, "second")
	b.AddWarning("z", ErrCodeValidation, "heads up")

	a.Merge(b)
	assert.Len(t, a.Errors, 2)
	assert.Len(t, a.Warnings, 1)

	a.Merge(nil) // no-op
	assert.Len(t, a.Errors, 2)
}

func TestValidationResult_Messages(t *testing.T) {
	r := &ValidationResult{}
	r.AddError("a", ErrCodeValidation, "first")
	r.AddError("b", ErrCodeValidation, "second")
	assert.Equal(t, []string{"first", "second"}, r.Messages())
}
