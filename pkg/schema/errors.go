package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeConflict        = "CONFLICT"
	ErrCodeStore           = "STORE_ERROR"
	ErrCodeLimitExceeded   = "LIMIT_EXCEEDED"
	ErrCodeFolderProtected = "FOLDER_PROTECTED"
	ErrCodeExecution       = "EXECUTION_ERROR"
	ErrCodeSessionClosed   = "SESSION_CLOSED"
)

// FixtreeError is the structured error type for all fixtree operations.
type FixtreeError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	NodeID  string         `json:"node_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *FixtreeError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.NodeID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *FixtreeError) Unwrap() error {
	return e.Cause
}

// NewError creates a new FixtreeError.
func NewError(code, message string) *FixtreeError {
	return &FixtreeError{Code: code, Message: message}
}

// NewErrorf creates a new FixtreeError with a formatted message.
func NewErrorf(code, format string, args ...any) *FixtreeError {
	return &FixtreeError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithNode attaches a node ID to the error.
func (e *FixtreeError) WithNode(nodeID string) *FixtreeError {
	e.NodeID = nodeID
	return e
}

// WithCause attaches an underlying cause.
func (e *FixtreeError) WithCause(err error) *FixtreeError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *FixtreeError) WithDetails(details map[string]any) *FixtreeError {
	e.Details = details
	return e
}

// ErrorCode returns the code of a FixtreeError anywhere in err's chain,
// or "" when there is none.
func ErrorCode(err error) string {
	var fxErr *FixtreeError
	if errors.As(err, &fxErr) {
		return fxErr.Code
	}
	return ""
}

// IsNotFound reports whether err is a FixtreeError with the not-found code.
func IsNotFound(err error) bool {
	return ErrorCode(err) == ErrCodeNotFound
}
