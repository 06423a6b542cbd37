package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/repairkit/fixtree/pkg/schema"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a structured error response. FixtreeError codes map to
// HTTP status codes; anything else is a 500.
func writeError(w http.ResponseWriter, err error) {
	var fxErr *schema.FixtreeError
	if !errors.As(err, &fxErr) {
		fxErr = schema.NewError(schema.ErrCodeStore, err.Error())
	}
	writeJSON(w, statusFor(fxErr.Code), map[string]any{"error": fxErr})
}

// statusFor maps an error code to its HTTP status.
func statusFor(code string) int {
	switch code {
	case schema.ErrCodeValidation:
		return http.StatusBadRequest
	case schema.ErrCodeNotFound:
		return http.StatusNotFound
	case schema.ErrCodeConflict, schema.ErrCodeSessionClosed:
		return http.StatusConflict
	case schema.ErrCodeFolderProtected:
		return http.StatusForbidden
	case schema.ErrCodeLimitExceeded:
		return http.StatusTooManyRequests
	case schema.ErrCodeExecution:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody decodes a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return schema.NewError(schema.ErrCodeValidation, "invalid request body").WithCause(err)
	}
	return nil
}

// folderParam resolves the folder query parameter, defaulting to "Default".
func folderParam(r *http.Request) string {
	if f := r.URL.Query().Get("folder"); f != "" {
		return f
	}
	return schema.DefaultFolder
}
