package api

import (
	"net/http"

	"github.com/repairkit/fixtree/internal/logging"
)

// withCorrelation seeds the request context with the tenant and actor the
// client reports, so every log line down the call tree carries them.
func withCorrelation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if v := r.Header.Get("X-Company-ID"); v != "" {
			ctx = logging.WithCompanyID(ctx, v)
		}
		if v := r.Header.Get("X-Actor-ID"); v != "" {
			ctx = logging.WithActor(ctx, v)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withWorkflowName tags the context with the workflow from the route so
// handlers and everything they call log under that name.
func withWorkflowName(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if name := r.PathValue("name"); name != "" {
			r = r.WithContext(logging.WithWorkflow(r.Context(), name))
		}
		h(w, r)
	}
}
