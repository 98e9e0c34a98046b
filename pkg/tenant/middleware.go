package tenant

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/wisbric/firewatch/internal/httpserver"
)

type contextKey string

const scopeKey contextKey = "tenant_scope"

// FromContext returns the request Scope, or nil when the middleware did not run.
func FromContext(ctx context.Context) *Scope {
	if s, ok := ctx.Value(scopeKey).(*Scope); ok {
		return s
	}
	return nil
}

// WithScope returns a context carrying the given scope. Used by tests and by
// internal callers acting on behalf of a principal.
func WithScope(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, scopeKey, s)
}

// Middleware extracts the principal and tenant context from the request.
// The principal arrives in the trusted X-User-ID header (authentication itself
// is terminated upstream). The organization is required via the org_id query
// parameter or the X-Org-ID header; a missing or malformed org is a 400, never
// a silently unfiltered request. project_id / X-Project-ID optionally narrows
// the scope.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userRaw := r.Header.Get("X-User-ID")
		if userRaw == "" {
			httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "missing principal")
			return
		}
		userID, err := uuid.Parse(userRaw)
		if err != nil {
			httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "invalid principal")
			return
		}

		orgRaw := r.URL.Query().Get("org_id")
		if orgRaw == "" {
			orgRaw = r.Header.Get("X-Org-ID")
		}
		if orgRaw == "" {
			httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "org_id is required")
			return
		}
		orgID, err := uuid.Parse(orgRaw)
		if err != nil {
			httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "org_id must be a valid UUID")
			return
		}

		scope := &Scope{UserID: userID, OrgID: orgID}

		projectRaw := r.URL.Query().Get("project_id")
		if projectRaw == "" {
			projectRaw = r.Header.Get("X-Project-ID")
		}
		if projectRaw != "" {
			projectID, err := uuid.Parse(projectRaw)
			if err != nil {
				httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "project_id must be a valid UUID")
				return
			}
			scope.ProjectID = &projectID
		}

		next.ServeHTTP(w, r.WithContext(WithScope(r.Context(), scope)))
	})
}
