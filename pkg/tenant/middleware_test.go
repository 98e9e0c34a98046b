package tenant

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestMiddleware(t *testing.T) {
	userID := uuid.New()
	orgID := uuid.New()
	projectID := uuid.New()

	tests := []struct {
		name        string
		target      string
		headers     map[string]string
		wantStatus  int
		wantProject bool
	}{
		{
			name:       "missing principal",
			target:     "/incidents?org_id=" + orgID.String(),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "missing org",
			target:     "/incidents",
			headers:    map[string]string{"X-User-ID": userID.String()},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed org",
			target:     "/incidents?org_id=not-a-uuid",
			headers:    map[string]string{"X-User-ID": userID.String()},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "org via query",
			target:     "/incidents?org_id=" + orgID.String(),
			headers:    map[string]string{"X-User-ID": userID.String()},
			wantStatus: http.StatusOK,
		},
		{
			name:   "org via header, project via header",
			target: "/incidents",
			headers: map[string]string{
				"X-User-ID":    userID.String(),
				"X-Org-ID":     orgID.String(),
				"X-Project-ID": projectID.String(),
			},
			wantStatus:  http.StatusOK,
			wantProject: true,
		},
		{
			name:   "malformed project",
			target: "/incidents?org_id=" + orgID.String() + "&project_id=nope",
			headers: map[string]string{
				"X-User-ID": userID.String(),
			},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *Scope
			inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = FromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			r := httptest.NewRequest("GET", tt.target, nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			w := httptest.NewRecorder()

			Middleware(inner).ServeHTTP(w, r)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			if got == nil {
				t.Fatal("scope not set in context")
			}
			if got.UserID != userID || got.OrgID != orgID {
				t.Errorf("scope = %+v, want user %s org %s", got, userID, orgID)
			}
			if tt.wantProject && (got.ProjectID == nil || *got.ProjectID != projectID) {
				t.Errorf("ProjectID = %v, want %s", got.ProjectID, projectID)
			}
			if !tt.wantProject && got.ProjectID != nil {
				t.Errorf("ProjectID = %v, want nil", got.ProjectID)
			}
		})
	}
}
