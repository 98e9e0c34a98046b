package tenant

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wisbric/firewatch/internal/apperr"
	"github.com/wisbric/firewatch/internal/audit"
	"github.com/wisbric/firewatch/internal/db"
	"github.com/wisbric/firewatch/internal/httpserver"
)

// Authorizer is the slice of pkg/authz the tenant handler needs.
type Authorizer interface {
	RequireOrgAction(ctx context.Context, userID, orgID uuid.UUID, action string) error
	CanAccessProject(ctx context.Context, userID, projectID uuid.UUID) (bool, error)
}

// Handler provides HTTP handlers for organization and project endpoints.
type Handler struct {
	logger *slog.Logger
	audit  *audit.Writer
	store  *Store
	authz  Authorizer
}

// NewHandler creates a tenant Handler.
func NewHandler(logger *slog.Logger, auditW *audit.Writer, dbtx db.DBTX, authz Authorizer) *Handler {
	return &Handler{logger: logger, audit: auditW, store: NewStore(dbtx), authz: authz}
}

// Routes returns a chi.Router with project routes mounted. Organization
// creation is a bootstrap operation and lives outside the scoped API.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	return r
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	scope := FromContext(r.Context())

	if err := h.authz.RequireOrgAction(r.Context(), scope.UserID, scope.OrgID, "view"); err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	projects, err := h.store.ListProjects(r.Context(), scope.OrgID)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	// Only surface projects the caller can actually access.
	visible := make([]Project, 0, len(projects))
	for _, p := range projects {
		ok, err := h.authz.CanAccessProject(r.Context(), scope.UserID, p.ID)
		if err != nil {
			httpserver.RespondAppError(w, r, h.logger, err)
			return
		}
		if ok {
			visible = append(visible, p)
		}
	}

	httpserver.Respond(w, http.StatusOK, visible)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	scope := FromContext(r.Context())

	var req CreateProjectRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	if err := h.authz.RequireOrgAction(r.Context(), scope.UserID, scope.OrgID, "create"); err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	project, err := h.store.CreateProject(r.Context(), scope.OrgID, req.Slug, req.Name)
	if err != nil {
		if IsUniqueViolation(err) {
			httpserver.RespondAppError(w, r, h.logger, apperr.Conflict("project slug already exists"))
			return
		}
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, "create", "project", project.ID, nil)
	}
	httpserver.Respond(w, http.StatusCreated, project)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	scope := FromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, apperr.BadRequest("invalid project id"))
		return
	}

	ok, err := h.authz.CanAccessProject(r.Context(), scope.UserID, id)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}
	if !ok {
		// Deliberately indistinguishable from a missing project.
		httpserver.RespondAppError(w, r, h.logger, apperr.NotFound("project not found"))
		return
	}

	project, err := h.store.GetProject(r.Context(), scope.OrgID, id)
	if err != nil {
		if IsNoRows(err) {
			httpserver.RespondAppError(w, r, h.logger, apperr.NotFound("project not found"))
			return
		}
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, project)
}
