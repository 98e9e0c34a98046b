package group

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wisbric/firewatch/internal/apperr"
	"github.com/wisbric/firewatch/internal/audit"
	"github.com/wisbric/firewatch/internal/db"
	"github.com/wisbric/firewatch/internal/httpserver"
	"github.com/wisbric/firewatch/pkg/authz"
	"github.com/wisbric/firewatch/pkg/tenant"
)

// Handler provides HTTP handlers for group endpoints.
type Handler struct {
	logger *slog.Logger
	audit  *audit.Writer
	store  *Store
	authz  *authz.Service
}

// NewHandler creates a group Handler.
func NewHandler(logger *slog.Logger, auditW *audit.Writer, dbtx db.DBTX, authzSvc *authz.Service) *Handler {
	return &Handler{logger: logger, audit: auditW, store: NewStore(dbtx), authz: authzSvc}
}

// Routes returns a chi.Router with group routes mounted. register hooks let
// sibling packages (schedules, overrides) add their group-keyed routes.
func (h *Handler) Routes(register ...func(chi.Router)) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{groupID}", h.handleGet)
	for _, fn := range register {
		fn(r)
	}
	return r
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	scope := tenant.FromContext(r.Context())

	access, err := h.authz.ScopeFilter(r.Context(), scope.UserID, scope.OrgID, scope.ProjectID)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	scopeSQL, scopeArgs := access.Predicate("project_id", 2)
	groups, err := h.store.List(r.Context(), scope.OrgID, scopeSQL, scopeArgs)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	// Private groups are visible to their members only.
	visible := make([]Group, 0, len(groups))
	for _, g := range groups {
		if g.Visibility == VisibilityPrivate {
			role, err := h.authz.Store().GetRole(r.Context(), scope.UserID, authz.ResourceGroup, g.ID)
			if err != nil {
				httpserver.RespondAppError(w, r, h.logger, err)
				return
			}
			if role == "" {
				continue
			}
		}
		visible = append(visible, g)
	}

	httpserver.Respond(w, http.StatusOK, visible)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	scope := tenant.FromContext(r.Context())

	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	if err := h.authz.RequireOrgAction(r.Context(), scope.UserID, scope.OrgID, "create"); err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	if req.ProjectID != nil {
		ok, err := h.authz.CanAccessProject(r.Context(), scope.UserID, *req.ProjectID)
		if err != nil {
			httpserver.RespondAppError(w, r, h.logger, err)
			return
		}
		if !ok {
			httpserver.RespondAppError(w, r, h.logger, apperr.NotFound("project not found"))
			return
		}
	}

	visibility := Visibility(req.Visibility)
	if visibility == "" {
		visibility = VisibilityOrganization
	}

	g, err := h.store.Create(r.Context(), scope.OrgID, req.ProjectID, req.Name, visibility)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, "create", "group", g.ID, nil)
	}
	httpserver.Respond(w, http.StatusCreated, g)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	scope := tenant.FromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "groupID"))
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, apperr.BadRequest("invalid group id"))
		return
	}

	g, err := h.store.Get(r.Context(), scope.OrgID, id)
	if err != nil {
		if tenant.IsNoRows(err) {
			httpserver.RespondAppError(w, r, h.logger, apperr.NotFound("group not found"))
			return
		}
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	if g.Visibility == VisibilityPrivate {
		role, err := h.authz.Store().GetRole(r.Context(), scope.UserID, authz.ResourceGroup, g.ID)
		if err != nil {
			httpserver.RespondAppError(w, r, h.logger, err)
			return
		}
		if role == "" {
			httpserver.RespondAppError(w, r, h.logger, apperr.NotFound("group not found"))
			return
		}
	}

	httpserver.Respond(w, http.StatusOK, g)
}
