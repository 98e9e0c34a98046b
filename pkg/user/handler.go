package user

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

// Handler provides HTTP handlers for the user directory.
type Handler struct {
	logger *slog.Logger
	audit  *audit.Writer
	store  *Store
	authz  *authz.Service
}

// NewHandler creates a user Handler.
func NewHandler(logger *slog.Logger, auditW *audit.Writer, dbtx db.DBTX, authzSvc *authz.Service) *Handler {
	return &Handler{logger: logger, audit: auditW, store: NewStore(dbtx), authz: authzSvc}
}

// Routes returns a chi.Router with user routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	return r
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	scope := tenant.FromContext(r.Context())

	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	ok, err := h.authz.Check(r.Context(), scope.UserID, authz.ActionManageMembers, authz.ResourceOrg, scope.OrgID)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}
	if !ok {
		httpserver.RespondAppError(w, r, h.logger, apperr.Forbidden("not allowed"))
		return
	}

	u, err := h.store.Create(r.Context(), req.Email, req.DisplayName)
	if err != nil {
		if tenant.IsUniqueViolation(err) {
			httpserver.RespondAppError(w, r, h.logger, apperr.Conflict("email already registered"))
			return
		}
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, "create", "user", u.ID, nil)
	}
	httpserver.Respond(w, http.StatusCreated, u)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	scope := tenant.FromContext(r.Context())

	if err := h.authz.RequireOrgAction(r.Context(), scope.UserID, scope.OrgID, "view"); err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, apperr.BadRequest("invalid user id"))
		return
	}

	u, err := h.store.Get(r.Context(), id)
	if err != nil {
		if tenant.IsNoRows(err) {
			httpserver.RespondAppError(w, r, h.logger, apperr.NotFound("user not found"))
			return
		}
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, u)
}
