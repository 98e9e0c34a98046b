package uptime

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/firewatch/internal/apperr"
	"github.com/wisbric/firewatch/internal/audit"
	"github.com/wisbric/firewatch/internal/httpserver"
	"github.com/wisbric/firewatch/pkg/authz"
	"github.com/wisbric/firewatch/pkg/tenant"
)

// Handler provides HTTP handlers for monitor endpoints.
type Handler struct {
	logger *slog.Logger
	audit  *audit.Writer
	pool   *pgxpool.Pool
	authz  *authz.Service
}

// NewHandler creates an uptime Handler.
func NewHandler(logger *slog.Logger, auditW *audit.Writer, pool *pgxpool.Pool, authzSvc *authz.Service) *Handler {
	return &Handler{logger: logger, audit: auditW, pool: pool, authz: authzSvc}
}

// Routes returns a chi.Router with monitor routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/monitors", h.handleList)
	r.Post("/monitors", h.handleCreate)
	r.Get("/monitors/{id}/checks", h.handleChecks)
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
	monitors, err := NewStore(h.pool).List(r.Context(), scope.OrgID, scopeSQL, scopeArgs)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}
	if monitors == nil {
		monitors = []Monitor{}
	}
	httpserver.Respond(w, http.StatusOK, monitors)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	scope := tenant.FromContext(r.Context())

	var req CreateMonitorRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	if err := h.authz.RequireOrgAction(r.Context(), scope.UserID, scope.OrgID, "create"); err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	monitor, err := NewStore(h.pool).Create(r.Context(), scope.OrgID, req)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, "create", "uptime_monitor", monitor.ID, nil)
	}
	httpserver.Respond(w, http.StatusCreated, monitor)
}

func (h *Handler) handleChecks(w http.ResponseWriter, r *http.Request) {
	scope := tenant.FromContext(r.Context())

	if err := h.authz.RequireOrgAction(r.Context(), scope.UserID, scope.OrgID, "view"); err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, apperr.BadRequest("invalid monitor id"))
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			httpserver.RespondAppError(w, r, h.logger, apperr.BadRequest("limit must be between 1 and 1000"))
			return
		}
		limit = n
	}

	checks, err := NewStore(h.pool).ListChecks(r.Context(), id, limit)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}
	if checks == nil {
		checks = []Check{}
	}
	httpserver.Respond(w, http.StatusOK, checks)
}
