package escalation

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/firewatch/internal/apperr"
	"github.com/wisbric/firewatch/internal/audit"
	"github.com/wisbric/firewatch/internal/httpserver"
	"github.com/wisbric/firewatch/pkg/authz"
	"github.com/wisbric/firewatch/pkg/tenant"
)

// Handler provides HTTP handlers for escalation policy endpoints.
type Handler struct {
	logger *slog.Logger
	audit  *audit.Writer
	pool   *pgxpool.Pool
	authz  *authz.Service
	cache  *PolicyCache
}

// NewHandler creates an escalation Handler. cache may be nil when no engine
// runs in this process.
func NewHandler(logger *slog.Logger, auditW *audit.Writer, pool *pgxpool.Pool, authzSvc *authz.Service, cache *PolicyCache) *Handler {
	return &Handler{logger: logger, audit: auditW, pool: pool, authz: authzSvc, cache: cache}
}

// Routes returns a chi.Router with policy routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Delete("/{id}", h.handleDelete)
	return r
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	scope := tenant.FromContext(r.Context())

	if err := h.authz.RequireOrgAction(r.Context(), scope.UserID, scope.OrgID, "view"); err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	policies, err := NewStore(h.pool).ListPolicies(r.Context(), scope.OrgID)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}
	if policies == nil {
		policies = []Policy{}
	}
	httpserver.Respond(w, http.StatusOK, policies)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	scope := tenant.FromContext(r.Context())

	var req CreatePolicyRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if err := ValidateLevels(req.Levels); err != nil {
		httpserver.RespondAppError(w, r, h.logger, apperr.BadRequest(err.Error()))
		return
	}

	if err := h.authz.RequireOrgAction(r.Context(), scope.UserID, scope.OrgID, "create"); err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	tx, err := h.pool.Begin(r.Context())
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, apperr.Transient("beginning transaction", err))
		return
	}
	defer tx.Rollback(r.Context())

	policy, err := NewStore(tx).CreatePolicy(r.Context(), scope.OrgID, req)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		httpserver.RespondAppError(w, r, h.logger, apperr.Transient("committing transaction", err))
		return
	}

	if h.cache != nil {
		h.cache.Invalidate(policy.ID)
	}
	if h.audit != nil {
		h.audit.LogFromRequest(r, "create", "escalation_policy", policy.ID, nil)
	}
	httpserver.Respond(w, http.StatusCreated, policy)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	scope := tenant.FromContext(r.Context())

	if err := h.authz.RequireOrgAction(r.Context(), scope.UserID, scope.OrgID, "view"); err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, apperr.BadRequest("invalid policy id"))
		return
	}

	policy, err := NewStore(h.pool).GetPolicy(r.Context(), scope.OrgID, id)
	if err != nil {
		if IsNoRows(err) {
			httpserver.RespondAppError(w, r, h.logger, apperr.NotFound("escalation policy not found"))
			return
		}
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, policyResponse(policy))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	scope := tenant.FromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, apperr.BadRequest("invalid policy id"))
		return
	}

	if err := h.authz.RequireOrgAction(r.Context(), scope.UserID, scope.OrgID, "update"); err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	if err := NewStore(h.pool).DeletePolicy(r.Context(), scope.OrgID, id); err != nil {
		if IsNoRows(err) {
			httpserver.RespondAppError(w, r, h.logger, apperr.NotFound("escalation policy not found"))
			return
		}
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	if h.cache != nil {
		h.cache.Invalidate(id)
	}
	if h.audit != nil {
		h.audit.LogFromRequest(r, "delete", "escalation_policy", id, nil)
	}
	httpserver.Respond(w, http.StatusNoContent, nil)
}

// levelView is the JSON shape of a level (timeout in minutes).
type levelView struct {
	ID             uuid.UUID  `json:"id"`
	LevelNumber    int        `json:"level_number"`
	TargetType     TargetType `json:"target_type"`
	TargetID       *uuid.UUID `json:"target_id,omitempty"`
	TimeoutMinutes int        `json:"timeout_minutes"`
}

type policyView struct {
	Policy
	Levels []levelView `json:"levels"`
}

func policyResponse(p Policy) policyView {
	levels := make([]levelView, 0, len(p.Levels))
	for _, l := range p.Levels {
		levels = append(levels, levelView{
			ID:             l.ID,
			LevelNumber:    l.LevelNumber,
			TargetType:     l.TargetType,
			TargetID:       l.TargetID,
			TimeoutMinutes: int(l.Timeout.Minutes()),
		})
	}
	view := policyView{Policy: p}
	view.Policy.Levels = nil
	view.Levels = levels
	return view
}
