package incident

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wisbric/firewatch/internal/apperr"
	"github.com/wisbric/firewatch/internal/audit"
	"github.com/wisbric/firewatch/internal/httpserver"
	"github.com/wisbric/firewatch/pkg/authz"
	"github.com/wisbric/firewatch/pkg/tenant"
)

// Handler provides HTTP handlers for incident endpoints.
type Handler struct {
	logger  *slog.Logger
	audit   *audit.Writer
	service *Service
	authz   *authz.Service
}

// NewHandler creates an incident Handler.
func NewHandler(logger *slog.Logger, auditW *audit.Writer, service *Service, authzSvc *authz.Service) *Handler {
	return &Handler{logger: logger, audit: auditW, service: service, authz: authzSvc}
}

// Routes returns a chi.Router with incident routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Get("/{id}/events", h.handleEvents)
	r.Post("/{id}/acknowledge", h.handleAcknowledge)
	r.Post("/{id}/unacknowledge", h.handleUnacknowledge)
	r.Post("/{id}/resolve", h.handleResolve)
	r.Post("/{id}/assign", h.handleAssign)
	return r
}

// scopedIncident loads an incident after verifying it sits inside the
// caller's computed scope. Out-of-scope and missing are both NotFound.
func (h *Handler) scopedIncident(r *http.Request) (Incident, error) {
	scope := tenant.FromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return Incident{}, apperr.BadRequest("invalid incident id")
	}

	inc, err := h.service.Get(r.Context(), scope.OrgID, id)
	if err != nil {
		return Incident{}, err
	}

	if inc.ProjectID != nil {
		ok, err := h.authz.CanAccessProject(r.Context(), scope.UserID, *inc.ProjectID)
		if err != nil {
			return Incident{}, err
		}
		if !ok {
			return Incident{}, apperr.NotFound("incident not found")
		}
	} else {
		role, err := h.authz.OrgRole(r.Context(), scope.UserID, scope.OrgID)
		if err != nil {
			return Incident{}, err
		}
		if role == "" {
			return Incident{}, apperr.NotFound("incident not found")
		}
	}

	return inc, nil
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	scope := tenant.FromContext(r.Context())

	params, err := httpserver.ParseCursorParams(r)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, apperr.BadRequest(err.Error()))
		return
	}

	access, err := h.authz.ScopeFilter(r.Context(), scope.UserID, scope.OrgID, scope.ProjectID)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	q := r.URL.Query()
	filters := ListFilters{
		Status:   Status(q.Get("status")),
		Severity: Severity(q.Get("severity")),
		Source:   q.Get("source"),
	}
	if v := q.Get("assigned_to"); v != "" {
		userID, err := uuid.Parse(v)
		if err != nil {
			httpserver.RespondAppError(w, r, h.logger, apperr.BadRequest("assigned_to must be a valid UUID"))
			return
		}
		filters.Assigned = &userID
	}

	scopeSQL, scopeArgs := access.Predicate("project_id", 2)
	items, err := h.service.List(r.Context(), scope.OrgID, scopeSQL, scopeArgs, filters, params.After, params.Limit)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	page := httpserver.NewCursorPage(items, params.Limit, func(i Incident) httpserver.Cursor {
		return httpserver.Cursor{CreatedAt: i.CreatedAt, ID: i.ID}
	})
	httpserver.Respond(w, http.StatusOK, page)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	scope := tenant.FromContext(r.Context())

	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	if req.ProjectID != nil {
		ok, err := h.authz.Check(r.Context(), scope.UserID, authz.ActionCreate, authz.ResourceProject, *req.ProjectID)
		if err != nil {
			httpserver.RespondAppError(w, r, h.logger, err)
			return
		}
		if !ok {
			httpserver.RespondAppError(w, r, h.logger, apperr.Forbidden("not allowed"))
			return
		}
	} else if err := h.authz.RequireOrgAction(r.Context(), scope.UserID, scope.OrgID, "create"); err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	urgency := Urgency(req.Urgency)
	if urgency == "" {
		urgency = UrgencyHigh
	}

	inc, createdNew, err := h.service.UpsertByKey(r.Context(), CreateInput{
		OrgID:              scope.OrgID,
		ProjectID:          req.ProjectID,
		Title:              req.Title,
		Description:        req.Description,
		Severity:           Severity(req.Severity),
		Urgency:            urgency,
		Source:             "manual",
		IncidentKey:        req.IncidentKey,
		GroupID:            req.GroupID,
		EscalationPolicyID: req.EscalationPolicyID,
		CreatedBy:          scope.UserID.String(),
	}, nil)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, "create", "incident", inc.ID, nil)
	}

	status := http.StatusCreated
	if !createdNew {
		status = http.StatusOK
	}
	httpserver.Respond(w, status, inc)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	inc, err := h.scopedIncident(r)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, inc)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	scope := tenant.FromContext(r.Context())

	inc, err := h.scopedIncident(r)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	events, err := h.service.Events(r.Context(), scope.OrgID, inc.ID)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, events)
}

func (h *Handler) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	scope := tenant.FromContext(r.Context())

	inc, err := h.scopedIncident(r)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	updated, err := h.service.Acknowledge(r.Context(), scope.OrgID, inc.ID, scope.UserID)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, "acknowledge", "incident", inc.ID, nil)
	}
	httpserver.Respond(w, http.StatusOK, updated)
}

func (h *Handler) handleUnacknowledge(w http.ResponseWriter, r *http.Request) {
	scope := tenant.FromContext(r.Context())

	inc, err := h.scopedIncident(r)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	updated, err := h.service.Unacknowledge(r.Context(), scope.OrgID, inc.ID, scope.UserID)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, "unacknowledge", "incident", inc.ID, nil)
	}
	httpserver.Respond(w, http.StatusOK, updated)
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	scope := tenant.FromContext(r.Context())

	inc, err := h.scopedIncident(r)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	var req ResolveRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	updated, err := h.service.Resolve(r.Context(), scope.OrgID, inc.ID, scope.UserID.String(), req.Resolution, req.Note)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, "resolve", "incident", inc.ID, nil)
	}
	httpserver.Respond(w, http.StatusOK, updated)
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	scope := tenant.FromContext(r.Context())

	inc, err := h.scopedIncident(r)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	var req AssignRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	updated, err := h.service.Assign(r.Context(), scope.OrgID, inc.ID, req.UserID, scope.UserID)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, "assign", "incident", inc.ID, nil)
	}
	httpserver.Respond(w, http.StatusOK, updated)
}
