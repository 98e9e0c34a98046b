package schedule

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wisbric/firewatch/internal/apperr"
	"github.com/wisbric/firewatch/internal/audit"
	"github.com/wisbric/firewatch/internal/httpserver"
	"github.com/wisbric/firewatch/pkg/authz"
	"github.com/wisbric/firewatch/pkg/tenant"
)

// Handler provides HTTP handlers for schedule, override and on-call endpoints.
// Routes mount under /groups/{groupID}.
type Handler struct {
	logger  *slog.Logger
	audit   *audit.Writer
	service *Service
	authz   *authz.Service
}

// NewHandler creates a schedule Handler.
func NewHandler(logger *slog.Logger, auditW *audit.Writer, service *Service, authzSvc *authz.Service) *Handler {
	return &Handler{logger: logger, audit: auditW, service: service, authz: authzSvc}
}

// RegisterGroupRoutes registers the schedule routes on the groups router;
// every path is keyed by {groupID}.
func (h *Handler) RegisterGroupRoutes(r chi.Router) {
	r.Get("/{groupID}/schedule", h.handleGetSchedule)
	r.Put("/{groupID}/schedule", h.handleReplaceSchedule)
	r.Get("/{groupID}/oncall", h.handleOnCall)
	r.Get("/{groupID}/shifts", h.handleShifts)
	r.Get("/{groupID}/overrides", h.handleListOverrides)
	r.Post("/{groupID}/overrides", h.handleCreateOverride)
	r.Delete("/{groupID}/overrides/{overrideID}", h.handleDeleteOverride)
}

// PreviewRoutes returns the standalone schedule-preview route.
func (h *Handler) PreviewRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handlePreview)
	return r
}

func groupIDFromRequest(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "groupID"))
	if err != nil {
		return uuid.Nil, apperr.BadRequest("invalid group id")
	}
	return id, nil
}

func (h *Handler) requireGroupView(r *http.Request, groupID uuid.UUID) error {
	scope := tenant.FromContext(r.Context())
	// Org members may view group schedules; group membership is not required.
	return h.authz.RequireOrgAction(r.Context(), scope.UserID, scope.OrgID, "view")
}

func (h *Handler) requireGroupUpdate(r *http.Request, groupID uuid.UUID) error {
	scope := tenant.FromContext(r.Context())

	ok, err := h.authz.Check(r.Context(), scope.UserID, authz.ActionUpdate, authz.ResourceGroup, groupID)
	if err != nil {
		return err
	}
	if !ok {
		ok, err = h.authz.Check(r.Context(), scope.UserID, authz.ActionUpdate, authz.ResourceOrg, scope.OrgID)
		if err != nil {
			return err
		}
	}
	if !ok {
		return apperr.Forbidden("not allowed")
	}
	return nil
}

func (h *Handler) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	groupID, err := groupIDFromRequest(r)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}
	if err := h.requireGroupView(r, groupID); err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	sched, err := h.service.Get(r.Context(), groupID)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, scheduleResponse(sched))
}

func (h *Handler) handleReplaceSchedule(w http.ResponseWriter, r *http.Request) {
	scope := tenant.FromContext(r.Context())

	groupID, err := groupIDFromRequest(r)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}
	if err := h.requireGroupUpdate(r, groupID); err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	var req CreateScheduleRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	sched, err := h.service.Replace(r.Context(), scope.OrgID, groupID, req)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, "replace", "schedule", sched.ID, nil)
	}
	httpserver.Respond(w, http.StatusOK, scheduleResponse(sched))
}

func (h *Handler) handleOnCall(w http.ResponseWriter, r *http.Request) {
	groupID, err := groupIDFromRequest(r)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}
	if err := h.requireGroupView(r, groupID); err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	at := time.Now().UTC()
	if v := r.URL.Query().Get("at"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httpserver.RespondAppError(w, r, h.logger, apperr.BadRequest("at must be RFC 3339"))
			return
		}
		at = parsed.UTC()
	}

	userID, source, ok, err := h.service.WhoIsOnCall(r.Context(), groupID, at)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	resp := OnCallResponse{GroupID: groupID, At: at, Source: source}
	if ok {
		resp.UserID = &userID
	}
	httpserver.Respond(w, http.StatusOK, resp)
}

func (h *Handler) handleShifts(w http.ResponseWriter, r *http.Request) {
	groupID, err := groupIDFromRequest(r)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}
	if err := h.requireGroupView(r, groupID); err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	window, err := windowFromRequest(r)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	shifts, err := h.service.Shifts(r.Context(), groupID, window)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}
	if shifts == nil {
		shifts = []Shift{}
	}
	httpserver.Respond(w, http.StatusOK, shifts)
}

func (h *Handler) handleListOverrides(w http.ResponseWriter, r *http.Request) {
	groupID, err := groupIDFromRequest(r)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}
	if err := h.requireGroupView(r, groupID); err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	window, err := windowFromRequest(r)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	overrides, err := h.service.ListOverrides(r.Context(), groupID, window)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, overrides)
}

func (h *Handler) handleCreateOverride(w http.ResponseWriter, r *http.Request) {
	scope := tenant.FromContext(r.Context())

	groupID, err := groupIDFromRequest(r)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}
	if err := h.requireGroupUpdate(r, groupID); err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	var req CreateOverrideRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	override, err := h.service.CreateOverride(r.Context(), groupID, req, scope.UserID)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, "create", "override", override.ID, nil)
	}
	httpserver.Respond(w, http.StatusCreated, override)
}

func (h *Handler) handleDeleteOverride(w http.ResponseWriter, r *http.Request) {
	groupID, err := groupIDFromRequest(r)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}
	if err := h.requireGroupUpdate(r, groupID); err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	overrideID, err := uuid.Parse(chi.URLParam(r, "overrideID"))
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, apperr.BadRequest("invalid override id"))
		return
	}

	if err := h.service.DeleteOverride(r.Context(), groupID, overrideID); err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, "delete", "override", overrideID, nil)
	}
	httpserver.Respond(w, http.StatusNoContent, nil)
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	shifts, err := h.service.Preview(req)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}
	if shifts == nil {
		shifts = []Shift{}
	}
	httpserver.Respond(w, http.StatusOK, shifts)
}

// windowFromRequest parses from/to query params, defaulting to the next 14 days.
func windowFromRequest(r *http.Request) (Window, error) {
	now := time.Now().UTC()
	w := Window{From: now, To: now.Add(14 * 24 * time.Hour)}

	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return Window{}, apperr.BadRequest("from must be RFC 3339")
		}
		w.From = t.UTC()
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return Window{}, apperr.BadRequest("to must be RFC 3339")
		}
		w.To = t.UTC()
	}
	return w, nil
}

// layerView is the JSON shape of a layer (shift length in minutes).
type layerView struct {
	ID                 uuid.UUID    `json:"id"`
	Position           int          `json:"position"`
	Participants       []uuid.UUID  `json:"participants"`
	ShiftLengthMinutes int          `json:"shift_length_minutes"`
	Anchor             time.Time    `json:"anchor"`
	Restriction        *Restriction `json:"restriction,omitempty"`
}

type scheduleView struct {
	ID        uuid.UUID   `json:"id"`
	GroupID   uuid.UUID   `json:"group_id"`
	Name      string      `json:"name"`
	Layers    []layerView `json:"layers"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func scheduleResponse(s Schedule) scheduleView {
	layers := make([]layerView, 0, len(s.Layers))
	for _, l := range s.Layers {
		layers = append(layers, layerView{
			ID:                 l.ID,
			Position:           l.Position,
			Participants:       l.Participants,
			ShiftLengthMinutes: int(l.ShiftLength / time.Minute),
			Anchor:             l.Anchor,
			Restriction:        l.Restriction,
		})
	}
	return scheduleView{
		ID:        s.ID,
		GroupID:   s.GroupID,
		Name:      s.Name,
		Layers:    layers,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}
