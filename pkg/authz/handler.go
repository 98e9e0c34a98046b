package authz

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wisbric/firewatch/internal/apperr"
	"github.com/wisbric/firewatch/internal/audit"
	"github.com/wisbric/firewatch/internal/httpserver"
	"github.com/wisbric/firewatch/pkg/tenant"
)

// Handler provides HTTP handlers for membership endpoints.
type Handler struct {
	logger  *slog.Logger
	audit   *audit.Writer
	service *Service
}

// NewHandler creates an authz Handler.
func NewHandler(logger *slog.Logger, auditW *audit.Writer, service *Service) *Handler {
	return &Handler{logger: logger, audit: auditW, service: service}
}

// Routes returns a chi.Router with membership routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleAdd)
	r.Put("/", h.handleUpdateRole)
	r.Delete("/", h.handleRemove)
	r.Get("/resource/{type}/{id}", h.handleListResourceMembers)
	r.Get("/mine", h.handleListMine)
	return r
}

// requireManage verifies the caller may manage members on the target resource.
// Managing group members requires manage_members on the group's organization or
// on the group itself.
func (h *Handler) requireManage(r *http.Request, rt ResourceType, resourceID uuid.UUID) error {
	scope := tenant.FromContext(r.Context())

	ok, err := h.service.Check(r.Context(), scope.UserID, ActionManageMembers, rt, resourceID)
	if err != nil {
		return err
	}
	if !ok && rt != ResourceOrg {
		// Fall back to org-level manage permission.
		ok, err = h.service.Check(r.Context(), scope.UserID, ActionManageMembers, ResourceOrg, scope.OrgID)
		if err != nil {
			return err
		}
	}
	if !ok {
		return apperr.Forbidden("not allowed to manage members")
	}
	return nil
}

func (h *Handler) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req AddMemberRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	rt := ResourceType(req.ResourceType)
	if err := h.requireManage(r, rt, req.ResourceID); err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	m, err := h.service.AddMembership(r.Context(), Membership{
		UserID:       req.UserID,
		Role:         Role(req.Role),
		ResourceType: rt,
		ResourceID:   req.ResourceID,
	})
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	if h.audit != nil {
		detail, _ := json.Marshal(map[string]string{"role": req.Role, "resource_type": req.ResourceType})
		h.audit.LogFromRequest(r, "add_member", "membership", req.ResourceID, detail)
	}
	httpserver.Respond(w, http.StatusCreated, m)
}

func (h *Handler) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	var req UpdateRoleRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	rt := ResourceType(req.ResourceType)
	if err := h.requireManage(r, rt, req.ResourceID); err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	m, err := h.service.UpdateMembershipRole(r.Context(), req.UserID, rt, req.ResourceID, Role(req.Role))
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	if h.audit != nil {
		detail, _ := json.Marshal(map[string]string{"role": req.Role})
		h.audit.LogFromRequest(r, "update_member_role", "membership", req.ResourceID, detail)
	}
	httpserver.Respond(w, http.StatusOK, m)
}

func (h *Handler) handleRemove(w http.ResponseWriter, r *http.Request) {
	var req RemoveMemberRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	rt := ResourceType(req.ResourceType)
	if err := h.requireManage(r, rt, req.ResourceID); err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	if err := h.service.RemoveMembership(r.Context(), req.UserID, rt, req.ResourceID); err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, "remove_member", "membership", req.ResourceID, nil)
	}
	httpserver.Respond(w, http.StatusNoContent, nil)
}

func (h *Handler) handleListResourceMembers(w http.ResponseWriter, r *http.Request) {
	scope := tenant.FromContext(r.Context())

	rt := ResourceType(chi.URLParam(r, "type"))
	switch rt {
	case ResourceOrg, ResourceProject, ResourceGroup:
	default:
		httpserver.RespondAppError(w, r, h.logger, apperr.BadRequest("invalid resource type"))
		return
	}

	resourceID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, apperr.BadRequest("invalid resource id"))
		return
	}

	ok, err := h.service.Check(r.Context(), scope.UserID, ActionView, rt, resourceID)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}
	if !ok {
		httpserver.RespondAppError(w, r, h.logger, apperr.NotFound("resource not found"))
		return
	}

	members, err := h.service.Store().ListResourceMembers(r.Context(), rt, resourceID)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}
	if members == nil {
		members = []Membership{}
	}
	httpserver.Respond(w, http.StatusOK, members)
}

func (h *Handler) handleListMine(w http.ResponseWriter, r *http.Request) {
	scope := tenant.FromContext(r.Context())

	memberships, err := h.service.Store().ListUserMemberships(r.Context(), scope.UserID)
	if err != nil {
		httpserver.RespondAppError(w, r, h.logger, err)
		return
	}
	if memberships == nil {
		memberships = []Membership{}
	}
	httpserver.Respond(w, http.StatusOK, memberships)
}
