// Package authz implements relationship-based access control over a single
// membership relation. Every "can X do Y on Z" question resolves through
// (subject, role, resource_type, resource_id) facts; list endpoints get their
// tenant filter from the computed scope.
package authz

import (
	"time"

	"github.com/google/uuid"
)

// Role is the relation a subject holds on a resource.
type Role string

const (
	RoleOwner  Role = "owner" // org only
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

// ValidRole reports whether r is a known role.
func ValidRole(r Role) bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember, RoleViewer:
		return true
	}
	return false
}

// Action is an operation a subject attempts on a resource.
type Action string

const (
	ActionView          Action = "view"
	ActionCreate        Action = "create"
	ActionUpdate        Action = "update"
	ActionDelete        Action = "delete"
	ActionManageMembers Action = "manage_members"
)

// ResourceType is the kind of object a membership attaches to.
type ResourceType string

const (
	ResourceOrg     ResourceType = "org"
	ResourceProject ResourceType = "project"
	ResourceGroup   ResourceType = "group"
)

// Membership is one fact in the relation table.
type Membership struct {
	UserID       uuid.UUID    `json:"user_id"`
	Role         Role         `json:"role"`
	ResourceType ResourceType `json:"resource_type"`
	ResourceID   uuid.UUID    `json:"resource_id"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// PermissionMatrix maps roles to the set of actions they allow. Deny by default:
// anything not present is forbidden.
type PermissionMatrix map[Role]map[Action]bool

// OrgPermissions is the matrix for organization-scoped actions. Admins cannot
// delete the organization itself.
var OrgPermissions = PermissionMatrix{
	RoleOwner: {
		ActionView: true, ActionCreate: true, ActionUpdate: true,
		ActionDelete: true, ActionManageMembers: true,
	},
	RoleAdmin: {
		ActionView: true, ActionCreate: true, ActionUpdate: true,
		ActionManageMembers: true,
	},
	RoleMember: {
		ActionView: true, ActionCreate: true,
	},
	RoleViewer: {
		ActionView: true,
	},
}

// ProjectPermissions is the matrix for project-scoped actions.
var ProjectPermissions = PermissionMatrix{
	RoleAdmin: {
		ActionView: true, ActionCreate: true, ActionUpdate: true,
		ActionDelete: true, ActionManageMembers: true,
	},
	RoleMember: {
		ActionView: true, ActionCreate: true,
	},
	RoleViewer: {
		ActionView: true,
	},
}

// HasPermission reports whether role allows action under the given matrix.
func HasPermission(m PermissionMatrix, role Role, action Action) bool {
	return m[role][action]
}

// MapOrgRoleToProjectRole maps an inherited org role to its effective project
// role for open projects.
func MapOrgRoleToProjectRole(orgRole Role) Role {
	if orgRole == RoleOwner {
		return RoleAdmin
	}
	return orgRole
}

// AddMemberRequest is the JSON body for POST /api/v1/memberships.
type AddMemberRequest struct {
	UserID       uuid.UUID `json:"user_id" validate:"required"`
	Role         string    `json:"role" validate:"required,oneof=owner admin member viewer"`
	ResourceType string    `json:"resource_type" validate:"required,oneof=org project group"`
	ResourceID   uuid.UUID `json:"resource_id" validate:"required"`
}

// UpdateRoleRequest is the JSON body for PUT /api/v1/memberships.
type UpdateRoleRequest struct {
	UserID       uuid.UUID `json:"user_id" validate:"required"`
	Role         string    `json:"role" validate:"required,oneof=owner admin member viewer"`
	ResourceType string    `json:"resource_type" validate:"required,oneof=org project group"`
	ResourceID   uuid.UUID `json:"resource_id" validate:"required"`
}

// RemoveMemberRequest is the JSON body for DELETE /api/v1/memberships.
type RemoveMemberRequest struct {
	UserID       uuid.UUID `json:"user_id" validate:"required"`
	ResourceType string    `json:"resource_type" validate:"required,oneof=org project group"`
	ResourceID   uuid.UUID `json:"resource_id" validate:"required"`
}
