// Package tenant provides the organization/project tenancy model and the
// request-scope middleware that every API route runs behind.
package tenant

import (
	"time"

	"github.com/google/uuid"
)

// Organization is the top-level tenant. Everything except users is
// transitively owned by exactly one organization.
type Organization struct {
	ID        uuid.UUID `json:"id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Project is a grouping within an organization. Whether a project is "open"
// (no direct project memberships) is derived, never stored.
type Project struct {
	ID        uuid.UUID `json:"id"`
	OrgID     uuid.UUID `json:"org_id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateOrgRequest is the JSON body for creating an organization. No API
// route accepts it: organization creation is a bootstrap operation outside
// the scoped API.
type CreateOrgRequest struct {
	Slug string `json:"slug" validate:"required,min=2,max=64"`
	Name string `json:"name" validate:"required,min=2"`
}

// CreateProjectRequest is the JSON body for POST /api/v1/projects.
type CreateProjectRequest struct {
	Slug string `json:"slug" validate:"required,min=2,max=64"`
	Name string `json:"name" validate:"required,min=2"`
}

// Scope is the tenant context attached to every authenticated request:
// the acting principal, the organization, and an optional project narrowing.
type Scope struct {
	UserID    uuid.UUID
	OrgID     uuid.UUID
	ProjectID *uuid.UUID
}
