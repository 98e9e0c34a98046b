// Package group models on-call teams: the unit schedules and escalation
// policies attach to.
package group

import (
	"time"

	"github.com/google/uuid"
)

// Visibility controls who can see a group.
type Visibility string

const (
	VisibilityPublic       Visibility = "public"
	VisibilityOrganization Visibility = "organization"
	VisibilityPrivate      Visibility = "private"
)

// Group is an on-call team within an organization, optionally bound to a project.
type Group struct {
	ID         uuid.UUID  `json:"id"`
	OrgID      uuid.UUID  `json:"org_id"`
	ProjectID  *uuid.UUID `json:"project_id,omitempty"`
	Name       string     `json:"name"`
	Visibility Visibility `json:"visibility"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// CreateRequest is the JSON body for POST /api/v1/groups.
type CreateRequest struct {
	Name       string     `json:"name" validate:"required,min=2"`
	ProjectID  *uuid.UUID `json:"project_id"`
	Visibility string     `json:"visibility" validate:"omitempty,oneof=public organization private"`
}
