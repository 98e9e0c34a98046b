package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wisbric/firewatch/internal/apperr"
	"github.com/wisbric/firewatch/internal/db"
)

// Service answers authorization questions and manages memberships.
type Service struct {
	store  *Store
	logger *slog.Logger
}

// NewService creates an authz Service backed by the given database connection.
func NewService(dbtx db.DBTX, logger *slog.Logger) *Service {
	return &Service{store: NewStore(dbtx), logger: logger}
}

// Store exposes the underlying membership store for handlers.
func (s *Service) Store() *Store { return s.store }

// OrgRole returns the role a user holds on an organization, or "" if none.
func (s *Service) OrgRole(ctx context.Context, userID, orgID uuid.UUID) (Role, error) {
	return s.store.GetRole(ctx, userID, ResourceOrg, orgID)
}

// ProjectRole returns the user's effective role on a project: a direct project
// membership wins; otherwise an org membership is inherited only when the
// project is open, with owner mapping to admin.
func (s *Service) ProjectRole(ctx context.Context, userID, projectID uuid.UUID) (Role, error) {
	direct, err := s.store.GetRole(ctx, userID, ResourceProject, projectID)
	if err != nil {
		return "", err
	}
	if direct != "" {
		return direct, nil
	}

	closed, err := s.store.ProjectHasDirectMembers(ctx, projectID)
	if err != nil {
		return "", err
	}
	if closed {
		// Org-level access never pierces a closed project.
		return "", nil
	}

	orgID, err := s.store.ProjectOrg(ctx, projectID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("resolving project org: %w", err)
	}

	orgRole, err := s.store.GetRole(ctx, userID, ResourceOrg, orgID)
	if err != nil {
		return "", err
	}
	if orgRole == "" {
		return "", nil
	}
	return MapOrgRoleToProjectRole(orgRole), nil
}

// Check answers "can userID perform action on (resourceType, resourceID)?".
// It returns a plain boolean; callers translate denial into Forbidden.
func (s *Service) Check(ctx context.Context, userID uuid.UUID, action Action, rt ResourceType, resourceID uuid.UUID) (bool, error) {
	switch rt {
	case ResourceOrg:
		role, err := s.OrgRole(ctx, userID, resourceID)
		if err != nil {
			return false, err
		}
		return HasPermission(OrgPermissions, role, action), nil
	case ResourceProject:
		role, err := s.ProjectRole(ctx, userID, resourceID)
		if err != nil {
			return false, err
		}
		return HasPermission(ProjectPermissions, role, action), nil
	case ResourceGroup:
		role, err := s.store.GetRole(ctx, userID, ResourceGroup, resourceID)
		if err != nil {
			return false, err
		}
		return HasPermission(ProjectPermissions, role, action), nil
	default:
		return false, nil
	}
}

// CanAccessProject reports whether the user may access the project at all
// (Explicit OR Inherited rule).
func (s *Service) CanAccessProject(ctx context.Context, userID, projectID uuid.UUID) (bool, error) {
	role, err := s.ProjectRole(ctx, userID, projectID)
	if err != nil {
		return false, err
	}
	return role != "", nil
}

// RequireOrgAction checks an org-scoped action and returns Forbidden on denial.
func (s *Service) RequireOrgAction(ctx context.Context, userID, orgID uuid.UUID, action string) error {
	ok, err := s.Check(ctx, userID, Action(action), ResourceOrg, orgID)
	if err != nil {
		return fmt.Errorf("checking org action: %w", err)
	}
	if !ok {
		return apperr.Forbidden("not allowed")
	}
	return nil
}

// ScopeFilter computes the caller's accessible-projects scope within an org.
// When projectID is non-nil the scope is strict: only that project, and only
// if the caller can access it (otherwise NotFound, indistinguishable from a
// missing project).
func (s *Service) ScopeFilter(ctx context.Context, userID, orgID uuid.UUID, projectID *uuid.UUID) (AccessibleProjects, error) {
	if orgID == uuid.Nil {
		return AccessibleProjects{}, apperr.BadRequest("org_id is required")
	}

	if projectID != nil {
		ok, err := s.CanAccessProject(ctx, userID, *projectID)
		if err != nil {
			return AccessibleProjects{}, err
		}
		if !ok {
			return AccessibleProjects{}, apperr.NotFound("project not found")
		}
		return AccessibleProjects{Strict: true, ProjectIDs: []uuid.UUID{*projectID}}, nil
	}

	orgRole, err := s.OrgRole(ctx, userID, orgID)
	if err != nil {
		return AccessibleProjects{}, err
	}

	direct, err := s.store.ListDirectProjectIDs(ctx, userID, orgID)
	if err != nil {
		return AccessibleProjects{}, err
	}

	if orgRole == "" {
		if len(direct) == 0 {
			return AccessibleProjects{}, apperr.Forbidden("no access to organization")
		}
		// Project-only principal: sees only their projects, no org-level rows.
		return AccessibleProjects{ProjectIDs: direct}, nil
	}

	open, err := s.store.ListOpenProjectIDs(ctx, orgID)
	if err != nil {
		return AccessibleProjects{}, err
	}

	return AccessibleProjects{
		IncludeOrgLevel: true,
		ProjectIDs:      unionIDs(open, direct),
	}, nil
}

// AddMembership creates a membership fact after validating the role/resource
// combination (owner exists only at org level).
func (s *Service) AddMembership(ctx context.Context, m Membership) (Membership, error) {
	if !ValidRole(m.Role) {
		return Membership{}, apperr.BadRequest("invalid role")
	}
	if m.Role == RoleOwner && m.ResourceType != ResourceOrg {
		return Membership{}, apperr.BadRequest("owner role applies to organizations only")
	}

	created, err := s.store.Add(ctx, m)
	if err != nil {
		if isUniqueViolation(err) {
			return Membership{}, apperr.Conflict("membership already exists")
		}
		return Membership{}, fmt.Errorf("adding membership: %w", err)
	}
	return created, nil
}

// UpdateMembershipRole mutates an existing membership's role in place.
func (s *Service) UpdateMembershipRole(ctx context.Context, userID uuid.UUID, rt ResourceType, resourceID uuid.UUID, role Role) (Membership, error) {
	if role == RoleOwner && rt != ResourceOrg {
		return Membership{}, apperr.BadRequest("owner role applies to organizations only")
	}
	updated, err := s.store.UpdateRole(ctx, userID, rt, resourceID, role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Membership{}, apperr.NotFound("membership not found")
		}
		return Membership{}, fmt.Errorf("updating membership role: %w", err)
	}
	return updated, nil
}

// RemoveMembership deletes a membership fact.
func (s *Service) RemoveMembership(ctx context.Context, userID uuid.UUID, rt ResourceType, resourceID uuid.UUID) error {
	if err := s.store.Remove(ctx, userID, rt, resourceID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("membership not found")
		}
		return fmt.Errorf("removing membership: %w", err)
	}
	return nil
}

func unionIDs(a, b []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(a)+len(b))
	out := make([]uuid.UUID, 0, len(a)+len(b))
	for _, id := range a {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, id := range b {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
