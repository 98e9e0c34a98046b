package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wisbric/firewatch/internal/db"
)

// isUniqueViolation reports whether err is a Postgres unique-constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Store provides database operations over the membership relation.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates an authz Store backed by the given database connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

const membershipColumns = `user_id, role, resource_type, resource_id, created_at, updated_at`

// Add inserts a membership fact. A duplicate (user, type, id) key surfaces as
// a unique violation for the caller to translate.
func (s *Store) Add(ctx context.Context, m Membership) (Membership, error) {
	query := `INSERT INTO memberships (user_id, role, resource_type, resource_id)
	VALUES ($1, $2, $3, $4)
	RETURNING ` + membershipColumns
	row := s.dbtx.QueryRow(ctx, query, m.UserID, m.Role, m.ResourceType, m.ResourceID)
	return scanMembership(row)
}

// UpdateRole mutates the role of an existing membership in place.
func (s *Store) UpdateRole(ctx context.Context, userID uuid.UUID, rt ResourceType, resourceID uuid.UUID, role Role) (Membership, error) {
	query := `UPDATE memberships SET role = $4, updated_at = now()
	WHERE user_id = $1 AND resource_type = $2 AND resource_id = $3
	RETURNING ` + membershipColumns
	row := s.dbtx.QueryRow(ctx, query, userID, rt, resourceID, role)
	return scanMembership(row)
}

// Remove deletes a membership fact.
func (s *Store) Remove(ctx context.Context, userID uuid.UUID, rt ResourceType, resourceID uuid.UUID) error {
	query := `DELETE FROM memberships
	WHERE user_id = $1 AND resource_type = $2 AND resource_id = $3`
	tag, err := s.dbtx.Exec(ctx, query, userID, rt, resourceID)
	if err != nil {
		return fmt.Errorf("removing membership: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListResourceMembers returns all memberships on a resource.
func (s *Store) ListResourceMembers(ctx context.Context, rt ResourceType, resourceID uuid.UUID) ([]Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM memberships
	WHERE resource_type = $1 AND resource_id = $2
	ORDER BY created_at, user_id`
	rows, err := s.dbtx.Query(ctx, query, rt, resourceID)
	if err != nil {
		return nil, fmt.Errorf("listing resource members: %w", err)
	}
	return scanMemberships(rows)
}

// ListUserMemberships returns all memberships held by a user.
func (s *Store) ListUserMemberships(ctx context.Context, userID uuid.UUID) ([]Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM memberships
	WHERE user_id = $1
	ORDER BY resource_type, created_at`
	rows, err := s.dbtx.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("listing user memberships: %w", err)
	}
	return scanMemberships(rows)
}

// GetRole returns the role a user holds directly on a resource, or "" if none.
func (s *Store) GetRole(ctx context.Context, userID uuid.UUID, rt ResourceType, resourceID uuid.UUID) (Role, error) {
	var role Role
	err := s.dbtx.QueryRow(ctx, `
		SELECT role FROM memberships
		WHERE user_id = $1 AND resource_type = $2 AND resource_id = $3`,
		userID, rt, resourceID,
	).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting role: %w", err)
	}
	return role, nil
}

// ProjectOrg returns the organization owning a project.
func (s *Store) ProjectOrg(ctx context.Context, projectID uuid.UUID) (uuid.UUID, error) {
	var orgID uuid.UUID
	err := s.dbtx.QueryRow(ctx, `SELECT org_id FROM projects WHERE id = $1`, projectID).Scan(&orgID)
	if err != nil {
		return uuid.Nil, err
	}
	return orgID, nil
}

// ProjectHasDirectMembers reports whether any project-level membership exists,
// i.e. whether the project is closed.
func (s *Store) ProjectHasDirectMembers(ctx context.Context, projectID uuid.UUID) (bool, error) {
	var exists bool
	err := s.dbtx.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM memberships
			WHERE resource_type = 'project' AND resource_id = $1
		)`, projectID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking project members: %w", err)
	}
	return exists, nil
}

// ListOpenProjectIDs returns the projects of an org with no direct memberships.
func (s *Store) ListOpenProjectIDs(ctx context.Context, orgID uuid.UUID) ([]uuid.UUID, error) {
	query := `SELECT p.id FROM projects p
	WHERE p.org_id = $1
	  AND NOT EXISTS(
		SELECT 1 FROM memberships m
		WHERE m.resource_type = 'project' AND m.resource_id = p.id
	  )
	ORDER BY p.id`
	return s.queryIDs(ctx, query, orgID)
}

// ListDirectProjectIDs returns the org's projects where the user holds a
// direct project membership.
func (s *Store) ListDirectProjectIDs(ctx context.Context, userID, orgID uuid.UUID) ([]uuid.UUID, error) {
	query := `SELECT p.id FROM projects p
	JOIN memberships m ON m.resource_type = 'project' AND m.resource_id = p.id
	WHERE m.user_id = $1 AND p.org_id = $2
	ORDER BY p.id`
	return s.queryIDs(ctx, query, userID, orgID)
}

func (s *Store) queryIDs(ctx context.Context, query string, args ...any) ([]uuid.UUID, error) {
	rows, err := s.dbtx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ids: %w", err)
	}
	return ids, nil
}

func scanMembership(row pgx.Row) (Membership, error) {
	var m Membership
	err := row.Scan(&m.UserID, &m.Role, &m.ResourceType, &m.ResourceID, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

func scanMemberships(rows pgx.Rows) ([]Membership, error) {
	defer rows.Close()
	var items []Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.UserID, &m.Role, &m.ResourceType, &m.ResourceID, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning membership row: %w", err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating membership rows: %w", err)
	}
	return items, nil
}
