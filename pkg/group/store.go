package group

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/wisbric/firewatch/internal/db"
)

// Store provides database operations for groups.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates a group Store backed by the given database connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

const groupColumns = `id, org_id, project_id, name, visibility, created_at, updated_at`

func scanGroup(row pgx.Row) (Group, error) {
	var g Group
	var projectID pgtype.UUID
	err := row.Scan(&g.ID, &g.OrgID, &projectID, &g.Name, &g.Visibility, &g.CreatedAt, &g.UpdatedAt)
	if projectID.Valid {
		id := uuid.UUID(projectID.Bytes)
		g.ProjectID = &id
	}
	return g, err
}

// Create inserts a new group.
func (s *Store) Create(ctx context.Context, orgID uuid.UUID, projectID *uuid.UUID, name string, visibility Visibility) (Group, error) {
	var pid pgtype.UUID
	if projectID != nil {
		pid = pgtype.UUID{Bytes: *projectID, Valid: true}
	}
	query := `INSERT INTO groups (org_id, project_id, name, visibility)
	VALUES ($1, $2, $3, $4) RETURNING ` + groupColumns
	return scanGroup(s.dbtx.QueryRow(ctx, query, orgID, pid, name, visibility))
}

// Get returns a group by ID within an organization.
func (s *Store) Get(ctx context.Context, orgID, id uuid.UUID) (Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups WHERE org_id = $1 AND id = $2`
	return scanGroup(s.dbtx.QueryRow(ctx, query, orgID, id))
}

// List returns the organization's groups, optionally restricted by the scope
// predicate the caller computed.
func (s *Store) List(ctx context.Context, orgID uuid.UUID, scopeSQL string, scopeArgs []any) ([]Group, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM groups WHERE org_id = $1 AND %s ORDER BY name`,
		groupColumns, scopeSQL,
	)
	args := append([]any{orgID}, scopeArgs...)

	rows, err := s.dbtx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing groups: %w", err)
	}
	defer rows.Close()

	var items []Group
	for rows.Next() {
		var g Group
		var projectID pgtype.UUID
		if err := rows.Scan(&g.ID, &g.OrgID, &projectID, &g.Name, &g.Visibility, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning group row: %w", err)
		}
		if projectID.Valid {
			id := uuid.UUID(projectID.Bytes)
			g.ProjectID = &id
		}
		items = append(items, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating group rows: %w", err)
	}
	return items, nil
}
