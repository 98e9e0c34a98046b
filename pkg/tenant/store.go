package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wisbric/firewatch/internal/db"
)

// Store provides database operations for organizations and projects.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates a tenant Store backed by the given database connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

const orgColumns = `id, slug, name, created_at, updated_at`

func scanOrg(row pgx.Row) (Organization, error) {
	var o Organization
	err := row.Scan(&o.ID, &o.Slug, &o.Name, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

// CreateOrg inserts a new organization.
func (s *Store) CreateOrg(ctx context.Context, slug, name string) (Organization, error) {
	query := `INSERT INTO organizations (slug, name) VALUES ($1, $2) RETURNING ` + orgColumns
	return scanOrg(s.dbtx.QueryRow(ctx, query, slug, name))
}

// GetOrg returns an organization by ID.
func (s *Store) GetOrg(ctx context.Context, id uuid.UUID) (Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations WHERE id = $1`
	return scanOrg(s.dbtx.QueryRow(ctx, query, id))
}

// GetOrgBySlug returns an organization by slug.
func (s *Store) GetOrgBySlug(ctx context.Context, slug string) (Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations WHERE slug = $1`
	return scanOrg(s.dbtx.QueryRow(ctx, query, slug))
}

const projectColumns = `id, org_id, slug, name, created_at, updated_at`

func scanProject(row pgx.Row) (Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.OrgID, &p.Slug, &p.Name, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// CreateProject inserts a new project within an organization.
func (s *Store) CreateProject(ctx context.Context, orgID uuid.UUID, slug, name string) (Project, error) {
	query := `INSERT INTO projects (org_id, slug, name) VALUES ($1, $2, $3) RETURNING ` + projectColumns
	return scanProject(s.dbtx.QueryRow(ctx, query, orgID, slug, name))
}

// GetProject returns a project by ID, scoped to an organization.
func (s *Store) GetProject(ctx context.Context, orgID, id uuid.UUID) (Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE org_id = $1 AND id = $2`
	return scanProject(s.dbtx.QueryRow(ctx, query, orgID, id))
}

// ListProjects returns all projects in an organization ordered by slug.
func (s *Store) ListProjects(ctx context.Context, orgID uuid.UUID) ([]Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE org_id = $1 ORDER BY slug`
	rows, err := s.dbtx.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	var items []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.OrgID, &p.Slug, &p.Name, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning project row: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating project rows: %w", err)
	}
	return items, nil
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation (duplicate slug, duplicate membership, racing keyed insert).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// IsNoRows reports whether err means the query matched nothing.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
