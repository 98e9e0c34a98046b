package user

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wisbric/firewatch/internal/db"
)

// Store provides database operations for users.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates a user Store backed by the given database connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

const userColumns = `id, email, display_name, created_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.CreatedAt)
	return u, err
}

// Create inserts a new user.
func (s *Store) Create(ctx context.Context, email, displayName string) (User, error) {
	query := `INSERT INTO users (email, display_name) VALUES ($1, $2) RETURNING ` + userColumns
	return scanUser(s.dbtx.QueryRow(ctx, query, email, displayName))
}

// Get returns a user by ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(s.dbtx.QueryRow(ctx, query, id))
}

// GetByEmail returns a user by email.
func (s *Store) GetByEmail(ctx context.Context, email string) (User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(s.dbtx.QueryRow(ctx, query, email))
}

// DisplayName returns a user's display name, or the id string when the user
// row is missing (notifications should never fail on a lookup).
func (s *Store) DisplayName(ctx context.Context, id uuid.UUID) string {
	u, err := s.Get(ctx, id)
	if err != nil {
		return id.String()
	}
	return u.DisplayName
}

// ListByIDs returns the users with the given IDs.
func (s *Store) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ANY($1) ORDER BY display_name`
	rows, err := s.dbtx.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var items []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.DisplayName, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning user row: %w", err)
		}
		items = append(items, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user rows: %w", err)
	}
	return items, nil
}
