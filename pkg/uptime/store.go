package uptime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/wisbric/firewatch/internal/db"
)

// Store provides database operations for monitors, checks and external monitors.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates an uptime Store backed by the given database connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

const monitorColumns = `id, org_id, project_id, name, url, is_up, last_latency, last_status,
	last_error, last_check_at, group_id, escalation_policy_id, created_at, updated_at`

func scanMonitor(row pgx.Row) (Monitor, error) {
	var (
		m         Monitor
		projectID pgtype.UUID
		isUp      pgtype.Bool
		latency   pgtype.Int4
		status    pgtype.Int4
		lastErr   pgtype.Text
		checkAt   pgtype.Timestamptz
		groupID   pgtype.UUID
		policyID  pgtype.UUID
	)
	err := row.Scan(&m.ID, &m.OrgID, &projectID, &m.Name, &m.URL, &isUp, &latency, &status,
		&lastErr, &checkAt, &groupID, &policyID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return Monitor{}, err
	}
	if projectID.Valid {
		id := uuid.UUID(projectID.Bytes)
		m.ProjectID = &id
	}
	if isUp.Valid {
		v := isUp.Bool
		m.IsUp = &v
	}
	if latency.Valid {
		v := int(latency.Int32)
		m.LastLatency = &v
	}
	if status.Valid {
		v := int(status.Int32)
		m.LastStatus = &v
	}
	if lastErr.Valid {
		v := lastErr.String
		m.LastError = &v
	}
	if checkAt.Valid {
		v := checkAt.Time
		m.LastCheckAt = &v
	}
	if groupID.Valid {
		id := uuid.UUID(groupID.Bytes)
		m.GroupID = &id
	}
	if policyID.Valid {
		id := uuid.UUID(policyID.Bytes)
		m.PolicyID = &id
	}
	return m, nil
}

// Create inserts a monitor.
func (s *Store) Create(ctx context.Context, orgID uuid.UUID, req CreateMonitorRequest) (Monitor, error) {
	query := `INSERT INTO uptime_monitors (org_id, project_id, name, url, group_id, escalation_policy_id)
	VALUES ($1, $2, $3, $4, $5, $6) RETURNING ` + monitorColumns
	return scanMonitor(s.dbtx.QueryRow(ctx, query,
		orgID, toPg(req.ProjectID), req.Name, req.URL, toPg(req.GroupID), toPg(req.PolicyID)))
}

func toPg(id *uuid.UUID) pgtype.UUID {
	if id == nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: *id, Valid: true}
}

// Get locks and returns a monitor. The row lock serializes concurrent probe
// reports for the same monitor so transitions fire exactly once.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Monitor, error) {
	query := `SELECT ` + monitorColumns + ` FROM uptime_monitors WHERE id = $1 FOR UPDATE`
	return scanMonitor(s.dbtx.QueryRow(ctx, query, id))
}

// List returns an organization's monitors.
func (s *Store) List(ctx context.Context, orgID uuid.UUID, scopeSQL string, scopeArgs []any) ([]Monitor, error) {
	query := fmt.Sprintf(`SELECT %s FROM uptime_monitors WHERE org_id = $1 AND %s ORDER BY name`,
		monitorColumns, scopeSQL)
	args := append([]any{orgID}, scopeArgs...)

	rows, err := s.dbtx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing monitors: %w", err)
	}
	defer rows.Close()

	var items []Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning monitor row: %w", err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating monitor rows: %w", err)
	}
	return items, nil
}

// UpdateState records the latest probe outcome on the monitor.
func (s *Store) UpdateState(ctx context.Context, id uuid.UUID, r ProbeResult, at time.Time) error {
	query := `UPDATE uptime_monitors SET
		is_up = $2, last_latency = $3, last_status = $4, last_error = $5,
		last_check_at = $6, updated_at = now()
	WHERE id = $1`
	var lastErr pgtype.Text
	if r.Error != "" {
		lastErr = pgtype.Text{String: r.Error, Valid: true}
	}
	if _, err := s.dbtx.Exec(ctx, query, id, r.IsUp, r.Latency, r.Status, lastErr, at); err != nil {
		return fmt.Errorf("updating monitor state: %w", err)
	}
	return nil
}

// AppendCheck inserts one immutable probe sample.
func (s *Store) AppendCheck(ctx context.Context, monitorID uuid.UUID, location string, r ProbeResult, at time.Time) error {
	query := `INSERT INTO uptime_checks (monitor_id, location, is_up, latency_ms, status, error, checked_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := s.dbtx.Exec(ctx, query, monitorID, location, r.IsUp, r.Latency, r.Status, r.Error, at); err != nil {
		return fmt.Errorf("appending uptime check: %w", err)
	}
	return nil
}

// ListChecks returns a monitor's recent samples, newest first.
func (s *Store) ListChecks(ctx context.Context, monitorID uuid.UUID, limit int) ([]Check, error) {
	query := `SELECT id, monitor_id, location, is_up, latency_ms, status, error, checked_at
	FROM uptime_checks WHERE monitor_id = $1 ORDER BY checked_at DESC LIMIT $2`
	rows, err := s.dbtx.Query(ctx, query, monitorID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing uptime checks: %w", err)
	}
	defer rows.Close()

	var items []Check
	for rows.Next() {
		var c Check
		if err := rows.Scan(&c.ID, &c.MonitorID, &c.Location, &c.IsUp, &c.LatencyMS, &c.Status, &c.Error, &c.CheckedAt); err != nil {
			return nil, fmt.Errorf("scanning check row: %w", err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating check rows: %w", err)
	}
	return items, nil
}

// UpsertExternal records provider-synced monitor state keyed by
// (provider, external_id) and returns the previous up/down state. The sync is
// idempotent: re-running with unchanged data only bumps synced_at.
func (s *Store) UpsertExternal(ctx context.Context, m ExternalMonitor) (previous *bool, err error) {
	var prev pgtype.Bool
	err = s.dbtx.QueryRow(ctx, `
		SELECT is_up FROM external_monitors WHERE provider = $1 AND external_id = $2`,
		m.Provider, m.ExternalID,
	).Scan(&prev)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("reading external monitor: %w", err)
	}
	if prev.Valid {
		v := prev.Bool
		previous = &v
	}

	_, err = s.dbtx.Exec(ctx, `
		INSERT INTO external_monitors (org_id, provider, external_id, name, url, is_up, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (provider, external_id) DO UPDATE SET
			name = EXCLUDED.name, url = EXCLUDED.url, is_up = EXCLUDED.is_up,
			synced_at = EXCLUDED.synced_at`,
		m.OrgID, m.Provider, m.ExternalID, m.Name, m.URL, m.IsUp, m.SyncedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upserting external monitor: %w", err)
	}
	return previous, nil
}

// IsNoRows reports whether err means the query matched nothing.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
