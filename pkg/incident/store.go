package incident

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/wisbric/firewatch/internal/db"
	"github.com/wisbric/firewatch/internal/httpserver"
)

// Store provides database operations for incidents and their events.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates an incident Store backed by the given connection. Pass a
// pgx.Tx so a mutation and its event land in one transaction.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

const incidentColumns = `id, org_id, project_id, title, description, severity, urgency, status,
	source, incident_key, external_id, alert_count, group_id, escalation_policy_id,
	current_escalation_level, last_escalated_at, escalation_status, assigned_to,
	created_at, updated_at, acknowledged_at, resolved_at`

func scanIncident(row pgx.Row) (Incident, error) {
	var (
		i          Incident
		projectID  pgtype.UUID
		key        pgtype.Text
		externalID pgtype.Text
		groupID    pgtype.UUID
		policyID   pgtype.UUID
		lastEsc    pgtype.Timestamptz
		assignedTo pgtype.UUID
		ackAt      pgtype.Timestamptz
		resolvedAt pgtype.Timestamptz
	)
	err := row.Scan(
		&i.ID, &i.OrgID, &projectID, &i.Title, &i.Description, &i.Severity, &i.Urgency, &i.Status,
		&i.Source, &key, &externalID, &i.AlertCount, &groupID, &policyID,
		&i.CurrentEscalationLevel, &lastEsc, &i.EscalationStatus, &assignedTo,
		&i.CreatedAt, &i.UpdatedAt, &ackAt, &resolvedAt,
	)
	if err != nil {
		return Incident{}, err
	}
	i.ProjectID = uuidPtr(projectID)
	i.GroupID = uuidPtr(groupID)
	i.EscalationPolicyID = uuidPtr(policyID)
	i.AssignedTo = uuidPtr(assignedTo)
	i.IncidentKey = textPtr(key)
	i.ExternalID = textPtr(externalID)
	i.LastEscalatedAt = timePtr(lastEsc)
	i.AcknowledgedAt = timePtr(ackAt)
	i.ResolvedAt = timePtr(resolvedAt)
	return i, nil
}

func uuidPtr(p pgtype.UUID) *uuid.UUID {
	if !p.Valid {
		return nil
	}
	id := uuid.UUID(p.Bytes)
	return &id
}

func textPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	s := t.String
	return &s
}

func timePtr(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func toPgUUID(id *uuid.UUID) pgtype.UUID {
	if id == nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: *id, Valid: true}
}

func toPgText(s *string) pgtype.Text {
	if s == nil || *s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *s, Valid: true}
}

// Create inserts a new incident with alert_count = 1.
func (s *Store) Create(ctx context.Context, in CreateInput) (Incident, error) {
	query := `INSERT INTO incidents (
		org_id, project_id, title, description, severity, urgency, status,
		source, incident_key, external_id, group_id, escalation_policy_id
	) VALUES ($1, $2, $3, $4, $5, $6, 'triggered', $7, $8, $9, $10, $11)
	RETURNING ` + incidentColumns
	row := s.dbtx.QueryRow(ctx, query,
		in.OrgID, toPgUUID(in.ProjectID), in.Title, in.Description, in.Severity,
		defaultUrgency(in.Urgency), in.Source, toPgText(in.IncidentKey),
		toPgText(in.ExternalID), toPgUUID(in.GroupID), toPgUUID(in.EscalationPolicyID),
	)
	return scanIncident(row)
}

func defaultUrgency(u Urgency) Urgency {
	if u == "" {
		return UrgencyHigh
	}
	return u
}

// Get returns a single incident by ID, scoped to an organization.
func (s *Store) Get(ctx context.Context, orgID, id uuid.UUID) (Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE org_id = $1 AND id = $2`
	return scanIncident(s.dbtx.QueryRow(ctx, query, orgID, id))
}

// GetOpenByKey locks and returns the open incident holding (org_id, key).
// The row lock serializes concurrent callers sharing the key.
func (s *Store) GetOpenByKey(ctx context.Context, orgID uuid.UUID, key string) (Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents
	WHERE org_id = $1 AND incident_key = $2 AND status IN ('triggered', 'acknowledged')
	FOR UPDATE`
	return scanIncident(s.dbtx.QueryRow(ctx, query, orgID, key))
}

// MergeAlert increments alert_count on an open incident.
func (s *Store) MergeAlert(ctx context.Context, id uuid.UUID) (Incident, error) {
	query := `UPDATE incidents SET alert_count = alert_count + 1, updated_at = now()
	WHERE id = $1 AND status IN ('triggered', 'acknowledged')
	RETURNING ` + incidentColumns
	return scanIncident(s.dbtx.QueryRow(ctx, query, id))
}

// UpdateStatus transitions an incident between states, stamping the matching
// timestamp. The WHERE clause re-checks the source state so a lost race
// surfaces as pgx.ErrNoRows instead of a silent double transition.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (Incident, error) {
	var stamp string
	switch to {
	case StatusAcknowledged:
		stamp = ", acknowledged_at = now()"
	case StatusResolved:
		stamp = ", resolved_at = now()"
	case StatusTriggered:
		stamp = ", acknowledged_at = NULL"
	}
	query := fmt.Sprintf(`UPDATE incidents SET status = $3, updated_at = now()%s
	WHERE id = $1 AND status = $2
	RETURNING %s`, stamp, incidentColumns)
	return scanIncident(s.dbtx.QueryRow(ctx, query, id, from, to))
}

// Assign sets the assignee.
func (s *Store) Assign(ctx context.Context, id, userID uuid.UUID) (Incident, error) {
	query := `UPDATE incidents SET assigned_to = $2, updated_at = now()
	WHERE id = $1
	RETURNING ` + incidentColumns
	return scanIncident(s.dbtx.QueryRow(ctx, query, id, userID))
}

// AppendEvent writes one append-only event row.
func (s *Store) AppendEvent(ctx context.Context, incidentID uuid.UUID, eventType string, data json.RawMessage, createdBy string) error {
	if data == nil {
		data = json.RawMessage(`{}`)
	}
	query := `INSERT INTO incident_events (incident_id, event_type, event_data, created_by)
	VALUES ($1, $2, $3, $4)`
	if _, err := s.dbtx.Exec(ctx, query, incidentID, eventType, data, createdBy); err != nil {
		return fmt.Errorf("appending incident event: %w", err)
	}
	return nil
}

// ListEvents returns an incident's events oldest first.
func (s *Store) ListEvents(ctx context.Context, incidentID uuid.UUID) ([]Event, error) {
	query := `SELECT id, incident_id, event_type, event_data, created_by, created_at
	FROM incident_events WHERE incident_id = $1 ORDER BY created_at, id`
	rows, err := s.dbtx.Query(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("listing incident events: %w", err)
	}
	defer rows.Close()

	var items []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.IncidentID, &e.EventType, &e.EventData, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating event rows: %w", err)
	}
	return items, nil
}

// List returns incidents in an organization under the caller's computed scope,
// ordered by created_at descending with id as tiebreak. Fetches limit+1 rows
// for cursor paging.
func (s *Store) List(ctx context.Context, orgID uuid.UUID, scopeSQL string, scopeArgs []any, filters ListFilters, after *httpserver.Cursor, limit int) ([]Incident, error) {
	where := []string{"org_id = $1", scopeSQL}
	args := append([]any{orgID}, scopeArgs...)
	argN := len(args) + 1

	if filters.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", argN))
		args = append(args, filters.Status)
		argN++
	}
	if filters.Severity != "" {
		where = append(where, fmt.Sprintf("severity = $%d", argN))
		args = append(args, filters.Severity)
		argN++
	}
	if filters.Source != "" {
		where = append(where, fmt.Sprintf("source = $%d", argN))
		args = append(args, filters.Source)
		argN++
	}
	if filters.Assigned != nil {
		where = append(where, fmt.Sprintf("assigned_to = $%d", argN))
		args = append(args, *filters.Assigned)
		argN++
	}
	if after != nil {
		where = append(where, fmt.Sprintf("(created_at, id) < ($%d, $%d)", argN, argN+1))
		args = append(args, after.CreatedAt, after.ID)
		argN += 2
	}

	query := fmt.Sprintf(
		`SELECT %s FROM incidents WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d`,
		incidentColumns, strings.Join(where, " AND "), argN,
	)
	args = append(args, limit+1)

	rows, err := s.dbtx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing incidents: %w", err)
	}
	defer rows.Close()

	var items []Incident
	for rows.Next() {
		i, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning incident row: %w", err)
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating incident rows: %w", err)
	}
	return items, nil
}
