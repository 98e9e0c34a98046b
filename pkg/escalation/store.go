package escalation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/wisbric/firewatch/internal/db"
	"github.com/wisbric/firewatch/pkg/incident"
)

// Store provides database operations for escalation policies and the
// engine's claim queries.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates an escalation Store backed by the given connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

// CreatePolicy inserts a policy and its levels. Must run inside a transaction.
func (s *Store) CreatePolicy(ctx context.Context, orgID uuid.UUID, req CreatePolicyRequest) (Policy, error) {
	var p Policy
	var desc pgtype.Text
	if req.Description != nil {
		desc = pgtype.Text{String: *req.Description, Valid: true}
	}
	err := s.dbtx.QueryRow(ctx, `
		INSERT INTO escalation_policies (org_id, name, description)
		VALUES ($1, $2, $3)
		RETURNING id, org_id, name, description, created_at, updated_at`,
		orgID, req.Name, desc,
	).Scan(&p.ID, &p.OrgID, &p.Name, &desc, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Policy{}, fmt.Errorf("inserting escalation policy: %w", err)
	}
	if desc.Valid {
		d := desc.String
		p.Description = &d
	}

	for _, lr := range req.Levels {
		var targetID pgtype.UUID
		if lr.TargetID != nil {
			targetID = pgtype.UUID{Bytes: *lr.TargetID, Valid: true}
		}

		var (
			l           Level
			retTarget   pgtype.UUID
			timeoutSecs int64
		)
		err := s.dbtx.QueryRow(ctx, `
			INSERT INTO escalation_levels (policy_id, level_number, target_type, target_id, timeout_seconds)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, policy_id, level_number, target_type, target_id, timeout_seconds`,
			p.ID, lr.LevelNumber, lr.TargetType, targetID, lr.TimeoutMinutes*60,
		).Scan(&l.ID, &l.PolicyID, &l.LevelNumber, &l.TargetType, &retTarget, &timeoutSecs)
		if err != nil {
			return Policy{}, fmt.Errorf("inserting escalation level %d: %w", lr.LevelNumber, err)
		}
		if retTarget.Valid {
			id := uuid.UUID(retTarget.Bytes)
			l.TargetID = &id
		}
		l.Timeout = time.Duration(timeoutSecs) * time.Second
		p.Levels = append(p.Levels, l)
	}

	return p, nil
}

// GetPolicy returns a policy with its levels ordered by level number.
func (s *Store) GetPolicy(ctx context.Context, orgID, id uuid.UUID) (Policy, error) {
	var p Policy
	var desc pgtype.Text
	err := s.dbtx.QueryRow(ctx, `
		SELECT id, org_id, name, description, created_at, updated_at
		FROM escalation_policies WHERE org_id = $1 AND id = $2`,
		orgID, id,
	).Scan(&p.ID, &p.OrgID, &p.Name, &desc, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Policy{}, err
	}
	if desc.Valid {
		d := desc.String
		p.Description = &d
	}

	levels, err := s.ListLevels(ctx, p.ID)
	if err != nil {
		return Policy{}, err
	}
	p.Levels = levels
	return p, nil
}

// ListLevels returns a policy's levels ordered by level number.
func (s *Store) ListLevels(ctx context.Context, policyID uuid.UUID) ([]Level, error) {
	rows, err := s.dbtx.Query(ctx, `
		SELECT id, policy_id, level_number, target_type, target_id, timeout_seconds
		FROM escalation_levels WHERE policy_id = $1 ORDER BY level_number`,
		policyID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing escalation levels: %w", err)
	}
	defer rows.Close()

	var levels []Level
	for rows.Next() {
		var l Level
		var targetID pgtype.UUID
		var timeoutSecs int64
		if err := rows.Scan(&l.ID, &l.PolicyID, &l.LevelNumber, &l.TargetType, &targetID, &timeoutSecs); err != nil {
			return nil, fmt.Errorf("scanning level row: %w", err)
		}
		if targetID.Valid {
			id := uuid.UUID(targetID.Bytes)
			l.TargetID = &id
		}
		l.Timeout = time.Duration(timeoutSecs) * time.Second
		levels = append(levels, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating level rows: %w", err)
	}
	return levels, nil
}

// ListPolicies returns an organization's policies without levels.
func (s *Store) ListPolicies(ctx context.Context, orgID uuid.UUID) ([]Policy, error) {
	rows, err := s.dbtx.Query(ctx, `
		SELECT id, org_id, name, description, created_at, updated_at
		FROM escalation_policies WHERE org_id = $1 ORDER BY name`,
		orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing escalation policies: %w", err)
	}
	defer rows.Close()

	var items []Policy
	for rows.Next() {
		var p Policy
		var desc pgtype.Text
		if err := rows.Scan(&p.ID, &p.OrgID, &p.Name, &desc, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning policy row: %w", err)
		}
		if desc.Valid {
			d := desc.String
			p.Description = &d
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating policy rows: %w", err)
	}
	return items, nil
}

// DeletePolicy removes a policy and, via FK cascade, its levels.
func (s *Store) DeletePolicy(ctx context.Context, orgID, id uuid.UUID) error {
	tag, err := s.dbtx.Exec(ctx, `DELETE FROM escalation_policies WHERE org_id = $1 AND id = $2`, orgID, id)
	if err != nil {
		return fmt.Errorf("deleting escalation policy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// eligibilitySQL is the shared predicate for incidents eligible to advance:
// triggered, policy attached, not completed, and either never escalated with
// level 1's timeout elapsed since creation, or at some level whose timeout
// elapsed since the last escalation with a next level defined.
const eligibilitySQL = `
	i.status = 'triggered'
	AND i.escalation_policy_id IS NOT NULL
	AND i.escalation_status IN ('none', 'pending')
	AND (
		(i.last_escalated_at IS NULL
		 AND EXISTS (
			SELECT 1 FROM escalation_levels el1
			WHERE el1.policy_id = i.escalation_policy_id
			  AND el1.level_number = 1
			  AND i.created_at <= $1::timestamptz - el1.timeout_seconds * interval '1 second'
		 ))
		OR
		(i.last_escalated_at IS NOT NULL
		 AND i.current_escalation_level >= 1
		 AND EXISTS (
			SELECT 1 FROM escalation_levels el_cur
			WHERE el_cur.policy_id = i.escalation_policy_id
			  AND el_cur.level_number = i.current_escalation_level
			  AND i.last_escalated_at <= $1::timestamptz - el_cur.timeout_seconds * interval '1 second'
		 )
		 AND EXISTS (
			SELECT 1 FROM escalation_levels el_next
			WHERE el_next.policy_id = i.escalation_policy_id
			  AND el_next.level_number = i.current_escalation_level + 1
		 ))
	)`

// ListEligibleIDs returns up to limit incidents eligible to advance at the
// given instant, oldest first. This is an unlocked pre-scan; the engine
// re-claims each row with ClaimEligible before touching it.
func (s *Store) ListEligibleIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	query := `SELECT i.id FROM incidents i WHERE` + eligibilitySQL + `
	ORDER BY i.created_at LIMIT $2`
	rows, err := s.dbtx.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("listing eligible incidents: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning eligible id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating eligible ids: %w", err)
	}
	return ids, nil
}

// ClaimEligible locks one eligible incident by id for exclusive advancement.
// SKIP LOCKED makes a row claimed by another worker invisible, so at most one
// engine replica advances a given incident per tick. Returns pgx.ErrNoRows
// when the incident is no longer eligible or already claimed.
func (s *Store) ClaimEligible(ctx context.Context, id uuid.UUID, now time.Time) (incident.Incident, error) {
	query := `SELECT i.id, i.org_id, i.project_id, i.title, i.description, i.severity, i.urgency,
		i.status, i.source, i.incident_key, i.external_id, i.alert_count, i.group_id,
		i.escalation_policy_id, i.current_escalation_level, i.last_escalated_at,
		i.escalation_status, i.assigned_to, i.created_at, i.updated_at,
		i.acknowledged_at, i.resolved_at
	FROM incidents i
	WHERE i.id = $2 AND` + eligibilitySQL + `
	FOR UPDATE SKIP LOCKED`
	return scanEngineIncident(s.dbtx.QueryRow(ctx, query, now, id))
}

// AdvanceIncident applies one escalation step: assignee, level, timestamps
// and escalation status in a single update. Must run in the claim transaction.
func (s *Store) AdvanceIncident(ctx context.Context, id uuid.UUID, assignedTo *uuid.UUID, level int, status incident.EscalationStatus, now time.Time) error {
	var assigned pgtype.UUID
	if assignedTo != nil {
		assigned = pgtype.UUID{Bytes: *assignedTo, Valid: true}
	}
	query := `UPDATE incidents SET
		assigned_to = COALESCE($2, assigned_to),
		current_escalation_level = $3,
		last_escalated_at = $4,
		escalation_status = $5,
		updated_at = now()
	WHERE id = $1`
	if _, err := s.dbtx.Exec(ctx, query, id, assigned, level, now, status); err != nil {
		return fmt.Errorf("advancing incident: %w", err)
	}
	return nil
}

// CompleteEscalation marks the policy exhausted without changing the level.
func (s *Store) CompleteEscalation(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE incidents SET escalation_status = 'completed', updated_at = now() WHERE id = $1`
	if _, err := s.dbtx.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("completing escalation: %w", err)
	}
	return nil
}

func scanEngineIncident(row pgx.Row) (incident.Incident, error) {
	var (
		i          incident.Incident
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
		&i.ID, &i.OrgID, &projectID, &i.Title, &i.Description, &i.Severity, &i.Urgency,
		&i.Status, &i.Source, &key, &externalID, &i.AlertCount, &groupID,
		&policyID, &i.CurrentEscalationLevel, &lastEsc,
		&i.EscalationStatus, &assignedTo, &i.CreatedAt, &i.UpdatedAt,
		&ackAt, &resolvedAt,
	)
	if err != nil {
		return incident.Incident{}, err
	}
	if projectID.Valid {
		id := uuid.UUID(projectID.Bytes)
		i.ProjectID = &id
	}
	if groupID.Valid {
		id := uuid.UUID(groupID.Bytes)
		i.GroupID = &id
	}
	if policyID.Valid {
		id := uuid.UUID(policyID.Bytes)
		i.EscalationPolicyID = &id
	}
	if assignedTo.Valid {
		id := uuid.UUID(assignedTo.Bytes)
		i.AssignedTo = &id
	}
	if key.Valid {
		k := key.String
		i.IncidentKey = &k
	}
	if externalID.Valid {
		e := externalID.String
		i.ExternalID = &e
	}
	if lastEsc.Valid {
		t := lastEsc.Time
		i.LastEscalatedAt = &t
	}
	if ackAt.Valid {
		t := ackAt.Time
		i.AcknowledgedAt = &t
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		i.ResolvedAt = &t
	}
	return i, nil
}

// PolicyCache is a read-only cache of policy levels. Policies are long-lived
// configuration whose levels are never edited in place. The policy handler
// calls Invalidate on create/delete only when it is given a cache; the api
// mode gives it none, so policy writes do not invalidate the worker's cache.
type PolicyCache struct {
	mu     sync.RWMutex
	levels map[uuid.UUID][]Level
}

// NewPolicyCache creates an empty PolicyCache.
func NewPolicyCache() *PolicyCache {
	return &PolicyCache{levels: make(map[uuid.UUID][]Level)}
}

// Levels returns the cached levels for a policy, loading through the store on miss.
func (c *PolicyCache) Levels(ctx context.Context, store *Store, policyID uuid.UUID) ([]Level, error) {
	c.mu.RLock()
	levels, ok := c.levels[policyID]
	c.mu.RUnlock()
	if ok {
		return levels, nil
	}

	levels, err := store.ListLevels(ctx, policyID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.levels[policyID] = levels
	c.mu.Unlock()
	return levels, nil
}

// Invalidate drops a policy from the cache.
func (c *PolicyCache) Invalidate(policyID uuid.UUID) {
	c.mu.Lock()
	delete(c.levels, policyID)
	c.mu.Unlock()
}

// IsNoRows reports whether err means the query matched nothing.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
