package schedule

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

// Store provides database operations for schedules, layers and overrides.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates a schedule Store backed by the given database connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

// GetActiveSchedule returns the group's schedule with its layers in position
// order, or pgx.ErrNoRows when the group has none.
func (s *Store) GetActiveSchedule(ctx context.Context, groupID uuid.UUID) (Schedule, error) {
	var sched Schedule
	err := s.dbtx.QueryRow(ctx, `
		SELECT id, org_id, group_id, name, created_at, updated_at
		FROM schedules WHERE group_id = $1`,
		groupID,
	).Scan(&sched.ID, &sched.OrgID, &sched.GroupID, &sched.Name, &sched.CreatedAt, &sched.UpdatedAt)
	if err != nil {
		return Schedule{}, err
	}

	layers, err := s.listLayers(ctx, sched.ID)
	if err != nil {
		return Schedule{}, err
	}
	sched.Layers = layers
	return sched, nil
}

func (s *Store) listLayers(ctx context.Context, scheduleID uuid.UUID) ([]Layer, error) {
	rows, err := s.dbtx.Query(ctx, `
		SELECT id, schedule_id, position, participants, shift_length_seconds, anchor,
		       restriction_start_minute, restriction_end_minute
		FROM schedule_layers WHERE schedule_id = $1 ORDER BY position`,
		scheduleID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing schedule layers: %w", err)
	}
	defer rows.Close()

	var layers []Layer
	for rows.Next() {
		var (
			l           Layer
			shiftSecs   int64
			restStart   pgtype.Int4
			restEnd     pgtype.Int4
		)
		if err := rows.Scan(&l.ID, &l.ScheduleID, &l.Position, &l.Participants, &shiftSecs, &l.Anchor, &restStart, &restEnd); err != nil {
			return nil, fmt.Errorf("scanning layer row: %w", err)
		}
		l.ShiftLength = time.Duration(shiftSecs) * time.Second
		l.Anchor = l.Anchor.UTC()
		if restStart.Valid && restEnd.Valid {
			l.Restriction = &Restriction{
				StartMinute: int(restStart.Int32),
				EndMinute:   int(restEnd.Int32),
			}
		}
		layers = append(layers, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating layer rows: %w", err)
	}
	return layers, nil
}

// ReplaceSchedule upserts the group's schedule and replaces its layers.
// Must run inside a transaction.
func (s *Store) ReplaceSchedule(ctx context.Context, orgID, groupID uuid.UUID, name string, layers []Layer) (Schedule, error) {
	var sched Schedule
	err := s.dbtx.QueryRow(ctx, `
		INSERT INTO schedules (org_id, group_id, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (group_id) DO UPDATE SET name = EXCLUDED.name, updated_at = now()
		RETURNING id, org_id, group_id, name, created_at, updated_at`,
		orgID, groupID, name,
	).Scan(&sched.ID, &sched.OrgID, &sched.GroupID, &sched.Name, &sched.CreatedAt, &sched.UpdatedAt)
	if err != nil {
		return Schedule{}, fmt.Errorf("upserting schedule: %w", err)
	}

	if _, err := s.dbtx.Exec(ctx, `DELETE FROM schedule_layers WHERE schedule_id = $1`, sched.ID); err != nil {
		return Schedule{}, fmt.Errorf("clearing schedule layers: %w", err)
	}

	for i, l := range layers {
		var restStart, restEnd pgtype.Int4
		if l.Restriction != nil {
			restStart = pgtype.Int4{Int32: int32(l.Restriction.StartMinute), Valid: true}
			restEnd = pgtype.Int4{Int32: int32(l.Restriction.EndMinute), Valid: true}
		}
		var layer Layer
		err := s.dbtx.QueryRow(ctx, `
			INSERT INTO schedule_layers (schedule_id, position, participants, shift_length_seconds, anchor,
				restriction_start_minute, restriction_end_minute)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, schedule_id, position, anchor`,
			sched.ID, i, l.Participants, int64(l.ShiftLength/time.Second), l.Anchor.UTC(), restStart, restEnd,
		).Scan(&layer.ID, &layer.ScheduleID, &layer.Position, &layer.Anchor)
		if err != nil {
			return Schedule{}, fmt.Errorf("inserting schedule layer %d: %w", i, err)
		}
		layer.Participants = l.Participants
		layer.ShiftLength = l.ShiftLength
		layer.Anchor = layer.Anchor.UTC()
		layer.Restriction = l.Restriction
		sched.Layers = append(sched.Layers, layer)
	}

	return sched, nil
}

// ListOverridesCovering returns the group's overrides whose interval
// intersects [from, to).
func (s *Store) ListOverridesCovering(ctx context.Context, groupID uuid.UUID, from, to time.Time) ([]Override, error) {
	rows, err := s.dbtx.Query(ctx, `
		SELECT id, group_id, user_id, start_at, end_at, reason, created_by, created_at
		FROM overrides
		WHERE group_id = $1 AND start_at < $3 AND end_at > $2
		ORDER BY created_at`,
		groupID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("listing overrides: %w", err)
	}
	defer rows.Close()

	var items []Override
	for rows.Next() {
		var o Override
		var reason pgtype.Text
		if err := rows.Scan(&o.ID, &o.GroupID, &o.UserID, &o.StartAt, &o.EndAt, &reason, &o.CreatedBy, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning override row: %w", err)
		}
		if reason.Valid {
			r := reason.String
			o.Reason = &r
		}
		o.StartAt = o.StartAt.UTC()
		o.EndAt = o.EndAt.UTC()
		items = append(items, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating override rows: %w", err)
	}
	return items, nil
}

// CreateOverride inserts an override.
func (s *Store) CreateOverride(ctx context.Context, groupID uuid.UUID, req CreateOverrideRequest, createdBy uuid.UUID) (Override, error) {
	var o Override
	var reason pgtype.Text
	if req.Reason != nil {
		reason = pgtype.Text{String: *req.Reason, Valid: true}
	}
	err := s.dbtx.QueryRow(ctx, `
		INSERT INTO overrides (group_id, user_id, start_at, end_at, reason, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, group_id, user_id, start_at, end_at, reason, created_by, created_at`,
		groupID, req.UserID, req.StartAt.UTC(), req.EndAt.UTC(), reason, createdBy,
	).Scan(&o.ID, &o.GroupID, &o.UserID, &o.StartAt, &o.EndAt, &reason, &o.CreatedBy, &o.CreatedAt)
	if err != nil {
		return Override{}, fmt.Errorf("creating override: %w", err)
	}
	if reason.Valid {
		r := reason.String
		o.Reason = &r
	}
	o.StartAt = o.StartAt.UTC()
	o.EndAt = o.EndAt.UTC()
	return o, nil
}

// DeleteOverride removes an override.
func (s *Store) DeleteOverride(ctx context.Context, groupID, id uuid.UUID) error {
	tag, err := s.dbtx.Exec(ctx, `DELETE FROM overrides WHERE group_id = $1 AND id = $2`, groupID, id)
	if err != nil {
		return fmt.Errorf("deleting override: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// IsNoRows reports whether err means the query matched nothing.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
