package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/firewatch/internal/apperr"
	"github.com/wisbric/firewatch/internal/db"
)

// Clock supplies the current instant; injectable for tests.
type Clock func() time.Time

// Service resolves on-call and manages schedules and overrides.
type Service struct {
	store  *Store
	logger *slog.Logger
	now    Clock
}

// NewService creates a schedule Service backed by the given database connection.
func NewService(dbtx db.DBTX, logger *slog.Logger) *Service {
	return &Service{store: NewStore(dbtx), logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the service clock. Used by tests.
func (s *Service) WithClock(now Clock) *Service {
	s.now = now
	return s
}

// WhoIsOnCall returns the effective on-call for a group at the given instant,
// or ok=false when no override or layer applies. The result is a pure
// function of committed schedule and override state.
func (s *Service) WhoIsOnCall(ctx context.Context, groupID uuid.UUID, at time.Time) (uuid.UUID, string, bool, error) {
	at = at.UTC()

	overrides, err := s.store.ListOverridesCovering(ctx, groupID, at, at.Add(time.Nanosecond))
	if err != nil {
		return uuid.Nil, "", false, fmt.Errorf("loading overrides: %w", err)
	}

	var layers []Layer
	sched, err := s.store.GetActiveSchedule(ctx, groupID)
	switch {
	case err == nil:
		layers = sched.Layers
	case IsNoRows(err):
		// No schedule: overrides may still apply.
	default:
		return uuid.Nil, "", false, fmt.Errorf("loading schedule: %w", err)
	}

	userID, source, ok := ResolveOnCall(layers, overrides, at)
	return userID, source, ok, nil
}

// Shifts resolves the group's effective shifts over a window.
func (s *Service) Shifts(ctx context.Context, groupID uuid.UUID, w Window) ([]Shift, error) {
	if !w.From.Before(w.To) {
		return nil, apperr.BadRequest("window end must be after start")
	}
	if w.To.Sub(w.From) > 90*24*time.Hour {
		return nil, apperr.BadRequest("window may not exceed 90 days")
	}

	overrides, err := s.store.ListOverridesCovering(ctx, groupID, w.From, w.To)
	if err != nil {
		return nil, fmt.Errorf("loading overrides: %w", err)
	}

	var layers []Layer
	sched, err := s.store.GetActiveSchedule(ctx, groupID)
	switch {
	case err == nil:
		layers = sched.Layers
	case IsNoRows(err):
	default:
		return nil, fmt.Errorf("loading schedule: %w", err)
	}

	return EffectiveShifts(layers, overrides, w), nil
}

// Preview resolves an unsaved schedule over a window without persisting it.
func (s *Service) Preview(req PreviewRequest) ([]Shift, error) {
	if !req.From.Before(req.To) {
		return nil, apperr.BadRequest("window end must be after start")
	}
	layers, err := layersFromRequests(req.Layers)
	if err != nil {
		return nil, err
	}
	return EffectiveShifts(layers, nil, Window{From: req.From.UTC(), To: req.To.UTC()}), nil
}

// Replace replaces the group's schedule with the requested layers.
func (s *Service) Replace(ctx context.Context, orgID, groupID uuid.UUID, req CreateScheduleRequest) (Schedule, error) {
	layers, err := layersFromRequests(req.Layers)
	if err != nil {
		return Schedule{}, err
	}
	beginner, ok := s.store.dbtx.(db.TxBeginner)
	if !ok {
		return Schedule{}, fmt.Errorf("replacing schedule: connection cannot begin a transaction")
	}
	tx, err := beginner.Begin(ctx)
	if err != nil {
		return Schedule{}, apperr.Transient("beginning transaction", err)
	}
	defer tx.Rollback(ctx)

	sched, err := NewStore(tx).ReplaceSchedule(ctx, orgID, groupID, req.Name, layers)
	if err != nil {
		return Schedule{}, fmt.Errorf("replacing schedule: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Schedule{}, apperr.Transient("committing transaction", err)
	}
	return sched, nil
}

// Get returns the group's schedule.
func (s *Service) Get(ctx context.Context, groupID uuid.UUID) (Schedule, error) {
	sched, err := s.store.GetActiveSchedule(ctx, groupID)
	if err != nil {
		if IsNoRows(err) {
			return Schedule{}, apperr.NotFound("schedule not found")
		}
		return Schedule{}, fmt.Errorf("getting schedule: %w", err)
	}
	return sched, nil
}

// CreateOverride validates and persists an override. end must come after
// start, and an override may not lie fully in the past.
func (s *Service) CreateOverride(ctx context.Context, groupID uuid.UUID, req CreateOverrideRequest, createdBy uuid.UUID) (Override, error) {
	if !req.EndAt.After(req.StartAt) {
		return Override{}, apperr.BadRequest("override end must be after start")
	}
	if !req.EndAt.After(s.now()) {
		return Override{}, apperr.BadRequest("override may not be fully in the past")
	}
	return s.store.CreateOverride(ctx, groupID, req, createdBy)
}

// ListOverrides returns the group's overrides intersecting a window.
func (s *Service) ListOverrides(ctx context.Context, groupID uuid.UUID, w Window) ([]Override, error) {
	items, err := s.store.ListOverridesCovering(ctx, groupID, w.From, w.To)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []Override{}
	}
	return items, nil
}

// DeleteOverride removes an override.
func (s *Service) DeleteOverride(ctx context.Context, groupID, id uuid.UUID) error {
	if err := s.store.DeleteOverride(ctx, groupID, id); err != nil {
		if IsNoRows(err) {
			return apperr.NotFound("override not found")
		}
		return fmt.Errorf("deleting override: %w", err)
	}
	return nil
}

func layersFromRequests(reqs []LayerRequest) ([]Layer, error) {
	layers := make([]Layer, 0, len(reqs))
	for i, lr := range reqs {
		if (lr.RestrictionStart == nil) != (lr.RestrictionEnd == nil) {
			return nil, apperr.Newf(apperr.KindBadRequest,
				"layer %d: restriction start and end must be set together", i)
		}
		l := Layer{
			Position:     i,
			Participants: lr.Participants,
			ShiftLength:  time.Duration(lr.ShiftLengthMinutes) * time.Minute,
			Anchor:       lr.Anchor.UTC(),
		}
		if lr.RestrictionStart != nil {
			l.Restriction = &Restriction{StartMinute: *lr.RestrictionStart, EndMinute: *lr.RestrictionEnd}
		}
		layers = append(layers, l)
	}
	return layers, nil
}
