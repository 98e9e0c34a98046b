package incident

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/firewatch/internal/apperr"
	"github.com/wisbric/firewatch/internal/httpserver"
	"github.com/wisbric/firewatch/internal/telemetry"
	"github.com/wisbric/firewatch/pkg/notification"
)

// Service encapsulates incident business logic. Every mutation runs in one
// transaction with its event append; notification intents are published only
// after the transaction commits.
type Service struct {
	pool      *pgxpool.Pool
	publisher notification.Publisher
	logger    *slog.Logger
	ackNudge  func(ctx context.Context, incidentID uuid.UUID)
}

// NewService creates an incident Service.
func NewService(pool *pgxpool.Pool, publisher notification.Publisher, logger *slog.Logger) *Service {
	return &Service{pool: pool, publisher: publisher, logger: logger}
}

// WithAckNudge installs a hook fired after acknowledgements and resolutions,
// used to wake the escalation engine ahead of its next tick.
func (s *Service) WithAckNudge(f func(ctx context.Context, incidentID uuid.UUID)) *Service {
	s.ackNudge = f
	return s
}

// inTx runs fn inside a transaction, committing on nil error.
func (s *Service) inTx(ctx context.Context, fn func(st *Store) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperr.Transient("beginning transaction", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(NewStore(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return apperr.Transient("committing transaction", err)
	}
	return nil
}

// Create opens a new incident and writes its created event.
func (s *Service) Create(ctx context.Context, in CreateInput) (Incident, error) {
	var created Incident
	err := s.inTx(ctx, func(st *Store) error {
		var err error
		created, err = st.Create(ctx, in)
		if err != nil {
			return fmt.Errorf("creating incident: %w", err)
		}
		data, _ := json.Marshal(map[string]any{
			"title": created.Title, "severity": created.Severity, "source": created.Source,
		})
		return st.AppendEvent(ctx, created.ID, EventCreated, data, in.CreatedBy)
	})
	if err != nil {
		return Incident{}, err
	}

	telemetry.IncidentsCreatedTotal.WithLabelValues(created.Source, string(created.Severity)).Inc()
	s.publisher.Publish(ctx, s.intent(notification.KindIncidentCreated, created, nil))
	return created, nil
}

// UpsertByKey either opens a new incident for (org, key) or merges the alert
// into the open incident already holding the key. The lookup takes a row lock
// and the insert relies on the partial unique index, so exactly one of N
// concurrent callers creates and the rest merge.
func (s *Service) UpsertByKey(ctx context.Context, in CreateInput, mergePayload json.RawMessage) (Incident, bool, error) {
	if in.IncidentKey == nil || *in.IncidentKey == "" {
		created, err := s.Create(ctx, in)
		return created, true, err
	}

	var (
		result  Incident
		created bool
	)
	upsert := func(st *Store) error {
		existing, err := st.GetOpenByKey(ctx, in.OrgID, *in.IncidentKey)
		switch {
		case err == nil:
			return s.mergeLocked(ctx, st, existing, mergePayload, &result)
		case errors.Is(err, pgx.ErrNoRows):
			result, err = st.Create(ctx, in)
			if err != nil {
				return fmt.Errorf("creating incident: %w", err)
			}
			created = true
			data, _ := json.Marshal(map[string]any{
				"title": result.Title, "severity": result.Severity, "source": result.Source,
			})
			return st.AppendEvent(ctx, result.ID, EventCreated, data, in.CreatedBy)
		default:
			return fmt.Errorf("looking up incident by key: %w", err)
		}
	}

	err := s.inTx(ctx, upsert)
	if isUniqueViolation(err) {
		// Lost the insert race: another caller created the row between our
		// lookup and insert. Retry once; the lookup now finds and merges.
		created = false
		err = s.inTx(ctx, upsert)
	}
	if err != nil {
		return Incident{}, false, err
	}

	if created {
		telemetry.IncidentsCreatedTotal.WithLabelValues(result.Source, string(result.Severity)).Inc()
		s.publisher.Publish(ctx, s.intent(notification.KindIncidentCreated, result, nil))
	} else {
		telemetry.AlertsDeduplicatedTotal.Inc()
	}
	return result, created, nil
}

func (s *Service) mergeLocked(ctx context.Context, st *Store, existing Incident, payload json.RawMessage, out *Incident) error {
	merged, err := st.MergeAlert(ctx, existing.ID)
	if err != nil {
		return fmt.Errorf("merging alert: %w", err)
	}
	data, _ := json.Marshal(map[string]any{
		"alert_count": merged.AlertCount,
		"payload":     payload,
	})
	if err := st.AppendEvent(ctx, merged.ID, EventAlertMerged, data, SystemActor); err != nil {
		return err
	}
	*out = merged
	return nil
}

// Merge folds one more alert delivery into an open incident: the alert count
// grows and an alert_merged event records the payload; status is untouched.
func (s *Service) Merge(ctx context.Context, orgID, id uuid.UUID, payload json.RawMessage) (Incident, error) {
	var merged Incident
	err := s.inTx(ctx, func(st *Store) error {
		current, err := st.Get(ctx, orgID, id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperr.NotFound("incident not found")
			}
			return fmt.Errorf("getting incident: %w", err)
		}
		if !current.Open() {
			return apperr.Conflict("cannot merge into a resolved incident")
		}
		return s.mergeLocked(ctx, st, current, payload, &merged)
	})
	if err != nil {
		return Incident{}, err
	}
	telemetry.AlertsDeduplicatedTotal.Inc()
	return merged, nil
}

// Get returns an incident by ID within an organization.
func (s *Service) Get(ctx context.Context, orgID, id uuid.UUID) (Incident, error) {
	inc, err := NewStore(s.pool).Get(ctx, orgID, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Incident{}, apperr.NotFound("incident not found")
		}
		return Incident{}, fmt.Errorf("getting incident: %w", err)
	}
	return inc, nil
}

// Events returns an incident's event history, oldest first.
func (s *Service) Events(ctx context.Context, orgID, id uuid.UUID) ([]Event, error) {
	if _, err := s.Get(ctx, orgID, id); err != nil {
		return nil, err
	}
	events, err := NewStore(s.pool).ListEvents(ctx, id)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []Event{}
	}
	return events, nil
}

// List returns incidents under the caller's computed scope.
func (s *Service) List(ctx context.Context, orgID uuid.UUID, scopeSQL string, scopeArgs []any, filters ListFilters, after *httpserver.Cursor, limit int) ([]Incident, error) {
	return NewStore(s.pool).List(ctx, orgID, scopeSQL, scopeArgs, filters, after, limit)
}

// Acknowledge moves a triggered incident to acknowledged.
func (s *Service) Acknowledge(ctx context.Context, orgID, id uuid.UUID, by uuid.UUID) (Incident, error) {
	inc, err := s.transition(ctx, orgID, id, StatusAcknowledged, EventAcknowledged, by.String(), nil)
	if err != nil {
		return Incident{}, err
	}
	s.publisher.Publish(ctx, s.intent(notification.KindIncidentAcknowledged, inc, inc.AssignedTo))
	if s.ackNudge != nil {
		s.ackNudge(ctx, inc.ID)
	}
	return inc, nil
}

// Unacknowledge returns an acknowledged incident to triggered, re-arming
// escalation from its current level.
func (s *Service) Unacknowledge(ctx context.Context, orgID, id uuid.UUID, by uuid.UUID) (Incident, error) {
	return s.transition(ctx, orgID, id, StatusTriggered, EventUnacknowledged, by.String(), nil)
}

// Resolve terminates an incident. Resolving releases the dedup key so a later
// recurrence opens a fresh incident.
func (s *Service) Resolve(ctx context.Context, orgID, id uuid.UUID, by string, resolution, note string) (Incident, error) {
	data, _ := json.Marshal(map[string]string{"resolution": resolution, "note": note})
	inc, err := s.transition(ctx, orgID, id, StatusResolved, EventResolved, by, data)
	if err != nil {
		return Incident{}, err
	}
	s.publisher.Publish(ctx, s.intent(notification.KindIncidentResolved, inc, inc.AssignedTo))
	if s.ackNudge != nil {
		s.ackNudge(ctx, inc.ID)
	}
	return inc, nil
}

// ResolveByKey resolves the open incident holding (org, key). A missing match
// makes the resolve an idempotent no-op.
func (s *Service) ResolveByKey(ctx context.Context, orgID uuid.UUID, key string, by string, resolution string) (resolved bool, err error) {
	var inc Incident
	err = s.inTx(ctx, func(st *Store) error {
		existing, err := st.GetOpenByKey(ctx, orgID, key)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("looking up incident by key: %w", err)
		}

		inc, err = st.UpdateStatus(ctx, existing.ID, existing.Status, StatusResolved)
		if err != nil {
			return fmt.Errorf("resolving incident: %w", err)
		}
		resolved = true
		data, _ := json.Marshal(map[string]string{"resolution": resolution})
		return st.AppendEvent(ctx, inc.ID, EventResolved, data, by)
	})
	if err != nil {
		return false, err
	}
	if resolved {
		s.publisher.Publish(ctx, s.intent(notification.KindIncidentResolved, inc, inc.AssignedTo))
	}
	return resolved, nil
}

// Assign sets the assignee and emits an incident_assigned intent. Escalation
// uses its own transition and intent; this path is for manual assignment.
func (s *Service) Assign(ctx context.Context, orgID, id, userID uuid.UUID, by uuid.UUID) (Incident, error) {
	var assigned Incident
	err := s.inTx(ctx, func(st *Store) error {
		current, err := st.Get(ctx, orgID, id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperr.NotFound("incident not found")
			}
			return fmt.Errorf("getting incident: %w", err)
		}
		if current.Status == StatusResolved {
			return apperr.Conflict("cannot assign a resolved incident")
		}

		assigned, err = st.Assign(ctx, id, userID)
		if err != nil {
			return fmt.Errorf("assigning incident: %w", err)
		}
		data, _ := json.Marshal(map[string]string{"assigned_to": userID.String()})
		return st.AppendEvent(ctx, id, EventAssigned, data, by.String())
	})
	if err != nil {
		return Incident{}, err
	}

	s.publisher.Publish(ctx, s.intent(notification.KindIncidentAssigned, assigned, &userID))
	return assigned, nil
}

// transition performs a guarded status change with its event in one transaction.
func (s *Service) transition(ctx context.Context, orgID, id uuid.UUID, to Status, eventType, by string, data json.RawMessage) (Incident, error) {
	var result Incident
	err := s.inTx(ctx, func(st *Store) error {
		current, err := st.Get(ctx, orgID, id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperr.NotFound("incident not found")
			}
			return fmt.Errorf("getting incident: %w", err)
		}
		if !CanTransition(current.Status, to) {
			return apperr.Newf(apperr.KindConflict, "cannot move incident from %s to %s", current.Status, to)
		}

		result, err = st.UpdateStatus(ctx, id, current.Status, to)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				// Raced with a concurrent transition.
				return apperr.Conflict("incident state changed concurrently")
			}
			return fmt.Errorf("updating incident status: %w", err)
		}
		return st.AppendEvent(ctx, id, eventType, data, by)
	})
	if err != nil {
		return Incident{}, err
	}
	return result, nil
}

func (s *Service) intent(kind notification.Kind, inc Incident, target *uuid.UUID) notification.Intent {
	return notification.Intent{
		Kind:         kind,
		IncidentID:   inc.ID,
		OrgID:        inc.OrgID,
		TargetUserID: target,
		Title:        inc.Title,
		Severity:     string(inc.Severity),
		Urgency:      string(inc.Urgency),
		Source:       inc.Source,
		Level:        inc.CurrentEscalationLevel,
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
