package escalation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/wisbric/firewatch/internal/telemetry"
	"github.com/wisbric/firewatch/pkg/incident"
	"github.com/wisbric/firewatch/pkg/notification"
)

// Clock supplies the current instant; injectable for tests.
type Clock func() time.Time

// OnCallResolver resolves a group's current on-call. Implemented by
// pkg/schedule's Service.
type OnCallResolver interface {
	WhoIsOnCall(ctx context.Context, groupID uuid.UUID, at time.Time) (uuid.UUID, string, bool, error)
}

// Config tunes the engine loop.
type Config struct {
	TickInterval time.Duration
	BatchSize    int
	Concurrency  int
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 5 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	return c
}

// Engine is the background worker advancing triggered incidents through
// their escalation policies.
type Engine struct {
	pool      *pgxpool.Pool
	rdb       *redis.Client
	resolver  OnCallResolver
	publisher notification.Publisher
	cache     *PolicyCache
	logger    *slog.Logger
	cfg       Config
	now       Clock
	metric    *prometheus.CounterVec
}

// NewEngine creates an escalation engine.
func NewEngine(pool *pgxpool.Pool, rdb *redis.Client, resolver OnCallResolver, publisher notification.Publisher, logger *slog.Logger, cfg Config) *Engine {
	return &Engine{
		pool:      pool,
		rdb:       rdb,
		resolver:  resolver,
		publisher: publisher,
		cache:     NewPolicyCache(),
		logger:    logger,
		cfg:       cfg.withDefaults(),
		now:       func() time.Time { return time.Now().UTC() },
		metric:    telemetry.IncidentsEscalatedTotal,
	}
}

// WithClock overrides the engine clock. Used by tests.
func (e *Engine) WithClock(now Clock) *Engine {
	e.now = now
	return e
}

// Cache exposes the policy cache so the policy handler can invalidate on write.
func (e *Engine) Cache() *PolicyCache { return e.cache }

// Run starts the claim-and-advance loop. It blocks until ctx is cancelled,
// draining in-flight advancements before returning.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("escalation engine started",
		"interval", e.cfg.TickInterval,
		"batch", e.cfg.BatchSize,
		"concurrency", e.cfg.Concurrency,
	)

	// Acknowledgements nudge the loop ahead of the next tick; the eligibility
	// predicate makes acknowledged incidents drop out on their own.
	pubsub := e.rdb.Subscribe(ctx, notification.AckChannel)
	defer pubsub.Close()
	ackCh := pubsub.Channel()

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("escalation engine stopped")
			return nil
		case msg := <-ackCh:
			e.logger.Debug("ack nudge received", "payload", msg.Payload)
			e.tick(ctx)
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// tick claims one batch of eligible incidents and advances them with bounded
// concurrency. Each iteration carries its own deadline; work that exceeds it
// rolls back and is re-picked next tick.
func (e *Engine) tick(ctx context.Context) {
	start := time.Now()
	defer func() {
		telemetry.EscalationTickDuration.Observe(time.Since(start).Seconds())
	}()

	tickCtx, cancel := context.WithTimeout(ctx, e.cfg.TickInterval)
	defer cancel()

	now := e.now()
	ids, err := NewStore(e.pool).ListEligibleIDs(tickCtx, now, e.cfg.BatchSize)
	if err != nil {
		e.logger.Error("listing eligible incidents", "error", err)
		return
	}
	if len(ids) == 0 {
		return
	}

	g, groupCtx := errgroup.WithContext(tickCtx)
	g.SetLimit(e.cfg.Concurrency)
	for _, id := range ids {
		g.Go(func() error {
			if err := e.advanceOne(groupCtx, id); err != nil {
				e.logger.Error("advancing incident", "error", err, "incident_id", id)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// advanceOne performs one escalation step for a single incident. The claim,
// the state update and the event append share one transaction; the
// notification intent is published only after commit.
func (e *Engine) advanceOne(ctx context.Context, id uuid.UUID) error {
	now := e.now()

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning claim transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	st := NewStore(tx)
	inc, err := st.ClaimEligible(ctx, id, now)
	if err != nil {
		if IsNoRows(err) {
			// Claimed by another worker, or no longer eligible.
			return nil
		}
		return fmt.Errorf("claiming incident: %w", err)
	}

	levels, err := e.cache.Levels(ctx, NewStore(e.pool), *inc.EscalationPolicyID)
	if err != nil {
		return fmt.Errorf("loading policy levels: %w", err)
	}

	events := incident.NewStore(tx)
	plan := PlanAdvance(inc, levels)

	if plan.Exhausted {
		if err := st.CompleteEscalation(ctx, inc.ID); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]any{"level": inc.CurrentEscalationLevel})
		if err := events.AppendEvent(ctx, inc.ID, incident.EventEscalationCompleted, data, incident.SystemActor); err != nil {
			return err
		}
		return tx.Commit(ctx)
	}

	level := plan.Level
	var assignee *uuid.UUID
	switch level.TargetType {
	case TargetUser:
		assignee = level.TargetID
	case TargetGroup:
		assignee, err = e.resolveOnCall(ctx, level.TargetID, now)
	case TargetCurrentSchedule:
		assignee, err = e.resolveOnCall(ctx, inc.GroupID, now)
	case TargetExternal:
		// No assignment; the escalated event plus an external-dispatch event
		// drive the outbound integration.
	}
	if err != nil {
		return fmt.Errorf("resolving level %d target: %w", plan.NextLevel, err)
	}

	if level.TargetType != TargetExternal && assignee == nil {
		// Unresolvable target (empty schedule, missing group): record the
		// failure and retry next tick without advancing.
		data, _ := json.Marshal(map[string]any{
			"level":       plan.NextLevel,
			"target_type": level.TargetType,
			"reason":      "target resolved to no user",
		})
		if err := events.AppendEvent(ctx, inc.ID, incident.EventNotifyFailure, data, incident.SystemActor); err != nil {
			return err
		}
		return tx.Commit(ctx)
	}

	status := incident.EscalationPending
	if plan.Final {
		status = incident.EscalationCompleted
	}
	if err := st.AdvanceIncident(ctx, inc.ID, assignee, plan.NextLevel, status, now); err != nil {
		return err
	}

	eventData := map[string]any{
		"level":       plan.NextLevel,
		"target_type": level.TargetType,
	}
	if level.TargetID != nil {
		eventData["target_id"] = level.TargetID
	}
	if assignee != nil {
		eventData["assigned_to"] = assignee
	}
	data, _ := json.Marshal(eventData)
	if err := events.AppendEvent(ctx, inc.ID, incident.EventEscalated, data, incident.SystemActor); err != nil {
		return err
	}

	if level.TargetType == TargetExternal {
		dispatch, _ := json.Marshal(map[string]any{"level": plan.NextLevel, "target_id": level.TargetID})
		if err := events.AppendEvent(ctx, inc.ID, incident.EventExternalDispatch, dispatch, incident.SystemActor); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing escalation step: %w", err)
	}

	e.logger.Info("incident escalated",
		"incident_id", inc.ID,
		"level", plan.NextLevel,
		"target_type", level.TargetType,
	)
	if e.metric != nil {
		e.metric.WithLabelValues(strconv.Itoa(plan.NextLevel)).Inc()
	}

	// Exactly one escalation intent per step. Emission failure is logged by
	// the publisher and never rolls back the committed transition.
	e.publisher.Publish(ctx, notification.Intent{
		Kind:         notification.KindIncidentEscalated,
		IncidentID:   inc.ID,
		OrgID:        inc.OrgID,
		TargetUserID: assignee,
		Title:        inc.Title,
		Severity:     string(inc.Severity),
		Urgency:      string(inc.Urgency),
		Source:       inc.Source,
		Level:        plan.NextLevel,
	})

	return nil
}

func (e *Engine) resolveOnCall(ctx context.Context, groupID *uuid.UUID, now time.Time) (*uuid.UUID, error) {
	if groupID == nil {
		return nil, nil
	}
	userID, _, ok, err := e.resolver.WhoIsOnCall(ctx, *groupID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &userID, nil
}

// AdvancePlan is the decision for one escalation step.
type AdvancePlan struct {
	// NextLevel is the level being entered.
	NextLevel int
	// Level is the policy level for NextLevel; nil when Exhausted.
	Level *Level
	// Final marks entry into the last level of the policy.
	Final bool
	// Exhausted means no next level exists; escalation completes in place.
	Exhausted bool
}

// PlanAdvance decides the next step for a claimed incident. Pure.
func PlanAdvance(inc incident.Incident, levels []Level) AdvancePlan {
	next := inc.CurrentEscalationLevel + 1

	var level *Level
	maxLevel := 0
	for i := range levels {
		if levels[i].LevelNumber == next {
			level = &levels[i]
		}
		if levels[i].LevelNumber > maxLevel {
			maxLevel = levels[i].LevelNumber
		}
	}

	if level == nil {
		return AdvancePlan{Exhausted: true}
	}
	return AdvancePlan{
		NextLevel: next,
		Level:     level,
		Final:     next == maxLevel,
	}
}

// Eligible mirrors the engine's SQL eligibility predicate for unit tests and
// callers that already hold the incident and its levels.
func Eligible(inc incident.Incident, levels []Level, now time.Time) bool {
	if inc.Status != incident.StatusTriggered || inc.EscalationPolicyID == nil {
		return false
	}
	if inc.EscalationStatus != incident.EscalationNone && inc.EscalationStatus != incident.EscalationPending {
		return false
	}

	byNumber := make(map[int]Level, len(levels))
	for _, l := range levels {
		byNumber[l.LevelNumber] = l
	}

	if inc.LastEscalatedAt == nil {
		first, ok := byNumber[1]
		if !ok {
			return false
		}
		return !now.Before(inc.CreatedAt.Add(first.Timeout))
	}

	if inc.CurrentEscalationLevel < 1 {
		return false
	}
	current, ok := byNumber[inc.CurrentEscalationLevel]
	if !ok {
		return false
	}
	if _, hasNext := byNumber[inc.CurrentEscalationLevel+1]; !hasNext {
		return false
	}
	return !now.Before(inc.LastEscalatedAt.Add(current.Timeout))
}
