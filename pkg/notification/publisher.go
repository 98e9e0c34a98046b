package notification

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wisbric/firewatch/internal/telemetry"
)

// Publisher emits notification intents. Emission is best-effort: a failed
// publish is logged and counted but never fails the caller's transaction —
// the incident event log remains the authoritative record.
type Publisher interface {
	Publish(ctx context.Context, intent Intent)
}

// RedisPublisher publishes intents as JSON on the notification channel.
type RedisPublisher struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewRedisPublisher creates a RedisPublisher.
func NewRedisPublisher(rdb *redis.Client, logger *slog.Logger) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, logger: logger}
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, intent Intent) {
	if intent.EmittedAt.IsZero() {
		intent.EmittedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(intent)
	if err != nil {
		p.logger.Error("marshaling notification intent", "error", err, "kind", intent.Kind)
		return
	}

	if err := p.rdb.Publish(ctx, Channel, payload).Err(); err != nil {
		p.logger.Error("publishing notification intent",
			"error", err,
			"kind", intent.Kind,
			"incident_id", intent.IncidentID,
		)
		return
	}

	telemetry.NotificationsPublishedTotal.WithLabelValues(string(intent.Kind)).Inc()
}

// NopPublisher discards intents. Used in tests and in modes without Redis.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Intent) {}

// PublishAck nudges the escalation engine after an acknowledgement or
// resolution so it re-evaluates eligibility before the next tick.
func PublishAck(ctx context.Context, rdb *redis.Client, incidentID string) {
	rdb.Publish(ctx, AckChannel, incidentID)
}
