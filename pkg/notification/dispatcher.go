package notification

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"

	"github.com/wisbric/firewatch/internal/telemetry"
)

// Provider delivers an intent on one transport (Slack, chat, push, ...).
type Provider interface {
	Name() string
	Deliver(ctx context.Context, intent Intent) error
}

// Registry holds the enabled delivery providers.
type Registry struct {
	providers []Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a provider.
func (r *Registry) Register(p Provider) {
	r.providers = append(r.providers, p)
}

// Providers returns the registered providers.
func (r *Registry) Providers() []Provider {
	return r.providers
}

// Dispatcher subscribes to the intent channel and fans each intent out to
// every registered provider, retrying transient delivery failures with
// exponential backoff.
type Dispatcher struct {
	rdb      *redis.Client
	registry *Registry
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(rdb *redis.Client, registry *Registry, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{rdb: rdb, registry: registry, logger: logger}
}

// Run consumes intents until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	pubsub := d.rdb.Subscribe(ctx, Channel)
	defer pubsub.Close()

	d.logger.Info("notification dispatcher started", "providers", len(d.registry.Providers()))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("notification dispatcher stopped")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var intent Intent
			if err := json.Unmarshal([]byte(msg.Payload), &intent); err != nil {
				d.logger.Warn("discarding malformed notification intent", "error", err)
				continue
			}
			d.dispatch(ctx, intent)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, intent Intent) {
	for _, p := range d.registry.Providers() {
		deliver := func() (struct{}, error) {
			return struct{}{}, p.Deliver(ctx, intent)
		}

		_, err := backoff.Retry(ctx, deliver,
			backoff.WithBackOff(backoff.NewExponentialBackOff()),
			backoff.WithMaxTries(3),
			backoff.WithMaxElapsedTime(30*time.Second),
		)
		result := "ok"
		if err != nil {
			result = "error"
			d.logger.Error("delivering notification",
				"error", err,
				"provider", p.Name(),
				"kind", intent.Kind,
				"incident_id", intent.IncidentID,
			)
		}
		telemetry.NotificationsDeliveredTotal.WithLabelValues(p.Name(), result).Inc()
	}
}
