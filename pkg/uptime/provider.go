package uptime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"github.com/sony/gobreaker"

	"github.com/wisbric/firewatch/pkg/alert"
	"github.com/wisbric/firewatch/pkg/incident"
)

// ProviderMonitor is one monitor as reported by a third-party provider.
type ProviderMonitor struct {
	ExternalID string
	Name       string
	URL        string
	IsUp       bool
}

// ProviderClient pulls monitor state from one external provider's API.
type ProviderClient interface {
	Name() string
	FetchMonitors(ctx context.Context) ([]ProviderMonitor, error)
}

// UptimeRobotClient reads monitor state from an UptimeRobot-compatible API.
// Calls run through a circuit breaker so a flapping provider cannot pile up
// timeouts across sync runs.
type UptimeRobotClient struct {
	apiURL  string
	apiKey  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewUptimeRobotClient creates an UptimeRobotClient.
func NewUptimeRobotClient(apiURL, apiKey string, timeout time.Duration) *UptimeRobotClient {
	return &UptimeRobotClient{
		apiURL: apiURL,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "uptimerobot",
			Timeout: time.Minute,
		}),
	}
}

// Name implements ProviderClient.
func (c *UptimeRobotClient) Name() string { return "uptimerobot" }

type uptimeRobotResponse struct {
	Monitors []struct {
		ID           json.Number `json:"id"`
		FriendlyName string      `json:"friendly_name"`
		URL          string      `json:"url"`
		// 2 = up, 8/9 = down (UptimeRobot status codes).
		Status int `json:"status"`
	} `json:"monitors"`
}

// FetchMonitors implements ProviderClient.
func (c *UptimeRobotClient) FetchMonitors(ctx context.Context) ([]ProviderMonitor, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/v2/getMonitors", nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("provider returned %d", resp.StatusCode)
		}

		var parsed uptimeRobotResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return nil, fmt.Errorf("decoding provider response: %w", err)
		}
		return parsed, nil
	})
	if err != nil {
		return nil, err
	}

	parsed := result.(uptimeRobotResponse)
	monitors := make([]ProviderMonitor, 0, len(parsed.Monitors))
	for _, m := range parsed.Monitors {
		monitors = append(monitors, ProviderMonitor{
			ExternalID: m.ID.String(),
			Name:       m.FriendlyName,
			URL:        m.URL,
			IsUp:       m.Status == 2,
		})
	}
	return monitors, nil
}

// Syncer periodically pulls external provider state and applies the up/down
// incident rules to state edges only (an unchanged re-synced state is not
// re-ingested), keyed by provider and external monitor id.
type Syncer struct {
	pool     *pgxpool.Pool
	ingestor *alert.Ingestor
	clients  []ProviderClient
	orgID    uuid.UUID
	logger   *slog.Logger
	cron     *cron.Cron
}

// NewSyncer creates a provider Syncer for one organization's providers.
func NewSyncer(pool *pgxpool.Pool, ingestor *alert.Ingestor, clients []ProviderClient, orgID uuid.UUID, logger *slog.Logger) *Syncer {
	return &Syncer{
		pool:     pool,
		ingestor: ingestor,
		clients:  clients,
		orgID:    orgID,
		logger:   logger,
	}
}

// Start schedules the sync on the given cron spec (e.g. "@every 5m") and
// runs until ctx is cancelled.
func (s *Syncer) Start(ctx context.Context, spec string) error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(spec, func() { s.SyncAll(ctx) }); err != nil {
		return fmt.Errorf("scheduling provider sync: %w", err)
	}
	s.cron.Start()

	go func() {
		<-ctx.Done()
		stopCtx := s.cron.Stop()
		<-stopCtx.Done()
	}()
	return nil
}

// SyncAll syncs every configured provider once.
func (s *Syncer) SyncAll(ctx context.Context) {
	for _, client := range s.clients {
		if err := s.syncProvider(ctx, client); err != nil {
			s.logger.Error("provider sync failed", "provider", client.Name(), "error", err)
		}
	}
}

// syncProvider pulls one provider with retry and reconciles each monitor.
func (s *Syncer) syncProvider(ctx context.Context, client ProviderClient) error {
	monitors, err := backoff.Retry(ctx, func() ([]ProviderMonitor, error) {
		return client.FetchMonitors(ctx)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(3),
	)
	if err != nil {
		return fmt.Errorf("fetching monitors: %w", err)
	}

	now := time.Now().UTC()
	for _, m := range monitors {
		if err := s.reconcileExternal(ctx, client.Name(), m, now); err != nil {
			s.logger.Error("reconciling external monitor",
				"provider", client.Name(),
				"external_id", m.ExternalID,
				"error", err,
			)
		}
	}

	s.logger.Info("provider sync complete", "provider", client.Name(), "monitors", len(monitors))
	return nil
}

func (s *Syncer) reconcileExternal(ctx context.Context, provider string, m ProviderMonitor, now time.Time) error {
	isUp := m.IsUp
	previous, err := NewStore(s.pool).UpsertExternal(ctx, ExternalMonitor{
		OrgID:      s.orgID,
		Provider:   provider,
		ExternalID: m.ExternalID,
		Name:       m.Name,
		URL:        m.URL,
		IsUp:       &isUp,
		SyncedAt:   now,
	})
	if err != nil {
		return err
	}

	// Provider sync reacts to state edges only: unlike probe reports, a
	// re-synced down state is not a new alert delivery.
	if previous != nil && *previous == m.IsUp {
		return nil
	}
	transition := Reconcile(previous, m.IsUp)
	if transition == TransitionNone {
		return nil
	}

	key := provider + ":" + m.ExternalID
	normalized := alert.NormalizedAlert{
		Source:   "uptime",
		Key:      key,
		Severity: incident.SeverityCritical,
	}
	switch transition {
	case TransitionDown:
		normalized.Intent = alert.IntentFire
		normalized.Title = "Monitor down: " + m.Name
		normalized.Description = fmt.Sprintf("External monitor %s (%s) reported down by %s.", m.Name, m.URL, provider)
	case TransitionUp:
		normalized.Intent = alert.IntentResolve
	}

	_, err = s.ingestor.Ingest(ctx, alert.RouteOptions{OrgID: s.orgID}, normalized, nil)
	return err
}
