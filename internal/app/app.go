package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wisbric/firewatch/internal/audit"
	"github.com/wisbric/firewatch/internal/config"
	"github.com/wisbric/firewatch/internal/httpserver"
	"github.com/wisbric/firewatch/internal/platform"
	"github.com/wisbric/firewatch/internal/seed"
	"github.com/wisbric/firewatch/internal/telemetry"
	"github.com/wisbric/firewatch/pkg/alert"
	"github.com/wisbric/firewatch/pkg/authz"
	"github.com/wisbric/firewatch/pkg/escalation"
	"github.com/wisbric/firewatch/pkg/group"
	"github.com/wisbric/firewatch/pkg/incident"
	"github.com/wisbric/firewatch/pkg/notification"
	"github.com/wisbric/firewatch/pkg/schedule"
	firewatchslack "github.com/wisbric/firewatch/pkg/slack"
	"github.com/wisbric/firewatch/pkg/tenant"
	"github.com/wisbric/firewatch/pkg/uptime"
	"github.com/wisbric/firewatch/pkg/user"
)

// Run is the main application entry point. It sets up logging from the given
// config, connects to infrastructure, applies migrations, and starts the
// appropriate mode (api, worker or seed).
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting firewatch",
		"mode", cfg.Mode,
		"listen", cfg.ListenAddr(),
	)

	// Database
	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	// Redis
	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg)
	case "worker":
		return runWorker(ctx, cfg, logger, db, rdb)
	case "seed":
		return seed.Run(ctx, db, logger)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	// Audit log writer (async, buffered). Reads the principal from the
	// tenant scope on each request.
	auditWriter := audit.NewWriter(db, logger, func(ctx context.Context) (uuid.UUID, uuid.UUID, bool) {
		if s := tenant.FromContext(ctx); s != nil {
			return s.UserID, s.OrgID, true
		}
		return uuid.Nil, uuid.Nil, false
	})
	auditWriter.Start(ctx)
	defer auditWriter.Close()

	srv := httpserver.NewServer(httpserver.ServerConfig{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}, logger, db, rdb, metricsReg, tenant.Middleware)

	// Core services.
	authzSvc := authz.NewService(db, logger)
	publisher := notification.NewRedisPublisher(rdb, logger)
	incidentSvc := incident.NewService(db, publisher, logger).
		WithAckNudge(func(ctx context.Context, id uuid.UUID) {
			notification.PublishAck(ctx, rdb, id.String())
		})
	scheduleSvc := schedule.NewService(db, logger)
	ingestor := alert.NewIngestor(incidentSvc, logger)

	// Tenant-scoped domain handlers.
	srv.APIRouter.Mount("/projects", tenant.NewHandler(logger, auditWriter, db, authzSvc).Routes())
	srv.APIRouter.Mount("/memberships", authz.NewHandler(logger, auditWriter, authzSvc).Routes())
	srv.APIRouter.Mount("/users", user.NewHandler(logger, auditWriter, db, authzSvc).Routes())
	srv.APIRouter.Mount("/incidents", incident.NewHandler(logger, auditWriter, incidentSvc, authzSvc).Routes())
	srv.APIRouter.Mount("/escalation-policies", escalation.NewHandler(logger, auditWriter, db, authzSvc, nil).Routes())
	srv.APIRouter.Mount("/uptime", uptime.NewHandler(logger, auditWriter, db, authzSvc).Routes())

	groupHandler := group.NewHandler(logger, auditWriter, db, authzSvc)
	scheduleHandler := schedule.NewHandler(logger, auditWriter, scheduleSvc, authzSvc)
	srv.APIRouter.Mount("/groups", groupHandler.Routes(scheduleHandler.RegisterGroupRoutes))
	srv.APIRouter.Mount("/schedule-preview", scheduleHandler.PreviewRoutes())

	// Webhook ingestion: machine-to-machine, routed by URL parameters.
	webhookHandler := alert.NewWebhookHandler(logger, auditWriter, ingestor, alert.DefaultWebhookMetrics())
	srv.Router.Mount("/webhooks", webhookHandler.Routes())

	// Probe reports from edge workers, authenticated with the deployment token.
	reconciler := uptime.NewReconciler(db, ingestor, logger)
	reportHandler := uptime.NewReportHandler(logger, reconciler, cfg.UptimeReportToken)
	srv.Router.Mount("/uptime", reportHandler.Routes())

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client) error {
	logger.Info("worker started")

	publisher := notification.NewRedisPublisher(rdb, logger)
	incidentSvc := incident.NewService(db, publisher, logger)
	scheduleSvc := schedule.NewService(db, logger)
	ingestor := alert.NewIngestor(incidentSvc, logger)

	// Notification delivery: intents fan out to registered providers.
	registry := notification.NewRegistry()
	slackNotifier := firewatchslack.NewNotifier(cfg.SlackBotToken, cfg.SlackAlertChannel, logger)
	if slackNotifier.IsEnabled() {
		registry.Register(firewatchslack.NewProvider(slackNotifier, logger))
		logger.Info("slack delivery enabled", "channel", cfg.SlackAlertChannel)
	} else {
		logger.Info("slack delivery disabled (SLACK_BOT_TOKEN or SLACK_ALERT_CHANNEL not set)")
	}
	dispatcher := notification.NewDispatcher(rdb, registry, telemetry.Component(logger, "dispatcher"))
	go func() {
		if err := dispatcher.Run(ctx); err != nil {
			logger.Error("notification dispatcher", "error", err)
		}
	}()

	// External provider sync (optional).
	if cfg.UptimeRobotAPIKey != "" && cfg.ProviderSyncOrgID != "" {
		orgID, err := uuid.Parse(cfg.ProviderSyncOrgID)
		if err != nil {
			return fmt.Errorf("parsing provider sync org id: %w", err)
		}
		clients := []uptime.ProviderClient{
			uptime.NewUptimeRobotClient(cfg.UptimeRobotAPIURL, cfg.UptimeRobotAPIKey, cfg.UptimeProviderTimeout),
		}
		syncer := uptime.NewSyncer(db, ingestor, clients, orgID, telemetry.Component(logger, "provider-sync"))
		if err := syncer.Start(ctx, cfg.UptimeProviderSyncSpec); err != nil {
			return fmt.Errorf("starting provider sync: %w", err)
		}
		logger.Info("provider sync scheduled", "spec", cfg.UptimeProviderSyncSpec)
	}

	engine := escalation.NewEngine(db, rdb, scheduleSvc, publisher, telemetry.Component(logger, "escalation"), escalation.Config{
		TickInterval: cfg.EscalationTickInterval,
		BatchSize:    cfg.EscalationBatchSize,
		Concurrency:  cfg.EscalationConcurrency,
	})
	return engine.Run(ctx)
}
