package uptime

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/firewatch/internal/httpserver"
	"github.com/wisbric/firewatch/internal/telemetry"
	"github.com/wisbric/firewatch/pkg/alert"
	"github.com/wisbric/firewatch/pkg/incident"
)

// Reconciler applies probe results: monitor state, the immutable check
// sample, and the incident transition through the alert ingest contract.
type Reconciler struct {
	pool     *pgxpool.Pool
	ingestor *alert.Ingestor
	logger   *slog.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(pool *pgxpool.Pool, ingestor *alert.Ingestor, logger *slog.Logger) *Reconciler {
	return &Reconciler{pool: pool, ingestor: ingestor, logger: logger}
}

// Apply processes one probe result. The monitor read takes a row lock so
// concurrent reports for the same monitor serialize and each state edge
// fires exactly once.
func (rc *Reconciler) Apply(ctx context.Context, location string, result ProbeResult, at time.Time) error {
	tx, err := rc.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning reconcile transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	st := NewStore(tx)
	monitor, err := st.Get(ctx, result.MonitorID)
	if err != nil {
		if IsNoRows(err) {
			rc.logger.Warn("probe result for unknown monitor", "monitor_id", result.MonitorID)
			return nil
		}
		return fmt.Errorf("loading monitor: %w", err)
	}

	transition := Reconcile(monitor.IsUp, result.IsUp)

	if err := st.UpdateState(ctx, monitor.ID, result, at); err != nil {
		return err
	}
	if err := st.AppendCheck(ctx, monitor.ID, location, result, at); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing reconcile transaction: %w", err)
	}

	state := "up"
	if !result.IsUp {
		state = "down"
	}
	telemetry.UptimeChecksTotal.WithLabelValues(state).Inc()

	return rc.applyTransition(ctx, monitor, transition, result)
}

// applyTransition feeds the incident action through the alert ingest contract
// with source "uptime" and the monitor id as the dedup key.
func (rc *Reconciler) applyTransition(ctx context.Context, monitor Monitor, transition Transition, result ProbeResult) error {
	if transition == TransitionNone {
		return nil
	}

	key := monitor.ID.String()
	normalized := alert.NormalizedAlert{
		Source:   "uptime",
		Key:      key,
		Severity: incident.SeverityCritical,
	}
	route := alert.RouteOptions{
		OrgID:              monitor.OrgID,
		ProjectID:          monitor.ProjectID,
		GroupID:            monitor.GroupID,
		EscalationPolicyID: monitor.PolicyID,
	}

	switch transition {
	case TransitionDown:
		normalized.Intent = alert.IntentFire
		normalized.Title = "Monitor down: " + monitor.Name
		normalized.Description = downDescription(monitor, result)
	case TransitionUp:
		normalized.Intent = alert.IntentResolve
	}

	raw, _ := json.Marshal(result)
	if _, err := rc.ingestor.Ingest(ctx, route, normalized, raw); err != nil {
		return fmt.Errorf("applying uptime transition: %w", err)
	}
	return nil
}

func downDescription(monitor Monitor, result ProbeResult) string {
	desc := fmt.Sprintf("Monitor %s (%s) is down.", monitor.Name, monitor.URL)
	if result.Error != "" {
		desc += " Error: " + result.Error
	}
	if result.Status != 0 {
		desc += fmt.Sprintf(" Status: %d.", result.Status)
	}
	return desc
}

// ReportHandler accepts batched probe reports from edge workers,
// authenticated with the deployment token.
type ReportHandler struct {
	logger     *slog.Logger
	reconciler *Reconciler
	tokenHash  [sha256.Size]byte
	enabled    bool
}

// NewReportHandler creates a ReportHandler. The deployment token is kept as a
// SHA-256 digest and compared in constant time. An empty token disables the
// endpoint.
func NewReportHandler(logger *slog.Logger, reconciler *Reconciler, deployToken string) *ReportHandler {
	h := &ReportHandler{logger: logger, reconciler: reconciler}
	if deployToken != "" {
		h.tokenHash = sha256.Sum256([]byte(deployToken))
		h.enabled = true
	}
	return h
}

// Routes returns a chi.Router with the report route mounted.
func (h *ReportHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/report", h.handleReport)
	return r
}

func (h *ReportHandler) authenticate(r *http.Request) bool {
	if !h.enabled {
		return false
	}
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || token == "" {
		return false
	}
	sum := sha256.Sum256([]byte(token))
	return subtle.ConstantTimeCompare(sum[:], h.tokenHash[:]) == 1
}

func (h *ReportHandler) handleReport(w http.ResponseWriter, r *http.Request) {
	if !h.authenticate(r) {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "invalid deployment token")
		return
	}

	var report Report
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&report); err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid JSON: "+err.Error())
		return
	}

	at := time.Now().UTC()
	if report.Timestamp > 0 {
		at = time.Unix(report.Timestamp, 0).UTC()
	}

	processed := 0
	for _, result := range report.Results {
		if err := h.reconciler.Apply(r.Context(), report.Location, result, at); err != nil {
			h.logger.Error("applying probe result", "error", err, "monitor_id", result.MonitorID)
			continue
		}
		processed++
	}

	httpserver.Respond(w, http.StatusOK, map[string]int{"processed": processed})
}
