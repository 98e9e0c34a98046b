package alert

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wisbric/firewatch/internal/audit"
	"github.com/wisbric/firewatch/internal/httpserver"
	"github.com/wisbric/firewatch/internal/telemetry"
)

// WebhookMetrics holds the Prometheus metrics for webhook alert processing.
type WebhookMetrics struct {
	ReceivedTotal      *prometheus.CounterVec
	ProcessingDuration *prometheus.HistogramVec
}

// DefaultWebhookMetrics wires the package-level collectors.
func DefaultWebhookMetrics() *WebhookMetrics {
	return &WebhookMetrics{
		ReceivedTotal:      telemetry.AlertsReceivedTotal,
		ProcessingDuration: telemetry.AlertProcessingDuration,
	}
}

// WebhookHandler provides HTTP handlers for alert webhook endpoints.
//
// Webhook requests are machine-to-machine: they carry tenant routing on the
// URL (org_id required; project_id, group_id, policy_id optional) rather than
// a user principal.
type WebhookHandler struct {
	logger   *slog.Logger
	audit    *audit.Writer
	ingestor *Ingestor
	metrics  *WebhookMetrics
}

// NewWebhookHandler creates a WebhookHandler.
func NewWebhookHandler(logger *slog.Logger, auditW *audit.Writer, ingestor *Ingestor, metrics *WebhookMetrics) *WebhookHandler {
	return &WebhookHandler{logger: logger, audit: auditW, ingestor: ingestor, metrics: metrics}
}

// Routes returns a chi.Router with webhook routes mounted.
func (h *WebhookHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/datadog", h.handleDatadog)
	r.Post("/alertmanager", h.handleAlertmanager)
	r.Post("/generic", h.handleGeneric)
	return r
}

// routeFromRequest extracts tenant routing from the webhook URL. Missing org
// context is always a 400, never a silently unrouted alert.
func routeFromRequest(r *http.Request) (RouteOptions, error) {
	q := r.URL.Query()

	orgRaw := q.Get("org_id")
	if orgRaw == "" {
		orgRaw = r.Header.Get("X-Org-ID")
	}
	if orgRaw == "" {
		return RouteOptions{}, errMissingOrg
	}
	orgID, err := uuid.Parse(orgRaw)
	if err != nil {
		return RouteOptions{}, errInvalidOrg
	}

	route := RouteOptions{OrgID: orgID}
	for param, dst := range map[string]**uuid.UUID{
		"project_id": &route.ProjectID,
		"group_id":   &route.GroupID,
		"policy_id":  &route.EscalationPolicyID,
	} {
		if v := q.Get(param); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				return RouteOptions{}, errInvalidRouteParam(param)
			}
			*dst = &id
		}
	}
	return route, nil
}

var (
	errMissingOrg = routeError("org_id is required")
	errInvalidOrg = routeError("org_id must be a valid UUID")
)

type routeError string

func (e routeError) Error() string { return string(e) }

func errInvalidRouteParam(param string) error {
	return routeError(param + " must be a valid UUID")
}

func (h *WebhookHandler) recordReceived(source string, severity string) {
	if h.metrics != nil && h.metrics.ReceivedTotal != nil {
		h.metrics.ReceivedTotal.WithLabelValues(source, severity).Inc()
	}
}

func (h *WebhookHandler) recordDuration(source string, start time.Time) {
	if h.metrics != nil && h.metrics.ProcessingDuration != nil {
		h.metrics.ProcessingDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	}
}

// handleDatadog processes a Datadog webhook event.
func (h *WebhookHandler) handleDatadog(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer h.recordDuration("datadog", start)

	route, err := routeFromRequest(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	var payload datadogPayload
	if err := decodeWebhookBody(r, &payload); err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	normalized := normalizeDatadog(payload)
	h.recordReceived("datadog", string(normalized.Severity))

	raw, _ := json.Marshal(payload)
	result, err := h.ingestor.Ingest(r.Context(), route, normalized, raw)
	if err != nil {
		h.logger.Error("processing datadog alert", "error", err, "key", normalized.Key)
		httpserver.RespondError(w, http.StatusServiceUnavailable, "unavailable", "alert could not be processed")
		return
	}

	h.auditResult(r, "datadog", result)
	httpserver.Respond(w, http.StatusAccepted, result)
}

// handleAlertmanager processes an Alertmanager envelope carrying one or more
// alerts; each becomes one normalized alert.
func (h *WebhookHandler) handleAlertmanager(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer h.recordDuration("prometheus", start)

	route, err := routeFromRequest(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	var payload alertmanagerPayload
	if err := decodeWebhookBody(r, &payload); err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if len(payload.Alerts) == 0 {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "no alerts in payload")
		return
	}

	results := make([]Result, 0, len(payload.Alerts))
	for _, a := range payload.Alerts {
		normalized := normalizeAlertmanager(a)
		h.recordReceived("prometheus", string(normalized.Severity))

		raw, _ := json.Marshal(a)
		result, err := h.ingestor.Ingest(r.Context(), route, normalized, raw)
		if err != nil {
			h.logger.Error("processing alertmanager alert", "error", err, "fingerprint", a.Fingerprint)
			continue
		}
		results = append(results, result)
		h.auditResult(r, "alertmanager", result)
	}

	httpserver.Respond(w, http.StatusAccepted, results)
}

// handleGeneric processes a custom JSON webhook.
func (h *WebhookHandler) handleGeneric(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer h.recordDuration("webhook", start)

	route, err := routeFromRequest(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	var payload genericPayload
	if err := decodeWebhookBody(r, &payload); err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	normalized := normalizeGeneric(payload)
	h.recordReceived("webhook", string(normalized.Severity))

	raw, _ := json.Marshal(payload)
	result, err := h.ingestor.Ingest(r.Context(), route, normalized, raw)
	if err != nil {
		h.logger.Error("processing generic alert", "error", err, "key", normalized.Key)
		httpserver.RespondError(w, http.StatusServiceUnavailable, "unavailable", "alert could not be processed")
		return
	}

	h.auditResult(r, "webhook", result)
	httpserver.Respond(w, http.StatusAccepted, result)
}

func (h *WebhookHandler) auditResult(r *http.Request, source string, result Result) {
	if h.audit == nil || result.NoOp {
		return
	}
	action := "merge_alert"
	switch {
	case result.Created:
		action = "create_incident"
	case result.Resolved:
		action = "auto_resolve"
	}
	detail, _ := json.Marshal(map[string]string{"source": source})
	h.audit.LogFromRequest(r, action, "incident", result.Incident.ID, detail)
}
