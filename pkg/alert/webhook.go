package alert

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wisbric/firewatch/pkg/incident"
)

// --- Datadog payload types ---

type datadogPayload struct {
	ID            json.Number    `json:"id"`
	LastUpdated   json.Number    `json:"last_updated"`
	EventType     string         `json:"event_type"`
	Title         string         `json:"title"`
	Date          json.Number    `json:"date"`
	Org           datadogOrgInfo `json:"org"`
	Body          string         `json:"body"`
	Transition    string         `json:"transition"`
	Aggregate     string         `json:"aggregate"`
	AlertPriority string         `json:"alert_priority"`
}

type datadogOrgInfo struct {
	ID   json.Number `json:"id"`
	Name string      `json:"name"`
}

// normalizeDatadog translates one Datadog event into a normalized alert.
// Recovered transitions resolve the keyed incident with severity info; every
// other transition fires. The dedup key is the aggregate when present, the
// event id otherwise.
func normalizeDatadog(p datadogPayload) NormalizedAlert {
	intent := IntentFire
	severity := mapDatadogPriority(p.AlertPriority)
	if strings.EqualFold(strings.TrimSpace(p.Transition), "Recovered") {
		intent = IntentResolve
		severity = incident.SeverityInfo
	}

	// No usable key leaves Key empty and the ingestor falls back to
	// non-deduplicating creation.
	key := p.Aggregate
	if key == "" {
		key = p.ID.String()
	}

	return NormalizedAlert{
		Source:      "datadog",
		Title:       p.Title,
		Description: p.Body,
		Severity:    severity,
		Intent:      intent,
		Key:         key,
		ExternalID:  p.ID.String(),
		Labels: map[string]string{
			"event_type":     p.EventType,
			"transition":     p.Transition,
			"alert_priority": p.AlertPriority,
			"org_name":       p.Org.Name,
		},
	}
}

// --- Alertmanager payload types ---

type alertmanagerPayload struct {
	Receiver          string              `json:"receiver"`
	Status            string              `json:"status"`
	Alerts            []alertmanagerAlert `json:"alerts"`
	GroupLabels       map[string]string   `json:"groupLabels"`
	CommonLabels      map[string]string   `json:"commonLabels"`
	CommonAnnotations map[string]string   `json:"commonAnnotations"`
	ExternalURL       string              `json:"externalURL"`
	Version           string              `json:"version"`
	GroupKey          string              `json:"groupKey"`
}

type alertmanagerAlert struct {
	Status      string            `json:"status"`
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	StartsAt    time.Time         `json:"startsAt"`
	EndsAt      time.Time         `json:"endsAt"`
	Fingerprint string            `json:"fingerprint"`
}

// normalizeAlertmanager translates one alert from an Alertmanager envelope.
// The fingerprint is the dedup key; labels.severity maps case-insensitively
// onto the four-level scale.
func normalizeAlertmanager(a alertmanagerAlert) NormalizedAlert {
	intent := IntentFire
	if strings.EqualFold(a.Status, "resolved") {
		intent = IntentResolve
	}

	title := a.Labels["alertname"]
	if summary := a.Annotations["summary"]; summary != "" {
		if title == "" {
			title = summary
		} else {
			title = fmt.Sprintf("%s: %s", title, summary)
		}
	}
	if title == "" {
		title = "alertmanager alert"
	}

	return NormalizedAlert{
		Source:      "prometheus",
		Title:       title,
		Description: a.Annotations["description"],
		Severity:    mapSeverityLabel(a.Labels["severity"]),
		Intent:      intent,
		Key:         a.Fingerprint,
		ExternalID:  a.Fingerprint,
		Labels:      a.Labels,
	}
}

// --- Generic payload types ---

type genericPayload struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Severity    string            `json:"severity"`
	Status      string            `json:"status"`
	DedupKey    string            `json:"dedup_key"`
	ExternalID  string            `json:"external_id"`
	Labels      map[string]string `json:"labels"`
}

// normalizeGeneric translates a custom webhook body.
func normalizeGeneric(p genericPayload) NormalizedAlert {
	intent := IntentFire
	if strings.EqualFold(p.Status, "resolved") {
		intent = IntentResolve
	}

	title := p.Title
	if title == "" {
		title = "custom alert"
	}

	return NormalizedAlert{
		Source:      "webhook",
		Title:       title,
		Description: p.Description,
		Severity:    mapSeverityLabel(p.Severity),
		Intent:      intent,
		Key:         p.DedupKey,
		ExternalID:  p.ExternalID,
		Labels:      p.Labels,
	}
}

// decodeWebhookBody reads and decodes a webhook JSON body. Unlike
// httpserver.Decode, this is lenient about unknown fields since external
// systems include additional data.
func decodeWebhookBody(r *http.Request, dst any) error {
	const maxBody = 1 << 20 // 1 MiB
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return fmt.Errorf("reading request body: %w", err)
	}
	if len(body) == 0 {
		return fmt.Errorf("request body is empty")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}
