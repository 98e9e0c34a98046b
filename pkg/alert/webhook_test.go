package alert

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wisbric/firewatch/pkg/incident"
)

func TestNormalizeDatadog(t *testing.T) {
	tests := []struct {
		name         string
		payload      datadogPayload
		wantSeverity incident.Severity
		wantIntent   Intent
		wantKey      string
	}{
		{
			name: "P1 triggered with aggregate",
			payload: datadogPayload{
				ID:            json.Number("12345"),
				Title:         "[P1] [Triggered] CPU saturation",
				Transition:    "Triggered",
				Aggregate:     "abc",
				AlertPriority: "P1",
			},
			wantSeverity: incident.SeverityCritical,
			wantIntent:   IntentFire,
			wantKey:      "abc",
		},
		{
			name: "P2 renotify falls back to event id",
			payload: datadogPayload{
				ID:            json.Number("777"),
				Transition:    "Renotify",
				AlertPriority: "P2",
			},
			wantSeverity: incident.SeverityHigh,
			wantIntent:   IntentFire,
			wantKey:      "777",
		},
		{
			name: "P3 maps to warning",
			payload: datadogPayload{
				ID:            json.Number("1"),
				Transition:    "Warn",
				AlertPriority: "P3",
			},
			wantSeverity: incident.SeverityWarning,
			wantIntent:   IntentFire,
			wantKey:      "1",
		},
		{
			name: "P4 maps to info",
			payload: datadogPayload{
				ID:            json.Number("2"),
				Transition:    "No Data",
				AlertPriority: "P4",
			},
			wantSeverity: incident.SeverityInfo,
			wantIntent:   IntentFire,
			wantKey:      "2",
		},
		{
			name: "unknown priority defaults to warning",
			payload: datadogPayload{
				ID:         json.Number("3"),
				Transition: "Triggered",
			},
			wantSeverity: incident.SeverityWarning,
			wantIntent:   IntentFire,
			wantKey:      "3",
		},
		{
			name: "recovered resolves with info severity",
			payload: datadogPayload{
				ID:            json.Number("12345"),
				Transition:    "Recovered",
				Aggregate:     "abc",
				AlertPriority: "P1",
			},
			wantSeverity: incident.SeverityInfo,
			wantIntent:   IntentResolve,
			wantKey:      "abc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeDatadog(tt.payload)
			if got.Source != "datadog" {
				t.Errorf("Source = %q", got.Source)
			}
			if got.Severity != tt.wantSeverity {
				t.Errorf("Severity = %s, want %s", got.Severity, tt.wantSeverity)
			}
			if got.Intent != tt.wantIntent {
				t.Errorf("Intent = %s, want %s", got.Intent, tt.wantIntent)
			}
			if got.Key != tt.wantKey {
				t.Errorf("Key = %q, want %q", got.Key, tt.wantKey)
			}
		})
	}
}

func TestNormalizeAlertmanager(t *testing.T) {
	tests := []struct {
		name         string
		alert        alertmanagerAlert
		wantSeverity incident.Severity
		wantIntent   Intent
		wantTitle    string
	}{
		{
			name: "firing critical",
			alert: alertmanagerAlert{
				Status:      "firing",
				Labels:      map[string]string{"alertname": "HighErrorRate", "severity": "CRITICAL"},
				Annotations: map[string]string{"summary": "5xx spike"},
				Fingerprint: "fp1",
			},
			wantSeverity: incident.SeverityCritical,
			wantIntent:   IntentFire,
			wantTitle:    "HighErrorRate: 5xx spike",
		},
		{
			name: "resolved",
			alert: alertmanagerAlert{
				Status:      "resolved",
				Labels:      map[string]string{"alertname": "HighErrorRate", "severity": "critical"},
				Fingerprint: "fp1",
			},
			wantSeverity: incident.SeverityCritical,
			wantIntent:   IntentResolve,
			wantTitle:    "HighErrorRate",
		},
		{
			name: "unknown severity defaults to warning",
			alert: alertmanagerAlert{
				Status:      "firing",
				Labels:      map[string]string{"alertname": "DiskFull", "severity": "sev2"},
				Fingerprint: "fp2",
			},
			wantSeverity: incident.SeverityWarning,
			wantIntent:   IntentFire,
			wantTitle:    "DiskFull",
		},
		{
			name: "missing severity defaults to warning",
			alert: alertmanagerAlert{
				Status:      "firing",
				Labels:      map[string]string{"alertname": "NoSev"},
				Fingerprint: "fp3",
			},
			wantSeverity: incident.SeverityWarning,
			wantIntent:   IntentFire,
			wantTitle:    "NoSev",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeAlertmanager(tt.alert)
			if got.Source != "prometheus" {
				t.Errorf("Source = %q", got.Source)
			}
			if got.Severity != tt.wantSeverity {
				t.Errorf("Severity = %s, want %s", got.Severity, tt.wantSeverity)
			}
			if got.Intent != tt.wantIntent {
				t.Errorf("Intent = %s, want %s", got.Intent, tt.wantIntent)
			}
			if got.Key != tt.alert.Fingerprint {
				t.Errorf("Key = %q, want %q", got.Key, tt.alert.Fingerprint)
			}
			if got.Title != tt.wantTitle {
				t.Errorf("Title = %q, want %q", got.Title, tt.wantTitle)
			}
		})
	}
}

func TestNormalizeGeneric(t *testing.T) {
	got := normalizeGeneric(genericPayload{
		Title:    "queue depth",
		Severity: "high",
		Status:   "firing",
		DedupKey: "q1",
	})
	if got.Severity != incident.SeverityHigh || got.Intent != IntentFire || got.Key != "q1" {
		t.Errorf("unexpected normalization: %+v", got)
	}

	got = normalizeGeneric(genericPayload{Status: "RESOLVED", DedupKey: "q1"})
	if got.Intent != IntentResolve {
		t.Errorf("Intent = %s, want resolve", got.Intent)
	}
	if got.Title != "custom alert" {
		t.Errorf("Title = %q, want default", got.Title)
	}
}

func TestMapSeverityLabel(t *testing.T) {
	tests := []struct {
		in   string
		want incident.Severity
	}{
		{"critical", incident.SeverityCritical},
		{"CRIT", incident.SeverityCritical},
		{"high", incident.SeverityHigh},
		{"error", incident.SeverityHigh},
		{"warning", incident.SeverityWarning},
		{"Warn", incident.SeverityWarning},
		{"info", incident.SeverityInfo},
		{"low", incident.SeverityInfo},
		{"", incident.SeverityWarning},
		{"page", incident.SeverityWarning},
	}
	for _, tt := range tests {
		if got := mapSeverityLabel(tt.in); got != tt.want {
			t.Errorf("mapSeverityLabel(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestRouteFromRequest(t *testing.T) {
	orgID := "b9f0c5e2-47a1-4f7e-9d2a-0b8f3c6d1e24"

	t.Run("missing org", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/webhooks/datadog", nil)
		if _, err := routeFromRequest(r); err == nil {
			t.Fatal("expected error for missing org_id")
		}
	})

	t.Run("org via query", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/webhooks/datadog?org_id="+orgID, nil)
		route, err := routeFromRequest(r)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if route.OrgID.String() != orgID {
			t.Errorf("OrgID = %s", route.OrgID)
		}
	})

	t.Run("bad route param", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/webhooks/datadog?org_id="+orgID+"&group_id=nope", nil)
		_, err := routeFromRequest(r)
		if err == nil || !strings.Contains(err.Error(), "group_id") {
			t.Fatalf("err = %v, want group_id validation error", err)
		}
	})
}

func TestDecodeWebhookBodyLenient(t *testing.T) {
	body := `{"title":"x","unknown_field":42}`
	r := httptest.NewRequest("POST", "/webhooks/generic", strings.NewReader(body))

	var p genericPayload
	if err := decodeWebhookBody(r, &p); err != nil {
		t.Fatalf("decodeWebhookBody() error: %v", err)
	}
	if p.Title != "x" {
		t.Errorf("Title = %q", p.Title)
	}

	r = httptest.NewRequest("POST", "/webhooks/generic", strings.NewReader(""))
	if err := decodeWebhookBody(r, &p); err == nil {
		t.Error("expected error for empty body")
	}

	r = httptest.NewRequest("POST", "/webhooks/generic", strings.NewReader("{not json"))
	if err := decodeWebhookBody(r, &p); err == nil {
		t.Error("expected error for malformed JSON")
	}
}
