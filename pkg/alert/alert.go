// Package alert accepts webhook payloads from observability sources,
// normalizes them, and drives incident creation and deduplication.
package alert

import (
	"strings"

	"github.com/wisbric/firewatch/pkg/incident"
)

// Intent is what a normalized alert wants done to its incident.
type Intent string

const (
	IntentFire    Intent = "fire"
	IntentResolve Intent = "resolve"
)

// NormalizedAlert is the single shape every provider payload is translated
// into. It is the sole input to ingestion.
type NormalizedAlert struct {
	Source      string
	Title       string
	Description string
	Severity    incident.Severity
	Intent      Intent
	// Key is the deduplication key scoped to the organization. Empty means
	// the alert cannot deduplicate and every delivery opens a new incident.
	Key        string
	ExternalID string
	Labels     map[string]string
}

// mapSeverityLabel maps a free-form severity label (case-insensitive) onto the
// four-level scale, defaulting to warning.
func mapSeverityLabel(s string) incident.Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical", "crit":
		return incident.SeverityCritical
	case "high", "error":
		return incident.SeverityHigh
	case "warning", "warn", "medium":
		return incident.SeverityWarning
	case "info", "informational", "low":
		return incident.SeverityInfo
	default:
		return incident.SeverityWarning
	}
}

// mapDatadogPriority maps Datadog P1..P4 onto the four-level scale,
// defaulting to warning for unknown or empty priorities.
func mapDatadogPriority(priority string) incident.Severity {
	switch strings.ToUpper(strings.TrimSpace(priority)) {
	case "P1":
		return incident.SeverityCritical
	case "P2":
		return incident.SeverityHigh
	case "P3":
		return incident.SeverityWarning
	case "P4":
		return incident.SeverityInfo
	default:
		return incident.SeverityWarning
	}
}
