// Package uptime reconciles probe reports and external provider state into
// monitor status and incidents: a down transition opens an incident keyed by
// the monitor id, an up transition resolves it.
package uptime

import (
	"time"

	"github.com/google/uuid"
)

// Monitor is a probed target: a URL or TCP endpoint with its last known state.
type Monitor struct {
	ID          uuid.UUID  `json:"id"`
	OrgID       uuid.UUID  `json:"org_id"`
	ProjectID   *uuid.UUID `json:"project_id,omitempty"`
	Name        string     `json:"name"`
	URL         string     `json:"url"`
	// IsUp is nil until the first check arrives.
	IsUp        *bool      `json:"is_up"`
	LastLatency *int       `json:"last_latency_ms,omitempty"`
	LastStatus  *int       `json:"last_status,omitempty"`
	LastError   *string    `json:"last_error,omitempty"`
	LastCheckAt *time.Time `json:"last_check_at,omitempty"`
	GroupID     *uuid.UUID `json:"group_id,omitempty"`
	PolicyID    *uuid.UUID `json:"escalation_policy_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Check is one immutable probe sample.
type Check struct {
	ID        uuid.UUID `json:"id"`
	MonitorID uuid.UUID `json:"monitor_id"`
	Location  string    `json:"location"`
	IsUp      bool      `json:"is_up"`
	LatencyMS int       `json:"latency_ms"`
	Status    int       `json:"status"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// ExternalMonitor mirrors a monitor managed by a third-party provider
// (UptimeRobot, Checkly, ...), keyed by provider + external id.
type ExternalMonitor struct {
	ID         uuid.UUID  `json:"id"`
	OrgID      uuid.UUID  `json:"org_id"`
	Provider   string     `json:"provider"`
	ExternalID string     `json:"external_id"`
	Name       string     `json:"name"`
	URL        string     `json:"url"`
	IsUp       *bool      `json:"is_up"`
	SyncedAt   time.Time  `json:"synced_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

// --- Probe report wire shapes ---

// ProbeResult is one monitor's result inside a report.
type ProbeResult struct {
	MonitorID uuid.UUID `json:"monitor_id"`
	IsUp      bool      `json:"is_up"`
	Latency   int       `json:"latency"`
	Status    int       `json:"status"`
	Error     string    `json:"error"`
}

// Report is the batched payload posted by an edge probe worker.
type Report struct {
	Location  string        `json:"location"`
	Timestamp int64         `json:"timestamp"`
	Results   []ProbeResult `json:"results"`
}

// CreateMonitorRequest is the JSON body for POST /api/v1/uptime/monitors.
type CreateMonitorRequest struct {
	Name      string     `json:"name" validate:"required,min=2"`
	URL       string     `json:"url" validate:"required,url"`
	ProjectID *uuid.UUID `json:"project_id"`
	GroupID   *uuid.UUID `json:"group_id"`
	PolicyID  *uuid.UUID `json:"escalation_policy_id"`
}

// Transition describes what a probe result means for incident state.
type Transition int

const (
	// TransitionNone means the state did not change.
	TransitionNone Transition = iota
	// TransitionDown opens or merges into the keyed incident (any down result).
	TransitionDown
	// TransitionUp resolves the incident (down → up).
	TransitionUp
)

// Reconcile decides the incident action for a probe result given the
// monitor's previous state. Every down result feeds the keyed ingest path:
// the first one opens the incident and repeats merge into it, bumping its
// alert count. Recovery fires only on an actual down → up edge.
func Reconcile(previous *bool, isUp bool) Transition {
	if !isUp {
		return TransitionDown
	}
	if previous != nil && !*previous {
		return TransitionUp
	}
	return TransitionNone
}
