// Package incident persists incidents and their append-only event log, and
// guards every transition of the incident state machine.
package incident

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is the incident lifecycle state.
type Status string

const (
	StatusTriggered    Status = "triggered"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
)

// Severity classifies impact.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// ValidSeverity reports whether s is one of the four levels.
func ValidSeverity(s Severity) bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityWarning, SeverityInfo:
		return true
	}
	return false
}

// Urgency classifies how aggressively an incident should page.
type Urgency string

const (
	UrgencyHigh Urgency = "high"
	UrgencyLow  Urgency = "low"
)

// EscalationStatus tracks where an incident stands in its policy.
type EscalationStatus string

const (
	EscalationNone      EscalationStatus = "none"
	EscalationPending   EscalationStatus = "pending"
	EscalationCompleted EscalationStatus = "completed"
)

// SystemActor is the principal recorded on events written by the system
// itself (auto-resolve, escalation) rather than a user.
const SystemActor = "system"

// Incident is the central entity of the control plane.
type Incident struct {
	ID                     uuid.UUID        `json:"id"`
	OrgID                  uuid.UUID        `json:"org_id"`
	ProjectID              *uuid.UUID       `json:"project_id,omitempty"`
	Title                  string           `json:"title"`
	Description            string           `json:"description"`
	Severity               Severity         `json:"severity"`
	Urgency                Urgency          `json:"urgency"`
	Status                 Status           `json:"status"`
	Source                 string           `json:"source"`
	IncidentKey            *string          `json:"incident_key,omitempty"`
	ExternalID             *string          `json:"external_id,omitempty"`
	AlertCount             int              `json:"alert_count"`
	GroupID                *uuid.UUID       `json:"group_id,omitempty"`
	EscalationPolicyID     *uuid.UUID       `json:"escalation_policy_id,omitempty"`
	CurrentEscalationLevel int              `json:"current_escalation_level"`
	LastEscalatedAt        *time.Time       `json:"last_escalated_at,omitempty"`
	EscalationStatus       EscalationStatus `json:"escalation_status"`
	AssignedTo             *uuid.UUID       `json:"assigned_to,omitempty"`
	CreatedAt              time.Time        `json:"created_at"`
	UpdatedAt              time.Time        `json:"updated_at"`
	AcknowledgedAt         *time.Time       `json:"acknowledged_at,omitempty"`
	ResolvedAt             *time.Time       `json:"resolved_at,omitempty"`
}

// Open reports whether the incident still holds its dedup key.
func (i *Incident) Open() bool {
	return i.Status == StatusTriggered || i.Status == StatusAcknowledged
}

// CanTransition reports whether the state machine permits from → to.
// triggered → acknowledged → resolved, plus triggered → resolved directly and
// the explicit un-acknowledge path acknowledged → triggered. resolved is terminal.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusTriggered:
		return to == StatusAcknowledged || to == StatusResolved
	case StatusAcknowledged:
		return to == StatusResolved || to == StatusTriggered
	default:
		return false
	}
}

// Event is one append-only history record on an incident.
type Event struct {
	ID         uuid.UUID       `json:"id"`
	IncidentID uuid.UUID       `json:"incident_id"`
	EventType  string          `json:"event_type"`
	EventData  json.RawMessage `json:"event_data"`
	CreatedBy  string          `json:"created_by"` // user id or "system"
	CreatedAt  time.Time       `json:"created_at"`
}

// Event types written by the core.
const (
	EventCreated             = "created"
	EventAlertMerged         = "alert_merged"
	EventAcknowledged        = "acknowledged"
	EventUnacknowledged      = "unacknowledged"
	EventResolved            = "resolved"
	EventAssigned            = "assigned"
	EventEscalated           = "escalated"
	EventEscalationCompleted = "escalation_completed"
	EventNotifyFailure       = "notify_failure"
	EventExternalDispatch    = "external_dispatch"
)

// CreateInput carries everything needed to open an incident.
type CreateInput struct {
	OrgID              uuid.UUID
	ProjectID          *uuid.UUID
	Title              string
	Description        string
	Severity           Severity
	Urgency            Urgency
	Source             string
	IncidentKey        *string
	ExternalID         *string
	GroupID            *uuid.UUID
	EscalationPolicyID *uuid.UUID
	CreatedBy          string // user id or SystemActor
}

// ListFilters holds the optional filter parameters for listing incidents.
// Filters compose as AND.
type ListFilters struct {
	Status   Status
	Severity Severity
	Source   string
	Assigned *uuid.UUID
}

// CreateRequest is the JSON body for POST /api/v1/incidents.
type CreateRequest struct {
	Title              string     `json:"title" validate:"required,min=3"`
	Description        string     `json:"description"`
	Severity           string     `json:"severity" validate:"required,oneof=critical high warning info"`
	Urgency            string     `json:"urgency" validate:"omitempty,oneof=high low"`
	ProjectID          *uuid.UUID `json:"project_id"`
	GroupID            *uuid.UUID `json:"group_id"`
	EscalationPolicyID *uuid.UUID `json:"escalation_policy_id"`
	IncidentKey        *string    `json:"incident_key"`
}

// ResolveRequest is the JSON body for POST /api/v1/incidents/{id}/resolve.
type ResolveRequest struct {
	Resolution string `json:"resolution"`
	Note       string `json:"note"`
}

// AssignRequest is the JSON body for POST /api/v1/incidents/{id}/assign.
type AssignRequest struct {
	UserID uuid.UUID `json:"user_id" validate:"required"`
}
