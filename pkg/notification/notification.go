// Package notification carries typed notification intents from the core to
// delivery providers. The core records state first and publishes an intent;
// delivery, retry and fan-out happen in the dispatcher, never on the write path.
package notification

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies what happened to an incident.
type Kind string

const (
	KindIncidentCreated      Kind = "incident_created"
	KindIncidentAssigned     Kind = "incident_assigned"
	KindIncidentEscalated    Kind = "incident_escalated"
	KindIncidentAcknowledged Kind = "incident_acknowledged"
	KindIncidentResolved     Kind = "incident_resolved"
)

// Intent is one notification to be delivered. TargetUserID is empty for
// broadcast kinds (e.g. created with no assignee yet).
type Intent struct {
	Kind         Kind       `json:"kind"`
	IncidentID   uuid.UUID  `json:"incident_id"`
	OrgID        uuid.UUID  `json:"org_id"`
	TargetUserID *uuid.UUID `json:"target_user_id,omitempty"`

	// Denormalized summary so providers render without a read back.
	Title    string `json:"title"`
	Severity string `json:"severity"`
	Urgency  string `json:"urgency"`
	Source   string `json:"source"`
	Level    int    `json:"level,omitempty"` // escalation level, when applicable

	EmittedAt time.Time `json:"emitted_at"`
}

// Channel is the Redis channel intents are published on.
const Channel = "firewatch:notify"

// AckChannel is the Redis channel acknowledgement nudges are published on;
// the escalation engine subscribes to react before its next tick.
const AckChannel = "firewatch:incident:ack"
