package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/wisbric/firewatch/pkg/incident"
)

// RouteOptions binds an ingested alert to its tenant and escalation targets.
// They arrive on the webhook URL, configured per integration at the source.
type RouteOptions struct {
	OrgID              uuid.UUID
	ProjectID          *uuid.UUID
	GroupID            *uuid.UUID
	EscalationPolicyID *uuid.UUID
}

// Result describes what ingestion did with one normalized alert.
type Result struct {
	Incident incident.Incident `json:"incident"`
	Created  bool              `json:"created"`
	Resolved bool              `json:"resolved"`
	NoOp     bool              `json:"noop"`
}

// Ingestor runs normalized alerts through keyed incident upsert and the
// auto-resolve path.
type Ingestor struct {
	incidents *incident.Service
	logger    *slog.Logger
}

// NewIngestor creates an Ingestor.
func NewIngestor(incidents *incident.Service, logger *slog.Logger) *Ingestor {
	return &Ingestor{incidents: incidents, logger: logger}
}

// Ingest processes one normalized alert.
//
// A fire intent upserts by (org, key): the open incident holding the key
// absorbs the alert, otherwise a new incident opens. A resolve intent resolves
// the open incident holding the key as the system principal; with no match it
// is an idempotent no-op.
func (ing *Ingestor) Ingest(ctx context.Context, route RouteOptions, a NormalizedAlert, rawPayload json.RawMessage) (Result, error) {
	if a.Intent == IntentResolve {
		if a.Key == "" {
			return Result{NoOp: true}, nil
		}
		resolved, err := ing.incidents.ResolveByKey(ctx, route.OrgID, a.Key, incident.SystemActor, "auto-resolved-by-source")
		if err != nil {
			return Result{}, fmt.Errorf("auto-resolving incident: %w", err)
		}
		if !resolved {
			ing.logger.Debug("resolve intent with no open incident", "source", a.Source, "key", a.Key)
			return Result{NoOp: true}, nil
		}
		return Result{Resolved: true}, nil
	}

	var key *string
	if a.Key != "" {
		key = &a.Key
	}
	var externalID *string
	if a.ExternalID != "" {
		externalID = &a.ExternalID
	}

	inc, created, err := ing.incidents.UpsertByKey(ctx, incident.CreateInput{
		OrgID:              route.OrgID,
		ProjectID:          route.ProjectID,
		Title:              a.Title,
		Description:        a.Description,
		Severity:           a.Severity,
		Urgency:            urgencyFor(a.Severity),
		Source:             a.Source,
		IncidentKey:        key,
		ExternalID:         externalID,
		GroupID:            route.GroupID,
		EscalationPolicyID: route.EscalationPolicyID,
		CreatedBy:          incident.SystemActor,
	}, rawPayload)
	if err != nil {
		return Result{}, fmt.Errorf("upserting incident: %w", err)
	}

	return Result{Incident: inc, Created: created}, nil
}

// urgencyFor derives paging urgency from severity: critical and high page
// immediately, the rest wait for working hours.
func urgencyFor(s incident.Severity) incident.Urgency {
	if s == incident.SeverityCritical || s == incident.SeverityHigh {
		return incident.UrgencyHigh
	}
	return incident.UrgencyLow
}
