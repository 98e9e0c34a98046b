package escalation

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/firewatch/pkg/incident"
)

var (
	policyID = uuid.MustParse("00000000-0000-0000-0000-0000000000f1")
	userA    = uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	groupG   = uuid.MustParse("00000000-0000-0000-0000-00000000000b")
)

var t0 = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func threeLevels() []Level {
	return []Level{
		{LevelNumber: 1, TargetType: TargetUser, TargetID: &userA, Timeout: time.Minute},
		{LevelNumber: 2, TargetType: TargetGroup, TargetID: &groupG, Timeout: time.Minute},
		{LevelNumber: 3, TargetType: TargetUser, TargetID: &userA, Timeout: time.Minute},
	}
}

func triggeredIncident(level int, lastEscalated *time.Time) incident.Incident {
	pid := policyID
	status := incident.EscalationNone
	if level > 0 {
		status = incident.EscalationPending
	}
	return incident.Incident{
		ID:                     uuid.New(),
		Status:                 incident.StatusTriggered,
		EscalationPolicyID:     &pid,
		CurrentEscalationLevel: level,
		LastEscalatedAt:        lastEscalated,
		EscalationStatus:       status,
		CreatedAt:              t0,
	}
}

func TestEligible(t *testing.T) {
	levels := threeLevels()
	escAt := t0.Add(time.Minute)

	tests := []struct {
		name string
		inc  func() incident.Incident
		now  time.Time
		want bool
	}{
		{
			name: "fresh incident before level 1 timeout",
			inc:  func() incident.Incident { return triggeredIncident(0, nil) },
			now:  t0.Add(30 * time.Second),
			want: false,
		},
		{
			name: "fresh incident at level 1 timeout",
			inc:  func() incident.Incident { return triggeredIncident(0, nil) },
			now:  t0.Add(time.Minute),
			want: true,
		},
		{
			name: "pending level 1 before its timeout",
			inc:  func() incident.Incident { return triggeredIncident(1, &escAt) },
			now:  escAt.Add(30 * time.Second),
			want: false,
		},
		{
			name: "pending level 1 after its timeout",
			inc:  func() incident.Incident { return triggeredIncident(1, &escAt) },
			now:  escAt.Add(time.Minute),
			want: true,
		},
		{
			name: "pending final level never re-eligible",
			inc:  func() incident.Incident { return triggeredIncident(3, &escAt) },
			now:  escAt.Add(time.Hour),
			want: false,
		},
		{
			name: "acknowledged incident disqualified",
			inc: func() incident.Incident {
				i := triggeredIncident(1, &escAt)
				i.Status = incident.StatusAcknowledged
				return i
			},
			now:  escAt.Add(time.Hour),
			want: false,
		},
		{
			name: "resolved incident disqualified",
			inc: func() incident.Incident {
				i := triggeredIncident(1, &escAt)
				i.Status = incident.StatusResolved
				return i
			},
			now:  escAt.Add(time.Hour),
			want: false,
		},
		{
			name: "completed escalation disqualified",
			inc: func() incident.Incident {
				i := triggeredIncident(3, &escAt)
				i.EscalationStatus = incident.EscalationCompleted
				return i
			},
			now:  escAt.Add(time.Hour),
			want: false,
		},
		{
			name: "no policy attached",
			inc: func() incident.Incident {
				i := triggeredIncident(0, nil)
				i.EscalationPolicyID = nil
				return i
			},
			now:  t0.Add(time.Hour),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Eligible(tt.inc(), levels, tt.now); got != tt.want {
				t.Errorf("Eligible() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEligibleEmptyPolicy(t *testing.T) {
	inc := triggeredIncident(0, nil)
	if Eligible(inc, nil, t0.Add(time.Hour)) {
		t.Error("incident with an empty policy should never be eligible")
	}
}

func TestPlanAdvance(t *testing.T) {
	levels := threeLevels()

	plan := PlanAdvance(triggeredIncident(0, nil), levels)
	if plan.Exhausted || plan.NextLevel != 1 || plan.Final {
		t.Errorf("from level 0: %+v", plan)
	}
	if plan.Level.TargetType != TargetUser {
		t.Errorf("level 1 target type = %s", plan.Level.TargetType)
	}

	escAt := t0.Add(time.Minute)
	plan = PlanAdvance(triggeredIncident(1, &escAt), levels)
	if plan.NextLevel != 2 || plan.Final {
		t.Errorf("from level 1: %+v", plan)
	}
	if plan.Level.TargetType != TargetGroup {
		t.Errorf("level 2 target type = %s", plan.Level.TargetType)
	}

	plan = PlanAdvance(triggeredIncident(2, &escAt), levels)
	if plan.NextLevel != 3 || !plan.Final {
		t.Errorf("from level 2: %+v, want final", plan)
	}

	plan = PlanAdvance(triggeredIncident(3, &escAt), levels)
	if !plan.Exhausted {
		t.Errorf("from level 3: %+v, want exhausted", plan)
	}
}

func TestValidateLevels(t *testing.T) {
	target := userA

	valid := []LevelRequest{
		{LevelNumber: 2, TargetType: "group", TargetID: &target, TimeoutMinutes: 5},
		{LevelNumber: 1, TargetType: "user", TargetID: &target, TimeoutMinutes: 5},
		{LevelNumber: 3, TargetType: "current_schedule", TimeoutMinutes: 10},
	}
	if err := ValidateLevels(valid); err != nil {
		t.Errorf("ValidateLevels(valid) = %v", err)
	}

	gap := []LevelRequest{
		{LevelNumber: 1, TargetType: "user", TargetID: &target, TimeoutMinutes: 5},
		{LevelNumber: 3, TargetType: "user", TargetID: &target, TimeoutMinutes: 5},
	}
	if err := ValidateLevels(gap); err == nil {
		t.Error("ValidateLevels should reject non-dense level numbers")
	}

	startAtTwo := []LevelRequest{
		{LevelNumber: 2, TargetType: "user", TargetID: &target, TimeoutMinutes: 5},
	}
	if err := ValidateLevels(startAtTwo); err == nil {
		t.Error("ValidateLevels should reject levels not starting at 1")
	}

	missingTarget := []LevelRequest{
		{LevelNumber: 1, TargetType: "user", TimeoutMinutes: 5},
	}
	if err := ValidateLevels(missingTarget); err == nil {
		t.Error("ValidateLevels should require target_id for user targets")
	}

	external := []LevelRequest{
		{LevelNumber: 1, TargetType: "external", TimeoutMinutes: 5},
	}
	if err := ValidateLevels(external); err != nil {
		t.Errorf("external levels need no target: %v", err)
	}
}
