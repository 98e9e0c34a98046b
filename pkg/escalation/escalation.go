// Package escalation drives triggered incidents through their policy levels:
// a timer-driven claim-and-advance loop that assigns each level's target,
// records structured events, and emits one notification intent per step.
package escalation

import (
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// TargetType identifies what an escalation level points at.
type TargetType string

const (
	TargetUser TargetType = "user"
	// TargetGroup resolves the group's current on-call.
	TargetGroup TargetType = "group"
	// TargetCurrentSchedule resolves the incident's own group's on-call.
	TargetCurrentSchedule TargetType = "current_schedule"
	// TargetExternal dispatches to an external system; no assignment.
	TargetExternal TargetType = "external"
)

// ValidTargetType reports whether t is a known target type.
func ValidTargetType(t TargetType) bool {
	switch t {
	case TargetUser, TargetGroup, TargetCurrentSchedule, TargetExternal:
		return true
	}
	return false
}

// Policy is an ordered list of escalation levels owned by an organization.
type Policy struct {
	ID          uuid.UUID `json:"id"`
	OrgID       uuid.UUID `json:"org_id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Levels      []Level   `json:"levels"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Level is one step of a policy: a target principal and the timeout before
// the engine advances past it.
type Level struct {
	ID          uuid.UUID  `json:"id"`
	PolicyID    uuid.UUID  `json:"policy_id"`
	LevelNumber int        `json:"level_number"`
	TargetType  TargetType `json:"target_type"`
	TargetID    *uuid.UUID `json:"target_id,omitempty"`
	Timeout     time.Duration `json:"-"`
}

// LevelByNumber returns the level with the given number, or nil.
func (p *Policy) LevelByNumber(n int) *Level {
	for i := range p.Levels {
		if p.Levels[i].LevelNumber == n {
			return &p.Levels[i]
		}
	}
	return nil
}

// --- Requests ---

// LevelRequest is one level in a policy create/update body.
type LevelRequest struct {
	LevelNumber    int        `json:"level_number" validate:"required,gte=1"`
	TargetType     string     `json:"target_type" validate:"required,oneof=user group current_schedule external"`
	TargetID       *uuid.UUID `json:"target_id"`
	TimeoutMinutes int        `json:"timeout_minutes" validate:"required,gte=1"`
}

// CreatePolicyRequest is the JSON body for POST /api/v1/escalation-policies.
type CreatePolicyRequest struct {
	Name        string         `json:"name" validate:"required,min=2"`
	Description *string        `json:"description"`
	Levels      []LevelRequest `json:"levels" validate:"required,min=1,dive"`
}

// ValidateLevels checks that level numbers are dense 1..N and that every
// non-external target carries a target where required.
func ValidateLevels(levels []LevelRequest) error {
	sorted := make([]LevelRequest, len(levels))
	copy(sorted, levels)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LevelNumber < sorted[j].LevelNumber })

	for i, l := range sorted {
		if l.LevelNumber != i+1 {
			return errLevelsNotDense
		}
		switch TargetType(l.TargetType) {
		case TargetUser, TargetGroup:
			if l.TargetID == nil {
				return errMissingTarget(l.LevelNumber)
			}
		case TargetCurrentSchedule, TargetExternal:
			// Resolved from the incident's group or dispatched externally.
		default:
			return errUnknownTargetType(l.TargetType)
		}
	}
	return nil
}

type policyError string

func (e policyError) Error() string { return string(e) }

var errLevelsNotDense = policyError("level numbers must be dense starting at 1")

func errMissingTarget(level int) error {
	return policyError("target_id is required for level " + strconv.Itoa(level))
}

func errUnknownTargetType(t string) error {
	return policyError("unknown target type " + t)
}
