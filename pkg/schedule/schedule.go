// Package schedule computes who is on-call for a group at any instant by
// layering rotations and overrides. Resolution is a pure function of
// committed schedule state; all arithmetic is UTC.
package schedule

import (
	"time"

	"github.com/google/uuid"
)

// Schedule is a named on-call calendar owned by a group. A group has at most
// one active schedule; edits take effect immediately for later resolutions.
type Schedule struct {
	ID        uuid.UUID `json:"id"`
	OrgID     uuid.UUID `json:"org_id"`
	GroupID   uuid.UUID `json:"group_id"`
	Name      string    `json:"name"`
	Layers    []Layer   `json:"layers"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Layer is one rotation within a schedule. Later layers (higher index) win
// when multiple layers cover the same instant.
type Layer struct {
	ID           uuid.UUID    `json:"id"`
	ScheduleID   uuid.UUID    `json:"schedule_id"`
	Position     int          `json:"position"`
	Participants []uuid.UUID  `json:"participants"`
	ShiftLength  time.Duration `json:"-"`
	// Anchor is the instant rotation index 0 begins for participant 0.
	Anchor      time.Time    `json:"anchor"`
	Restriction *Restriction `json:"restriction,omitempty"`
}

// Restriction limits a layer to a daily time-of-day window [Start, End) in
// minutes from UTC midnight. End ≤ Start means the window wraps midnight.
type Restriction struct {
	StartMinute int `json:"start_minute"`
	EndMinute   int `json:"end_minute"`
}

// Contains reports whether the restriction covers the given instant.
func (r *Restriction) Contains(at time.Time) bool {
	if r == nil {
		return true
	}
	minute := at.UTC().Hour()*60 + at.UTC().Minute()
	if r.StartMinute == r.EndMinute {
		return true // degenerate window covers the whole day
	}
	if r.StartMinute < r.EndMinute {
		return minute >= r.StartMinute && minute < r.EndMinute
	}
	// Wraps midnight.
	return minute >= r.StartMinute || minute < r.EndMinute
}

// Override supersedes the schedule-computed on-call for its interval.
// Coverage is half-open: start ≤ at < end.
type Override struct {
	ID        uuid.UUID `json:"id"`
	GroupID   uuid.UUID `json:"group_id"`
	UserID    uuid.UUID `json:"user_id"`
	StartAt   time.Time `json:"start_at"`
	EndAt     time.Time `json:"end_at"`
	Reason    *string   `json:"reason,omitempty"`
	CreatedBy uuid.UUID `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Covers reports whether the override is in effect at the given instant.
func (o *Override) Covers(at time.Time) bool {
	return !at.Before(o.StartAt) && at.Before(o.EndAt)
}

// Shift is one contiguous stretch of a single user being on-call.
type Shift struct {
	UserID  uuid.UUID `json:"user_id"`
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
	// Source is "override" or "rotation".
	Source string `json:"source"`
}

// Window is a half-open time range [From, To).
type Window struct {
	From time.Time
	To   time.Time
}

// --- Requests ---

// LayerRequest is one rotation layer in a schedule create/update body.
type LayerRequest struct {
	Participants       []uuid.UUID `json:"participants" validate:"required,min=1"`
	ShiftLengthMinutes int         `json:"shift_length_minutes" validate:"required,gte=1"`
	Anchor             time.Time   `json:"anchor" validate:"required"`
	RestrictionStart   *int        `json:"restriction_start_minute" validate:"omitempty,gte=0,lte=1439"`
	RestrictionEnd     *int        `json:"restriction_end_minute" validate:"omitempty,gte=0,lte=1439"`
}

// CreateScheduleRequest is the JSON body for PUT /api/v1/groups/{id}/schedule.
type CreateScheduleRequest struct {
	Name   string         `json:"name" validate:"required,min=2"`
	Layers []LayerRequest `json:"layers" validate:"required,min=1,dive"`
}

// CreateOverrideRequest is the JSON body for POST /api/v1/groups/{id}/overrides.
type CreateOverrideRequest struct {
	UserID  uuid.UUID `json:"user_id" validate:"required"`
	StartAt time.Time `json:"start_at" validate:"required"`
	EndAt   time.Time `json:"end_at" validate:"required"`
	Reason  *string   `json:"reason"`
}

// PreviewRequest is the JSON body for POST /api/v1/schedule-preview: an
// unsaved schedule plus a window, resolved without touching storage.
type PreviewRequest struct {
	Layers []LayerRequest `json:"layers" validate:"required,min=1,dive"`
	From   time.Time      `json:"from" validate:"required"`
	To     time.Time      `json:"to" validate:"required"`
}

// OnCallResponse describes who is on-call at the queried instant.
type OnCallResponse struct {
	GroupID   uuid.UUID  `json:"group_id"`
	At        time.Time  `json:"at"`
	UserID    *uuid.UUID `json:"user_id"`
	Source    string     `json:"source"` // "override" | "rotation" | "none"
}
