package schedule

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// ResolveOnCall computes the effective on-call at one instant.
//
// Overrides win: among overrides covering the instant, the most recently
// created applies. Otherwise layers are consulted from the highest index
// down; the first layer whose restriction contains the instant and whose
// participant list is non-empty supplies the user. source is "override",
// "rotation" or "none".
func ResolveOnCall(layers []Layer, overrides []Override, at time.Time) (userID uuid.UUID, source string, ok bool) {
	at = at.UTC()

	if o, found := coveringOverride(overrides, at); found {
		return o.UserID, "override", true
	}

	for i := len(layers) - 1; i >= 0; i-- {
		l := layers[i]
		if len(l.Participants) == 0 {
			continue
		}
		if !l.Restriction.Contains(at) {
			continue
		}
		return layerOnCall(l, at), "rotation", true
	}

	return uuid.Nil, "none", false
}

// coveringOverride returns the override in effect at the instant: the most
// recently created one among those covering it. An override ending exactly at
// the instant is not covering (half-open interval).
func coveringOverride(overrides []Override, at time.Time) (Override, bool) {
	var (
		best  Override
		found bool
	)
	for _, o := range overrides {
		if !o.Covers(at) {
			continue
		}
		if !found || o.CreatedAt.After(best.CreatedAt) {
			best = o
			found = true
		}
	}
	return best, found
}

// layerOnCall computes the rotating participant of a layer at an instant.
// The shift index is floor((at − anchor) / shift_length) mod participants,
// with floored division so instants before the anchor rotate backwards
// consistently. A shift boundary belongs to the starting shift.
func layerOnCall(l Layer, at time.Time) uuid.UUID {
	elapsed := at.Sub(l.Anchor)
	idx := int(floorDiv(int64(elapsed), int64(l.ShiftLength)) % int64(len(l.Participants)))
	if idx < 0 {
		idx += len(l.Participants)
	}
	return l.Participants[idx]
}

// floorDiv divides rounding toward negative infinity.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// EffectiveShifts resolves the window into contiguous shifts: every instant
// in [w.From, w.To) maps to at most one user, and adjacent instants with the
// same (user, source) merge into a single shift.
func EffectiveShifts(layers []Layer, overrides []Override, w Window) []Shift {
	if !w.From.Before(w.To) {
		return nil
	}

	points := boundaryPoints(layers, overrides, w)

	var shifts []Shift
	for i := 0; i < len(points)-1; i++ {
		segStart, segEnd := points[i], points[i+1]

		userID, source, ok := ResolveOnCall(layers, overrides, segStart)
		if !ok {
			continue
		}

		if n := len(shifts); n > 0 && shifts[n-1].UserID == userID &&
			shifts[n-1].Source == source && shifts[n-1].EndAt.Equal(segStart) {
			shifts[n-1].EndAt = segEnd
			continue
		}
		shifts = append(shifts, Shift{
			UserID:  userID,
			StartAt: segStart,
			EndAt:   segEnd,
			Source:  source,
		})
	}
	return shifts
}

// boundaryPoints collects every instant within the window where the
// resolution can change: window edges, override edges, layer shift
// boundaries, and daily restriction edges.
func boundaryPoints(layers []Layer, overrides []Override, w Window) []time.Time {
	from, to := w.From.UTC(), w.To.UTC()
	set := map[time.Time]struct{}{from: {}, to: {}}

	add := func(t time.Time) {
		if t.After(from) && t.Before(to) {
			set[t] = struct{}{}
		}
	}

	for _, o := range overrides {
		add(o.StartAt.UTC())
		add(o.EndAt.UTC())
	}

	for _, l := range layers {
		if l.ShiftLength <= 0 {
			continue
		}
		// First shift boundary at or after the window start.
		k := floorDiv(int64(from.Sub(l.Anchor)), int64(l.ShiftLength))
		for t := l.Anchor.Add(time.Duration(k) * l.ShiftLength); !t.After(to); t = t.Add(l.ShiftLength) {
			add(t)
		}

		if r := l.Restriction; r != nil && r.StartMinute != r.EndMinute {
			day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
			for ; !day.After(to); day = day.AddDate(0, 0, 1) {
				add(day.Add(time.Duration(r.StartMinute) * time.Minute))
				add(day.Add(time.Duration(r.EndMinute) * time.Minute))
			}
		}
	}

	points := make([]time.Time, 0, len(set))
	for t := range set {
		points = append(points, t)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Before(points[j]) })
	return points
}
