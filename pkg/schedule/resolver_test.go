package schedule

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

var (
	userA = uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	userB = uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	userC = uuid.MustParse("00000000-0000-0000-0000-00000000000c")
	userY = uuid.MustParse("00000000-0000-0000-0000-00000000000e")
)

var anchor = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) // Monday 09:00 UTC

func weeklyLayer(participants ...uuid.UUID) Layer {
	return Layer{
		Participants: participants,
		ShiftLength:  7 * 24 * time.Hour,
		Anchor:       anchor,
	}
}

func TestResolveOnCallRotation(t *testing.T) {
	layers := []Layer{weeklyLayer(userA, userB, userC)}

	tests := []struct {
		name string
		at   time.Time
		want uuid.UUID
	}{
		{"first shift start", anchor, userA},
		{"mid first shift", anchor.Add(3 * 24 * time.Hour), userA},
		{"boundary belongs to starting shift", anchor.Add(7 * 24 * time.Hour), userB},
		{"third shift", anchor.Add(15 * 24 * time.Hour), userC},
		{"wraps around", anchor.Add(21 * 24 * time.Hour), userA},
		{"one nanosecond before handoff", anchor.Add(7*24*time.Hour - time.Nanosecond), userA},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, source, ok := ResolveOnCall(layers, nil, tt.at)
			if !ok {
				t.Fatal("ResolveOnCall() ok = false")
			}
			if source != "rotation" {
				t.Errorf("source = %q", source)
			}
			if got != tt.want {
				t.Errorf("ResolveOnCall(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestResolveOnCallBeforeAnchor(t *testing.T) {
	layers := []Layer{weeklyLayer(userA, userB, userC)}

	// One week before the anchor the rotation runs backwards: ... C, A.
	got, _, ok := ResolveOnCall(layers, nil, anchor.Add(-7*24*time.Hour))
	if !ok || got != userC {
		t.Errorf("one week before anchor = %v (ok=%v), want %v", got, ok, userC)
	}

	got, _, ok = ResolveOnCall(layers, nil, anchor.Add(-1*time.Hour))
	if !ok || got != userC {
		t.Errorf("just before anchor = %v (ok=%v), want %v", got, ok, userC)
	}
}

func TestResolveOnCallDeterministic(t *testing.T) {
	layers := []Layer{weeklyLayer(userA, userB)}
	at := anchor.Add(36 * time.Hour)

	first, _, _ := ResolveOnCall(layers, nil, at)
	for i := 0; i < 10; i++ {
		got, _, _ := ResolveOnCall(layers, nil, at)
		if got != first {
			t.Fatalf("resolution not deterministic: %v vs %v", got, first)
		}
	}
}

func TestOverrideSupersedesSchedule(t *testing.T) {
	layers := []Layer{weeklyLayer(userA)}
	at := anchor.Add(24 * time.Hour)

	override := Override{
		UserID:    userY,
		StartAt:   at.Add(-time.Hour),
		EndAt:     at.Add(time.Hour),
		CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}

	got, source, ok := ResolveOnCall(layers, []Override{override}, at)
	if !ok || got != userY || source != "override" {
		t.Fatalf("ResolveOnCall() = %v %q %v, want override for userY", got, source, ok)
	}

	// After the override ends, the rotation applies again.
	got, source, _ = ResolveOnCall(layers, []Override{override}, override.EndAt.Add(time.Minute))
	if got != userA || source != "rotation" {
		t.Errorf("after override = %v %q, want userA rotation", got, source)
	}
}

func TestOverrideHalfOpenInterval(t *testing.T) {
	layers := []Layer{weeklyLayer(userA)}
	override := Override{
		UserID:    userY,
		StartAt:   anchor.Add(10 * time.Hour),
		EndAt:     anchor.Add(12 * time.Hour),
		CreatedAt: anchor,
	}

	// Exactly at start: covering.
	got, _, _ := ResolveOnCall(layers, []Override{override}, override.StartAt)
	if got != userY {
		t.Errorf("at override start = %v, want %v", got, userY)
	}

	// Exactly at end: not covering.
	got, _, _ = ResolveOnCall(layers, []Override{override}, override.EndAt)
	if got != userA {
		t.Errorf("at override end = %v, want %v", got, userA)
	}
}

func TestLatestCreatedOverrideWins(t *testing.T) {
	at := anchor.Add(time.Hour)
	older := Override{
		UserID:    userB,
		StartAt:   at.Add(-2 * time.Hour),
		EndAt:     at.Add(2 * time.Hour),
		CreatedAt: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
	newer := Override{
		UserID:    userC,
		StartAt:   at.Add(-time.Hour),
		EndAt:     at.Add(time.Hour),
		CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}

	got, _, ok := ResolveOnCall(nil, []Override{older, newer}, at)
	if !ok || got != userC {
		t.Errorf("ResolveOnCall() = %v (ok=%v), want most recently created %v", got, ok, userC)
	}
}

func TestHigherLayerWins(t *testing.T) {
	base := weeklyLayer(userA)
	top := Layer{
		Participants: []uuid.UUID{userB},
		ShiftLength:  24 * time.Hour,
		Anchor:       anchor,
		Restriction:  &Restriction{StartMinute: 9 * 60, EndMinute: 17 * 60},
	}
	layers := []Layer{base, top}

	// Inside the top layer's restriction window.
	got, _, _ := ResolveOnCall(layers, nil, anchor.Add(2*time.Hour)) // 11:00 UTC
	if got != userB {
		t.Errorf("inside restriction = %v, want %v", got, userB)
	}

	// Outside the window the base layer applies.
	got, _, _ = ResolveOnCall(layers, nil, anchor.Add(12*time.Hour)) // 21:00 UTC
	if got != userA {
		t.Errorf("outside restriction = %v, want %v", got, userA)
	}
}

func TestRestrictionWrapsMidnight(t *testing.T) {
	r := &Restriction{StartMinute: 22 * 60, EndMinute: 6 * 60}

	midnight := time.Date(2026, 3, 3, 0, 30, 0, 0, time.UTC)
	if !r.Contains(midnight) {
		t.Error("00:30 should be inside a 22:00–06:00 window")
	}
	evening := time.Date(2026, 3, 3, 23, 0, 0, 0, time.UTC)
	if !r.Contains(evening) {
		t.Error("23:00 should be inside a 22:00–06:00 window")
	}
	noon := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)
	if r.Contains(noon) {
		t.Error("12:00 should be outside a 22:00–06:00 window")
	}
	if !r.Contains(time.Date(2026, 3, 3, 22, 0, 0, 0, time.UTC)) {
		t.Error("window start is inclusive")
	}
	if r.Contains(time.Date(2026, 3, 3, 6, 0, 0, 0, time.UTC)) {
		t.Error("window end is exclusive")
	}
}

func TestEmptyParticipants(t *testing.T) {
	layers := []Layer{
		{Participants: nil, ShiftLength: time.Hour, Anchor: anchor},
		{Participants: []uuid.UUID{}, ShiftLength: time.Hour, Anchor: anchor},
	}
	_, source, ok := ResolveOnCall(layers, nil, anchor.Add(time.Hour))
	if ok || source != "none" {
		t.Errorf("ResolveOnCall() = ok=%v source=%q, want none", ok, source)
	}
}

func TestEffectiveShifts(t *testing.T) {
	layers := []Layer{{
		Participants: []uuid.UUID{userA, userB},
		ShiftLength:  24 * time.Hour,
		Anchor:       anchor,
	}}
	override := Override{
		UserID:    userY,
		StartAt:   anchor.Add(12 * time.Hour),
		EndAt:     anchor.Add(18 * time.Hour),
		CreatedAt: anchor,
	}

	w := Window{From: anchor, To: anchor.Add(48 * time.Hour)}
	shifts := EffectiveShifts(layers, []Override{override}, w)

	want := []struct {
		user   uuid.UUID
		source string
		start  time.Time
		end    time.Time
	}{
		{userA, "rotation", anchor, anchor.Add(12 * time.Hour)},
		{userY, "override", anchor.Add(12 * time.Hour), anchor.Add(18 * time.Hour)},
		{userA, "rotation", anchor.Add(18 * time.Hour), anchor.Add(24 * time.Hour)},
		{userB, "rotation", anchor.Add(24 * time.Hour), anchor.Add(48 * time.Hour)},
	}

	if len(shifts) != len(want) {
		t.Fatalf("got %d shifts, want %d: %+v", len(shifts), len(want), shifts)
	}
	for i, wantShift := range want {
		got := shifts[i]
		if got.UserID != wantShift.user || got.Source != wantShift.source ||
			!got.StartAt.Equal(wantShift.start) || !got.EndAt.Equal(wantShift.end) {
			t.Errorf("shift[%d] = %+v, want %+v", i, got, wantShift)
		}
	}
}

func TestEffectiveShiftsEmptyWindow(t *testing.T) {
	if shifts := EffectiveShifts(nil, nil, Window{From: anchor, To: anchor}); shifts != nil {
		t.Errorf("empty window shifts = %v, want nil", shifts)
	}
}
