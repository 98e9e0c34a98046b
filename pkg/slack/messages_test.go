package slack

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/wisbric/firewatch/pkg/notification"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFallbackText(t *testing.T) {
	intent := notification.Intent{
		Kind:     notification.KindIncidentEscalated,
		Title:    "API down",
		Severity: "critical",
	}
	got := FallbackText(intent)
	if !strings.Contains(got, "Incident escalated") || !strings.Contains(got, "API down") {
		t.Errorf("FallbackText() = %q", got)
	}
	if !strings.Contains(got, ":red_circle:") {
		t.Errorf("FallbackText() = %q, want critical emoji", got)
	}
}

func TestSeverityEmoji(t *testing.T) {
	tests := []struct {
		severity string
		want     string
	}{
		{"critical", ":red_circle:"},
		{"CRITICAL", ":red_circle:"},
		{"high", ":large_orange_circle:"},
		{"warning", ":large_yellow_circle:"},
		{"info", ":large_blue_circle:"},
		{"", ":large_blue_circle:"},
	}
	for _, tt := range tests {
		if got := SeverityEmoji(tt.severity); got != tt.want {
			t.Errorf("SeverityEmoji(%q) = %q, want %q", tt.severity, got, tt.want)
		}
	}
}

func TestIntentBlocks(t *testing.T) {
	target := uuid.New()
	intent := notification.Intent{
		Kind:         notification.KindIncidentEscalated,
		IncidentID:   uuid.New(),
		TargetUserID: &target,
		Title:        "DB latency",
		Severity:     "high",
		Source:       "datadog",
		Level:        2,
	}

	blocks := IntentBlocks(intent)
	if len(blocks) != 3 {
		t.Fatalf("got %d blocks, want 3", len(blocks))
	}
}

func TestNotifierDisabled(t *testing.T) {
	n := NewNotifier("", "#incidents", discardLogger())
	if n.IsEnabled() {
		t.Error("notifier with empty token should be disabled")
	}
	// Post on a disabled notifier is a silent no-op.
	if err := n.Post(t.Context(), notification.Intent{Title: "x"}); err != nil {
		t.Errorf("Post() on disabled notifier = %v", err)
	}
}
