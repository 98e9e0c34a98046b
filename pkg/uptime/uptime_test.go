package uptime

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
)

func TestReconcile(t *testing.T) {
	up := true
	down := false

	tests := []struct {
		name     string
		previous *bool
		isUp     bool
		want     Transition
	}{
		{"first check down opens incident", nil, false, TransitionDown},
		{"first check up does nothing", nil, true, TransitionNone},
		{"up to down opens incident", &up, false, TransitionDown},
		{"down to up resolves", &down, true, TransitionUp},
		{"still up does nothing", &up, true, TransitionNone},
		{"still down merges into the open incident", &down, false, TransitionDown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Reconcile(tt.previous, tt.isUp); got != tt.want {
				t.Errorf("Reconcile(%v, %v) = %v, want %v", tt.previous, tt.isUp, got, tt.want)
			}
		})
	}
}

func TestReportHandlerAuth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewReportHandler(logger, nil, "s3cret-token")

	tests := []struct {
		name   string
		header string
		want   bool
	}{
		{"valid token", "Bearer s3cret-token", true},
		{"wrong token", "Bearer nope", false},
		{"missing header", "", false},
		{"wrong scheme", "Basic s3cret-token", false},
		{"empty bearer", "Bearer ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/uptime/report", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			if got := h.authenticate(r); got != tt.want {
				t.Errorf("authenticate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReportHandlerDisabled(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewReportHandler(logger, nil, "")

	r := httptest.NewRequest("POST", "/uptime/report", nil)
	r.Header.Set("Authorization", "Bearer anything")
	if h.authenticate(r) {
		t.Error("handler without a configured token must reject every request")
	}
}
