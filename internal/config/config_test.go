package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Mode != "api" {
		t.Errorf("Mode = %q, want %q", cfg.Mode, "api")
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.EscalationTickInterval != 5*time.Second {
		t.Errorf("EscalationTickInterval = %v, want 5s", cfg.EscalationTickInterval)
	}
	if cfg.EscalationBatchSize != 50 {
		t.Errorf("EscalationBatchSize = %d, want 50", cfg.EscalationBatchSize)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("FIREWATCH_MODE", "worker")
	t.Setenv("FIREWATCH_PORT", "9090")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Mode != "worker" {
		t.Errorf("Mode = %q, want %q", cfg.Mode, "worker")
	}
	if got := cfg.ListenAddr(); got != "0.0.0.0:9090" {
		t.Errorf("ListenAddr() = %q, want %q", got, "0.0.0.0:9090")
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Errorf("CORSAllowedOrigins = %v, want 2 entries", cfg.CORSAllowedOrigins)
	}
}
