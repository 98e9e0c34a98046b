package telemetry

import (
	"log/slog"
	"os"
	"strings"

	"github.com/wisbric/firewatch/internal/version"
)

// NewLogger creates the process-wide structured logger. Format is "json" or
// "text"; level is one of debug, info, warn, error. Every record carries the
// service name and build version so log lines from the api and worker modes
// of the same deployment stay distinguishable downstream.
func NewLogger(format, level string) *slog.Logger {
	lvl := ParseLevel(level)

	opts := &slog.HandlerOptions{
		Level: lvl,
		// Source positions are only worth the volume when debugging.
		AddSource: lvl == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler).With(
		"service", "firewatch",
		"version", version.Version,
	)
}

// ParseLevel maps a config string onto a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Component returns a child logger tagged with the subsystem it belongs to
// (escalation engine, dispatcher, provider sync, ...).
func Component(logger *slog.Logger, name string) *slog.Logger {
	return logger.With("component", name)
}
