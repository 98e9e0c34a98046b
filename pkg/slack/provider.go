package slack

import (
	"context"
	"log/slog"

	"github.com/wisbric/firewatch/pkg/notification"
)

// Provider implements notification.Provider for Slack.
type Provider struct {
	notifier *Notifier
	logger   *slog.Logger
}

// NewProvider creates a Slack delivery provider wrapping the notifier.
func NewProvider(notifier *Notifier, logger *slog.Logger) *Provider {
	return &Provider{notifier: notifier, logger: logger}
}

// Name implements notification.Provider.
func (p *Provider) Name() string { return "slack" }

// Deliver implements notification.Provider.
func (p *Provider) Deliver(ctx context.Context, intent notification.Intent) error {
	return p.notifier.Post(ctx, intent)
}
