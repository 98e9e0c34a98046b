// Package slack delivers notification intents to Slack.
package slack

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"

	"github.com/wisbric/firewatch/pkg/notification"
)

// Notifier sends messages to Slack channels.
type Notifier struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// NewNotifier creates a Slack Notifier. If botToken is empty, the notifier
// will be a noop (logging only).
func NewNotifier(botToken, channel string, logger *slog.Logger) *Notifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &Notifier{
		client:  client,
		channel: channel,
		logger:  logger,
	}
}

// IsEnabled returns true if the notifier has a Slack client and a target channel.
func (n *Notifier) IsEnabled() bool {
	return n.client != nil && n.channel != ""
}

// Post sends a rendered intent to the configured channel.
func (n *Notifier) Post(ctx context.Context, intent notification.Intent) error {
	if !n.IsEnabled() {
		n.logger.Debug("slack notifier disabled, skipping post",
			"incident_id", intent.IncidentID,
			"kind", intent.Kind,
		)
		return nil
	}

	blocks := IntentBlocks(intent)
	opts := []goslack.MsgOption{
		goslack.MsgOptionBlocks(blocks...),
		goslack.MsgOptionText(FallbackText(intent), false),
	}

	channelID, ts, err := n.client.PostMessageContext(ctx, n.channel, opts...)
	if err != nil {
		return fmt.Errorf("posting to slack: %w", err)
	}

	n.logger.Info("posted notification to slack",
		"incident_id", intent.IncidentID,
		"kind", intent.Kind,
		"channel", channelID,
		"ts", ts,
	)
	return nil
}
