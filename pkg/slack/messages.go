package slack

import (
	"fmt"
	"strings"

	goslack "github.com/slack-go/slack"

	"github.com/wisbric/firewatch/pkg/notification"
)

// SeverityEmoji maps a severity to its marker emoji.
func SeverityEmoji(severity string) string {
	switch strings.ToLower(severity) {
	case "critical":
		return ":red_circle:"
	case "high":
		return ":large_orange_circle:"
	case "warning":
		return ":large_yellow_circle:"
	default:
		return ":large_blue_circle:"
	}
}

// kindHeadline maps an intent kind to its message headline.
func kindHeadline(kind notification.Kind) string {
	switch kind {
	case notification.KindIncidentCreated:
		return "Incident triggered"
	case notification.KindIncidentAssigned:
		return "Incident assigned"
	case notification.KindIncidentEscalated:
		return "Incident escalated"
	case notification.KindIncidentAcknowledged:
		return "Incident acknowledged"
	case notification.KindIncidentResolved:
		return "Incident resolved"
	default:
		return "Incident update"
	}
}

// FallbackText renders the plain-text fallback for notification clients.
func FallbackText(intent notification.Intent) string {
	return fmt.Sprintf("%s %s: %s", SeverityEmoji(intent.Severity), kindHeadline(intent.Kind), intent.Title)
}

// IntentBlocks renders an intent as Slack Block Kit blocks.
func IntentBlocks(intent notification.Intent) []goslack.Block {
	header := goslack.NewHeaderBlock(
		goslack.NewTextBlockObject(goslack.PlainTextType,
			fmt.Sprintf("%s — %s", kindHeadline(intent.Kind), intent.Title), true, false),
	)

	fields := []*goslack.TextBlockObject{
		goslack.NewTextBlockObject(goslack.MarkdownType,
			fmt.Sprintf("*Severity:*\n%s %s", SeverityEmoji(intent.Severity), intent.Severity), false, false),
		goslack.NewTextBlockObject(goslack.MarkdownType,
			fmt.Sprintf("*Source:*\n%s", intent.Source), false, false),
	}
	if intent.Level > 0 {
		fields = append(fields, goslack.NewTextBlockObject(goslack.MarkdownType,
			fmt.Sprintf("*Level:*\n%d", intent.Level), false, false))
	}
	if intent.TargetUserID != nil {
		fields = append(fields, goslack.NewTextBlockObject(goslack.MarkdownType,
			fmt.Sprintf("*Assignee:*\n<@%s>", intent.TargetUserID), false, false))
	}

	section := goslack.NewSectionBlock(nil, fields, nil)

	ctxBlock := goslack.NewContextBlock("",
		goslack.NewTextBlockObject(goslack.MarkdownType,
			fmt.Sprintf("incident `%s`", intent.IncidentID), false, false),
	)

	return []goslack.Block{header, section, ctxBlock}
}
