// Package notify delivers sync-error escalations to chat platforms.
// Delivery is outbound-only; nothing is read back from the platform.
package notify

import (
	"context"
	"fmt"

	"github.com/zulandar/switchyard/internal/config"
)

// Event severities.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
	SeveritySuccess = "success"
)

// Event is one escalation formatted for display in chat.
type Event struct {
	Title    string
	Body     string
	Severity string
	Fields   []Field
}

// Field is a key-value pair displayed alongside an event.
type Field struct {
	Name  string
	Value string
}

// Notifier is the interface platform-specific senders satisfy.
type Notifier interface {
	// Send delivers one event to the platform.
	Send(ctx context.Context, event Event) error

	// Close releases the platform connection.
	Close() error
}

// FromConfig builds the configured notifier. An empty platform yields a
// Nop notifier so callers never need a nil check.
func FromConfig(cfg config.NotifyConfig) (Notifier, error) {
	switch cfg.Platform {
	case "":
		return Nop{}, nil
	case "discord":
		return NewDiscord(DiscordOpts{
			BotToken:  cfg.Token(),
			ChannelID: cfg.Channel,
		})
	case "slack":
		return NewSlack(SlackOpts{
			BotToken:  cfg.Token(),
			ChannelID: cfg.Channel,
		})
	default:
		return nil, fmt.Errorf("notify: unknown platform %q", cfg.Platform)
	}
}

// Nop discards every event.
type Nop struct{}

// Send implements Notifier.
func (Nop) Send(context.Context, Event) error { return nil }

// Close implements Notifier.
func (Nop) Close() error { return nil }

// severityColors maps event severities to sidebar color hints shared by
// both platforms.
var severityColors = map[string]string{
	SeverityInfo:    "#439fe0",
	SeverityWarning: "#e8a33d",
	SeverityError:   "#d72b3f",
	SeveritySuccess: "#36a64f",
}

func colorFor(severity string) string {
	if c, ok := severityColors[severity]; ok {
		return c
	}
	return severityColors[SeverityInfo]
}
