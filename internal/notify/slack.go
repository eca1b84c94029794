package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// Slack posts lifecycle events to a Slack incoming webhook.
type Slack struct {
	webhookURL string
	post       func(ctx context.Context, url string, msg *slack.WebhookMessage) error
}

// NewSlack creates a notifier for the given incoming webhook URL.
func NewSlack(webhookURL string) (*Slack, error) {
	if webhookURL == "" {
		return nil, fmt.Errorf("notify: slack webhook url is required")
	}
	return &Slack{webhookURL: webhookURL, post: slack.PostWebhookContext}, nil
}

func (s *Slack) Notify(ctx context.Context, ev Event) error {
	msg := formatSlack(ev)
	if msg == nil {
		return nil
	}
	if err := s.post(ctx, s.webhookURL, msg); err != nil {
		return fmt.Errorf("notify: slack: %w", err)
	}
	return nil
}

func formatSlack(ev Event) *slack.WebhookMessage {
	hr := ev.Request
	var text string
	switch ev.Kind {
	case KindCreated:
		text = fmt.Sprintf(":bell: New help request `%s` from *%s*\n>%s", hr.TicketID, hr.Caller, hr.Question)
	case KindResolved:
		answer := ""
		if hr.SupervisorAnswer != nil {
			answer = *hr.SupervisorAnswer
		}
		text = fmt.Sprintf(":white_check_mark: Ticket `%s` resolved\n>%s", hr.TicketID, answer)
	case KindTimedOut:
		text = fmt.Sprintf(":alarm_clock: Ticket `%s` from *%s* timed out without an answer", hr.TicketID, hr.Caller)
	default:
		return nil
	}
	return &slack.WebhookMessage{Text: text}
}
