// Package notify delivers help request lifecycle events to supervisors and callers.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/h1v3-io/frontdesk/pkg/protocol"
)

// Kind identifies a lifecycle event.
type Kind string

const (
	KindCreated  Kind = "ticket.created"
	KindResolved Kind = "ticket.resolved"
	KindTimedOut Kind = "ticket.timed_out"
	KindRoom     Kind = "ticket.room_bound"
)

// Event is delivered to notifiers after the corresponding write has committed.
type Event struct {
	Kind    Kind                  `json:"kind"`
	Request *protocol.HelpRequest `json:"request"`
	Time    time.Time             `json:"time"`
}

// Notifier receives lifecycle events. Implementations must not block for long;
// errors are logged by the caller and never fail the originating operation.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, ev Event) error

func (f NotifierFunc) Notify(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes supervisor and caller notifications to a structured logger.
type Log struct {
	Logger *slog.Logger
}

func (l *Log) Notify(_ context.Context, ev Event) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	hr := ev.Request
	switch ev.Kind {
	case KindCreated:
		logger.Info("supervisor notified of new ticket",
			"ticket", hr.TicketID,
			"caller", hr.Caller,
			"question", hr.Question,
			"created_at", hr.CreatedAt,
		)
	case KindResolved:
		answer := ""
		if hr.SupervisorAnswer != nil {
			answer = *hr.SupervisorAnswer
		}
		logger.Info("caller notified of resolution", "ticket", hr.TicketID, "caller", hr.Caller, "answer", answer)
	case KindTimedOut:
		logger.Info("caller notified of timeout", "ticket", hr.TicketID, "caller", hr.Caller, "message", hr.ResolutionNote)
	default:
		logger.Debug("ticket update", "ticket", hr.TicketID, "kind", ev.Kind, "state", hr.State)
	}
	return nil
}
