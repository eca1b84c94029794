// Package desk is the ticket lifecycle manager. It routes caller questions
// through the knowledge base, escalates misses to supervisors as help
// requests, and applies supervisor resolutions and timeouts.
package desk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/h1v3-io/frontdesk/internal/kb"
	"github.com/h1v3-io/frontdesk/internal/metrics"
	"github.com/h1v3-io/frontdesk/internal/notify"
	"github.com/h1v3-io/frontdesk/internal/store"
	"github.com/h1v3-io/frontdesk/internal/voice"
	"github.com/h1v3-io/frontdesk/pkg/protocol"
)

var (
	ErrNotFound          = store.ErrNotFound
	ErrInvalidTransition = store.ErrInvalidTransition
	// ErrInvalidInput is returned for empty or malformed caller input.
	ErrInvalidInput = errors.New("invalid input")
	// ErrRoomNotReady is returned when a supervisor asks to join a request
	// whose room has not been provisioned yet.
	ErrRoomNotReady = errors.New("room not provisioned yet")
)

const (
	defaultJoinRetries    = 5
	defaultJoinRetryDelay = 500 * time.Millisecond

	// AnonymousCaller is recorded when a channel does not identify the caller.
	AnonymousCaller = "anonymous"
)

// Channels a question can arrive on. Used as a metrics label.
const (
	ChannelWeb    = "web"
	ChannelVoice  = "voice"
	ChannelIntake = "intake"
	ChannelAPI    = "api"
)

// Enqueuer hands a ticket to the room provisioning worker.
type Enqueuer interface {
	Enqueue(ticketID string) bool
}

// Desk coordinates the knowledge base, the help request store, room
// provisioning and notifications.
type Desk struct {
	store    store.Store
	resolver *kb.Resolver
	logger   *slog.Logger
	notifier notify.Notifier
	rooms    Enqueuer
	voice    *voice.Binding
	metrics  *metrics.Metrics

	joinRetries    int
	joinRetryDelay time.Duration

	now func() time.Time
}

// New creates a Desk backed by st. Notifications, provisioning and voice are
// optional and attached with the Set methods.
func New(st store.Store, logger *slog.Logger) *Desk {
	if logger == nil {
		logger = slog.Default()
	}
	return &Desk{
		store:          st,
		resolver:       kb.NewResolver(st),
		logger:         logger,
		joinRetries:    defaultJoinRetries,
		joinRetryDelay: defaultJoinRetryDelay,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// SetNotifier sets the lifecycle event sink.
func (d *Desk) SetNotifier(n notify.Notifier) { d.notifier = n }

// SetRooms sets the room provisioning queue. Without one, requests always
// use the fallback room name.
func (d *Desk) SetRooms(q Enqueuer) { d.rooms = q }

// SetVoice sets the join token binding. Without one, join requests fail with
// voice.ErrUnavailable.
func (d *Desk) SetVoice(b *voice.Binding) { d.voice = b }

// SetMetrics sets the metrics sink.
func (d *Desk) SetMetrics(m *metrics.Metrics) { d.metrics = m }

// SetJoinRetry configures how long JoinCredentials waits for a room binding.
func (d *Desk) SetJoinRetry(retries int, delay time.Duration) {
	if retries >= 0 {
		d.joinRetries = retries
	}
	if delay > 0 {
		d.joinRetryDelay = delay
	}
}

// SetClock overrides the time source.
func (d *Desk) SetClock(now func() time.Time) { d.now = now }

// Store returns the backing store.
func (d *Desk) Store() store.Store { return d.store }

// Ask answers question from the knowledge base, or escalates it to a
// supervisor when no entry matches.
func (d *Desk) Ask(ctx context.Context, caller, question, channel string) (*protocol.AskResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("desk: ask: %w: question is required", ErrInvalidInput)
	}

	entry, err := d.resolver.FindAnswer(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("desk: ask: %w", err)
	}
	if entry != nil {
		d.metrics.Question("answered")
		d.logger.Info("answered from kb", "channel", channel, "kb_entry", entry.ID)
		return &protocol.AskResult{Found: true, Answer: entry.Answer}, nil
	}

	hr, err := d.CreateTicket(ctx, caller, question, channel)
	if err != nil {
		return nil, err
	}
	d.metrics.Question("escalated")
	return &protocol.AskResult{
		Found:           false,
		TicketID:        hr.TicketID,
		NeedsSupervisor: true,
	}, nil
}

// CreateTicket persists a new PENDING help request, notifies supervisors and
// schedules room provisioning. Provisioning never fails ticket creation.
func (d *Desk) CreateTicket(ctx context.Context, caller, question, channel string) (*protocol.HelpRequest, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("desk: create ticket: %w: question is required", ErrInvalidInput)
	}
	caller = strings.TrimSpace(caller)
	if caller == "" {
		caller = AnonymousCaller
	}

	hr := &protocol.HelpRequest{
		TicketID:  uuid.NewString(),
		Caller:    caller,
		Question:  question,
		State:     protocol.StatePending,
		CreatedAt: d.now(),
	}
	if err := d.store.CreateRequest(ctx, hr); err != nil {
		return nil, fmt.Errorf("desk: create ticket: %w", err)
	}

	d.logger.Info("ticket created", "ticket", hr.TicketID, "caller", caller, "channel", channel)
	d.metrics.TicketCreated(channel)
	d.emit(ctx, notify.KindCreated, hr)

	if d.rooms != nil {
		d.rooms.Enqueue(hr.TicketID)
	}
	return hr, nil
}

// ResolveTicket records the supervisor's answer and teaches it to the
// knowledge base. A request that already left PENDING is rejected with
// ErrInvalidTransition.
func (d *Desk) ResolveTicket(ctx context.Context, ticketID, answer string) (*protocol.HelpRequest, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, fmt.Errorf("desk: resolve: %w: answer is required", ErrInvalidInput)
	}

	hr, err := d.store.Resolve(ctx, ticketID, answer, d.now())
	if err != nil {
		return nil, fmt.Errorf("desk: resolve %q: %w", ticketID, err)
	}

	d.logger.Info("ticket resolved", "ticket", ticketID)
	d.metrics.Transition(string(protocol.StateResolved), openSeconds(hr))
	d.emit(ctx, notify.KindResolved, hr)
	return hr, nil
}

// ForceTimeout moves a PENDING request to UNRESOLVED. It is idempotent: a
// request that already left PENDING is returned unchanged and no event fires.
func (d *Desk) ForceTimeout(ctx context.Context, ticketID string) (*protocol.HelpRequest, error) {
	hr, changed, err := d.store.Expire(ctx, ticketID, protocol.TimeoutFollowUpMessage, d.now())
	if err != nil {
		return nil, fmt.Errorf("desk: timeout %q: %w", ticketID, err)
	}
	if !changed {
		d.logger.Debug("timeout skipped, ticket already closed", "ticket", ticketID, "state", hr.State)
		return hr, nil
	}

	d.logger.Info("ticket timed out", "ticket", ticketID)
	d.metrics.Transition(string(protocol.StateUnresolved), openSeconds(hr))
	d.emit(ctx, notify.KindTimedOut, hr)
	return hr, nil
}

// RoomBound is called by the provisioning worker once a room is recorded.
func (d *Desk) RoomBound(ctx context.Context, ticketID, room string) {
	hr, err := d.store.GetRequest(ctx, ticketID)
	if err != nil {
		d.logger.Warn("room bound on unreadable ticket", "ticket", ticketID, "room", room, "error", err)
		return
	}
	d.emit(ctx, notify.KindRoom, hr)
}

// GetTicket returns a help request by ticket ID.
func (d *Desk) GetTicket(ctx context.Context, ticketID string) (*protocol.HelpRequest, error) {
	hr, err := d.store.GetRequest(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("desk: get %q: %w", ticketID, err)
	}
	return hr, nil
}

// ListTickets returns help requests matching f, newest first.
func (d *Desk) ListTickets(ctx context.Context, f store.Filter) ([]*protocol.HelpRequest, error) {
	list, err := d.store.ListRequests(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("desk: list tickets: %w", err)
	}
	return list, nil
}

// PendingTickets returns every PENDING request.
func (d *Desk) PendingTickets(ctx context.Context) ([]*protocol.HelpRequest, error) {
	return d.ListTickets(ctx, store.Pending())
}

func (d *Desk) emit(ctx context.Context, kind notify.Kind, hr *protocol.HelpRequest) {
	if d.notifier == nil {
		return
	}
	ev := notify.Event{Kind: kind, Request: hr, Time: d.now()}
	if err := d.notifier.Notify(ctx, ev); err != nil {
		d.logger.Warn("notification failed", "ticket", hr.TicketID, "kind", kind, "error", err)
	}
}

func openSeconds(hr *protocol.HelpRequest) float64 {
	if hr.ResolvedAt == nil {
		return 0
	}
	return hr.ResolvedAt.Sub(hr.CreatedAt).Seconds()
}
