package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/h1v3-io/frontdesk/internal/metrics"
	"github.com/h1v3-io/frontdesk/internal/store"
)

const (
	defaultQueueSize = 64
	provisionTimeout = 10 * time.Second
)

// Binder records a provisioned room on its help request.
type Binder interface {
	BindRoom(ctx context.Context, ticketID, room string) (bool, error)
}

// Queue hands room provisioning off the request path to a single worker.
// A request whose provisioning fails or is dropped keeps room_binding unset
// and falls back to RoomName on demand.
type Queue struct {
	jobs    chan string
	prov    Provisioner
	binder  Binder
	logger  *slog.Logger
	metrics *metrics.Metrics

	// OnBound, if set, is called after a room is recorded on a request.
	OnBound func(ctx context.Context, ticketID, room string)
}

// NewQueue creates a provisioning queue. size <= 0 uses the default capacity.
func NewQueue(prov Provisioner, binder Binder, size int, logger *slog.Logger, m *metrics.Metrics) *Queue {
	if size <= 0 {
		size = defaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		jobs:    make(chan string, size),
		prov:    prov,
		binder:  binder,
		logger:  logger,
		metrics: m,
	}
}

// Enqueue schedules provisioning for ticketID without blocking. It reports
// false if the queue is full.
func (q *Queue) Enqueue(ticketID string) bool {
	select {
	case q.jobs <- ticketID:
		q.metrics.QueueDepth(len(q.jobs))
		return true
	default:
		q.logger.Warn("provisioning queue full, room will use fallback name", "ticket", ticketID)
		q.metrics.Provisioned("dropped")
		return false
	}
}

// Len returns the number of queued jobs.
func (q *Queue) Len() int { return len(q.jobs) }

// Start processes jobs until ctx is cancelled.
func (q *Queue) Start(ctx context.Context) error {
	q.logger.Info("provisioning worker started")
	for {
		select {
		case ticketID := <-q.jobs:
			q.metrics.QueueDepth(len(q.jobs))
			q.safeProcess(ctx, ticketID)
		case <-ctx.Done():
			q.logger.Info("provisioning worker stopping", "pending", len(q.jobs))
			return ctx.Err()
		}
	}
}

func (q *Queue) safeProcess(ctx context.Context, ticketID string) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("provisioning panicked", "ticket", ticketID, "panic", fmt.Sprintf("%v", r))
			q.metrics.Provisioned("failed")
		}
	}()
	q.Process(ctx, ticketID)
}

// Process provisions a room for one ticket and records it. Errors are logged
// and returned; a ticket deleted in the meantime is a benign no-op.
func (q *Queue) Process(ctx context.Context, ticketID string) error {
	ctx, cancel := context.WithTimeout(ctx, provisionTimeout)
	defer cancel()

	room, err := q.prov.CreateRoom(ctx, RoomName(ticketID))
	if err != nil {
		q.logger.Error("room provisioning failed", "ticket", ticketID, "error", err)
		q.metrics.Provisioned("failed")
		return err
	}

	bound, err := q.binder.BindRoom(ctx, ticketID, room)
	switch {
	case errors.Is(err, store.ErrNotFound):
		q.logger.Warn("ticket vanished before room was recorded", "ticket", ticketID, "room", room)
		q.metrics.Provisioned("orphaned")
		return nil
	case err != nil:
		q.logger.Error("recording room failed", "ticket", ticketID, "room", room, "error", err)
		q.metrics.Provisioned("failed")
		return err
	case !bound:
		q.logger.Debug("ticket already has a room", "ticket", ticketID)
		return nil
	}

	q.logger.Info("room provisioned", "ticket", ticketID, "room", room)
	q.metrics.Provisioned("bound")
	if q.OnBound != nil {
		q.OnBound(ctx, ticketID, room)
	}
	return nil
}
