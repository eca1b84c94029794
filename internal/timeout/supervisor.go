// Package timeout expires help requests that stay PENDING past a threshold.
package timeout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/h1v3-io/frontdesk/internal/metrics"
	"github.com/h1v3-io/frontdesk/internal/scheduler"
	"github.com/h1v3-io/frontdesk/internal/store"
	"github.com/h1v3-io/frontdesk/pkg/protocol"
)

const (
	DefaultPollInterval = 30 * time.Second
	DefaultThreshold    = 300 * time.Second

	// JobName is the scheduler job the sweep is registered under.
	JobName = "timeout-sweep"
)

// Expirer is the slice of the lifecycle manager the supervisor drives.
type Expirer interface {
	PendingTickets(ctx context.Context) ([]*protocol.HelpRequest, error)
	ForceTimeout(ctx context.Context, ticketID string) (*protocol.HelpRequest, error)
}

// Config controls the sweep cadence.
type Config struct {
	PollInterval time.Duration
	Threshold    time.Duration
}

// Supervisor scans PENDING requests and force-times-out the stale ones.
// The state guard lives in the write itself, so a request resolved between
// the scan and the timeout write is left alone.
type Supervisor struct {
	desk    Expirer
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates a Supervisor. Zero config fields take their defaults.
func New(d Expirer, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Supervisor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		desk:    d,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Config returns the effective configuration.
func (s *Supervisor) Config() Config { return s.cfg }

// Register schedules the sweep every PollInterval.
func (s *Supervisor) Register(sched *scheduler.Scheduler) error {
	return sched.Every(JobName, s.cfg.PollInterval, func(ctx context.Context) {
		// Errors are logged inside Sweep; the next tick retries.
		s.Sweep(ctx)
	})
}

// Sweep runs one cycle and returns how many requests it expired. A failure on
// one request is logged and does not stop the others.
func (s *Supervisor) Sweep(ctx context.Context) (int, error) {
	start := time.Now()
	pending, err := s.desk.PendingTickets(ctx)
	if err != nil {
		s.logger.Error("sweep: list pending failed", "error", err)
		s.metrics.Sweep("error", time.Since(start).Seconds())
		return 0, fmt.Errorf("timeout: sweep: %w", err)
	}

	now := s.now()
	expired := 0
	var errs []error
	for _, hr := range pending {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if hr.Elapsed(now) <= s.cfg.Threshold {
			continue
		}

		got, err := s.desk.ForceTimeout(ctx, hr.TicketID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			s.logger.Debug("sweep: ticket vanished", "ticket", hr.TicketID)
		case err != nil:
			s.logger.Error("sweep: timeout failed", "ticket", hr.TicketID, "error", err)
			errs = append(errs, err)
		case got.State == protocol.StateUnresolved:
			expired++
		}
	}

	result := "ok"
	if len(errs) > 0 {
		result = "error"
	}
	s.metrics.Sweep(result, time.Since(start).Seconds())
	if expired > 0 || len(errs) > 0 {
		s.logger.Info("sweep finished", "pending", len(pending), "expired", expired, "errors", len(errs))
	}
	return expired, errors.Join(errs...)
}
