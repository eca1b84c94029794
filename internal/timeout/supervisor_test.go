package timeout

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/h1v3-io/frontdesk/internal/desk"
	"github.com/h1v3-io/frontdesk/internal/scheduler"
	"github.com/h1v3-io/frontdesk/internal/store"
	"github.com/h1v3-io/frontdesk/pkg/protocol"
)

func newTestDesk(t *testing.T) *desk.Desk {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return desk.New(st, nil)
}

// createAt creates a ticket whose created_at is the given time.
func createAt(t *testing.T, d *desk.Desk, at time.Time, question string) *protocol.HelpRequest {
	t.Helper()
	d.SetClock(func() time.Time { return at })
	defer d.SetClock(func() time.Time { return time.Now().UTC() })
	hr, err := d.CreateTicket(context.Background(), "caller", question, desk.ChannelAPI)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return hr
}

func TestSweep_ExpiresStaleTickets(t *testing.T) {
	d := newTestDesk(t)
	now := time.Now().UTC()
	stale := createAt(t, d, now.Add(-10*time.Minute), "stale?")
	fresh := createAt(t, d, now.Add(-time.Minute), "fresh?")

	sup := New(d, Config{Threshold: 5 * time.Minute}, nil, nil)
	n, err := sup.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("expired = %d, want 1", n)
	}

	got, _ := d.GetTicket(context.Background(), stale.TicketID)
	if got.State != protocol.StateUnresolved || got.ResolvedAt == nil {
		t.Errorf("stale ticket = %+v", got)
	}
	got, _ = d.GetTicket(context.Background(), fresh.TicketID)
	if got.State != protocol.StatePending || got.ResolvedAt != nil {
		t.Errorf("fresh ticket = %+v", got)
	}

	// A second cycle is a no-op.
	n, err = sup.Sweep(context.Background())
	if err != nil || n != 0 {
		t.Errorf("second sweep = %d, %v", n, err)
	}
}

func TestSweep_ThresholdIsStrict(t *testing.T) {
	d := newTestDesk(t)
	created := time.Now().UTC().Add(-time.Hour)
	hr := createAt(t, d, created, "edge")

	sup := New(d, Config{Threshold: time.Minute}, nil, nil)
	sup.now = func() time.Time { return created.Add(time.Minute) }
	if n, _ := sup.Sweep(context.Background()); n != 0 {
		t.Errorf("elapsed == threshold should not expire, expired %d", n)
	}
	sup.now = func() time.Time { return created.Add(time.Minute + time.Nanosecond) }
	if n, _ := sup.Sweep(context.Background()); n != 1 {
		t.Errorf("elapsed > threshold should expire, expired %d", n)
	}
	got, _ := d.GetTicket(context.Background(), hr.TicketID)
	if got.State != protocol.StateUnresolved {
		t.Errorf("state = %s", got.State)
	}
}

// resolvingExpirer resolves each ticket right before the timeout write,
// reproducing a supervisor that wins the race against the scan.
type resolvingExpirer struct {
	*desk.Desk
}

func (r resolvingExpirer) ForceTimeout(ctx context.Context, ticketID string) (*protocol.HelpRequest, error) {
	if _, err := r.Desk.ResolveTicket(ctx, ticketID, "supervisor was faster"); err != nil {
		return nil, err
	}
	return r.Desk.ForceTimeout(ctx, ticketID)
}

func TestSweep_DoesNotOverwriteConcurrentResolution(t *testing.T) {
	d := newTestDesk(t)
	hr := createAt(t, d, time.Now().UTC().Add(-time.Hour), "q")

	sup := New(resolvingExpirer{d}, Config{Threshold: time.Minute}, nil, nil)
	n, err := sup.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 0 {
		t.Errorf("expired = %d, want 0", n)
	}
	got, _ := d.GetTicket(context.Background(), hr.TicketID)
	if got.State != protocol.StateResolved || *got.SupervisorAnswer != "supervisor was faster" {
		t.Errorf("ticket = %+v", got)
	}
}

type fakeExpirer struct {
	pending []*protocol.HelpRequest
	listErr error
	errs    map[string]error
	expired []string
}

func (f *fakeExpirer) PendingTickets(context.Context) ([]*protocol.HelpRequest, error) {
	return f.pending, f.listErr
}

func (f *fakeExpirer) ForceTimeout(_ context.Context, ticketID string) (*protocol.HelpRequest, error) {
	if err := f.errs[ticketID]; err != nil {
		return nil, err
	}
	f.expired = append(f.expired, ticketID)
	return &protocol.HelpRequest{TicketID: ticketID, State: protocol.StateUnresolved}, nil
}

func stale(id string) *protocol.HelpRequest {
	return &protocol.HelpRequest{TicketID: id, State: protocol.StatePending, CreatedAt: time.Now().Add(-time.Hour)}
}

func TestSweep_ContinuesPastFailures(t *testing.T) {
	f := &fakeExpirer{
		pending: []*protocol.HelpRequest{stale("a"), stale("b"), stale("c")},
		errs: map[string]error{
			"a": errors.New("database is locked"),
			"b": fmt.Errorf("desk: timeout %q: %w", "b", store.ErrNotFound),
		},
	}
	sup := New(f, Config{}, nil, nil)

	n, err := sup.Sweep(context.Background())
	if err == nil {
		t.Error("expected the store failure to be reported")
	}
	if n != 1 || len(f.expired) != 1 || f.expired[0] != "c" {
		t.Errorf("expired = %d %v", n, f.expired)
	}
}

func TestSweep_ListFailure(t *testing.T) {
	f := &fakeExpirer{listErr: errors.New("store unavailable")}
	sup := New(f, Config{}, nil, nil)
	if _, err := sup.Sweep(context.Background()); err == nil {
		t.Error("expected error")
	}
}

func TestNew_Defaults(t *testing.T) {
	sup := New(&fakeExpirer{}, Config{}, nil, nil)
	cfg := sup.Config()
	if cfg.PollInterval != DefaultPollInterval || cfg.Threshold != DefaultThreshold {
		t.Errorf("config = %+v", cfg)
	}
}

func TestRegister(t *testing.T) {
	sched := scheduler.New(nil)
	sup := New(&fakeExpirer{}, Config{PollInterval: 10 * time.Second}, nil, nil)
	if err := sup.Register(sched); err != nil {
		t.Fatalf("register: %v", err)
	}
	if jobs := sched.Jobs(); len(jobs) != 1 || jobs[0] != JobName {
		t.Errorf("jobs = %v", jobs)
	}
}

// flakyExpirer panics on the first cycle and fails the second before
// delegating to the real desk.
type flakyExpirer struct {
	Expirer
	cycles atomic.Int32
}

func (f *flakyExpirer) PendingTickets(ctx context.Context) ([]*protocol.HelpRequest, error) {
	switch f.cycles.Add(1) {
	case 1:
		panic("corrupt row")
	case 2:
		return nil, errors.New("database is locked")
	}
	return f.Expirer.PendingTickets(ctx)
}

func TestScheduledSweep_SurvivesPanicAndErrors(t *testing.T) {
	d := newTestDesk(t)
	hr := createAt(t, d, time.Now().UTC().Add(-time.Hour), "anyone there?")

	flaky := &flakyExpirer{Expirer: d}
	sched := scheduler.New(nil)
	sup := New(flaky, Config{PollInterval: time.Second, Threshold: time.Minute}, nil, nil)
	if err := sup.Register(sched); err != nil {
		t.Fatalf("register: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Start(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	deadline := time.Now().Add(8 * time.Second)
	for {
		got, err := d.GetTicket(context.Background(), hr.TicketID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.State == protocol.StateUnresolved {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("ticket still %s after %d cycles", got.State, flaky.cycles.Load())
		}
		time.Sleep(50 * time.Millisecond)
	}
	if n := flaky.cycles.Load(); n < 3 {
		t.Errorf("cycles = %d, want at least 3", n)
	}
}

func TestNew_UsesUTCClock(t *testing.T) {
	sup := New(&fakeExpirer{}, Config{}, nil, nil)
	if loc := sup.now().Location(); loc != time.UTC {
		t.Errorf("clock location = %v, want UTC", loc)
	}
}
