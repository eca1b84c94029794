package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestAddJob(t *testing.T) {
	var calls atomic.Int32
	sched := New(nil)

	err := sched.AddJob("sweep", "@every 1s", func(context.Context) { calls.Add(1) })
	if err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if sched.JobCount() != 1 {
		t.Errorf("JobCount = %d", sched.JobCount())
	}

	// Start cron and wait for it to fire
	sched.cron.Start()
	time.Sleep(1500 * time.Millisecond)
	sched.cron.Stop()

	if calls.Load() == 0 {
		t.Error("expected at least one call")
	}
}

func TestEvery(t *testing.T) {
	sched := New(nil)
	if err := sched.Every("sweep", 30*time.Second, func(context.Context) {}); err != nil {
		t.Fatalf("Every: %v", err)
	}
	if err := sched.Every("bad", 0, func(context.Context) {}); err == nil {
		t.Error("expected error for zero interval")
	}
	if got := sched.Jobs(); len(got) != 1 || got[0] != "sweep" {
		t.Errorf("Jobs = %v", got)
	}
}

func TestInvalidSchedule(t *testing.T) {
	sched := New(nil)
	if err := sched.AddJob("sweep", "invalid-cron", func(context.Context) {}); err == nil {
		t.Error("expected error for invalid schedule")
	}
	if sched.JobCount() != 0 {
		t.Errorf("JobCount = %d", sched.JobCount())
	}
}

func TestAddJob_ReplacesByName(t *testing.T) {
	sched := New(nil)
	sched.AddJob("sweep", "@every 1h", func(context.Context) {})
	sched.AddJob("sweep", "@every 2h", func(context.Context) {})
	sched.AddJob("report", "@every 3h", func(context.Context) {})

	if sched.JobCount() != 2 {
		t.Errorf("JobCount = %d", sched.JobCount())
	}
	if n := len(sched.cron.Entries()); n != 2 {
		t.Errorf("cron entries = %d", n)
	}
}

func TestRemoveJob(t *testing.T) {
	sched := New(nil)
	sched.AddJob("sweep", "@every 1h", func(context.Context) {})
	sched.RemoveJob("sweep")
	sched.RemoveJob("unknown")

	if sched.JobCount() != 0 {
		t.Errorf("JobCount = %d after remove", sched.JobCount())
	}
	if !sched.Next("sweep").IsZero() {
		t.Error("removed job should have no next run")
	}
}

func TestStart_CancelStopsJobs(t *testing.T) {
	sched := New(nil)
	started := make(chan struct{}, 1)
	stopped := make(chan struct{})
	var once sync.Once
	sched.AddJob("slow", "@every 1s", func(ctx context.Context) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		once.Do(func() { close(stopped) })
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- sched.Start(ctx) }()

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("job never fired")
	}
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Start returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Start did not return")
	}
	select {
	case <-stopped:
	default:
		t.Error("running job should observe cancellation before Start returns")
	}
}

func TestPanickingJobRecovered(t *testing.T) {
	sched := New(nil)
	var calls atomic.Int32
	sched.AddJob("boom", "@every 1s", func(context.Context) {
		calls.Add(1)
		panic("boom")
	})

	sched.cron.Start()
	time.Sleep(2500 * time.Millisecond)
	sched.cron.Stop()

	if calls.Load() < 2 {
		t.Errorf("calls = %d, scheduler should keep running after a panic", calls.Load())
	}
}
