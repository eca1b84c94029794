package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	apiPkg "github.com/h1v3-io/frontdesk/internal/api"
	"github.com/h1v3-io/frontdesk/internal/config"
	"github.com/h1v3-io/frontdesk/internal/desk"
	"github.com/h1v3-io/frontdesk/internal/intake"
	"github.com/h1v3-io/frontdesk/internal/kb"
	"github.com/h1v3-io/frontdesk/internal/logbuf"
	"github.com/h1v3-io/frontdesk/internal/metrics"
	"github.com/h1v3-io/frontdesk/internal/notify"
	"github.com/h1v3-io/frontdesk/internal/scheduler"
	"github.com/h1v3-io/frontdesk/internal/store"
	"github.com/h1v3-io/frontdesk/internal/timeout"
	"github.com/h1v3-io/frontdesk/internal/voice"
)

func main() {
	fs := pflag.NewFlagSet("frontdeskd", pflag.ExitOnError)
	config.RegisterFlags(fs)
	fs.Parse(os.Args[1:])

	cfg, err := config.Load(config.OptionsFromFlags(fs))
	if err != nil {
		fmt.Fprintf(os.Stderr, "frontdeskd: %v\n", err)
		os.Exit(1)
	}

	// Set up logging
	logLevel, _ := logbuf.ParseLevel(cfg.Log.Level)
	logBuf := logbuf.New(cfg.Log.BufferSize)
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(logbuf.NewHandler(jsonHandler, logBuf))
	slog.SetDefault(logger)

	// Voice credentials are checked before anything is opened.
	if err := cfg.Voice.Validate(); err != nil {
		logger.Error("voice misconfigured", "error", err)
		os.Exit(1)
	}

	logger.Info("frontdeskd starting",
		"addr", cfg.HTTP.Addr(),
		"db_driver", cfg.Store.Driver,
		"voice", cfg.Voice.Enabled,
		"timeout_threshold", cfg.Timeout.Threshold.String(),
	)

	// 1. Store + knowledge base seed
	st, err := store.Open(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	seed := kb.DefaultSeed
	if cfg.KB.SeedFile != "" {
		seed, err = kb.LoadSeedFile(cfg.KB.SeedFile)
		if err != nil {
			logger.Error("failed to load kb seed", "error", err)
			os.Exit(1)
		}
	}
	if n, err := kb.Seed(ctx, st, seed, time.Now().UTC()); err != nil {
		logger.Error("failed to seed knowledge base", "error", err)
		os.Exit(1)
	} else if n > 0 {
		logger.Info("knowledge base seeded", "entries", n)
	}

	// 2. Desk, metrics and notifiers
	m := metrics.New()
	hub := notify.NewHub(logger.With("component", "events"))
	defer hub.Close()

	notifiers := notify.Multi{&notify.Log{Logger: logger.With("component", "notify")}}
	if cfg.Notify.SlackWebhookURL != "" {
		sl, err := notify.NewSlack(cfg.Notify.SlackWebhookURL)
		if err != nil {
			logger.Error("failed to init slack notifier", "error", err)
			os.Exit(1)
		}
		notifiers = append(notifiers, sl)
		logger.Info("slack notifier enabled")
	}
	notifiers = append(notifiers, hub)

	d := desk.New(st, logger.With("component", "desk"))
	d.SetNotifier(notifiers)
	d.SetMetrics(m)

	var wg sync.WaitGroup
	run := func(name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			safeGo(logger, name, fn)
		}()
	}

	// 3. Voice rooms
	if cfg.Voice.Enabled {
		lk, err := voice.NewLiveKit(cfg.Voice.Backend())
		if err != nil {
			logger.Error("failed to init livekit", "error", err)
			os.Exit(1)
		}
		d.SetVoice(&voice.Binding{URL: cfg.Voice.URL, Minter: lk})
		d.SetJoinRetry(cfg.Voice.JoinRetries, cfg.Voice.JoinRetryDelay)

		rooms := voice.NewQueue(lk, st, cfg.Voice.QueueSize, logger.With("component", "rooms"), m)
		rooms.OnBound = d.RoomBound
		d.SetRooms(rooms)
		run("rooms", func() { rooms.Start(ctx) })
		logger.Info("voice rooms enabled", "url", cfg.Voice.URL)
	} else {
		logger.Warn("voice disabled, join endpoints will return 503")
	}

	// 4. Timeout supervisor
	sched := scheduler.New(logger.With("component", "scheduler"))
	sup := timeout.New(d, timeout.Config{
		PollInterval: cfg.Timeout.PollInterval,
		Threshold:    cfg.Timeout.Threshold,
	}, logger.With("component", "timeout"), m)
	if err := sup.Register(sched); err != nil {
		logger.Error("failed to schedule timeout sweep", "error", err)
		os.Exit(1)
	}
	run("scheduler", func() { sched.Start(ctx) })

	// 5. HTTP surface
	opts := apiPkg.Options{
		Logs:    logBuf,
		Metrics: m.Handler(),
		Events:  hub,
	}
	if len(cfg.Intake.Endpoints) > 0 {
		in := intake.New(cfg.Intake, d, logger.With("component", "intake"))
		opts.Intake = in
		logger.Info("intake endpoints enabled", "endpoints", in.Endpoints())
	}
	srv := apiPkg.NewServer(d, apiPkg.Config{
		Host:         cfg.HTTP.Host,
		Port:         cfg.HTTP.Port,
		AdminKey:     cfg.HTTP.AdminKey,
		HistoryLimit: cfg.HTTP.AdminHistory,
	}, logger.With("component", "api"), opts)
	run("api-server", func() {
		if err := srv.Start(ctx); err != nil {
			logger.Error("http server failed", "error", err)
			cancel()
		}
	})

	// 6. Graceful shutdown
	<-ctx.Done()
	logger.Info("shutting down")
	hub.Close()
	wg.Wait()
	logger.Info("frontdeskd stopped")
}

// safeGo runs fn with panic recovery.
func safeGo(logger *slog.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("goroutine panicked", "name", name, "panic", fmt.Sprintf("%v", r))
		}
	}()
	fn()
}
