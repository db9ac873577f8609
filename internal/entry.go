// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/raido/internal/api"
	"github.com/starford/raido/internal/audit"
	"github.com/starford/raido/internal/automation"
	"github.com/starford/raido/internal/cache"
	"github.com/starford/raido/internal/domain"
	"github.com/starford/raido/internal/notify"
	"github.com/starford/raido/internal/optimistic"
	"github.com/starford/raido/internal/push"
	"github.com/starford/raido/internal/store"
	"github.com/starford/raido/internal/syncqueue"
	"github.com/starford/raido/internal/tracker"
	"github.com/starford/raido/internal/webhook"
)

const scanInterval = time.Minute

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("data_root", cfg.Data.Root),
		slog.String("cache_path", cfg.Cache.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Persistence backend and sync queue.
	backend, err := syncqueue.NewFSBackend(cfg.Data.Root)
	if err != nil {
		return fmt.Errorf("init backend: %w", err)
	}
	queue := syncqueue.New(backend, cfg.Data.QueueDepth, logger)
	defer queue.Close()

	// Local SQLite mirror.
	db, err := cache.Open(cfg.Cache.Path)
	if err != nil {
		return fmt.Errorf("init cache: %w", err)
	}
	defer db.Close()

	// Core state.
	st := store.New(logger)
	recorder := audit.NewRecorder(logger)
	markers := optimistic.NewTracker(cfg.Optimistic.Timeout, cfg.Optimistic.Grace)
	center := notify.NewCenter(logger)
	broker := push.NewBroker()
	defer broker.Close()
	hooks := webhook.NewNotifier(cfg.Webhook.URL, cfg.Webhook.Timeout, logger)

	// Automation scheduler. onMerged and OnFieldChanged are wired after the
	// service exists; the scheduler tolerates a nil onMerged until then.
	var svc *tracker.Service
	scheduler := automation.NewScheduler(st, automation.RuleEngine{}, recorder.Record,
		cfg.Automations.Interval, logger, func(ini *domain.Initiative) {
			svc.MergedByAutomation(ini)
		})

	svc = tracker.NewService(tracker.Deps{
		Store:          st,
		Audit:          recorder,
		Optimistic:     markers,
		Center:         center,
		Queue:          queue,
		Cache:          db,
		Broker:         broker,
		Webhook:        hooks,
		OnFieldChanged: scheduler.FieldChanged,
		Logger:         logger,
	})
	defer svc.Close()

	// Populate the store, falling back to the cache mirror if needed.
	if err := svc.Load(ctx); err != nil {
		return fmt.Errorf("load initiatives: %w", err)
	}

	// Load automation definitions; a missing file just disables automations.
	if cfg.Automations.Path != "" {
		defs, err := automation.LoadFile(cfg.Automations.Path)
		if err != nil {
			logger.Warn("automation definitions unavailable",
				slog.String("path", cfg.Automations.Path),
				slog.String("error", err.Error()))
		} else {
			scheduler.SetDefinitions(defs)
		}
	}

	// Timer-driven notification scanner (delays, weekly effort overruns).
	scanner := notify.NewScanner(st.Snapshot, center, scanInterval, logger)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api, SSE included.
	r.Mount("/api", api.NewRouter(svc, scheduler, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker))

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Automation scheduler loop (cron ticks and field triggers).
	g.Go(func() error {
		scheduler.Run(gCtx)
		return nil
	})

	// Hot reload of the automation definitions file.
	if cfg.Automations.Path != "" {
		g.Go(func() error {
			if err := automation.Watch(gCtx, cfg.Automations.Path, logger, scheduler.SetDefinitions); err != nil {
				logger.Warn("automation watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Notification scanner loop.
	g.Go(func() error {
		scanner.Run(gCtx)
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		// Push queued writes out before the deferred Close tears the worker down.
		if err := queue.ForceSyncNow(); err != nil {
			logger.Warn("final flush failed", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
