package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	sfdrhttp "github.com/sustainfi/sfdr-engine/internal/adapter/http"
	sfdrnats "github.com/sustainfi/sfdr-engine/internal/adapter/nats"
	"github.com/sustainfi/sfdr-engine/internal/adapter/postgres"
	"github.com/sustainfi/sfdr-engine/internal/adapter/ristretto"
	"github.com/sustainfi/sfdr-engine/internal/agent"
	"github.com/sustainfi/sfdr-engine/internal/config"
	"github.com/sustainfi/sfdr-engine/internal/domain/rules"
	"github.com/sustainfi/sfdr-engine/internal/domain/workflow"
	"github.com/sustainfi/sfdr-engine/internal/logger"
	"github.com/sustainfi/sfdr-engine/internal/resilience"
	"github.com/sustainfi/sfdr-engine/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logClose := logger.New(cfg.Logging)
	defer logClose.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"batch_window", cfg.Orchestrator.BatchWindow,
	)

	ctx := context.Background()

	// --- Infrastructure ---

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	queue, err := sfdrnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	decisionCache, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer decisionCache.Close()

	// --- Workflow templates ---

	custom, err := workflow.LoadFromDirectory(cfg.Workflow.TemplateDir)
	if err != nil {
		return fmt.Errorf("workflow templates: %w", err)
	}
	if len(custom) > 0 {
		slog.Info("custom workflow templates loaded", "count", len(custom))
	}
	library := workflow.NewLibrary(custom)

	// --- Services ---

	registry := agent.Default()
	orchestrator := service.NewOrchestrator(registry, cfg.Confidence, cfg.Orchestrator.DefaultStepTimeout, nil)

	store := postgres.NewStore(pool)
	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)

	classifier := service.NewClassifier(
		rules.NewRuleSet(), library, orchestrator, int64(cfg.Orchestrator.BatchWindow),
		service.WithAuditSink(store, breaker),
		service.WithQueue(queue),
		service.WithCache(decisionCache, cfg.Cache.TTL),
	)

	// --- HTTP ---

	handlers := sfdrhttp.NewHandlers(classifier)

	r := chi.NewRouter()
	r.Use(sfdrhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(sfdrhttp.RequestID)
	r.Use(sfdrhttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(2 * time.Minute))

	sfdrhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
