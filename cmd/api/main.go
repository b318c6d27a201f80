package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nikhilbhutani/schoolrag/internal/api"
	"github.com/nikhilbhutani/schoolrag/internal/api/handlers"
	"github.com/nikhilbhutani/schoolrag/internal/app"
	"github.com/nikhilbhutani/schoolrag/internal/config"
	"github.com/nikhilbhutani/schoolrag/internal/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()})))

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	slog.Info("config loaded", "settings", cfg.Redacted())

	ctx := context.Background()
	services, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to start services", "error", err)
		os.Exit(1)
	}
	defer services.Close()

	deps := api.Deps{
		Answerer:  services.Orchestrator,
		Retriever: services.Engine,
		Cache:     services.Cache,
		Checks:    readinessChecks(services),
	}
	// indexing jobs go through asynq, which needs Redis
	if services.Redis != nil {
		qc := queue.NewClient(cfg.Redis)
		defer qc.Close()
		deps.Documents = qc
	} else {
		slog.Warn("redis unavailable, document indexing endpoints disabled")
	}

	router := api.NewRouter(deps, cfg.Server)
	defer router.Close()

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router.Setup(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.LLM.Timeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting API server", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	slog.Info("server stopped")
}

func readinessChecks(a *app.App) map[string]handlers.Check {
	checks := map[string]handlers.Check{}
	if a.Pool != nil {
		checks["database"] = a.Pool.Ping
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }
	}
	return checks
}
