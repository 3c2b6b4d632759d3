package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ent0n29/tasktrack/internal/config"
	"github.com/ent0n29/tasktrack/internal/httpapi"
	"github.com/ent0n29/tasktrack/internal/logging"
	"github.com/ent0n29/tasktrack/internal/observability"
	"github.com/ent0n29/tasktrack/internal/policy"
	"github.com/ent0n29/tasktrack/internal/todos"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the HTTP server. Settings come from the environment:

  APP_BIND_ADDR          listen address (default 127.0.0.1:3000, HOST/PORT also honored)
  APP_SHUTDOWN_TIMEOUT   graceful shutdown budget (default 15s)
  APP_LOG_LEVEL          DEBUG, INFO, WARN or ERROR
  APP_SEED_DEMO          create sample todos at startup
  DATABASE_URL           use Postgres instead of the in-memory store`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	logger := logging.New(os.Stdout, cfg.LogLevel)

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := todos.NewStore(ctx, cfg.DatabaseURL, todos.SystemClock)
	if err != nil {
		msg, _ := policy.RedactSecrets(err.Error())
		return fmt.Errorf("todo store init failed: %s", msg)
	}
	defer store.Close()
	logger.Info("todo store ready", "mode", todos.ModeOf(store), "database", policy.RedactDSN(cfg.DatabaseURL))

	if cfg.SeedDemo {
		seeded, err := todos.SeedDemo(ctx, store, todos.SystemClock.Now())
		if err != nil {
			return fmt.Errorf("seeding demo todos: %w", err)
		}
		logger.Info("demo todos seeded", "count", len(seeded))
	}

	api := httpapi.New(cfg, store, todos.NewFeed(0), metrics, logger)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.BindAddr, "url", "http://"+cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
		close(listenErr)
	}()

	select {
	case err := <-listenErr:
		if err != nil {
			return fmt.Errorf("listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
		_ = httpServer.Close()
	}

	logger.Info("shutdown complete")
	return nil
}
