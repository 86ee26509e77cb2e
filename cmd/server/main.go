// Package main implements the entry point for the chorepoints API server,
// which runs the task lifecycle engine, the points ledger and the daily
// recurring-task and reminder jobs.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/chorepoints/internal/config"
	"github.com/phrazzld/chorepoints/internal/platform/logger"
	"github.com/phrazzld/chorepoints/internal/platform/postgres"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("chorepoints server failed: %v", err)
	}
}

// run loads configuration, connects to the database and serves until ctx
// is canceled.
func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	l, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	l.Info("server configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Server.LogLevel),
		slog.Bool("redis_enabled", cfg.Redis.Enabled),
		slog.Bool("jobs_enabled", cfg.Jobs.Enabled))

	db, err := postgres.Open(ctx, cfg.Database, l)
	if err != nil {
		return err
	}

	app, err := newApplication(ctx, cfg, l, db)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return app.Run(ctx)
}
