package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/phrazzld/chorepoints/internal/config"
	"github.com/phrazzld/chorepoints/internal/events"
	"github.com/phrazzld/chorepoints/internal/platform/logger"
	"github.com/phrazzld/chorepoints/internal/platform/postgres"
	"github.com/phrazzld/chorepoints/internal/platform/redis"
	"github.com/phrazzld/chorepoints/internal/service"
	"github.com/phrazzld/chorepoints/internal/service/auth"
	"github.com/phrazzld/chorepoints/internal/store"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	output     string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "chorectl",
		Short:         "chorectl - administer a chorepoints deployment",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return validateOutput(opts.output)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a config YAML file (default ./config.yaml)")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", outputJSON, "output format (json, yaml)")

	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newGenerateCmd(opts))
	cmd.AddCommand(newRemindCmd(opts))
	cmd.AddCommand(newAwardCmd(opts))
	cmd.AddCommand(newSettleCmd(opts))
	cmd.AddCommand(newTokenCmd(opts))

	return cmd
}

// env is the runtime a command works against.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *sql.DB
	redis  *goredis.Client
}

// loadConfig reads configuration and builds a logger that writes to stderr,
// keeping stdout for command results.
func (o *rootOptions) loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadFile(o.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, logger.New(os.Stderr, cfg.Server.LogLevel), nil
}

// open loads configuration and connects to Postgres, and to Redis when it
// is enabled. The caller must call close.
func (o *rootOptions) open(ctx context.Context) (*env, error) {
	cfg, log, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	db, err := postgres.Open(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, logger: log, db: db}

	if cfg.Redis.Enabled {
		client, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			// The commands still work without Redis; only the cache and
			// the published notifications are lost.
			log.Warn("redis unavailable, continuing without it", slog.String("error", err.Error()))
		} else {
			e.redis = client
		}
	}
	return e, nil
}

func (e *env) close() {
	if e.redis != nil {
		_ = e.redis.Close()
	}
	if err := e.db.Close(); err != nil {
		e.logger.Error("error closing database connection", slog.String("error", err.Error()))
	}
}

// notifier dispatches to the log and, with Redis, to the pub/sub channel.
func (e *env) notifier() events.Notifier {
	n := events.NewInMemoryNotifier(e.logger)
	n.RegisterHandler(events.NewLogHandler(e.logger))
	if e.redis != nil {
		n.RegisterHandler(redis.NewNotificationPublisher(e.redis, e.cfg.Redis.NotificationChannel, e.logger))
	}
	return n
}

// serviceOptions mirrors the server's service configuration.
func (e *env) serviceOptions() []service.Option {
	opts := []service.Option{
		service.WithConcurrency(e.cfg.Jobs.Concurrency),
		service.WithReminderWindow(time.Duration(e.cfg.Jobs.ReminderWindowHours) * time.Hour),
	}
	if e.redis != nil {
		ttl := time.Duration(e.cfg.Redis.LeaderboardTTLSeconds) * time.Second
		opts = append(opts, service.WithLeaderboardCache(redis.NewLeaderboardCache(e.redis, ttl, e.logger)))
	}
	return opts
}

// ledgerService builds a LedgerService over the Postgres stores.
func (e *env) ledgerService() (*service.LedgerService, error) {
	return service.NewLedgerService(
		postgres.NewPostgresLedgerStore(e.db, e.logger),
		postgres.NewPostgresSettlementStore(e.db, e.logger),
		store.NewDBTransactor(e.db),
		auth.NewRoleAuthorizer(),
		e.notifier(),
		e.logger,
		e.serviceOptions()...,
	)
}
