package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/chorepoints/internal/config"
	"github.com/phrazzld/chorepoints/internal/events"
	"github.com/phrazzld/chorepoints/internal/jobs"
	"github.com/phrazzld/chorepoints/internal/platform/postgres"
	"github.com/phrazzld/chorepoints/internal/platform/redis"
	"github.com/phrazzld/chorepoints/internal/service"
	"github.com/phrazzld/chorepoints/internal/service/auth"
	"github.com/phrazzld/chorepoints/internal/store"
	goredis "github.com/redis/go-redis/v9"
)

// application holds the shared dependencies so they can be torn down
// together on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB
	redis  *goredis.Client

	jwtService auth.JWTService
	authz      auth.Authorizer
	notifier   *events.InMemoryNotifier
	cache      service.LeaderboardCache
	limiter    *redis.RateLimiter

	taskService   *service.TaskService
	ledgerService *service.LedgerService
	generator     *service.RecurringGenerator
	reminders     *service.ReminderService

	scheduler *jobs.Scheduler
}

// newApplication connects the optional Redis integration and wires the
// Postgres stores into the services.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config:   cfg,
		logger:   logger,
		db:       db,
		authz:    auth.NewRoleAuthorizer(),
		notifier: events.NewInMemoryNotifier(logger),
	}
	app.notifier.RegisterHandler(events.NewLogHandler(logger))

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	logger.Info("JWT authentication service initialized",
		slog.Int("token_lifetime_minutes", cfg.Auth.TokenLifetimeMinutes))

	if cfg.Redis.Enabled {
		if err := app.setupRedis(ctx); err != nil {
			return nil, err
		}
	}

	if err := app.wireServices(
		postgres.NewPostgresTaskStore(db, logger),
		postgres.NewPostgresLedgerStore(db, logger),
		postgres.NewPostgresSettlementStore(db, logger),
		store.NewDBTransactor(db),
	); err != nil {
		return nil, err
	}

	logger.Info("application initialized successfully")
	return app, nil
}

// setupRedis connects to Redis and enables the leaderboard cache, the
// notification publisher and the API rate limiter.
func (app *application) setupRedis(ctx context.Context) error {
	cfg := app.config.Redis

	client, err := redis.NewClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	app.redis = client

	app.cache = redis.NewLeaderboardCache(client, time.Duration(cfg.LeaderboardTTLSeconds)*time.Second, app.logger)
	app.notifier.RegisterHandler(redis.NewNotificationPublisher(client, cfg.NotificationChannel, app.logger))
	if cfg.RateLimitPerMinute > 0 {
		app.limiter = redis.NewRateLimiter(client, cfg.RateLimitPerMinute, time.Minute)
	}

	app.logger.Info("redis integration enabled",
		slog.String("addr", cfg.Addr),
		slog.Int("leaderboard_ttl_seconds", cfg.LeaderboardTTLSeconds),
		slog.Int("rate_limit_per_minute", cfg.RateLimitPerMinute))
	return nil
}

// wireServices builds the services and the scheduler on top of the given stores.
func (app *application) wireServices(
	tasks store.TaskStore,
	ledger store.LedgerStore,
	settlements store.SettlementStore,
	tx store.Transactor,
) error {
	opts := []service.Option{
		service.WithConcurrency(app.config.Jobs.Concurrency),
		service.WithReminderWindow(time.Duration(app.config.Jobs.ReminderWindowHours) * time.Hour),
	}
	if app.cache != nil {
		opts = append(opts, service.WithLeaderboardCache(app.cache))
	}

	var err error
	if app.taskService, err = service.NewTaskService(tasks, ledger, tx, app.authz, app.notifier, app.logger, opts...); err != nil {
		return fmt.Errorf("failed to create task service: %w", err)
	}
	if app.ledgerService, err = service.NewLedgerService(ledger, settlements, tx, app.authz, app.notifier, app.logger, opts...); err != nil {
		return fmt.Errorf("failed to create ledger service: %w", err)
	}
	if app.generator, err = service.NewRecurringGenerator(tasks, app.notifier, app.logger, opts...); err != nil {
		return fmt.Errorf("failed to create recurring generator: %w", err)
	}
	if app.reminders, err = service.NewReminderService(tasks, app.notifier, app.logger, opts...); err != nil {
		return fmt.Errorf("failed to create reminder service: %w", err)
	}

	return app.setupScheduler()
}

// setupScheduler registers the daily jobs. The scheduler is only started
// when jobs are enabled.
func (app *application) setupScheduler() error {
	generationAt, err := jobs.ParseDailyAt(app.config.Jobs.GenerationTime)
	if err != nil {
		return fmt.Errorf("invalid generation time: %w", err)
	}
	reminderAt, err := jobs.ParseDailyAt(app.config.Jobs.ReminderTime)
	if err != nil {
		return fmt.Errorf("invalid reminder time: %w", err)
	}

	app.scheduler = jobs.NewScheduler(app.logger)
	app.scheduler.Add(jobs.GenerationJob{Generator: app.generator}, generationAt)
	app.scheduler.Add(jobs.ReminderJob{Reminder: app.reminders}, reminderAt)
	return nil
}

// Run starts the scheduler and serves HTTP until ctx is canceled.
func (app *application) Run(ctx context.Context) error {
	if app.config.Jobs.Enabled {
		app.scheduler.Start()
		app.logger.Info("scheduler started",
			slog.String("generation_time", app.config.Jobs.GenerationTime),
			slog.String("reminder_time", app.config.Jobs.ReminderTime))
	}

	if err := app.startHTTPServer(ctx, app.setupRouter()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.scheduler != nil {
		app.scheduler.Stop()
	}

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis client", slog.String("error", err.Error()))
		}
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", slog.String("error", err.Error()))
		}
	}

	app.logger.Info("application shutdown completed")
}
