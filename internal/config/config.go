package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Jobs     JobsConfig     `mapstructure:"jobs" validate:"required"`
	Points   PointsConfig   `mapstructure:"points" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error fatal"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL          string `mapstructure:"url" validate:"required,url"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=1"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" validate:"gte=0"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0,lt=44640"`
}

// RedisConfig controls the optional Redis integration. When disabled the
// leaderboard is read straight from Postgres, notifications are only logged
// and the API is not rate limited.
type RedisConfig struct {
	Enabled               bool   `mapstructure:"enabled"`
	Addr                  string `mapstructure:"addr" validate:"required_if=Enabled true"`
	Password              string `mapstructure:"password"`
	DB                    int    `mapstructure:"db" validate:"gte=0,lte=15"`
	LeaderboardTTLSeconds int    `mapstructure:"leaderboard_ttl_seconds" validate:"gte=0"`
	NotificationChannel   string `mapstructure:"notification_channel"`
	RateLimitPerMinute    int    `mapstructure:"rate_limit_per_minute" validate:"gte=0"`
}

// JobsConfig configures the in-process scheduler.
type JobsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// GenerationTime and ReminderTime are HH:MM in UTC.
	GenerationTime      string `mapstructure:"generation_time" validate:"required,datetime=15:04"`
	ReminderTime        string `mapstructure:"reminder_time" validate:"required,datetime=15:04"`
	ReminderWindowHours int    `mapstructure:"reminder_window_hours" validate:"gt=0,lte=168"`
	Concurrency         int    `mapstructure:"concurrency" validate:"gt=0,lte=64"`
}

// PointsConfig holds ledger query limits.
type PointsConfig struct {
	LeaderboardLimit    int `mapstructure:"leaderboard_limit" validate:"gt=0,lte=100"`
	HistoryDefaultLimit int `mapstructure:"history_default_limit" validate:"gt=0,lte=100"`
}
