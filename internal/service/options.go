package service

import (
	"time"
)

// Option configures a service.
type Option func(*options)

type options struct {
	clock          func() time.Time
	cache          LeaderboardCache
	concurrency    int
	reminderWindow time.Duration
	dedupWindow    time.Duration
}

func defaultOptions() options {
	return options{
		clock:          time.Now,
		cache:          noLeaderboardCache{},
		concurrency:    4,
		reminderWindow: 24 * time.Hour,
		dedupWindow:    24 * time.Hour,
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock replaces time.Now, for tests and for batch runs as of a fixed instant.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLeaderboardCache enables caching of leaderboard pages.
func WithLeaderboardCache(cache LeaderboardCache) Option {
	return func(o *options) {
		if cache != nil {
			o.cache = cache
		}
	}
}

// WithConcurrency bounds how many templates the recurring generator
// processes at once.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithReminderWindow sets how far ahead the reminder job looks for due tasks.
func WithReminderWindow(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.reminderWindow = d
		}
	}
}
