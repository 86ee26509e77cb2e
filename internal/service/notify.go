package service

import (
	"context"
	"log/slog"

	"github.com/phrazzld/chorepoints/internal/domain"
	"github.com/phrazzld/chorepoints/internal/events"
)

// LeaderboardCache holds recently computed leaderboard pages. Actor totals
// are never cached.
type LeaderboardCache interface {
	// Fetch returns the cached page for window and limit, calling load on a miss.
	Fetch(
		ctx context.Context,
		window domain.LeaderboardWindow,
		limit int,
		load func(context.Context) ([]domain.LeaderboardEntry, error),
	) ([]domain.LeaderboardEntry, error)

	// Invalidate drops every cached page. Called after each ledger append.
	Invalidate(ctx context.Context) error
}

type noLeaderboardCache struct{}

func (noLeaderboardCache) Fetch(
	ctx context.Context,
	_ domain.LeaderboardWindow,
	_ int,
	load func(context.Context) ([]domain.LeaderboardEntry, error),
) ([]domain.LeaderboardEntry, error) {
	return load(ctx)
}

func (noLeaderboardCache) Invalidate(context.Context) error { return nil }

// notify emits n after the triggering write has committed. Failures are
// logged and swallowed.
func notify(ctx context.Context, notifier events.Notifier, log *slog.Logger, n *events.Notification) {
	if err := notifier.Emit(ctx, n); err != nil {
		log.Warn("failed to emit notification",
			slog.String("error", err.Error()),
			slog.String("actor_id", n.ActorID.String()),
			slog.String("title", n.Title))
	}
}

// invalidateLeaderboard drops cached leaderboard pages after a ledger append.
// A failure leaves pages that expire on their own TTL.
func invalidateLeaderboard(ctx context.Context, cache LeaderboardCache, log *slog.Logger) {
	if err := cache.Invalidate(ctx); err != nil {
		log.Warn("failed to invalidate leaderboard cache", slog.String("error", err.Error()))
	}
}
