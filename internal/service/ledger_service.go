package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/chorepoints/internal/domain"
	"github.com/phrazzld/chorepoints/internal/events"
	"github.com/phrazzld/chorepoints/internal/platform/logger"
	"github.com/phrazzld/chorepoints/internal/service/auth"
	"github.com/phrazzld/chorepoints/internal/store"
)

// Leaderboard and settlement listing bounds.
const (
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 100
	DefaultSettlementLimit  = 20
)

// LedgerService reads and appends to the points ledger outside the task
// lifecycle and settles weekly rankings. Totals are always summed from the
// ledger at read time.
type LedgerService struct {
	ledger      store.LedgerStore
	settlements store.SettlementStore
	tx          store.Transactor
	authz       auth.Authorizer
	notifier    events.Notifier
	cache       LeaderboardCache
	clock       func() time.Time
	logger      *slog.Logger
}

// NewLedgerService creates a LedgerService.
// It returns an error if any of the required dependencies are nil.
func NewLedgerService(
	ledger store.LedgerStore,
	settlements store.SettlementStore,
	tx store.Transactor,
	authz auth.Authorizer,
	notifier events.Notifier,
	log *slog.Logger,
	opts ...Option,
) (*LedgerService, error) {
	if ledger == nil {
		return nil, missingDependency("ledger", "ledger store")
	}
	if settlements == nil {
		return nil, missingDependency("ledger", "settlement store")
	}
	if tx == nil {
		return nil, missingDependency("ledger", "transactor")
	}
	if authz == nil {
		return nil, missingDependency("ledger", "authorizer")
	}
	if notifier == nil {
		notifier = events.NopNotifier{}
	}
	if log == nil {
		log = slog.Default()
	}

	o := applyOptions(opts)
	return &LedgerService{
		ledger:      ledger,
		settlements: settlements,
		tx:          tx,
		authz:       authz,
		notifier:    notifier,
		cache:       o.cache,
		clock:       o.clock,
		logger:      log.With(slog.String("component", "ledger_service")),
	}, nil
}

// AwardManualPoints appends an administrative adjustment for actorID. points
// may be negative but not zero, and a reason is required.
func (s *LedgerService) AwardManualPoints(
	ctx context.Context,
	actorID uuid.UUID,
	points int,
	reason string,
	authority domain.Actor,
) (*domain.LedgerEntry, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if !s.authz.Authorize(ctx, authority, domain.PermissionAwardPoints, nil) {
		return nil, domain.NewAuthorizationError(authority.ID, "award points", "missing award_points permission")
	}
	if actorID == uuid.Nil {
		return nil, domain.NewValidationError("actor_id", "cannot be empty")
	}

	entry, err := domain.NewManualAdjustment(actorID, points, reason, authority.ID, s.clock())
	if err != nil {
		return nil, err
	}
	if err := s.ledger.Append(ctx, entry); err != nil {
		log.Error("failed to append manual adjustment",
			slog.String("error", err.Error()),
			slog.String("actor_id", actorID.String()))
		return nil, translateStoreError("award points", "ledger entry", entry.ID, err)
	}

	log.Info("manual points awarded",
		slog.String("actor_id", actorID.String()),
		slog.String("authority_id", authority.ID.String()),
		slog.Int("points", points))

	invalidateLeaderboard(ctx, s.cache, log)
	notify(ctx, s.notifier, log, events.NewNotification(actorID,
		"Points Awarded",
		fmt.Sprintf("You received %d points: %s", points, entry.Reason),
		events.CategoryPointsEarned))
	return entry, nil
}

// GetHistory returns one page of actorID's ledger, newest first, with the
// total entry count and the actor's current total. The three reads share one
// snapshot, so the counts always describe the returned entries.
func (s *LedgerService) GetHistory(ctx context.Context, actorID uuid.UUID, page, limit int) (*domain.HistoryPage, error) {
	page, limit, err := normalizePage(page, limit)
	if err != nil {
		return nil, err
	}

	var (
		entries []*domain.LedgerEntry
		count   int
		total   int64
	)
	err = s.tx.RunReadOnly(ctx, func(ctx context.Context, tx *sql.Tx) error {
		ledger := s.ledger.WithTx(tx)
		var err error
		if entries, err = ledger.ListByActor(ctx, actorID, limit, (page-1)*limit); err != nil {
			return fmt.Errorf("list history: %w", err)
		}
		if count, err = ledger.CountByActor(ctx, actorID); err != nil {
			return fmt.Errorf("count history: %w", err)
		}
		if total, err = ledger.SumForActor(ctx, actorID, nil); err != nil {
			return fmt.Errorf("sum points: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, domain.NewPersistenceError("read history", err)
	}

	return &domain.HistoryPage{
		Entries:      entries,
		Page:         page,
		Limit:        limit,
		TotalEntries: count,
		TotalPages:   totalPages(count, limit),
		CurrentTotal: total,
	}, nil
}

// GetTotal returns the sum of every ledger entry for actorID.
func (s *LedgerService) GetTotal(ctx context.Context, actorID uuid.UUID) (int64, error) {
	total, err := s.ledger.SumForActor(ctx, actorID, nil)
	if err != nil {
		return 0, domain.NewPersistenceError("sum points", err)
	}
	return total, nil
}

// GetStats returns actorID's weekly, monthly and all-time totals, read from
// one snapshot.
func (s *LedgerService) GetStats(ctx context.Context, actorID uuid.UUID) (*domain.PointsStats, error) {
	now := s.clock()
	stats := &domain.PointsStats{ActorID: actorID}

	err := s.tx.RunReadOnly(ctx, func(ctx context.Context, tx *sql.Tx) error {
		ledger := s.ledger.WithTx(tx)
		for _, w := range []struct {
			window domain.LeaderboardWindow
			dst    *int64
		}{
			{domain.WindowWeekly, &stats.WeekPoints},
			{domain.WindowMonthly, &stats.MonthPoints},
			{domain.WindowAllTime, &stats.TotalPoints},
		} {
			sum, err := ledger.SumForActor(ctx, actorID, w.window.Since(now))
			if err != nil {
				return err
			}
			*w.dst = sum
		}
		return nil
	})
	if err != nil {
		return nil, domain.NewPersistenceError("sum points", err)
	}
	return stats, nil
}

// GetLeaderboard ranks actors by points earned within window, highest first,
// ties broken by actor id.
func (s *LedgerService) GetLeaderboard(
	ctx context.Context,
	window domain.LeaderboardWindow,
	limit int,
) ([]domain.LeaderboardEntry, error) {
	if limit == 0 {
		limit = DefaultLeaderboardLimit
	}
	if limit < 1 || limit > MaxLeaderboardLimit {
		return nil, domain.NewValidationError("limit", fmt.Sprintf("must be between 1 and %d", MaxLeaderboardLimit))
	}
	window, err := domain.ParseLeaderboardWindow(string(window))
	if err != nil {
		return nil, err
	}

	board, err := s.cache.Fetch(ctx, window, limit, func(ctx context.Context) ([]domain.LeaderboardEntry, error) {
		return s.ledger.Leaderboard(ctx, window.Since(s.clock()), limit)
	})
	if err != nil {
		return nil, translateStoreError("leaderboard", "leaderboard", uuid.Nil, err)
	}
	return board, nil
}

// SettleWeek freezes the ranking of points earned in [start, end), records
// the first-ranked actor as the winner and congratulates them. start and end
// are truncated to UTC midnight. Each period start can be settled once; a
// second attempt is a ConflictError.
func (s *LedgerService) SettleWeek(
	ctx context.Context,
	start, end time.Time,
	notes string,
	authority domain.Actor,
) (*domain.WeeklySettlement, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if !s.authz.Authorize(ctx, authority, domain.PermissionSettleWeek, nil) {
		return nil, domain.NewAuthorizationError(authority.ID, "settle week", "missing settle_week permission")
	}
	start, end, err := domain.SettlementPeriod(start, end)
	if err != nil {
		return nil, err
	}

	var settlement *domain.WeeklySettlement
	err = s.tx.RunInTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		settlements := s.settlements.WithTx(tx)
		rankings, err := settlements.WeeklyRanking(ctx, start, end)
		if err != nil {
			return err
		}
		settlement, err = domain.NewWeeklySettlement(start, end, rankings, notes, authority.ID, s.clock())
		if err != nil {
			return err
		}
		return settlements.Create(ctx, settlement)
	})
	if err != nil {
		if errors.Is(err, store.ErrSettlementExists) {
			return nil, domain.NewConflictError("settlement",
				fmt.Sprintf("the week starting %s is already settled", start.Format(time.DateOnly)))
		}
		if isDomainError(err) {
			return nil, err
		}
		log.Error("failed to settle week",
			slog.String("error", err.Error()),
			slog.Time("week_start", start))
		return nil, domain.NewPersistenceError("settle week", err)
	}

	winner := settlement.Winner()
	log.Info("week settled",
		slog.String("settlement_id", settlement.ID.String()),
		slog.Time("week_start", start),
		slog.String("winner_id", winner.ActorID.String()),
		slog.Int64("winner_points", winner.TotalPoints),
		slog.Int("participants", len(settlement.Rankings)))

	notify(ctx, s.notifier, log, events.NewNotification(winner.ActorID,
		"Weekly Champion!",
		fmt.Sprintf("Congratulations! You won this week with %d points!", winner.TotalPoints),
		events.CategorySystem))
	return settlement, nil
}

// ListSettlements returns recorded settlements, newest period first.
func (s *LedgerService) ListSettlements(ctx context.Context, limit int) ([]*domain.WeeklySettlement, error) {
	if limit == 0 {
		limit = DefaultSettlementLimit
	}
	if limit < 1 || limit > MaxPageSize {
		return nil, domain.NewValidationError("limit", fmt.Sprintf("must be between 1 and %d", MaxPageSize))
	}

	settlements, err := s.settlements.List(ctx, limit)
	if err != nil {
		return nil, domain.NewPersistenceError("list settlements", err)
	}
	return settlements, nil
}
