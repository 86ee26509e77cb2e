package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/chorepoints/internal/domain"
	"github.com/phrazzld/chorepoints/internal/platform/logger"
	"github.com/phrazzld/chorepoints/internal/store"
)

// PostgresSettlementStore implements store.SettlementStore on the
// weekly_settlements and weekly_rankings tables.
type PostgresSettlementStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresSettlementStore creates a new PostgreSQL implementation of the SettlementStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresSettlementStore(db store.DBTX, logger *slog.Logger) *PostgresSettlementStore {
	if db == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresSettlementStore{
		db:     db,
		logger: logger.With(slog.String("component", "settlement_store")),
	}
}

var _ store.SettlementStore = (*PostgresSettlementStore)(nil)

// WithTx implements store.SettlementStore.WithTx
func (s *PostgresSettlementStore) WithTx(tx *sql.Tx) store.SettlementStore {
	return &PostgresSettlementStore{
		db:     tx,
		logger: s.logger,
	}
}

// WeeklyRanking implements store.SettlementStore.WeeklyRanking
func (s *PostgresSettlementStore) WeeklyRanking(
	ctx context.Context,
	start, end time.Time,
) ([]domain.WeeklyRanking, error) {
	query := `WITH earned AS (
			SELECT actor_id, SUM(points) AS total
			FROM points_history
			WHERE created_at >= $1 AND created_at < $2
			GROUP BY actor_id
			HAVING SUM(points) > 0
		)
		SELECT e.actor_id, e.total,
			(SELECT COUNT(*) FROM tasks t
				WHERE t.assignee_id = e.actor_id
				AND t.status = 'approved'
				AND t.approved_at >= $1 AND t.approved_at < $2) AS tasks_completed
		FROM earned e
		ORDER BY e.total DESC, e.actor_id ASC`

	rows, err := s.db.QueryContext(ctx, query, start.UTC(), end.UTC())
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to query weekly ranking",
			slog.String("error", err.Error()))
		return nil, store.NewStoreError("weekly settlement", "rank", "query failed", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	rankings := []domain.WeeklyRanking{}
	for rows.Next() {
		var r domain.WeeklyRanking
		if err := rows.Scan(&r.ActorID, &r.TotalPoints, &r.TasksCompleted); err != nil {
			return nil, store.NewStoreError("weekly settlement", "rank", "scan failed", err)
		}
		r.Rank = len(rankings) + 1
		rankings = append(rankings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("weekly settlement", "rank", "iteration failed", err)
	}
	return rankings, nil
}

// Create implements store.SettlementStore.Create. The caller runs it inside
// a transaction so the settlement and its rankings land together.
func (s *PostgresSettlementStore) Create(ctx context.Context, settlement *domain.WeeklySettlement) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := settlement.Validate(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO weekly_settlements
			(id, week_start, week_end, winner_id, notes, settled_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		settlement.ID,
		settlement.WeekStart.UTC(),
		settlement.WeekEnd.UTC(),
		settlement.WinnerID,
		settlement.Notes,
		settlement.SettledBy,
		settlement.CreatedAt.UTC(),
	)
	if err != nil {
		mapped := MapError(err)
		if store.IsDuplicateError(mapped) {
			log.Warn("week already settled",
				slog.Time("week_start", settlement.WeekStart))
			return mapped
		}
		log.Error("failed to insert weekly settlement",
			slog.String("error", err.Error()))
		return store.NewStoreError("weekly settlement", "create", "insert failed", mapped)
	}

	for _, r := range settlement.Rankings {
		_, err := s.db.ExecContext(ctx, `INSERT INTO weekly_rankings
				(settlement_id, actor_id, rank_position, total_points, tasks_completed)
			VALUES ($1, $2, $3, $4, $5)`,
			settlement.ID, r.ActorID, r.Rank, r.TotalPoints, r.TasksCompleted)
		if err != nil {
			log.Error("failed to insert weekly ranking",
				slog.String("error", err.Error()),
				slog.String("actor_id", r.ActorID.String()))
			return store.NewStoreError("weekly settlement", "create", "ranking insert failed", MapError(err))
		}
	}

	log.Info("weekly settlement recorded",
		slog.String("settlement_id", settlement.ID.String()),
		slog.String("winner_id", settlement.WinnerID.String()),
		slog.Int("participants", len(settlement.Rankings)))
	return nil
}

// List implements store.SettlementStore.List
func (s *PostgresSettlementStore) List(ctx context.Context, limit int) ([]*domain.WeeklySettlement, error) {
	query := `SELECT id, week_start, week_end, winner_id, notes, settled_by, created_at
		FROM weekly_settlements
		ORDER BY week_start DESC
		LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, store.NewStoreError("weekly settlement", "list", "query failed", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	settlements := []*domain.WeeklySettlement{}
	for rows.Next() {
		var ws domain.WeeklySettlement
		err := rows.Scan(&ws.ID, &ws.WeekStart, &ws.WeekEnd, &ws.WinnerID, &ws.Notes, &ws.SettledBy, &ws.CreatedAt)
		if err != nil {
			return nil, store.NewStoreError("weekly settlement", "list", "scan failed", err)
		}
		ws.WeekStart = ws.WeekStart.UTC()
		ws.WeekEnd = ws.WeekEnd.UTC()
		ws.CreatedAt = ws.CreatedAt.UTC()
		settlements = append(settlements, &ws)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("weekly settlement", "list", "iteration failed", err)
	}
	return settlements, nil
}
