package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/chorepoints/internal/domain"
	"github.com/phrazzld/chorepoints/internal/platform/logger"
	"github.com/phrazzld/chorepoints/internal/store"
)

const ledgerColumns = `id, actor_id, points, kind, reason, task_id, created_by, created_at`

// PostgresLedgerStore implements store.LedgerStore on the points_history table.
type PostgresLedgerStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresLedgerStore creates a new PostgreSQL implementation of the LedgerStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresLedgerStore(db store.DBTX, logger *slog.Logger) *PostgresLedgerStore {
	if db == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresLedgerStore{
		db:     db,
		logger: logger.With(slog.String("component", "ledger_store")),
	}
}

var _ store.LedgerStore = (*PostgresLedgerStore)(nil)

// WithTx implements store.LedgerStore.WithTx
func (s *PostgresLedgerStore) WithTx(tx *sql.Tx) store.LedgerStore {
	return &PostgresLedgerStore{
		db:     tx,
		logger: s.logger,
	}
}

// Append implements store.LedgerStore.Append
func (s *PostgresLedgerStore) Append(ctx context.Context, entry *domain.LedgerEntry) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := entry.Validate(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	query := `INSERT INTO points_history (` + ledgerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		entry.ActorID,
		entry.Points,
		entry.Kind,
		entry.Reason,
		entry.TaskID,
		entry.CreatedBy,
		entry.CreatedAt,
	)
	if err != nil {
		mapped := MapError(err)
		if store.IsDuplicateError(mapped) {
			log.Warn("ledger entry rejected as duplicate",
				slog.String("entry_id", entry.ID.String()),
				slog.String("kind", string(entry.Kind)))
			return mapped
		}
		log.Error("failed to append ledger entry",
			slog.String("error", err.Error()),
			slog.String("actor_id", entry.ActorID.String()))
		return store.NewStoreError("ledger entry", "append", "insert failed", mapped)
	}

	log.Info("ledger entry appended",
		slog.String("entry_id", entry.ID.String()),
		slog.String("actor_id", entry.ActorID.String()),
		slog.Int("points", entry.Points),
		slog.String("kind", string(entry.Kind)))
	return nil
}

// SumForActor implements store.LedgerStore.SumForActor
func (s *PostgresLedgerStore) SumForActor(ctx context.Context, actorID uuid.UUID, since *time.Time) (int64, error) {
	query := `SELECT COALESCE(SUM(points), 0) FROM points_history
		WHERE actor_id = $1 AND ($2::timestamptz IS NULL OR created_at >= $2)`

	var total int64
	if err := s.db.QueryRowContext(ctx, query, actorID, utcPtr(since)).Scan(&total); err != nil {
		return 0, store.NewStoreError("ledger entry", "sum", "query failed", MapError(err))
	}
	return total, nil
}

// ListByActor implements store.LedgerStore.ListByActor
func (s *PostgresLedgerStore) ListByActor(
	ctx context.Context,
	actorID uuid.UUID,
	limit, offset int,
) ([]*domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM points_history
		WHERE actor_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	rows, err := s.db.QueryContext(ctx, query, actorID, limit, offset)
	if err != nil {
		return nil, store.NewStoreError("ledger entry", "list", "query failed", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	entries := []*domain.LedgerEntry{}
	for rows.Next() {
		entry, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, store.NewStoreError("ledger entry", "list", "scan failed", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("ledger entry", "list", "iteration failed", err)
	}
	return entries, nil
}

// CountByActor implements store.LedgerStore.CountByActor
func (s *PostgresLedgerStore) CountByActor(ctx context.Context, actorID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM points_history WHERE actor_id = $1`, actorID).
		Scan(&count)
	if err != nil {
		return 0, store.NewStoreError("ledger entry", "count", "query failed", MapError(err))
	}
	return count, nil
}

// Leaderboard implements store.LedgerStore.Leaderboard
func (s *PostgresLedgerStore) Leaderboard(
	ctx context.Context,
	since *time.Time,
	limit int,
) ([]domain.LeaderboardEntry, error) {
	query := `SELECT actor_id, SUM(points) AS total
		FROM points_history
		WHERE $1::timestamptz IS NULL OR created_at >= $1
		GROUP BY actor_id
		ORDER BY total DESC, actor_id ASC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, utcPtr(since), limit)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to query leaderboard",
			slog.String("error", err.Error()))
		return nil, store.NewStoreError("ledger entry", "leaderboard", "query failed", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	board := []domain.LeaderboardEntry{}
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.ActorID, &e.TotalPoints); err != nil {
			return nil, store.NewStoreError("ledger entry", "leaderboard", "scan failed", err)
		}
		e.Rank = len(board) + 1
		board = append(board, e)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("ledger entry", "leaderboard", "iteration failed", err)
	}
	return board, nil
}

// AwardForTask implements store.LedgerStore.AwardForTask
func (s *PostgresLedgerStore) AwardForTask(ctx context.Context, taskID uuid.UUID) (*domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM points_history
		WHERE task_id = $1 AND kind = 'task_award'`

	entry, err := scanLedgerEntry(s.db.QueryRowContext(ctx, query, taskID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrLedgerEntryNotFound
		}
		return nil, store.NewStoreError("ledger entry", "get award", "query failed", MapError(err))
	}
	return entry, nil
}

func scanLedgerEntry(row rowScanner) (*domain.LedgerEntry, error) {
	var (
		entry             domain.LedgerEntry
		taskID, createdBy uuid.NullUUID
	)
	err := row.Scan(
		&entry.ID,
		&entry.ActorID,
		&entry.Points,
		&entry.Kind,
		&entry.Reason,
		&taskID,
		&createdBy,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	entry.TaskID = uuidPtr(taskID)
	entry.CreatedBy = uuidPtr(createdBy)
	entry.CreatedAt = entry.CreatedAt.UTC()
	return &entry, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
