package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/chorepoints/internal/domain"
)

// LedgerStore defines the interface for the append-only points ledger.
// There is no update or delete: corrections are new entries.
type LedgerStore interface {
	// Append records a new entry. Returns ErrTaskAwardExists when the entry
	// is a task award and the task already has one.
	Append(ctx context.Context, entry *domain.LedgerEntry) error

	// SumForActor returns the sum of actorID's entries created at or after
	// since, or of all entries when since is nil.
	SumForActor(ctx context.Context, actorID uuid.UUID, since *time.Time) (int64, error)

	// ListByActor returns actorID's entries newest first.
	ListByActor(ctx context.Context, actorID uuid.UUID, limit, offset int) ([]*domain.LedgerEntry, error)

	// CountByActor returns the number of entries recorded for actorID.
	CountByActor(ctx context.Context, actorID uuid.UUID) (int, error)

	// Leaderboard ranks actors by the sum of their entries created at or
	// after since (all entries when nil), highest first, ties broken by
	// actor id ascending.
	Leaderboard(ctx context.Context, since *time.Time, limit int) ([]domain.LeaderboardEntry, error)

	// AwardForTask returns the task_award entry for taskID.
	// Returns ErrLedgerEntryNotFound when the task has not been awarded.
	AwardForTask(ctx context.Context, taskID uuid.UUID) (*domain.LedgerEntry, error)

	// WithTx returns a new LedgerStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) LedgerStore
}
