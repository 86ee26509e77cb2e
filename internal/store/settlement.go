package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/phrazzld/chorepoints/internal/domain"
)

// SettlementStore defines the interface for weekly settlement persistence.
type SettlementStore interface {
	// WeeklyRanking ranks actors by the points they earned in [start, end),
	// highest first, ties broken by actor id ascending. Each row also counts
	// the tasks the actor had approved in the same period. Actors whose
	// total is not positive are omitted.
	WeeklyRanking(ctx context.Context, start, end time.Time) ([]domain.WeeklyRanking, error)

	// Create saves a settlement together with its rankings.
	// Returns ErrSettlementExists when the period's start is already settled.
	Create(ctx context.Context, settlement *domain.WeeklySettlement) error

	// List returns settlements newest period first, without their rankings.
	List(ctx context.Context, limit int) ([]*domain.WeeklySettlement, error)

	// WithTx returns a new SettlementStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) SettlementStore
}
