package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/phrazzld/chorepoints/internal/domain"
	"github.com/phrazzld/chorepoints/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockSettlementStore(t *testing.T) (*PostgresSettlementStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresSettlementStore(db, nil), mock
}

func sampleSettlement(t *testing.T) *domain.WeeklySettlement {
	t.Helper()
	start := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	rankings := []domain.WeeklyRanking{
		{ActorID: uuid.New(), Rank: 1, TotalPoints: 80, TasksCompleted: 3},
		{ActorID: uuid.New(), Rank: 2, TotalPoints: 25, TasksCompleted: 1},
	}
	s, err := domain.NewWeeklySettlement(start, start.AddDate(0, 0, 7), rankings, "", uuid.New(), start.AddDate(0, 0, 7))
	require.NoError(t, err)
	return s
}

func TestPostgresSettlementStore_WeeklyRanking(t *testing.T) {
	t.Parallel()
	s, mock := newMockSettlementStore(t)

	start := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 7)
	first, second := uuid.New(), uuid.New()
	mock.ExpectQuery(`WITH earned AS .*HAVING SUM\(points\) > 0.*ORDER BY e.total DESC, e.actor_id ASC`).
		WithArgs(start, end).
		WillReturnRows(sqlmock.NewRows([]string{"actor_id", "total", "tasks_completed"}).
			AddRow(first.String(), int64(80), int64(3)).
			AddRow(second.String(), int64(25), int64(0)))

	rankings, err := s.WeeklyRanking(context.Background(), start, end)
	require.NoError(t, err)
	require.Len(t, rankings, 2)
	assert.Equal(t, domain.WeeklyRanking{ActorID: first, Rank: 1, TotalPoints: 80, TasksCompleted: 3}, rankings[0])
	assert.Equal(t, 2, rankings[1].Rank)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSettlementStore_Create(t *testing.T) {
	t.Parallel()
	s, mock := newMockSettlementStore(t)
	settlement := sampleSettlement(t)

	mock.ExpectExec(`INSERT INTO weekly_settlements`).WillReturnResult(sqlmock.NewResult(0, 1))
	for range settlement.Rankings {
		mock.ExpectExec(`INSERT INTO weekly_rankings`).WillReturnResult(sqlmock.NewResult(0, 1))
	}
	require.NoError(t, s.Create(context.Background(), settlement))

	mock.ExpectExec(`INSERT INTO weekly_settlements`).
		WillReturnError(newUniqueViolation(settledWeekIndex))
	assert.ErrorIs(t, s.Create(context.Background(), settlement), store.ErrSettlementExists)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSettlementStore_List(t *testing.T) {
	t.Parallel()
	s, mock := newMockSettlementStore(t)
	settlement := sampleSettlement(t)

	mock.ExpectQuery(`SELECT id, week_start, week_end, winner_id, notes, settled_by, created_at FROM weekly_settlements`).
		WithArgs(20).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "week_start", "week_end", "winner_id", "notes", "settled_by", "created_at",
		}).AddRow(
			settlement.ID.String(), settlement.WeekStart, settlement.WeekEnd, settlement.WinnerID.String(),
			"", settlement.SettledBy.String(), settlement.CreatedAt,
		))

	got, err := s.List(context.Background(), 20)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, settlement.ID, got[0].ID)
	assert.Equal(t, settlement.WinnerID, got[0].WinnerID)
	assert.Equal(t, settlement.WeekStart, got[0].WeekStart)
	assert.Empty(t, got[0].Rankings)
	assert.NoError(t, mock.ExpectationsWereMet())
}
