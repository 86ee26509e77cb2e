package mocks

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/chorepoints/internal/domain"
	"github.com/phrazzld/chorepoints/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPendingTask(t *testing.T, params domain.NewTaskParams) *domain.Task {
	t.Helper()
	if params.Title == "" {
		params.Title = "Fold laundry"
	}
	if params.Type == "" {
		params.Type = domain.TaskTypeChore
	}
	if params.CreatorID == uuid.Nil {
		params.CreatorID = uuid.New()
	}
	task, err := domain.NewTask(params, time.Now())
	require.NoError(t, err)
	return task
}

func TestMemoryStore_ClaimIsCompareAndSwap(t *testing.T) {
	t.Parallel()

	ms := NewMemoryStore()
	tasks := ms.Tasks()
	task := newPendingTask(t, domain.NewTaskParams{})
	require.NoError(t, tasks.Create(context.Background(), task))

	const claimants = 16
	var (
		wg      sync.WaitGroup
		winners atomic.Int32
	)
	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := tasks.Claim(context.Background(), task.ID, uuid.New(), time.Now()); err == nil {
				winners.Add(1)
			} else {
				assert.ErrorIs(t, err, store.ErrConflict)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
	stored := ms.Task(task.ID)
	assert.Equal(t, domain.TaskStatusClaimed, stored.Status)
	assert.Equal(t, 2, stored.Version)
	assert.NoError(t, stored.Validate())
}

func TestMemoryStore_ClaimRespectsReservation(t *testing.T) {
	t.Parallel()

	ms := NewMemoryStore()
	reserved := uuid.New()
	task := newPendingTask(t, domain.NewTaskParams{ReservedFor: &reserved})
	ms.Put(task)

	_, err := ms.Tasks().Claim(context.Background(), task.ID, uuid.New(), time.Now())
	assert.ErrorIs(t, err, store.ErrConflict)

	claimed, err := ms.Tasks().Claim(context.Background(), task.ID, reserved, time.Now())
	require.NoError(t, err)
	assert.Equal(t, reserved, *claimed.AssigneeID)
}

func TestMemoryStore_RunInTransactionRollsBack(t *testing.T) {
	t.Parallel()

	ms := NewMemoryStore()
	task := newPendingTask(t, domain.NewTaskParams{})
	ms.Put(task)

	boom := errors.New("boom")
	err := ms.RunInTransaction(context.Background(), func(ctx context.Context, _ *sql.Tx) error {
		_, err := ms.Tasks().Claim(ctx, task.ID, uuid.New(), time.Now())
		require.NoError(t, err)
		entry, err := domain.NewManualAdjustment(uuid.New(), 5, "bonus", uuid.New(), time.Now())
		require.NoError(t, err)
		require.NoError(t, ms.Ledger().Append(ctx, entry))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, domain.TaskStatusPending, ms.Task(task.ID).Status)
	assert.Empty(t, ms.Entries())
}

func TestMemoryStore_WriteHook(t *testing.T) {
	t.Parallel()

	ms := NewMemoryStore()
	failure := errors.New("disk full")
	ms.WriteHook = func(op string) error {
		if op == "append" {
			return failure
		}
		return nil
	}

	entry, err := domain.NewManualAdjustment(uuid.New(), 5, "bonus", uuid.New(), time.Now())
	require.NoError(t, err)
	assert.ErrorIs(t, ms.Ledger().Append(context.Background(), entry), failure)
	assert.NoError(t, ms.Tasks().Create(context.Background(), newPendingTask(t, domain.NewTaskParams{})))
}

func TestMemoryStore_UniqueConstraints(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ms := NewMemoryStore()

	template := uuid.New()
	due := domain.StartOfDay(time.Now()).AddDate(0, 0, 1)
	first := newPendingTask(t, domain.NewTaskParams{TemplateID: &template, DueDate: &due})
	second := newPendingTask(t, domain.NewTaskParams{TemplateID: &template, DueDate: &due})
	require.NoError(t, ms.Tasks().Create(ctx, first))
	assert.ErrorIs(t, ms.Tasks().Create(ctx, second), store.ErrInstanceExists)
	assert.ErrorIs(t, ms.Tasks().Create(ctx, second), store.ErrDuplicate)

	worker := uuid.New()
	first.AssigneeID = &worker
	award, err := domain.NewTaskAward(first, uuid.New(), time.Now())
	require.NoError(t, err)
	require.NoError(t, ms.Ledger().Append(ctx, award))

	again, err := domain.NewTaskAward(first, uuid.New(), time.Now())
	require.NoError(t, err)
	assert.ErrorIs(t, ms.Ledger().Append(ctx, again), store.ErrTaskAwardExists)

	got, err := ms.Ledger().AwardForTask(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, award.ID, got.ID)
}

func TestMemoryStore_DeleteKeepsLedger(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ms := NewMemoryStore()
	task := newPendingTask(t, domain.NewTaskParams{})
	ms.Put(task)

	worker := uuid.New()
	withWorker := task.Clone()
	withWorker.AssigneeID = &worker
	award, err := domain.NewTaskAward(withWorker, uuid.New(), time.Now())
	require.NoError(t, err)
	require.NoError(t, ms.Ledger().Append(ctx, award))

	assert.ErrorIs(t, ms.Tasks().Delete(ctx, task.ID, task.Version+1), store.ErrConflict)
	require.NoError(t, ms.Tasks().Delete(ctx, task.ID, task.Version))

	_, err = ms.Tasks().GetByID(ctx, task.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	entries := ms.Entries()
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].TaskID)
}

func TestMemoryStore_LeaderboardAndHistory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ms := NewMemoryStore()
	ledger := ms.Ledger()
	authority := uuid.New()

	a := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	b := uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	now := time.Now()
	for _, e := range []struct {
		actor  uuid.UUID
		points int
		at     time.Time
	}{
		{b, 20, now.Add(-2 * time.Hour)},
		{a, 50, now.Add(-time.Hour)},
		{b, 30, now},
		{b, 100, now.AddDate(0, -2, 0)},
	} {
		entry, err := domain.NewManualAdjustment(e.actor, e.points, "seed", authority, e.at)
		require.NoError(t, err)
		require.NoError(t, ledger.Append(ctx, entry))
	}

	board, err := ledger.Leaderboard(ctx, domain.WindowMonthly.Since(now), 10)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, domain.LeaderboardEntry{Rank: 1, ActorID: a, TotalPoints: 50}, board[0])
	assert.Equal(t, domain.LeaderboardEntry{Rank: 2, ActorID: b, TotalPoints: 50}, board[1])

	allTime, err := ledger.Leaderboard(ctx, nil, 1)
	require.NoError(t, err)
	require.Len(t, allTime, 1)
	assert.Equal(t, b, allTime[0].ActorID)

	total, err := ledger.SumForActor(ctx, b, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(150), total)

	history, err := ledger.ListByActor(ctx, b, 2, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 30, history[0].Points)
	assert.Equal(t, 20, history[1].Points)

	count, err := ledger.CountByActor(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestMemoryStore_Reminders(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ms := NewMemoryStore()
	now := time.Now().UTC()
	soon := now.Add(2 * time.Hour)
	task := newPendingTask(t, domain.NewTaskParams{DueDate: &soon})
	ms.Put(task)

	due, err := ms.Tasks().ListDueSoon(ctx, now, now.Add(24*time.Hour), now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)

	ok, err := ms.Tasks().MarkReminded(ctx, task.ID, now, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ms.Tasks().MarkReminded(ctx, task.ID, now, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	due, err = ms.Tasks().ListDueSoon(ctx, now, now.Add(24*time.Hour), now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due)
}
