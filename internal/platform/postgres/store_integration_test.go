//go:build integration

package postgres_test

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/chorepoints/internal/domain"
	"github.com/phrazzld/chorepoints/internal/platform/postgres"
	"github.com/phrazzld/chorepoints/internal/store"
	"github.com/phrazzld/chorepoints/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTask(t *testing.T, params domain.NewTaskParams) *domain.Task {
	t.Helper()
	if params.Title == "" {
		params.Title = "Water the plants"
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

func TestPostgresTaskStore_Lifecycle(t *testing.T) {
	t.Parallel()
	db := testdb.GetTestDBWithT(t)

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		ctx := context.Background()
		tasks := postgres.NewPostgresTaskStore(tx, nil)
		ledger := postgres.NewPostgresLedgerStore(tx, nil)

		worker := uuid.New()
		approver := uuid.New()
		task := newTask(t, domain.NewTaskParams{ReservedFor: &worker, Metadata: []byte(`{"room":"hall"}`)})
		require.NoError(t, tasks.Create(ctx, task))

		fetched, err := tasks.GetByID(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, task.Title, fetched.Title)
		assert.Equal(t, worker, *fetched.ReservedFor)
		assert.JSONEq(t, `{"room":"hall"}`, string(fetched.Metadata))

		_, err = tasks.Claim(ctx, task.ID, uuid.New(), time.Now())
		assert.ErrorIs(t, err, store.ErrConflict, "reserved task must reject other claimants")

		current, err := tasks.Claim(ctx, task.ID, worker, time.Now())
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusClaimed, current.Status)

		for _, action := range []domain.Action{domain.ActionStart, domain.ActionComplete} {
			tr, err := domain.LookupTransition(current, action)
			require.NoError(t, err)
			next, err := tr.Apply(current, domain.TransitionInput{ActorID: worker})
			require.NoError(t, err)
			require.NoError(t, tasks.UpdateTransition(ctx, next, current.Status, current.Version))
			current = next
		}

		tr, err := domain.LookupTransition(current, domain.ActionApprove)
		require.NoError(t, err)
		approved, err := tr.Apply(current, domain.TransitionInput{ActorID: approver})
		require.NoError(t, err)
		require.NoError(t, tasks.UpdateTransition(ctx, approved, current.Status, current.Version))

		assert.ErrorIs(t, tasks.UpdateTransition(ctx, approved, current.Status, current.Version), store.ErrConflict,
			"a stale version must not match")

		award, err := domain.NewTaskAward(approved, approver, time.Now())
		require.NoError(t, err)
		require.NoError(t, ledger.Append(ctx, award))

		second, err := domain.NewTaskAward(approved, approver, time.Now())
		require.NoError(t, err)
		assert.ErrorIs(t, ledger.Append(ctx, second), store.ErrTaskAwardExists)

		total, err := ledger.SumForActor(ctx, worker, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(task.AwardPoints), total)

		assert.ErrorIs(t, tasks.Delete(ctx, task.ID, approved.Version), store.ErrConflict,
			"approved tasks are not deletable")
	})
}

func TestPostgresTaskStore_RecurringInstanceUniqueness(t *testing.T) {
	t.Parallel()
	db := testdb.GetTestDBWithT(t)

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		ctx := context.Background()
		tasks := postgres.NewPostgresTaskStore(tx, nil)

		template := newTask(t, domain.NewTaskParams{Recurrence: domain.RecurrenceDaily})
		require.NoError(t, tasks.Create(ctx, template))

		due := domain.StartOfDay(time.Now()).AddDate(0, 0, 1)
		first := newTask(t, domain.NewTaskParams{TemplateID: &template.ID, DueDate: &due})
		require.NoError(t, tasks.Create(ctx, first))

		exists, err := tasks.InstanceExists(ctx, template.ID, due, time.Now().Add(-24*time.Hour))
		require.NoError(t, err)
		assert.True(t, exists)

		dup := newTask(t, domain.NewTaskParams{TemplateID: &template.ID, DueDate: &due})
		assert.ErrorIs(t, tasks.Create(ctx, dup), store.ErrInstanceExists)
	})
}

func TestPostgresTaskStore_DueSoonAndReminders(t *testing.T) {
	t.Parallel()
	db := testdb.GetTestDBWithT(t)

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		ctx := context.Background()
		tasks := postgres.NewPostgresTaskStore(tx, nil)
		now := time.Now().UTC()

		soon := now.Add(3 * time.Hour)
		later := now.Add(72 * time.Hour)
		dueSoon := newTask(t, domain.NewTaskParams{DueDate: &soon})
		dueLater := newTask(t, domain.NewTaskParams{DueDate: &later})
		require.NoError(t, tasks.Create(ctx, dueSoon))
		require.NoError(t, tasks.Create(ctx, dueLater))

		found, err := tasks.ListDueSoon(ctx, now, now.Add(24*time.Hour), now.Add(-24*time.Hour))
		require.NoError(t, err)
		ids := map[uuid.UUID]bool{}
		for _, task := range found {
			ids[task.ID] = true
		}
		assert.True(t, ids[dueSoon.ID])
		assert.False(t, ids[dueLater.ID])

		marked, err := tasks.MarkReminded(ctx, dueSoon.ID, now, now.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.True(t, marked)

		marked, err = tasks.MarkReminded(ctx, dueSoon.ID, now, now.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.False(t, marked, "a second reminder within the window must lose")
	})
}

// TestPostgresTaskStore_ConcurrentClaim commits through the pool so that the
// claimants really race on the same row.
func TestPostgresTaskStore_ConcurrentClaim(t *testing.T) {
	db := testdb.GetTestDBWithT(t)

	ctx := context.Background()
	tasks := postgres.NewPostgresTaskStore(db, nil)
	task := newTask(t, domain.NewTaskParams{})
	require.NoError(t, tasks.Create(ctx, task))
	t.Cleanup(func() {
		_, _ = db.ExecContext(context.Background(), `DELETE FROM tasks WHERE id = $1`, task.ID)
	})

	const claimants = 8
	var (
		wg        sync.WaitGroup
		winners   atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tasks.Claim(ctx, task.ID, uuid.New(), time.Now())
			switch {
			case err == nil:
				winners.Add(1)
			case store.IsConflictError(err):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected claim error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
	assert.Equal(t, int32(claimants-1), conflicts.Load())
}

func TestPostgresLedgerStore_Leaderboard(t *testing.T) {
	t.Parallel()
	db := testdb.GetTestDBWithT(t)

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		ctx := context.Background()
		ledger := postgres.NewPostgresLedgerStore(tx, nil)
		authority := uuid.New()

		// Lower UUID wins ties.
		a := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
		b := uuid.MustParse("00000000-0000-0000-0000-00000000000b")
		old := time.Now().Add(-40 * 24 * time.Hour)

		for _, e := range []struct {
			actor  uuid.UUID
			points int
			at     time.Time
		}{
			{a, 50, time.Now()},
			{b, 30, time.Now()},
			{b, 20, time.Now()},
			{b, 100, old},
		} {
			entry, err := domain.NewManualAdjustment(e.actor, e.points, "seed", authority, e.at)
			require.NoError(t, err)
			require.NoError(t, ledger.Append(ctx, entry))
		}

		since := domain.WindowMonthly.Since(time.Now())
		board, err := ledger.Leaderboard(ctx, since, 100)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(board), 2)

		ranks := map[uuid.UUID]domain.LeaderboardEntry{}
		for _, e := range board {
			ranks[e.ActorID] = e
		}
		assert.Equal(t, int64(50), ranks[a].TotalPoints)
		assert.Equal(t, int64(50), ranks[b].TotalPoints)
		assert.Less(t, ranks[a].Rank, ranks[b].Rank)

		total, err := ledger.SumForActor(ctx, b, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(150), total)

		count, err := ledger.CountByActor(ctx, b)
		require.NoError(t, err)
		assert.Equal(t, 3, count)

		history, err := ledger.ListByActor(ctx, b, 2, 0)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.False(t, history[0].CreatedAt.Before(history[1].CreatedAt), "newest first")
	})
}
