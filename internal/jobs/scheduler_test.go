package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/phrazzld/chorepoints/internal/domain"
	"github.com/phrazzld/chorepoints/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingJob struct {
	name string
	err  error

	mu   sync.Mutex
	runs []time.Time
	done chan struct{}
}

func newRecordingJob(name string) *recordingJob {
	return &recordingJob{name: name, done: make(chan struct{}, 10)}
}

func (j *recordingJob) Name() string { return j.name }

func (j *recordingJob) Run(_ context.Context, now time.Time) error {
	j.mu.Lock()
	j.runs = append(j.runs, now)
	j.mu.Unlock()
	j.done <- struct{}{}
	return j.err
}

func (j *recordingJob) Runs() []time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]time.Time(nil), j.runs...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseDailyAt(t *testing.T) {
	t.Parallel()

	at, err := ParseDailyAt("08:30")
	require.NoError(t, err)
	assert.Equal(t, DailyAt{Hour: 8, Minute: 30}, at)

	for _, bad := range []string{"", "8", "25:00", "08:61", "noon"} {
		_, err := ParseDailyAt(bad)
		assert.Error(t, err, bad)
	}
}

func TestDailyAt_Next(t *testing.T) {
	t.Parallel()

	at := DailyAt{Hour: 8}
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"earlier the same day", time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC), time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)},
		{"exactly on the slot", time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC), time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC)},
		{"later the same day", time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC), time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC)},
		{"month boundary", time.Date(2026, 2, 28, 9, 0, 0, 0, time.UTC), time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)},
		{"non-UTC input", time.Date(2026, 3, 2, 7, 0, 0, 0, time.FixedZone("CET", 3600)), time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(at.Next(tt.now)), "got %s", at.Next(tt.now))
		})
	}
}

func TestScheduler_RunsJobAtItsSlot(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)
	fire := make(chan time.Time)
	waits := make(chan time.Duration, 10)

	s := NewScheduler(quietLogger())
	s.clock = func() time.Time { return now }
	s.after = func(d time.Duration) <-chan time.Time {
		waits <- d
		return fire
	}

	job := newRecordingJob("reminders")
	s.Add(job, DailyAt{Hour: 8})
	s.Start()

	assert.Equal(t, time.Hour, <-waits)
	fire <- now

	select {
	case <-job.done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run")
	}
	s.Stop()

	runs := job.Runs()
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Equal(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)))
}

func TestScheduler_RunOnceReportsFailures(t *testing.T) {
	t.Parallel()

	s := NewScheduler(quietLogger())
	var failed []string
	s.SetErrorHandler(func(job Job, err error) {
		failed = append(failed, job.Name()+": "+err.Error())
	})

	job := newRecordingJob("generation")
	job.err = errors.New("database down")
	s.RunOnce(job, time.Now())

	s.RunOnce(panickingJob{}, time.Now())

	require.Len(t, failed, 2)
	assert.Equal(t, "generation: database down", failed[0])
	assert.Contains(t, failed[1], "panic: boom")
	s.Stop()
}

type panickingJob struct{}

func (panickingJob) Name() string { return "panicking" }

func (panickingJob) Run(context.Context, time.Time) error { panic("boom") }

func TestScheduler_StopWithoutJobs(t *testing.T) {
	t.Parallel()
	s := NewScheduler(nil)
	s.Start()
	s.Stop()
}

type fakeGenerator struct {
	asOf time.Time
	err  error
}

func (f *fakeGenerator) RunRecurringGeneration(_ context.Context, asOf time.Time) (domain.GenerationResult, error) {
	f.asOf = asOf
	return domain.GenerationResult{Generated: 1}, f.err
}

type fakeReminder struct {
	err error
}

func (f *fakeReminder) SendDueSoonReminders(context.Context, time.Time) (service.ReminderResult, error) {
	return service.ReminderResult{}, f.err
}

func TestJobs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	gen := &fakeGenerator{}
	job := GenerationJob{Generator: gen}
	assert.Equal(t, "recurring_generation", job.Name())
	require.NoError(t, job.Run(ctx, now))
	assert.True(t, gen.asOf.Equal(now))

	gen.err = domain.NewPersistenceError("list recurring templates", errors.New("timeout"))
	assert.ErrorIs(t, job.Run(ctx, now), domain.ErrPersistence)

	reminders := ReminderJob{Reminder: &fakeReminder{}}
	assert.Equal(t, "due_soon_reminders", reminders.Name())
	assert.NoError(t, reminders.Run(ctx, now))
	assert.Error(t, ReminderJob{Reminder: &fakeReminder{err: errors.New("x")}}.Run(ctx, now))
}
