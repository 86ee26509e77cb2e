package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DailyAt is a time of day in UTC.
type DailyAt struct {
	Hour   int
	Minute int
}

// ParseDailyAt parses an HH:MM time of day.
func ParseDailyAt(s string) (DailyAt, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return DailyAt{}, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return DailyAt{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// Next returns the first instant strictly after now that falls on d.
func (d DailyAt) Next(now time.Time) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), d.Hour, d.Minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

type entry struct {
	job Job
	at  DailyAt
}

// Scheduler runs each registered job once a day at its configured time.
// A job that is still running when its next slot arrives is not started twice.
type Scheduler struct {
	entries    []entry
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	clock      func() time.Time
	after      func(d time.Duration) <-chan time.Time
	logger     *slog.Logger
	errHandler func(job Job, err error)
}

// NewScheduler creates a Scheduler with no jobs.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "scheduler"))

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		ctx:        ctx,
		cancelFunc: cancel,
		clock:      time.Now,
		after:      time.After,
		logger:     logger,
		errHandler: func(job Job, err error) {
			logger.Error("scheduled job failed",
				slog.String("job", job.Name()),
				slog.String("error", err.Error()))
		},
	}
}

// SetErrorHandler replaces the default handler, which logs the failure.
func (s *Scheduler) SetErrorHandler(handler func(job Job, err error)) {
	s.errHandler = handler
}

// Add registers job to run daily at at. Jobs must be added before Start.
func (s *Scheduler) Add(job Job, at DailyAt) {
	s.entries = append(s.entries, entry{job: job, at: at})
}

// Start launches one goroutine per registered job.
func (s *Scheduler) Start() {
	for _, e := range s.entries {
		s.wg.Add(1)
		go s.loop(e)
	}
	s.logger.Info("scheduler started", slog.Int("jobs", len(s.entries)))
}

// Stop cancels pending runs, lets running jobs observe cancellation, and
// waits for every loop to exit.
func (s *Scheduler) Stop() {
	s.cancelFunc()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(e entry) {
	defer s.wg.Done()

	log := s.logger.With(slog.String("job", e.job.Name()))
	for {
		next := e.at.Next(s.clock())
		log.Debug("next run scheduled", slog.Time("at", next))

		select {
		case <-s.ctx.Done():
			return
		case <-s.after(next.Sub(s.clock())):
			s.RunOnce(e.job, next)
		}
	}
}

// RunOnce executes job as of now on the scheduler's context, recovering
// from panics so a failing job never stops the loop.
func (s *Scheduler) RunOnce(job Job, now time.Time) {
	log := s.logger.With(slog.String("job", job.Name()))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			s.errHandler(job, fmt.Errorf("panic: %v", r))
		}
	}()

	log.Info("running scheduled job")
	if err := job.Run(s.ctx, now); err != nil {
		s.errHandler(job, err)
		return
	}
	log.Info("scheduled job finished", slog.Duration("elapsed", time.Since(start)))
}
