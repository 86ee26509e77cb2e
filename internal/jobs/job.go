package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/phrazzld/chorepoints/internal/domain"
	"github.com/phrazzld/chorepoints/internal/service"
)

// Job is a unit of scheduled batch work.
type Job interface {
	// Name identifies the job in logs.
	Name() string

	// Run executes the job as of now.
	Run(ctx context.Context, now time.Time) error
}

// Generator is the part of service.RecurringGenerator the scheduler uses.
type Generator interface {
	RunRecurringGeneration(ctx context.Context, asOf time.Time) (domain.GenerationResult, error)
}

// Reminder is the part of service.ReminderService the scheduler uses.
type Reminder interface {
	SendDueSoonReminders(ctx context.Context, now time.Time) (service.ReminderResult, error)
}

// GenerationJob generates recurring task instances.
type GenerationJob struct {
	Generator Generator
}

// Name implements Job.
func (GenerationJob) Name() string { return "recurring_generation" }

// Run implements Job. Per-template failures are already counted and logged
// by the generator; only a run that could not start is an error.
func (j GenerationJob) Run(ctx context.Context, now time.Time) error {
	if _, err := j.Generator.RunRecurringGeneration(ctx, now); err != nil {
		return fmt.Errorf("recurring generation: %w", err)
	}
	return nil
}

// ReminderJob sends due-soon reminders.
type ReminderJob struct {
	Reminder Reminder
}

// Name implements Job.
func (ReminderJob) Name() string { return "due_soon_reminders" }

// Run implements Job.
func (j ReminderJob) Run(ctx context.Context, now time.Time) error {
	if _, err := j.Reminder.SendDueSoonReminders(ctx, now); err != nil {
		return fmt.Errorf("due-soon reminders: %w", err)
	}
	return nil
}
