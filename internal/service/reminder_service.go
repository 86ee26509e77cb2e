package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/chorepoints/internal/domain"
	"github.com/phrazzld/chorepoints/internal/events"
	"github.com/phrazzld/chorepoints/internal/platform/logger"
	"github.com/phrazzld/chorepoints/internal/store"
)

// reminderCooldown is how long a task stays quiet after a reminder.
const reminderCooldown = 24 * time.Hour

// ReminderResult reports a reminder run.
type ReminderResult struct {
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// ReminderService notifies actors about open tasks that are due soon.
type ReminderService struct {
	tasks    store.TaskStore
	notifier events.Notifier
	window   time.Duration
	logger   *slog.Logger
}

// NewReminderService creates a ReminderService.
func NewReminderService(
	tasks store.TaskStore,
	notifier events.Notifier,
	log *slog.Logger,
	opts ...Option,
) (*ReminderService, error) {
	if tasks == nil {
		return nil, missingDependency("reminder", "task store")
	}
	if notifier == nil {
		return nil, missingDependency("reminder", "notifier")
	}
	if log == nil {
		log = slog.Default()
	}

	o := applyOptions(opts)
	return &ReminderService{
		tasks:    tasks,
		notifier: notifier,
		window:   o.reminderWindow,
		logger:   log.With(slog.String("component", "reminder_service")),
	}, nil
}

// SendDueSoonReminders notifies the assignee, or the reserved claimant, of
// every open task due within the configured window that has not been
// reminded in the last day. Each task is marked with a conditional write
// first, so concurrent runs send at most one reminder per task.
func (s *ReminderService) SendDueSoonReminders(ctx context.Context, now time.Time) (ReminderResult, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)
	now = now.UTC()
	remindedBefore := now.Add(-reminderCooldown)

	due, err := s.tasks.ListDueSoon(ctx, now, now.Add(s.window), remindedBefore)
	if err != nil {
		log.Error("failed to list due tasks", slog.String("error", err.Error()))
		return ReminderResult{}, domain.NewPersistenceError("list due tasks", err)
	}

	var result ReminderResult
	for _, task := range due {
		target := task.NotifyTarget()
		if target == nil {
			result.Skipped++
			continue
		}

		marked, err := s.tasks.MarkReminded(ctx, task.ID, now, remindedBefore)
		if err != nil {
			log.Error("failed to record reminder",
				slog.String("error", err.Error()),
				slog.String("task_id", task.ID.String()))
			result.Failed++
			continue
		}
		if !marked {
			result.Skipped++
			continue
		}

		notify(ctx, s.notifier, log, events.NewNotification(*target,
			"Task Due Soon",
			fmt.Sprintf("Your task %q is due soon. Please complete it on time.", task.Title),
			events.CategoryTaskDue).ForTask(task.ID))
		result.Sent++
	}

	log.Info("due-soon reminders finished",
		slog.Int("sent", result.Sent),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed))
	return result, nil
}
