package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/phrazzld/chorepoints/internal/domain"
	"github.com/phrazzld/chorepoints/internal/events"
	"github.com/phrazzld/chorepoints/internal/platform/logger"
	"github.com/phrazzld/chorepoints/internal/store"
	"golang.org/x/sync/errgroup"
)

type generationOutcome int

const (
	outcomeNotDue generationOutcome = iota
	outcomeGenerated
	outcomeSkipped
	outcomeFailed
)

// RecurringGenerator creates the next instance of every due recurring
// template. It is safe to run concurrently with itself: the store's unique
// (template, due date) constraint makes the second insert a skip.
type RecurringGenerator struct {
	tasks       store.TaskStore
	notifier    events.Notifier
	clock       func() time.Time
	concurrency int
	dedupWindow time.Duration
	logger      *slog.Logger
}

// NewRecurringGenerator creates a RecurringGenerator.
func NewRecurringGenerator(
	tasks store.TaskStore,
	notifier events.Notifier,
	log *slog.Logger,
	opts ...Option,
) (*RecurringGenerator, error) {
	if tasks == nil {
		return nil, missingDependency("recurring generator", "task store")
	}
	if notifier == nil {
		notifier = events.NopNotifier{}
	}
	if log == nil {
		log = slog.Default()
	}

	o := applyOptions(opts)
	return &RecurringGenerator{
		tasks:       tasks,
		notifier:    notifier,
		clock:       o.clock,
		concurrency: o.concurrency,
		dedupWindow: o.dedupWindow,
		logger:      log.With(slog.String("component", "recurring_generator")),
	}, nil
}

// RunRecurringGeneration generates instances for every template due on
// asOf. Failures are isolated per template: they are logged and counted in
// the result, never returned. The only error is failing to list templates.
func (g *RecurringGenerator) RunRecurringGeneration(ctx context.Context, asOf time.Time) (domain.GenerationResult, error) {
	log := logger.FromContextOrDefault(ctx, g.logger)

	templates, err := g.tasks.ListRecurringTemplates(ctx)
	if err != nil {
		log.Error("failed to list recurring templates", slog.String("error", err.Error()))
		return domain.GenerationResult{}, domain.NewPersistenceError("list recurring templates", err)
	}

	var generated, skipped, failed atomic.Int64
	var group errgroup.Group
	group.SetLimit(g.concurrency)

	for _, template := range templates {
		group.Go(func() error {
			switch g.generate(ctx, template, asOf) {
			case outcomeGenerated:
				generated.Add(1)
			case outcomeSkipped:
				skipped.Add(1)
			case outcomeFailed:
				failed.Add(1)
			}
			return nil
		})
	}
	_ = group.Wait()

	result := domain.GenerationResult{
		Generated: int(generated.Load()),
		Skipped:   int(skipped.Load()),
		Failed:    int(failed.Load()),
	}
	log.Info("recurring generation finished",
		slog.String("as_of", asOf.UTC().Format(time.DateOnly)),
		slog.Int("templates", len(templates)),
		slog.Int("generated", result.Generated),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed))
	return result, nil
}

func (g *RecurringGenerator) generate(ctx context.Context, template *domain.Task, asOf time.Time) (outcome generationOutcome) {
	log := logger.FromContextOrDefault(ctx, g.logger).With(slog.String("template_id", template.ID.String()))

	defer func() {
		if r := recover(); r != nil {
			log.Error("recurring generation panicked", slog.Any("panic", r))
			outcome = outcomeFailed
		}
	}()

	if !template.Recurrence.IsDue(template.CreatedAt, asOf) {
		return outcomeNotDue
	}
	dueDate := template.Recurrence.NextDueDate(asOf)

	exists, err := g.tasks.InstanceExists(ctx, template.ID, dueDate, g.clock().Add(-g.dedupWindow))
	if err != nil {
		log.Error("failed to check for existing instance", slog.String("error", err.Error()))
		return outcomeFailed
	}
	if exists {
		return outcomeSkipped
	}

	instance, err := newInstance(template, dueDate, g.clock())
	if err != nil {
		log.Error("template produced an invalid instance", slog.String("error", err.Error()))
		return outcomeFailed
	}

	if err := g.tasks.Create(ctx, instance); err != nil {
		if errors.Is(err, store.ErrInstanceExists) {
			log.Debug("instance generated concurrently", slog.String("due_date", dueDate.Format(time.DateOnly)))
			return outcomeSkipped
		}
		log.Error("failed to create recurring instance", slog.String("error", err.Error()))
		return outcomeFailed
	}

	log.Info("recurring instance generated",
		slog.String("task_id", instance.ID.String()),
		slog.String("due_date", dueDate.Format(time.DateOnly)))

	if instance.ReservedFor != nil {
		notify(ctx, g.notifier, log, events.NewNotification(*instance.ReservedFor,
			"New Recurring Task",
			fmt.Sprintf("A new %s task %q has been created for you.", template.Recurrence, instance.Title),
			events.CategorySystem).ForTask(instance.ID))
	}
	return outcomeGenerated
}

// newInstance copies a template into a fresh pending task reserved for the
// template's assignee.
func newInstance(template *domain.Task, dueDate, now time.Time) (*domain.Task, error) {
	points := template.Points
	templateID := template.ID
	instance, err := domain.NewTask(domain.NewTaskParams{
		Title:       template.Title,
		Description: template.Description,
		Type:        template.Type,
		Points:      &points,
		CreatorID:   template.CreatorID,
		ReservedFor: template.AssigneeID,
		DueDate:     &dueDate,
		Recurrence:  domain.RecurrenceNone,
		TemplateID:  &templateID,
		Metadata:    template.Metadata,
	}, now)
	if err != nil {
		return nil, err
	}
	instance.AwardPoints = template.AwardPoints
	return instance, nil
}
