package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/phrazzld/chorepoints/internal/platform/logger"
)

// InMemoryNotifier implements Notifier by dispatching each notification to
// handlers registered in memory.
type InMemoryNotifier struct {
	handlers []NotificationHandler
	mu       sync.RWMutex
	logger   *slog.Logger
}

var _ Notifier = (*InMemoryNotifier)(nil)

// NewInMemoryNotifier creates a new instance of InMemoryNotifier.
func NewInMemoryNotifier(log *slog.Logger) *InMemoryNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &InMemoryNotifier{
		handlers: make([]NotificationHandler, 0),
		logger:   log.With(slog.String("component", "notifier")),
	}
}

// RegisterHandler adds a new handler to receive notifications.
func (e *InMemoryNotifier) RegisterHandler(handler NotificationHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, handler)
	e.logger.Debug("registered notification handler", slog.Int("handler_count", len(e.handlers)))
}

// Emit publishes the notification to all registered handlers.
// If any handler returns an error, the notification is still sent to all other
// handlers, and the first error encountered is returned.
func (e *InMemoryNotifier) Emit(ctx context.Context, n *Notification) error {
	log := logger.FromContextOrDefault(ctx, e.logger)

	e.mu.RLock()
	handlers := make([]NotificationHandler, len(e.handlers))
	copy(handlers, e.handlers)
	e.mu.RUnlock()

	if len(handlers) == 0 {
		log.Debug("no handlers registered for notification",
			slog.String("notification_id", n.ID.String()),
			slog.String("category", string(n.Category)))
		return nil
	}

	var firstErr error
	for i, handler := range handlers {
		if err := handler.HandleNotification(ctx, n); err != nil {
			log.Error("handler failed to deliver notification",
				slog.String("error", err.Error()),
				slog.Int("handler_index", i),
				slog.String("notification_id", n.ID.String()),
				slog.String("category", string(n.Category)))
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

// LogHandler delivers notifications to a structured log. It is the default
// sink when no broker is configured.
type LogHandler struct {
	logger *slog.Logger
}

// NewLogHandler creates a LogHandler.
func NewLogHandler(log *slog.Logger) *LogHandler {
	if log == nil {
		log = slog.Default()
	}
	return &LogHandler{logger: log.With(slog.String("component", "notification_log"))}
}

// HandleNotification implements NotificationHandler.
func (h *LogHandler) HandleNotification(ctx context.Context, n *Notification) error {
	attrs := []any{
		slog.String("notification_id", n.ID.String()),
		slog.String("actor_id", n.ActorID.String()),
		slog.String("category", string(n.Category)),
		slog.String("title", n.Title),
	}
	if n.TaskID != nil {
		attrs = append(attrs, slog.String("task_id", n.TaskID.String()))
	}
	logger.FromContextOrDefault(ctx, h.logger).Info("notification", attrs...)
	return nil
}
