package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/chorepoints/internal/events"
)

// RecordingNotifier implements events.Notifier by keeping every notification
// it is given. Safe for concurrent use.
type RecordingNotifier struct {
	// EmitFn, when set, runs after the notification is recorded and supplies
	// the returned error.
	EmitFn func(ctx context.Context, n *events.Notification) error

	mu   sync.Mutex
	sent []*events.Notification
}

var _ events.Notifier = (*RecordingNotifier)(nil)

// Emit implements events.Notifier.
func (r *RecordingNotifier) Emit(ctx context.Context, n *events.Notification) error {
	r.mu.Lock()
	r.sent = append(r.sent, n)
	r.mu.Unlock()

	if r.EmitFn != nil {
		return r.EmitFn(ctx, n)
	}
	return nil
}

// Sent returns the recorded notifications in emit order.
func (r *RecordingNotifier) Sent() []*events.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*events.Notification(nil), r.sent...)
}

// WithTitle returns the recorded notifications with the given title.
func (r *RecordingNotifier) WithTitle(title string) []*events.Notification {
	var out []*events.Notification
	for _, n := range r.Sent() {
		if n.Title == title {
			out = append(out, n)
		}
	}
	return out
}
