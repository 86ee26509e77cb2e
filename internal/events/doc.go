// Package events defines the notifications the task and points services emit
// and the dispatcher that fans them out to delivery handlers.
//
// Services depend only on the Notifier interface. Delivery is external: the
// server registers handlers (a structured log sink, a Redis pub/sub publisher)
// on an InMemoryNotifier, and tests substitute a recording notifier.
//
// The primary components are:
// - Notification: a message addressed to one actor
// - NotificationHandler: Interface for components that deliver notifications
// - Notifier: Interface for components that accept notifications from services
package events
