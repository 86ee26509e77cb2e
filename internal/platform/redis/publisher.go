package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/chorepoints/internal/events"
	goredis "github.com/redis/go-redis/v9"
)

// DefaultNotificationChannel is used when no channel is configured.
const DefaultNotificationChannel = KeyPrefix + "notifications"

// NotificationPublisher forwards notifications to a Redis pub/sub channel
// where the delivery service picks them up.
type NotificationPublisher struct {
	client  *goredis.Client
	channel string
	logger  *slog.Logger
}

var _ events.NotificationHandler = (*NotificationPublisher)(nil)

// NewNotificationPublisher creates a NotificationPublisher.
func NewNotificationPublisher(client *goredis.Client, channel string, log *slog.Logger) *NotificationPublisher {
	if channel == "" {
		channel = DefaultNotificationChannel
	}
	if log == nil {
		log = slog.Default()
	}
	return &NotificationPublisher{
		client:  client,
		channel: channel,
		logger:  log.With(slog.String("component", "notification_publisher")),
	}
}

// HandleNotification implements events.NotificationHandler.
func (p *NotificationPublisher) HandleNotification(ctx context.Context, n *events.Notification) error {
	payload, err := n.Marshal()
	if err != nil {
		return err
	}
	receivers, err := p.client.Publish(ctx, p.channel, payload).Result()
	if err != nil {
		return fmt.Errorf("publish notification %s: %w", n.ID, err)
	}
	p.logger.Debug("notification published",
		slog.String("notification_id", n.ID.String()),
		slog.Int64("receivers", receivers))
	return nil
}
