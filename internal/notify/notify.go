// Package notify hands request events to a notification sender. Delivery
// is fire-and-forget: a failed send is logged and never reaches the caller
// whose action produced the event.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

type Notification struct {
	Recipient  string    `json:"recipient"`
	Kind       string    `json:"kind"`
	Subject    string    `json:"subject"`
	Message    string    `json:"message"`
	RequestID  string    `json:"request_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// LogSender writes notifications to the structured log. It is the default
// when no outbound channel is configured.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, n Notification) error {
	s.logger.Info("notification",
		"recipient", n.Recipient,
		"kind", n.Kind,
		"subject", n.Subject,
		"request_id", n.RequestID)
	return nil
}

// RedisSender publishes notifications as JSON on a pub/sub channel for an
// external mailer to consume.
type RedisSender struct {
	client  redis.UniversalClient
	channel string
}

func NewRedisSender(client redis.UniversalClient, channel string) *RedisSender {
	if channel == "" {
		channel = "docrequest:notifications"
	}
	return &RedisSender{client: client, channel: channel}
}

func (s *RedisSender) Send(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
