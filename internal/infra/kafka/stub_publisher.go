package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/learnhub/iam-service/internal/core/domain"
	"github.com/learnhub/iam-service/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Used when no
// brokers are configured, typically in development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

// Publish logs the event envelope at info level and never fails.
func (p *StubPublisher) Publish(_ context.Context, event domain.Event) error {
	eventID, userID, ts, payload := describe(event)
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_id", eventID),
		zap.String("event_type", event.EventName()),
		zap.String("user_id", userID),
		zap.Time("timestamp", ts.UTC()),
		zap.Any("payload", payload),
	)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
