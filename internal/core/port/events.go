package port

import (
	"context"

	"github.com/learnhub/iam-service/internal/core/domain"
)

// EventPublisher dispatches domain events after the owning use case has
// persisted its changes. Implementations decide the mechanism (message bus,
// log, in-process); failures are reported but use cases treat dispatch as
// best-effort once state is durable.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}
