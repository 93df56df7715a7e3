package adapter

import (
	"context"

	"coolpay-gateway/internal/domain/model"
)

// EventBus fans callback events out to in-process subscribers.
type EventBus interface {
	Emit(ctx context.Context, ev model.CallbackEvent)
}

// EventPublisher ships callback events to external consumers.
type EventPublisher interface {
	Publish(ctx context.Context, ev model.CallbackEvent) error
	Close() error
}
