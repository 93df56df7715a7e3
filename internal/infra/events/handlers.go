package events

import (
	"context"

	"coolpay-gateway/internal/domain/model"
	"coolpay-gateway/internal/domain/ports/adapter"
)

// CacheWriteThrough stores the callback snapshot so display paths skip the API.
func CacheWriteThrough(cache adapter.TransactionCache) Handler {
	return func(ctx context.Context, ev model.CallbackEvent) error {
		if ev.Transaction == nil || !cache.Enabled() {
			return nil
		}
		return cache.Put(ctx, ev.Transaction)
	}
}

// Forward hands events to an external publisher.
func Forward(pub adapter.EventPublisher) Handler {
	return func(ctx context.Context, ev model.CallbackEvent) error {
		return pub.Publish(ctx, ev)
	}
}
