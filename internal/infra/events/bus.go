package events

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"coolpay-gateway/internal/domain/model"
	"coolpay-gateway/internal/domain/ports/adapter"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

var _ adapter.EventBus = (*Bus)(nil)

// Handler reacts to one event. Errors are logged and do not stop other handlers.
type Handler func(ctx context.Context, ev model.CallbackEvent) error

// Bus is a synchronous in-process event bus.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	log      *zerolog.Logger
	now      func() time.Time
}

func NewBus(logger *zerolog.Logger) *Bus {
	l := logger.With().Str("component", "events").Logger()
	return &Bus{handlers: make(map[string][]Handler), log: &l, now: time.Now}
}

func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], h)
}

// Emit stamps ev with an id and time when missing and runs every handler
// subscribed to ev.Name in subscription order.
func (b *Bus) Emit(ctx context.Context, ev model.CallbackEvent) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = b.now().UTC()
	}
	if ev.ID == "" {
		ev.ID = ulid.MustNew(ulid.Timestamp(ev.OccurredAt), rand.Reader).String()
	}

	b.mu.RLock()
	hs := append([]Handler(nil), b.handlers[ev.Name]...)
	b.mu.RUnlock()

	for _, h := range hs {
		if err := h(ctx, ev); err != nil {
			b.log.Error().Err(err).
				Str("event", ev.Name).
				Str("event_id", ev.ID).
				Int64("order_id", ev.OrderID).
				Msg("event handler failed")
		}
	}
}
