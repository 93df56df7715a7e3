package adapter

import (
	"context"
	"time"

	"coolpay-gateway/internal/domain/model"
)

// TransactionCache stores transaction snapshots keyed by gateway id.
// A hit is authoritative until the entry expires.
type TransactionCache interface {
	Enabled() bool
	// Get returns (nil, false, nil) on a miss.
	Get(ctx context.Context, transactionID string) (*model.Transaction, bool, error)
	Put(ctx context.Context, tx *model.Transaction) error
	Invalidate(ctx context.Context, transactionID string) error
}

// Locker guards per-transaction critical sections across processes.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}
