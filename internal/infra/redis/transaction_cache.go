package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"coolpay-gateway/internal/domain"
	"coolpay-gateway/internal/domain/model"
	"coolpay-gateway/internal/domain/ports/adapter"
	"coolpay-gateway/internal/infra/metrics"

	"github.com/go-redis/redis/v8"
)

var _ adapter.TransactionCache = (*TransactionCache)(nil)

const transactionKeyPrefix = "wccp_transaction_"

// TransactionCache keeps gateway transaction snapshots for display paths.
// Entries are served as-is until they expire; callbacks overwrite them.
type TransactionCache struct {
	client  RedisClient
	ttl     time.Duration
	enabled bool
}

func NewTransactionCache(client RedisClient, ttl time.Duration, enabled bool) *TransactionCache {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &TransactionCache{client: client, ttl: ttl, enabled: enabled}
}

func transactionKey(id string) string {
	return transactionKeyPrefix + id
}

func (c *TransactionCache) Enabled() bool { return c != nil && c.enabled }

func (c *TransactionCache) Get(ctx context.Context, transactionID string) (*model.Transaction, bool, error) {
	if !c.Enabled() {
		return nil, false, nil
	}
	if transactionID == "" {
		return nil, false, domain.ErrEmptyTransactionID
	}
	val, err := c.client.Get(ctx, transactionKey(transactionID))
	if errors.Is(err, redis.Nil) {
		metrics.IncCacheRequest("transaction", "miss")
		return nil, false, nil
	}
	if err != nil {
		metrics.IncCacheRequest("transaction", "error")
		return nil, false, fmt.Errorf("transaction cache get: %w", err)
	}

	var tx model.Transaction
	if err := json.Unmarshal([]byte(val), &tx); err != nil {
		// unreadable entries are dropped and refetched
		metrics.IncCacheRequest("transaction", "miss")
		_ = c.client.Del(ctx, transactionKey(transactionID))
		return nil, false, nil
	}
	metrics.IncCacheRequest("transaction", "hit")
	return &tx, true, nil
}

func (c *TransactionCache) Put(ctx context.Context, tx *model.Transaction) error {
	if !c.Enabled() {
		return nil
	}
	id := tx.IDString()
	if id == "" {
		return domain.ErrEmptyTransactionID
	}
	b, err := json.Marshal(tx)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, transactionKey(id), b, c.ttl)
}

func (c *TransactionCache) Invalidate(ctx context.Context, transactionID string) error {
	if !c.Enabled() || transactionID == "" {
		return nil
	}
	return c.client.Del(ctx, transactionKey(transactionID))
}
