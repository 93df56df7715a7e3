// File: internal/infra/redis/lock.go
package redis

import (
	"context"
	"fmt"
	"time"

	"coolpay-gateway/internal/domain"
	"coolpay-gateway/internal/domain/ports/adapter"

	"github.com/google/uuid"
)

var _ adapter.Locker = (*RedisLocker)(nil)

const (
	lockAttempts = 5
	lockBackoff  = 50 * time.Millisecond
)

type RedisLocker struct {
	cli RedisClient
}

func NewLocker(c RedisClient) *RedisLocker {
	return &RedisLocker{cli: c}
}

// TransactionLockKey guards callback processing for one gateway transaction.
func TransactionLockKey(transactionID string) string {
	return "lock:transaction:" + transactionID
}

// TryLock returns ErrLockNotAcquired when the key stays held, and the redis
// error when the last attempt could not reach redis.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	var lastErr error
	for i := 0; i < lockAttempts; i++ {
		ok, err := l.cli.SetNX(ctx, key, token, ttl)
		if err == nil && ok {
			return token, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(lockBackoff):
		}
	}
	if lastErr != nil {
		return "", fmt.Errorf("lock %s: %w", key, lastErr)
	}
	return "", domain.ErrLockNotAcquired
}

func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	_, err := l.cli.DelIfEquals(ctx, key, token)
	return err
}
