// File: internal/infra/redis/lock.go
package redis

import (
	"context"
	"fmt"
	"time"

	"sri-invoice-subscription/internal/domain"

	"github.com/google/uuid"
)

// ErrLockBusy is returned when another holder keeps the key for all tries.
var ErrLockBusy = fmt.Errorf("lock busy: %w", domain.ErrConcurrencyConflict)

type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

var _ Locker = (*RedisLocker)(nil)

type RedisLocker struct {
	cli      RedisClient
	tries    int
	interval time.Duration
}

func NewLocker(c RedisClient) *RedisLocker {
	return &RedisLocker{cli: c, tries: 5, interval: 50 * time.Millisecond}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	var lastErr error
	for i := 0; i < l.tries; i++ {
		ok, err := l.cli.SetNX(ctx, key, token, ttl)
		if err == nil && ok {
			return token, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(l.interval):
		}
	}
	if lastErr != nil {
		return "", fmt.Errorf("lock %s: %w", key, lastErr)
	}
	return "", ErrLockBusy
}

func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	_, err := l.cli.DelIfEquals(ctx, key, token)
	return err
}
