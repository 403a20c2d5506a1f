//go:build !integration

package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sri-invoice-subscription/internal/domain"
)

// memClient is an in-process RedisClient good enough for lock and limiter tests.
type memClient struct {
	mu   sync.Mutex
	data map[string]string
	ints map[string]int64
}

func newMemClient() *memClient {
	return &memClient{data: map[string]string{}, ints: map[string]int64{}}
}

func (m *memClient) Ping(ctx context.Context) error { return nil }
func (m *memClient) Set(ctx context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = toString(value)
	return nil
}
func (m *memClient) SetNX(ctx context.Context, key string, value interface{}, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = toString(value)
	return true, nil
}
func (m *memClient) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", Nil
	}
	return v, nil
}
func (m *memClient) Incr(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ints[key]++
	return m.ints[key], nil
}
func (m *memClient) Expire(ctx context.Context, key string, _ time.Duration) error { return nil }
func (m *memClient) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}
func (m *memClient) DelIfEquals(ctx context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[key] != value {
		return false, nil
	}
	delete(m.data, key)
	return true, nil
}
func (m *memClient) Close() error { return nil }

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	}
	return ""
}

func TestRedisLocker(t *testing.T) {
	ctx := context.Background()

	t.Run("should refuse a second holder until unlocked", func(t *testing.T) {
		// --- Arrange ---
		cli := newMemClient()
		l := NewLocker(cli)
		l.interval = time.Millisecond

		// --- Act ---
		tok, err := l.TryLock(ctx, "settle:u1", time.Second)
		if err != nil {
			t.Fatalf("first lock failed: %v", err)
		}
		_, err = l.TryLock(ctx, "settle:u1", time.Second)

		// --- Assert ---
		if !errors.Is(err, ErrLockBusy) || !errors.Is(err, domain.ErrConcurrencyConflict) {
			t.Fatalf("expected ErrLockBusy, got %v", err)
		}
		if err := l.Unlock(ctx, "settle:u1", tok); err != nil {
			t.Fatalf("unlock failed: %v", err)
		}
		if _, err := l.TryLock(ctx, "settle:u1", time.Second); err != nil {
			t.Errorf("expected lock after release, got %v", err)
		}
	})

	t.Run("should not release a lock held by another token", func(t *testing.T) {
		cli := newMemClient()
		l := NewLocker(cli)
		l.interval = time.Millisecond
		if _, err := l.TryLock(ctx, "k", time.Second); err != nil {
			t.Fatal(err)
		}
		_ = l.Unlock(ctx, "k", "someone-else")
		if _, err := cli.Get(ctx, "k"); err != nil {
			t.Errorf("lock was released by a foreign token")
		}
	})
}

func TestRateLimiter(t *testing.T) {
	ctx := context.Background()
	rl := NewRateLimiter(newMemClient())
	key := LoginKey(" Ana@Example.com ")
	if key != "rate_limit:login:ana@example.com" {
		t.Fatalf("unexpected key %q", key)
	}

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, key, 3, time.Minute)
		if err != nil || !ok {
			t.Fatalf("call %d should pass: ok=%v err=%v", i+1, ok, err)
		}
	}
	ok, err := rl.Allow(ctx, key, 3, time.Minute)
	if err != nil || ok {
		t.Errorf("fourth call should be limited: ok=%v err=%v", ok, err)
	}
}
