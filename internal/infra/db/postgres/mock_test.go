//go:build !integration

package postgres

import (
	"context"
	"sync"
	"time"

	"sri-invoice-subscription/internal/domain/model"
	"sri-invoice-subscription/internal/domain/ports/repository"
	red "sri-invoice-subscription/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

// mockInnerUserRepo mocks the database repository that the decorator wraps.
type mockInnerUserRepo struct {
	mu sync.Mutex

	FindByIDCalls int

	CreateFunc         func(ctx context.Context, tx repository.Tx, u *model.User) error
	SaveFunc           func(ctx context.Context, tx repository.Tx, u *model.User) error
	FindByIDFunc       func(ctx context.Context, tx repository.Tx, id string) (*model.User, error)
	FindByEmailFunc    func(ctx context.Context, tx repository.Tx, email string) (*model.User, error)
	ConsumeCreditsFunc func(ctx context.Context, tx repository.Tx, userID string, planID model.PlanID, amount int64, now time.Time) (model.CreditLedger, bool, error)
	UpdateLedgerFunc   func(ctx context.Context, tx repository.Tx, userID string, l model.CreditLedger) (bool, error)
}

func (m *mockInnerUserRepo) Create(ctx context.Context, tx repository.Tx, u *model.User) error {
	return m.CreateFunc(ctx, tx, u)
}
func (m *mockInnerUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	return m.SaveFunc(ctx, tx, u)
}
func (m *mockInnerUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	m.mu.Lock()
	m.FindByIDCalls++
	m.mu.Unlock()
	return m.FindByIDFunc(ctx, tx, id)
}
func (m *mockInnerUserRepo) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.User, error) {
	return m.FindByEmailFunc(ctx, tx, email)
}
func (m *mockInnerUserRepo) ConsumeCredits(ctx context.Context, tx repository.Tx, userID string, planID model.PlanID, amount int64, now time.Time) (model.CreditLedger, bool, error) {
	return m.ConsumeCreditsFunc(ctx, tx, userID, planID, amount, now)
}
func (m *mockInnerUserRepo) UpdateLedger(ctx context.Context, tx repository.Tx, userID string, l model.CreditLedger) (bool, error) {
	return m.UpdateLedgerFunc(ctx, tx, userID, l)
}
func (m *mockInnerUserRepo) ListExpired(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.User, error) {
	return nil, nil
}
func (m *mockInnerUserRepo) CountByPlan(ctx context.Context, tx repository.Tx) (map[model.PlanID]int, error) {
	return nil, nil
}
func (m *mockInnerUserRepo) Lock(ctx context.Context, tx repository.Tx, userID string) error {
	return nil
}

// mockRedisClient keeps values in a map so hit/miss paths can be observed.
type mockRedisClient struct {
	mu      sync.Mutex
	data    map[string]string
	deleted []string
}

var _ red.RedisClient = &mockRedisClient{}

func newMockRedis() *mockRedisClient { return &mockRedisClient{data: map[string]string{}} }

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", red.Nil
	}
	return v, nil
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	}
	return nil
}
func (m *mockRedisClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return true, nil
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
		m.deleted = append(m.deleted, k)
	}
	return nil
}
func (m *mockRedisClient) DelIfEquals(ctx context.Context, key, value string) (bool, error) {
	return false, nil
}
func (m *mockRedisClient) Ping(ctx context.Context) error { return nil }
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return 0, nil
}
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return nil
}
func (m *mockRedisClient) Close() error { return nil }
