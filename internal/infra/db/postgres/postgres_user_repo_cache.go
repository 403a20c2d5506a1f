package postgres

import (
	"context"
	"encoding/json"
	"time"

	"sri-invoice-subscription/internal/domain/model"
	"sri-invoice-subscription/internal/domain/ports/repository"
	"sri-invoice-subscription/internal/infra/metrics"
	red "sri-invoice-subscription/internal/infra/redis"
)

var (
	_ repository.UserRepository   = (*userRepoCacheDecorator)(nil)
	_ repository.CacheInvalidator = (*userRepoCacheDecorator)(nil)
)

// userRepoCacheDecorator caches accounts by id for display reads. Reads inside
// a transaction or marked with repository.WithFreshRead go to the store, so a
// miss racing a write can only leave a stale entry for display, never for a
// read that decides a ledger write. Every write path deletes the key.
type userRepoCacheDecorator struct {
	inner repository.UserRepository
	cache red.RedisClient
	ttl   time.Duration
}

// cachedUser keeps the fields model.User hides from JSON.
type cachedUser struct {
	User           *model.User `json:"user"`
	PasswordHash   string      `json:"ph"`
	PortalPassword string      `json:"pp,omitempty"`
}

func NewUserRepoCacheDecorator(inner repository.UserRepository, cache red.RedisClient, ttl time.Duration) repository.UserRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &userRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl}
}

func userKey(id string) string { return "user:id:" + id }

func (d *userRepoCacheDecorator) invalidate(ctx context.Context, id string) {
	if d.cache.Del(ctx, userKey(id)) == nil {
		metrics.IncAccountCacheEviction()
	}
}

// Invalidate drops the cached account; callers use it after a commit.
func (d *userRepoCacheDecorator) Invalidate(ctx context.Context, userID string) {
	d.invalidate(ctx, userID)
}

func (d *userRepoCacheDecorator) Create(ctx context.Context, tx repository.Tx, u *model.User) error {
	d.invalidate(ctx, u.ID)
	return d.inner.Create(ctx, tx, u)
}

func (d *userRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	d.invalidate(ctx, u.ID)
	return d.inner.Save(ctx, tx, u)
}

func (d *userRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	if tx != nil || repository.IsFreshRead(ctx) {
		metrics.IncAccountCacheLookup("bypass")
		return d.inner.FindByID(ctx, tx, id)
	}
	key := userKey(id)
	if val, err := d.cache.Get(ctx, key); err == nil {
		var c cachedUser
		if json.Unmarshal([]byte(val), &c) == nil && c.User != nil {
			metrics.IncAccountCacheLookup("hit")
			c.User.PasswordHash = c.PasswordHash
			if c.User.Portal != nil {
				c.User.Portal.EncryptedPassword = c.PortalPassword
			}
			return c.User, nil
		}
	}

	metrics.IncAccountCacheLookup("miss")
	u, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	c := cachedUser{User: u, PasswordHash: u.PasswordHash}
	if u.Portal != nil {
		c.PortalPassword = u.Portal.EncryptedPassword
	}
	if b, err := json.Marshal(c); err == nil {
		_ = d.cache.Set(ctx, key, b, d.ttl)
	}
	return u, nil
}

// FindByEmail is not cached; login is the only caller and needs the fresh hash.
func (d *userRepoCacheDecorator) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.User, error) {
	return d.inner.FindByEmail(ctx, tx, email)
}

func (d *userRepoCacheDecorator) ConsumeCredits(ctx context.Context, tx repository.Tx, userID string, planID model.PlanID, amount int64, now time.Time) (model.CreditLedger, bool, error) {
	d.invalidate(ctx, userID)
	l, ok, err := d.inner.ConsumeCredits(ctx, tx, userID, planID, amount, now)
	d.invalidate(ctx, userID)
	return l, ok, err
}

func (d *userRepoCacheDecorator) UpdateLedger(ctx context.Context, tx repository.Tx, userID string, l model.CreditLedger) (bool, error) {
	d.invalidate(ctx, userID)
	ok, err := d.inner.UpdateLedger(ctx, tx, userID, l)
	d.invalidate(ctx, userID)
	return ok, err
}

func (d *userRepoCacheDecorator) ListExpired(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.User, error) {
	return d.inner.ListExpired(ctx, tx, now, limit)
}

func (d *userRepoCacheDecorator) CountByPlan(ctx context.Context, tx repository.Tx) (map[model.PlanID]int, error) {
	return d.inner.CountByPlan(ctx, tx)
}

func (d *userRepoCacheDecorator) Lock(ctx context.Context, tx repository.Tx, userID string) error {
	return d.inner.Lock(ctx, tx, userID)
}
