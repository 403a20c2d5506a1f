package repository

import (
	"context"
	"time"

	"sri-invoice-subscription/internal/domain/model"
)

// -----------------------------
// Users and their ledgers
// -----------------------------

type UserRepository interface {
	// Create inserts a new account with its initial ledger. A duplicate email
	// yields domain.ErrEmailTaken.
	Create(ctx context.Context, tx Tx, u *model.User) error
	// Save updates profile fields (status, devices, portal credentials, login
	// time). It never writes the ledger.
	Save(ctx context.Context, tx Tx, u *model.User) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.User, error)
	FindByEmail(ctx context.Context, tx Tx, email string) (*model.User, error)

	// ConsumeCredits is the store's atomic debit: it adds amount to
	// credits_used only while the row is still on planID, unexpired, and the
	// result stays within the allotment. It returns the ledger as written;
	// false means no row qualified (exhausted, expired or plan changed).
	ConsumeCredits(ctx context.Context, tx Tx, userID string, planID model.PlanID, amount int64, now time.Time) (model.CreditLedger, bool, error)
	// UpdateLedger replaces the ledger when the stored version equals
	// l.Version and bumps the version. It reports whether a row was updated.
	UpdateLedger(ctx context.Context, tx Tx, userID string, l model.CreditLedger) (bool, error)
	// ListExpired returns accounts on a paid plan whose expiry is before now.
	ListExpired(ctx context.Context, tx Tx, now time.Time, limit int) ([]*model.User, error)
	CountByPlan(ctx context.Context, tx Tx) (map[model.PlanID]int, error)

	// Lock serializes writers for one user for the lifetime of tx.
	Lock(ctx context.Context, tx Tx, userID string) error
}

// CacheInvalidator is implemented by caching decorators. Services call it
// after a transaction commits so readers outside the tx see the new ledger.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, userID string)
}

type freshReadKey struct{}

// WithFreshRead marks reads made with ctx as feeding a conditional write.
// Caching decorators must serve them from the store.
func WithFreshRead(ctx context.Context) context.Context {
	return context.WithValue(ctx, freshReadKey{}, true)
}

func IsFreshRead(ctx context.Context) bool {
	v, _ := ctx.Value(freshReadKey{}).(bool)
	return v
}

// Invalidate is a no-op unless repo caches.
func Invalidate(ctx context.Context, repo UserRepository, userID string) {
	if inv, ok := repo.(CacheInvalidator); ok {
		inv.Invalidate(ctx, userID)
	}
}
