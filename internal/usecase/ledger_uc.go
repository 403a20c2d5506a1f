// File: internal/usecase/ledger_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"sri-invoice-subscription/internal/domain"
	"sri-invoice-subscription/internal/domain/model"
	"sri-invoice-subscription/internal/domain/ports/repository"
	"sri-invoice-subscription/internal/infra/logging"
	"sri-invoice-subscription/internal/infra/metrics"
)

// MaxConsumeAttempts bounds how often one debit re-reads a ledger whose plan
// changed under it. Exhaustion never consumes attempts: it is reported at once.
const MaxConsumeAttempts = 5

var _ LedgerUseCase = (*ledgerUC)(nil)

// LedgerUseCase is the persistent, concurrency-safe face of model.CreditLedger.
type LedgerUseCase interface {
	// Consume debits amount credits with a balance-conditional update. Of N
	// concurrent callers with k credits left, exactly k succeed.
	Consume(ctx context.Context, userID string, amount int64) (model.LedgerSnapshot, error)
	Remaining(ctx context.Context, userID string) (model.Credits, error)
	// Reset moves the user onto planID inside the caller's transaction. The
	// caller must hold the user's lock (UserRepository.Lock) on tx.
	Reset(ctx context.Context, tx repository.Tx, userID string, planID model.PlanID) (model.CreditLedger, error)
	// Snapshot reconciles expiry first and returns the client view.
	Snapshot(ctx context.Context, userID string) (model.LedgerSnapshot, error)
	// ReconcileUser is the lazy expiry trigger. It persists a demotion when
	// the paid plan has lapsed and returns the current account.
	ReconcileUser(ctx context.Context, userID string) (*model.User, error)
	// SweepExpired is the eager trigger: it demotes up to batch lapsed ledgers.
	SweepExpired(ctx context.Context, batch int) (int, error)
}

type ledgerUC struct {
	users repository.UserRepository
	tm    repository.TransactionManager
	log   *zerolog.Logger
	now   func() time.Time
}

func NewLedgerUseCase(users repository.UserRepository, tm repository.TransactionManager, logger *zerolog.Logger) *ledgerUC {
	return &ledgerUC{users: users, tm: tm, log: logger, now: func() time.Time { return time.Now().UTC() }}
}

func (u *ledgerUC) Consume(ctx context.Context, userID string, amount int64) (model.LedgerSnapshot, error) {
	defer logging.TraceDuration(u.log, "LedgerUC.Consume")()
	if amount <= 0 {
		return model.LedgerSnapshot{}, domain.NewValidationError("amount", "must be positive")
	}

	// The read decides the debit, so it must not come from a cache.
	ctx = repository.WithFreshRead(ctx)
	for attempt := 1; attempt <= MaxConsumeAttempts; attempt++ {
		user, err := u.ReconcileUser(ctx, userID)
		if err != nil {
			return model.LedgerSnapshot{}, err
		}
		if !user.IsActive() {
			return model.LedgerSnapshot{}, domain.ErrAccountInactive
		}

		now := u.now()
		if _, err := user.Ledger.Consume(amount, now); err != nil {
			var insufficient *domain.InsufficientCreditsError
			if errors.As(err, &insufficient) {
				metrics.IncLedgerDenial(string(domain.ReasonInsufficientCredits))
			}
			return model.LedgerSnapshot{}, err
		}

		written, ok, err := u.users.ConsumeCredits(ctx, repository.NoTX, userID, user.Ledger.PlanID, amount, now)
		if err != nil {
			return model.LedgerSnapshot{}, err
		}
		if ok {
			metrics.AddCreditsConsumed(string(written.PlanID), amount)
			return written.Snapshot(now), nil
		}
		// Another debit drained the balance, or the plan changed or expired
		// since the read. The next read tells which.
		metrics.IncConsumeConflict()
		u.log.Debug().Str("user_id", userID).Int("attempt", attempt).Msg("conditional debit missed, re-reading ledger")
	}
	return model.LedgerSnapshot{}, &domain.ConcurrencyConflictError{Attempts: MaxConsumeAttempts}
}

func (u *ledgerUC) Remaining(ctx context.Context, userID string) (model.Credits, error) {
	user, err := u.ReconcileUser(ctx, userID)
	if err != nil {
		return model.Credits{}, err
	}
	return user.Ledger.Remaining(), nil
}

func (u *ledgerUC) Reset(ctx context.Context, tx repository.Tx, userID string, planID model.PlanID) (model.CreditLedger, error) {
	defer logging.TraceDuration(u.log, "LedgerUC.Reset")()

	user, err := u.users.FindByID(ctx, tx, userID)
	if err != nil {
		return model.CreditLedger{}, err
	}
	next, err := user.Ledger.Reset(planID, u.now())
	if err != nil {
		return model.CreditLedger{}, err
	}
	ok, err := u.users.UpdateLedger(ctx, tx, userID, next)
	if err != nil {
		return model.CreditLedger{}, err
	}
	if !ok {
		return model.CreditLedger{}, &domain.ConcurrencyConflictError{Attempts: 1}
	}
	next.Version++
	metrics.IncLedgerReset(string(planID))
	return next, nil
}

func (u *ledgerUC) Snapshot(ctx context.Context, userID string) (model.LedgerSnapshot, error) {
	defer logging.TraceDuration(u.log, "LedgerUC.Snapshot")()
	user, err := u.ReconcileUser(ctx, userID)
	if err != nil {
		return model.LedgerSnapshot{}, err
	}
	return user.Ledger.Snapshot(u.now()), nil
}

func (u *ledgerUC) ReconcileUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := u.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}
	if !user.Ledger.IsExpired(u.now()) {
		return user, nil
	}
	demoted, changed, err := u.demote(ctx, userID)
	if err != nil {
		return nil, err
	}
	if changed {
		metrics.AddLedgersDemoted("lazy", 1)
	}
	return demoted, nil
}

func (u *ledgerUC) SweepExpired(ctx context.Context, batch int) (int, error) {
	defer logging.TraceDuration(u.log, "LedgerUC.SweepExpired")()

	expired, err := u.users.ListExpired(ctx, repository.NoTX, u.now(), batch)
	if err != nil {
		return 0, err
	}
	demotedCount := 0
	var firstErr error
	for _, usr := range expired {
		if ctx.Err() != nil {
			break
		}
		_, changed, err := u.demote(ctx, usr.ID)
		if err != nil {
			u.log.Error().Err(err).Str("user_id", usr.ID).Msg("failed to demote expired ledger")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if changed {
			demotedCount++
		}
	}
	metrics.AddLedgersDemoted("sweep", demotedCount)
	if firstErr != nil {
		return demotedCount, fmt.Errorf("sweep: %d demoted, first failure: %w", demotedCount, firstErr)
	}
	return demotedCount, nil
}

// demote re-reads the user under its lock and applies Reconcile. Consumers do
// not take the lock, so a version bump between read and write is retried.
func (u *ledgerUC) demote(ctx context.Context, userID string) (*model.User, bool, error) {
	var (
		out     *model.User
		changed bool
	)
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.users.Lock(ctx, tx, userID); err != nil {
			return err
		}
		for attempt := 1; attempt <= MaxConsumeAttempts; attempt++ {
			user, err := u.users.FindByID(ctx, tx, userID)
			if err != nil {
				return err
			}
			next, didChange := user.Ledger.Reconcile(u.now())
			if !didChange {
				out = user
				return nil
			}
			ok, err := u.users.UpdateLedger(ctx, tx, userID, next)
			if err != nil {
				return err
			}
			if ok {
				next.Version++
				user.Ledger = next
				out, changed = user, true
				return nil
			}
		}
		return &domain.ConcurrencyConflictError{Attempts: MaxConsumeAttempts}
	})
	if err != nil {
		return nil, false, err
	}
	if changed {
		repository.Invalidate(ctx, u.users, userID)
		u.log.Info().Str("user_id", userID).Msg("expired plan demoted to free")
	}
	return out, changed, nil
}
