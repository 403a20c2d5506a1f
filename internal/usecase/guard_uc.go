package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sri-invoice-subscription/internal/domain"
	"sri-invoice-subscription/internal/domain/model"
	"sri-invoice-subscription/internal/infra/logging"
	"sri-invoice-subscription/internal/infra/metrics"
)

var _ EntitlementGuard = (*guardUC)(nil)

// EntitlementGuard answers "may this user start an operation costing N credits".
type EntitlementGuard interface {
	// Authorize never consumes. A denial is a *domain.InsufficientCreditsError.
	Authorize(ctx context.Context, userID string, estimatedCost int64) (*Reservation, error)
}

type guardUC struct {
	ledger LedgerUseCase
	log    *zerolog.Logger
}

func NewEntitlementGuard(ledger LedgerUseCase, logger *zerolog.Logger) *guardUC {
	return &guardUC{ledger: ledger, log: logger}
}

func (g *guardUC) Authorize(ctx context.Context, userID string, estimatedCost int64) (*Reservation, error) {
	defer logging.TraceDuration(g.log, "Guard.Authorize")()

	if estimatedCost <= 0 {
		return nil, domain.NewValidationError("estimatedCost", "must be positive")
	}
	// Lazy expiry: a lapsed plan is demoted and persisted before deciding.
	user, err := g.ledger.ReconcileUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive() {
		metrics.IncLedgerDenial(string(domain.ReasonAccountInactive))
		return nil, domain.ErrAccountInactive
	}

	_, auth, err := model.Authorize(user.Ledger, estimatedCost, time.Now().UTC())
	if err != nil {
		var denied *domain.InsufficientCreditsError
		if errors.As(err, &denied) {
			metrics.IncLedgerDenial(string(domain.ReasonInsufficientCredits))
			g.log.Debug().Str("user_id", userID).Int64("needed", denied.Needed).Int64("available", denied.Available).Msg("operation denied")
		}
		return nil, err
	}
	return &Reservation{ledger: g.ledger, userID: userID, auth: auth}, nil
}

// Reservation is a granted authorization waiting for its actual cost. It holds
// no credits; Finalize charges through the ledger exactly once.
type Reservation struct {
	ledger LedgerUseCase
	userID string
	auth   model.Authorization

	mu   sync.Mutex
	done bool
}

func (r *Reservation) Authorization() model.Authorization { return r.auth }

// Finalize charges actualCost. Zero closes the reservation without a write.
// Once it has succeeded, further calls return domain.ErrReservationFinalized.
func (r *Reservation) Finalize(ctx context.Context, actualCost int64) (model.LedgerSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return model.LedgerSnapshot{}, domain.ErrReservationFinalized
	}
	if actualCost < 0 {
		return model.LedgerSnapshot{}, domain.NewValidationError("actualCost", "must not be negative")
	}
	if actualCost == 0 {
		r.done = true
		return r.auth.Ledger, nil
	}
	snap, err := r.ledger.Consume(ctx, r.userID, actualCost)
	if err != nil {
		return model.LedgerSnapshot{}, err
	}
	r.done = true
	return snap, nil
}

// Release abandons the reservation without consuming anything.
func (r *Reservation) Release() {
	r.mu.Lock()
	r.done = true
	r.mu.Unlock()
}
