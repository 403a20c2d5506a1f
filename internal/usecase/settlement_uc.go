// File: internal/usecase/settlement_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"sri-invoice-subscription/internal/domain"
	"sri-invoice-subscription/internal/domain/model"
	"sri-invoice-subscription/internal/domain/ports/adapter"
	"sri-invoice-subscription/internal/domain/ports/repository"
	"sri-invoice-subscription/internal/infra/logging"
	"sri-invoice-subscription/internal/infra/metrics"
)

var _ SettlementUseCase = (*settlementUC)(nil)

type SettlementUseCase interface {
	// Settle validates the plan and method, captures funds and, for an
	// immediate capture, activates the plan in the same transaction that
	// records the payment.
	Settle(ctx context.Context, req SettleRequest) (*SettlementResult, error)
	// Verify resolves a pending_verification payment (operator or automated).
	Verify(ctx context.Context, req VerifyRequest) (*model.Payment, error)
	// Refund marks a completed payment refunded; amountCents 0 means full.
	Refund(ctx context.Context, paymentID string, amountCents int64, reason string) (*model.Payment, error)

	History(ctx context.Context, userID string, limit int) ([]*model.Payment, error)
	// Get is owner-scoped: another user's payment is reported as not found.
	Get(ctx context.Context, userID, paymentID string) (*model.Payment, error)
	Stats(ctx context.Context, from, to time.Time) (*model.PaymentStats, error)
}

type SettleRequest struct {
	UserID string
	PlanID model.PlanID
	Method model.PaymentMethod
	// AmountCents is optional; when present it must equal the catalog price.
	AmountCents *int64
	Proof       model.PaymentProof
}

type SettlementResult struct {
	PaymentID     string               `json:"paymentId"`
	TransactionID string               `json:"transactionId"`
	Status        model.PaymentStatus  `json:"status"`
	FailureReason string               `json:"failureReason,omitempty"`
	Ledger        model.LedgerSnapshot `json:"ledgerSnapshot"`
}

type VerifyRequest struct {
	PaymentID string
	Approve   bool
	Note      string
	Source    string // operator|reconciler
}

type SettlementOptions struct {
	RevokeOnRefund bool
	LockTTL        time.Duration
}

// Locker is the per-user double-submit guard (redis SetNX in production).
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	Unlock(ctx context.Context, key, token string) error
}

// TaskSubmitter runs fire-and-forget work such as confirmation emails.
type TaskSubmitter interface {
	Submit(task func(ctx context.Context) error) error
}

type settlementUC struct {
	users     repository.UserRepository
	payments  repository.PaymentRepository
	tm        repository.TransactionManager
	ledger    LedgerUseCase
	capturers adapter.CapturerRegistry
	notifier  NotificationUseCase
	async     TaskSubmitter
	locker    Locker
	opts      SettlementOptions
	log       *zerolog.Logger
}

func NewSettlementUseCase(
	users repository.UserRepository,
	payments repository.PaymentRepository,
	tm repository.TransactionManager,
	ledger LedgerUseCase,
	capturers adapter.CapturerRegistry,
	notifier NotificationUseCase,
	async TaskSubmitter,
	locker Locker,
	opts SettlementOptions,
	logger *zerolog.Logger,
) *settlementUC {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}
	return &settlementUC{
		users:     users,
		payments:  payments,
		tm:        tm,
		ledger:    ledger,
		capturers: capturers,
		notifier:  notifier,
		async:     async,
		locker:    locker,
		opts:      opts,
		log:       logger,
	}
}

func (u *settlementUC) Settle(ctx context.Context, req SettleRequest) (*SettlementResult, error) {
	defer logging.TraceDuration(u.log, "SettlementUC.Settle")()

	plan, err := model.LookupPlan(req.PlanID)
	if err != nil {
		return nil, err
	}
	if !req.Method.Valid() {
		return nil, domain.NewValidationError("paymentMethod", "unsupported method")
	}
	if plan.IsFree() != (req.Method == model.MethodFree) {
		return nil, domain.NewValidationError("paymentMethod", "does not match the plan")
	}
	if req.AmountCents != nil && *req.AmountCents != plan.PriceCents {
		return nil, domain.NewValidationError("amount", "does not match the plan price")
	}

	user, err := u.users.FindByID(ctx, repository.NoTX, req.UserID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive() {
		return nil, domain.ErrAccountInactive
	}

	if u.locker != nil {
		key := settleLockKey(user.ID)
		token, err := u.locker.TryLock(ctx, key, u.opts.LockTTL)
		if err != nil {
			return nil, err
		}
		defer func() { _ = u.locker.Unlock(context.WithoutCancel(ctx), key, token) }()
	}

	now := time.Now().UTC()
	p, err := model.NewPayment(uuid.NewString(), user.ID, plan, req.Method, newTransactionID(string(req.Method), now), req.Proof, now)
	if err != nil {
		return nil, err
	}
	log := u.log.With().Str("payment_id", p.ID).Str("user_id", user.ID).Str("plan", string(plan.ID)).Logger()

	if plan.IsFree() {
		_ = p.MoveTo(model.PaymentStatusCompleted, now)
		l, err := u.activate(ctx, p)
		if err != nil {
			return nil, err
		}
		metrics.IncPayment(string(p.Method), string(p.Status))
		log.Info().Msg("free trial activated")
		return resultOf(p, l), nil
	}

	capturer, err := u.capturers.Capturer(req.Method)
	if err != nil {
		return nil, err
	}
	res, err := capturer.Capture(ctx, p.AmountCents, req.Proof)
	if err != nil {
		if !errors.Is(err, domain.ErrExternalService) {
			err = domain.NewExternalServiceError("payment:"+string(req.Method), err)
		}
		p.FailureReason = "provider unavailable"
		_ = p.MoveTo(model.PaymentStatusFailed, now)
		u.recordOnly(ctx, p, &log)
		return nil, err
	}
	if res.Reference != "" && p.Proof.Reference == "" {
		p.Proof.Reference = res.Reference
	}

	switch {
	case res.Mode == adapter.CaptureManual:
		_ = p.MoveTo(model.PaymentStatusPendingVerification, now)
		if err := u.payments.Save(ctx, repository.NoTX, p); err != nil {
			return nil, err
		}
		metrics.IncPayment(string(p.Method), string(p.Status))
		log.Info().Msg("payment awaiting verification")
		return resultOf(p, user.Ledger), nil

	case !res.Approved:
		p.FailureReason = res.FailureReason
		_ = p.MoveTo(model.PaymentStatusFailed, now)
		u.recordOnly(ctx, p, &log)
		return resultOf(p, user.Ledger), fmt.Errorf("%s: %w", res.FailureReason, domain.ErrPaymentDeclined)
	}

	_ = p.MoveTo(model.PaymentStatusCompleted, now)
	l, err := u.activate(ctx, p)
	if err != nil {
		// Funds were captured but nothing was recorded.
		log.Error().Err(err).Str("reference", res.Reference).Msg("captured payment could not be recorded")
		return nil, err
	}
	u.afterCompleted(ctx, p)
	log.Info().Msg("plan activated")
	return resultOf(p, l), nil
}

// activate records a completed payment and resets the ledger in one transaction
// under the user's lock. The free plan is refused while a paid plan is still
// running and once the trial has been used.
func (u *settlementUC) activate(ctx context.Context, p *model.Payment) (model.CreditLedger, error) {
	var ledger model.CreditLedger
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.users.Lock(ctx, tx, p.UserID); err != nil {
			return err
		}
		if p.PlanID == model.PlanFree {
			user, err := u.users.FindByID(ctx, tx, p.UserID)
			if err != nil {
				return err
			}
			if user.Ledger.PlanID != model.PlanFree && !user.Ledger.IsExpired(p.CreatedAt) {
				return domain.ErrPlanStillActive
			}
			used, err := u.payments.HasCompletedFree(ctx, tx, p.UserID)
			if err != nil {
				return err
			}
			if used {
				return domain.ErrTrialAlreadyUsed
			}
		}
		if err := u.payments.Save(ctx, tx, p); err != nil {
			return err
		}
		l, err := u.ledger.Reset(ctx, tx, p.UserID, p.PlanID)
		if err != nil {
			return err
		}
		ledger = l
		return nil
	})
	if err != nil {
		return model.CreditLedger{}, err
	}
	repository.Invalidate(ctx, u.users, p.UserID)
	return ledger, nil
}

func (u *settlementUC) recordOnly(ctx context.Context, p *model.Payment, log *zerolog.Logger) {
	metrics.IncPayment(string(p.Method), string(p.Status))
	if err := u.payments.Save(ctx, repository.NoTX, p); err != nil {
		log.Error().Err(err).Msg("failed to record unsuccessful payment")
	}
}

func (u *settlementUC) Verify(ctx context.Context, req VerifyRequest) (*model.Payment, error) {
	defer logging.TraceDuration(u.log, "SettlementUC.Verify")()

	var out *model.Payment
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		p, err := u.payments.FindByID(ctx, tx, req.PaymentID)
		if err != nil {
			return err
		}
		if p.Status != model.PaymentStatusPendingVerification {
			return domain.ErrInvalidTransition
		}
		if err := u.users.Lock(ctx, tx, p.UserID); err != nil {
			return err
		}
		from := p.Status
		now := time.Now().UTC()
		if req.Approve {
			_ = p.MoveTo(model.PaymentStatusCompleted, now)
		} else {
			_ = p.MoveTo(model.PaymentStatusFailed, now)
			p.FailureReason = req.Note
			if p.FailureReason == "" {
				p.FailureReason = "rejected"
			}
		}
		ok, err := u.payments.UpdateStatusIf(ctx, tx, p, from)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvalidTransition
		}
		if req.Approve {
			if _, err := u.ledger.Reset(ctx, tx, p.UserID, p.PlanID); err != nil {
				return err
			}
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	source := req.Source
	if source == "" {
		source = "operator"
	}
	outcome := "rejected"
	if req.Approve {
		outcome = "approved"
		repository.Invalidate(ctx, u.users, out.UserID)
		u.afterCompleted(ctx, out)
	} else {
		metrics.IncPayment(string(out.Method), string(out.Status))
	}
	metrics.IncVerification(source, outcome)
	metrics.ObserveVerificationDelay(time.Since(out.CreatedAt).Seconds())
	u.log.Info().Str("payment_id", out.ID).Str("source", source).Str("outcome", outcome).Msg("payment verified")
	return out, nil
}

func (u *settlementUC) Refund(ctx context.Context, paymentID string, amountCents int64, reason string) (*model.Payment, error) {
	defer logging.TraceDuration(u.log, "SettlementUC.Refund")()

	var (
		out     *model.Payment
		revoked bool
	)
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		p, err := u.payments.FindByID(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if p.Status != model.PaymentStatusCompleted {
			return domain.ErrInvalidTransition
		}
		if amountCents < 0 || amountCents > p.AmountCents {
			return domain.NewValidationError("amount", "must be between 0 and the paid amount")
		}
		if amountCents == 0 {
			amountCents = p.AmountCents
		}
		now := time.Now().UTC()
		if err := p.MoveTo(model.PaymentStatusRefunded, now); err != nil {
			return err
		}
		p.Refund = &model.RefundInfo{
			AmountCents:         amountCents,
			Reason:              reason,
			RefundTransactionID: newTransactionID("refund", now),
			RefundedAt:          now,
		}
		ok, err := u.payments.UpdateStatusIf(ctx, tx, p, model.PaymentStatusCompleted)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvalidTransition
		}

		if u.opts.RevokeOnRefund && p.PlanID != model.PlanFree {
			if err := u.users.Lock(ctx, tx, p.UserID); err != nil {
				return err
			}
			user, err := u.users.FindByID(ctx, tx, p.UserID)
			if err != nil {
				return err
			}
			if user.Ledger.PlanID == p.PlanID {
				if _, err := u.ledger.Reset(ctx, tx, p.UserID, model.PlanFree); err != nil {
					return err
				}
				revoked = true
			}
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	if revoked {
		repository.Invalidate(ctx, u.users, out.UserID)
	}
	metrics.IncRefund(revoked)
	metrics.IncPayment(string(out.Method), string(out.Status))
	u.log.Info().Str("payment_id", out.ID).Int64("amount", out.Refund.AmountCents).Bool("revoked", revoked).Msg("payment refunded")
	return out, nil
}

func (u *settlementUC) History(ctx context.Context, userID string, limit int) ([]*model.Payment, error) {
	defer logging.TraceDuration(u.log, "SettlementUC.History")()
	return u.payments.ListByUser(ctx, repository.NoTX, userID, limit)
}

func (u *settlementUC) Get(ctx context.Context, userID, paymentID string) (*model.Payment, error) {
	p, err := u.payments.FindByID(ctx, repository.NoTX, paymentID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (u *settlementUC) Stats(ctx context.Context, from, to time.Time) (*model.PaymentStats, error) {
	defer logging.TraceDuration(u.log, "SettlementUC.Stats")()
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -30)
	}
	if !from.Before(to) {
		return nil, domain.NewValidationError("from", "must be before to")
	}
	return u.payments.Stats(ctx, repository.NoTX, from, to)
}

// afterCompleted runs once a paid activation has committed. Email delivery is
// queued and never affects the settlement outcome.
func (u *settlementUC) afterCompleted(ctx context.Context, p *model.Payment) {
	metrics.IncPayment(string(p.Method), string(p.Status))
	metrics.AddPaymentRevenue(string(p.PlanID), p.Currency, p.AmountCents)
	if u.notifier == nil || !p.NeedsNotification() {
		return
	}
	id := p.ID
	task := func(ctx context.Context) error { return u.notifier.Deliver(ctx, id) }
	if u.async == nil {
		if err := task(context.WithoutCancel(ctx)); err != nil {
			u.log.Warn().Err(err).Str("payment_id", id).Msg("confirmation email deferred to worker")
		}
		return
	}
	if err := u.async.Submit(task); err != nil {
		u.log.Warn().Err(err).Str("payment_id", id).Msg("confirmation email deferred to worker")
	}
}

func resultOf(p *model.Payment, l model.CreditLedger) *SettlementResult {
	return &SettlementResult{
		PaymentID:     p.ID,
		TransactionID: p.TransactionID,
		Status:        p.Status,
		FailureReason: p.FailureReason,
		Ledger:        l.Snapshot(time.Now().UTC()),
	}
}

func settleLockKey(userID string) string { return "settle:" + userID }

// newTransactionID yields "<prefix>_<ULID>", unique and sortable by time.
func newTransactionID(prefix string, now time.Time) string {
	return prefix + "_" + ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
}
