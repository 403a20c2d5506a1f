package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"sri-invoice-subscription/internal/domain"
	"sri-invoice-subscription/internal/domain/ports/adapter"
	"sri-invoice-subscription/internal/domain/ports/repository"
	"sri-invoice-subscription/internal/usecase"
)

// VerificationReconciler periodically runs the automated proof check over
// manual payments that have waited longer than staleAfter. Payments the
// check cannot decide stay pending for an operator.
type VerificationReconciler struct {
	uc         usecase.SettlementUseCase
	payments   repository.PaymentRepository
	verifier   adapter.PaymentVerifier
	interval   time.Duration // how often to scan
	staleAfter time.Duration // how old a pending payment must be to check
	batch      int
	log        *zerolog.Logger
}

func NewVerificationReconciler(uc usecase.SettlementUseCase, payments repository.PaymentRepository, verifier adapter.PaymentVerifier, interval, staleAfter time.Duration, logger *zerolog.Logger) *VerificationReconciler {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}
	l := logger.With().Str("component", "VerificationReconciler").Logger()
	return &VerificationReconciler{uc: uc, payments: payments, verifier: verifier, interval: interval, staleAfter: staleAfter, batch: 200, log: &l}
}

func (w *VerificationReconciler) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting verification reconciler")
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping verification reconciler")
			return ctx.Err()
		case <-t.C:
			w.Tick(ctx)
		}
	}
}

// Tick reports how many payments were resolved.
func (w *VerificationReconciler) Tick(ctx context.Context) int {
	cutoff := time.Now().UTC().Add(-w.staleAfter)
	pending, err := w.payments.ListPendingVerification(ctx, repository.NoTX, cutoff, w.batch)
	if err != nil {
		w.log.Error().Err(err).Msg("list pending verification failed")
		return 0
	}
	resolved := 0
	for _, p := range pending {
		if ctx.Err() != nil {
			break
		}
		outcome, note, err := w.verifier.Verify(ctx, p)
		if err != nil {
			// Check unavailable: leave the payment pending and retry next tick.
			w.log.Warn().Err(err).Str("payment_id", p.ID).Msg("automated verification unavailable")
			continue
		}
		if outcome == adapter.VerificationUndetermined {
			continue
		}
		_, err = w.uc.Verify(ctx, usecase.VerifyRequest{
			PaymentID: p.ID,
			Approve:   outcome == adapter.VerificationApproved,
			Note:      note,
			Source:    "reconciler",
		})
		if err != nil {
			if !errors.Is(err, domain.ErrInvalidTransition) {
				w.log.Error().Err(err).Str("payment_id", p.ID).Msg("verification failed")
			}
			continue
		}
		resolved++
	}
	if resolved > 0 {
		w.log.Info().Int("count", resolved).Msg("pending payments reconciled")
	}
	return resolved
}
