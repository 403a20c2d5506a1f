package usecase

import (
	"context"

	"github.com/rs/zerolog"

	"sri-invoice-subscription/internal/domain"
	"sri-invoice-subscription/internal/domain/ports/adapter"
	"sri-invoice-subscription/internal/domain/ports/repository"
	"sri-invoice-subscription/internal/infra/logging"
	"sri-invoice-subscription/internal/infra/metrics"
)

// Compile-time check
var _ NotificationUseCase = (*notificationUC)(nil)

// NotificationUseCase drains the payment confirmation outbox: completed paid
// payments whose notificationSent flag is still false.
type NotificationUseCase interface {
	// Deliver sends the confirmation for one payment if it is still owed.
	Deliver(ctx context.Context, paymentID string) error
	// SendPending delivers up to limit owed confirmations and returns how many went out.
	SendPending(ctx context.Context, limit int) (int, error)
}

type notificationUC struct {
	payments repository.PaymentRepository
	mailer   adapter.Mailer
	log      *zerolog.Logger
}

func NewNotificationUseCase(payments repository.PaymentRepository, mailer adapter.Mailer, logger *zerolog.Logger) *notificationUC {
	return &notificationUC{payments: payments, mailer: mailer, log: logger}
}

func (n *notificationUC) Deliver(ctx context.Context, paymentID string) error {
	defer logging.TraceDuration(n.log, "NotificationUC.Deliver")()

	p, err := n.payments.FindByID(ctx, repository.NoTX, paymentID)
	if err != nil {
		return err
	}
	if !p.NeedsNotification() {
		return nil
	}
	if err := n.mailer.SendPaymentConfirmation(ctx, p.UserID, p.ID); err != nil {
		metrics.IncNotification("failed")
		return domain.NewExternalServiceError("mailer", err)
	}
	if err := n.payments.MarkNotified(ctx, repository.NoTX, p.ID); err != nil {
		// The mail went out; a later run may send a duplicate.
		n.log.Error().Err(err).Str("payment_id", p.ID).Msg("confirmation sent but not marked")
		return err
	}
	metrics.IncNotification("sent")
	return nil
}

func (n *notificationUC) SendPending(ctx context.Context, limit int) (int, error) {
	pending, err := n.payments.ListUnnotified(ctx, repository.NoTX, limit)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, p := range pending {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		if err := n.Deliver(ctx, p.ID); err != nil {
			n.log.Warn().Err(err).Str("payment_id", p.ID).Msg("confirmation delivery failed; will retry")
			continue
		}
		sent++
	}
	return sent, nil
}
