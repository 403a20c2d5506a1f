package mail

import (
	"context"

	"github.com/rs/zerolog"

	"sri-invoice-subscription/internal/domain/ports/adapter"
)

var _ adapter.Mailer = (*LogMailer)(nil)

// LogMailer renders the message and logs it instead of sending. Used when no
// SMTP host is configured.
type LogMailer struct {
	composer *Composer
	log      *zerolog.Logger
}

func NewLogMailer(composer *Composer, logger *zerolog.Logger) *LogMailer {
	l := logger.With().Str("component", "mailer").Logger()
	return &LogMailer{composer: composer, log: &l}
}

func (m *LogMailer) SendPaymentConfirmation(ctx context.Context, userID, paymentID string) error {
	msg, err := m.composer.PaymentConfirmation(ctx, userID, paymentID)
	if err != nil {
		return err
	}
	m.log.Info().Str("to", msg.To).Str("subject", msg.Subject).Str("payment_id", paymentID).Msg("payment confirmation (not sent)")
	return nil
}
