package adapter

import "context"

// Mailer delivers the payment confirmation email. Implementations resolve
// the recipient and amounts from the ids themselves.
type Mailer interface {
	SendPaymentConfirmation(ctx context.Context, userID, paymentID string) error
}
