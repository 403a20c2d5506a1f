package payment

import (
	"context"
	"strings"

	"sri-invoice-subscription/internal/domain/model"
	"sri-invoice-subscription/internal/domain/ports/adapter"
)

var (
	_ adapter.PaymentCapturer = (*CardCapturer)(nil)
	_ adapter.PaymentCapturer = (*ManualCapturer)(nil)
)

// CardCapturer authorizes card payments synchronously. There is no acquirer
// behind it: a well-formed card with a CVC is approved.
type CardCapturer struct{}

func NewCardCapturer() *CardCapturer { return &CardCapturer{} }

func (c *CardCapturer) Method() model.PaymentMethod { return model.MethodCreditCard }

func (c *CardCapturer) Capture(ctx context.Context, amountCents int64, proof model.PaymentProof) (adapter.CaptureResult, error) {
	if err := ctx.Err(); err != nil {
		return adapter.CaptureResult{}, err
	}
	number := strings.ReplaceAll(strings.TrimSpace(proof.CardNumber), " ", "")
	if number == "" || strings.TrimSpace(proof.CVC) == "" {
		return declined("incomplete card data"), nil
	}
	if !luhn(number) {
		return declined("invalid card number"), nil
	}
	if amountCents <= 0 {
		return declined("invalid amount"), nil
	}
	return adapter.CaptureResult{
		Mode:      adapter.CaptureImmediate,
		Approved:  true,
		Reference: "card-" + number[len(number)-4:],
	}, nil
}

// ManualCapturer records proof for methods that are settled outside the
// system (bank transfer, cash deposit) and need verification.
type ManualCapturer struct {
	method model.PaymentMethod
}

func NewTransferCapturer() *ManualCapturer { return &ManualCapturer{method: model.MethodTransfer} }
func NewDepositCapturer() *ManualCapturer  { return &ManualCapturer{method: model.MethodDeposit} }

func (m *ManualCapturer) Method() model.PaymentMethod { return m.method }

func (m *ManualCapturer) Capture(ctx context.Context, amountCents int64, proof model.PaymentProof) (adapter.CaptureResult, error) {
	if strings.TrimSpace(proof.Reference) == "" {
		return declined("missing receipt reference"), nil
	}
	return adapter.CaptureResult{Mode: adapter.CaptureManual, Reference: strings.TrimSpace(proof.Reference)}, nil
}

func declined(reason string) adapter.CaptureResult {
	return adapter.CaptureResult{Mode: adapter.CaptureImmediate, Approved: false, FailureReason: reason}
}

func luhn(number string) bool {
	if len(number) < 12 || len(number) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if d < 0 || d > 9 {
			return false
		}
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
