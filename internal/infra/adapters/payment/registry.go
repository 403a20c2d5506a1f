package payment

import (
	"sri-invoice-subscription/internal/domain"
	"sri-invoice-subscription/internal/domain/model"
	"sri-invoice-subscription/internal/domain/ports/adapter"
)

var _ adapter.CapturerRegistry = (*Registry)(nil)

// Registry maps each payment method to its capturer.
type Registry struct {
	byMethod map[model.PaymentMethod]adapter.PaymentCapturer
}

func NewRegistry(capturers ...adapter.PaymentCapturer) *Registry {
	r := &Registry{byMethod: make(map[model.PaymentMethod]adapter.PaymentCapturer, len(capturers))}
	for _, c := range capturers {
		r.byMethod[c.Method()] = c
	}
	return r
}

// NewDefaultRegistry registers card, transfer and deposit.
func NewDefaultRegistry() *Registry {
	return NewRegistry(NewCardCapturer(), NewTransferCapturer(), NewDepositCapturer())
}

func (r *Registry) Capturer(method model.PaymentMethod) (adapter.PaymentCapturer, error) {
	c, ok := r.byMethod[method]
	if !ok {
		return nil, domain.NewValidationError("paymentMethod", "unsupported method")
	}
	return c, nil
}
