package payment

import (
	"context"
	"strings"
	"sync"

	"sri-invoice-subscription/internal/domain/model"
	"sri-invoice-subscription/internal/domain/ports/adapter"
)

var _ adapter.PaymentVerifier = (*StatementVerifier)(nil)

// StatementVerifier matches manual-proof payments against credited bank
// statement lines keyed by reference. A reference that is not on the
// statement yet is left undetermined for an operator.
type StatementVerifier struct {
	mu    sync.RWMutex
	lines map[string]int64 // reference -> credited cents
}

func NewStatementVerifier() *StatementVerifier {
	return &StatementVerifier{lines: map[string]int64{}}
}

// Credit records a statement line.
func (v *StatementVerifier) Credit(reference string, amountCents int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lines[normalizeRef(reference)] = amountCents
}

func (v *StatementVerifier) Verify(ctx context.Context, p *model.Payment) (adapter.VerificationOutcome, string, error) {
	if err := ctx.Err(); err != nil {
		return adapter.VerificationUndetermined, "", err
	}
	v.mu.RLock()
	credited, ok := v.lines[normalizeRef(p.Proof.Reference)]
	v.mu.RUnlock()
	switch {
	case !ok:
		return adapter.VerificationUndetermined, "", nil
	case credited < p.AmountCents:
		return adapter.VerificationRejected, "credited amount below plan price", nil
	default:
		return adapter.VerificationApproved, "", nil
	}
}

func normalizeRef(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }
