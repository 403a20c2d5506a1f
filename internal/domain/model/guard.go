package model

import (
	"time"

	"sri-invoice-subscription/internal/domain"
)

// Authorization is the outcome of a successful pre-flight check.
type Authorization struct {
	// Ledger is the state the decision was made against, after any demotion.
	Ledger LedgerSnapshot
	// Demoted is true when an expired plan was reset to free during the check.
	Demoted bool
	// EstimatedCost is what the caller asked for; nothing has been charged yet.
	EstimatedCost int64
}

// Authorize decides whether a credit-consuming operation of estimatedCost may
// start. An expired paid plan is demoted first and the decision is made against
// the demoted ledger, which is returned so the caller can persist it.
// Authorize never charges anything.
func Authorize(l CreditLedger, estimatedCost int64, now time.Time) (CreditLedger, Authorization, error) {
	if estimatedCost <= 0 {
		return l, Authorization{}, domain.NewValidationError("estimatedCost", "must be positive")
	}
	l, demoted := l.Reconcile(now)
	auth := Authorization{Ledger: l.Snapshot(now), Demoted: demoted, EstimatedCost: estimatedCost}

	if l.isUnlimited() {
		return l, auth, nil
	}
	if !l.Remaining().Covers(estimatedCost) {
		avail, _ := l.Remaining().Value()
		return l, auth, &domain.InsufficientCreditsError{Available: avail, Needed: estimatedCost}
	}
	return l, auth, nil
}
