package model

import (
	"math"
	"time"

	"sri-invoice-subscription/internal/domain"
)

// CreditLedger is the per-user entitlement state. Its methods are pure: they
// return an updated copy and leave persistence and version bumps to the store.
//
// Invariants:
//   - CreditsUsed <= CreditsTotal whenever CreditsTotal is finite.
//   - PlanID == PlanUnlimited implies CreditsTotal is Unlimited.
//   - ExpiresAt is set for every non-free plan.
type CreditLedger struct {
	PlanID       PlanID     `json:"planId"`
	CreditsUsed  int64      `json:"creditsUsed"`
	CreditsTotal Credits    `json:"creditsTotal"`
	ExpiresAt    *time.Time `json:"expiresAt"`
	Version      int64      `json:"version"`

	// Usage statistics, advanced on every plan including unlimited.
	LifetimeConsumed int64      `json:"lifetimeConsumed"`
	LastConsumedAt   *time.Time `json:"lastConsumedAt,omitempty"`
}

// NewLedger returns the free-tier ledger given to every new account.
func NewLedger(now time.Time) CreditLedger {
	l, _ := CreditLedger{}.Reset(PlanFree, now)
	return l
}

// IsActive reports whether the ledger may be used at now. The free plan is
// always usable; its ExpiresAt only marks the end of the trial window.
func (l CreditLedger) IsActive(now time.Time) bool {
	if l.PlanID == PlanFree {
		return true
	}
	return l.ExpiresAt != nil && now.Before(*l.ExpiresAt)
}

// IsExpired is the demotion predicate used by Reconcile.
func (l CreditLedger) IsExpired(now time.Time) bool {
	if l.PlanID == PlanFree {
		return false
	}
	return l.ExpiresAt == nil || now.After(*l.ExpiresAt)
}

func (l CreditLedger) Remaining() Credits {
	if l.isUnlimited() {
		return Unlimited
	}
	return l.CreditsTotal.Minus(l.CreditsUsed)
}

func (l CreditLedger) CanConsume(amount int64) bool {
	if l.isUnlimited() {
		return true
	}
	total, _ := l.CreditsTotal.Value()
	return l.CreditsUsed+amount <= total
}

// Consume charges amount credits. Unlimited ledgers only advance the usage
// statistics. A ledger without enough credits is returned unchanged with an
// *domain.InsufficientCreditsError.
func (l CreditLedger) Consume(amount int64, now time.Time) (CreditLedger, error) {
	if amount <= 0 {
		return l, domain.NewValidationError("amount", "must be positive")
	}
	if !l.CanConsume(amount) {
		avail, _ := l.Remaining().Value()
		return l, &domain.InsufficientCreditsError{Available: avail, Needed: amount}
	}
	if !l.isUnlimited() {
		l.CreditsUsed += amount
	}
	l.LifetimeConsumed += amount
	t := now
	l.LastConsumedAt = &t
	return l, nil
}

// Reset moves the ledger onto planID with a fresh allotment and validity window.
func (l CreditLedger) Reset(planID PlanID, now time.Time) (CreditLedger, error) {
	plan, err := LookupPlan(planID)
	if err != nil {
		return l, err
	}
	exp := now.Add(plan.Validity())
	l.PlanID = plan.ID
	l.CreditsUsed = 0
	l.CreditsTotal = plan.Credits
	l.ExpiresAt = &exp
	return l, nil
}

// Reconcile demotes an expired paid plan to the free tier. It reports whether
// anything changed; reconciling an active or free ledger is a no-op.
func (l CreditLedger) Reconcile(now time.Time) (CreditLedger, bool) {
	if !l.IsExpired(now) {
		return l, false
	}
	demoted, _ := l.Reset(PlanFree, now)
	return demoted, true
}

// DaysRemaining rounds up and never goes below zero. Nil when no expiry is set.
func (l CreditLedger) DaysRemaining(now time.Time) *int {
	if l.ExpiresAt == nil {
		return nil
	}
	d := int(math.Ceil(l.ExpiresAt.Sub(now).Hours() / 24))
	if d < 0 {
		d = 0
	}
	return &d
}

func (l CreditLedger) isUnlimited() bool {
	return l.PlanID == PlanUnlimited || l.CreditsTotal.IsUnlimited()
}

// LedgerSnapshot is the read-only view handed to clients.
type LedgerSnapshot struct {
	PlanID           PlanID     `json:"planId"`
	CreditsUsed      int64      `json:"creditsUsed"`
	CreditsTotal     Credits    `json:"creditsTotal"`
	CreditsRemaining Credits    `json:"creditsRemaining"`
	ExpiresAt        *time.Time `json:"expiresAt"`
	IsActive         bool       `json:"isActive"`
	DaysRemaining    *int       `json:"daysRemaining"`
	LifetimeConsumed int64      `json:"lifetimeConsumed"`
}

func (l CreditLedger) Snapshot(now time.Time) LedgerSnapshot {
	return LedgerSnapshot{
		PlanID:           l.PlanID,
		CreditsUsed:      l.CreditsUsed,
		CreditsTotal:     l.CreditsTotal,
		CreditsRemaining: l.Remaining(),
		ExpiresAt:        l.ExpiresAt,
		IsActive:         l.IsActive(now),
		DaysRemaining:    l.DaysRemaining(now),
		LifetimeConsumed: l.LifetimeConsumed,
	}
}
