package model

import (
	"time"

	"sri-invoice-subscription/internal/domain"
)

type PaymentStatus string

const (
	PaymentStatusPending             PaymentStatus = "pending"
	PaymentStatusPendingVerification PaymentStatus = "pending_verification" // manual proof awaiting an operator or automated check
	PaymentStatusCompleted           PaymentStatus = "completed"
	PaymentStatusFailed              PaymentStatus = "failed"
	PaymentStatusRefunded            PaymentStatus = "refunded"
)

// transitions lists the only allowed forward moves. There are no reverse edges.
var transitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:             {PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusPendingVerification},
	PaymentStatusPendingVerification: {PaymentStatusCompleted, PaymentStatusFailed},
	PaymentStatusCompleted:           {PaymentStatusRefunded},
}

// CanTransition reports whether from -> to is a legal status move.
func CanTransition(from, to PaymentStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s PaymentStatus) Terminal() bool { return len(transitions[s]) == 0 }

type PaymentMethod string

const (
	MethodCreditCard PaymentMethod = "credit_card"
	MethodTransfer   PaymentMethod = "transfer"
	MethodDeposit    PaymentMethod = "deposit"
	MethodFree       PaymentMethod = "free"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCreditCard, MethodTransfer, MethodDeposit, MethodFree:
		return true
	}
	return false
}

// PaymentProof carries the method-specific fields submitted with a settlement.
// Only the redacted form (see Redacted) is ever persisted.
type PaymentProof struct {
	CardNumber     string `json:"cardNumber,omitempty"`
	CardHolder     string `json:"cardHolder,omitempty"`
	Expiry         string `json:"expiry,omitempty"`
	CVC            string `json:"cvc,omitempty"`
	BankName       string `json:"bankName,omitempty"`
	Reference      string `json:"reference,omitempty"`
	DepositorName  string `json:"depositorName,omitempty"`
	ReceiptURL     string `json:"receiptUrl,omitempty"`
	CardLastDigits string `json:"cardLastDigits,omitempty"`
}

// Redacted drops the card number and CVC, keeping the last four digits.
func (p PaymentProof) Redacted() PaymentProof {
	if n := len(p.CardNumber); n >= 4 {
		p.CardLastDigits = p.CardNumber[n-4:]
	}
	p.CardNumber = ""
	p.CVC = ""
	return p
}

type RefundInfo struct {
	AmountCents         int64     `json:"amountCents"`
	Reason              string    `json:"reason"`
	RefundTransactionID string    `json:"refundTransactionId"`
	RefundedAt          time.Time `json:"refundedAt"`
}

// Payment is one settlement attempt. Records are never deleted.
type Payment struct {
	ID               string        `json:"id"`
	UserID           string        `json:"userId"`
	PlanID           PlanID        `json:"planId"`
	AmountCents      int64         `json:"amountCents"`
	Currency         string        `json:"currency"`
	Method           PaymentMethod `json:"method"`
	Status           PaymentStatus `json:"status"`
	TransactionID    string        `json:"transactionId"`
	Proof            PaymentProof  `json:"proof"`
	FailureReason    string        `json:"failureReason,omitempty"`
	Refund           *RefundInfo   `json:"refund,omitempty"`
	NotificationSent bool          `json:"notificationSent"`
	CreatedAt        time.Time     `json:"createdAt"`
	ProcessedAt      *time.Time    `json:"processedAt,omitempty"`
}

// NewPayment builds a pending record whose amount is taken from the catalog.
func NewPayment(id, userID string, plan PlanDefinition, method PaymentMethod, txID string, proof PaymentProof, now time.Time) (*Payment, error) {
	if id == "" || userID == "" || txID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if !method.Valid() {
		return nil, domain.NewValidationError("paymentMethod", "unsupported method")
	}
	return &Payment{
		ID:            id,
		UserID:        userID,
		PlanID:        plan.ID,
		AmountCents:   plan.PriceCents,
		Currency:      plan.Currency,
		Method:        method,
		Status:        PaymentStatusPending,
		TransactionID: txID,
		Proof:         proof.Redacted(),
		CreatedAt:     now,
	}, nil
}

// MoveTo applies a status transition in memory, stamping ProcessedAt.
func (p *Payment) MoveTo(to PaymentStatus, now time.Time) error {
	if !CanTransition(p.Status, to) {
		return domain.ErrInvalidTransition
	}
	p.Status = to
	t := now
	p.ProcessedAt = &t
	return nil
}

// NeedsNotification is true for completed paid activations not yet announced.
func (p *Payment) NeedsNotification() bool {
	return p.Status == PaymentStatusCompleted && p.PlanID != PlanFree && !p.NotificationSent
}

// PaymentStats aggregates payments over a time window.
type PaymentStats struct {
	From       time.Time                    `json:"from"`
	To         time.Time                    `json:"to"`
	ByStatus   map[PaymentStatus]StatBucket `json:"byStatus"`
	ByPlan     map[PlanID]StatBucket        `json:"byPlan"`
	Revenue    int64                        `json:"revenueCents"`
	Refunded   int64                        `json:"refundedCents"`
	TotalCount int                          `json:"totalCount"`
}

type StatBucket struct {
	Count       int   `json:"count"`
	AmountCents int64 `json:"amountCents"`
}
