package adapter

import (
	"context"

	"sri-invoice-subscription/internal/domain/model"
)

// CaptureMode tells settlement whether entitlement can be granted right away.
type CaptureMode string

const (
	CaptureImmediate CaptureMode = "immediate" // funds confirmed synchronously
	CaptureManual    CaptureMode = "manual"    // proof recorded, needs verification
)

// CaptureResult is the provider-agnostic outcome of one capture.
type CaptureResult struct {
	Mode          CaptureMode
	Approved      bool
	Reference     string
	FailureReason string
}

// PaymentCapturer is the capability each payment method implements. A
// declined payment is a result with Approved=false, not an error; errors are
// reserved for an unreachable provider.
type PaymentCapturer interface {
	Method() model.PaymentMethod
	Capture(ctx context.Context, amountCents int64, proof model.PaymentProof) (CaptureResult, error)
}

type VerificationOutcome string

const (
	VerificationApproved     VerificationOutcome = "approved"
	VerificationRejected     VerificationOutcome = "rejected"
	VerificationUndetermined VerificationOutcome = "undetermined" // leave for an operator
)

// PaymentVerifier is the automated check for manual-proof payments
// (bank transfer and deposit reconciliation).
type PaymentVerifier interface {
	Verify(ctx context.Context, p *model.Payment) (VerificationOutcome, string, error)
}

// CapturerRegistry resolves the capturer for a method once per settlement.
// Unsupported methods yield a *domain.ValidationError.
type CapturerRegistry interface {
	Capturer(method model.PaymentMethod) (PaymentCapturer, error)
}
