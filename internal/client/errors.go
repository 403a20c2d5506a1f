package client

import (
	"fmt"

	"sri-invoice-subscription/internal/domain"
)

// APIError is a non-2xx answer from the server, decoded from its error body.
type APIError struct {
	Status  int
	Reason  domain.Reason
	Message string
	Field   string

	CreditsNeeded    int64
	CreditsAvailable int64
	UpgradeRequired  bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Reason, e.Status, e.Message)
}

var reasonSentinels = map[domain.Reason]error{
	domain.ReasonValidation:          domain.ErrInvalidArgument,
	domain.ReasonUnauthorized:        domain.ErrUnauthorized,
	domain.ReasonInvalidCredentials:  domain.ErrInvalidCredentials,
	domain.ReasonInsufficientCredits: domain.ErrInsufficientCredits,
	domain.ReasonAccountInactive:     domain.ErrAccountInactive,
	domain.ReasonDeviceLimit:         domain.ErrDeviceLimitReached,
	domain.ReasonNotFound:            domain.ErrNotFound,
	domain.ReasonTrialAlreadyUsed:    domain.ErrTrialAlreadyUsed,
	domain.ReasonPlanStillActive:     domain.ErrPlanStillActive,
	domain.ReasonEmailTaken:          domain.ErrEmailTaken,
	domain.ReasonConcurrencyConflict: domain.ErrConcurrencyConflict,
	domain.ReasonInvalidTransition:   domain.ErrInvalidTransition,
	domain.ReasonPaymentDeclined:     domain.ErrPaymentDeclined,
	domain.ReasonRateLimited:         domain.ErrRateLimited,
	domain.ReasonExternalService:     domain.ErrExternalService,
	domain.ReasonPersistence:         domain.ErrPersistence,
}

// Unwrap lets callers test server failures with errors.Is against the
// domain sentinels, e.g. errors.Is(err, domain.ErrInsufficientCredits).
func (e *APIError) Unwrap() error { return reasonSentinels[e.Reason] }

// Transient reports whether the request may succeed when retried later.
func (e *APIError) Transient() bool { return e.Reason.Transient() }
