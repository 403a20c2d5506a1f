package domain

import (
	"context"
	"errors"
)

// Reason is the stable, client-facing code attached to every user-visible failure.
type Reason string

const (
	ReasonValidation          Reason = "VALIDATION_ERROR"
	ReasonUnauthorized        Reason = "UNAUTHORIZED"
	ReasonInvalidCredentials  Reason = "INVALID_CREDENTIALS"
	ReasonInsufficientCredits Reason = "INSUFFICIENT_CREDITS"
	ReasonAccountInactive     Reason = "ACCOUNT_INACTIVE"
	ReasonDeviceLimit         Reason = "DEVICE_LIMIT_REACHED"
	ReasonNotFound            Reason = "NOT_FOUND"
	ReasonTrialAlreadyUsed    Reason = "TRIAL_ALREADY_USED"
	ReasonPlanStillActive     Reason = "PLAN_ALREADY_ACTIVE"
	ReasonEmailTaken          Reason = "EMAIL_TAKEN"
	ReasonConcurrencyConflict Reason = "CONCURRENCY_CONFLICT"
	ReasonInvalidTransition   Reason = "INVALID_TRANSITION"
	ReasonPaymentDeclined     Reason = "PAYMENT_DECLINED"
	ReasonRateLimited         Reason = "RATE_LIMITED"
	ReasonExternalService     Reason = "EXTERNAL_SERVICE_ERROR"
	ReasonTimeout             Reason = "TIMEOUT"
	ReasonPersistence         Reason = "PERSISTENCE_ERROR"
	ReasonInternal            Reason = "INTERNAL"
)

// ReasonOf maps err to its reason code. Order matters: the more specific
// sentinels wrap the generic ones (ErrEmailTaken wraps ErrAlreadyExists).
func ReasonOf(err error) Reason {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInsufficientCredits):
		return ReasonInsufficientCredits
	case errors.Is(err, ErrTrialAlreadyUsed):
		return ReasonTrialAlreadyUsed
	case errors.Is(err, ErrPlanStillActive):
		return ReasonPlanStillActive
	case errors.Is(err, ErrInvalidArgument):
		return ReasonValidation
	case errors.Is(err, ErrEmailTaken):
		return ReasonEmailTaken
	case errors.Is(err, ErrInvalidCredentials):
		return ReasonInvalidCredentials
	case errors.Is(err, ErrUnauthorized):
		return ReasonUnauthorized
	case errors.Is(err, ErrAccountInactive):
		return ReasonAccountInactive
	case errors.Is(err, ErrDeviceLimitReached):
		return ReasonDeviceLimit
	case errors.Is(err, ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, ErrConcurrencyConflict):
		return ReasonConcurrencyConflict
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrReservationFinalized):
		return ReasonInvalidTransition
	case errors.Is(err, ErrPaymentDeclined):
		return ReasonPaymentDeclined
	case errors.Is(err, ErrRateLimited):
		return ReasonRateLimited
	case errors.Is(err, ErrExternalService):
		return ReasonExternalService
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, ErrPersistence):
		return ReasonPersistence
	default:
		return ReasonInternal
	}
}

// Transient reports whether a caller may retry the failed operation later.
func (r Reason) Transient() bool {
	switch r {
	case ReasonExternalService, ReasonTimeout, ReasonConcurrencyConflict, ReasonRateLimited:
		return true
	}
	return false
}
