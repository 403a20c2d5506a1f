package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound             = errors.New("entity not found")
	ErrAlreadyExists        = errors.New("entity already exists")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrInsufficientCredits  = errors.New("insufficient credits")
	ErrTrialAlreadyUsed     = errors.New("free trial already used")
	ErrConcurrencyConflict  = errors.New("concurrent ledger update")
	ErrInvalidTransition    = errors.New("invalid payment status transition")
	ErrAccountInactive      = errors.New("account is not active")
	ErrDeviceLimitReached   = errors.New("device limit reached")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrReservationFinalized = errors.New("reservation already finalized")
	ErrRateLimited          = errors.New("rate limited")
	ErrExternalService      = errors.New("external service unavailable")
	ErrPersistence          = errors.New("persistence failure")
	ErrPaymentDeclined      = errors.New("payment declined")
	ErrPlanStillActive      = errors.New("a paid plan is still active")

	ErrPlanNotFound = fmt.Errorf("plan: %w", ErrNotFound)
	ErrEmailTaken   = fmt.Errorf("email: %w", ErrAlreadyExists)

	// Store-level failures; all of them satisfy errors.Is(err, ErrPersistence).
	ErrOperationFailed    = fmt.Errorf("%w: operation failed", ErrPersistence)
	ErrReadDatabaseRow    = fmt.Errorf("%w: failed to read database row", ErrPersistence)
	ErrInvalidExecContext = fmt.Errorf("%w: invalid exec context", ErrPersistence)
)

// ValidationError reports malformed or missing input. It is never retried.
type ValidationError struct {
	Field string
	Msg   string
}

func NewValidationError(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Msg
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Msg)
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidArgument }

// InsufficientCreditsError is the denial returned by the entitlement guard and
// by ledger consumption. Available is always finite: unlimited ledgers never deny.
type InsufficientCreditsError struct {
	Available int64
	Needed    int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: available %d, needed %d", e.Available, e.Needed)
}

func (e *InsufficientCreditsError) Is(target error) bool { return target == ErrInsufficientCredits }

// ConcurrencyConflictError is surfaced once the bounded optimistic retries are spent.
type ConcurrencyConflictError struct {
	Attempts int
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("ledger update conflicted after %d attempts", e.Attempts)
}

func (e *ConcurrencyConflictError) Is(target error) bool { return target == ErrConcurrencyConflict }

// ExternalServiceError marks a transient failure of a collaborator (portal, mailer,
// payment verification). Callers may retry it with backoff.
type ExternalServiceError struct {
	Service string
	Err     error
}

func NewExternalServiceError(service string, err error) error {
	return &ExternalServiceError{Service: service, Err: err}
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

func (e *ExternalServiceError) Is(target error) bool { return target == ErrExternalService }
