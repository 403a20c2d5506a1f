package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"sri-invoice-subscription/internal/domain"
	"sri-invoice-subscription/internal/infra/i18n"
	"sri-invoice-subscription/internal/infra/logging"
)

var reasonStatus = map[domain.Reason]int{
	domain.ReasonValidation:          http.StatusBadRequest,
	domain.ReasonUnauthorized:        http.StatusUnauthorized,
	domain.ReasonInvalidCredentials:  http.StatusUnauthorized,
	domain.ReasonInsufficientCredits: http.StatusPaymentRequired,
	domain.ReasonPaymentDeclined:     http.StatusPaymentRequired,
	domain.ReasonAccountInactive:     http.StatusForbidden,
	domain.ReasonDeviceLimit:         http.StatusForbidden,
	domain.ReasonNotFound:            http.StatusNotFound,
	domain.ReasonTrialAlreadyUsed:    http.StatusConflict,
	domain.ReasonPlanStillActive:     http.StatusConflict,
	domain.ReasonEmailTaken:          http.StatusConflict,
	domain.ReasonConcurrencyConflict: http.StatusConflict,
	domain.ReasonInvalidTransition:   http.StatusConflict,
	domain.ReasonRateLimited:         http.StatusTooManyRequests,
	domain.ReasonExternalService:     http.StatusServiceUnavailable,
	domain.ReasonTimeout:             http.StatusGatewayTimeout,
	domain.ReasonPersistence:         http.StatusInternalServerError,
	domain.ReasonInternal:            http.StatusInternalServerError,
}

// StatusFor maps a reason code to its HTTP status.
func StatusFor(r domain.Reason) int {
	if s, ok := reasonStatus[r]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// ErrorBody is the shape of every error response.
type ErrorBody struct {
	Reason  domain.Reason `json:"reason"`
	Message string        `json:"message"`
	Field   string        `json:"field,omitempty"`

	// Set only for INSUFFICIENT_CREDITS.
	CreditsNeeded    *int64 `json:"creditsNeeded,omitempty"`
	CreditsAvailable *int64 `json:"creditsAvailable,omitempty"`
	UpgradeRequired  bool   `json:"upgradeRequired,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError renders err as a localized ErrorBody. Server-side failures are
// logged with their cause and answered with the generic message only.
func WriteError(w http.ResponseWriter, r *http.Request, bundle *i18n.Bundle, logger *zerolog.Logger, err error) {
	reason := domain.ReasonOf(err)
	status := StatusFor(reason)
	tr := bundle.Pick(r.Header.Get("Accept-Language"))

	body := ErrorBody{Reason: reason, Message: tr.T(string(reason))}

	var denied *domain.InsufficientCreditsError
	var invalid *domain.ValidationError
	switch {
	case errors.As(err, &denied):
		needed, avail := denied.Needed, denied.Available
		body.Message = tr.T(string(reason), needed, avail)
		body.CreditsNeeded = &needed
		body.CreditsAvailable = &avail
		body.UpgradeRequired = true
	case errors.As(err, &invalid):
		body.Field = invalid.Field
		body.Message = body.Message + " (" + invalid.Field + ": " + invalid.Msg + ")"
	case reason == domain.ReasonPaymentDeclined:
		body.Message = body.Message + " (" + err.Error() + ")"
	}

	if status >= http.StatusInternalServerError {
		l := logging.With(r.Context(), logger)
		l.Error().Err(err).Str("reason", string(reason)).Str("path", r.URL.Path).Msg("request failed")
	}
	WriteJSON(w, status, body)
}
