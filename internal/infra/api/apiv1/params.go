package apiv1

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"

	"sri-invoice-subscription/internal/domain"
)

const (
	maxBodyBytes = 64 << 10
	defaultLimit = 20
	maxLimit     = 100
)

// decodeBody reads a JSON body strictly: unknown fields and trailing data
// are rejected.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.NewValidationError("body", "is required")
		}
		return domain.NewValidationError("body", "malformed JSON")
	}
	if dec.More() {
		return domain.NewValidationError("body", "must hold a single JSON object")
	}
	return nil
}

// paymentIDParam binds the {id} path segment.
func paymentIDParam(r *http.Request) (string, error) {
	var id string
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		return "", domain.NewValidationError("id", "invalid path parameter")
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", domain.NewValidationError("id", "must be a UUID")
	}
	return id, nil
}

// limitParam binds ?limit=, defaulting to 20 and capping at 100.
func limitParam(r *http.Request) (int, error) {
	var limit *int
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		return 0, domain.NewValidationError("limit", "must be an integer")
	}
	switch {
	case limit == nil:
		return defaultLimit, nil
	case *limit <= 0:
		return 0, domain.NewValidationError("limit", "must be positive")
	case *limit > maxLimit:
		return maxLimit, nil
	}
	return *limit, nil
}

// parseDay accepts a calendar date (2006-01-02) or a full RFC 3339 time.
func parseDay(field, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, domain.NewValidationError(field, "must be a date (YYYY-MM-DD)")
	}
	return t.UTC(), nil
}

// toCents converts a decimal currency amount to integer cents.
func toCents(amount *float64) (*int64, error) {
	if amount == nil {
		return nil, nil
	}
	if *amount < 0 || math.IsNaN(*amount) || math.IsInf(*amount, 0) {
		return nil, domain.NewValidationError("amount", "must be a non-negative number")
	}
	c := int64(math.Round(*amount * 100))
	return &c, nil
}
