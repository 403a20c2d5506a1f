package web

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"sri-invoice-subscription/internal/domain"
	"sri-invoice-subscription/internal/infra/api"
)

var errAdminDisabled = errors.New("admin api key not configured")

// authMiddleware provides static Bearer key authentication for the admin API.
// With no key configured every request is refused.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			s.log.Error().Err(errAdminDisabled).Msg("admin request refused")
			api.WriteJSON(w, http.StatusForbidden, api.ErrorBody{Reason: domain.ReasonUnauthorized, Message: "admin api disabled"})
			return
		}

		authHeader := r.Header.Get("Authorization")
		tokenParts := strings.SplitN(authHeader, " ", 2)
		if len(tokenParts) != 2 || strings.ToLower(tokenParts[0]) != "bearer" {
			api.WriteError(w, r, s.bundle, s.log, domain.ErrUnauthorized)
			return
		}
		if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(tokenParts[1])), []byte(s.apiKey)) != 1 {
			api.WriteJSON(w, http.StatusForbidden, api.ErrorBody{Reason: domain.ReasonUnauthorized, Message: "forbidden"})
			return
		}

		next.ServeHTTP(w, r)
	})
}
