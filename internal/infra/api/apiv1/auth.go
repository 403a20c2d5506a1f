package apiv1

import (
	"context"
	"net/http"
	"strings"
	"time"

	"sri-invoice-subscription/internal/domain"
	"sri-invoice-subscription/internal/domain/model"
	"sri-invoice-subscription/internal/infra/api"
	"sri-invoice-subscription/internal/infra/logging"
	red "sri-invoice-subscription/internal/infra/redis"
)

type ctxKey struct{}

func userFrom(ctx context.Context) *model.User {
	u, _ := ctx.Value(ctxKey{}).(*model.User)
	return u
}

// authenticate resolves the bearer token to an active, reconciled account.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hdr := r.Header.Get("Authorization")
		if len(hdr) < 7 || !strings.EqualFold(hdr[:7], "bearer ") {
			s.fail(w, r, domain.ErrUnauthorized)
			return
		}
		user, err := s.accounts.Authenticate(r.Context(), strings.TrimSpace(hdr[7:]))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKey{}, user)
		ctx = logging.WithUserID(ctx, user.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// settleRateLimit caps settlement attempts per user. A limiter outage lets
// the request through; settlement holds its own per-user lock.
func (s *Server) settleRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		u := userFrom(r.Context())
		ok, err := s.limiter.Allow(r.Context(), red.SettleKey(u.ID), s.settlePerMinute, time.Minute)
		if err != nil {
			l := logging.With(r.Context(), s.log)
			l.Warn().Err(err).Msg("settle rate limiter unavailable")
		} else if !ok {
			s.fail(w, r, domain.ErrRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	api.WriteError(w, r, s.bundle, s.log, err)
}
