// Package web is the operator-facing admin API. It listens on its own port
// and is never exposed to extension clients.
package web

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"sri-invoice-subscription/internal/domain/ports/repository"
	"sri-invoice-subscription/internal/infra/api"
	"sri-invoice-subscription/internal/infra/i18n"
	"sri-invoice-subscription/internal/usecase"
)

// Sweeper runs one expiry pass on demand.
type Sweeper interface {
	RunOnce(ctx context.Context) (int, error)
}

// StatementBook receives credited bank statement lines for automated
// transfer verification.
type StatementBook interface {
	Credit(reference string, amountCents int64)
}

// Reconciler resolves pending transfers against the statement book.
type Reconciler interface {
	Tick(ctx context.Context) int
}

type Server struct {
	settlement usecase.SettlementUseCase
	accounts   usecase.AccountUseCase
	users      repository.UserRepository
	sweeper    Sweeper
	statements StatementBook
	reconciler Reconciler
	apiKey     string
	bundle     *i18n.Bundle
	log        *zerolog.Logger
}

func NewServer(
	settlement usecase.SettlementUseCase,
	accounts usecase.AccountUseCase,
	users repository.UserRepository,
	sweeper Sweeper,
	statements StatementBook,
	reconciler Reconciler,
	apiKey string,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "admin").Logger()
	return &Server{
		settlement: settlement,
		accounts:   accounts,
		users:      users,
		sweeper:    sweeper,
		statements: statements,
		reconciler: reconciler,
		apiKey:     apiKey,
		bundle:     i18n.MustDefaultBundle(),
		log:        &l,
	}
}

// RegisterRoutes sets up the routing for the admin API.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	// All admin routes are behind the auth middleware
	mux.Handle("GET /admin/v1/stats", s.authMiddleware(statsHandler(s.settlement, s.users, s)))
	mux.Handle("POST /admin/v1/payments/{id}/verify", s.authMiddleware(verifyHandler(s.settlement, s)))
	mux.Handle("POST /admin/v1/payments/{id}/refund", s.authMiddleware(refundHandler(s.settlement, s)))
	mux.Handle("POST /admin/v1/users/{id}/status", s.authMiddleware(userStatusHandler(s.accounts, s)))
	mux.Handle("POST /admin/v1/sweep", s.authMiddleware(sweepHandler(s.sweeper, s)))
	mux.Handle("POST /admin/v1/statements", s.authMiddleware(statementsHandler(s.statements, s.reconciler, s)))
}

// Handler wraps the admin routes with the shared middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return api.Chain(mux, api.TraceID(), api.RequestLog(s.log), api.Recover(s.log))
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	api.WriteError(w, r, s.bundle, s.log, err)
}
