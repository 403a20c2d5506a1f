// Package apiv1 is the public JSON API consumed by the browser extension and
// the downloader CLI.
package apiv1

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"sri-invoice-subscription/internal/infra/api"
	"sri-invoice-subscription/internal/infra/i18n"
	"sri-invoice-subscription/internal/usecase"
)

type Server struct {
	accounts   usecase.AccountUseCase
	catalog    usecase.CatalogUseCase
	ledger     usecase.LedgerUseCase
	guard      usecase.EntitlementGuard
	settlement usecase.SettlementUseCase
	downloads  usecase.DownloadUseCase

	limiter         usecase.RateLimiter
	settlePerMinute int

	bundle *i18n.Bundle
	log    *zerolog.Logger
	now    func() time.Time
}

// Deps groups the use cases behind the API. Limiter may be nil.
type Deps struct {
	Accounts   usecase.AccountUseCase
	Catalog    usecase.CatalogUseCase
	Ledger     usecase.LedgerUseCase
	Guard      usecase.EntitlementGuard
	Settlement usecase.SettlementUseCase
	Downloads  usecase.DownloadUseCase

	Limiter         usecase.RateLimiter
	SettlePerMinute int
	Bundle          *i18n.Bundle
}

func NewServer(d Deps, logger *zerolog.Logger) *Server {
	if d.Bundle == nil {
		d.Bundle = i18n.MustDefaultBundle()
	}
	if d.SettlePerMinute <= 0 {
		d.SettlePerMinute = 5
	}
	return &Server{
		accounts:        d.Accounts,
		catalog:         d.Catalog,
		ledger:          d.Ledger,
		guard:           d.Guard,
		settlement:      d.Settlement,
		downloads:       d.Downloads,
		limiter:         d.Limiter,
		settlePerMinute: d.SettlePerMinute,
		bundle:          d.Bundle,
		log:             logger,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// RegisterAPIV1 mounts every /api/v1 route on r.
func RegisterAPIV1(r chi.Router, s *Server) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", s.register)
		r.Post("/auth/login", s.login)
		r.Get("/plans", s.listPlans)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Get("/auth/validate", s.validate)
			r.Get("/ledger", s.getLedger)
			r.Post("/ledger/authorize", s.authorize)

			r.With(s.settleRateLimit).Post("/payments", s.settle)
			r.Get("/payments", s.listPayments)
			r.Get("/payments/{id}", s.getPayment)

			r.Post("/invoices/download", s.download)
			r.Put("/account/portal-credentials", s.setPortalCredentials)
		})
	})
}

// Router is the complete public handler: CORS for the extension origins,
// tracing, logging, metrics and a per-request deadline around the routes.
func Router(s *Server, origins []string, requestTimeout time.Duration) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(corsOptions(origins)))
	r.Use(
		api.TraceID(),
		api.RequestLog(s.log),
		api.Recover(s.log),
		api.Metrics(),
		api.Timeout(requestTimeout),
	)
	RegisterAPIV1(r, s)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		api.WriteJSON(w, http.StatusNotFound, api.ErrorBody{Reason: "NOT_FOUND", Message: "route not found"})
	})
	return r
}

func corsOptions(origins []string) cors.Options {
	opts := cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Accept-Language", "Authorization", "Content-Type", api.TraceHeader},
		ExposedHeaders:   []string{api.TraceHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}
	if len(origins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return opts
}
