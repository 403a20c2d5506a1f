// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"sri-invoice-subscription/internal/config"
	"sri-invoice-subscription/internal/domain/ports/adapter"
	mailAdapters "sri-invoice-subscription/internal/infra/adapters/mail"
	payAdapters "sri-invoice-subscription/internal/infra/adapters/payment"
	portalAdapters "sri-invoice-subscription/internal/infra/adapters/portal"
	"sri-invoice-subscription/internal/infra/api"
	"sri-invoice-subscription/internal/infra/api/apiv1"
	pg "sri-invoice-subscription/internal/infra/db/postgres"
	"sri-invoice-subscription/internal/infra/i18n"
	"sri-invoice-subscription/internal/infra/logging"
	"sri-invoice-subscription/internal/infra/metrics"
	red "sri-invoice-subscription/internal/infra/redis"
	"sri-invoice-subscription/internal/infra/sched"
	"sri-invoice-subscription/internal/infra/security"
	"sri-invoice-subscription/internal/infra/web"
	"sri-invoice-subscription/internal/infra/worker"
	"sri-invoice-subscription/internal/usecase"
)

// Set through -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, offline portal)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	if err := pg.Migrate(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}
	if err := pg.SyncCatalog(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("sync catalog")
	}

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient)
	locker := red.NewLocker(redisClient)

	// ---- Security ----
	encKey := cfg.Security.EncryptionKey
	if len(encKey) != 32 {
		if !cfg.Runtime.Dev {
			logger.Fatal().Msg("security.encryption_key must be 32 bytes")
		}
		logger.Warn().Msg("security.encryption_key not set or not 32 bytes; falling back to dev key (INSECURE)")
		encKey = "0123456789abcdef0123456789abcdef"
	}
	encSvc, err := security.NewEncryptionService(encKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("encryption")
	}
	tokens := security.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	hasher := security.NewBcryptHasher(0)

	// ---- Repositories ----
	userRepo := pg.NewUserRepoCacheDecorator(pg.NewUserRepo(pool), redisClient, cfg.Redis.TTL)
	payRepo := pg.NewPaymentRepo(pool)
	txManager := pg.NewTxManager(pool)

	// ---- Adapters ----
	bundle := i18n.MustDefaultBundle()
	composer := mailAdapters.NewComposer(userRepo, payRepo, bundle.Pick(i18n.DefaultLang))
	var mailer adapter.Mailer
	if cfg.Mail.SMTPHost != "" {
		mailer = mailAdapters.NewSMTPMailer(cfg.Mail, composer)
		logger.Info().Str("host", cfg.Mail.SMTPHost).Msg("mailer: smtp")
	} else {
		mailer = mailAdapters.NewLogMailer(composer, logger)
		logger.Info().Msg("mailer: log only")
	}

	var portal adapter.Portal
	if cfg.Portal.BaseURL != "" {
		hp, err := portalAdapters.NewHTTPPortal(cfg.Portal.BaseURL, cfg.Portal.Timeout)
		if err != nil {
			logger.Fatal().Err(err).Msg("portal")
		}
		portal = hp
		logger.Info().Str("base", cfg.Portal.BaseURL).Msg("portal: http")
	} else {
		portal = portalAdapters.NewStubPortal(3)
		logger.Warn().Msg("portal: offline stub")
	}
	portal = portalAdapters.NewLimitedPortal(portal, cfg.Portal.MaxConcurrent)

	capturers := payAdapters.NewDefaultRegistry()
	verifier := payAdapters.NewStatementVerifier()

	// ---- Background task pool ----
	tasks := worker.NewPool(cfg.Scheduler.NotificationWorkers, logger)
	tasks.Start(ctx)
	defer tasks.Stop()

	// ---- Use cases ----
	catalogUC := usecase.NewCatalogUseCase()
	ledgerUC := usecase.NewLedgerUseCase(userRepo, txManager, logger)
	guard := usecase.NewEntitlementGuard(ledgerUC, logger)
	accountUC := usecase.NewAccountUseCase(userRepo, payRepo, txManager, ledgerUC, hasher, encSvc, tokens, rateLimiter, cfg.RateLimit.LoginPerMinute, logger)
	notifUC := usecase.NewNotificationUseCase(payRepo, mailer, logger)
	settlementUC := usecase.NewSettlementUseCase(
		userRepo, payRepo, txManager, ledgerUC, capturers, notifUC, tasks, locker,
		usecase.SettlementOptions{RevokeOnRefund: cfg.Settlement.RevokeOnRefund, LockTTL: cfg.Settlement.LockTTL},
		logger,
	)
	downloadUC := usecase.NewDownloadUseCase(guard, accountUC, portal, usecase.DownloadOptions{
		Timeout:     cfg.Portal.Timeout,
		MaxAttempts: cfg.Portal.MaxAttempts,
	}, logger)

	// ---- Workers ----
	expiry := sched.NewExpiryWorker(cfg.Scheduler.ExpiryInterval, cfg.Scheduler.ExpiryBatch, ledgerUC, userRepo, logger)
	reconciler := sched.NewVerificationReconciler(settlementUC, payRepo, verifier,
		cfg.Scheduler.VerificationInterval, cfg.Scheduler.VerificationStaleAfter, logger)
	outbox := sched.NewNotificationWorker(cfg.Scheduler.NotificationInterval, notifUC, logger)

	// ---- HTTP ----
	apiSrv := apiv1.NewServer(apiv1.Deps{
		Accounts:        accountUC,
		Catalog:         catalogUC,
		Ledger:          ledgerUC,
		Guard:           guard,
		Settlement:      settlementUC,
		Downloads:       downloadUC,
		Limiter:         rateLimiter,
		SettlePerMinute: cfg.RateLimit.SettlePerMinute,
		Bundle:          bundle,
	}, logger)
	ops := api.OpsHandler(map[string]api.Pinger{"postgres": pool, "redis": redisClient})
	router := chi.NewRouter()
	router.Handle("/healthz", ops)
	router.Handle("/metrics", ops)
	router.Mount("/", apiv1.Router(apiSrv, cfg.HTTP.CORSOrigins, cfg.HTTP.RequestTimeout))
	publicServer := api.NewHTTPServer(cfg.HTTP.Port, cfg.HTTP, router)

	adminSrv := web.NewServer(settlementUC, accountUC, userRepo, expiry, verifier, reconciler, cfg.Admin.APIKey, logger)
	adminServer := api.NewHTTPServer(cfg.Admin.Port, cfg.HTTP, adminSrv.Handler())

	g, gctx := errgroup.WithContext(ctx)
	serve := func(name string, s *http.Server) func() error {
		return func() error {
			logger.Info().Str("server", name).Str("addr", s.Addr).Msg("listening")
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		}
	}
	g.Go(serve("public", publicServer))
	g.Go(serve("admin", adminServer))
	g.Go(func() error { return ignoreCanceled(expiry.Run(gctx)) })
	g.Go(func() error { return ignoreCanceled(reconciler.Run(gctx)) })
	g.Go(func() error { return ignoreCanceled(outbox.Run(gctx)) })
	g.Go(func() error { pg.ReportPoolStats(gctx, pool, 15*time.Second); return nil })

	// ---- Graceful shutdown ----
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return errors.Join(publicServer.Shutdown(shutdownCtx), adminServer.Shutdown(shutdownCtx))
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("bye")
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
