package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"sri-invoice-subscription/internal/domain/ports/repository"
	"sri-invoice-subscription/internal/infra/metrics"
	"sri-invoice-subscription/internal/usecase"
)

// ExpiryWorker is the eager expiry trigger: it demotes lapsed paid plans so
// they do not linger until their owner next shows up.
type ExpiryWorker struct {
	interval time.Duration
	batch    int
	ledger   usecase.LedgerUseCase
	users    repository.UserRepository
	log      *zerolog.Logger
}

func NewExpiryWorker(interval time.Duration, batch int, ledger usecase.LedgerUseCase, users repository.UserRepository, logger *zerolog.Logger) *ExpiryWorker {
	exprLog := logger.With().Str("component", "ExpiryWorker").Logger()
	if batch <= 0 {
		batch = 200
	}
	return &ExpiryWorker{
		interval: interval,
		batch:    batch,
		ledger:   ledger,
		users:    users,
		log:      &exprLog,
	}
}

func (w *ExpiryWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting expiry worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping expiry worker")
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
				w.log.Error().Err(err).Msg("expiry sweep failed")
			}
		}
	}
}

// RunOnce sweeps batch after batch until a batch comes back short, then
// refreshes the per-plan gauge. It is idempotent.
func (w *ExpiryWorker) RunOnce(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := w.ledger.SweepExpired(ctx, w.batch)
		total += n
		if err != nil {
			metrics.IncSweepRun("error")
			return total, err
		}
		if n < w.batch || ctx.Err() != nil {
			break
		}
	}
	metrics.IncSweepRun("ok")
	if total > 0 {
		w.log.Info().Int("count", total).Msg("expired ledgers demoted")
	}

	counts, err := w.users.CountByPlan(ctx, repository.NoTX)
	if err != nil {
		w.log.Warn().Err(err).Msg("plan gauge refresh failed")
		return total, nil
	}
	byPlan := make(map[string]int, len(counts))
	for plan, n := range counts {
		byPlan[string(plan)] = n
	}
	metrics.SetLedgersByPlan(byPlan)
	return total, nil
}
