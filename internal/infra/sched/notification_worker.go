package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"sri-invoice-subscription/internal/usecase"
)

// NotificationWorker drains the payment confirmation outbox. Confirmations
// queued at settlement time that were dropped or failed are picked up here.
type NotificationWorker struct {
	interval time.Duration
	batch    int
	notifUC  usecase.NotificationUseCase
	log      *zerolog.Logger
}

func NewNotificationWorker(interval time.Duration, notifUC usecase.NotificationUseCase, logger *zerolog.Logger) *NotificationWorker {
	compLog := logger.With().Str("component", "NotificationWorker").Logger()
	return &NotificationWorker{
		interval: interval,
		batch:    100,
		notifUC:  notifUC,
		log:      &compLog,
	}
}

func (w *NotificationWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting notification worker")
	// Run once on startup, then on every tick
	w.runCheck(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping notification worker")
			return ctx.Err()
		case <-ticker.C:
			w.runCheck(ctx)
		}
	}
}

func (w *NotificationWorker) runCheck(ctx context.Context) {
	sent, err := w.notifUC.SendPending(ctx, w.batch)
	if err != nil && ctx.Err() == nil {
		w.log.Error().Err(err).Msg("outbox drain failed")
	}
	if sent > 0 {
		w.log.Info().Int("count", sent).Msg("payment confirmations sent")
	}
}
