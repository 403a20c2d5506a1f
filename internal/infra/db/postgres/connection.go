package postgres

import (
	"context"
	"fmt"
	"time"

	"sri-invoice-subscription/internal/infra/metrics"

	"github.com/jackc/pgx/v4/pgxpool"
)

// NewPgxPool connects with a bounded pool and verifies the connection.
func NewPgxPool(ctx context.Context, url string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.HealthCheckPeriod = 30 * time.Second

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// ReportPoolStats publishes pool gauges every interval until ctx is done.
func ReportPoolStats(ctx context.Context, pool *pgxpool.Pool, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		s := pool.Stat()
		metrics.SetLedgerStorePool(s.MaxConns(), s.TotalConns(), s.IdleConns(), s.AcquiredConns(), s.EmptyAcquireCount())
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
