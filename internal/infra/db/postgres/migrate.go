package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"sri-invoice-subscription/internal/domain/model"
)

//go:embed schema.sql
var schemaSQL string

// Migrate applies the idempotent schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// SyncCatalog upserts the in-code plan catalog so foreign keys and reporting
// see the same definitions the services use.
func SyncCatalog(ctx context.Context, pool *pgxpool.Pool) error {
	const q = `
INSERT INTO plans (id, name, credits_total, validity_days, price_cents, currency, features, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW())
ON CONFLICT (id) DO UPDATE SET
  name=$2, credits_total=$3, validity_days=$4, price_cents=$5, currency=$6, features=$7, updated_at=NOW();`
	for _, p := range model.Plans() {
		features, err := json.Marshal(p.Features)
		if err != nil {
			return err
		}
		if _, err := pool.Exec(ctx, q, string(p.ID), p.Name, p.Credits.Nullable(), p.ValidityDays, p.PriceCents, p.Currency, features); err != nil {
			return fmt.Errorf("sync plan %s: %w", p.ID, err)
		}
	}
	return nil
}

// Truncate wipes accounts and payments for a clean manual test environment.
// The plans table is left for SyncCatalog.
func Truncate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `TRUNCATE users, payments RESTART IDENTITY CASCADE;`); err != nil {
		return fmt.Errorf("truncate: %w", err)
	}
	return nil
}
