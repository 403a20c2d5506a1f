package repository

import (
	"context"
	"time"

	"sri-invoice-subscription/internal/domain/model"
)

// -----------------------------
// Payments
// -----------------------------

type PaymentRepository interface {
	// Save inserts a new record. Payments are append-only; status changes go
	// through UpdateStatusIf.
	Save(ctx context.Context, tx Tx, p *model.Payment) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Payment, error)
	// UpdateStatusIf persists p's status, processed time, failure reason and
	// refund info only if the stored status still equals from.
	UpdateStatusIf(ctx context.Context, tx Tx, p *model.Payment, from model.PaymentStatus) (bool, error)
	// HasCompletedFree reports whether the user ever held a completed free-plan payment.
	HasCompletedFree(ctx context.Context, tx Tx, userID string) (bool, error)
	ListByUser(ctx context.Context, tx Tx, userID string, limit int) ([]*model.Payment, error)
	ListPendingVerification(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.Payment, error)
	ListUnnotified(ctx context.Context, tx Tx, limit int) ([]*model.Payment, error)
	MarkNotified(ctx context.Context, tx Tx, id string) error
	Stats(ctx context.Context, tx Tx, from, to time.Time) (*model.PaymentStats, error)
}
