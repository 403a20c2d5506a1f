package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"sri-invoice-subscription/internal/domain"
	"sri-invoice-subscription/internal/domain/model"
	"sri-invoice-subscription/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `id, user_id, plan_id, amount_cents, currency, method, status, transaction_id,
  proof, failure_reason, refund, notification_sent, created_at, processed_at`

func (r *paymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	proof, err := json.Marshal(p.Proof.Redacted())
	if err != nil {
		return err
	}
	refund, err := refundJSON(p.Refund)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO payments (` + paymentColumns + `) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
);`
	_, err = execSQL(ctx, r.pool, tx, q,
		p.ID, p.UserID, string(p.PlanID), p.AmountCents, p.Currency, string(p.Method), string(p.Status), p.TransactionID,
		proof, p.FailureReason, refund, p.NotificationSent, p.CreatedAt, p.ProcessedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("payment %s: %w", p.ID, domain.ErrAlreadyExists)
		}
		return mapErr("save payment", err)
	}
	return nil
}

// FindByID locks the row when called inside a transaction.
func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) UpdateStatusIf(ctx context.Context, tx repository.Tx, p *model.Payment, from model.PaymentStatus) (bool, error) {
	refund, err := refundJSON(p.Refund)
	if err != nil {
		return false, err
	}
	const q = `
UPDATE payments
   SET status=$3, processed_at=$4, failure_reason=$5, refund=$6
 WHERE id=$1 AND status=$2;`
	cmd, err := execSQL(ctx, r.pool, tx, q, p.ID, string(from), string(p.Status), p.ProcessedAt, p.FailureReason, refund)
	if err != nil {
		return false, mapErr("update payment status", err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *paymentRepo) HasCompletedFree(ctx context.Context, tx repository.Tx, userID string) (bool, error) {
	const q = `
SELECT EXISTS (
  SELECT 1 FROM payments
   WHERE user_id=$1 AND plan_id='free' AND status IN ('completed','refunded')
);`
	row, err := pickRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return false, err
	}
	var used bool
	if err := row.Scan(&used); err != nil {
		return false, mapErr("trial lookup", err)
	}
	return used, nil
}

func (r *paymentRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.Payment, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const q = `SELECT ` + paymentColumns + ` FROM payments WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2;`
	return r.list(ctx, tx, "list payments", q, userID, limit)
}

func (r *paymentRepo) ListPendingVerification(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + paymentColumns + ` FROM payments
WHERE status='pending_verification' AND created_at < $1
ORDER BY created_at ASC LIMIT $2;`
	return r.list(ctx, tx, "list pending verification", q, olderThan, limit)
}

func (r *paymentRepo) ListUnnotified(ctx context.Context, tx repository.Tx, limit int) ([]*model.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + paymentColumns + ` FROM payments
WHERE status='completed' AND notification_sent=FALSE AND plan_id <> 'free'
ORDER BY created_at ASC LIMIT $1;`
	return r.list(ctx, tx, "list unnotified", q, limit)
}

func (r *paymentRepo) MarkNotified(ctx context.Context, tx repository.Tx, id string) error {
	cmd, err := execSQL(ctx, r.pool, tx, `UPDATE payments SET notification_sent=TRUE WHERE id=$1;`, id)
	if err != nil {
		return mapErr("mark notified", err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *paymentRepo) Stats(ctx context.Context, tx repository.Tx, from, to time.Time) (*model.PaymentStats, error) {
	const q = `
SELECT status, plan_id, COUNT(*), COALESCE(SUM(amount_cents),0),
       COALESCE(SUM((refund->>'amountCents')::BIGINT),0)
  FROM payments
 WHERE created_at >= $1 AND created_at < $2
 GROUP BY status, plan_id;`
	rows, err := queryRows(ctx, r.pool, tx, q, from, to)
	if err != nil {
		return nil, mapErr("payment stats", err)
	}
	defer rows.Close()

	st := &model.PaymentStats{
		From:     from,
		To:       to,
		ByStatus: map[model.PaymentStatus]model.StatBucket{},
		ByPlan:   map[model.PlanID]model.StatBucket{},
	}
	for rows.Next() {
		var (
			status, plan     string
			n                int
			amount, refunded int64
		)
		if err := rows.Scan(&status, &plan, &n, &amount, &refunded); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		s := model.PaymentStatus(status)
		b := st.ByStatus[s]
		b.Count += n
		b.AmountCents += amount
		st.ByStatus[s] = b

		pb := st.ByPlan[model.PlanID(plan)]
		pb.Count += n
		pb.AmountCents += amount
		st.ByPlan[model.PlanID(plan)] = pb

		st.TotalCount += n
		if s == model.PaymentStatusCompleted || s == model.PaymentStatusRefunded {
			st.Revenue += amount
		}
		st.Refunded += refunded
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("payment stats", err)
	}
	return st, nil
}

func (r *paymentRepo) list(ctx context.Context, tx repository.Tx, op, q string, args ...interface{}) ([]*model.Payment, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer rows.Close()

	var out []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(op, err)
	}
	return out, nil
}

func scanPayment(row pgx.Row) (*model.Payment, error) {
	var (
		p                      model.Payment
		planID, method, status string
		proof, refund          []byte
	)
	err := row.Scan(&p.ID, &p.UserID, &planID, &p.AmountCents, &p.Currency, &method, &status, &p.TransactionID,
		&proof, &p.FailureReason, &refund, &p.NotificationSent, &p.CreatedAt, &p.ProcessedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
	}
	p.PlanID = model.PlanID(planID)
	p.Method = model.PaymentMethod(method)
	p.Status = model.PaymentStatus(status)
	if len(proof) > 0 {
		if err := json.Unmarshal(proof, &p.Proof); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	if len(refund) > 0 {
		p.Refund = new(model.RefundInfo)
		if err := json.Unmarshal(refund, p.Refund); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return &p, nil
}

func refundJSON(ri *model.RefundInfo) ([]byte, error) {
	if ri == nil {
		return nil, nil
	}
	return json.Marshal(ri)
}
