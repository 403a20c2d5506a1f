package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"sri-invoice-subscription/internal/domain"
	"sri-invoice-subscription/internal/domain/model"
	"sri-invoice-subscription/internal/domain/ports/repository"
)

var _ repository.UserRepository = (*userRepo)(nil)

type userRepo struct{ pool *pgxpool.Pool }

func NewUserRepo(pool *pgxpool.Pool) *userRepo {
	return &userRepo{pool: pool}
}

const userColumns = `id, email, password_hash, name, ruc, status, role,
  plan_id, credits_used, credits_total, expires_at, ledger_version, lifetime_consumed, last_consumed_at,
  devices, portal_username, portal_password_enc, created_at, updated_at, last_login_at`

func (r *userRepo) Create(ctx context.Context, tx repository.Tx, u *model.User) error {
	devices, err := json.Marshal(devicesOrEmpty(u.Devices))
	if err != nil {
		return err
	}
	portalUser, portalPass := portalColumns(u.Portal)
	l := u.Ledger
	const q = `
INSERT INTO users (` + userColumns + `) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20
);`
	_, err = execSQL(ctx, r.pool, tx, q,
		u.ID, u.Email, u.PasswordHash, u.Name, u.RUC, string(u.Status), string(u.Role),
		string(l.PlanID), l.CreditsUsed, l.CreditsTotal.Nullable(), l.ExpiresAt, l.Version, l.LifetimeConsumed, l.LastConsumedAt,
		devices, portalUser, portalPass, u.CreatedAt, u.UpdatedAt, u.LastLoginAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrEmailTaken
		}
		return mapErr("create user", err)
	}
	return nil
}

func (r *userRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	devices, err := json.Marshal(devicesOrEmpty(u.Devices))
	if err != nil {
		return err
	}
	portalUser, portalPass := portalColumns(u.Portal)
	const q = `
UPDATE users SET
  name=$2, ruc=$3, status=$4, role=$5, devices=$6,
  portal_username=$7, portal_password_enc=$8, updated_at=$9, last_login_at=$10
WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q,
		u.ID, u.Name, u.RUC, string(u.Status), string(u.Role), devices,
		portalUser, portalPass, u.UpdatedAt, u.LastLoginAt)
	if err != nil {
		return mapErr("save user", err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *userRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+userColumns+` FROM users WHERE id=$1;`, id)
	if err != nil {
		return nil, err
	}
	return scanUser(row)
}

func (r *userRepo) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.User, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+userColumns+` FROM users WHERE email=$1;`, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, err
	}
	return scanUser(row)
}

// ConsumeCredits debits amount in a single conditional UPDATE: the row must
// still be on planID, unexpired, and have room for amount. Unlimited rows
// (credits_total NULL) only advance the usage statistics. The version is
// bumped but never compared, so concurrent debits only lose to exhaustion.
func (r *userRepo) ConsumeCredits(ctx context.Context, tx repository.Tx, userID string, planID model.PlanID, amount int64, now time.Time) (model.CreditLedger, bool, error) {
	const q = `
UPDATE users SET
  credits_used = CASE WHEN credits_total IS NULL THEN credits_used ELSE credits_used + $2 END,
  lifetime_consumed = lifetime_consumed + $2,
  last_consumed_at = $4,
  ledger_version = ledger_version + 1,
  updated_at = $4
WHERE id = $1
  AND plan_id = $3
  AND (plan_id = 'free' OR expires_at > $4)
  AND (credits_total IS NULL OR credits_used + $2 <= credits_total)
RETURNING ` + userColumns + `;`
	row, err := pickRow(ctx, r.pool, tx, q, userID, amount, string(planID), now)
	if err != nil {
		return model.CreditLedger{}, false, err
	}
	u, err := scanUser(row)
	if errors.Is(err, domain.ErrNotFound) {
		return model.CreditLedger{}, false, nil
	}
	if err != nil {
		return model.CreditLedger{}, false, err
	}
	return u.Ledger, true, nil
}

func (r *userRepo) UpdateLedger(ctx context.Context, tx repository.Tx, userID string, l model.CreditLedger) (bool, error) {
	const q = `
UPDATE users SET
  plan_id=$3, credits_used=$4, credits_total=$5, expires_at=$6,
  lifetime_consumed=$7, last_consumed_at=$8,
  ledger_version = ledger_version + 1, updated_at = NOW()
WHERE id=$1 AND ledger_version=$2;`
	cmd, err := execSQL(ctx, r.pool, tx, q,
		userID, l.Version, string(l.PlanID), l.CreditsUsed, l.CreditsTotal.Nullable(), l.ExpiresAt,
		l.LifetimeConsumed, l.LastConsumedAt)
	if err != nil {
		return false, mapErr("update ledger", err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *userRepo) ListExpired(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.User, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + userColumns + ` FROM users
WHERE plan_id <> 'free' AND (expires_at IS NULL OR expires_at < $1)
ORDER BY expires_at ASC NULLS FIRST
LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, now, limit)
	if err != nil {
		return nil, mapErr("list expired", err)
	}
	defer rows.Close()

	var out []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("list expired", err)
	}
	return out, nil
}

func (r *userRepo) CountByPlan(ctx context.Context, tx repository.Tx) (map[model.PlanID]int, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT plan_id, COUNT(*) FROM users GROUP BY plan_id;`)
	if err != nil {
		return nil, mapErr("count by plan", err)
	}
	defer rows.Close()

	out := map[model.PlanID]int{}
	for rows.Next() {
		var (
			plan string
			n    int
		)
		if err := rows.Scan(&plan, &n); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out[model.PlanID(plan)] = n
	}
	return out, rows.Err()
}

// Lock takes a transaction-scoped advisory lock on the user id.
func (r *userRepo) Lock(ctx context.Context, tx repository.Tx, userID string) error {
	ptx, ok := tx.(pgx.Tx)
	if !ok {
		return domain.ErrInvalidExecContext
	}
	if _, err := ptx.Exec(ctx, `SELECT pg_advisory_xact_lock($1);`, hashToInt64(userID)); err != nil {
		return mapErr("advisory lock", err)
	}
	return nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u                      model.User
		status, role, planID   string
		creditsTotal           *int64
		devices                []byte
		portalUser, portalPass *string
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.RUC, &status, &role,
		&planID, &u.Ledger.CreditsUsed, &creditsTotal, &u.Ledger.ExpiresAt, &u.Ledger.Version,
		&u.Ledger.LifetimeConsumed, &u.Ledger.LastConsumedAt,
		&devices, &portalUser, &portalPass, &u.CreatedAt, &u.UpdatedAt, &u.LastLoginAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
	}
	u.Status = model.AccountStatus(status)
	u.Role = model.Role(role)
	u.Ledger.PlanID = model.PlanID(planID)
	u.Ledger.CreditsTotal = model.CreditsFromNullable(creditsTotal)
	if len(devices) > 0 {
		if err := json.Unmarshal(devices, &u.Devices); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	if portalUser != nil {
		u.Portal = &model.PortalCredentials{Username: *portalUser}
		if portalPass != nil {
			u.Portal.EncryptedPassword = *portalPass
		}
	}
	return &u, nil
}

func devicesOrEmpty(d []model.Device) []model.Device {
	if d == nil {
		return []model.Device{}
	}
	return d
}

func portalColumns(p *model.PortalCredentials) (*string, *string) {
	if p == nil {
		return nil, nil
	}
	u, pw := p.Username, p.EncryptedPassword
	return &u, &pw
}
