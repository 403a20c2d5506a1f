package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"sri-invoice-subscription/internal/domain"
	"sri-invoice-subscription/internal/domain/model"
	"sri-invoice-subscription/internal/domain/ports/repository"
	"sri-invoice-subscription/internal/infra/logging"
	"sri-invoice-subscription/internal/infra/metrics"
	red "sri-invoice-subscription/internal/infra/redis"
)

// MinPasswordLength is enforced at registration.
const MinPasswordLength = 8

var _ AccountUseCase = (*accountUC)(nil)

type AccountUseCase interface {
	Register(ctx context.Context, req RegisterRequest) (*model.User, error)
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	// Authenticate resolves a bearer token to an active account whose ledger
	// has been reconciled against expiry.
	Authenticate(ctx context.Context, token string) (*model.User, error)
	SetPortalCredentials(ctx context.Context, userID, username, password string) error
	// PortalCredentials returns the decrypted portal login.
	PortalCredentials(ctx context.Context, userID string) (string, string, error)
	SetStatus(ctx context.Context, userID string, status model.AccountStatus) (*model.User, error)
}

type RegisterRequest struct {
	Email    string
	Password string
	Name     string
	RUC      string
}

type LoginRequest struct {
	Email       string
	Password    string
	Fingerprint string
}

type LoginResult struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      *model.User `json:"user"`
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// SecretSealer encrypts a secret bound to its owner id.
type SecretSealer interface {
	Encrypt(owner, plaintext string) (string, error)
	Decrypt(owner, ciphertext string) (string, error)
}

type TokenIssuer interface {
	Issue(userID string, role model.Role) (string, time.Time, error)
	Parse(token string) (string, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type accountUC struct {
	users          repository.UserRepository
	payments       repository.PaymentRepository
	tm             repository.TransactionManager
	ledger         LedgerUseCase
	hasher         PasswordHasher
	sealer         SecretSealer
	tokens         TokenIssuer
	limiter        RateLimiter
	loginPerMinute int
	log            *zerolog.Logger
}

// NewAccountUseCase wires the account service. limiter may be nil.
func NewAccountUseCase(
	users repository.UserRepository,
	payments repository.PaymentRepository,
	tm repository.TransactionManager,
	ledger LedgerUseCase,
	hasher PasswordHasher,
	sealer SecretSealer,
	tokens TokenIssuer,
	limiter RateLimiter,
	loginPerMinute int,
	logger *zerolog.Logger,
) *accountUC {
	return &accountUC{
		users:          users,
		payments:       payments,
		tm:             tm,
		ledger:         ledger,
		hasher:         hasher,
		sealer:         sealer,
		tokens:         tokens,
		limiter:        limiter,
		loginPerMinute: loginPerMinute,
		log:            logger,
	}
}

func (a *accountUC) Register(ctx context.Context, req RegisterRequest) (*model.User, error) {
	defer logging.TraceDuration(a.log, "AccountUC.Register")()

	if len(req.Password) < MinPasswordLength {
		return nil, domain.NewValidationError("password", "must be at least 8 characters")
	}
	hash, err := a.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	u, err := model.NewUser("", req.Email, hash, req.Name, req.RUC, now)
	if err != nil {
		return nil, err
	}
	trial, err := trialPayment(u.ID, now)
	if err != nil {
		return nil, err
	}
	// The opening free ledger is the one-time trial, so it is recorded as a
	// completed free payment in the same transaction as the account.
	err = a.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := a.users.Create(ctx, tx, u); err != nil {
			return err
		}
		return a.payments.Save(ctx, tx, trial)
	})
	if err != nil {
		return nil, err
	}
	a.log.Info().Str("user_id", u.ID).Msg("account registered")
	return u, nil
}

func trialPayment(userID string, now time.Time) (*model.Payment, error) {
	plan, err := model.LookupPlan(model.PlanFree)
	if err != nil {
		return nil, err
	}
	p, err := model.NewPayment(uuid.NewString(), userID, plan, model.MethodFree, newTransactionID(string(model.MethodFree), now), model.PaymentProof{}, now)
	if err != nil {
		return nil, err
	}
	if err := p.MoveTo(model.PaymentStatusCompleted, now); err != nil {
		return nil, err
	}
	return p, nil
}

func (a *accountUC) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	defer logging.TraceDuration(a.log, "AccountUC.Login")()

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if a.limiter != nil && a.loginPerMinute > 0 {
		ok, err := a.limiter.Allow(ctx, red.LoginKey(email), a.loginPerMinute, time.Minute)
		if err != nil {
			// Fail open: a cache outage must not lock everyone out.
			a.log.Warn().Err(err).Msg("login rate limiter unavailable")
		} else if !ok {
			metrics.IncAuthAttempt("login", "rate_limited")
			return nil, domain.ErrRateLimited
		}
	}

	u, err := a.users.FindByEmail(ctx, repository.NoTX, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.IncAuthAttempt("login", "invalid")
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := a.hasher.Compare(u.PasswordHash, req.Password); err != nil {
		metrics.IncAuthAttempt("login", "invalid")
		return nil, domain.ErrInvalidCredentials
	}
	if !u.IsActive() {
		metrics.IncAuthAttempt("login", "inactive")
		return nil, domain.ErrAccountInactive
	}

	now := time.Now().UTC()
	if err := u.RegisterDevice(req.Fingerprint, now); err != nil {
		metrics.IncAuthAttempt("login", "device_limit")
		return nil, err
	}
	u.LastLoginAt = &now
	u.UpdatedAt = now
	if err := a.users.Save(ctx, repository.NoTX, u); err != nil {
		return nil, err
	}

	token, exp, err := a.tokens.Issue(u.ID, u.Role)
	if err != nil {
		return nil, err
	}
	fresh, err := a.ledger.ReconcileUser(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	metrics.IncAuthAttempt("login", "ok")
	return &LoginResult{Token: token, ExpiresAt: exp, User: fresh}, nil
}

func (a *accountUC) Authenticate(ctx context.Context, token string) (*model.User, error) {
	userID, err := a.tokens.Parse(token)
	if err != nil {
		metrics.IncAuthAttempt("token", "invalid")
		return nil, domain.ErrUnauthorized
	}
	u, err := a.ledger.ReconcileUser(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, err
	}
	if !u.IsActive() {
		return nil, domain.ErrAccountInactive
	}
	return u, nil
}

func (a *accountUC) SetPortalCredentials(ctx context.Context, userID, username, password string) error {
	defer logging.TraceDuration(a.log, "AccountUC.SetPortalCredentials")()

	username = strings.TrimSpace(username)
	if username == "" {
		return domain.NewValidationError("username", "is required")
	}
	if password == "" {
		return domain.NewValidationError("password", "is required")
	}
	u, err := a.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		return err
	}
	sealed, err := a.sealer.Encrypt(u.ID, password)
	if err != nil {
		return err
	}
	u.Portal = &model.PortalCredentials{Username: username, EncryptedPassword: sealed}
	u.UpdatedAt = time.Now().UTC()
	return a.users.Save(ctx, repository.NoTX, u)
}

func (a *accountUC) PortalCredentials(ctx context.Context, userID string) (string, string, error) {
	u, err := a.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		return "", "", err
	}
	if u.Portal == nil {
		return "", "", domain.NewValidationError("portalCredentials", "not configured")
	}
	pw, err := a.sealer.Decrypt(u.ID, u.Portal.EncryptedPassword)
	if err != nil {
		return "", "", err
	}
	return u.Portal.Username, pw, nil
}

func (a *accountUC) SetStatus(ctx context.Context, userID string, status model.AccountStatus) (*model.User, error) {
	if !status.Valid() {
		return nil, domain.NewValidationError("status", "unknown account status")
	}
	u, err := a.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}
	u.Status = status
	u.UpdatedAt = time.Now().UTC()
	if err := a.users.Save(ctx, repository.NoTX, u); err != nil {
		return nil, err
	}
	a.log.Info().Str("user_id", userID).Str("status", string(status)).Msg("account status changed")
	return u, nil
}
