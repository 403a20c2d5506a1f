//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"sri-invoice-subscription/internal/domain"
	"sri-invoice-subscription/internal/domain/model"
	"sri-invoice-subscription/internal/usecase"
)

func newAccountUC(users *MockUserRepo, limiter usecase.RateLimiter) usecase.AccountUseCase {
	return newAccountUCWithPayments(users, NewMockPaymentRepo(), limiter)
}

func newAccountUCWithPayments(users *MockUserRepo, payments *MockPaymentRepo, limiter usecase.RateLimiter) usecase.AccountUseCase {
	tm := NewRollbackTxManager(users, payments)
	ledger := usecase.NewLedgerUseCase(users, tm, newTestLogger())
	return usecase.NewAccountUseCase(users, payments, tm, ledger, plainHasher{}, reverseSealer{}, MockTokens{}, limiter, 3, newTestLogger())
}

func TestAccountUseCase_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("should create an active free account", func(t *testing.T) {
		users := NewMockUserRepo()
		uc := newAccountUC(users, nil)

		u, err := uc.Register(ctx, usecase.RegisterRequest{Email: " New@Example.com ", Password: "s3cretpass", Name: "Ana"})

		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if u.Email != "new@example.com" || u.Status != model.AccountActive || u.Ledger.PlanID != model.PlanFree {
			t.Errorf("unexpected account %+v", u)
		}
		if u.PasswordHash != "h:s3cretpass" {
			t.Error("password was not hashed")
		}
	})

	t.Run("should record the opening trial so it cannot be claimed again", func(t *testing.T) {
		// --- Arrange ---
		users, payments := NewMockUserRepo(), NewMockPaymentRepo()
		uc := newAccountUCWithPayments(users, payments, nil)

		// --- Act ---
		u, err := uc.Register(ctx, usecase.RegisterRequest{Email: "trial@example.com", Password: "s3cretpass", Name: "Ana"})

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		all := payments.All()
		if len(all) != 1 {
			t.Fatalf("expected one trial record, got %d", len(all))
		}
		p := all[0]
		if p.UserID != u.ID || p.PlanID != model.PlanFree || p.Method != model.MethodFree || p.Status != model.PaymentStatusCompleted || p.AmountCents != 0 {
			t.Errorf("unexpected trial record %+v", p)
		}
		if used, _ := payments.HasCompletedFree(ctx, nil, u.ID); !used {
			t.Error("the trial should count as used")
		}
	})

	t.Run("should not leave a trial record behind a failed registration", func(t *testing.T) {
		// --- Arrange ---
		users, payments := NewMockUserRepo(), NewMockPaymentRepo()
		uc := newAccountUCWithPayments(users, payments, nil)
		req := usecase.RegisterRequest{Email: "twice@example.com", Password: "s3cretpass", Name: "Ana"}
		if _, err := uc.Register(ctx, req); err != nil {
			t.Fatal(err)
		}

		// --- Act ---
		_, err := uc.Register(ctx, req)

		// --- Assert ---
		if domain.ReasonOf(err) != domain.ReasonEmailTaken {
			t.Fatalf("expected EMAIL_TAKEN, got %v", err)
		}
		if n := len(payments.All()); n != 1 {
			t.Errorf("expected a single trial record, got %d", n)
		}
	})

	t.Run("should refuse a taken email", func(t *testing.T) {
		users := NewMockUserRepo()
		uc := newAccountUC(users, nil)
		req := usecase.RegisterRequest{Email: "dup@example.com", Password: "s3cretpass", Name: "Ana"}
		_, _ = uc.Register(ctx, req)

		_, err := uc.Register(ctx, req)

		if domain.ReasonOf(err) != domain.ReasonEmailTaken {
			t.Errorf("expected EMAIL_TAKEN, got %v", err)
		}
	})

	t.Run("should refuse a short password", func(t *testing.T) {
		uc := newAccountUC(NewMockUserRepo(), nil)
		_, err := uc.Register(ctx, usecase.RegisterRequest{Email: "a@example.com", Password: "short", Name: "Ana"})
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected validation error, got %v", err)
		}
	})
}

func TestAccountUseCase_Login(t *testing.T) {
	ctx := context.Background()

	register := func(t *testing.T, uc usecase.AccountUseCase) *model.User {
		t.Helper()
		u, err := uc.Register(ctx, usecase.RegisterRequest{Email: "login@example.com", Password: "s3cretpass", Name: "Ana"})
		if err != nil {
			t.Fatal(err)
		}
		return u
	}

	t.Run("should issue a token and remember the device", func(t *testing.T) {
		// --- Arrange ---
		users := NewMockUserRepo()
		uc := newAccountUC(users, nil)
		u := register(t, uc)

		// --- Act ---
		res, err := uc.Login(ctx, usecase.LoginRequest{Email: "login@example.com", Password: "s3cretpass", Fingerprint: "fp-1"})

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Token != "tok-"+u.ID || res.User.ID != u.ID {
			t.Errorf("unexpected login result %+v", res)
		}
		stored := users.Get(u.ID)
		if len(stored.Devices) != 1 || stored.LastLoginAt == nil {
			t.Errorf("expected device and login time to be stored, got %+v", stored)
		}
	})

	t.Run("should cap devices at three", func(t *testing.T) {
		uc := newAccountUC(NewMockUserRepo(), nil)
		register(t, uc)
		for _, fp := range []string{"a", "b", "c"} {
			if _, err := uc.Login(ctx, usecase.LoginRequest{Email: "login@example.com", Password: "s3cretpass", Fingerprint: fp}); err != nil {
				t.Fatal(err)
			}
		}
		_, err := uc.Login(ctx, usecase.LoginRequest{Email: "login@example.com", Password: "s3cretpass", Fingerprint: "d"})
		if !errors.Is(err, domain.ErrDeviceLimitReached) {
			t.Errorf("expected ErrDeviceLimitReached, got %v", err)
		}
		if _, err := uc.Login(ctx, usecase.LoginRequest{Email: "login@example.com", Password: "s3cretpass", Fingerprint: "b"}); err != nil {
			t.Errorf("known device refused: %v", err)
		}
	})

	t.Run("should not distinguish unknown email from bad password", func(t *testing.T) {
		uc := newAccountUC(NewMockUserRepo(), nil)
		register(t, uc)
		_, errPw := uc.Login(ctx, usecase.LoginRequest{Email: "login@example.com", Password: "wrongpass"})
		_, errEmail := uc.Login(ctx, usecase.LoginRequest{Email: "nobody@example.com", Password: "s3cretpass"})
		if !errors.Is(errPw, domain.ErrInvalidCredentials) || !errors.Is(errEmail, domain.ErrInvalidCredentials) {
			t.Errorf("expected INVALID_CREDENTIALS for both, got %v / %v", errPw, errEmail)
		}
	})

	t.Run("should refuse a suspended account", func(t *testing.T) {
		users := NewMockUserRepo()
		uc := newAccountUC(users, nil)
		u := register(t, uc)
		if _, err := uc.SetStatus(ctx, u.ID, model.AccountSuspended); err != nil {
			t.Fatal(err)
		}
		_, err := uc.Login(ctx, usecase.LoginRequest{Email: "login@example.com", Password: "s3cretpass"})
		if !errors.Is(err, domain.ErrAccountInactive) {
			t.Errorf("expected ErrAccountInactive, got %v", err)
		}
	})

	t.Run("should rate limit repeated attempts", func(t *testing.T) {
		uc := newAccountUC(NewMockUserRepo(), &MockLimiter{})
		register(t, uc)
		var last error
		for i := 0; i < 4; i++ {
			_, last = uc.Login(ctx, usecase.LoginRequest{Email: "login@example.com", Password: "wrongpass"})
		}
		if !errors.Is(last, domain.ErrRateLimited) {
			t.Errorf("expected ErrRateLimited on the 4th attempt, got %v", last)
		}
	})

	t.Run("should fail open when the limiter is down", func(t *testing.T) {
		uc := newAccountUC(NewMockUserRepo(), &MockLimiter{Err: errors.New("redis down")})
		register(t, uc)
		if _, err := uc.Login(ctx, usecase.LoginRequest{Email: "login@example.com", Password: "s3cretpass"}); err != nil {
			t.Errorf("expected login to proceed, got %v", err)
		}
	})
}

func TestAccountUseCase_Authenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("should resolve the token and reconcile expiry", func(t *testing.T) {
		users := NewMockUserRepo()
		u := newUserOnPlan(model.PlanBasic, 5, time.Now().UTC().Add(-time.Minute))
		users.Put(u)
		uc := newAccountUC(users, nil)

		got, err := uc.Authenticate(ctx, "tok-"+u.ID)

		if err != nil {
			t.Fatal(err)
		}
		if got.Ledger.PlanID != model.PlanFree {
			t.Errorf("expected lazy demotion, got %s", got.Ledger.PlanID)
		}
	})

	t.Run("should reject bad tokens and unknown users", func(t *testing.T) {
		uc := newAccountUC(NewMockUserRepo(), nil)
		if _, err := uc.Authenticate(ctx, "garbage"); !errors.Is(err, domain.ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
		if _, err := uc.Authenticate(ctx, "tok-ghost"); !errors.Is(err, domain.ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
	})
}

func TestAccountUseCase_PortalCredentials(t *testing.T) {
	ctx := context.Background()
	users := NewMockUserRepo()
	u := newUserOnPlan(model.PlanBasic, 0, time.Now().UTC().AddDate(1, 0, 0))
	users.Put(u)
	uc := newAccountUC(users, nil)

	t.Run("should require configuration first", func(t *testing.T) {
		if _, _, err := uc.PortalCredentials(ctx, u.ID); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("should store the password sealed and read it back", func(t *testing.T) {
		if err := uc.SetPortalCredentials(ctx, u.ID, "1790012345001", "portal-pass"); err != nil {
			t.Fatal(err)
		}
		stored := users.Get(u.ID)
		if stored.Portal == nil || stored.Portal.EncryptedPassword == "portal-pass" {
			t.Fatalf("password stored in clear: %+v", stored.Portal)
		}
		name, pw, err := uc.PortalCredentials(ctx, u.ID)
		if err != nil || name != "1790012345001" || pw != "portal-pass" {
			t.Errorf("got %q %q %v", name, pw, err)
		}
	})
}
