package web

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sri-invoice-subscription/internal/domain"
	"sri-invoice-subscription/internal/domain/model"
	"sri-invoice-subscription/internal/domain/ports/repository"
	"sri-invoice-subscription/internal/usecase"
)

// --- Mock use cases and ports ---

type mockSettlement struct {
	usecase.SettlementUseCase // Embed interface for forward compatibility
	mu                        sync.Mutex
	VerifyFunc                func(ctx context.Context, req usecase.VerifyRequest) (*model.Payment, error)
	RefundFunc                func(ctx context.Context, id string, cents int64, reason string) (*model.Payment, error)
	StatsFunc                 func(ctx context.Context, from, to time.Time) (*model.PaymentStats, error)
	verifyCalls               []usecase.VerifyRequest
}

func (m *mockSettlement) Verify(ctx context.Context, req usecase.VerifyRequest) (*model.Payment, error) {
	m.mu.Lock()
	m.verifyCalls = append(m.verifyCalls, req)
	m.mu.Unlock()
	return m.VerifyFunc(ctx, req)
}

func (m *mockSettlement) Refund(ctx context.Context, id string, cents int64, reason string) (*model.Payment, error) {
	return m.RefundFunc(ctx, id, cents, reason)
}

func (m *mockSettlement) Stats(ctx context.Context, from, to time.Time) (*model.PaymentStats, error) {
	return m.StatsFunc(ctx, from, to)
}

type mockAccounts struct {
	usecase.AccountUseCase
	SetStatusFunc func(ctx context.Context, id string, status model.AccountStatus) (*model.User, error)
}

func (m *mockAccounts) SetStatus(ctx context.Context, id string, status model.AccountStatus) (*model.User, error) {
	return m.SetStatusFunc(ctx, id, status)
}

type mockUserRepo struct {
	repository.UserRepository
	CountError error
}

func (m *mockUserRepo) CountByPlan(ctx context.Context, tx repository.Tx) (map[model.PlanID]int, error) {
	if m.CountError != nil {
		return nil, m.CountError
	}
	return map[model.PlanID]int{model.PlanFree: 7, model.PlanUnlimited: 1}, nil
}

type mockSweeper struct {
	n   int
	err error
}

func (m *mockSweeper) RunOnce(ctx context.Context) (int, error) { return m.n, m.err }

type mockStatements struct {
	mu       sync.Mutex
	credited map[string]int64
}

func (m *mockStatements) Credit(reference string, amountCents int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.credited == nil {
		m.credited = map[string]int64{}
	}
	m.credited[reference] = amountCents
}

type mockPendingPayments struct {
	repository.PaymentRepository
	pending []*model.Payment
}

func (m *mockPendingPayments) ListPendingVerification(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	return m.pending, nil
}

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func notFound(context.Context, usecase.VerifyRequest) (*model.Payment, error) {
	return nil, domain.ErrNotFound
}
