//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"sri-invoice-subscription/internal/domain"
	"sri-invoice-subscription/internal/domain/model"
	"sri-invoice-subscription/internal/domain/ports/adapter"
	"sri-invoice-subscription/internal/domain/ports/repository"
)

// -----------------------------
// Utilities
// -----------------------------

func cloneUser(u *model.User) *model.User {
	c := *u
	c.Devices = append([]model.Device(nil), u.Devices...)
	if u.Portal != nil {
		p := *u.Portal
		c.Portal = &p
	}
	if u.Ledger.ExpiresAt != nil {
		t := *u.Ledger.ExpiresAt
		c.Ledger.ExpiresAt = &t
	}
	if u.Ledger.LastConsumedAt != nil {
		t := *u.Ledger.LastConsumedAt
		c.Ledger.LastConsumedAt = &t
	}
	return &c
}

func clonePayment(p *model.Payment) *model.Payment {
	c := *p
	if p.Refund != nil {
		r := *p.Refund
		c.Refund = &r
	}
	if p.ProcessedAt != nil {
		t := *p.ProcessedAt
		c.ProcessedAt = &t
	}
	return &c
}

// newUserOnPlan builds an active account whose ledger sits on planID with
// used credits consumed and the given expiry.
func newUserOnPlan(planID model.PlanID, used int64, expiresAt time.Time) *model.User {
	now := time.Now().UTC()
	u, err := model.NewUser(uuid.NewString(), uuid.NewString()[:8]+"@example.com", "hash", "Test User", "", now)
	if err != nil {
		panic(err)
	}
	l, err := u.Ledger.Reset(planID, now)
	if err != nil {
		panic(err)
	}
	l.CreditsUsed = used
	l.ExpiresAt = &expiresAt
	u.Ledger = l
	return u
}

// =============================
// Repositories
// =============================

// ---- MockUserRepo ----

// MockUserRepo is an in-memory store whose conditional updates are atomic
// under its mutex, like the SQL statements they stand in for.
type MockUserRepo struct {
	mu      sync.Mutex
	byID    map[string]*model.User
	byEmail map[string]string

	FindByIDFunc       func(ctx context.Context, tx repository.Tx, id string) (*model.User, error)
	ConsumeCreditsFunc func(ctx context.Context, tx repository.Tx, userID string, planID model.PlanID, amount int64, now time.Time) (model.CreditLedger, bool, error)
	UpdateLedgerFunc   func(ctx context.Context, tx repository.Tx, userID string, l model.CreditLedger) (bool, error)

	ConsumeCalls int
	LockCalls    int
}

var _ repository.UserRepository = (*MockUserRepo)(nil)

func NewMockUserRepo() *MockUserRepo {
	return &MockUserRepo{byID: map[string]*model.User{}, byEmail: map[string]string{}}
}

// Put stores u directly, bypassing Create validation.
func (m *MockUserRepo) Put(u *model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[u.ID] = cloneUser(u)
	m.byEmail[u.Email] = u.ID
}

// Get returns a copy of the stored user, or nil.
func (m *MockUserRepo) Get(id string) *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[id]; ok {
		return cloneUser(u)
	}
	return nil
}

func (m *MockUserRepo) snapshot() map[string]*model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*model.User, len(m.byID))
	for k, v := range m.byID {
		out[k] = cloneUser(v)
	}
	return out
}

func (m *MockUserRepo) restore(s map[string]*model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID = s
	m.byEmail = map[string]string{}
	for id, u := range s {
		m.byEmail[u.Email] = id
	}
}

func (m *MockUserRepo) Create(ctx context.Context, tx repository.Tx, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.byEmail[u.Email]; taken {
		return domain.ErrEmailTaken
	}
	m.byID[u.ID] = cloneUser(u)
	m.byEmail[u.Email] = u.ID
	return nil
}

func (m *MockUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.byID[u.ID]
	if !ok {
		return domain.ErrNotFound
	}
	// Profile only; the ledger is owned by ConsumeCredits/UpdateLedger.
	next := cloneUser(u)
	next.Ledger = cur.Ledger
	m.byID[u.ID] = next
	return nil
}

func (m *MockUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, tx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneUser(u), nil
}

func (m *MockUserRepo) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byEmail[email]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneUser(m.byID[id]), nil
}

func (m *MockUserRepo) ConsumeCredits(ctx context.Context, tx repository.Tx, userID string, planID model.PlanID, amount int64, now time.Time) (model.CreditLedger, bool, error) {
	if m.ConsumeCreditsFunc != nil {
		return m.ConsumeCreditsFunc(ctx, tx, userID, planID, amount, now)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ConsumeCalls++
	u, ok := m.byID[userID]
	if !ok {
		return model.CreditLedger{}, false, domain.ErrNotFound
	}
	if u.Ledger.PlanID != planID || u.Ledger.IsExpired(now) {
		return model.CreditLedger{}, false, nil
	}
	next, err := u.Ledger.Consume(amount, now)
	if err != nil {
		return model.CreditLedger{}, false, nil
	}
	next.Version++
	u.Ledger = next
	return next, true, nil
}

func (m *MockUserRepo) UpdateLedger(ctx context.Context, tx repository.Tx, userID string, l model.CreditLedger) (bool, error) {
	if m.UpdateLedgerFunc != nil {
		return m.UpdateLedgerFunc(ctx, tx, userID, l)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[userID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if u.Ledger.Version != l.Version {
		return false, nil
	}
	l.Version++
	u.Ledger = l
	return true, nil
}

func (m *MockUserRepo) ListExpired(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.User
	for _, u := range m.byID {
		if u.Ledger.IsExpired(now) {
			out = append(out, cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockUserRepo) CountByPlan(ctx context.Context, tx repository.Tx) (map[model.PlanID]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[model.PlanID]int{}
	for _, u := range m.byID {
		out[u.Ledger.PlanID]++
	}
	return out, nil
}

func (m *MockUserRepo) Lock(ctx context.Context, tx repository.Tx, userID string) error {
	m.mu.Lock()
	m.LockCalls++
	m.mu.Unlock()
	return nil
}

// ---- MockPaymentRepo ----

type MockPaymentRepo struct {
	mu   sync.Mutex
	byID map[string]*model.Payment

	SaveFunc func(ctx context.Context, tx repository.Tx, p *model.Payment) error
}

var _ repository.PaymentRepository = (*MockPaymentRepo)(nil)

func NewMockPaymentRepo() *MockPaymentRepo {
	return &MockPaymentRepo{byID: map[string]*model.Payment{}}
}

func (m *MockPaymentRepo) Put(p *model.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[p.ID] = clonePayment(p)
}

func (m *MockPaymentRepo) All() []*model.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Payment, 0, len(m.byID))
	for _, p := range m.byID {
		out = append(out, clonePayment(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *MockPaymentRepo) snapshot() map[string]*model.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*model.Payment, len(m.byID))
	for k, v := range m.byID {
		out[k] = clonePayment(v)
	}
	return out
}

func (m *MockPaymentRepo) restore(s map[string]*model.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID = s
}

func (m *MockPaymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.byID[p.ID]; dup {
		return domain.ErrAlreadyExists
	}
	c := clonePayment(p)
	c.Proof = c.Proof.Redacted()
	m.byID[p.ID] = c
	return nil
}

func (m *MockPaymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clonePayment(p), nil
}

func (m *MockPaymentRepo) UpdateStatusIf(ctx context.Context, tx repository.Tx, p *model.Payment, from model.PaymentStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.byID[p.ID]
	if !ok || cur.Status != from {
		return false, nil
	}
	cur.Status = p.Status
	cur.ProcessedAt = p.ProcessedAt
	cur.FailureReason = p.FailureReason
	cur.Refund = p.Refund
	return true, nil
}

func (m *MockPaymentRepo) HasCompletedFree(ctx context.Context, tx repository.Tx, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.byID {
		if p.UserID == userID && p.PlanID == model.PlanFree &&
			(p.Status == model.PaymentStatusCompleted || p.Status == model.PaymentStatusRefunded) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockPaymentRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.Payment, error) {
	var out []*model.Payment
	for _, p := range m.All() {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockPaymentRepo) ListPendingVerification(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	var out []*model.Payment
	for _, p := range m.All() {
		if p.Status == model.PaymentStatusPendingVerification && p.CreatedAt.Before(olderThan) {
			out = append(out, p)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockPaymentRepo) ListUnnotified(ctx context.Context, tx repository.Tx, limit int) ([]*model.Payment, error) {
	var out []*model.Payment
	for _, p := range m.All() {
		if p.NeedsNotification() {
			out = append(out, p)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockPaymentRepo) MarkNotified(ctx context.Context, tx repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.NotificationSent = true
	return nil
}

func (m *MockPaymentRepo) Stats(ctx context.Context, tx repository.Tx, from, to time.Time) (*model.PaymentStats, error) {
	st := &model.PaymentStats{From: from, To: to, ByStatus: map[model.PaymentStatus]model.StatBucket{}, ByPlan: map[model.PlanID]model.StatBucket{}}
	for _, p := range m.All() {
		if p.CreatedAt.Before(from) || !p.CreatedAt.Before(to) {
			continue
		}
		st.TotalCount++
		b := st.ByStatus[p.Status]
		b.Count++
		b.AmountCents += p.AmountCents
		st.ByStatus[p.Status] = b
		pb := st.ByPlan[p.PlanID]
		pb.Count++
		pb.AmountCents += p.AmountCents
		st.ByPlan[p.PlanID] = pb
		if p.Status == model.PaymentStatusCompleted || p.Status == model.PaymentStatusRefunded {
			st.Revenue += p.AmountCents
		}
		if p.Refund != nil {
			st.Refunded += p.Refund.AmountCents
		}
	}
	return st, nil
}

// ---- MockTxManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately with NoTX unless WithTxFunc is set.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// NewRollbackTxManager snapshots both stores before fn and restores them
// when fn fails. Transactions are serialized.
func NewRollbackTxManager(users *MockUserRepo, payments *MockPaymentRepo) *MockTxManager {
	var mu sync.Mutex
	return &MockTxManager{
		WithTxFunc: func(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
			mu.Lock()
			defer mu.Unlock()
			us, ps := users.snapshot(), payments.snapshot()
			if err := fn(ctx, "tx"); err != nil {
				users.restore(us)
				payments.restore(ps)
				return err
			}
			return nil
		},
	}
}

// ---- MockLocker ----

type MockLocker struct {
	mu    sync.Mutex
	held  map[string]string
	ErrOn map[string]error
}

func NewMockLocker() *MockLocker {
	return &MockLocker{held: map[string]string{}, ErrOn: map[string]error{}}
}

func (l *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err, bad := l.ErrOn[key]; bad {
		return "", err
	}
	if tok, ok := l.held[key]; ok && tok != "" {
		return "", domain.ErrConcurrencyConflict
	}
	tok := uuid.NewString()
	l.held[key] = tok
	return tok, nil
}

func (l *MockLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
		return nil
	}
	return errors.New("unlock token mismatch")
}

func (l *MockLocker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok
}

// =============================
// Adapters
// =============================

// ---- MockCapturer / MockCapturerRegistry ----

type MockCapturer struct {
	mu     sync.Mutex
	method model.PaymentMethod
	Calls  int

	CaptureFunc func(ctx context.Context, amountCents int64, proof model.PaymentProof) (adapter.CaptureResult, error)
}

func (m *MockCapturer) Method() model.PaymentMethod { return m.method }

func (m *MockCapturer) Capture(ctx context.Context, amountCents int64, proof model.PaymentProof) (adapter.CaptureResult, error) {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()
	if m.CaptureFunc != nil {
		return m.CaptureFunc(ctx, amountCents, proof)
	}
	if m.method == model.MethodCreditCard {
		return adapter.CaptureResult{Mode: adapter.CaptureImmediate, Approved: true, Reference: "auth-1"}, nil
	}
	return adapter.CaptureResult{Mode: adapter.CaptureManual, Reference: proof.Reference}, nil
}

type MockCapturerRegistry struct {
	Card     *MockCapturer
	Transfer *MockCapturer
	Deposit  *MockCapturer
}

var _ adapter.CapturerRegistry = (*MockCapturerRegistry)(nil)

func NewMockCapturerRegistry() *MockCapturerRegistry {
	return &MockCapturerRegistry{
		Card:     &MockCapturer{method: model.MethodCreditCard},
		Transfer: &MockCapturer{method: model.MethodTransfer},
		Deposit:  &MockCapturer{method: model.MethodDeposit},
	}
}

func (r *MockCapturerRegistry) Capturer(method model.PaymentMethod) (adapter.PaymentCapturer, error) {
	switch method {
	case model.MethodCreditCard:
		return r.Card, nil
	case model.MethodTransfer:
		return r.Transfer, nil
	case model.MethodDeposit:
		return r.Deposit, nil
	}
	return nil, domain.NewValidationError("paymentMethod", "unsupported method")
}

// ---- MockMailer ----

type MockMailer struct {
	mu   sync.Mutex
	Sent []string

	SendFunc func(ctx context.Context, userID, paymentID string) error
}

var _ adapter.Mailer = (*MockMailer)(nil)

func (m *MockMailer) SendPaymentConfirmation(ctx context.Context, userID, paymentID string) error {
	if m.SendFunc != nil {
		if err := m.SendFunc(ctx, userID, paymentID); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, paymentID)
	return nil
}

func (m *MockMailer) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

// ---- MockPortal ----

type MockPortal struct {
	mu    sync.Mutex
	Calls int

	FetchFunc func(ctx context.Context, q adapter.PortalQuery) ([]model.DocumentDescriptor, error)
}

var _ adapter.Portal = (*MockPortal)(nil)

func (m *MockPortal) FetchDocuments(ctx context.Context, q adapter.PortalQuery) ([]model.DocumentDescriptor, error) {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, q)
	}
	return nil, nil
}

func (m *MockPortal) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}

func makeDocs(n int) []model.DocumentDescriptor {
	out := make([]model.DocumentDescriptor, n)
	for i := range out {
		out[i] = model.DocumentDescriptor{AccessKey: uuid.NewString(), Type: model.DocFactura, IssuedAt: time.Now().UTC()}
	}
	return out
}

// ---- Security stand-ins ----

type plainHasher struct{}

func (plainHasher) Hash(pw string) (string, error) { return "h:" + pw, nil }
func (plainHasher) Compare(hash, pw string) error {
	if hash != "h:"+pw {
		return domain.ErrInvalidCredentials
	}
	return nil
}

type reverseSealer struct{}

func (reverseSealer) Encrypt(owner, pt string) (string, error) { return owner + "|" + reverse(pt), nil }
func (reverseSealer) Decrypt(owner, ct string) (string, error) {
	prefix := owner + "|"
	if len(ct) < len(prefix) || ct[:len(prefix)] != prefix {
		return "", errors.New("owner mismatch")
	}
	return reverse(ct[len(prefix):]), nil
}

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

type MockTokens struct{}

func (MockTokens) Issue(userID string, role model.Role) (string, time.Time, error) {
	return "tok-" + userID, time.Now().Add(time.Hour), nil
}

func (MockTokens) Parse(tok string) (string, error) {
	if len(tok) < 5 || tok[:4] != "tok-" {
		return "", domain.ErrUnauthorized
	}
	return tok[4:], nil
}

type MockLimiter struct {
	mu     sync.Mutex
	counts map[string]int
	Err    error
}

func (m *MockLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = map[string]int{}
	}
	m.counts[key]++
	return m.counts[key] <= limit, nil
}

// ---- Inline task runner ----

type inlineSubmitter struct {
	mu    sync.Mutex
	tasks int
}

func (s *inlineSubmitter) Submit(task func(ctx context.Context) error) error {
	s.mu.Lock()
	s.tasks++
	s.mu.Unlock()
	return task(context.Background())
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}
