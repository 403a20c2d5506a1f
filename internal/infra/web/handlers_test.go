//go:build !integration

package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sri-invoice-subscription/internal/domain"
	"sri-invoice-subscription/internal/domain/model"
	"sri-invoice-subscription/internal/usecase"
)

const testKey = "admin-secret"

func newTestServer(st *mockSettlement, acc *mockAccounts, users *mockUserRepo, sw *mockSweeper) http.Handler {
	return NewServer(st, acc, users, sw, &mockStatements{}, nil, testKey, newTestLogger()).Handler()
}

func adminRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+testKey)
	return req
}

func TestAuthMiddleware(t *testing.T) {
	h := newTestServer(&mockSettlement{}, &mockAccounts{}, &mockUserRepo{}, &mockSweeper{})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"should reject a missing header", "", http.StatusUnauthorized},
		{"should reject a malformed header", "Token " + testKey, http.StatusUnauthorized},
		{"should forbid a wrong key", "Bearer nope", http.StatusForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/admin/v1/sweep", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tc.want {
				t.Errorf("want %d, got %d", tc.want, rr.Code)
			}
		})
	}

	t.Run("should refuse everything when no key is configured", func(t *testing.T) {
		srv := NewServer(&mockSettlement{}, &mockAccounts{}, &mockUserRepo{}, &mockSweeper{}, &mockStatements{}, nil, "", newTestLogger()).Handler()
		rr := httptest.NewRecorder()
		srv.ServeHTTP(rr, adminRequest(http.MethodPost, "/admin/v1/sweep", ""))
		if rr.Code != http.StatusForbidden {
			t.Errorf("want 403, got %d", rr.Code)
		}
	})
}

func TestStatsHandler(t *testing.T) {
	t.Run("should combine payment stats and plan counts", func(t *testing.T) {
		// --- Arrange ---
		var gotFrom time.Time
		st := &mockSettlement{StatsFunc: func(ctx context.Context, from, to time.Time) (*model.PaymentStats, error) {
			gotFrom = from
			return &model.PaymentStats{From: from, To: to, Revenue: 14000, TotalCount: 2}, nil
		}}
		h := newTestServer(st, &mockAccounts{}, &mockUserRepo{}, &mockSweeper{})

		// --- Act ---
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, adminRequest(http.MethodGet, "/admin/v1/stats?from=2024-01-01&to=2024-02-01", ""))

		// --- Assert ---
		if rr.Code != http.StatusOK {
			t.Fatalf("want 200, got %d, body=%s", rr.Code, rr.Body.String())
		}
		var body struct {
			Payments       model.PaymentStats   `json:"payments"`
			AccountsByPlan map[model.PlanID]int `json:"accountsByPlan"`
		}
		if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body.Payments.Revenue != 14000 || body.AccountsByPlan[model.PlanFree] != 7 {
			t.Errorf("unexpected body: %+v", body)
		}
		if !gotFrom.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("unexpected from: %v", gotFrom)
		}
	})

	t.Run("should reject a malformed date", func(t *testing.T) {
		h := newTestServer(&mockSettlement{}, &mockAccounts{}, &mockUserRepo{}, &mockSweeper{})
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, adminRequest(http.MethodGet, "/admin/v1/stats?from=yesterday", ""))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("want 400, got %d", rr.Code)
		}
	})

	t.Run("should map a store failure to 500", func(t *testing.T) {
		st := &mockSettlement{StatsFunc: func(ctx context.Context, from, to time.Time) (*model.PaymentStats, error) {
			return &model.PaymentStats{}, nil
		}}
		h := newTestServer(st, &mockAccounts{}, &mockUserRepo{CountError: domain.ErrOperationFailed}, &mockSweeper{})
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, adminRequest(http.MethodGet, "/admin/v1/stats", ""))
		if rr.Code != http.StatusInternalServerError {
			t.Errorf("want 500, got %d", rr.Code)
		}
	})
}

func TestVerifyHandler(t *testing.T) {
	t.Run("should verify as operator", func(t *testing.T) {
		st := &mockSettlement{VerifyFunc: func(ctx context.Context, req usecase.VerifyRequest) (*model.Payment, error) {
			return &model.Payment{ID: req.PaymentID, Status: model.PaymentStatusCompleted}, nil
		}}
		h := newTestServer(st, &mockAccounts{}, &mockUserRepo{}, &mockSweeper{})

		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, adminRequest(http.MethodPost, "/admin/v1/payments/p-9/verify", `{"approve":true,"note":"bank ok"}`))

		if rr.Code != http.StatusOK {
			t.Fatalf("want 200, got %d, body=%s", rr.Code, rr.Body.String())
		}
		call := st.verifyCalls[0]
		if call.PaymentID != "p-9" || !call.Approve || call.Source != "operator" || call.Note != "bank ok" {
			t.Errorf("unexpected verify request: %+v", call)
		}
	})

	t.Run("should map errors through reason codes", func(t *testing.T) {
		cases := map[error]int{
			domain.ErrNotFound:          http.StatusNotFound,
			domain.ErrInvalidTransition: http.StatusConflict,
		}
		for cause, want := range cases {
			cause := cause
			st := &mockSettlement{VerifyFunc: func(context.Context, usecase.VerifyRequest) (*model.Payment, error) { return nil, cause }}
			h := newTestServer(st, &mockAccounts{}, &mockUserRepo{}, &mockSweeper{})
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, adminRequest(http.MethodPost, "/admin/v1/payments/p-1/verify", `{"approve":false}`))
			if rr.Code != want {
				t.Errorf("%v: want %d, got %d", cause, want, rr.Code)
			}
		}
	})

	t.Run("should reject an unknown field", func(t *testing.T) {
		st := &mockSettlement{VerifyFunc: notFound}
		h := newTestServer(st, &mockAccounts{}, &mockUserRepo{}, &mockSweeper{})
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, adminRequest(http.MethodPost, "/admin/v1/payments/p-1/verify", `{"approved":true}`))
		if rr.Code != http.StatusBadRequest || len(st.verifyCalls) != 0 {
			t.Errorf("want 400 without a call, got %d", rr.Code)
		}
	})
}

func TestRefundHandler(t *testing.T) {
	t.Run("should convert the amount to cents", func(t *testing.T) {
		var gotCents int64
		st := &mockSettlement{RefundFunc: func(ctx context.Context, id string, cents int64, reason string) (*model.Payment, error) {
			gotCents = cents
			return &model.Payment{ID: id, Status: model.PaymentStatusRefunded, Refund: &model.RefundInfo{AmountCents: cents, Reason: reason}}, nil
		}}
		h := newTestServer(st, &mockAccounts{}, &mockUserRepo{}, &mockSweeper{})

		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, adminRequest(http.MethodPost, "/admin/v1/payments/p-1/refund", `{"amount":19.99,"reason":"duplicate"}`))

		if rr.Code != http.StatusOK || gotCents != 1999 {
			t.Fatalf("want 200 with 1999 cents, got %d / %d", rr.Code, gotCents)
		}
	})

	t.Run("should reject a negative amount", func(t *testing.T) {
		h := newTestServer(&mockSettlement{}, &mockAccounts{}, &mockUserRepo{}, &mockSweeper{})
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, adminRequest(http.MethodPost, "/admin/v1/payments/p-1/refund", `{"amount":-1}`))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("want 400, got %d", rr.Code)
		}
	})
}

func TestUserStatusAndSweep(t *testing.T) {
	t.Run("should suspend an account", func(t *testing.T) {
		acc := &mockAccounts{SetStatusFunc: func(ctx context.Context, id string, status model.AccountStatus) (*model.User, error) {
			return &model.User{ID: id, Status: status}, nil
		}}
		h := newTestServer(&mockSettlement{}, acc, &mockUserRepo{}, &mockSweeper{})

		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, adminRequest(http.MethodPost, "/admin/v1/users/u-1/status", `{"status":"suspended"}`))

		if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"suspended"`) {
			t.Fatalf("want 200 suspended, got %d %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("should report the number of demoted ledgers", func(t *testing.T) {
		h := newTestServer(&mockSettlement{}, &mockAccounts{}, &mockUserRepo{}, &mockSweeper{n: 4})
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, adminRequest(http.MethodPost, "/admin/v1/sweep", ""))
		if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"demoted":4`) {
			t.Fatalf("unexpected response %d %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("should surface a sweep failure", func(t *testing.T) {
		h := newTestServer(&mockSettlement{}, &mockAccounts{}, &mockUserRepo{}, &mockSweeper{err: errors.New("boom")})
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, adminRequest(http.MethodPost, "/admin/v1/sweep", ""))
		if rr.Code != http.StatusInternalServerError {
			t.Errorf("want 500, got %d", rr.Code)
		}
	})

	t.Run("should not route unknown methods", func(t *testing.T) {
		h := newTestServer(&mockSettlement{}, &mockAccounts{}, &mockUserRepo{}, &mockSweeper{})
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, adminRequest(http.MethodGet, "/admin/v1/sweep", ""))
		if rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("want 405, got %d", rr.Code)
		}
	})
}

func TestStatementsHandler(t *testing.T) {
	t.Run("should credit every line in cents", func(t *testing.T) {
		// --- Arrange ---
		book := &mockStatements{}
		h := NewServer(&mockSettlement{}, &mockAccounts{}, &mockUserRepo{}, &mockSweeper{}, book, nil, testKey, newTestLogger()).Handler()

		// --- Act ---
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, adminRequest(http.MethodPost, "/admin/v1/statements", `{"lines":[{"reference":"TRX-1","amount":40},{"reference":"TRX-2","amount":74.99}]}`))

		// --- Assert ---
		if rr.Code != http.StatusOK {
			t.Fatalf("want 200, got %d, body=%s", rr.Code, rr.Body.String())
		}
		if book.credited["TRX-1"] != 4000 || book.credited["TRX-2"] != 7499 {
			t.Errorf("unexpected lines %+v", book.credited)
		}
	})

	t.Run("should credit nothing when one line is invalid", func(t *testing.T) {
		bodies := []string{
			`{"lines":[]}`,
			`{"lines":[{"reference":"TRX-1","amount":40},{"reference":" ","amount":10}]}`,
			`{"lines":[{"reference":"TRX-1","amount":40},{"reference":"TRX-2","amount":0}]}`,
		}
		for _, body := range bodies {
			book := &mockStatements{}
			h := NewServer(&mockSettlement{}, &mockAccounts{}, &mockUserRepo{}, &mockSweeper{}, book, nil, testKey, newTestLogger()).Handler()
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, adminRequest(http.MethodPost, "/admin/v1/statements", body))
			if rr.Code != http.StatusBadRequest || len(book.credited) != 0 {
				t.Errorf("%s: want 400 with nothing credited, got %d / %v", body, rr.Code, book.credited)
			}
		}
	})

	t.Run("should require the admin key", func(t *testing.T) {
		book := &mockStatements{}
		h := NewServer(&mockSettlement{}, &mockAccounts{}, &mockUserRepo{}, &mockSweeper{}, book, nil, testKey, newTestLogger()).Handler()
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/admin/v1/statements", strings.NewReader(`{"lines":[{"reference":"X","amount":1}]}`)))
		if rr.Code != http.StatusUnauthorized || len(book.credited) != 0 {
			t.Errorf("want 401 with nothing credited, got %d", rr.Code)
		}
	})
}
