// Package client talks to the public API on behalf of a downloader: it logs
// in, mirrors the server-owned ledger locally and drives download sessions.
// The ledger is never written from here; the server bills what it returns.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"sri-invoice-subscription/internal/domain"
	"sri-invoice-subscription/internal/domain/model"
)

const defaultTimeout = 60 * time.Second

type Client struct {
	base *url.URL
	http *http.Client
	lang string

	mu    sync.RWMutex
	token string
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithToken reuses a previously issued session token.
func WithToken(tok string) Option { return func(c *Client) { c.token = tok } }

// WithLanguage sets Accept-Language for localized error messages.
func WithLanguage(lang string) Option { return func(c *Client) { c.lang = lang } }

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server url %q", baseURL)
	}
	c := &Client{base: u, http: &http.Client{Timeout: defaultTimeout}, lang: "es"}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      Account   `json:"user"`
}

type Account struct {
	ID                   string               `json:"id"`
	Email                string               `json:"email"`
	Name                 string               `json:"name"`
	Status               model.AccountStatus  `json:"status"`
	Ledger               model.LedgerSnapshot `json:"ledger"`
	HasPortalCredentials bool                 `json:"hasPortalCredentials"`
}

// Login authenticates and keeps the returned token for later calls.
func (c *Client) Login(ctx context.Context, email, password, fingerprint string) (*LoginResult, error) {
	var out LoginResult
	body := map[string]string{"email": email, "password": password, "deviceFingerprint": fingerprint}
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", nil, body, &out); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.token = out.Token
	c.mu.Unlock()
	return &out, nil
}

func (c *Client) Validate(ctx context.Context) (*Account, error) {
	var out struct {
		User Account `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/auth/validate", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

func (c *Client) Plans(ctx context.Context) ([]model.PlanDefinition, error) {
	var out struct {
		Items []model.PlanDefinition `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/plans", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// LedgerView is the pull response: the authoritative snapshot and the
// server clock it was taken at.
type LedgerView struct {
	Ledger     model.LedgerSnapshot `json:"ledger"`
	ServerTime time.Time            `json:"serverTime"`
}

func (c *Client) Ledger(ctx context.Context) (*LedgerView, error) {
	var out LedgerView
	if err := c.do(ctx, http.MethodGet, "/api/v1/ledger", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Authorize is the pre-flight check. A denial is an *APIError wrapping
// domain.ErrInsufficientCredits with the needed/available counts filled in.
func (c *Client) Authorize(ctx context.Context, estimatedCost int64) (*model.LedgerSnapshot, error) {
	var out struct {
		Ledger model.LedgerSnapshot `json:"ledger"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/ledger/authorize", nil, map[string]int64{"estimatedCost": estimatedCost}, &out); err != nil {
		return nil, err
	}
	return &out.Ledger, nil
}

type PaymentRequest struct {
	PlanID        model.PlanID        `json:"planId"`
	PaymentMethod model.PaymentMethod `json:"paymentMethod"`
	Amount        *float64            `json:"amount,omitempty"`
	Proof         model.PaymentProof  `json:"proof"`
}

type Settlement struct {
	PaymentID     string               `json:"paymentId"`
	TransactionID string               `json:"transactionId"`
	Status        model.PaymentStatus  `json:"status"`
	FailureReason string               `json:"failureReason,omitempty"`
	Ledger        model.LedgerSnapshot `json:"ledgerSnapshot"`
}

// SubmitPayment selects a plan and settles it.
func (c *Client) SubmitPayment(ctx context.Context, req PaymentRequest) (*Settlement, error) {
	var out Settlement
	if err := c.do(ctx, http.MethodPost, "/api/v1/payments", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Payments(ctx context.Context, limit int) ([]model.Payment, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Items []model.Payment `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/payments", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

type DownloadQuery struct {
	From          string                `json:"from"` // YYYY-MM-DD
	To            string                `json:"to"`
	Filters       model.DocumentFilters `json:"filters"`
	EstimatedCost int64                 `json:"estimatedCost,omitempty"`
}

type DownloadResult struct {
	Documents       []model.DocumentDescriptor `json:"documents"`
	CreditsConsumed int64                      `json:"creditsConsumed"`
	Ledger          model.LedgerSnapshot       `json:"ledger"`
	Truncated       bool                       `json:"truncated"`
	DocumentsFound  int                        `json:"documentsFound"`
}

// Download asks the server to list and bill the documents in range.
func (c *Client) Download(ctx context.Context, q DownloadQuery) (*DownloadResult, error) {
	var out DownloadResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/invoices/download", nil, q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SetPortalCredentials(ctx context.Context, username, password string) error {
	return c.do(ctx, http.MethodPut, "/api/v1/account/portal-credentials", nil,
		map[string]string{"username": username, "password": password}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, in, out any) error {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if q != nil {
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", c.lang)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	var raw struct {
		Reason           string `json:"reason"`
		Message          string `json:"message"`
		Field            string `json:"field"`
		CreditsNeeded    *int64 `json:"creditsNeeded"`
		CreditsAvailable *int64 `json:"creditsAvailable"`
		UpgradeRequired  bool   `json:"upgradeRequired"`
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	e := &APIError{Status: resp.StatusCode}
	if err := json.Unmarshal(b, &raw); err != nil || raw.Reason == "" {
		e.Reason = domain.ReasonInternal
		e.Message = strings.TrimSpace(string(b))
		if e.Message == "" {
			e.Message = http.StatusText(resp.StatusCode)
		}
		return e
	}
	e.Reason = domain.Reason(raw.Reason)
	e.Message = raw.Message
	e.Field = raw.Field
	e.UpgradeRequired = raw.UpgradeRequired
	if raw.CreditsNeeded != nil {
		e.CreditsNeeded = *raw.CreditsNeeded
	}
	if raw.CreditsAvailable != nil {
		e.CreditsAvailable = *raw.CreditsAvailable
	}
	return e
}

// IsDenied reports whether err is an entitlement denial.
func IsDenied(err error) (*APIError, bool) {
	var e *APIError
	if errors.As(err, &e) && e.UpgradeRequired {
		return e, true
	}
	return nil, false
}
