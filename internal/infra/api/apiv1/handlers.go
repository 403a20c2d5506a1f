package apiv1

import (
	"net/http"
	"strings"

	"sri-invoice-subscription/internal/domain"
	"sri-invoice-subscription/internal/domain/model"
	"sri-invoice-subscription/internal/infra/api"
	"sri-invoice-subscription/internal/usecase"
)

// ----- auth -----

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	RUC      string `json:"ruc"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	user, err := s.accounts.Register(r.Context(), usecase.RegisterRequest{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		RUC:      req.RUC,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, s.accountView(user))
}

type loginRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	DeviceFingerprint string `json:"deviceFingerprint"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.accounts.Login(r.Context(), usecase.LoginRequest{
		Email:       req.Email,
		Password:    req.Password,
		Fingerprint: req.DeviceFingerprint,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{
		"token":     res.Token,
		"expiresAt": res.ExpiresAt,
		"user":      s.accountView(res.User),
	})
}

func (s *Server) validate(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, map[string]any{
		"valid": true,
		"user":  s.accountView(userFrom(r.Context())),
	})
}

type account struct {
	ID     string               `json:"id"`
	Email  string               `json:"email"`
	Name   string               `json:"name"`
	RUC    string               `json:"ruc,omitempty"`
	Status model.AccountStatus  `json:"status"`
	Ledger model.LedgerSnapshot `json:"ledger"`
	// HasPortalCredentials never exposes the credentials themselves.
	HasPortalCredentials bool `json:"hasPortalCredentials"`
}

func (s *Server) accountView(u *model.User) account {
	return account{
		ID:                   u.ID,
		Email:                u.Email,
		Name:                 u.Name,
		RUC:                  u.RUC,
		Status:               u.Status,
		Ledger:               u.Ledger.Snapshot(s.now()),
		HasPortalCredentials: u.Portal != nil,
	}
}

// ----- catalog & ledger -----

func (s *Server) listPlans(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, map[string]any{"items": s.catalog.List(r.Context())})
}

func (s *Server) getLedger(w http.ResponseWriter, r *http.Request) {
	snap, err := s.ledger.Snapshot(r.Context(), userFrom(r.Context()).ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"ledger": snap, "serverTime": s.now()})
}

type authorizeRequest struct {
	EstimatedCost int64 `json:"estimatedCost"`
}

// authorize is a pre-flight check only; the reservation is dropped at once.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) {
	var req authorizeRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.guard.Authorize(r.Context(), userFrom(r.Context()).ID, req.EstimatedCost)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res.Release()
	api.WriteJSON(w, http.StatusOK, map[string]any{
		"authorized": true,
		"ledger":     res.Authorization().Ledger,
	})
}

// ----- payments -----

type settleRequest struct {
	PlanID        model.PlanID        `json:"planId"`
	PaymentMethod model.PaymentMethod `json:"paymentMethod"`
	Amount        *float64            `json:"amount"`
	Proof         model.PaymentProof  `json:"proof"`
}

func (s *Server) settle(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	cents, err := toCents(req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.settlement.Settle(r.Context(), usecase.SettleRequest{
		UserID:      userFrom(r.Context()).ID,
		PlanID:      model.PlanID(strings.ToLower(string(req.PlanID))),
		Method:      req.PaymentMethod,
		AmountCents: cents,
		Proof:       req.Proof,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, res)
}

func (s *Server) listPayments(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	items, err := s.settlement.History(r.Context(), userFrom(r.Context()).ID, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if items == nil {
		items = []*model.Payment{}
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) getPayment(w http.ResponseWriter, r *http.Request) {
	id, err := paymentIDParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := s.settlement.Get(r.Context(), userFrom(r.Context()).ID, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, p)
}

// ----- downloads -----

type downloadRequest struct {
	From          string                `json:"from"`
	To            string                `json:"to"`
	Filters       model.DocumentFilters `json:"filters"`
	EstimatedCost int64                 `json:"estimatedCost"`
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	from, err := parseDay("from", req.From)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	to, err := parseDay("to", req.To)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.downloads.Download(r.Context(), userFrom(r.Context()).ID, usecase.DownloadRequest{
		Range:         model.DateRange{From: from, To: to},
		Filters:       req.Filters,
		EstimatedCost: req.EstimatedCost,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, res)
}

type portalCredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) setPortalCredentials(w http.ResponseWriter, r *http.Request) {
	var req portalCredentialsRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		s.fail(w, r, domain.NewValidationError("portalCredentials", "username and password are required"))
		return
	}
	if err := s.accounts.SetPortalCredentials(r.Context(), userFrom(r.Context()).ID, req.Username, req.Password); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
