package web

import (
	"encoding/json"
	"math"
	"net/http"
	"strings"
	"time"

	"sri-invoice-subscription/internal/domain"
	"sri-invoice-subscription/internal/domain/model"
	"sri-invoice-subscription/internal/domain/ports/repository"
	"sri-invoice-subscription/internal/infra/api"
	"sri-invoice-subscription/internal/usecase"
)

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.NewValidationError("body", "invalid request body")
	}
	return nil
}

func parseTime(field, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, domain.NewValidationError(field, "must be RFC 3339 or YYYY-MM-DD")
}

// statsHandler serves payment aggregates for ?from=&to= (default: the last
// 30 days) together with the number of accounts on each plan.
func statsHandler(settlement usecase.SettlementUseCase, users repository.UserRepository, s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		from, err := parseTime("from", r.URL.Query().Get("from"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		to, err := parseTime("to", r.URL.Query().Get("to"))
		if err != nil {
			s.fail(w, r, err)
			return
		}

		stats, err := settlement.Stats(ctx, from, to)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		byPlan, err := users.CountByPlan(ctx, repository.NoTX)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		// Consolidate into a single response struct
		response := struct {
			Payments       *model.PaymentStats  `json:"payments"`
			AccountsByPlan map[model.PlanID]int `json:"accountsByPlan"`
		}{
			Payments:       stats,
			AccountsByPlan: byPlan,
		}
		api.WriteJSON(w, http.StatusOK, response)
	}
}

type verifyRequest struct {
	Approve bool   `json:"approve"`
	Note    string `json:"note"`
}

func verifyHandler(settlement usecase.SettlementUseCase, s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req verifyRequest
		if err := decode(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
		id := r.PathValue("id")
		p, err := settlement.Verify(r.Context(), usecase.VerifyRequest{
			PaymentID: id,
			Approve:   req.Approve,
			Note:      req.Note,
			Source:    "operator",
		})
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.log.Info().Str("payment_id", id).Bool("approve", req.Approve).Str("status", string(p.Status)).Msg("payment verified by operator")
		api.WriteJSON(w, http.StatusOK, p)
	}
}

type refundRequest struct {
	// Amount is a decimal currency amount; omitted or 0 means a full refund.
	Amount float64 `json:"amount"`
	Reason string  `json:"reason"`
}

func refundHandler(settlement usecase.SettlementUseCase, s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refundRequest
		if err := decode(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
		if req.Amount < 0 || math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) {
			s.fail(w, r, domain.NewValidationError("amount", "must be a non-negative number"))
			return
		}
		id := r.PathValue("id")
		cents := int64(math.Round(req.Amount * 100))
		p, err := settlement.Refund(r.Context(), id, cents, req.Reason)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.log.Info().Str("payment_id", id).Int64("amount_cents", p.Refund.AmountCents).Msg("payment refunded")
		api.WriteJSON(w, http.StatusOK, p)
	}
}

type statusRequest struct {
	Status model.AccountStatus `json:"status"`
}

func userStatusHandler(accounts usecase.AccountUseCase, s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req statusRequest
		if err := decode(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
		id := r.PathValue("id")
		u, err := accounts.SetStatus(r.Context(), id, req.Status)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"id": u.ID, "status": u.Status})
	}
}

func sweepHandler(sweeper Sweeper, s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := sweeper.RunOnce(r.Context())
		if err != nil {
			s.fail(w, r, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]int{"demoted": n})
	}
}

type statementLine struct {
	Reference string  `json:"reference"`
	Amount    float64 `json:"amount"`
}

type statementsRequest struct {
	Lines []statementLine `json:"lines"`
	// Reconcile runs a verification pass right after the lines are booked.
	Reconcile bool `json:"reconcile"`
}

// statementsHandler books credited bank statement lines. The whole batch is
// validated before anything is credited.
func statementsHandler(book StatementBook, reconciler Reconciler, s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req statementsRequest
		if err := decode(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
		if len(req.Lines) == 0 {
			s.fail(w, r, domain.NewValidationError("lines", "must not be empty"))
			return
		}
		cents := make([]int64, len(req.Lines))
		for i, l := range req.Lines {
			if strings.TrimSpace(l.Reference) == "" {
				s.fail(w, r, domain.NewValidationError("reference", "is required"))
				return
			}
			if l.Amount <= 0 || math.IsNaN(l.Amount) || math.IsInf(l.Amount, 0) {
				s.fail(w, r, domain.NewValidationError("amount", "must be a positive number"))
				return
			}
			cents[i] = int64(math.Round(l.Amount * 100))
		}
		for i, l := range req.Lines {
			book.Credit(l.Reference, cents[i])
		}
		s.log.Info().Int("lines", len(req.Lines)).Msg("statement lines credited")

		resp := map[string]int{"credited": len(req.Lines)}
		if req.Reconcile && reconciler != nil {
			resp["resolved"] = reconciler.Tick(r.Context())
		}
		api.WriteJSON(w, http.StatusOK, resp)
	}
}
