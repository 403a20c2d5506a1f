package mail

import (
	"context"
	"fmt"
	"time"

	"sri-invoice-subscription/internal/domain/model"
	"sri-invoice-subscription/internal/domain/ports/repository"
	"sri-invoice-subscription/internal/infra/i18n"
)

// Message is a rendered plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Composer renders the payment confirmation for one payment.
type Composer struct {
	users    repository.UserRepository
	payments repository.PaymentRepository
	tr       *i18n.Translator
}

func NewComposer(users repository.UserRepository, payments repository.PaymentRepository, tr *i18n.Translator) *Composer {
	return &Composer{users: users, payments: payments, tr: tr}
}

func (c *Composer) PaymentConfirmation(ctx context.Context, userID, paymentID string) (Message, error) {
	u, err := c.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		return Message{}, err
	}
	p, err := c.payments.FindByID(ctx, repository.NoTX, paymentID)
	if err != nil {
		return Message{}, err
	}
	if p.UserID != u.ID {
		return Message{}, fmt.Errorf("payment %s does not belong to user %s", p.ID, u.ID)
	}
	plan, err := model.LookupPlan(p.PlanID)
	if err != nil {
		return Message{}, err
	}
	until := "-"
	if u.Ledger.PlanID == p.PlanID && u.Ledger.ExpiresAt != nil {
		until = u.Ledger.ExpiresAt.Format(time.DateOnly)
	}
	return Message{
		To:      u.Email,
		Subject: c.tr.T("MAIL_PAYMENT_SUBJECT", plan.Name),
		Body:    c.tr.T("MAIL_PAYMENT_BODY", u.Name, plan.Price(), p.Currency, plan.Name, p.TransactionID, until),
	}, nil
}
