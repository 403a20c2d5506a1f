package model

import (
	"fmt"
	"sort"
	"time"

	"sri-invoice-subscription/internal/domain"
)

type PlanID string

const (
	PlanFree         PlanID = "free"
	PlanBasic        PlanID = "basic"
	PlanProfessional PlanID = "professional"
	PlanUnlimited    PlanID = "unlimited"
)

// PlanDefinition is an immutable catalog entry. Prices are integer cents.
type PlanDefinition struct {
	ID           PlanID   `json:"id"`
	Name         string   `json:"name"`
	Credits      Credits  `json:"credits"`
	ValidityDays int      `json:"validityDays"`
	PriceCents   int64    `json:"priceCents"`
	Currency     string   `json:"currency"`
	Description  string   `json:"description"`
	Features     []string `json:"features"`
}

func (p PlanDefinition) IsFree() bool { return p.ID == PlanFree }

// Validity is the length of the entitlement window granted on activation.
func (p PlanDefinition) Validity() time.Duration {
	return time.Duration(p.ValidityDays) * 24 * time.Hour
}

// Price formats PriceCents as a decimal amount, e.g. "40.00".
func (p PlanDefinition) Price() string {
	return fmt.Sprintf("%d.%02d", p.PriceCents/100, p.PriceCents%100)
}

var catalog = map[PlanID]PlanDefinition{
	PlanFree: {
		ID:           PlanFree,
		Name:         "Plan Gratuito",
		Credits:      Finite(3000),
		ValidityDays: 30,
		PriceCents:   0,
		Currency:     "USD",
		Description:  "3,000 facturas/notas de crédito por 1 mes",
		Features:     []string{"3,000 facturas/notas de crédito", "Válido por 1 mes", "Solo para nuevos usuarios"},
	},
	PlanBasic: {
		ID:           PlanBasic,
		Name:         "Plan Básico",
		Credits:      Finite(12000),
		ValidityDays: 365,
		PriceCents:   4000,
		Currency:     "USD",
		Description:  "12,000 facturas/notas de crédito por 1 año",
		Features:     []string{"12,000 facturas/notas de crédito", "Válido por 1 año", "Soporte prioritario"},
	},
	PlanProfessional: {
		ID:           PlanProfessional,
		Name:         "Plan Profesional",
		Credits:      Finite(75000),
		ValidityDays: 365,
		PriceCents:   7500,
		Currency:     "USD",
		Description:  "75,000 facturas/notas de crédito por 1 año",
		Features:     []string{"75,000 facturas/notas de crédito", "Válido por 1 año", "Soporte prioritario", "Exportación avanzada"},
	},
	PlanUnlimited: {
		ID:           PlanUnlimited,
		Name:         "Plan Ilimitado",
		Credits:      Unlimited,
		ValidityDays: 365,
		PriceCents:   10000,
		Currency:     "USD",
		Description:  "Facturas/notas de crédito ilimitadas por 1 año",
		Features:     []string{"Facturas/notas ilimitadas", "Válido por 1 año", "Soporte 24/7", "Exportación avanzada", "Reportes personalizados"},
	},
}

// LookupPlan returns the catalog entry for id, or domain.ErrPlanNotFound.
func LookupPlan(id PlanID) (PlanDefinition, error) {
	p, ok := catalog[id]
	if !ok {
		return PlanDefinition{}, domain.ErrPlanNotFound
	}
	p.Features = append([]string(nil), p.Features...)
	return p, nil
}

// Plans lists the catalog ordered by price.
func Plans() []PlanDefinition {
	out := make([]PlanDefinition, 0, len(catalog))
	for id := range catalog {
		p, _ := LookupPlan(id)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PriceCents < out[j].PriceCents })
	return out
}

func (id PlanID) Valid() bool {
	_, ok := catalog[id]
	return ok
}
