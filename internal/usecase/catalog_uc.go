package usecase

import (
	"context"

	"sri-invoice-subscription/internal/domain/model"
)

var _ CatalogUseCase = (*catalogUC)(nil)

// CatalogUseCase exposes the static plan table.
type CatalogUseCase interface {
	List(ctx context.Context) []model.PlanDefinition
	Lookup(ctx context.Context, id model.PlanID) (model.PlanDefinition, error)
	// Price returns the amount in cents and its currency.
	Price(ctx context.Context, id model.PlanID) (int64, string, error)
}

type catalogUC struct{}

func NewCatalogUseCase() *catalogUC { return &catalogUC{} }

func (c *catalogUC) List(ctx context.Context) []model.PlanDefinition { return model.Plans() }

func (c *catalogUC) Lookup(ctx context.Context, id model.PlanID) (model.PlanDefinition, error) {
	return model.LookupPlan(id)
}

func (c *catalogUC) Price(ctx context.Context, id model.PlanID) (int64, string, error) {
	p, err := model.LookupPlan(id)
	if err != nil {
		return 0, "", err
	}
	return p.PriceCents, p.Currency, nil
}
