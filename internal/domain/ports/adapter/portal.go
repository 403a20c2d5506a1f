package adapter

import (
	"context"

	"sri-invoice-subscription/internal/domain/model"
)

// PortalQuery is one listing request against the tax portal.
type PortalQuery struct {
	UserID   string
	Range    model.DateRange
	Filters  model.DocumentFilters
	Username string
	Password string
}

// Portal lists the documents available for download. The number of
// descriptors returned is what the user is billed.
// Unreachable or timed-out portals must surface as *domain.ExternalServiceError.
type Portal interface {
	FetchDocuments(ctx context.Context, q PortalQuery) ([]model.DocumentDescriptor, error)
}
