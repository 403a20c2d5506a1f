package portal

import (
	"context"

	"sri-invoice-subscription/internal/domain/model"
	"sri-invoice-subscription/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.Portal = (*limitedPortal)(nil)

type limitedPortal struct {
	inner adapter.Portal
	sem   chan struct{}
}

// NewLimitedPortal caps concurrent portal sessions across all users.
func NewLimitedPortal(inner adapter.Portal, maxConcurrent int) adapter.Portal {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedPortal{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedPortal) FetchDocuments(ctx context.Context, q adapter.PortalQuery) ([]model.DocumentDescriptor, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-l.sem }()
	return l.inner.FetchDocuments(ctx, q)
}
