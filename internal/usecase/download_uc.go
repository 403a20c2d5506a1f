package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"sri-invoice-subscription/internal/domain"
	"sri-invoice-subscription/internal/domain/model"
	"sri-invoice-subscription/internal/domain/ports/adapter"
	"sri-invoice-subscription/internal/infra/logging"
	"sri-invoice-subscription/internal/infra/metrics"
)

var _ DownloadUseCase = (*downloadUC)(nil)

// DownloadUseCase lists portal documents for a user and bills one credit per
// document actually returned.
type DownloadUseCase interface {
	Download(ctx context.Context, userID string, req DownloadRequest) (*DownloadResult, error)
}

type DownloadRequest struct {
	Range   model.DateRange
	Filters model.DocumentFilters
	// EstimatedCost is the pre-flight estimate; <= 0 means 1.
	EstimatedCost int64
}

type DownloadResult struct {
	Documents       []model.DocumentDescriptor `json:"documents"`
	CreditsConsumed int64                      `json:"creditsConsumed"`
	Ledger          model.LedgerSnapshot       `json:"ledger"`

	// Truncated is set when the portal listed more documents than the ledger
	// could pay for; DocumentsFound keeps the portal's count.
	Truncated      bool `json:"truncated"`
	DocumentsFound int  `json:"documentsFound"`
}

type DownloadOptions struct {
	Timeout     time.Duration
	MaxAttempts int
	// InitialBackoff is the first retry delay; it grows exponentially.
	InitialBackoff time.Duration
}

type downloadUC struct {
	guard    EntitlementGuard
	accounts AccountUseCase
	portal   adapter.Portal
	opts     DownloadOptions
	log      *zerolog.Logger
}

func NewDownloadUseCase(guard EntitlementGuard, accounts AccountUseCase, portal adapter.Portal, opts DownloadOptions, logger *zerolog.Logger) *downloadUC {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	return &downloadUC{guard: guard, accounts: accounts, portal: portal, opts: opts, log: logger}
}

func (d *downloadUC) Download(ctx context.Context, userID string, req DownloadRequest) (*DownloadResult, error) {
	defer logging.TraceDuration(d.log, "DownloadUC.Download")()

	if err := req.Range.Validate(); err != nil {
		return nil, err
	}
	if err := req.Filters.Validate(); err != nil {
		return nil, err
	}
	if req.EstimatedCost <= 0 {
		req.EstimatedCost = 1
	}

	username, password, err := d.accounts.PortalCredentials(ctx, userID)
	if err != nil {
		return nil, err
	}

	res, err := d.guard.Authorize(ctx, userID, req.EstimatedCost)
	if err != nil {
		metrics.IncDownloadRequest(string(domain.ReasonOf(err)))
		return nil, err
	}
	defer res.Release()

	q := adapter.PortalQuery{UserID: userID, Range: req.Range, Filters: req.Filters, Username: username, Password: password}
	docs, err := d.fetch(ctx, q)
	if err != nil {
		metrics.IncDownloadRequest(string(domain.ReasonOf(err)))
		return nil, err
	}

	found := len(docs)
	docs, snap, err := d.bill(ctx, res, docs)
	if err != nil {
		metrics.IncDownloadRequest(string(domain.ReasonOf(err)))
		return nil, err
	}
	truncated := len(docs) < found
	if truncated {
		metrics.IncDownloadRequest("truncated")
		d.log.Warn().Str("user_id", userID).Int("found", found).Int("billed", len(docs)).Msg("listing cut to the remaining credits")
	} else {
		metrics.IncDownloadRequest("ok")
	}
	metrics.AddDocumentsBilled(len(docs))
	d.log.Info().Str("user_id", userID).Int("documents", len(docs)).Msg("documents listed")

	if docs == nil {
		docs = []model.DocumentDescriptor{}
	}
	return &DownloadResult{
		Documents:       docs,
		CreditsConsumed: int64(len(docs)),
		Ledger:          snap,
		Truncated:       truncated,
		DocumentsFound:  found,
	}, nil
}

// bill charges one credit per document. When the portal returned more than
// the ledger still holds, the listing is cut to what remains and only that
// prefix is charged and delivered. Nothing is delivered once the ledger is
// empty.
func (d *downloadUC) bill(ctx context.Context, res *Reservation, docs []model.DocumentDescriptor) ([]model.DocumentDescriptor, model.LedgerSnapshot, error) {
	for {
		snap, err := res.Finalize(ctx, int64(len(docs)))
		var short *domain.InsufficientCreditsError
		if !errors.As(err, &short) || short.Available <= 0 || short.Available >= int64(len(docs)) {
			return docs, snap, err
		}
		docs = docs[:short.Available]
	}
}

// fetch queries the portal with a per-attempt timeout. Only transient
// failures are retried.
func (d *downloadUC) fetch(ctx context.Context, q adapter.PortalQuery) ([]model.DocumentDescriptor, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.opts.InitialBackoff

	attempt := 0
	op := func() ([]model.DocumentDescriptor, error) {
		attempt++
		actx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
		defer cancel()

		docs, err := d.portal.FetchDocuments(actx, q)
		if err == nil {
			return docs, nil
		}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = domain.NewExternalServiceError("portal", err)
		}
		if !errors.Is(err, domain.ErrExternalService) {
			return nil, backoff.Permanent(err)
		}
		d.log.Warn().Err(err).Int("attempt", attempt).Msg("portal fetch failed")
		return nil, err
	}
	return backoff.Retry(ctx, op, backoff.WithBackOff(b), backoff.WithMaxTries(uint(d.opts.MaxAttempts)))
}
