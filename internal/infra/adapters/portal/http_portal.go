package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sri-invoice-subscription/internal/domain"
	"sri-invoice-subscription/internal/domain/model"
	"sri-invoice-subscription/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.Portal = (*HTTPPortal)(nil)

// HTTPPortal lists documents through the portal gateway's JSON API:
// POST <base>/documents/search.
type HTTPPortal struct {
	base   string
	client *http.Client
}

func NewHTTPPortal(base string, timeout time.Duration) (*HTTPPortal, error) {
	if base == "" {
		return nil, errors.New("portal base url empty")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPPortal{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: timeout},
	}, nil
}

type searchRequest struct {
	Username  string             `json:"username"`
	Password  string             `json:"password"`
	From      string             `json:"from"`
	To        string             `json:"to"`
	Type      model.DocumentType `json:"type,omitempty"`
	IssuerRUC string             `json:"issuerRuc,omitempty"`
}

type searchResponse struct {
	Documents []model.DocumentDescriptor `json:"documents"`
}

func (p *HTTPPortal) FetchDocuments(ctx context.Context, q adapter.PortalQuery) ([]model.DocumentDescriptor, error) {
	b, _ := json.Marshal(searchRequest{
		Username:  q.Username,
		Password:  q.Password,
		From:      q.Range.From.Format(time.DateOnly),
		To:        q.Range.To.Format(time.DateOnly),
		Type:      q.Filters.Type,
		IssuerRUC: q.Filters.IssuerRUC,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.base+"/documents/search", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, domain.NewExternalServiceError("portal", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, domain.NewValidationError("portalCredentials", "rejected by the portal")
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, domain.NewExternalServiceError("portal", fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, domain.NewValidationError("query", strings.TrimSpace(string(body)))
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, domain.NewExternalServiceError("portal", fmt.Errorf("decode: %w", err))
	}
	return out.Documents, nil
}
