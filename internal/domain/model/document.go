package model

import (
	"time"

	"sri-invoice-subscription/internal/domain"
)

type DocumentType string

const (
	DocFactura              DocumentType = "factura"
	DocNotaCredito          DocumentType = "nota_credito"
	DocNotaDebito           DocumentType = "nota_debito"
	DocComprobanteRetencion DocumentType = "comprobante_retencion"
	DocGuiaRemision         DocumentType = "guia_remision"
)

func (t DocumentType) Valid() bool {
	switch t {
	case DocFactura, DocNotaCredito, DocNotaDebito, DocComprobanteRetencion, DocGuiaRemision:
		return true
	}
	return false
}

// DocumentDescriptor identifies one electronic document on the tax portal.
// Each descriptor returned by the portal costs one credit.
type DocumentDescriptor struct {
	AccessKey string       `json:"accessKey"`
	Type      DocumentType `json:"type"`
	IssuerRUC string       `json:"issuerRuc"`
	Number    string       `json:"number"`
	IssuedAt  time.Time    `json:"issuedAt"`
}

// MaxRangeDays caps a single portal query.
const MaxRangeDays = 366

type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (r DateRange) Validate() error {
	if r.From.IsZero() || r.To.IsZero() {
		return domain.NewValidationError("dateRange", "from and to are required")
	}
	if r.To.Before(r.From) {
		return domain.NewValidationError("dateRange", "to precedes from")
	}
	if r.To.Sub(r.From) > MaxRangeDays*24*time.Hour {
		return domain.NewValidationError("dateRange", "exceeds 366 days")
	}
	return nil
}

// DocumentFilters narrow a portal query. Empty fields match everything.
type DocumentFilters struct {
	Type      DocumentType `json:"type,omitempty"`
	IssuerRUC string       `json:"issuerRuc,omitempty"`
}

func (f DocumentFilters) Validate() error {
	if f.Type != "" && !f.Type.Valid() {
		return domain.NewValidationError("filters.type", "unknown document type")
	}
	if f.IssuerRUC != "" && !ValidRUC(f.IssuerRUC) {
		return domain.NewValidationError("filters.issuerRuc", "must be 13 digits")
	}
	return nil
}
