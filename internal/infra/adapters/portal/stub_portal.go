package portal

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"sri-invoice-subscription/internal/domain/model"
	"sri-invoice-subscription/internal/domain/ports/adapter"
)

var _ adapter.Portal = (*StubPortal)(nil)

// StubPortal is the offline portal used when no base URL is configured. It
// lists a deterministic number of documents per day of the queried range.
type StubPortal struct {
	perDay int
}

func NewStubPortal(perDay int) *StubPortal {
	if perDay <= 0 {
		perDay = 2
	}
	return &StubPortal{perDay: perDay}
}

func (s *StubPortal) FetchDocuments(ctx context.Context, q adapter.PortalQuery) ([]model.DocumentDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	types := []model.DocumentType{model.DocFactura, model.DocNotaCredito}
	issuer := q.Filters.IssuerRUC
	if issuer == "" {
		issuer = "1790012345001"
	}

	var out []model.DocumentDescriptor
	day := q.Range.From.Truncate(24 * time.Hour)
	for !day.After(q.Range.To) {
		for i := 0; i < s.perDay; i++ {
			typ := types[i%len(types)]
			if q.Filters.Type != "" && q.Filters.Type != typ {
				continue
			}
			out = append(out, model.DocumentDescriptor{
				AccessKey: accessKey(q.UserID, day, i),
				Type:      typ,
				IssuerRUC: issuer,
				Number:    fmt.Sprintf("001-001-%09d", day.YearDay()*100+i),
				IssuedAt:  day,
			})
		}
		day = day.Add(24 * time.Hour)
	}
	return out, nil
}

func accessKey(userID string, day time.Time, i int) string {
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%s|%s|%d", userID, day.Format(time.DateOnly), i)
	return fmt.Sprintf("%s%016x", day.Format("02012006"), h.Sum64())
}
