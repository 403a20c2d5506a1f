package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// UnlimitedMarker is the wire form of an unlimited allotment.
const UnlimitedMarker = "unlimited"

// legacyUnlimitedMarker is what older extension builds cached locally.
const legacyUnlimitedMarker = "Ilimitados"

// Credits is a tagged value: either Finite(n) with n >= 0 or Unlimited.
// The zero value is Finite(0). Code never compares the unlimited tag numerically;
// use the methods below.
type Credits struct {
	n         int64
	unlimited bool
}

// Unlimited is the unbounded allotment of the unlimited plan.
var Unlimited = Credits{unlimited: true}

// Finite returns a bounded allotment. Negative inputs clamp to zero.
func Finite(n int64) Credits {
	if n < 0 {
		n = 0
	}
	return Credits{n: n}
}

func (c Credits) IsUnlimited() bool { return c.unlimited }

// Value returns the finite count and true, or 0 and false for Unlimited.
func (c Credits) Value() (int64, bool) {
	if c.unlimited {
		return 0, false
	}
	return c.n, true
}

// Covers reports whether amount fits in c.
func (c Credits) Covers(amount int64) bool {
	return c.unlimited || amount <= c.n
}

// Minus subtracts a used count, flooring at zero. Unlimited stays Unlimited.
func (c Credits) Minus(used int64) Credits {
	if c.unlimited {
		return c
	}
	return Finite(c.n - used)
}

func (c Credits) Equal(o Credits) bool {
	return c.unlimited == o.unlimited && c.n == o.n
}

func (c Credits) String() string {
	if c.unlimited {
		return UnlimitedMarker
	}
	return strconv.FormatInt(c.n, 10)
}

func (c Credits) MarshalJSON() ([]byte, error) {
	if c.unlimited {
		return json.Marshal(UnlimitedMarker)
	}
	return []byte(strconv.FormatInt(c.n, 10)), nil
}

func (c *Credits) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		switch s {
		case UnlimitedMarker, legacyUnlimitedMarker:
			*c = Unlimited
			return nil
		}
		return fmt.Errorf("credits: unknown marker %q", s)
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("credits: %w", err)
	}
	if n < 0 {
		return fmt.Errorf("credits: negative value %d", n)
	}
	*c = Finite(n)
	return nil
}

// Nullable is the storage encoding: nil for Unlimited.
func (c Credits) Nullable() *int64 {
	if c.unlimited {
		return nil
	}
	n := c.n
	return &n
}

// CreditsFromNullable decodes the storage encoding produced by Nullable.
func CreditsFromNullable(p *int64) Credits {
	if p == nil {
		return Unlimited
	}
	return Finite(*p)
}
