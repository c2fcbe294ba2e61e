package store

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// parseDecimal reads a decimal column. Amounts and ratios are stored as
// decimal text so they round-trip without float drift.
func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return d, nil
}
