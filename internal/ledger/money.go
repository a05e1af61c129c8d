package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrNotANumber is returned when a monetary input does not parse.
var ErrNotANumber = errors.New("not a number")

// Magnitude bounds for parsed input, roughly those of a float64. Anything
// larger would overflow to infinity; exponents far outside this range also
// make rounding and formatting allocate without bound.
const (
	maxIntegerDigits = 308
	minExponent      = -308
)

// ParseDecimal parses a user-entered number. Blank input, NaN, infinities
// and values outside the float64 range are rejected.
func ParseDecimal(s string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", ErrNotANumber)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrNotANumber, s)
	}
	if !inRange(d) {
		return decimal.Zero, fmt.Errorf("%w: %q is out of range", ErrNotANumber, s)
	}
	return d, nil
}

func inRange(d decimal.Decimal) bool {
	if d.IsZero() {
		return true
	}
	exp := int(d.Exponent())
	return exp >= minExponent && d.NumDigits()+exp <= maxIntegerDigits
}

// Round2 rounds half away from zero to two decimal places.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// FormatMoney renders d with exactly two fractional digits.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}
