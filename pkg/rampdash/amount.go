package rampdash

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// Amount wraps decimal.Decimal for monetary values.
// JSON marshaling outputs a float64 number (compatible with the dashboard
// frontend and the upstream API), while internal comparisons use precise
// decimal operations.
type Amount struct {
	decimal.Decimal
}

// MarshalJSON outputs as a JSON number (not a string).
func (a Amount) MarshalJSON() ([]byte, error) {
	f, _ := a.Round(4).Float64()
	return []byte(strconv.FormatFloat(f, 'f', -1, 64)), nil
}

// UnmarshalJSON accepts both JSON numbers and quoted strings.
func (a *Amount) UnmarshalJSON(data []byte) error {
	return a.Decimal.UnmarshalJSON(data)
}

// Float64 returns the rounded float representation used on the wire.
func (a Amount) Float64() float64 {
	f, _ := a.Round(4).Float64()
	return f
}

// NewAmount creates an Amount from a float64.
func NewAmount(f float64) Amount {
	return Amount{decimal.NewFromFloat(f)}
}

// NewAmountFromInt creates an Amount from an int64.
func NewAmountFromInt(i int64) Amount {
	return Amount{decimal.NewFromInt(i)}
}
