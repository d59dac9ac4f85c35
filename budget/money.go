package budget

import (
	"bytes"
	"database/sql/driver"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits every amount carries.
const Scale = 2

// MaxAmount is the largest accepted amount: fifteen digits, two of them
// fractional.
var MaxAmount = Money{value: decimal.RequireFromString("9999999999999.99")}

var (
	minCents = decimal.NewFromInt(math.MinInt64)
	maxCents = decimal.NewFromInt(math.MaxInt64)
)

// Money is a non-negative fixed-point amount with Scale fractional digits.
// The zero value is 0.00.
type Money struct {
	value decimal.Decimal
}

// Zero is 0.00.
var Zero = Money{}

// NewMoney validates d and wraps it. Negative values, values above
// MaxAmount and values with more than two fractional digits are rejected;
// nothing is rounded.
func NewMoney(d decimal.Decimal) (Money, error) {
	if d.IsNegative() {
		return Money{}, &InvalidInputError{Field: "amount", Reason: fmt.Sprintf("must not be negative, got %s", d)}
	}
	if d.GreaterThan(MaxAmount.value) {
		return Money{}, &InvalidInputError{Field: "amount", Reason: fmt.Sprintf("must not exceed %s, got %s", MaxAmount, d)}
	}
	if !d.Equal(d.Truncate(Scale)) {
		return Money{}, &InvalidInputError{Field: "amount", Reason: fmt.Sprintf("at most %d fractional digits allowed, got %s", Scale, d)}
	}
	return Money{value: d}, nil
}

// Validate reports whether m would be accepted by NewMoney. Sums built
// with Add are not bounded, so callers re-check amounts they did not
// construct.
func (m Money) Validate() error {
	_, err := NewMoney(m.value)
	return err
}

// ParseMoney parses a decimal string such as "1000.00".
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, &InvalidInputError{Field: "amount", Reason: fmt.Sprintf("not a decimal number: %q", s)}
	}
	return NewMoney(d)
}

// MustMoney is ParseMoney for constants and tests. It panics on bad input.
func MustMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

// MoneyFromCents builds an amount from an integer count of cents.
func MoneyFromCents(cents int64) Money {
	return Money{value: decimal.New(cents, -Scale)}
}

// Cents returns the amount as an integer count of cents. It fails rather
// than truncate when the amount has sub-cent digits or does not fit in
// an int64.
func (m Money) Cents() (int64, error) {
	c := m.value.Shift(Scale)
	if !c.IsInteger() {
		return 0, fmt.Errorf("budget: %s has sub-cent digits", m.value)
	}
	if c.LessThan(minCents) || c.GreaterThan(maxCents) {
		return 0, fmt.Errorf("budget: %s is out of range for integer cents", m.value)
	}
	return c.IntPart(), nil
}

func (m Money) Decimal() decimal.Decimal { return m.value }

func (m Money) Add(o Money) Money { return Money{value: m.value.Add(o.value)} }

// Sub may yield a negative value; callers only use it for reporting.
func (m Money) Sub(o Money) Money { return Money{value: m.value.Sub(o.value)} }

func (m Money) Cmp(o Money) int { return m.value.Cmp(o.value) }
func (m Money) Equal(o Money) bool { return m.value.Equal(o.value) }
func (m Money) LessThan(o Money) bool { return m.value.LessThan(o.value) }
func (m Money) GreaterThan(o Money) bool { return m.value.GreaterThan(o.value) }
func (m Money) IsZero() bool { return m.value.IsZero() }
func (m Money) String() string { return m.value.StringFixed(Scale) }
func (m Money) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// MarshalJSON encodes the amount as a bare JSON number with exactly two
// fractional digits, e.g. 1000.00.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string.
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(bytes.TrimSpace(data), `"`)
	if string(data) == "null" || len(data) == 0 {
		*m = Money{}
		return nil
	}
	parsed, err := ParseMoney(string(data))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Value stores the amount as integer cents.
func (m Money) Value() (driver.Value, error) {
	c, err := m.Cents()
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Scan reads integer cents written by Value.
func (m *Money) Scan(src any) error {
	switch v := src.(type) {
	case int64:
		*m = MoneyFromCents(v)
	case nil:
		*m = Money{}
	default:
		return fmt.Errorf("budget: cannot scan %T into Money", src)
	}
	return nil
}
