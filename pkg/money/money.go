// Package money provides currency-safe amounts using integer cents and the
// Fowler Money pattern. Payment amounts in this module are always EUR, but the
// currency travels with the value so that mixing currencies is an error rather
// than a silent bug.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// EUR is the only currency SEPA credit transfers carry.
const EUR = "EUR"

// ErrInvalidAmount is returned when a textual amount cannot be parsed.
var ErrInvalidAmount = errors.New("invalid amount")

// Money represents a monetary value with currency.
// It wraps go-money for safe arithmetic and shopspring/decimal for formatting.
type Money struct {
	m *money.Money
}

// New creates a Money value from minor units and a currency code.
func New(amountCents int64, currencyCode string) *Money {
	return &Money{m: money.New(amountCents, currencyCode)}
}

// Euros is shorthand for New(cents, EUR).
func Euros(cents int64) *Money {
	return New(cents, EUR)
}

// Zero returns a zero Money value for the given currency.
func Zero(currencyCode string) *Money {
	return New(0, currencyCode)
}

// NewFromDecimal creates Money from a decimal.Decimal value, rounding half
// away from zero to the currency's minor unit.
func NewFromDecimal(amount decimal.Decimal, currencyCode string) *Money {
	currency := money.GetCurrency(currencyCode)
	if currency == nil {
		currency = money.GetCurrency(EUR)
	}

	multiplier := decimal.New(1, int32(currency.Fraction))
	cents := amount.Mul(multiplier).Round(0).IntPart()

	return New(cents, currency.Code)
}

// Parse reads a plain decimal amount. Both "28.74" and "28,74" are accepted;
// a comma is treated as the decimal separator, never as a thousands separator.
func Parse(amount string, currencyCode string) (*Money, error) {
	s := strings.TrimSpace(amount)
	s = strings.ReplaceAll(s, ",", ".")
	if s == "" {
		return nil, ErrInvalidAmount
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}

	return NewFromDecimal(d, currencyCode), nil
}

// Sum adds up cent amounts in the given currency.
func Sum(currencyCode string, cents ...int64) *Money {
	total := Zero(currencyCode)
	for _, c := range cents {
		total = total.MustAdd(New(c, currencyCode))
	}
	return total
}

// Amount returns the amount in minor units (cents).
func (m *Money) Amount() int64 {
	if m == nil || m.m == nil {
		return 0
	}
	return m.m.Amount()
}

// Currency returns the ISO-4217 currency code.
func (m *Money) Currency() string {
	if m == nil || m.m == nil {
		return ""
	}
	return m.m.Currency().Code
}

// IsZero returns true if the amount is zero
func (m *Money) IsZero() bool {
	return m == nil || m.m == nil || m.m.IsZero()
}

// IsPositive returns true if the amount is greater than zero
func (m *Money) IsPositive() bool {
	return m != nil && m.m != nil && m.m.IsPositive()
}

// IsNegative returns true if the amount is less than zero
func (m *Money) IsNegative() bool {
	return m != nil && m.m != nil && m.m.IsNegative()
}

// Add adds two Money values. Returns error if currencies don't match.
func (m *Money) Add(other *Money) (*Money, error) {
	if m == nil || m.m == nil {
		return other, nil
	}
	if other == nil || other.m == nil {
		return m, nil
	}

	result, err := m.m.Add(other.m)
	if err != nil {
		return nil, err
	}
	return &Money{m: result}, nil
}

// MustAdd adds two Money values, panics if currencies don't match.
func (m *Money) MustAdd(other *Money) *Money {
	result, err := m.Add(other)
	if err != nil {
		panic(err)
	}
	return result
}

// ToDecimal converts to decimal.Decimal in major units.
func (m *Money) ToDecimal() decimal.Decimal {
	if m == nil || m.m == nil {
		return decimal.Zero
	}
	currency := m.m.Currency()
	d := decimal.NewFromInt(m.m.Amount())
	divisor := decimal.New(1, int32(currency.Fraction))
	return d.Div(divisor)
}

// Fixed returns the amount with exactly two decimals and a period separator
// ("28.74"), independent of locale. This is the form payment QR payloads use.
func (m *Money) Fixed() string {
	return m.ToDecimal().StringFixed(2)
}

// String returns the amount as a fixed two-decimal string.
func (m *Money) String() string {
	return m.Fixed()
}

// Display returns a formatted string for display (e.g., "€1,234.56")
func (m *Money) Display() string {
	if m == nil || m.m == nil {
		return "€0.00"
	}
	return m.m.Display()
}
