// Package types provides common value types used across TELSTAR.
package types

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value in major units of a currency.
// Amounts are arbitrary-precision decimals so that per-unit rates such as
// 0.005 are exact. No floating point is involved at any step.
//
// Examples:
//   - USD(4900) = $49.00
//   - MustParse("0.05", "usd") = $0.05 per unit
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"` // ISO 4217 lowercase: "usd", "eur", "inr"
}

// DefaultCurrency is used when an engine is not configured with one.
const DefaultCurrency = "usd"

// USD creates a Money value in US Dollars from cents.
func USD(cents int64) Money { return FromMinor(cents, "usd") }

// EUR creates a Money value in Euros from cents.
func EUR(cents int64) Money { return FromMinor(cents, "eur") }

// INR creates a Money value in Indian Rupees from paise.
func INR(paise int64) Money { return FromMinor(paise, "inr") }

// JPY creates a Money value in Japanese Yen (no decimal).
func JPY(yen int64) Money { return FromMinor(yen, "jpy") }

// Zero returns a zero Money value in the specified currency.
func Zero(currency string) Money {
	return Money{Amount: decimal.Zero, Currency: normalizeCurrency(currency)}
}

// FromMinor creates Money from an amount expressed in the currency's minor unit.
func FromMinor(minor int64, currency string) Money {
	currency = normalizeCurrency(currency)
	return Money{Amount: decimal.New(minor, -int32(currencyDecimals(currency))), Currency: currency}
}

// FromDecimal wraps a decimal amount in the given currency.
func FromDecimal(amount decimal.Decimal, currency string) Money {
	return Money{Amount: amount, Currency: normalizeCurrency(currency)}
}

// Parse parses a major-unit amount such as "12.50".
func Parse(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Money{}, fmt.Errorf("money: parse %q: %w", amount, err)
	}
	return FromDecimal(d, currency), nil
}

// MustParse is like Parse but panics on error. Use for hardcoded amounts.
func MustParse(amount, currency string) Money {
	m, err := Parse(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Arithmetic operations

// Add adds two Money values. Panics if currencies don't match.
func (m Money) Add(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}
}

// Subtract subtracts another Money value. Panics if currencies don't match.
func (m Money) Subtract(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Amount: m.Amount.Sub(other.Amount), Currency: m.Currency}
}

// Multiply multiplies the Money by a decimal quantity, e.g. a rate by billed units.
// The result keeps full precision; call Round to settle it.
func (m Money) Multiply(qty decimal.Decimal) Money {
	return Money{Amount: m.Amount.Mul(qty), Currency: m.Currency}
}

// Round rounds half away from zero to the currency's minor unit.
func (m Money) Round() Money {
	return Money{Amount: m.Amount.Round(int32(currencyDecimals(m.Currency))), Currency: m.Currency}
}

// Negate returns the negative of the Money value.
func (m Money) Negate() Money {
	return Money{Amount: m.Amount.Neg(), Currency: m.Currency}
}

// Comparison methods

// IsZero returns true if the amount is zero.
func (m Money) IsZero() bool { return m.Amount.IsZero() }

// IsPositive returns true if the amount is greater than zero.
func (m Money) IsPositive() bool { return m.Amount.IsPositive() }

// IsNegative returns true if the amount is less than zero.
func (m Money) IsNegative() bool { return m.Amount.IsNegative() }

// Equal returns true if both values have the same currency and numerically equal amounts.
// 1.5 and 1.50 are equal.
func (m Money) Equal(other Money) bool {
	return m.Currency == other.Currency && m.Amount.Equal(other.Amount)
}

// LessThan returns true if this Money is less than other. Panics if currencies don't match.
func (m Money) LessThan(other Money) bool {
	m.assertSameCurrency(other)
	return m.Amount.LessThan(other.Amount)
}

// GreaterThan returns true if this Money is greater than other. Panics if currencies don't match.
func (m Money) GreaterThan(other Money) bool {
	m.assertSameCurrency(other)
	return m.Amount.GreaterThan(other.Amount)
}

// Formatting methods

// FormatMajor returns the amount without currency symbol, padded to the
// currency's minor unit: "49.00" for USD(4900). Sub-minor precision is kept,
// so a rate of 0.005 formats as "0.005".
func (m Money) FormatMajor() string {
	places := int32(currencyDecimals(m.Currency))
	if exp := -m.Amount.Exponent(); exp > places {
		places = exp
	}
	return m.Amount.StringFixed(places)
}

// String returns a human-readable string with currency symbol.
// Examples: "$49.00", "€199.00", "₹99.00", "¥100"
func (m Money) String() string {
	if m.IsNegative() {
		return "-" + currencySymbol(m.Currency) + m.Negate().FormatMajor()
	}
	return currencySymbol(m.Currency) + m.FormatMajor()
}

// MarshalJSON implements json.Marshaler.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
		Display  string `json:"display"`
	}{
		Amount:   m.FormatMajor(),
		Currency: m.Currency,
		Display:  m.String(),
	})
}

// UnmarshalJSON implements json.Unmarshaler. The display field is ignored.
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw struct {
		Amount   decimal.Decimal `json:"amount"`
		Currency string          `json:"currency"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("money: %w", err)
	}
	*m = FromDecimal(raw.Amount, raw.Currency)
	return nil
}

// Helper functions

// assertSameCurrency panics if currencies don't match.
func (m Money) assertSameCurrency(other Money) {
	if m.Currency != other.Currency {
		panic(fmt.Sprintf("money: currency mismatch: %s != %s", m.Currency, other.Currency))
	}
}

func normalizeCurrency(currency string) string {
	if currency == "" {
		return DefaultCurrency
	}
	return strings.ToLower(currency)
}

// currencySymbol returns the symbol for a currency code.
func currencySymbol(currency string) string {
	symbols := map[string]string{
		"usd": "$",
		"eur": "€",
		"gbp": "£",
		"inr": "₹",
		"jpy": "¥",
		"cad": "C$",
		"aud": "A$",
	}
	if sym, ok := symbols[strings.ToLower(currency)]; ok {
		return sym
	}
	return strings.ToUpper(currency) + " "
}

// currencyDecimals returns the number of minor-unit decimal places for a currency.
func currencyDecimals(currency string) int {
	switch strings.ToLower(currency) {
	case "jpy", "krw", "vnd", "clp":
		return 0
	default:
		return 2
	}
}

// Decimals returns the number of minor-unit decimal places of the currency.
func (m Money) Decimals() int { return currencyDecimals(m.Currency) }
