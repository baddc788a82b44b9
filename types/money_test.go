package types

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestMoneyConstructors(t *testing.T) {
	tests := []struct {
		name     string
		money    Money
		amount   string
		currency string
		display  string
	}{
		{"USD", USD(4900), "49", "usd", "$49.00"},
		{"EUR", EUR(19900), "199", "eur", "€199.00"},
		{"INR", INR(9950), "99.5", "inr", "₹99.50"},
		{"JPY", JPY(100), "100", "jpy", "¥100"},
		{"Zero USD", Zero("USD"), "0", "usd", "$0.00"},
		{"Zero default", Zero(""), "0", "usd", "$0.00"},
		{"Parsed rate", MustParse("0.005", "usd"), "0.005", "usd", "$0.005"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if want := decimal.RequireFromString(tt.amount); !tt.money.Amount.Equal(want) {
				t.Errorf("Amount: got %s, want %s", tt.money.Amount, want)
			}
			if tt.money.Currency != tt.currency {
				t.Errorf("Currency: got %s, want %s", tt.money.Currency, tt.currency)
			}
			if tt.money.String() != tt.display {
				t.Errorf("Display: got %s, want %s", tt.money.String(), tt.display)
			}
		})
	}
}

func TestMoneyArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		op       func() Money
		expected Money
	}{
		{"Add", func() Money { return USD(100).Add(USD(200)) }, USD(300)},
		{"Subtract", func() Money { return USD(500).Subtract(USD(200)) }, USD(300)},
		{"Multiply", func() Money { return USD(100).Multiply(decimal.NewFromInt(3)) }, USD(300)},
		{"Rate times units", func() Money {
			return MustParse("0.05", "usd").Multiply(decimal.NewFromInt(100))
		}, USD(500)},
		{"Negate", func() Money { return USD(100).Negate() }, USD(-100)},
		{"Round half up", func() Money { return MustParse("0.125", "usd").Round() }, USD(13)},
		{"Round no decimals", func() Money { return MustParse("10.5", "jpy").Round() }, JPY(11)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.op()
			if !result.Equal(tt.expected) {
				t.Errorf("Got %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestMoneyCurrencyMismatch(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for currency mismatch")
		}
	}()

	_ = USD(100).Add(EUR(100))
}

func TestMoneyComparison(t *testing.T) {
	tests := []struct {
		name    string
		a, b    Money
		less    bool
		greater bool
		equal   bool
	}{
		{"Equal", USD(100), USD(100), false, false, true},
		{"Equal different scale", MustParse("1.5", "usd"), USD(150), false, false, true},
		{"Less", USD(50), USD(100), true, false, false},
		{"Greater", USD(200), USD(100), false, true, false},
		{"Zero equal", USD(0), Zero("usd"), false, false, true},
		{"Negative less", USD(-100), USD(100), true, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.LessThan(tt.b); got != tt.less {
				t.Errorf("LessThan: got %v, want %v", got, tt.less)
			}
			if got := tt.a.GreaterThan(tt.b); got != tt.greater {
				t.Errorf("GreaterThan: got %v, want %v", got, tt.greater)
			}
			if got := tt.a.Equal(tt.b); got != tt.equal {
				t.Errorf("Equal: got %v, want %v", got, tt.equal)
			}
		})
	}
}

func TestMoneyPredicates(t *testing.T) {
	tests := []struct {
		name       string
		money      Money
		isZero     bool
		isPositive bool
		isNegative bool
	}{
		{"Zero", USD(0), true, false, false},
		{"Positive", USD(100), false, true, false},
		{"Negative", USD(-100), false, false, true},
		{"Sub-cent positive", MustParse("0.001", "usd"), false, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.money.IsZero(); got != tt.isZero {
				t.Errorf("IsZero: got %v, want %v", got, tt.isZero)
			}
			if got := tt.money.IsPositive(); got != tt.isPositive {
				t.Errorf("IsPositive: got %v, want %v", got, tt.isPositive)
			}
			if got := tt.money.IsNegative(); got != tt.isNegative {
				t.Errorf("IsNegative: got %v, want %v", got, tt.isNegative)
			}
		})
	}
}

func TestMoneyFormatMajor(t *testing.T) {
	tests := []struct {
		money    Money
		expected string
	}{
		{USD(4900), "49.00"},
		{USD(100), "1.00"},
		{USD(1), "0.01"},
		{USD(0), "0.00"},
		{USD(-4900), "-49.00"},
		{MustParse("0.05", "usd"), "0.05"},
		{MustParse("0.005", "usd"), "0.005"},
		{MustParse("1.5", "usd"), "1.50"},
		{JPY(12345), "12345"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.money.FormatMajor(); got != tt.expected {
				t.Errorf("FormatMajor: got %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestMoneyJSON(t *testing.T) {
	m := USD(4900)

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	expected := `{"amount":"49.00","currency":"usd","display":"$49.00"}`
	if string(data) != expected {
		t.Errorf("JSON: got %s, want %s", string(data), expected)
	}

	var back Money
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if !back.Equal(m) {
		t.Errorf("Unmarshal: got %v, want %v", back, m)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse("twelve", "usd"); err == nil {
		t.Error("Expected error for non-numeric amount")
	}
}

func BenchmarkMoneyMultiply(b *testing.B) {
	rate := MustParse("0.05", "usd")
	units := decimal.NewFromInt(1000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = rate.Multiply(units).Round()
	}
}
