package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// ----------------------------------------------------------------------------
// ParseDecimal Tests
// ----------------------------------------------------------------------------

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantValid bool
		wantValue string
	}{
		// Valid: Basic numbers
		{name: "positive integer", input: "123", wantValid: true, wantValue: "123"},
		{name: "negative integer", input: "-456", wantValid: true, wantValue: "-456"},
		{name: "decimal number", input: "123.45", wantValid: true, wantValue: "123.45"},
		{name: "leading decimal point", input: ".99", wantValid: true, wantValue: "0.99"},

		// Valid: Separators
		{name: "brazilian format", input: "1.234,56", wantValid: true, wantValue: "1234.56"},
		{name: "us format", input: "1,234.56", wantValid: true, wantValue: "1234.56"},
		{name: "decimal comma", input: "12,5", wantValid: true, wantValue: "12.5"},
		{name: "lone thousands comma", input: "1,234", wantValid: true, wantValue: "1234"},

		// Valid: Currency and formatting
		{name: "real prefix", input: "R$ 1.234,56", wantValid: true, wantValue: "1234.56"},
		{name: "dollar prefix", input: "$99.00", wantValid: true, wantValue: "99"},
		{name: "non-breaking spaces", input: "R$\u00a01.000,00", wantValid: true, wantValue: "1000"},
		{name: "accounting negative", input: "(100.50)", wantValid: true, wantValue: "-100.5"},
		{name: "surrounding whitespace", input: "  42  ", wantValid: true, wantValue: "42"},

		// Invalid
		{name: "empty", input: "", wantValid: false},
		{name: "whitespace only", input: "   ", wantValid: false},
		{name: "letters", input: "abc", wantValid: false},
		{name: "multiple dots", input: "1.2.3", wantValid: false},
		{name: "currency only", input: "R$", wantValid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseDecimal(tt.input)
			if got.Valid != tt.wantValid {
				t.Fatalf("ParseDecimal(%q).Valid = %v, want %v", tt.input, got.Valid, tt.wantValid)
			}
			if !tt.wantValid {
				return
			}
			want := decimal.RequireFromString(tt.wantValue)
			if !got.Decimal.Equal(want) {
				t.Errorf("ParseDecimal(%q) = %s, want %s", tt.input, got.Decimal, want)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// ParseTimestamp Tests
// ----------------------------------------------------------------------------

func TestParseTimestamp(t *testing.T) {
	brt := time.FixedZone("BRT", -3*60*60)

	tests := []struct {
		name   string
		input  string
		want   time.Time
		wantOK bool
	}{
		{
			name:   "naive timestamp is local wall time",
			input:  "2024-01-15 10:30:00",
			want:   time.Date(2024, 1, 15, 10, 30, 0, 0, brt),
			wantOK: true,
		},
		{
			name:   "fractional seconds",
			input:  "2024-01-15 10:30:00.250",
			want:   time.Date(2024, 1, 15, 10, 30, 0, 250_000_000, brt),
			wantOK: true,
		},
		{
			name:   "RFC3339 UTC converts to location",
			input:  "2024-01-15T13:30:00Z",
			want:   time.Date(2024, 1, 15, 10, 30, 0, 0, brt),
			wantOK: true,
		},
		{
			name:   "explicit offset",
			input:  "2024-01-15 10:30:00-03:00",
			want:   time.Date(2024, 1, 15, 10, 30, 0, 0, brt),
			wantOK: true,
		},
		{
			name:   "date only",
			input:  "2024-01-15",
			want:   time.Date(2024, 1, 15, 0, 0, 0, 0, brt),
			wantOK: true,
		},
		{
			name:   "brazilian day first",
			input:  "15/01/2024 08:00",
			want:   time.Date(2024, 1, 15, 8, 0, 0, 0, brt),
			wantOK: true,
		},
		{name: "empty", input: "", wantOK: false},
		{name: "garbage", input: "not a date", wantOK: false},
		{name: "invalid month", input: "2024-13-01", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.input, brt)
			if ok != tt.wantOK {
				t.Fatalf("ParseTimestamp(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if !ok {
				if !got.IsZero() {
					t.Errorf("ParseTimestamp(%q) = %v, want zero time", tt.input, got)
				}
				return
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if got.Location() != brt {
				t.Errorf("ParseTimestamp(%q) location = %v, want %v", tt.input, got.Location(), brt)
			}
		})
	}
}

func TestParseDay(t *testing.T) {
	tests := []struct {
		input  string
		wantOK bool
	}{
		{"2024-01-02", true},
		{"02/01/2024", true},
		{" 2024-01-02 ", true},
		{"2024-01-02 10:00:00", false},
		{"", false},
	}

	for _, tt := range tests {
		got, ok := ParseDay(tt.input, time.UTC)
		if ok != tt.wantOK {
			t.Errorf("ParseDay(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			continue
		}
		if ok && !got.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("ParseDay(%q) = %v, want 2024-01-02", tt.input, got)
		}
	}
}

// ----------------------------------------------------------------------------
// ParseQuantity Tests
// ----------------------------------------------------------------------------

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		input  string
		want   int64
		wantOK bool
	}{
		{"3", 3, true},
		{"0", 0, true},
		{"3.0", 3, true},
		{" 12 ", 12, true},
		{"2.5", 0, false},
		{"-1", 0, false},
		{"", 0, false},
		{"abc", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParseQuantity(tt.input)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseQuantity(%q) = (%d, %v), want (%d, %v)", tt.input, got, ok, tt.want, tt.wantOK)
		}
	}
}
