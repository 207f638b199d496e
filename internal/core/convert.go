package core

// convert.go turns the untyped cells handed over by a Source into typed
// record values.
//
// The warehouse and CSV snapshots are not guaranteed to be clean:
//   - timestamps arrive naive, with an offset, ISO or Brazilian day-first
//   - amounts may carry "R$", thousands separators or a decimal comma
//   - quantities may come through as "3.0"
//
// Empty or unparseable cells convert to the zero/invalid value. Callers
// decide whether that counts as a conversion failure.

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// numericRegex validates that a string is a plain decimal after cleanup.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// timestampLayouts are tried in order. Fractional seconds are accepted by
// time.Parse after the seconds field even when the layout omits them.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05-07",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
}

// ParseTimestamp parses s in loc. Values carrying an offset keep their
// instant and are converted to loc; naive values are read as loc wall time.
func ParseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}

	for _, layout := range timestampLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err == nil {
			return t.In(loc), true
		}
	}
	return time.Time{}, false
}

// ParseDay parses a calendar day (YYYY-MM-DD or DD/MM/YYYY) as midnight in loc.
func ParseDay(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range []string{"2006-01-02", "02/01/2006"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseDecimal converts a monetary cell to a decimal. It handles currency
// symbols, thousands separators in both conventions and accounting
// parentheses for negatives. Returns Valid=false for empty or invalid input.
func ParseDecimal(s string) decimal.NullDecimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.NullDecimal{}
	}

	// Detect negative accounting format "(123.45)"
	isNegative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		isNegative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.ReplaceAll(s, "R$", "")
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "\u00a0", "")
	s = normalizeSeparators(s)

	if isNegative {
		s = "-" + strings.TrimPrefix(s, "-")
	}

	if !numericRegex.MatchString(s) {
		return decimal.NullDecimal{}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// normalizeSeparators rewrites "1.234,56" and "1,234.56" to "1234.56".
// The right-most separator is the decimal point. A lone comma followed by
// exactly three digits is read as a thousands separator.
func normalizeSeparators(s string) string {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 != 3 {
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	}
	return s
}

// ParseQuantity converts a quantity cell to a non-negative count.
// Whole decimals ("3.0") are accepted; negatives clamp to zero and report false.
func ParseQuantity(s string) (int64, bool) {
	d := ParseDecimal(s)
	if !d.Valid || !d.Decimal.Equal(d.Decimal.Truncate(0)) {
		return 0, false
	}
	if d.Decimal.IsNegative() {
		return 0, false
	}
	return d.Decimal.IntPart(), true
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
