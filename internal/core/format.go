package core

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// CurrencyPrefix precedes formatted monetary values.
const CurrencyPrefix = "R$ "

// Formatter renders metric values in a display locale: percentages with
// one decimal, money with two decimals and thousands separators.
type Formatter struct {
	printer *message.Printer
}

// NewFormatter returns a formatter for a BCP 47 locale such as "pt-BR".
// Unparseable locales fall back to Brazilian Portuguese.
func NewFormatter(locale string) *Formatter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.BrazilianPortuguese
	}
	return &Formatter{printer: message.NewPrinter(tag)}
}

// Percent formats p as "50.0%" in the formatter's locale.
func (f *Formatter) Percent(p float64) string {
	return f.printer.Sprintf("%.1f%%", p)
}

// Money formats d as "R$ 1,234.56" in the formatter's locale.
func (f *Formatter) Money(d decimal.Decimal) string {
	return CurrencyPrefix + f.printer.Sprintf("%.2f", d.Round(2).InexactFloat64())
}

// Count formats an integer with thousands separators.
func (f *Formatter) Count(n int64) string {
	return f.printer.Sprintf("%d", n)
}

// RateCaption describes the weighting behind a rate: "5 de 10 transações".
func (f *Formatter) RateCaption(r Rate) string {
	return f.Count(r.Matched) + " de " + f.Count(r.Total) + " transações"
}

// DeltaCaption lists both totals: "Paag: R$ … | Stark: R$ …", noting how
// many records had no amount on either side.
func (f *Formatter) DeltaCaption(d Delta) string {
	s := "Paag: " + f.Money(d.Paag) + " | Stark: " + f.Money(d.Stark)
	if d.Incomplete() {
		s += " (sem valor: " + f.Count(int64(d.IncompletePaag)) + " Paag, " + f.Count(int64(d.IncompleteStark)) + " Stark)"
	}
	return s
}

// IntegrityCaption describes the integrity counts: "8 de 10 registros válidos".
func (f *Formatter) IntegrityCaption(c IntegrityCounts) string {
	return f.Count(c.Valid) + " de " + f.Count(c.Total) + " registros válidos"
}
