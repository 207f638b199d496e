package core

import (
	"github.com/shopspring/decimal"
)

// Rate is the quantity-weighted reconciliation rate of a dataset.
type Rate struct {
	Matched int64   `json:"matched"`
	Total   int64   `json:"total"`
	Percent float64 `json:"percent"`
}

// ReconciliationRate sums Quantity over all records and over records whose
// normalized status is CONCILIADO. The rate is 0 when the total is 0.
func ReconciliationRate(ds Dataset) Rate {
	var r Rate
	for _, rec := range ds.Records {
		q := rec.Quantity
		if q < 0 {
			q = 0
		}
		r.Total += q
		if IsConciliado(rec.StatusConciliacao) {
			r.Matched += q
		}
	}
	r.Percent = percent(r.Matched, r.Total)
	return r
}

// Delta compares the Paag and Stark totals. Missing amounts contribute 0 to
// the sums and are counted so callers can flag an understated difference.
type Delta struct {
	Paag            decimal.Decimal `json:"paag"`
	Stark           decimal.Decimal `json:"stark"`
	Difference      decimal.Decimal `json:"difference"`
	IncompletePaag  int             `json:"incomplete_paag"`
	IncompleteStark int             `json:"incomplete_stark"`
}

// Incomplete reports whether any record lacked either amount.
func (d Delta) Incomplete() bool {
	return d.IncompletePaag > 0 || d.IncompleteStark > 0
}

// ValueDelta returns |Σ Paag − Σ Stark| together with both sums.
func ValueDelta(ds Dataset) Delta {
	d := Delta{Paag: decimal.Zero, Stark: decimal.Zero}
	for _, rec := range ds.Records {
		if rec.AmountPaag.Valid {
			d.Paag = d.Paag.Add(rec.AmountPaag.Decimal)
		} else {
			d.IncompletePaag++
		}
		if rec.AmountStark.Valid {
			d.Stark = d.Stark.Add(rec.AmountStark.Decimal)
		} else {
			d.IncompleteStark++
		}
	}
	d.Difference = d.Paag.Sub(d.Stark).Abs()
	return d
}

// Integrity is the share of valid records in the raw pools.
type Integrity struct {
	Counts  IntegrityCounts `json:"counts"`
	Percent float64         `json:"percent"`
}

// IntegrityRatio returns Valid/Total*100, or 0 when Total is 0.
func IntegrityRatio(c IntegrityCounts) float64 {
	return percent(c.Valid, c.Total)
}

// Summary bundles the three dashboard metrics for a filtered view.
type Summary struct {
	Records   int        `json:"records"`
	Rate      Rate       `json:"rate"`
	Delta     Delta      `json:"delta"`
	Integrity *Integrity `json:"integrity,omitempty"`
}

// Summarize computes the metrics of a filtered dataset. counts may be nil
// when the integrity pools could not be loaded. An empty dataset yields
// ErrEmptyFilterResult and no metrics.
func Summarize(ds Dataset, counts *IntegrityCounts) (Summary, error) {
	if ds.IsEmpty() {
		return Summary{}, ErrEmptyFilterResult
	}

	s := Summary{
		Records: ds.Len(),
		Rate:    ReconciliationRate(ds),
		Delta:   ValueDelta(ds),
	}
	if counts != nil {
		s.Integrity = &Integrity{Counts: *counts, Percent: IntegrityRatio(*counts)}
	}
	return s, nil
}

func percent(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(part) / float64(total) * 100
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
