package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Record is one row of the pre-aggregated reconciliation view. Timestamps are
// zero when the source did not report them or they could not be parsed.
// Amounts keep Valid=false when absent so they are never mistaken for zero.
type Record struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	PostedAt  time.Time `json:"posted_at"`

	MerchantID      string `json:"merchant_id"`
	ProcessorID     string `json:"processor_id"`
	FlowType        string `json:"flow_type"`
	TransactionType string `json:"transaction_type"`

	StatusTR          string `json:"status_tr"`
	StatusSTT         string `json:"status_stt"`
	StatusConciliacao string `json:"status_conciliacao"`
	StatusBase        string `json:"status_base"`

	TaxValue      decimal.NullDecimal `json:"tax_value"`
	AnalysisValue decimal.NullDecimal `json:"analysis_value"`
	AmountPaag    decimal.NullDecimal `json:"amount_paag"`
	AmountStark   decimal.NullDecimal `json:"amount_stark"`

	// Quantity is how many underlying transactions this row summarizes.
	Quantity int64 `json:"quantity"`

	Source          string `json:"source"`
	OtherSourceType string `json:"other_source_type"`
	MSName          string `json:"ms_name"`
	MSLicense       string `json:"ms_license"`
}

// Dataset is an ordered, immutable set of records as loaded in one refresh
// cycle. Columns lists the schema columns the source actually provided.
type Dataset struct {
	Records  []Record       `json:"records"`
	Columns  []Column       `json:"columns"`
	Location *time.Location `json:"-"`
	LoadedAt time.Time      `json:"loaded_at"`
}

// Len returns the number of records.
func (d Dataset) Len() int { return len(d.Records) }

// IsEmpty reports whether the dataset holds no records.
func (d Dataset) IsEmpty() bool { return len(d.Records) == 0 }

// Has reports whether the source provided the given column.
func (d Dataset) Has(f Field) bool {
	for _, c := range d.Columns {
		if c.Field == f {
			return true
		}
	}
	return false
}

// location returns the dataset's timezone, defaulting to UTC.
func (d Dataset) location() *time.Location {
	if d.Location == nil {
		return time.UTC
	}
	return d.Location
}

// withRecords returns a dataset sharing d's metadata but holding recs.
func (d Dataset) withRecords(recs []Record) Dataset {
	return Dataset{
		Records:  recs,
		Columns:  d.Columns,
		Location: d.Location,
		LoadedAt: d.LoadedAt,
	}
}

// IntegrityCounts are record counts from the raw pools for one processor.
// They are sourced independently of the reconciliation view.
type IntegrityCounts struct {
	Valid      int64 `json:"valid"`
	Duplicates int64 `json:"duplicates"`
	Nulls      int64 `json:"nulls"`
	Total      int64 `json:"total"`
}

// NewIntegrityCounts builds counts from the three pools.
func NewIntegrityCounts(valid, duplicates, nulls int64) IntegrityCounts {
	return IntegrityCounts{
		Valid:      valid,
		Duplicates: duplicates,
		Nulls:      nulls,
		Total:      valid + duplicates + nulls,
	}
}

// RawTable is the untyped tabular result a Source hands to the core.
// Columns may be internal field names or display labels.
type RawTable struct {
	Columns []string
	Rows    [][]string
}

// Source yields the reconciliation view and the integrity counts. Both
// operations are all-or-nothing: an error means no partial data was produced.
type Source interface {
	LoadReconciliationView(ctx context.Context) (RawTable, error)
	LoadIntegrityCounts(ctx context.Context) (IntegrityCounts, error)
}
