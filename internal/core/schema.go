package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Field is the internal identifier of a reconciliation view column.
type Field string

const (
	FieldCreatedAt         Field = "tr_created_at"
	FieldUpdatedAt         Field = "tr_updated_at"
	FieldMerchantID        Field = "tr_merchant_id"
	FieldProcessorID       Field = "tr_processor_id"
	FieldFlowType          Field = "tr_flow_type"
	FieldStatusTR          Field = "tr_status"
	FieldTaxValue          Field = "tr_tax_value"
	FieldSource            Field = "tr_source"
	FieldTransactionType   Field = "tr_transaction_type"
	FieldStatusSTT         Field = "stt_status"
	FieldPostedAt          Field = "st_dtposted"
	FieldOtherSourceType   Field = "st_other_source_type"
	FieldStatusBase        Field = "status_transacao_base"
	FieldAnalysisValue     Field = "anl_valor"
	FieldStatusConciliacao Field = "status_conciliacao"
	FieldAmountPaag        Field = "amount_paag"
	FieldAmountStark       Field = "amount_stark"
	FieldQuantity          Field = "qtd"
	FieldMSName            Field = "ms_name"
	FieldMSLicense         Field = "ms_license"
)

// FieldKind is the value type stored in a column.
type FieldKind int

const (
	KindText FieldKind = iota
	KindTimestamp
	KindDecimal
	KindInteger
)

// Column describes one view column: its internal field, the display label
// used by the table and the exports, and whether a load needs it.
type Column struct {
	Field    Field     `json:"field"`
	Label    string    `json:"label"`
	Kind     FieldKind `json:"kind"`
	Required bool      `json:"required"`
	// Styled columns receive a classification tag per cell.
	Styled bool `json:"styled"`
}

// schema is the rename table shared by load, display and export, in
// display order.
var schema = []Column{
	{Field: FieldCreatedAt, Label: "Data Criação", Kind: KindTimestamp, Required: true},
	{Field: FieldUpdatedAt, Label: "Data Atualização", Kind: KindTimestamp},
	{Field: FieldMerchantID, Label: "Merchant ID", Kind: KindText},
	{Field: FieldProcessorID, Label: "Processor ID", Kind: KindText},
	{Field: FieldFlowType, Label: "Tipo Fluxo", Kind: KindText, Required: true, Styled: true},
	{Field: FieldStatusTR, Label: "Status TR", Kind: KindText, Styled: true},
	{Field: FieldTaxValue, Label: "Valor Taxa", Kind: KindDecimal},
	{Field: FieldSource, Label: "Fonte", Kind: KindText},
	{Field: FieldTransactionType, Label: "Tipo Transação", Kind: KindText},
	{Field: FieldStatusSTT, Label: "Status STT", Kind: KindText, Styled: true},
	{Field: FieldPostedAt, Label: "Data Posted", Kind: KindTimestamp},
	{Field: FieldOtherSourceType, Label: "Outro Tipo Fonte", Kind: KindText},
	{Field: FieldStatusBase, Label: "Status Base", Kind: KindText},
	{Field: FieldAnalysisValue, Label: "Valor Análise", Kind: KindDecimal},
	{Field: FieldStatusConciliacao, Label: "Status Conciliação", Kind: KindText, Required: true, Styled: true},
	{Field: FieldAmountPaag, Label: "Valor Paag", Kind: KindDecimal},
	{Field: FieldAmountStark, Label: "Valor Stark", Kind: KindDecimal},
	{Field: FieldQuantity, Label: "Quantidade", Kind: KindInteger},
	{Field: FieldMSName, Label: "MS Nome", Kind: KindText},
	{Field: FieldMSLicense, Label: "MS Licença", Kind: KindText},
}

// Schema returns a copy of the column descriptors in display order.
func Schema() []Column {
	out := make([]Column, len(schema))
	copy(out, schema)
	return out
}

// ColumnByField returns the descriptor for an internal field.
func ColumnByField(f Field) (Column, bool) {
	for _, c := range schema {
		if c.Field == f {
			return c, true
		}
	}
	return Column{}, false
}

// LookupColumn resolves a header name that may be either an internal field
// or a display label. Matching ignores case and surrounding whitespace.
func LookupColumn(name string) (Column, bool) {
	name = strings.TrimSpace(name)
	for _, c := range schema {
		if strings.EqualFold(string(c.Field), name) || strings.EqualFold(c.Label, name) {
			return c, true
		}
	}
	return Column{}, false
}

// Label returns the display label of f, or the raw field name if unknown.
func Label(f Field) string {
	if c, ok := ColumnByField(f); ok {
		return c.Label
	}
	return string(f)
}

// Text returns the string value of a text column. Non-text fields yield "".
func (r Record) Text(f Field) string {
	switch f {
	case FieldMerchantID:
		return r.MerchantID
	case FieldProcessorID:
		return r.ProcessorID
	case FieldFlowType:
		return r.FlowType
	case FieldStatusTR:
		return r.StatusTR
	case FieldSource:
		return r.Source
	case FieldTransactionType:
		return r.TransactionType
	case FieldStatusSTT:
		return r.StatusSTT
	case FieldOtherSourceType:
		return r.OtherSourceType
	case FieldStatusBase:
		return r.StatusBase
	case FieldStatusConciliacao:
		return r.StatusConciliacao
	case FieldMSName:
		return r.MSName
	case FieldMSLicense:
		return r.MSLicense
	}
	return ""
}

// Time returns the value of a timestamp column.
func (r Record) Time(f Field) time.Time {
	switch f {
	case FieldCreatedAt:
		return r.CreatedAt
	case FieldUpdatedAt:
		return r.UpdatedAt
	case FieldPostedAt:
		return r.PostedAt
	}
	return time.Time{}
}

// Amount returns the value of a decimal column.
func (r Record) Amount(f Field) decimal.NullDecimal {
	switch f {
	case FieldTaxValue:
		return r.TaxValue
	case FieldAnalysisValue:
		return r.AnalysisValue
	case FieldAmountPaag:
		return r.AmountPaag
	case FieldAmountStark:
		return r.AmountStark
	}
	return decimal.NullDecimal{}
}

// set assigns a parsed cell to the record field described by c.
// It reports false when a non-empty value could not be converted.
func (r *Record) set(c Column, raw string, loc *time.Location) bool {
	switch c.Kind {
	case KindTimestamp:
		t, ok := ParseTimestamp(raw, loc)
		switch c.Field {
		case FieldCreatedAt:
			r.CreatedAt = t
		case FieldUpdatedAt:
			r.UpdatedAt = t
		case FieldPostedAt:
			r.PostedAt = t
		}
		return ok || isBlank(raw)
	case KindDecimal:
		d := ParseDecimal(raw)
		switch c.Field {
		case FieldTaxValue:
			r.TaxValue = d
		case FieldAnalysisValue:
			r.AnalysisValue = d
		case FieldAmountPaag:
			r.AmountPaag = d
		case FieldAmountStark:
			r.AmountStark = d
		}
		return d.Valid || isBlank(raw)
	case KindInteger:
		q, ok := ParseQuantity(raw)
		r.Quantity = q
		return ok || isBlank(raw)
	}

	v := strings.TrimSpace(raw)
	switch c.Field {
	case FieldMerchantID:
		r.MerchantID = v
	case FieldProcessorID:
		r.ProcessorID = v
	case FieldFlowType:
		r.FlowType = v
	case FieldStatusTR:
		r.StatusTR = v
	case FieldSource:
		r.Source = v
	case FieldTransactionType:
		r.TransactionType = v
	case FieldStatusSTT:
		r.StatusSTT = v
	case FieldOtherSourceType:
		r.OtherSourceType = v
	case FieldStatusBase:
		r.StatusBase = v
	case FieldStatusConciliacao:
		r.StatusConciliacao = v
	case FieldMSName:
		r.MSName = v
	case FieldMSLicense:
		r.MSLicense = v
	}
	return true
}
