package core

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// StatusConciliado is the normalized reconciliation status of a matched row.
const StatusConciliado = "CONCILIADO"

// Tag is the semantic classification of a status or flow value. The
// presentation layer maps tags to colors.
type Tag string

const (
	TagNone         Tag = ""
	TagSuccess      Tag = "success"
	TagFailure      Tag = "failure"
	TagPending      Tag = "pending"
	TagWarning      Tag = "warning"
	TagFlowPositive Tag = "flow-positive"
	TagFlowNeutral  Tag = "flow-neutral"
)

// tagTable maps normalized values to tags. Synonyms across languages and
// upstream systems share a tag.
var tagTable = map[string]Tag{
	"APROVADO":      TagSuccess,
	"SUCCESS":       TagSuccess,
	"SUCESSO":       TagSuccess,
	"CONCILIADO":    TagSuccess,
	"REJEITADO":     TagFailure,
	"FAILED":        TagFailure,
	"FAIL":          TagFailure,
	"FALHA":         TagFailure,
	"NAO_CONCLUIDO": TagFailure,
	"PENDENTE":      TagPending,
	"PENDING":       TagPending,
	"DIVERGENTE":    TagWarning,
	"CASHIN":        TagFlowPositive,
	"CREDITO":       TagFlowPositive,
	"CASHOUT":       TagFlowNeutral,
	"DEBITO":        TagFlowNeutral,
}

// Normalize canonicalizes a raw status or category string: surrounding
// whitespace is trimmed and letters are upper-cased. It is idempotent.
func Normalize(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// Classify looks up the tag for a status value. The value is normalized
// first, and accents and inner spaces or hyphens are folded so that
// "Não Concluído" classifies like "NAO_CONCLUIDO". Unmapped values report false.
func Classify(value string) (Tag, bool) {
	key := Normalize(value)
	if tag, ok := tagTable[key]; ok {
		return tag, true
	}
	tag, ok := tagTable[foldKey(key)]
	return tag, ok
}

// IsConciliado reports whether a reconciliation status means matched.
func IsConciliado(status string) bool {
	return Normalize(status) == StatusConciliado
}

var accentFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// foldKey strips diacritics and joins words with underscores.
func foldKey(s string) string {
	folded, _, err := transform.String(accentFolder, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.FieldsFunc(folded, func(r rune) bool {
		return unicode.IsSpace(r) || r == '-' || r == '_'
	}), "_")
}

// TagMatrix holds one tag per row for each styled column present in a
// dataset. Rows[i][j] is the tag of record i in Columns[j].
type TagMatrix struct {
	Columns []Field `json:"columns"`
	Rows    [][]Tag `json:"rows"`
}

// At returns the tag of record row in column f, or TagNone when the column
// is not styled or absent.
func (m TagMatrix) At(row int, f Field) Tag {
	if row < 0 || row >= len(m.Rows) {
		return TagNone
	}
	for j, c := range m.Columns {
		if c == f {
			return m.Rows[row][j]
		}
	}
	return TagNone
}

// Tags classifies the styled columns of ds. Columns the source did not
// provide are skipped.
func Tags(ds Dataset) TagMatrix {
	var cols []Field
	for _, c := range schema {
		if c.Styled && ds.Has(c.Field) {
			cols = append(cols, c.Field)
		}
	}

	m := TagMatrix{Columns: cols, Rows: make([][]Tag, len(ds.Records))}
	for i, rec := range ds.Records {
		row := make([]Tag, len(cols))
		for j, f := range cols {
			row[j], _ = Classify(rec.Text(f))
		}
		m.Rows[i] = row
	}
	return m
}
