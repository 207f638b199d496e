package core

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
)

// Export file names and content types.
const (
	CSVFileName     = "relatorio_conciliacao.csv"
	XLSXFileName    = "relatorio_conciliacao.xlsx"
	CSVContentType  = "text/csv; charset=utf-8"
	XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	// SheetName is the worksheet holding exported rows.
	SheetName = "Conciliacao"

	// ExportTimeLayout renders timestamps as local wall time.
	ExportTimeLayout = "2006-01-02 15:04:05"
)

// ExportFormat selects the export encoding.
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatXLSX ExportFormat = "xlsx"
)

// ParseExportFormat accepts "csv" or "xlsx".
func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(s) {
	case FormatCSV, FormatXLSX:
		return ExportFormat(s), nil
	}
	return "", fmt.Errorf("%w: unknown export format %q", ErrInvalidFilter, s)
}

// FileName returns the download name for the format.
func (f ExportFormat) FileName() string {
	if f == FormatXLSX {
		return XLSXFileName
	}
	return CSVFileName
}

// ContentType returns the MIME type for the format.
func (f ExportFormat) ContentType() string {
	if f == FormatXLSX {
		return XLSXContentType
	}
	return CSVContentType
}

// headerRow returns the display labels of the dataset's columns.
func headerRow(ds Dataset) []string {
	header := make([]string, len(ds.Columns))
	for i, c := range ds.Columns {
		header[i] = c.Label
	}
	return header
}

// cellText renders one cell for text exports. Absent values are empty.
func cellText(rec Record, c Column, loc *time.Location) string {
	switch c.Kind {
	case KindTimestamp:
		t := rec.Time(c.Field)
		if t.IsZero() {
			return ""
		}
		return t.In(loc).Format(ExportTimeLayout)
	case KindDecimal:
		d := rec.Amount(c.Field)
		if !d.Valid {
			return ""
		}
		return d.Decimal.String()
	case KindInteger:
		return strconv.FormatInt(rec.Quantity, 10)
	}
	return rec.Text(c.Field)
}

// Cell renders record i in column c the way text exports do.
func (d Dataset) Cell(i int, c Column) string {
	if i < 0 || i >= len(d.Records) {
		return ""
	}
	return cellText(d.Records[i], c, d.location())
}

// WriteCSV writes ds as CSV with display labels as the header row. Rows
// keep dataset order.
func WriteCSV(w io.Writer, ds Dataset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(headerRow(ds)); err != nil {
		return fmt.Errorf("%w: write header: %w", ErrExport, err)
	}

	loc := ds.location()
	record := make([]string, len(ds.Columns))
	for _, rec := range ds.Records {
		for i, c := range ds.Columns {
			record[i] = cellText(rec, c, loc)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("%w: write row: %w", ErrExport, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("%w: flush: %w", ErrExport, err)
	}
	return nil
}

// ToCSV renders ds to a byte slice.
func ToCSV(ds Dataset) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, ds); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// xlsxCell returns a typed value for a spreadsheet cell so amounts and
// quantities stay numeric.
func xlsxCell(rec Record, c Column, loc *time.Location) interface{} {
	switch c.Kind {
	case KindDecimal:
		d := rec.Amount(c.Field)
		if !d.Valid {
			return ""
		}
		return d.Decimal.InexactFloat64()
	case KindInteger:
		return rec.Quantity
	}
	return cellText(rec, c, loc)
}

// WriteXLSX writes ds as a single-sheet workbook.
func WriteXLSX(w io.Writer, ds Dataset) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: close workbook: %w", ErrExport, cerr)
		}
	}()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("%w: rename sheet: %w", ErrExport, err)
	}

	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return fmt.Errorf("%w: stream writer: %w", ErrExport, err)
	}
	if n := len(ds.Columns); n > 0 {
		if err := sw.SetColWidth(1, n, 18); err != nil {
			return fmt.Errorf("%w: column width: %w", ErrExport, err)
		}
	}

	header := headerRow(ds)
	row := make([]interface{}, len(header))
	for i, h := range header {
		row[i] = h
	}
	if err := sw.SetRow("A1", row); err != nil {
		return fmt.Errorf("%w: write header: %w", ErrExport, err)
	}

	loc := ds.location()
	for r, rec := range ds.Records {
		values := make([]interface{}, len(ds.Columns))
		for i, c := range ds.Columns {
			values[i] = xlsxCell(rec, c, loc)
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrExport, err)
		}
		if err := sw.SetRow(cell, values); err != nil {
			return fmt.Errorf("%w: write row %d: %w", ErrExport, r+1, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("%w: flush: %w", ErrExport, err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("%w: write workbook: %w", ErrExport, err)
	}
	return nil
}

// ToXLSX renders ds to a byte slice.
func ToXLSX(ds Dataset) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, ds); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Render encodes ds in the given format.
func Render(ds Dataset, format ExportFormat) ([]byte, error) {
	switch format {
	case FormatXLSX:
		return ToXLSX(ds)
	case FormatCSV, "":
		return ToCSV(ds)
	}
	return nil, fmt.Errorf("%w: unknown format %q", ErrExport, format)
}
