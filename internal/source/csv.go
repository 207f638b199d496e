package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/JonMunkholm/conciliacao/internal/core"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrNotConfigured is returned for an optional input that was not set up.
var ErrNotConfigured = errors.New("source: not configured")

// checkEvery is how many rows are read between context checks.
const checkEvery = 1000

// CSVConfig points the CSV source at a snapshot of the view and an
// optional integrity file with "pool,count" rows.
type CSVConfig struct {
	Path          string
	IntegrityPath string
	Encoding      string
	Delimiter     string
}

// CSV serves the reconciliation view from a file exported from the
// warehouse. Headers may use internal field names or display labels.
type CSV struct {
	cfg CSVConfig
}

// NewCSV creates a CSV source.
func NewCSV(cfg CSVConfig) *CSV {
	return &CSV{cfg: cfg}
}

// LoadReconciliationView reads the whole snapshot file.
func (s *CSV) LoadReconciliationView(ctx context.Context) (core.RawTable, error) {
	f, err := os.Open(s.cfg.Path)
	if err != nil {
		return core.RawTable{}, fmt.Errorf("%w: open snapshot: %w", core.ErrSourceUnavailable, err)
	}
	defer f.Close()

	table, err := ReadTable(ctx, f, s.cfg.Encoding, s.cfg.Delimiter)
	if err != nil {
		return core.RawTable{}, fmt.Errorf("%w: %s: %w", core.ErrSourceUnavailable, s.cfg.Path, err)
	}
	return table, nil
}

// LoadIntegrityCounts reads the integrity file. Without one the counts are
// unavailable rather than zero.
func (s *CSV) LoadIntegrityCounts(ctx context.Context) (core.IntegrityCounts, error) {
	if s.cfg.IntegrityPath == "" {
		return core.IntegrityCounts{}, fmt.Errorf("integrity file: %w", ErrNotConfigured)
	}

	f, err := os.Open(s.cfg.IntegrityPath)
	if err != nil {
		return core.IntegrityCounts{}, fmt.Errorf("open integrity file: %w", err)
	}
	defer f.Close()

	return ReadIntegrity(ctx, f, s.cfg.Encoding, s.cfg.Delimiter)
}

// decoder wraps r so it yields UTF-8. A byte order mark wins over the
// configured encoding; invalid bytes become U+FFFD.
func decoder(r io.Reader, enc string) (io.Reader, error) {
	var e encoding.Encoding = unicode.UTF8
	if enc != "" {
		var err error
		e, err = htmlindex.Get(enc)
		if err != nil {
			return nil, fmt.Errorf("unknown encoding %q: %w", enc, err)
		}
	}
	return transform.NewReader(r, unicode.BOMOverride(e.NewDecoder())), nil
}

func newReader(r io.Reader, enc, delim string) (*csv.Reader, error) {
	dr, err := decoder(r, enc)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(dr)
	cr.FieldsPerRecord = -1
	if delim != "" {
		c, size := utf8.DecodeRuneInString(delim)
		if size != len(delim) {
			return nil, fmt.Errorf("delimiter %q must be a single character", delim)
		}
		cr.Comma = c
	}
	return cr, nil
}

// ReadTable parses a CSV snapshot. The first record is the header.
// Rows may be shorter or longer than the header.
func ReadTable(ctx context.Context, r io.Reader, enc, delim string) (core.RawTable, error) {
	cr, err := newReader(r, enc, delim)
	if err != nil {
		return core.RawTable{}, err
	}

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return core.RawTable{}, errors.New("empty file")
	}
	if err != nil {
		return core.RawTable{}, fmt.Errorf("read header: %w", err)
	}

	table := core.RawTable{Columns: header}
	for {
		if len(table.Rows)%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return core.RawTable{}, err
			}
		}

		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return core.RawTable{}, fmt.Errorf("read row %d: %w", len(table.Rows)+2, err)
		}
		if isBlankRecord(record) {
			continue
		}
		table.Rows = append(table.Rows, record)
	}
	return table, nil
}

func isBlankRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Pool names accepted in integrity files.
var poolNames = map[string]string{
	"valid":       "valid",
	"valids":      "valid",
	"validos":     "valid",
	"válidos":     "valid",
	"duplicate":   "duplicates",
	"duplicates":  "duplicates",
	"duplicados":  "duplicates",
	"null":        "nulls",
	"nulls":       "nulls",
	"nulos":       "nulls",
	"incompletos": "nulls",
}

// ReadIntegrity parses "pool,count" rows. A header row is optional.
// Unknown pools are rejected so a typo cannot silently skew the ratio.
func ReadIntegrity(ctx context.Context, r io.Reader, enc, delim string) (core.IntegrityCounts, error) {
	table, err := ReadTable(ctx, r, enc, delim)
	if err != nil {
		return core.IntegrityCounts{}, fmt.Errorf("read integrity file: %w", err)
	}

	rows := table.Rows
	if _, err := strconv.ParseInt(strings.TrimSpace(cell(table.Columns, 1)), 10, 64); err == nil {
		// No header: the first record is data.
		rows = append([][]string{table.Columns}, rows...)
	}

	counts := map[string]int64{}
	for i, row := range rows {
		name := strings.ToLower(strings.TrimSpace(cell(row, 0)))
		pool, ok := poolNames[name]
		if !ok {
			return core.IntegrityCounts{}, fmt.Errorf("integrity row %d: unknown pool %q", i+1, cell(row, 0))
		}
		n, err := strconv.ParseInt(strings.TrimSpace(cell(row, 1)), 10, 64)
		if err != nil || n < 0 {
			return core.IntegrityCounts{}, fmt.Errorf("integrity row %d: invalid count %q", i+1, cell(row, 1))
		}
		counts[pool] += n
	}
	return core.NewIntegrityCounts(counts["valid"], counts["duplicates"], counts["nulls"]), nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
