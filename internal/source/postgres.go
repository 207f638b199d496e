package source

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/JonMunkholm/conciliacao/internal/core"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Querier is the subset of pgxpool.Pool used by Postgres.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresConfig names the warehouse objects read by Postgres.
type PostgresConfig struct {
	Schema          string
	View            string
	ValidTable      string
	DuplicateTable  string
	NullTable       string
	ProcessorColumn string
	Processor       string
}

// Postgres reads the reconciliation view and the integrity pools from a
// PostgreSQL-compatible warehouse.
type Postgres struct {
	db        Querier
	processor string
	viewSQL   string
	countSQL  string
}

// NewPostgres builds the queries once; identifiers are quoted with
// pgx.Identifier so configured names cannot inject SQL.
func NewPostgres(db Querier, cfg PostgresConfig) *Postgres {
	return &Postgres{
		db:        db,
		processor: cfg.Processor,
		viewSQL:   viewQuery(cfg),
		countSQL:  integrityQuery(cfg),
	}
}

func qualified(schema, name string) string {
	if schema == "" {
		return pgx.Identifier{name}.Sanitize()
	}
	return pgx.Identifier{schema, name}.Sanitize()
}

func viewQuery(cfg PostgresConfig) string {
	return "SELECT * FROM " + qualified(cfg.Schema, cfg.View)
}

func integrityQuery(cfg PostgresConfig) string {
	col := pgx.Identifier{cfg.ProcessorColumn}.Sanitize()
	count := func(table string) string {
		return fmt.Sprintf("(SELECT count(*) FROM %s WHERE %s = $1)", qualified(cfg.Schema, table), col)
	}
	return "SELECT " + count(cfg.ValidTable) + ", " + count(cfg.DuplicateTable) + ", " + count(cfg.NullTable)
}

// LoadReconciliationView runs SELECT * against the view and stringifies
// every cell. The whole result is read before returning; any error
// discards it.
func (p *Postgres) LoadReconciliationView(ctx context.Context) (core.RawTable, error) {
	rows, err := p.db.Query(ctx, p.viewSQL)
	if err != nil {
		return core.RawTable{}, fmt.Errorf("%w: query view: %w", core.ErrSourceUnavailable, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	table := core.RawTable{Columns: make([]string, len(fields))}
	for i, fd := range fields {
		table.Columns[i] = fd.Name
	}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return core.RawTable{}, fmt.Errorf("%w: read row %d: %w", core.ErrSourceUnavailable, len(table.Rows)+1, err)
		}
		row := make([]string, len(values))
		for i, v := range values {
			row[i] = formatValue(v, fieldOID(fields, i))
		}
		table.Rows = append(table.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return core.RawTable{}, fmt.Errorf("%w: iterate view: %w", core.ErrSourceUnavailable, err)
	}
	return table, nil
}

// LoadIntegrityCounts counts the valid, duplicate and null pools for the
// configured processor in a single round trip.
func (p *Postgres) LoadIntegrityCounts(ctx context.Context) (core.IntegrityCounts, error) {
	var valid, duplicates, nulls int64
	if err := p.db.QueryRow(ctx, p.countSQL, p.processor).Scan(&valid, &duplicates, &nulls); err != nil {
		return core.IntegrityCounts{}, fmt.Errorf("%w: count pools: %w", core.ErrSourceUnavailable, err)
	}
	return core.NewIntegrityCounts(valid, duplicates, nulls), nil
}

func fieldOID(fields []pgconn.FieldDescription, i int) uint32 {
	if i < len(fields) {
		return fields[i].DataTypeOID
	}
	return 0
}

// Layouts used when handing timestamps to the core. Naive timestamps keep
// no zone so they are read as dashboard wall time.
const (
	naiveLayout = "2006-01-02 15:04:05.999999999"
	dateLayout  = "2006-01-02"
)

// formatValue renders a decoded pgx value as the text the core parses.
func formatValue(v any, oid uint32) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		switch oid {
		case pgtype.TimestamptzOID:
			return val.Format(time.RFC3339Nano)
		case pgtype.DateOID:
			return val.Format(dateLayout)
		}
		return val.Format(naiveLayout)
	case pgtype.Numeric:
		return formatNumeric(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int16:
		return strconv.FormatInt(int64(val), 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(val)
	case [16]byte:
		return uuid.UUID(val).String()
	case fmt.Stringer:
		return val.String()
	}
	return fmt.Sprint(v)
}

// formatNumeric renders finite numerics exactly; NaN, infinities and NULL
// become empty cells.
func formatNumeric(n pgtype.Numeric) string {
	if !n.Valid || n.NaN || n.InfinityModifier != pgtype.Finite || n.Int == nil {
		return ""
	}
	return decimal.NewFromBigInt(n.Int, n.Exp).String()
}
