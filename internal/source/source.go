// Package source provides the data sources behind the reconciliation
// dashboard: the PostgreSQL warehouse and CSV snapshots.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/JonMunkholm/conciliacao/internal/config"
	"github.com/JonMunkholm/conciliacao/internal/core"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OpenPool connects to the warehouse with the configured pool limits and
// verifies the connection.
func OpenPool(ctx context.Context, cfg config.SourceConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}

// New builds the configured source. The returned func releases its
// resources and is never nil.
func New(ctx context.Context, cfg config.SourceConfig, processor string) (core.Source, func(), error) {
	switch cfg.Kind {
	case config.SourceCSV:
		return NewCSV(CSVConfig{
			Path:          cfg.CSVPath,
			IntegrityPath: cfg.IntegrityCSVPath,
			Encoding:      cfg.CSVEncoding,
			Delimiter:     cfg.CSVDelimiter,
		}), func() {}, nil

	case config.SourcePostgres, "":
		pool, err := OpenPool(ctx, cfg)
		if err != nil {
			return nil, func() {}, err
		}
		return NewPostgres(pool, PostgresConfig{
			Schema:          cfg.Schema,
			View:            cfg.View,
			ValidTable:      cfg.ValidTable,
			DuplicateTable:  cfg.DuplicateTable,
			NullTable:       cfg.NullTable,
			ProcessorColumn: cfg.ProcessorColumn,
			Processor:       processor,
		}), pool.Close, nil
	}
	return nil, func() {}, fmt.Errorf("unknown source kind %q", cfg.Kind)
}

// CacheKey identifies the dataset a configuration loads. Two replicas
// pointed at the same view and processor share a key; credentials only
// enter through a name-based UUID.
func CacheKey(cfg config.SourceConfig, processor string) string {
	var target string
	switch cfg.Kind {
	case config.SourceCSV:
		target = cfg.CSVPath
	default:
		target = cfg.URL
	}
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(target))
	return strings.Join([]string{cfg.Kind, cfg.Schema, cfg.View, processor, id.String()}, ":")
}
