// Package config provides centralized configuration management for the
// reconciliation dashboard. It loads configuration from environment variables
// with sensible defaults and validates all settings on startup to fail fast on
// misconfiguration.
package config

import (
	"strconv"
	"time"
	_ "time/tzdata" // day boundaries must resolve without a system zoneinfo
)

// Source kinds understood by SourceConfig.Kind.
const (
	SourcePostgres = "postgres"
	SourceCSV      = "csv"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server    ServerConfig
	Source    SourceConfig
	Cache     CacheConfig
	Dashboard DashboardConfig
	Rate      RateLimitConfig
	Security  SecurityConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading the request (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing the response (default: 60s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// SourceConfig selects and configures the data source that yields the
// pre-aggregated reconciliation view and the integrity pools.
type SourceConfig struct {
	// Kind is "postgres" or "csv" (default: postgres)
	Kind string `env:"SOURCE_KIND" default:"postgres"`

	// URL is the PostgreSQL connection string, required when Kind is postgres.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// Schema holds the reconciliation objects (default: conciliacao_financeira)
	Schema string `env:"SOURCE_SCHEMA" default:"conciliacao_financeira"`

	// View is the pre-aggregated reconciliation view (default: gold_paag_stark_agregada)
	View string `env:"SOURCE_VIEW" default:"gold_paag_stark_agregada"`

	// ValidTable, DuplicateTable and NullTable are the raw record pools used
	// for the integrity ratio.
	ValidTable     string `env:"SOURCE_VALID_TABLE" default:"silver_transacoes_validas"`
	DuplicateTable string `env:"SOURCE_DUPLICATE_TABLE" default:"silver_transacoes_duplicadas"`
	NullTable      string `env:"SOURCE_NULL_TABLE" default:"silver_transacoes_nulas"`

	// ProcessorColumn is the pool column scoping counts to one processor (default: processor_type)
	ProcessorColumn string `env:"SOURCE_PROCESSOR_COLUMN" default:"processor_type"`

	// CSVPath is the reconciliation snapshot file, required when Kind is csv.
	CSVPath string `env:"SOURCE_CSV_PATH"`

	// IntegrityCSVPath is an optional "pool,count" file for the csv source.
	IntegrityCSVPath string `env:"SOURCE_INTEGRITY_CSV_PATH"`

	// CSVEncoding is the WHATWG name of the snapshot encoding (default: utf-8).
	// A byte order mark overrides it.
	CSVEncoding string `env:"SOURCE_CSV_ENCODING" default:"utf-8"`

	// CSVDelimiter is the field separator of the snapshot (default: ,)
	CSVDelimiter string `env:"SOURCE_CSV_DELIMITER" default:","`

	// QueryTimeout bounds a single load against the source (default: 2m)
	QueryTimeout time.Duration `env:"SOURCE_QUERY_TIMEOUT" default:"2m"`

	// MaxConns is the maximum number of connections in the pool (default: 4)
	MaxConns int `env:"DB_MAX_CONNS" default:"4"`

	// MinConns is the minimum number of connections to keep open (default: 0)
	MinConns int `env:"DB_MIN_CONNS" default:"0"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// CacheConfig holds settings for the loaded-snapshot cache.
type CacheConfig struct {
	// TTL is how long a loaded snapshot is served before reloading (default: 10m)
	TTL time.Duration `env:"CACHE_TTL" default:"10m"`

	// WarmInterval reloads the snapshot in the background; 0 disables it (default: 0)
	WarmInterval time.Duration `env:"CACHE_WARM_INTERVAL" default:"0s"`

	// RedisURL optionally mirrors snapshots in Redis so several replicas
	// share one load. Empty disables the mirror.
	RedisURL string `env:"REDIS_URL"`

	// RedisPrefix namespaces mirrored keys (default: conciliacao:)
	RedisPrefix string `env:"REDIS_PREFIX" default:"conciliacao:"`
}

// DashboardConfig holds presentation defaults shared by the web and CLI surfaces.
type DashboardConfig struct {
	// Title is shown in the page header (default: Conciliação Financeira - Stark)
	Title string `env:"DASHBOARD_TITLE" default:"Conciliação Financeira - Stark"`

	// DefaultFlowType is pre-selected when it exists in the dataset.
	DefaultFlowType string `env:"DASHBOARD_DEFAULT_FLOW_TYPE"`

	// Processor scopes the integrity counts (default: stark)
	Processor string `env:"DASHBOARD_PROCESSOR" default:"stark"`

	// Locale drives number formatting (default: pt-BR)
	Locale string `env:"DASHBOARD_LOCALE" default:"pt-BR"`

	// Timezone is used for naive timestamps and day boundaries (default: America/Sao_Paulo)
	Timezone string `env:"DASHBOARD_TIMEZONE" default:"America/Sao_Paulo"`

	// PageSize caps the rows rendered in the HTML table (default: 500)
	PageSize int `env:"DASHBOARD_PAGE_SIZE" default:"500"`

	// ExportMaxConcurrent caps reports rendered at once (default: 4)
	ExportMaxConcurrent int `env:"EXPORT_MAX_CONCURRENT" default:"4"`

	// ExportMaxWait is how long an export waits for a free slot (default: 10s)
	ExportMaxWait time.Duration `env:"EXPORT_MAX_WAIT" default:"10s"`
}

// RateLimitConfig holds rate limiting settings.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// ExportLimit is requests per minute for export endpoints (default: 10)
	ExportLimit int `env:"RATE_LIMIT_EXPORT" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// RequireAPIKey protects /api routes with X-API-Key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// Location resolves the configured dashboard timezone, falling back to UTC.
func (c *DashboardConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
