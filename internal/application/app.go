// Package application wires configuration, source, cache and service into
// the object graph shared by the HTTP server and the CLI.
package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/conciliacao/internal/cache"
	"github.com/JonMunkholm/conciliacao/internal/config"
	"github.com/JonMunkholm/conciliacao/internal/core"
	"github.com/JonMunkholm/conciliacao/internal/logging"
	"github.com/JonMunkholm/conciliacao/internal/source"
)

// App holds the running components. Close releases them in reverse order.
type App struct {
	Config  *config.Config
	Service *core.Service
	Cache   *cache.Cache[*core.Snapshot]
	// Mirror is nil when REDIS_URL is unset or unreachable.
	Mirror  *cache.RedisMirror

	closers []func()
}

// New builds the application from cfg. A Redis mirror that cannot be
// reached is logged and skipped; the local cache still works.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{Config: cfg}

	src, closeSource, err := source.New(ctx, cfg.Source, cfg.Dashboard.Processor)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	app.closers = append(app.closers, closeSource)

	cacheCfg := cache.Config{
		TTL:    cfg.Cache.TTL,
		Logger: logging.Component("cache"),
	}
	if cfg.Cache.RedisURL != "" {
		mirror, err := cache.NewRedisMirror(ctx, cfg.Cache.RedisURL, cfg.Cache.RedisPrefix)
		if err != nil {
			slog.Warn("redis mirror unavailable, caching locally only", "error", err)
		} else {
			cacheCfg.Mirror = mirror
			app.Mirror = mirror
			app.closers = append(app.closers, func() {
				if err := mirror.Close(); err != nil {
					slog.Warn("close redis mirror", "error", err)
				}
			})
		}
	}
	app.Cache = cache.New[*core.Snapshot](cacheCfg, cache.JSONCodec[*core.Snapshot]{})

	svc, err := core.NewService(core.ServiceConfig{
		Source:          src,
		Cache:           app.Cache,
		CacheKey:        source.CacheKey(cfg.Source, cfg.Dashboard.Processor),
		Location:        cfg.Dashboard.Location(),
		DefaultFlowType: cfg.Dashboard.DefaultFlowType,
		QueryTimeout:    cfg.Source.QueryTimeout,
		Exports:         core.NewExportLimiter(cfg.Dashboard.ExportMaxConcurrent, cfg.Dashboard.ExportMaxWait),
	})
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Service = svc

	slog.Info("application ready",
		"source", cfg.Source.Kind,
		"cache_ttl", cfg.Cache.TTL,
		"redis_mirror", cacheCfg.Mirror != nil,
		"timezone", cfg.Dashboard.Location().String(),
	)
	return app, nil
}

// Close releases the source and the cache mirror.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
