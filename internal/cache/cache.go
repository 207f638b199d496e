// Package cache provides a TTL cache with single-flight loading.
//
// Entries are (key, value, storedAt) triples. Expiry is computed against an
// injectable Clock so tests never sleep. An optional Mirror shares encoded
// entries between processes; the in-memory map stays authoritative for a
// single process.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultTTL is used when Config.TTL is not positive.
const DefaultTTL = 10 * time.Minute

// ErrMiss is returned by a Mirror when a key is absent.
var ErrMiss = errors.New("cache: miss")

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock is the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// Mirror is a shared byte store with per-key expiry, such as Redis.
type Mirror interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// Codec converts values to and from mirror bytes.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// JSONCodec encodes values with encoding/json.
type JSONCodec[V any] struct{}

// Encode implements Codec.
func (JSONCodec[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }

// Decode implements Codec.
func (JSONCodec[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}

// Config configures a Cache. Zero fields take defaults.
type Config struct {
	TTL    time.Duration
	Clock  Clock
	Mirror Mirror
	Logger *slog.Logger
}

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// envelope is the mirror representation of an entry.
type envelope struct {
	StoredAt time.Time       `json:"stored_at"`
	Value    json.RawMessage `json:"value"`
}

// Stats are cumulative cache counters.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Loads     int64 `json:"loads"`
	LoadFails int64 `json:"load_fails"`
	Entries   int   `json:"entries"`
}

// Cache is a TTL cache safe for concurrent use. Concurrent misses on one
// key share a single load, and failed loads are never stored.
type Cache[V any] struct {
	ttl    time.Duration
	clock  Clock
	mirror Mirror
	codec  Codec[V]
	log    *slog.Logger

	mu      sync.RWMutex
	entries map[string]entry[V]
	gens    map[string]uint64 // bumped by Invalidate; stale flights skip store
	group   singleflight.Group

	hits, misses, loads, loadFails atomic.Int64
}

// New creates a cache. codec is only used when cfg.Mirror is set and may
// be nil otherwise.
func New[V any](cfg Config, codec Codec[V]) *Cache[V] {
	c := &Cache[V]{
		ttl:     cfg.TTL,
		clock:   cfg.Clock,
		mirror:  cfg.Mirror,
		codec:   codec,
		log:     cfg.Logger,
		entries: make(map[string]entry[V]),
		gens:    make(map[string]uint64),
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.clock == nil {
		c.clock = SystemClock
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.codec == nil {
		c.codec = JSONCodec[V]{}
	}
	c.log = c.log.With("component", "cache")
	return c
}

// TTL returns the configured time to live.
func (c *Cache[V]) TTL() time.Duration { return c.ttl }

func (c *Cache[V]) fresh(e entry[V]) bool {
	return c.clock.Now().Sub(e.storedAt) < c.ttl
}

// Peek returns a fresh entry without loading.
func (c *Cache[V]) Peek(key string) (V, time.Time, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || !c.fresh(e) {
		var zero V
		return zero, time.Time{}, false
	}
	return e.value, e.storedAt, true
}

func (c *Cache[V]) generation(key string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gens[key]
}

// store keeps e unless key was invalidated after generation gen was read.
func (c *Cache[V]) store(key string, gen uint64, e entry[V]) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[key] != gen {
		return false
	}
	c.entries[key] = e
	return true
}

// GetOrLoad returns the fresh value for key, or runs load once for all
// concurrent callers and stores its result. If ctx ends first the caller
// gets ctx.Err() while the shared load keeps running for the others.
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string, load func(context.Context) (V, error)) (V, error) {
	if v, _, ok := c.Peek(key); ok {
		c.hits.Add(1)
		return v, nil
	}
	c.misses.Add(1)

	ch := c.group.DoChan(key, func() (interface{}, error) {
		// Another flight may have stored the key since the first check.
		if v, _, ok := c.Peek(key); ok {
			return v, nil
		}
		gen := c.generation(key)

		bg := context.WithoutCancel(ctx)
		if e, ok := c.fromMirror(bg, key); ok {
			c.store(key, gen, e)
			return e.value, nil
		}

		c.loads.Add(1)
		v, err := load(ctx)
		if err != nil {
			c.loadFails.Add(1)
			return nil, err
		}

		e := entry[V]{value: v, storedAt: c.clock.Now()}
		if !c.store(key, gen, e) {
			c.log.Debug("discarding load invalidated in flight", "key", key)
			return v, nil
		}
		c.toMirror(bg, key, e)
		return v, nil
	})

	select {
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var zero V
			return zero, res.Err
		}
		v, _ := res.Val.(V)
		return v, nil
	}
}

// Invalidate drops key locally and from the mirror.
func (c *Cache[V]) Invalidate(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.gens[key]++
	c.mu.Unlock()
	c.group.Forget(key)

	if c.mirror == nil {
		return nil
	}
	if err := c.mirror.Del(ctx, key); err != nil {
		return fmt.Errorf("mirror delete %s: %w", key, err)
	}
	return nil
}

// Len returns the number of stored entries, fresh or not.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a snapshot of the counters.
func (c *Cache[V]) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Loads:     c.loads.Load(),
		LoadFails: c.loadFails.Load(),
		Entries:   c.Len(),
	}
}

// fromMirror returns a fresh entry from the mirror. Mirror errors are
// logged and treated as misses.
func (c *Cache[V]) fromMirror(ctx context.Context, key string) (entry[V], bool) {
	if c.mirror == nil {
		return entry[V]{}, false
	}

	b, err := c.mirror.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.log.Warn("mirror get failed", "key", key, "error", err)
		}
		return entry[V]{}, false
	}

	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		c.log.Warn("mirror entry unreadable", "key", key, "error", err)
		return entry[V]{}, false
	}
	v, err := c.codec.Decode(env.Value)
	if err != nil {
		c.log.Warn("mirror value unreadable", "key", key, "error", err)
		return entry[V]{}, false
	}

	e := entry[V]{value: v, storedAt: env.StoredAt}
	if !c.fresh(e) {
		return entry[V]{}, false
	}
	c.log.Debug("mirror hit", "key", key)
	return e, true
}

func (c *Cache[V]) toMirror(ctx context.Context, key string, e entry[V]) {
	if c.mirror == nil {
		return
	}

	raw, err := c.codec.Encode(e.value)
	if err != nil {
		c.log.Warn("mirror encode failed", "key", key, "error", err)
		return
	}
	b, err := json.Marshal(envelope{StoredAt: e.storedAt, Value: raw})
	if err != nil {
		c.log.Warn("mirror encode failed", "key", key, "error", err)
		return
	}
	if err := c.mirror.Set(ctx, key, b, c.ttl); err != nil {
		c.log.Warn("mirror set failed", "key", key, "error", err)
	}
}
