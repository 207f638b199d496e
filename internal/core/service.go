package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DefaultQueryTimeout bounds a source load when none is configured.
var DefaultQueryTimeout = 60 * time.Second

// SnapshotCache stores loaded snapshots by key. Implementations must run at
// most one load per key at a time and must not store failed loads.
type SnapshotCache interface {
	GetOrLoad(ctx context.Context, key string, load func(context.Context) (*Snapshot, error)) (*Snapshot, error)
	Invalidate(ctx context.Context, key string) error
}

// Snapshot is the result of one refresh cycle: the typed dataset, the
// integrity counts and the notices raised while loading.
type Snapshot struct {
	ID                 uuid.UUID       `json:"id"`
	Dataset            Dataset         `json:"dataset"`
	Integrity          IntegrityCounts `json:"integrity"`
	IntegrityAvailable bool            `json:"integrity_available"`
	Notices            []Notice        `json:"notices,omitempty"`
	LoadedAt           time.Time       `json:"loaded_at"`

	// Err is set when the load failed; Dataset is then empty.
	Err error `json:"-"`
}

// Failed reports whether the snapshot stands in for a failed load.
func (s *Snapshot) Failed() bool {
	return s.Err != nil
}

// ServiceConfig wires a Service to its collaborators.
type ServiceConfig struct {
	Source          Source
	Cache           SnapshotCache
	CacheKey        string
	Location        *time.Location
	DefaultFlowType string
	QueryTimeout    time.Duration
	// Exports bounds concurrent renders; nil means unbounded.
	Exports         *ExportLimiter
	Now             func() time.Time
	Logger          *slog.Logger
}

// Service ties the source, the cache and the pure dataset operations
// together. It is safe for concurrent use.
type Service struct {
	source      Source
	cache       SnapshotCache
	key         string
	loc         *time.Location
	defaultFlow string
	timeout     time.Duration
	exports     *ExportLimiter
	now         func() time.Time
	log         *slog.Logger
}

// NewService creates a Service. Source and Cache are required.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("core: service needs a source")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("core: service needs a cache")
	}

	s := &Service{
		source:      cfg.Source,
		cache:       cfg.Cache,
		key:         cfg.CacheKey,
		loc:         cfg.Location,
		defaultFlow: cfg.DefaultFlowType,
		timeout:     cfg.QueryTimeout,
		exports:     cfg.Exports,
		now:         cfg.Now,
		log:         cfg.Logger,
	}
	if s.key == "" {
		s.key = "reconciliation"
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.timeout <= 0 {
		s.timeout = DefaultQueryTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.log = s.log.With("component", "service")
	return s, nil
}

// Location returns the timezone used for date filters and display.
func (s *Service) Location() *time.Location { return s.loc }

// Snapshot returns the cached dataset, loading it on a miss. It never
// returns partial data: a failed load yields an empty dataset with a
// SourceUnavailable notice, and nothing is cached.
func (s *Service) Snapshot(ctx context.Context) *Snapshot {
	snap, err := s.cache.GetOrLoad(ctx, s.key, s.load)
	if err != nil {
		s.log.Warn("reconciliation load failed", "error", err)
		return &Snapshot{
			ID:       uuid.New(),
			Dataset:  Dataset{Location: s.loc},
			Notices:  []Notice{NewNotice(LevelError, err, "")},
			LoadedAt: s.now(),
			Err:      err,
		}
	}

	// Snapshots decoded from a shared mirror lose their location.
	cp := *snap
	cp.Dataset.Location = s.loc
	return &cp
}

// load reads the view and the integrity counts. Request cancellation does
// not abort a shared load; the query timeout still bounds it.
func (s *Service) load(ctx context.Context) (*Snapshot, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	start := s.now()
	raw, err := s.source.LoadReconciliationView(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	ds, notices, err := BuildDataset(raw, s.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	ds.LoadedAt = s.now()

	snap := &Snapshot{
		ID:       uuid.New(),
		Dataset:  ds,
		Notices:  notices,
		LoadedAt: ds.LoadedAt,
	}

	counts, err := s.source.LoadIntegrityCounts(ctx)
	if err != nil {
		s.log.Warn("integrity counts unavailable", "error", err)
		snap.Notices = append(snap.Notices,
			NewNotice(LevelWarning, fmt.Errorf("%w: %w", ErrSourceUnavailable, err), "integridade indisponível"))
	} else {
		snap.Integrity = counts
		snap.IntegrityAvailable = true
	}

	s.log.Info("reconciliation loaded",
		"snapshot_id", snap.ID,
		"records", ds.Len(),
		"columns", len(ds.Columns),
		"notices", len(snap.Notices),
		"duration_ms", s.now().Sub(start).Milliseconds(),
	)
	return snap, nil
}

// Refresh drops the cached snapshot so the next request reloads it.
func (s *Service) Refresh(ctx context.Context) error {
	if err := s.cache.Invalidate(ctx, s.key); err != nil {
		return fmt.Errorf("invalidate %s: %w", s.key, err)
	}
	s.log.Info("reconciliation cache invalidated", "key", s.key)
	return nil
}

// View is everything the presentation layer needs for one request.
type View struct {
	SnapshotID uuid.UUID `json:"snapshot_id"`
	LoadedAt   time.Time `json:"loaded_at"`
	Criteria   Criteria  `json:"criteria"`
	Options    Options   `json:"options"`
	Dataset    Dataset   `json:"dataset"`
	Tags       TagMatrix `json:"tags"`
	Summary    *Summary  `json:"summary,omitempty"`
	Notices    []Notice  `json:"notices,omitempty"`
	Failed     bool      `json:"failed"`
}

// Empty reports whether the filtered dataset holds no records.
func (v *View) Empty() bool {
	return v.Dataset.IsEmpty()
}

// View filters the current snapshot and computes its metrics.
func (s *Service) View(ctx context.Context, c Criteria) *View {
	return s.view(s.Snapshot(ctx), c)
}

// DefaultView is View with the initial selection of DefaultCriteria.
func (s *Service) DefaultView(ctx context.Context) *View {
	snap := s.Snapshot(ctx)
	return s.view(snap, DefaultCriteria(snap.Dataset, s.defaultFlow))
}

// DefaultCriteria returns the selection DefaultView applies, so callers
// that only need the criteria (exports) match the default page.
func (s *Service) DefaultCriteria(ctx context.Context) Criteria {
	return DefaultCriteria(s.Snapshot(ctx).Dataset, s.defaultFlow)
}

func (s *Service) view(snap *Snapshot, c Criteria) *View {
	filtered := Apply(snap.Dataset, c)

	v := &View{
		SnapshotID: snap.ID,
		LoadedAt:   snap.LoadedAt,
		Criteria:   c,
		Options:    BuildOptions(snap.Dataset),
		Dataset:    filtered,
		Tags:       Tags(filtered),
		Notices:    append([]Notice(nil), snap.Notices...),
		Failed:     snap.Failed(),
	}

	var counts *IntegrityCounts
	if snap.IntegrityAvailable {
		ic := snap.Integrity
		counts = &ic
	}

	summary, err := Summarize(filtered, counts)
	switch {
	case err == nil:
		v.Summary = &summary
	case !snap.Failed():
		// A failed load already carries its own notice.
		v.Notices = append(v.Notices, NewNotice(LevelInfo, err, ""))
	}
	return v
}

// Export renders the filtered snapshot. A failed load or an empty
// selection is returned as an error rather than an empty file.
func (s *Service) Export(ctx context.Context, c Criteria, format ExportFormat) ([]byte, error) {
	snap := s.Snapshot(ctx)
	if snap.Failed() {
		return nil, snap.Err
	}

	filtered := Apply(snap.Dataset, c)
	if filtered.IsEmpty() {
		return nil, ErrEmptyFilterResult
	}

	if s.exports != nil {
		if err := s.exports.Acquire(ctx); err != nil {
			s.log.Warn("export rejected", "error", err, "active", s.exports.Active())
			return nil, err
		}
		defer s.exports.Release()
	}

	data, err := Render(filtered, format)
	if err != nil {
		return nil, err
	}
	s.log.Info("export rendered",
		"format", string(format),
		"records", filtered.Len(),
		"bytes", len(data),
	)
	return data, nil
}

// WaitForExports blocks until in-flight renders finish or ctx ends.
func (s *Service) WaitForExports(ctx context.Context) error {
	if s.exports == nil {
		return nil
	}
	return s.exports.WaitForDrain(ctx)
}

// ExportStatus reports export slot usage. An unbounded service reports
// Limited=false.
func (s *Service) ExportStatus() ExportStatus {
	if s.exports == nil {
		return ExportStatus{}
	}
	return s.exports.Status()
}
