package core

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type fakeSource struct {
	mu        sync.Mutex
	table     RawTable
	viewErr   error
	counts    IntegrityCounts
	countsErr error
	viewCalls int
}

func (f *fakeSource) LoadReconciliationView(ctx context.Context) (RawTable, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.viewCalls++
	if f.viewErr != nil {
		return RawTable{}, f.viewErr
	}
	return f.table, nil
}

func (f *fakeSource) LoadIntegrityCounts(ctx context.Context) (IntegrityCounts, error) {
	if f.countsErr != nil {
		return IntegrityCounts{}, f.countsErr
	}
	return f.counts, nil
}

// mapCache is a minimal SnapshotCache that never expires.
type mapCache struct {
	mu      sync.Mutex
	entries map[string]*Snapshot
}

func (c *mapCache) GetOrLoad(ctx context.Context, key string, load func(context.Context) (*Snapshot, error)) (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.entries[key]; ok {
		return s, nil
	}
	s, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if c.entries == nil {
		c.entries = make(map[string]*Snapshot)
	}
	c.entries[key] = s
	return s, nil
}

func (c *mapCache) Invalidate(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func serviceTable() RawTable {
	return RawTable{
		Columns: []string{"tr_created_at", "tr_flow_type", "tr_status", "status_conciliacao", "amount_paag", "amount_stark", "qtd"},
		Rows: [][]string{
			{"2024-01-01 09:00:00", "CASHIN", "APROVADO", "CONCILIADO", "10", "10", "2"},
			{"2024-01-02 10:00:00", "CASHOUT", "APROVADO", "DIVERGENTE", "5", "3", "3"},
			{"2024-01-02 11:00:00", "CASHIN", "PENDENTE", "NAO_CONCLUIDO", "1", "", "5"},
		},
	}
}

func newTestService(t *testing.T, src Source, defaultFlow string) *Service {
	t.Helper()
	svc, err := NewService(ServiceConfig{
		Source:          src,
		Cache:           &mapCache{},
		Location:        time.UTC,
		DefaultFlowType: defaultFlow,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc
}

func TestNewService_RequiresCollaborators(t *testing.T) {
	if _, err := NewService(ServiceConfig{Cache: &mapCache{}}); err == nil {
		t.Error("NewService() without source succeeded")
	}
	if _, err := NewService(ServiceConfig{Source: &fakeSource{}}); err == nil {
		t.Error("NewService() without cache succeeded")
	}
}

func TestService_View(t *testing.T) {
	src := &fakeSource{table: serviceTable(), counts: NewIntegrityCounts(9, 1, 0)}
	svc := newTestService(t, src, "")

	v := svc.View(context.Background(), Criteria{FlowTypes: []string{"CASHIN"}})

	if v.Failed {
		t.Fatalf("View() failed: %v", v.Notices)
	}
	if v.Dataset.Len() != 2 {
		t.Fatalf("filtered records = %d, want 2", v.Dataset.Len())
	}
	if v.Summary == nil {
		t.Fatal("Summary = nil, want metrics")
	}
	if v.Summary.Rate.Matched != 2 || v.Summary.Rate.Total != 7 {
		t.Errorf("Rate = %d/%d, want 2/7", v.Summary.Rate.Matched, v.Summary.Rate.Total)
	}
	if v.Summary.Delta.IncompleteStark != 1 {
		t.Errorf("IncompleteStark = %d, want 1", v.Summary.Delta.IncompleteStark)
	}
	if v.Summary.Integrity == nil || v.Summary.Integrity.Percent != 90 {
		t.Errorf("Integrity = %+v, want 90%%", v.Summary.Integrity)
	}
	if len(v.Options.FlowTypes) != 2 {
		t.Errorf("Options drawn from the full snapshot, got %v", v.Options.FlowTypes)
	}
	if got := v.Tags.At(0, FieldStatusConciliacao); got != TagSuccess {
		t.Errorf("tag of first row = %q, want success", got)
	}
}

func TestService_ViewCachesSnapshot(t *testing.T) {
	src := &fakeSource{table: serviceTable()}
	svc := newTestService(t, src, "")
	ctx := context.Background()

	first := svc.View(ctx, Criteria{})
	second := svc.View(ctx, Criteria{StatusConciliacao: []string{"CONCILIADO"}})

	if src.viewCalls != 1 {
		t.Errorf("source loaded %d times, want 1", src.viewCalls)
	}
	if first.SnapshotID != second.SnapshotID {
		t.Error("views of one cache cycle report different snapshots")
	}

	if err := svc.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	third := svc.View(ctx, Criteria{})
	if src.viewCalls != 2 {
		t.Errorf("source loaded %d times after refresh, want 2", src.viewCalls)
	}
	if third.SnapshotID == first.SnapshotID {
		t.Error("refresh did not produce a new snapshot")
	}
}

func TestService_EmptyFilterResult(t *testing.T) {
	svc := newTestService(t, &fakeSource{table: serviceTable()}, "")

	v := svc.View(context.Background(), Criteria{FlowTypes: []string{"BOLETO"}})

	if !v.Empty() {
		t.Fatalf("View() = %d records, want 0", v.Dataset.Len())
	}
	if v.Summary != nil {
		t.Errorf("Summary = %+v, want nil when no data", v.Summary)
	}
	if !HasNotice(v.Notices, ErrEmptyFilterResult) {
		t.Errorf("notices = %v, want FLT001", v.Notices)
	}
	for _, n := range v.Notices {
		if n.Code == "FLT001" && n.Level != LevelInfo {
			t.Errorf("FLT001 level = %s, want info", n.Level)
		}
	}
}

func TestService_SourceFailure(t *testing.T) {
	src := &fakeSource{viewErr: errors.New("dial tcp 10.0.0.1:5432: connection refused")}
	svc := newTestService(t, src, "")
	ctx := context.Background()

	v := svc.View(ctx, Criteria{})

	if !v.Failed || !v.Empty() {
		t.Fatalf("View() = failed %v, %d records; want failed and empty", v.Failed, v.Dataset.Len())
	}
	if v.Summary != nil {
		t.Error("Summary computed for a failed load")
	}
	if !HasNotice(v.Notices, ErrSourceUnavailable) {
		t.Errorf("notices = %v, want SourceUnavailable", v.Notices)
	}
	if HasNotice(v.Notices, ErrEmptyFilterResult) {
		t.Error("failed load also reported an empty filter result")
	}
	if v.Notices[0].Code != "SRC001" || v.Notices[0].Level != LevelError {
		t.Errorf("notice = %+v, want SRC001 error", v.Notices[0])
	}

	// Failures are not cached.
	svc.View(ctx, Criteria{})
	if src.viewCalls != 2 {
		t.Errorf("source loaded %d times, want a retry per request", src.viewCalls)
	}

	if _, err := svc.Export(ctx, Criteria{}, FormatCSV); !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("Export() error = %v, want ErrSourceUnavailable", err)
	}
}

func TestService_MissingColumnFailsLoad(t *testing.T) {
	src := &fakeSource{table: RawTable{Columns: []string{"tr_flow_type"}, Rows: [][]string{{"CASHIN"}}}}
	svc := newTestService(t, src, "")

	snap := svc.Snapshot(context.Background())
	if !snap.Failed() {
		t.Fatal("Snapshot() succeeded without required columns")
	}
	if !errors.Is(snap.Err, ErrMissingColumn) || !errors.Is(snap.Err, ErrSourceUnavailable) {
		t.Errorf("Err = %v, want missing column wrapped as source unavailable", snap.Err)
	}
	if snap.Notices[0].Code != "SCH001" {
		t.Errorf("notice code = %s, want SCH001", snap.Notices[0].Code)
	}
}

func TestService_IntegrityUnavailable(t *testing.T) {
	src := &fakeSource{table: serviceTable(), countsErr: errors.New("relation does not exist")}
	svc := newTestService(t, src, "")

	v := svc.View(context.Background(), Criteria{})
	if v.Failed {
		t.Fatal("integrity failure failed the whole load")
	}
	if v.Summary == nil || v.Summary.Integrity != nil {
		t.Errorf("Summary = %+v, want metrics without integrity", v.Summary)
	}
	found := false
	for _, n := range v.Notices {
		if n.Level == LevelWarning && n.Code == "SRC001" {
			found = true
		}
	}
	if !found {
		t.Errorf("notices = %v, want an integrity warning", v.Notices)
	}
}

func TestService_DefaultView(t *testing.T) {
	svc := newTestService(t, &fakeSource{table: serviceTable()}, "CASHOUT")

	v := svc.DefaultView(context.Background())
	if v.Dataset.Len() != 1 || v.Dataset.Records[0].FlowType != "CASHOUT" {
		t.Errorf("DefaultView() = %+v, want only CASHOUT", v.Dataset.Records)
	}

	svc = newTestService(t, &fakeSource{table: serviceTable()}, "BOLETO")
	if v := svc.DefaultView(context.Background()); v.Dataset.Len() != 3 {
		t.Errorf("DefaultView() with absent default = %d records, want 3", v.Dataset.Len())
	}
}

func TestService_Export(t *testing.T) {
	svc := newTestService(t, &fakeSource{table: serviceTable()}, "")
	ctx := context.Background()

	data, err := svc.Export(ctx, Criteria{StatusTR: []string{"APROVADO"}}, FormatCSV)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("export rows = %d, want header + 2", len(rows))
	}

	if _, err := svc.Export(ctx, Criteria{FlowTypes: []string{"BOLETO"}}, FormatCSV); !errors.Is(err, ErrEmptyFilterResult) {
		t.Errorf("Export() of empty selection error = %v, want ErrEmptyFilterResult", err)
	}
}

func TestService_ExportLimited(t *testing.T) {
	limiter := NewExportLimiter(1, 0)
	svc, err := NewService(ServiceConfig{
		Source:   &fakeSource{table: serviceTable()},
		Cache:    &mapCache{},
		Location: time.UTC,
		Exports:  limiter,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := limiter.Acquire(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Export(ctx, Criteria{}, FormatCSV); !errors.Is(err, ErrTooManyExports) {
		t.Errorf("Export() with no free slot error = %v, want ErrTooManyExports", err)
	}

	limiter.Release()
	if _, err := svc.Export(ctx, Criteria{}, FormatCSV); err != nil {
		t.Errorf("Export() after release error = %v", err)
	}
	if limiter.Active() != 0 {
		t.Errorf("Active() = %d, slot not returned", limiter.Active())
	}
}

func TestService_StartWarmer(t *testing.T) {
	src := &fakeSource{table: serviceTable()}
	svc := newTestService(t, src, "")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.StartWarmer(ctx, 10*time.Millisecond)
	}()

	deadline := time.After(2 * time.Second)
	for {
		src.mu.Lock()
		calls := src.viewCalls
		src.mu.Unlock()
		if calls >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("view loaded %d times, want a reload after the first tick", calls)
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("warmer did not stop after cancel")
	}
}

func TestService_StartWarmerDisabled(t *testing.T) {
	src := &fakeSource{table: serviceTable()}
	svc := newTestService(t, src, "")

	svc.StartWarmer(context.Background(), 0)
	if src.viewCalls != 0 {
		t.Errorf("disabled warmer loaded the view %d times", src.viewCalls)
	}
}
