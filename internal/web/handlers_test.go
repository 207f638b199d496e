package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JonMunkholm/conciliacao/internal/cache"
	"github.com/JonMunkholm/conciliacao/internal/config"
	"github.com/JonMunkholm/conciliacao/internal/core"
	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"
)

func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

type fakeSource struct {
	table  core.RawTable
	counts core.IntegrityCounts
	err    error
	loads  atomic.Int32
}

func (f *fakeSource) LoadReconciliationView(ctx context.Context) (core.RawTable, error) {
	f.loads.Add(1)
	if f.err != nil {
		return core.RawTable{}, f.err
	}
	return f.table, nil
}

func (f *fakeSource) LoadIntegrityCounts(ctx context.Context) (core.IntegrityCounts, error) {
	return f.counts, nil
}

func sampleSource() *fakeSource {
	return &fakeSource{
		table: core.RawTable{
			Columns: []string{"tr_created_at", "tr_flow_type", "tr_status", "status_conciliacao", "amount_paag", "amount_stark", "qtd"},
			Rows: [][]string{
				{"2024-01-01 09:00:00", "CASHIN", "APROVADO", "CONCILIADO", "10", "10", "2"},
				{"2024-01-02 10:00:00", "CASHOUT", "APROVADO", "DIVERGENTE", "5", "3", "3"},
				{"2024-01-02 11:00:00", "CASHIN", "PENDENTE", "NAO_CONCLUIDO", "1", "", "5"},
			},
		},
		counts: core.NewIntegrityCounts(9, 1, 0),
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{RequestTimeout: 5 * time.Second},
		Dashboard: config.DashboardConfig{Title: "Conciliação Financeira - Stark", Locale: "en", PageSize: 500},
		Security:  config.SecurityConfig{EnableCSP: true},
	}
}

func newTestServer(t *testing.T, src core.Source, cfg *config.Config, defaultFlow string) *Server {
	t.Helper()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := core.NewService(core.ServiceConfig{
		Source:          src,
		Cache:           cache.New[*core.Snapshot](cache.Config{Logger: quiet}, nil),
		Location:        time.UTC,
		DefaultFlowType: defaultFlow,
		Logger:          quiet,
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return NewServer(svc, cfg)
}

func do(t *testing.T, s *Server, method, target string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

func noticeCodes(notices []core.Notice) []string {
	var codes []string
	for _, n := range notices {
		codes = append(codes, n.Code)
	}
	return codes
}

func hasCode(notices []core.Notice, code string) bool {
	for _, n := range notices {
		if n.Code == code {
			return true
		}
	}
	return false
}

// ----------------------------------------------------------------------------
// API
// ----------------------------------------------------------------------------

func TestHealth(t *testing.T) {
	s := newTestServer(t, &fakeSource{err: errors.New("down")}, testConfig(), "")

	rec := do(t, s, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := decode[map[string]string](t, rec); got["status"] != "ok" {
		t.Errorf("body = %v", got)
	}
}

func TestSummary_Filtered(t *testing.T) {
	s := newTestServer(t, sampleSource(), testConfig(), "")

	rec := do(t, s, http.MethodGet, "/api/summary?flow=CASHIN", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	resp := decode[SummaryResponse](t, rec)
	if resp.Summary == nil {
		t.Fatalf("Summary = nil, notices = %v", noticeCodes(resp.Notices))
	}
	if resp.Summary.Records != 2 {
		t.Errorf("Records = %d, want 2", resp.Summary.Records)
	}
	if resp.Summary.Rate.Matched != 2 || resp.Summary.Rate.Total != 7 {
		t.Errorf("Rate = %+v, want 2 of 7", resp.Summary.Rate)
	}
	if resp.Summary.Integrity == nil || resp.Summary.Integrity.Percent != 90 {
		t.Errorf("Integrity = %+v, want 90%%", resp.Summary.Integrity)
	}
	if resp.Display == nil || resp.Display.Rate != "28.6%" || resp.Display.Integrity != "90.0%" {
		t.Errorf("Display = %+v", resp.Display)
	}
	if diff := cmp.Diff([]string{"CASHIN"}, resp.Criteria.FlowTypes); diff != "" {
		t.Errorf("criteria mismatch (-want +got):\n%s", diff)
	}
}

func TestSummary_DefaultSelection(t *testing.T) {
	s := newTestServer(t, sampleSource(), testConfig(), "CASHOUT")

	resp := decode[SummaryResponse](t, do(t, s, http.MethodGet, "/api/summary", nil))
	if diff := cmp.Diff([]string{"CASHOUT"}, resp.Criteria.FlowTypes); diff != "" {
		t.Errorf("default criteria mismatch (-want +got):\n%s", diff)
	}
	if resp.Summary == nil || resp.Summary.Records != 1 {
		t.Errorf("Summary = %+v, want 1 record", resp.Summary)
	}

	// An explicit but empty selection means everything.
	resp = decode[SummaryResponse](t, do(t, s, http.MethodGet, "/api/summary?start=&end=", nil))
	if resp.Summary == nil || resp.Summary.Records != 3 {
		t.Errorf("Summary = %+v, want 3 records", resp.Summary)
	}
}

func TestSummary_DateRange(t *testing.T) {
	s := newTestServer(t, sampleSource(), testConfig(), "")

	resp := decode[SummaryResponse](t, do(t, s, http.MethodGet, "/api/summary?start=2024-01-02&end=2024-01-02", nil))
	if resp.Summary == nil || resp.Summary.Records != 2 {
		t.Errorf("Summary = %+v, want the 2 records of 2024-01-02", resp.Summary)
	}
}

func TestSummary_InvalidFilter(t *testing.T) {
	s := newTestServer(t, sampleSource(), testConfig(), "")

	tests := []struct {
		name   string
		target string
	}{
		{"bad start", "/api/summary?start=2024-13-01"},
		{"end before start", "/api/summary?start=2024-01-03&end=2024-01-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodGet, tt.target, nil)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if got := decode[ErrorResponse](t, rec); got.Code != "REQ001" {
				t.Errorf("code = %q, want REQ001", got.Code)
			}
		})
	}
}

func TestSummary_EmptySelection(t *testing.T) {
	s := newTestServer(t, sampleSource(), testConfig(), "")

	rec := do(t, s, http.MethodGet, "/api/summary?flow=PIX", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decode[SummaryResponse](t, rec)
	if resp.Summary != nil {
		t.Errorf("Summary = %+v, want nil", resp.Summary)
	}
	if !hasCode(resp.Notices, "FLT001") {
		t.Errorf("notices = %v, want FLT001", noticeCodes(resp.Notices))
	}
}

func TestSourceFailure(t *testing.T) {
	src := &fakeSource{err: errors.New("connection refused")}
	s := newTestServer(t, src, testConfig(), "")

	rec := do(t, s, http.MethodGet, "/api/summary", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("summary status = %d, want 503", rec.Code)
	}
	resp := decode[SummaryResponse](t, rec)
	if !resp.Failed || !hasCode(resp.Notices, "SRC001") {
		t.Errorf("summary = failed %v, notices %v; want SRC001", resp.Failed, noticeCodes(resp.Notices))
	}
	if hasCode(resp.Notices, "FLT001") {
		t.Error("a failed load also reported an empty filter result")
	}

	page := do(t, s, http.MethodGet, "/", nil)
	if page.Code != http.StatusOK || !strings.Contains(page.Body.String(), "SRC001") {
		t.Errorf("dashboard status = %d, want 200 page with SRC001 notice", page.Code)
	}

	exp := do(t, s, http.MethodGet, "/api/export.csv", nil)
	if exp.Code != http.StatusServiceUnavailable {
		t.Errorf("export status = %d, want 503", exp.Code)
	}
	if got := decode[ErrorResponse](t, exp); got.Code != "SRC001" {
		t.Errorf("export code = %q, want SRC001", got.Code)
	}

	// Failures are not cached.
	if src.loads.Load() != 3 {
		t.Errorf("loads = %d, want 3", src.loads.Load())
	}
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(ctx context.Context) error { return p.err }

func TestStatus(t *testing.T) {
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	snapshots := cache.New[*core.Snapshot](cache.Config{Logger: quiet}, nil)
	svc, err := core.NewService(core.ServiceConfig{
		Source:   sampleSource(),
		Cache:    snapshots,
		Location: time.UTC,
		Exports:  core.NewExportLimiter(3, time.Second),
		Logger:   quiet,
	})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		opts       []Option
		wantStatus string
		wantMirror string
	}{
		{"no mirror", []Option{WithCache(snapshots)}, "ok", "disabled"},
		{"mirror up", []Option{WithCache(snapshots), WithMirror(fakePinger{})}, "ok", "ok"},
		{"mirror down", []Option{WithCache(snapshots), WithMirror(fakePinger{err: errors.New("connection refused")})}, "degraded", "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(svc, testConfig(), tt.opts...)
			do(t, s, http.MethodGet, "/api/summary", nil)

			rec := do(t, s, http.MethodGet, "/api/status", nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("status code = %d", rec.Code)
			}
			got := decode[StatusResponse](t, rec)
			if got.Status != tt.wantStatus || got.Mirror != tt.wantMirror {
				t.Errorf("status = %q, mirror = %q; want %q, %q", got.Status, got.Mirror, tt.wantStatus, tt.wantMirror)
			}
			if got.Cache == nil || got.Cache.Entries != 1 || got.Cache.Loads != 1 {
				t.Errorf("cache = %+v, want one loaded entry", got.Cache)
			}
			want := core.ExportStatus{MaxConcurrent: 3, Limited: true}
			if diff := cmp.Diff(want, got.Exports); diff != "" {
				t.Errorf("exports mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStatus_Unconfigured(t *testing.T) {
	s := newTestServer(t, sampleSource(), testConfig(), "")

	got := decode[StatusResponse](t, do(t, s, http.MethodGet, "/api/status", nil))
	if got.Cache != nil || got.Exports.Limited || got.Mirror != "disabled" {
		t.Errorf("status = %+v, want no cache stats and unbounded exports", got)
	}
}

func TestOptions(t *testing.T) {
	s := newTestServer(t, sampleSource(), testConfig(), "CASHIN")

	resp := decode[OptionsResponse](t, do(t, s, http.MethodGet, "/api/options", nil))
	want := OptionsResponse{
		FlowTypes:         []string{"CASHIN", "CASHOUT"},
		StatusTR:          []string{"APROVADO", "PENDENTE"},
		StatusConciliacao: []string{"CONCILIADO", "DIVERGENTE", "NAO_CONCLUIDO"},
		MinDate:           "2024-01-01",
		MaxDate:           "2024-01-02",
		Default:           core.Criteria{FlowTypes: []string{"CASHIN"}},
		Notices:           []core.Notice{},
	}
	if diff := cmp.Diff(want, resp); diff != "" {
		t.Errorf("options mismatch (-want +got):\n%s", diff)
	}
}

func TestRecords_Limit(t *testing.T) {
	s := newTestServer(t, sampleSource(), testConfig(), "")

	resp := decode[RecordsResponse](t, do(t, s, http.MethodGet, "/api/records?start=&limit=1", nil))
	if resp.Total != 3 || resp.Returned != 1 {
		t.Errorf("Total = %d, Returned = %d; want 3 and 1", resp.Total, resp.Returned)
	}
	if len(resp.Records) != 1 || len(resp.Tags.Rows) != 1 {
		t.Fatalf("records = %d, tag rows = %d; want 1 each", len(resp.Records), len(resp.Tags.Rows))
	}
	if resp.Records[0].FlowType != "CASHIN" {
		t.Errorf("first record = %+v", resp.Records[0])
	}
	if got := resp.Tags.At(0, core.FieldStatusConciliacao); got != core.TagSuccess {
		t.Errorf("status tag = %q, want success", got)
	}
}

// ----------------------------------------------------------------------------
// Exports
// ----------------------------------------------------------------------------

func TestExportCSV(t *testing.T) {
	s := newTestServer(t, sampleSource(), testConfig(), "")

	rec := do(t, s, http.MethodGet, "/api/export.csv?flow=CASHIN", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != core.CSVContentType {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, core.CSVFileName) {
		t.Errorf("Content-Disposition = %q", cd)
	}

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want header + 2 rows:\n%s", len(lines), rec.Body.String())
	}
	if !strings.HasPrefix(lines[0], "Data Criação,Tipo Fluxo") {
		t.Errorf("header = %q", lines[0])
	}
}

func TestExportXLSX(t *testing.T) {
	s := newTestServer(t, sampleSource(), testConfig(), "")

	rec := do(t, s, http.MethodGet, "/export.xlsx", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != core.XLSXContentType {
		t.Errorf("Content-Type = %q", ct)
	}

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(core.SheetName)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 4 {
		t.Errorf("rows = %d, want header + 3", len(rows))
	}
}

func TestExport_DefaultSelectionMatchesSummary(t *testing.T) {
	s := newTestServer(t, sampleSource(), testConfig(), "CASHIN")

	summary := decode[SummaryResponse](t, do(t, s, http.MethodGet, "/api/summary", nil))
	if summary.Summary == nil {
		t.Fatalf("summary = %+v, want metrics", summary)
	}

	for _, target := range []string{"/api/export.csv", "/export.csv"} {
		rec := do(t, s, http.MethodGet, target, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d, body = %s", target, rec.Code, rec.Body.String())
		}
		lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
		if got := len(lines) - 1; got != summary.Summary.Records {
			t.Errorf("%s exported %d rows, summary reports %d", target, got, summary.Summary.Records)
		}
		for _, line := range lines[1:] {
			if !strings.Contains(line, "CASHIN") {
				t.Errorf("%s exported a row outside the default flow: %q", target, line)
			}
		}
	}
}

func TestExport_EmptySelection(t *testing.T) {
	s := newTestServer(t, sampleSource(), testConfig(), "")

	rec := do(t, s, http.MethodGet, "/api/export.csv?flow=PIX", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if got := decode[ErrorResponse](t, rec); got.Code != "FLT001" {
		t.Errorf("code = %q, want FLT001", got.Code)
	}
}

// ----------------------------------------------------------------------------
// Refresh and pages
// ----------------------------------------------------------------------------

func TestRefresh(t *testing.T) {
	src := sampleSource()
	s := newTestServer(t, src, testConfig(), "")

	do(t, s, http.MethodGet, "/api/summary", nil)
	do(t, s, http.MethodGet, "/api/records", nil)
	if src.loads.Load() != 1 {
		t.Fatalf("loads = %d, want 1 (cached)", src.loads.Load())
	}

	if rec := do(t, s, http.MethodPost, "/api/refresh", nil); rec.Code != http.StatusOK {
		t.Fatalf("refresh status = %d", rec.Code)
	}
	do(t, s, http.MethodGet, "/api/summary", nil)
	if src.loads.Load() != 2 {
		t.Errorf("loads after refresh = %d, want 2", src.loads.Load())
	}

	rec := do(t, s, http.MethodPost, "/refresh", nil)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/" {
		t.Errorf("form refresh = %d to %q, want 303 to /", rec.Code, rec.Header().Get("Location"))
	}
}

func TestDashboard(t *testing.T) {
	s := newTestServer(t, sampleSource(), testConfig(), "")

	rec := do(t, s, http.MethodGet, "/?flow=CASHIN&start=2024-01-01", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}

	body := rec.Body.String()
	for _, want := range []string{
		"Conciliação Financeira - Stark",
		`<option value="CASHIN" selected>`,
		`<option value="CASHOUT">`,
		`value="2024-01-01"`,
		"/export.csv?flow=CASHIN&amp;start=2024-01-01",
		`class="tag-success"`,
		"28.6%",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("page is missing %q", want)
		}
	}
}

func TestDashboard_EscapesValues(t *testing.T) {
	src := &fakeSource{table: core.RawTable{
		Columns: []string{"tr_created_at", "tr_flow_type", "status_conciliacao"},
		Rows:    [][]string{{"2024-01-01", "<script>x</script>", "CONCILIADO"}},
	}}
	s := newTestServer(t, src, testConfig(), "")

	body := do(t, s, http.MethodGet, "/", nil).Body.String()
	if strings.Contains(body, "<script>") {
		t.Error("page renders unescaped values")
	}
}

func TestDashboard_InvalidFilter(t *testing.T) {
	s := newTestServer(t, sampleSource(), testConfig(), "")

	rec := do(t, s, http.MethodGet, "/?start=ontem", map[string]string{"HX-Request": "true"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `role="alert"`) {
		t.Errorf("HTMX error body = %q, want alert fragment", rec.Body.String())
	}
}

// ----------------------------------------------------------------------------
// Middleware wiring
// ----------------------------------------------------------------------------

func TestSecurityHeaders(t *testing.T) {
	s := newTestServer(t, sampleSource(), testConfig(), "")

	rec := do(t, s, http.MethodGet, "/healthz", nil)
	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options", "Content-Security-Policy"} {
		if rec.Header().Get(h) == "" {
			t.Errorf("missing %s header", h)
		}
	}
}

func TestAPIKeyRequired(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RequireAPIKey = true
	cfg.Security.APIKeys = []string{"k1", "k2"}
	s := newTestServer(t, sampleSource(), cfg, "")

	tests := []struct {
		name   string
		target string
		header map[string]string
		want   int
	}{
		{"missing key", "/api/summary", nil, http.StatusUnauthorized},
		{"wrong key", "/api/summary", map[string]string{"X-API-Key": "nope"}, http.StatusForbidden},
		{"valid key", "/api/summary", map[string]string{"X-API-Key": "k2"}, http.StatusOK},
		{"query key", "/api/summary?api_key=k1", nil, http.StatusOK},
		{"health is public", "/healthz", nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, s, http.MethodGet, tt.target, tt.header); rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2, ExportLimit: 1}
	s := newTestServer(t, sampleSource(), cfg, "")

	for i, want := range []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests} {
		if rec := do(t, s, http.MethodGet, "/healthz", nil); rec.Code != want {
			t.Errorf("request %d status = %d, want %d", i+1, rec.Code, want)
		}
	}
}

func TestRateLimit_Exports(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 100, ExportLimit: 1}
	s := newTestServer(t, sampleSource(), cfg, "")

	if rec := do(t, s, http.MethodGet, "/export.csv", nil); rec.Code != http.StatusOK {
		t.Fatalf("first export status = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/api/export.xlsx", nil); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second export status = %d, want 429", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/api/summary", nil); rec.Code != http.StatusOK {
		t.Errorf("summary after export limit status = %d, want 200", rec.Code)
	}
}
