package application

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/JonMunkholm/conciliacao/internal/config"
	"github.com/JonMunkholm/conciliacao/internal/core"
)

func csvConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	view := filepath.Join(dir, "view.csv")
	pools := filepath.Join(dir, "pools.csv")
	if err := os.WriteFile(view, []byte("Data Criação,Tipo Fluxo,Status Conciliação,Quantidade\n"+
		"2024-01-02 10:00:00,CASHIN,CONCILIADO,3\n"+
		"2024-01-02 11:00:00,CASHOUT,DIVERGENTE,1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(pools, []byte("valid,8\nduplicates,1\nnulls,1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	return &config.Config{
		Source: config.SourceConfig{
			Kind:             config.SourceCSV,
			CSVPath:          view,
			IntegrityCSVPath: pools,
			QueryTimeout:     time.Minute,
		},
		Cache:     config.CacheConfig{TTL: time.Minute},
		Dashboard: config.DashboardConfig{Processor: "stark", Timezone: "America/Sao_Paulo", DefaultFlowType: "CASHIN"},
	}
}

func TestNew_CSV(t *testing.T) {
	app, err := New(context.Background(), csvConfig(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	v := app.Service.DefaultView(context.Background())
	if v.Failed {
		t.Fatalf("view failed: %+v", v.Notices)
	}
	if v.Summary == nil || v.Summary.Records != 1 {
		t.Fatalf("Summary = %+v, want the CASHIN record", v.Summary)
	}
	if v.Summary.Rate.Percent != 100 {
		t.Errorf("Rate = %v, want 100", v.Summary.Rate.Percent)
	}
	if v.Summary.Integrity == nil || v.Summary.Integrity.Percent != 80 {
		t.Errorf("Integrity = %+v, want 80%%", v.Summary.Integrity)
	}
	if app.Cache.Len() != 1 {
		t.Errorf("cache entries = %d, want 1", app.Cache.Len())
	}
	if got := app.Service.Location().String(); got != "America/Sao_Paulo" {
		t.Errorf("Location() = %q", got)
	}
}

func TestNew_UnreachableRedisIsSkipped(t *testing.T) {
	cfg := csvConfig(t)
	cfg.Cache.RedisURL = "redis://127.0.0.1:1/0"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	app, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	if app.Mirror != nil {
		t.Error("Mirror set for an unreachable redis")
	}
	if v := app.Service.View(ctx, core.Criteria{}); v.Failed || v.Dataset.Len() != 2 {
		t.Errorf("view = failed %v with %d records, want 2", v.Failed, v.Dataset.Len())
	}
}

func TestNew_UnknownSource(t *testing.T) {
	cfg := csvConfig(t)
	cfg.Source.Kind = "mysql"
	if _, err := New(context.Background(), cfg); err == nil {
		t.Error("New() with unknown source kind succeeded")
	}
}
