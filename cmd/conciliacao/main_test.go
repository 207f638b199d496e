package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/conciliacao/internal/cache"
	"github.com/JonMunkholm/conciliacao/internal/config"
	"github.com/JonMunkholm/conciliacao/internal/core"
	"github.com/google/go-cmp/cmp"
)

type tableSource struct {
	table core.RawTable
	err   error
}

func (s tableSource) LoadReconciliationView(ctx context.Context) (core.RawTable, error) {
	return s.table, s.err
}

func (s tableSource) LoadIntegrityCounts(ctx context.Context) (core.IntegrityCounts, error) {
	return core.NewIntegrityCounts(3, 1, 0), nil
}

func testOpener(src core.Source) opener {
	return func(ctx context.Context) (*env, error) {
		quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
		svc, err := core.NewService(core.ServiceConfig{
			Source:   src,
			Cache:    cache.New[*core.Snapshot](cache.Config{Logger: quiet}, nil),
			Location: time.UTC,
			Logger:   quiet,
		})
		if err != nil {
			return nil, err
		}
		cfg := &config.Config{Dashboard: config.DashboardConfig{Locale: "en"}}
		return &env{cfg: cfg, service: svc, close: func() {}}, nil
	}
}

func sampleTable() core.RawTable {
	return core.RawTable{
		Columns: []string{"tr_created_at", "tr_flow_type", "status_conciliacao", "amount_paag", "amount_stark", "qtd"},
		Rows: [][]string{
			{"2024-01-01 09:00:00", "CASHIN", "CONCILIADO", "100.00", "90.00", "3"},
			{"2024-01-05 09:00:00", "CASHOUT", "DIVERGENTE", "50.00", "50.00", "1"},
		},
	}
}

func execute(t *testing.T, open opener, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(open)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestSummary(t *testing.T) {
	out, _, err := execute(t, testOpener(tableSource{table: sampleTable()}), "summary", "--flow", "CASHIN")
	if err != nil {
		t.Fatalf("summary error = %v", err)
	}
	for _, want := range []string{"100.0%", "3 de 3 transações", "R$ 10.00", "75.0%"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSummary_JSON(t *testing.T) {
	out, _, err := execute(t, testOpener(tableSource{table: sampleTable()}), "summary", "--json", "--start", "2024-01-02")
	if err != nil {
		t.Fatalf("summary error = %v", err)
	}
	var s core.Summary
	if err := json.Unmarshal([]byte(out), &s); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if s.Records != 1 || s.Rate.Percent != 0 {
		t.Errorf("summary = %+v, want 1 unmatched record", s)
	}
}

func TestSummary_Errors(t *testing.T) {
	tests := []struct {
		name     string
		src      core.Source
		args     []string
		wantCode string
	}{
		{"invalid date", tableSource{table: sampleTable()}, []string{"summary", "--start", "2024-02-30"}, "REQ001"},
		{"source down", tableSource{err: errors.New("connection refused")}, []string{"summary"}, "SRC001"},
		{"unknown flag", tableSource{table: sampleTable()}, []string{"summary", "--bogus"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, stderr, err := execute(t, testOpener(tt.src), tt.args...)
			if err == nil {
				t.Fatal("summary succeeded")
			}
			if tt.wantCode == "" {
				return
			}
			if !strings.Contains(stderr, tt.wantCode) {
				t.Errorf("stderr = %q, want code %s", stderr, tt.wantCode)
			}
			var ue *core.UserError
			if !errors.As(err, &ue) || ue.User.Code != tt.wantCode {
				t.Errorf("error = %#v, want UserError with code %s", err, tt.wantCode)
			}
		})
	}
}

func TestOptions(t *testing.T) {
	out, _, err := execute(t, testOpener(tableSource{table: sampleTable()}), "options", "--json")
	if err != nil {
		t.Fatalf("options error = %v", err)
	}
	var o core.Options
	if err := json.Unmarshal([]byte(out), &o); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if diff := cmp.Diff([]string{"CASHIN", "CASHOUT"}, o.FlowTypes); diff != "" {
		t.Errorf("flow types mismatch (-want +got):\n%s", diff)
	}
}

func TestExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")

	_, stderr, err := execute(t, testOpener(tableSource{table: sampleTable()}), "export", "--flow", "CASHOUT", "-o", path)
	if err != nil {
		t.Fatalf("export error = %v (%s)", err, stderr)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 || !strings.Contains(lines[1], "CASHOUT") {
		t.Errorf("export = %q, want header and the CASHOUT row", data)
	}
}

func TestExport_Stdout(t *testing.T) {
	out, _, err := execute(t, testOpener(tableSource{table: sampleTable()}), "export", "-o", "-")
	if err != nil {
		t.Fatalf("export error = %v", err)
	}
	if !strings.HasPrefix(out, "Data Criação,Tipo Fluxo") {
		t.Errorf("stdout = %q", out)
	}
}

func TestExport_Errors(t *testing.T) {
	open := testOpener(tableSource{table: sampleTable()})

	if _, stderr, err := execute(t, open, "export", "--format", "pdf", "-o", "-"); err == nil || !strings.Contains(stderr, "REQ001") {
		t.Errorf("unknown format: err = %v, stderr = %q", err, stderr)
	}
	if _, stderr, err := execute(t, open, "export", "--flow", "PIX", "-o", "-"); err == nil || !strings.Contains(stderr, "FLT001") {
		t.Errorf("empty selection: err = %v, stderr = %q", err, stderr)
	}
}

func TestOptions_Text(t *testing.T) {
	out, _, err := execute(t, testOpener(tableSource{table: sampleTable()}), "options")
	if err != nil {
		t.Fatalf("options error = %v", err)
	}
	for _, want := range []string{"Tipo Fluxo (--flow):", "  CASHIN", "Status Conciliação (--status):", "datas: 2024-01-01 a 2024-01-05"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
