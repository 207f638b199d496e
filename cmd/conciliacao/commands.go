package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/JonMunkholm/conciliacao/internal/core"
	"github.com/spf13/cobra"
)

// filterFlags mirror the dashboard filters.
type filterFlags struct {
	flows    []string
	statusTR []string
	status   []string
	start    string
	end      string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&f.flows, "flow", nil, "flow type to include (repeatable)")
	cmd.Flags().StringArrayVar(&f.statusTR, "status-tr", nil, "TR status to include (repeatable)")
	cmd.Flags().StringArrayVar(&f.status, "status", nil, "reconciliation status to include (repeatable)")
	cmd.Flags().StringVar(&f.start, "start", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&f.end, "end", "", "last day, YYYY-MM-DD")
}

func (f *filterFlags) criteria(loc *time.Location) (core.Criteria, error) {
	dates, err := core.ParseDateRange(f.start, f.end, loc)
	if err != nil {
		return core.Criteria{}, err
	}
	return core.Criteria{
		FlowTypes:         f.flows,
		StatusTR:          f.statusTR,
		StatusConciliacao: f.status,
		Dates:             dates,
	}, nil
}

// ----------------------------------------------------------------------------
// summary
// ----------------------------------------------------------------------------

func newSummaryCmd(open opener) *cobra.Command {
	var (
		filters filterFlags
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print reconciliation rate, value delta and data integrity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, open, func(e *env) error {
				c, err := filters.criteria(e.service.Location())
				if err != nil {
					return err
				}
				v := e.service.View(cmd.Context(), c)
				if v.Failed {
					return firstNoticeErr(v.Notices)
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), v.Summary)
				}
				printSummary(cmd.OutOrStdout(), core.NewFormatter(e.cfg.Dashboard.Locale), v)
				return nil
			})
		},
	}
	filters.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printSummary(w io.Writer, f *core.Formatter, v *core.View) {
	for _, n := range v.Notices {
		fmt.Fprintf(w, "[%s] %s (%s)\n", n.Level, n.Message, n.Code)
	}
	s := v.Summary
	if s == nil {
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Registros\t%s\n", f.Count(int64(s.Records)))
	fmt.Fprintf(tw, "Taxa de Conciliação\t%s\t%s\n", f.Percent(s.Rate.Percent), f.RateCaption(s.Rate))
	fmt.Fprintf(tw, "Diferença de Valores\t%s\t%s\n", f.Money(s.Delta.Difference), f.DeltaCaption(s.Delta))
	if s.Integrity != nil {
		fmt.Fprintf(tw, "Integridade dos Dados\t%s\t%s\n", f.Percent(s.Integrity.Percent), f.IntegrityCaption(s.Integrity.Counts))
	} else {
		fmt.Fprintf(tw, "Integridade dos Dados\t-\tindisponível\n")
	}
	tw.Flush()
}

// ----------------------------------------------------------------------------
// options
// ----------------------------------------------------------------------------

func newOptionsCmd(open opener) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "options",
		Short: "List the values available for each filter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, open, func(e *env) error {
				snap := e.service.Snapshot(cmd.Context())
				if snap.Failed() {
					return snap.Err
				}
				opts := core.BuildOptions(snap.Dataset)
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), opts)
				}
				printOptions(cmd.OutOrStdout(), opts)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printOptions(w io.Writer, o core.Options) {
	list := func(f core.Field, flag string, values []string) {
		fmt.Fprintf(w, "%s (--%s):\n", core.Label(f), flag)
		for _, v := range values {
			fmt.Fprintf(w, "  %s\n", v)
		}
	}
	list(core.FieldFlowType, "flow", o.FlowTypes)
	list(core.FieldStatusTR, "status-tr", o.StatusTR)
	list(core.FieldStatusConciliacao, "status", o.StatusConciliacao)
	if !o.MinDate.IsZero() {
		fmt.Fprintf(w, "datas: %s a %s\n", o.MinDate.Format("2006-01-02"), o.MaxDate.Format("2006-01-02"))
	}
}

// ----------------------------------------------------------------------------
// export
// ----------------------------------------------------------------------------

func newExportCmd(open opener) *cobra.Command {
	var (
		filters filterFlags
		format  string
		output  string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the filtered records as CSV or XLSX",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, open, func(e *env) error {
				ef, err := core.ParseExportFormat(format)
				if err != nil {
					return err
				}
				c, err := filters.criteria(e.service.Location())
				if err != nil {
					return err
				}
				data, err := e.service.Export(cmd.Context(), c, ef)
				if err != nil {
					return err
				}

				if output == "-" {
					_, err := cmd.OutOrStdout().Write(data)
					return err
				}
				if output == "" {
					output = ef.FileName()
				}
				if err := os.WriteFile(output, data, 0o644); err != nil {
					return fmt.Errorf("%w: %w", core.ErrExport, err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d bytes\n", output, len(data))
				return nil
			})
		},
	}
	filters.register(cmd)
	cmd.Flags().StringVar(&format, "format", string(core.FormatCSV), "csv or xlsx")
	cmd.Flags().StringVarP(&output, "output", "o", "", `output file ("-" for stdout, default the report file name)`)
	return cmd
}

// ----------------------------------------------------------------------------
// helpers
// ----------------------------------------------------------------------------

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// firstNoticeErr returns the error behind the first notice carrying one.
func firstNoticeErr(notices []core.Notice) error {
	for _, n := range notices {
		if n.Err != nil {
			return n.Err
		}
	}
	return core.ErrSourceUnavailable
}
