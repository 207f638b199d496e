// Command conciliacao prints reconciliation metrics and exports reports
// from the terminal, reading the same configuration as the server.
//
//	conciliacao summary --flow CASHIN --start 2024-01-01 --end 2024-01-31
//	conciliacao export --format xlsx --output relatorio.xlsx
//	conciliacao options --json
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/JonMunkholm/conciliacao/internal/application"
	"github.com/JonMunkholm/conciliacao/internal/config"
	"github.com/JonMunkholm/conciliacao/internal/core"
	"github.com/JonMunkholm/conciliacao/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// env is what every subcommand needs.
type env struct {
	cfg     *config.Config
	service *core.Service
	close   func()
}

// opener builds the env. Tests replace it with an in-memory source.
type opener func(ctx context.Context) (*env, error)

func openFromConfig(ctx context.Context) (*env, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	// Logs go to stderr so reports can be piped.
	slog.SetDefault(logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format))

	app, err := application.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, service: app.Service, close: app.Close}, nil
}

func main() {
	if err := newRootCmd(openFromConfig).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(open opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "conciliacao",
		Short:         "Paag x Stark reconciliation metrics and reports",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newSummaryCmd(open),
		newOptionsCmd(open),
		newExportCmd(open),
	)

	// Flag errors map to the invalid filter message.
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", core.ErrInvalidFilter, err)
	})
	return root
}

// run opens the env, runs fn and reports failures as a UserError.
// Configuration errors are printed as is.
func run(cmd *cobra.Command, open opener, fn func(e *env) error) error {
	e, err := open(cmd.Context())
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "erro:", err)
		return err
	}
	defer e.close()

	if err := fn(e); err != nil {
		ue := core.NewUserError(err)
		fmt.Fprintln(cmd.ErrOrStderr(), "erro:", ue.Display())
		return ue
	}
	return nil
}
