package cli

import (
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vk/gridci/internal/app"
)

func newServeCmd(outW io.Writer, flags *rootFlags) *cobra.Command {
	var (
		workflowsDir string
		addr         string
		dbURL        string
		dispatchURL  string
		dashboardURL string
		workers      int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and execute runs until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// .env keeps database credentials out of the command line.
			_ = godotenv.Load()
			if dbURL == "" {
				dbURL = os.Getenv("DATABASE_URL")
			}

			cfg, err := app.NewConfig(app.Config{
				WorkflowPath: workflowsDir,
				DatabaseURL:  dbURL,
				DispatchURL:  dispatchURL,
				DashboardURL: dashboardURL,
				LogFormat:    flags.logFormat,
				LogLevel:     flags.logLevel,
				WorkerCount:  workers,
			})
			if err != nil {
				return &ExitError{Code: 2, Message: err.Error()}
			}

			a := app.NewApp(outW, cfg)
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := a.Serve(ctx, addr); err != nil {
				return &ExitError{Code: 1, Message: err.Error()}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&workflowsDir, "workflows", "", "Directory of workflow files to serve. Required.")
	cmd.Flags().StringVar(&addr, "addr", ":8080", "Address the HTTP API listens on.")
	cmd.Flags().StringVar(&dbURL, "db", "", "Postgres connection string. Defaults to DATABASE_URL; empty selects the in-memory store.")
	cmd.Flags().StringVar(&dispatchURL, "dispatch-url", "", "Base URL of the runner endpoint for 'uses' jobs.")
	cmd.Flags().StringVar(&dashboardURL, "dashboard-url", "", "socket.io endpoint for live run events.")
	cmd.Flags().IntVar(&workers, "workers", 10, "Number of concurrent workers per run.")
	_ = cmd.MarkFlagRequired("workflows")

	return cmd
}
