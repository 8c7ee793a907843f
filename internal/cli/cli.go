package cli

import (
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// rootFlags are the global flags shared by every subcommand.
type rootFlags struct {
	logLevel  string
	logFormat string
}

func (f *rootFlags) validate() error {
	f.logLevel = strings.ToLower(f.logLevel)
	switch f.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	f.logFormat = strings.ToLower(f.logFormat)
	if f.logFormat != "text" && f.logFormat != "json" {
		return &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}
	return nil
}

// NewRootCmd builds the gridci command tree. All command output goes to
// outW so tests can capture it.
func NewRootCmd(outW io.Writer) *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "gridci",
		Short: "A CI workflow orchestrator for dependency-gated job graphs",
		Long: `gridci loads declarative workflow files, validates their job graphs,
and executes runs as concurrent, dependency-gated job DAGs. Jobs either
invoke pinned external reusable workflows or run local scripts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return flags.validate()
		},
	}
	rootCmd.SetOut(outW)
	rootCmd.SetErr(outW)

	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	rootCmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "text", "Log output format. Options: 'text' or 'json'.")

	rootCmd.AddCommand(
		newValidateCmd(outW),
		newRunCmd(outW, flags),
		newServeCmd(outW, flags),
		newMigrateCmd(outW),
	)
	return rootCmd
}
