package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newMigrateCmd(outW io.Writer) *cobra.Command {
	var (
		dbURL string
		dir   string
		down  bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the SQL schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Load .env if present, so DATABASE_URL can live there.
			_ = godotenv.Load()
			if dbURL == "" {
				dbURL = os.Getenv("DATABASE_URL")
			}
			if dbURL == "" {
				return &ExitError{Code: 2, Message: "migrate requires --db or DATABASE_URL"}
			}

			m, err := migrate.New("file://"+dir, dbURL)
			if err != nil {
				return fmt.Errorf("initializing migrations: %w", err)
			}
			defer m.Close()

			if down {
				err = m.Down()
			} else {
				err = m.Up()
			}
			if err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("applying migrations: %w", err)
			}
			if errors.Is(err, migrate.ErrNoChange) {
				fmt.Fprintln(outW, "Schema already up to date.")
				return nil
			}
			fmt.Fprintln(outW, "Migrations applied successfully.")
			return nil
		},
	}

	cmd.Flags().StringVar(&dbURL, "db", "", "Postgres connection string. Defaults to DATABASE_URL.")
	cmd.Flags().StringVar(&dir, "path", "migrations", "Directory holding the SQL migration files.")
	cmd.Flags().BoolVar(&down, "down", false, "Roll the schema back instead of forward.")

	return cmd
}
