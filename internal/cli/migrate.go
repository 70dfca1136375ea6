package cli

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucasspain13/out-sports-qc-sub001/internal/repository"
)

type sqlBacked interface {
	DB() *sql.DB
	Driver() string
}

// NewMigrateCommand creates the migrate command. Opening the backend applies
// pending migrations; the command reports the resulting schema version.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations for the configured driver",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			backend, err := openBackend(ctx, rootOpts.cfg, rootOpts.logger)
			if err != nil {
				return err
			}
			defer backend.Close()

			db, ok := backend.Repo.(sqlBacked)
			if !ok {
				return fmt.Errorf("repository %T does not expose a database", backend.Repo)
			}
			version, err := repository.SchemaVersion(ctx, db.DB(), db.Driver())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s schema at version %d\n", db.Driver(), version)
			return nil
		},
	}
}
