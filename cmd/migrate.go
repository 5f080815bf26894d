package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/THIS-Institute/thiscovery-surveys/internal/bootstrap"
	"github.com/THIS-Institute/thiscovery-surveys/internal/config"
	"github.com/THIS-Institute/thiscovery-surveys/internal/database"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the PostgreSQL link store schema",
	}
	cmd.AddCommand(
		migrateDirectionCommand("up", "Apply all pending migrations", database.Up),
		migrateDirectionCommand("down", "Roll back all migrations", database.Down),
	)
	return cmd
}

func migrateDirectionCommand(use, short string, dir database.Direction) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := bootstrap.LoadConfig(cfgFile, Debug)
			if err != nil {
				return err
			}
			if cfg.Store.Backend != config.BackendPostgres {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: store.backend is %q; migrating the postgres database anyway\n", cfg.Store.Backend)
			}

			changed, err := database.Migrate(cfg.Database.MigrationsPath, cfg.Database.URL(), dir)
			if err != nil {
				return err
			}
			if !changed {
				fmt.Fprintln(cmd.OutOrStdout(), "No migrations to apply")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migrations %s complete\n", use)
			return nil
		},
	}
}
