package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vbonduro/homeinv/internal/db"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := db.Open(a.cfg.DBPath)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer a.closeDB(database)

			version, dirty, err := db.Version(database)
			if err != nil {
				return err
			}
			a.logger.Info("database migrated", "path", a.cfg.DBPath, "version", version, "dirty", dirty)
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
			return nil
		},
	}
}
