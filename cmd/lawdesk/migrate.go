package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"lawdesk/internal/models"
)

func newMigrateCmd() *cobra.Command {
	var status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if !status {
				if err := models.Migrate(a.sqlDB.DB()); err != nil {
					return err
				}
			}
			version, dirty, err := models.MigrationVersion(a.sqlDB.DB())
			if err != nil {
				return fmt.Errorf("read migration version: %w", err)
			}
			a.logger.Info("database schema", "version", version, "dirty", dirty)
			return nil
		},
	}
	cmd.Flags().BoolVar(&status, "status", false, "only report the applied version")
	return cmd
}
