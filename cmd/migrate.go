package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.InitializeSchema(ctx); err != nil {
			return err
		}
		slog.Info("Schema migration completed", slog.String("type", "db"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
