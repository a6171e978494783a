package cmd

import (
	"github.com/spf13/cobra"
)

// migrateCmd applies the system-table migrations (source sheets and sync
// logs). Destination tables are created by sync itself.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return migrateDatabase(appConfig.Database.ConnString())
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
