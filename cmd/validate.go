// =============================================================================
// Sheet Sync - Validate Command
// =============================================================================
//
// The 'validate' command loads every configuration layer and reports
// problems without touching the database or any source.
//
// COMMAND USAGE:
//   sheetsync validate
//
// =============================================================================

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration without syncing",
	Long: `The validate command loads the application config, every sheet config
and every table schema, and checks them against each other: identifiers,
duplicate ids and mappings, cleanup rules, source settings and content keys.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		sheets, schemas, err := loadSheetsAndSchemas()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration OK: %d sheet(s), %d schema(s)\n", len(sheets), len(schemas))
		for _, sheet := range sheets {
			state := "enabled"
			if !sheet.IsEnabled() {
				state = "disabled"
			}
			_, hasSchema := schemas[sheet.Table]
			fmt.Printf("  %-24s -> %-20s %-8s source=%s schema=%t\n",
				sheet.ID, sheet.Table, state, sheet.Source.Kind, hasSchema)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
