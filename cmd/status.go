// =============================================================================
// Sheet Sync - Status Command
// =============================================================================
//
// The 'status' command shows, per configured sheet, the registered state in
// the database and its most recent sync runs.
//
// COMMAND USAGE:
//   sheetsync status [--sheet <id>] [--runs N]
//
// =============================================================================

package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/sheet-sync/internal/apperrors"
)

var (
	statusSheetIDs []string
	statusRuns     int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sheet registration and recent sync runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		allSheets, _, err := loadSheetsAndSchemas()
		if err != nil {
			return err
		}
		sheets, err := selectSheets(allSheets, statusSheetIDs)
		if err != nil {
			return err
		}

		pg, closeDB, err := openPostgres(ctx, false)
		if err != nil {
			return err
		}
		defer closeDB()

		for _, sheet := range sheets {
			registered, err := pg.GetSheet(ctx, sheet.ID)
			if errors.Is(err, apperrors.ErrNotFound) {
				fmt.Printf("%s: never synced\n", sheet.ID)
				continue
			}
			if err != nil {
				return err
			}

			lastSynced := "never"
			if registered.LastSyncedAt != nil {
				lastSynced = registered.LastSyncedAt.Format(time.RFC3339)
			}
			fmt.Printf("%s -> %s (enabled=%t, last synced %s)\n",
				registered.ID, registered.DestinationTable, registered.Enabled, lastSynced)

			logs, err := pg.RecentSyncLogs(ctx, sheet.ID, statusRuns)
			if err != nil {
				return err
			}
			for _, l := range logs {
				line := fmt.Sprintf("  %s  %-9s read %d, inserted %d, updated %d, invalid %d",
					l.StartedAt.Format(time.RFC3339), l.State, l.RowsRead, l.Inserted, l.Updated, l.Invalid)
				if l.Error != nil {
					line += "  error: " + *l.Error
				}
				fmt.Println(line)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringSliceVar(&statusSheetIDs, "sheet", nil, "Only show this sheet id (repeatable)")
	statusCmd.Flags().IntVar(&statusRuns, "runs", 5, "Number of recent runs to show per sheet")
}
