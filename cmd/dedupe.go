// =============================================================================
// Sheet Sync - Dedupe Command
// =============================================================================
//
// The 'dedupe' command finds stored records that describe the same real-world
// entry (same identifier, date, amount and label) and, only when confirmed,
// deletes all but the most recently created record of each group.
//
// COMMAND USAGE:
//   sheetsync dedupe --table <table> [--sheet <id>] [--confirm]
//
// Without --confirm the command only lists the groups it would clean up.
// Either way it lists the sheet rows behind the removed copies: a deleted
// record comes back on the next sync while its row is still in the sheet.
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ginjaninja78/sheet-sync/internal/dedupe"
	"github.com/ginjaninja78/sheet-sync/internal/store"
	"github.com/ginjaninja78/sheet-sync/internal/types"
)

var (
	dedupeTable   string
	dedupeSheetID string
	dedupeConfirm bool
)

var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Find and remove content duplicates in a destination table",
	Long: `The dedupe command groups the records of a table by the schema's content
key. In each group the most recently created record is kept.

Content duplicates are never removed by a sync. Run this command to review
them, then run it again with --confirm to delete the older copies.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		_, schemas, err := loadSheetsAndSchemas()
		if err != nil {
			return err
		}
		schema, ok := schemas[dedupeTable]
		if !ok || schema.ContentKey == nil {
			return fmt.Errorf("table %s has no content key in its schema", dedupeTable)
		}

		pg, closeDB, err := openPostgres(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer closeDB()

		return runDedupe(cmd.Context(), os.Stdout, pg, schema)
	},
}

func init() {
	rootCmd.AddCommand(dedupeCmd)

	dedupeCmd.Flags().StringVar(&dedupeTable, "table", "", "Destination table")
	dedupeCmd.Flags().StringVar(&dedupeSheetID, "sheet", "", "Only consider records of this sheet")
	dedupeCmd.Flags().BoolVar(&dedupeConfirm, "confirm", false, "Delete the duplicates found")
	_ = dedupeCmd.MarkFlagRequired("table")
}

// dedupeStore is the store surface the dedupe command needs.
type dedupeStore interface {
	Query(ctx context.Context, table string, filter store.Filter) ([]types.StoredRecord, error)
	Delete(ctx context.Context, table string, ids []string) (int, error)
}

func runDedupe(ctx context.Context, out io.Writer, records dedupeStore, schema *types.TableSchema) error {
	stored, err := records.Query(ctx, schema.Table, store.Filter{SourceSheetID: dedupeSheetID})
	if err != nil {
		return err
	}

	result := dedupe.ByContentKey(dedupe.FromStored(stored), schema.ContentKey)
	fmt.Fprintf(out, "Scanned %d record(s) in %s, %d duplicate group(s)\n",
		len(stored), schema.Table, len(result.Groups))

	for _, g := range result.Groups {
		fmt.Fprintf(out, "\n%s\n", g.Key)
		fmt.Fprintf(out, "  keep    %s  (%s)\n", g.Keeper.ID, g.Keeper.Key)
		for _, it := range g.Removed {
			fmt.Fprintf(out, "  remove  %s  (%s)\n", it.ID, it.Key)
		}
	}

	ids := result.RemovedIDs()
	if len(ids) == 0 {
		return nil
	}
	writeSourceRows(out, result.Groups)
	if !dedupeConfirm {
		fmt.Fprintf(out, "\n%d record(s) would be removed. Re-run with --confirm to delete them.\n", len(ids))
		return nil
	}

	deleted, err := records.Delete(ctx, schema.Table, ids)
	if err != nil {
		return err
	}
	logger.Info("Removed content duplicates",
		zap.String("table", schema.Table),
		zap.Int("groups", len(result.Groups)),
		zap.Int("deleted", deleted))
	fmt.Fprintf(out, "\nDeleted %d record(s).\n", deleted)
	return nil
}

// writeSourceRows lists the sheet rows of the removed copies. Row numbers
// are 1-based data rows, as an operator counts them below the header.
func writeSourceRows(out io.Writer, groups []dedupe.Group) {
	var keys []types.RecordKey
	for _, g := range groups {
		for _, it := range g.Removed {
			keys = append(keys, it.Key)
		}
	}
	if len(keys) == 0 {
		return
	}

	fmt.Fprintln(out, "\nWARNING: sync recreates a removed record while its source row exists.")
	fmt.Fprintln(out, "Delete or correct these rows in the sheet as well:")
	for _, k := range keys {
		fmt.Fprintf(out, "  sheet %s, data row %d\n", k.SourceSheetID, k.RowIndex+1)
	}
}
