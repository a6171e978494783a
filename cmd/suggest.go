// =============================================================================
// Sheet Sync - Suggest Command
// =============================================================================
//
// The 'suggest' command reads a sheet's current headers and prints the
// mapping the matcher proposes for the sheet's destination schema, as YAML
// ready to paste into the sheet config. Nothing is written.
//
// COMMAND USAGE:
//   sheetsync suggest --sheet <id>
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ginjaninja78/sheet-sync/internal/apperrors"
	"github.com/ginjaninja78/sheet-sync/internal/config"
	"github.com/ginjaninja78/sheet-sync/internal/matcher"
	"github.com/ginjaninja78/sheet-sync/internal/types"
)

// suggestSheetID is the sheet to suggest mappings for.
var suggestSheetID string

var suggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Suggest column mappings for a sheet",
	Long: `The suggest command reads the sheet's headers and matches them against
the destination table's schema (field names and aliases). Declared mappings
are kept as they are; suggestions fill the remaining fields.

Each suggestion shows its confidence and how it was matched. Suggestions
below sync.min_match_confidence are listed as comments only.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return runSuggest(cmd.Context(), os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(suggestCmd)

	suggestCmd.Flags().StringVar(&suggestSheetID, "sheet", "", "Sheet id")
	_ = suggestCmd.MarkFlagRequired("sheet")
}

func runSuggest(ctx context.Context, out io.Writer) error {
	sheets, schemas, err := loadSheetsAndSchemas()
	if err != nil {
		return err
	}
	sheetCfg, ok := config.FindSheet(sheets, suggestSheetID)
	if !ok {
		return fmt.Errorf("sheet %s: %w", suggestSheetID, apperrors.ErrNotFound)
	}
	schema, ok := schemas[sheetCfg.Table]
	if !ok {
		return fmt.Errorf("no schema for table %s", sheetCfg.Table)
	}

	reader, err := sourceReader(logger)(sheetCfg)
	if err != nil {
		return err
	}
	sheet, err := reader.Read(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrSourceRead, err)
	}

	return writeSuggestion(out, sheet.Headers, schema, sheetCfg.Mappings, appConfig.Sync.MinMatchConfidence)
}

// writeSuggestion prints the matcher's view of headers against schema.
func writeSuggestion(out io.Writer, headers []string, schema *types.TableSchema, declared []types.ColumnMapping, minConfidence float64) error {
	suggestions := matcher.Suggest(headers, schema)
	resolved := matcher.Resolve(schema, declared, suggestions, minConfidence)
	unmapped, missing := matcher.Drift(headers, resolved)

	fmt.Fprintf(out, "# table: %s\n", schema.Table)
	for _, s := range suggestions {
		switch {
		case !s.Matched():
			fmt.Fprintf(out, "# %-24s <no match>\n", s.Field)
		case s.Confidence < minConfidence:
			fmt.Fprintf(out, "# %-24s %q (%.2f, %s, below threshold)\n", s.Field, s.Header, s.Confidence, s.Method)
		default:
			fmt.Fprintf(out, "# %-24s %q (%.2f, %s)\n", s.Field, s.Header, s.Confidence, s.Method)
		}
	}
	for _, h := range unmapped {
		fmt.Fprintf(out, "# unmapped header: %q\n", h)
	}
	for _, h := range missing {
		fmt.Fprintf(out, "# missing header: %q\n", h)
	}

	data, err := yaml.Marshal(struct {
		Mappings []types.ColumnMapping `yaml:"mappings"`
	}{resolved})
	if err != nil {
		return fmt.Errorf("failed to encode mappings: %w", err)
	}
	_, err = out.Write(data)
	return err
}
