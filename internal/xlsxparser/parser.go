// =============================================================================
// Sheet Sync - XLSX Parser
// =============================================================================
//
// This module reads XLSX workbooks in two roles:
//   - Source sheets: a worksheet whose rows are synced to a destination table
//     (ReadSheet / ReadSheetFrom).
//   - Schema templates: a worksheet describing the fields of a destination
//     table (ParseTemplate, see template.go).
//
// Worksheet rows go through csvparser.BuildSheet so headers, blank rows and
// row indexes behave exactly as they do for CSV exports.
//
// =============================================================================

package xlsxparser

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/sheet-sync/internal/csvparser"
	"github.com/ginjaninja78/sheet-sync/internal/types"
)

// ReadSheet reads one worksheet of an XLSX file.
//
// PARAMETERS:
//   - path: The path to the workbook.
//   - worksheet: The worksheet name. Empty selects the first worksheet.
//   - settings: Header and data start rows. Delimiter and encoding are ignored.
//
// RETURNS:
//   - The parsed sheet.
//   - An error if the workbook or worksheet cannot be read.
func ReadSheet(path, worksheet string, settings csvparser.Settings) (*types.Sheet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	return readWorksheet(f, worksheet, settings)
}

// ReadSheetFrom reads one worksheet of an XLSX workbook streamed from r.
func ReadSheetFrom(r io.Reader, worksheet string, settings csvparser.Settings) (*types.Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	return readWorksheet(f, worksheet, settings)
}

// Worksheets lists the worksheet names of a workbook in tab order.
func Worksheets(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	return f.GetSheetList(), nil
}

func readWorksheet(f *excelize.File, worksheet string, settings csvparser.Settings) (*types.Sheet, error) {
	name, err := resolveWorksheet(f, worksheet)
	if err != nil {
		return nil, err
	}

	rows, err := f.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows of worksheet %q: %w", name, err)
	}

	sheet, err := csvparser.BuildSheet(rows, settings)
	if err != nil {
		return nil, fmt.Errorf("worksheet %q: %w", name, err)
	}
	sheet.Name = name

	return sheet, nil
}

// resolveWorksheet picks the requested worksheet, matching names without
// regard to case or surrounding whitespace.
func resolveWorksheet(f *excelize.File, worksheet string) (string, error) {
	names := f.GetSheetList()
	if len(names) == 0 {
		return "", fmt.Errorf("workbook has no worksheets")
	}

	if strings.TrimSpace(worksheet) == "" {
		return names[0], nil
	}

	for _, name := range names {
		if strings.EqualFold(strings.TrimSpace(name), strings.TrimSpace(worksheet)) {
			return name, nil
		}
	}

	return "", fmt.Errorf("worksheet %q not found (available: %s)", worksheet, strings.Join(names, ", "))
}

// isRowEmpty checks if a row contains only empty cells.
func isRowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
