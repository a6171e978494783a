// =============================================================================
// Sheet Sync - Report File Manager
// =============================================================================
//
// This module writes the files a sync run leaves behind:
//   - the JSON sync report of each run
//   - a CSV of the run's invalid rows, next to the report, for the sheet owner
//   - a plain-text summary of a multi-sheet sync
//
// RETENTION:
//   Report files older than the configured retention are removed by
//   CleanOldReports. The sync log table in the database is the durable
//   history; report files are a convenience copy.
//
// =============================================================================

package utils

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ginjaninja78/sheet-sync/internal/types"
)

// DefaultNameFormat is used when no report name format is configured.
const DefaultNameFormat = "{sheet}_{timestamp}_{uuid}"

// =============================================================================
// FILE MANAGER
// =============================================================================

// FileManager handles report files.
type FileManager struct {
	// ReportsDir is the directory reports are written to.
	ReportsDir string

	// NameFormat is the report file name format; see generateName.
	NameFormat string

	// Retention is the age after which report files are removed. Zero keeps
	// reports forever.
	Retention time.Duration

	now func() time.Time
}

// ReportFiles lists the files written for one run.
type ReportFiles struct {
	Report      string
	InvalidRows string // empty when the run had no invalid rows
}

// NewFileManager creates a new FileManager.
func NewFileManager(reportsDir, nameFormat string, retention time.Duration) *FileManager {
	if nameFormat == "" {
		nameFormat = DefaultNameFormat
	}
	return &FileManager{
		ReportsDir: reportsDir,
		NameFormat: nameFormat,
		Retention:  retention,
		now:        time.Now,
	}
}

func (fm *FileManager) clock() time.Time {
	if fm.now == nil {
		return time.Now()
	}
	return fm.now()
}

// =============================================================================
// DIRECTORY MANAGEMENT
// =============================================================================

// EnsureDirectories creates the reports directory if it doesn't exist.
func (fm *FileManager) EnsureDirectories() error {
	if err := os.MkdirAll(fm.ReportsDir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", fm.ReportsDir, err)
	}
	return nil
}

// =============================================================================
// OUTPUT FILE NAMING
// =============================================================================

// generateName builds a report file name from format at time now.
//
// PARAMETERS:
//   - format: The format string for the file name.
//     Placeholders:
//     {uuid}      - A random UUID
//     {timestamp} - Current timestamp (YYYYMMDD_HHMMSS)
//     {date}      - Current date (YYYYMMDD)
//     {time}      - Current time (HHMMSS)
//     {sheet}     - Source sheet id
//     {table}     - Destination table
//     {state}     - Final run state
//   - params: A map of placeholder values.
//   - ext: The extension to ensure, for example ".json".
//
// EXAMPLE:
//
//	format: "{sheet}_{timestamp}_{uuid}"
//	params: {"sheet": "expense-may"}
//	output: "expense-may_20250115_143022_a1b2c3d4-e5f6-7890-abcd-ef1234567890.json"
func generateName(format string, params map[string]string, ext string, now time.Time) string {
	replacements := map[string]string{
		"{uuid}":      uuid.New().String(),
		"{timestamp}": now.Format("20060102_150405"),
		"{date}":      now.Format("20060102"),
		"{time}":      now.Format("150405"),
	}
	for key, value := range params {
		replacements["{"+key+"}"] = value
	}

	result := format
	for placeholder, value := range replacements {
		result = strings.ReplaceAll(result, placeholder, value)
	}

	if ext != "" && !strings.HasSuffix(strings.ToLower(result), strings.ToLower(ext)) {
		result += ext
	}
	return result
}

// =============================================================================
// RUN REPORTS
// =============================================================================

// WriteReport writes the JSON report of a run and, when the run rejected
// rows, a CSV of the invalid rows next to it.
//
// RETURNS:
//   - The paths written.
//   - An error if a file cannot be written.
func (fm *FileManager) WriteReport(report *types.SyncReport) (*ReportFiles, error) {
	if err := fm.EnsureDirectories(); err != nil {
		return nil, err
	}

	base := generateName(fm.NameFormat, map[string]string{
		"sheet": report.SheetID,
		"table": report.Table,
		"state": string(report.State),
	}, "", fm.clock())

	files := &ReportFiles{Report: filepath.Join(fm.ReportsDir, base+".json")}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(files.Report, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write report: %w", err)
	}

	if len(report.InvalidRows) == 0 {
		return files, nil
	}

	files.InvalidRows = filepath.Join(fm.ReportsDir, base+"_invalid.csv")
	file, err := os.Create(files.InvalidRows)
	if err != nil {
		return nil, fmt.Errorf("failed to create invalid rows file: %w", err)
	}
	defer file.Close()

	if err := WriteInvalidRows(file, report.InvalidRows); err != nil {
		return nil, err
	}
	return files, nil
}

// WriteInvalidRows writes invalid rows as CSV: the 1-based sheet row number
// and the joined reasons. A UTF-8 BOM is written first so spreadsheet
// programs open the Chinese reasons correctly.
func WriteInvalidRows(w io.Writer, rows []types.InvalidRow) error {
	if _, err := io.WriteString(w, "\ufeff"); err != nil {
		return fmt.Errorf("failed to write invalid rows: %w", err)
	}

	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"row", "reasons"}); err != nil {
		return fmt.Errorf("failed to write invalid rows: %w", err)
	}
	for _, row := range rows {
		record := []string{strconv.Itoa(row.RowIndex), strings.Join(row.Reasons, "; ")}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write invalid rows: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush invalid rows: %w", err)
	}
	return nil
}

// =============================================================================
// RETENTION
// =============================================================================

// CleanOldReports removes report files older than the retention period.
//
// RETURNS:
//   - The number of files removed.
//   - An error if the directory cannot be read. Files that fail to be
//     removed are reported together after the sweep.
func (fm *FileManager) CleanOldReports() (int, error) {
	if fm.Retention <= 0 {
		return 0, nil
	}

	entries, err := os.ReadDir(fm.ReportsDir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read reports directory: %w", err)
	}

	cutoff := fm.clock().Add(-fm.Retention)
	removed := 0
	var errs []error

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".json" && ext != ".csv" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(fm.ReportsDir, entry.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	return removed, errors.Join(errs...)
}

// =============================================================================
// PROCESSING SUMMARY
// =============================================================================

// WriteSummary writes a plain-text summary of a multi-sheet sync.
func WriteSummary(w io.Writer, reports []*types.SyncReport, elapsed time.Duration) error {
	writer := bufio.NewWriter(w)

	var completed, failed, inserted, updated, invalid, duplicates int
	for _, r := range reports {
		if r.Failed() {
			failed++
		} else {
			completed++
		}
		inserted += r.Inserted
		updated += r.Updated
		invalid += r.InvalidCount
		duplicates += r.DuplicatesRemoved
	}

	fmt.Fprintf(writer, "\n=== Sync Complete ===\n")
	for _, r := range reports {
		if r.Failed() {
			fmt.Fprintf(writer, "  ✗ %-24s failed at %s: %s\n", r.SheetID, r.FailedStep, r.Error)
			continue
		}
		fmt.Fprintf(writer, "  ✓ %-24s -> %-20s read %d, inserted %d, updated %d, invalid %d, empty %d\n",
			r.SheetID, r.Table, r.RowsRead, r.Inserted, r.Updated, r.InvalidCount, r.Empty)
	}

	fmt.Fprintf(writer, "\nSheets:          %d\n", len(reports))
	fmt.Fprintf(writer, "Completed:       %d\n", completed)
	fmt.Fprintf(writer, "Failed:          %d\n", failed)
	fmt.Fprintf(writer, "Inserted:        %d\n", inserted)
	fmt.Fprintf(writer, "Updated:         %d\n", updated)
	fmt.Fprintf(writer, "Invalid rows:    %d\n", invalid)
	fmt.Fprintf(writer, "Duplicates:      %d\n", duplicates)
	fmt.Fprintf(writer, "Time elapsed:    %s\n", elapsed.Round(time.Millisecond))

	return writer.Flush()
}
