// =============================================================================
// Sheet Sync - CSV Parser Module
// =============================================================================
//
// This module is responsible for parsing CSV files and CSV exports of online
// spreadsheets into a types.Sheet. It handles:
//   - Different delimiters (comma, pipe, tab, etc.)
//   - Multi-line headers
//   - Custom data start rows
//   - Different encodings (UTF-8 with or without BOM, Big5, GBK, UTF-16)
//   - Duplicate and empty headers
//
// ROW INDEXES:
//   Every data row keeps its position, including rows whose cells are all
//   blank (",,,"). The 0-based row index is half of the idempotency key of a
//   record, so dropping such rows here would shift every later row between
//   syncs. Lines with no content at all are skipped by encoding/csv.
//
// The XLSX reader shares BuildSheet so both formats produce identical
// headers and indexes.
//
// =============================================================================

package csvparser

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/ginjaninja78/sheet-sync/internal/types"
)

// =============================================================================
// SETTINGS
// =============================================================================

// Settings contains settings for parsing a sheet export.
type Settings struct {
	// Delimiter is the character used to separate fields.
	// Common values: "," (comma), "|" (pipe), "\t" or "tab"
	// Default: ","
	Delimiter string `yaml:"delimiter"`

	// HeaderRows is the number of header rows. Multi-line headers are merged
	// column by column with a space.
	// Default: 1
	HeaderRows int `yaml:"header_rows"`

	// DataStartRow is the 1-based row number where the data begins.
	// Default: HeaderRows + 1
	DataStartRow int `yaml:"data_start_row"`

	// Encoding is the character encoding of the file.
	// Supported: "utf-8", "utf-8-bom", "big5", "gbk", "utf-16le", "utf-16be",
	// "windows-1252", "iso-8859-1"
	// Default: "utf-8"
	Encoding string `yaml:"encoding"`
}

// ApplyDefaults sets default values for any unset option.
func (s *Settings) ApplyDefaults() {
	if s.Delimiter == "" {
		s.Delimiter = ","
	}
	if s.HeaderRows <= 0 {
		s.HeaderRows = 1
	}
	if s.DataStartRow <= 0 {
		s.DataStartRow = s.HeaderRows + 1
	}
	if s.Encoding == "" {
		s.Encoding = "utf-8"
	}
}

// =============================================================================
// PARSER FUNCTIONS
// =============================================================================

// Parse reads a CSV file and returns the parsed sheet.
//
// PARAMETERS:
//   - filePath: The path to the CSV file.
//   - settings: The parsing settings from the sheet configuration.
//
// RETURNS:
//   - The parsed sheet, with one RawRow per data row.
//   - An error if the file cannot be read or parsed.
func Parse(filePath string, settings Settings) (*types.Sheet, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return ParseReader(file, settings)
}

// ParseReader parses CSV content from any reader, such as the body of an
// HTTP response.
//
// PARSING PROCESS:
//  1. Decode the input with the configured encoding
//  2. Configure the CSV reader with the configured delimiter
//  3. Read all records
//  4. Merge header rows and build the data rows
func ParseReader(r io.Reader, settings Settings) (*types.Sheet, error) {
	settings.ApplyDefaults()

	decoder, err := decoderFor(settings.Encoding)
	if err != nil {
		return nil, err
	}

	// BOMOverride strips a UTF-8 BOM and switches to UTF-16 when the input
	// starts with a UTF-16 BOM.
	decoded := transform.NewReader(bufio.NewReader(r), unicode.BOMOverride(decoder.NewDecoder()))

	csvReader := csv.NewReader(decoded)
	configureReader(csvReader, settings)

	allRows, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}

	return BuildSheet(allRows, settings)
}

// BuildSheet turns raw records (header rows included) into a Sheet.
func BuildSheet(allRows [][]string, settings Settings) (*types.Sheet, error) {
	settings.ApplyDefaults()

	if len(allRows) == 0 {
		return nil, fmt.Errorf("sheet is empty")
	}

	headers, err := extractHeaders(allRows, settings)
	if err != nil {
		return nil, fmt.Errorf("failed to extract headers: %w", err)
	}

	return &types.Sheet{
		Headers: headers,
		Rows:    extractDataRows(allRows, headers, settings),
	}, nil
}

// configureReader configures the CSV reader based on the settings.
func configureReader(reader *csv.Reader, settings Settings) {
	switch settings.Delimiter {
	case "\\t", "\t", "tab", "TAB":
		reader.Comma = '\t'
	case "|", "pipe", "PIPE":
		reader.Comma = '|'
	case ";", "semicolon":
		reader.Comma = ';'
	default:
		if len(settings.Delimiter) > 0 {
			reader.Comma = []rune(settings.Delimiter)[0]
		} else {
			reader.Comma = ','
		}
	}

	// Exports from online sheets often have ragged trailing columns.
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
}

// decoderFor returns the text encoding for a configured encoding name.
func decoderFor(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), "_", "-")) {
	case "", "utf-8", "utf8", "utf-8-bom":
		return unicode.UTF8, nil
	case "big5", "big-5", "cp950":
		return traditionalchinese.Big5, nil
	case "gbk", "cp936", "gb2312":
		return simplifiedchinese.GBK, nil
	case "gb18030":
		return simplifiedchinese.GB18030, nil
	case "utf-16", "utf-16le":
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), nil
	case "utf-16be":
		return unicode.UTF16(unicode.BigEndian, unicode.UseBOM), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252, nil
	case "iso-8859-1", "latin1", "latin-1":
		return charmap.ISO8859_1, nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
}

// extractHeaders extracts and merges headers. Columns without a header
// are named after their position by cleanHeaders.
//
// MULTI-LINE HEADER HANDLING:
//
//	Row 1: "Transaction", "", "Policy", ""
//	Row 2: "Number", "Amount", "Number", "Date"
//	Result: "Transaction Number", "Amount", "Policy Number", "Date"
func extractHeaders(allRows [][]string, settings Settings) ([]string, error) {
	if len(allRows) < settings.HeaderRows {
		return nil, fmt.Errorf("sheet has fewer rows than header_rows setting")
	}

	// The header row is widened to the widest row so that cells past the
	// last header (XLSX trims trailing blank header cells) get Column_N names
	// instead of being dropped.
	maxCols := 0
	for _, row := range allRows {
		if len(row) > maxCols {
			maxCols = len(row)
		}
	}

	headers := make([]string, maxCols)
	for col := 0; col < maxCols; col++ {
		var parts []string
		for row := 0; row < settings.HeaderRows; row++ {
			if col < len(allRows[row]) {
				value := strings.TrimSpace(allRows[row][col])
				if value != "" {
					parts = append(parts, value)
				}
			}
		}
		headers[col] = strings.Join(parts, " ")
	}

	return cleanHeaders(headers), nil
}

// cleanHeaders trims headers, names empty ones after their column position
// and suffixes repeated ones (name, name_2, name_3) so that no column is lost
// when rows are keyed by header.
func cleanHeaders(headers []string) []string {
	cleaned := make([]string, len(headers))
	seen := make(map[string]int, len(headers))

	for i, header := range headers {
		header = strings.TrimSpace(strings.TrimPrefix(header, "\ufeff"))
		if header == "" {
			header = fmt.Sprintf("Column_%d", i+1)
		}

		seen[header]++
		if n := seen[header]; n > 1 {
			candidate := fmt.Sprintf("%s_%d", header, n)
			for seen[candidate] > 0 {
				n++
				candidate = fmt.Sprintf("%s_%d", header, n)
			}
			seen[candidate]++
			header = candidate
		}

		cleaned[i] = header
	}

	return cleaned
}

// extractDataRows builds one RawRow per record from the data start row on.
// Headers span the widest row, so no cell is dropped; missing cells become "".
func extractDataRows(allRows [][]string, headers []string, settings Settings) []types.RawRow {
	startIndex := settings.DataStartRow - 1
	if startIndex < settings.HeaderRows {
		startIndex = settings.HeaderRows
	}
	if startIndex >= len(allRows) {
		return []types.RawRow{}
	}

	rows := make([]types.RawRow, 0, len(allRows)-startIndex)
	for i := startIndex; i < len(allRows); i++ {
		record := allRows[i]
		values := make([]string, len(headers))
		for col := range headers {
			if col < len(record) {
				values[col] = record[col]
			}
		}

		rows = append(rows, types.RawRow{
			Index:   i - startIndex,
			Headers: headers,
			Values:  values,
		})
	}

	return rows
}
