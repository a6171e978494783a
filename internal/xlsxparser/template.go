package xlsxparser

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/sheet-sync/internal/types"
)

// =============================================================================
// SCHEMA TEMPLATES
// =============================================================================
//
// A schema template describes one destination table, one field per row:
//
//   | Column A   | Column B                  | Column C  | Column D | Column E    |
//   |------------|---------------------------|-----------|----------|-------------|
//   | Field      | Aliases                   | Type      | Required | Content Key |
//   | record_date| 日期, Date                | date      | required | date        |
//   | amount     | 金額, 金额, Amount         | currency  | required | amount      |
//   | employee_id| 員工編號                   | text      | optional | identifier  |
//   | note       | 備註                       | text      |          |             |
//
// Aliases are separated by commas (half or full width), semicolons or new
// lines. The table name is the worksheet name unless the workbook has a
// single worksheet, in which case it is the file name.
//
// =============================================================================

// TemplateColumns defines which columns of a template hold which data.
// Column indices are 0-based (A=0, B=1, ...).
type TemplateColumns struct {
	FieldColumn      int
	AliasesColumn    int
	TypeColumn       int
	RequiredColumn   int
	ContentKeyColumn int

	// DataStartRow is the 0-based row where field rows begin.
	DataStartRow int
}

// DefaultTemplateColumns returns the default column configuration.
func DefaultTemplateColumns() TemplateColumns {
	return TemplateColumns{
		FieldColumn:      0, // Column A
		AliasesColumn:    1, // Column B
		TypeColumn:       2, // Column C
		RequiredColumn:   3, // Column D
		ContentKeyColumn: 4, // Column E
		DataStartRow:     1, // Row 2
	}
}

var aliasSeparators = regexp.MustCompile(`[,，;；\n]+`)

// ParseTemplate reads every worksheet of a template workbook as a table
// schema. Worksheets whose name starts with "_" are skipped.
func ParseTemplate(path string) ([]*types.TableSchema, error) {
	return ParseTemplateWithConfig(path, DefaultTemplateColumns())
}

// ParseTemplateWithConfig reads a template using a custom column layout.
func ParseTemplateWithConfig(path string, columns TemplateColumns) ([]*types.TableSchema, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open template file: %w", err)
	}
	defer f.Close()

	var names []string
	for _, name := range f.GetSheetList() {
		if !strings.HasPrefix(name, "_") {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("template file has no sheets")
	}

	var schemas []*types.TableSchema
	for _, name := range names {
		table := name
		if len(names) == 1 {
			table = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}

		schema, err := parseTemplateSheet(f, name, columns)
		if err != nil {
			return nil, fmt.Errorf("error parsing sheet '%s': %w", name, err)
		}
		schema.Table = strings.ToLower(strings.TrimSpace(table))
		schemas = append(schemas, schema)
	}

	return schemas, nil
}

func parseTemplateSheet(f *excelize.File, sheetName string, columns TemplateColumns) (*types.TableSchema, error) {
	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	schema := &types.TableSchema{}
	var contentKey types.ContentKeySpec

	for i := columns.DataStartRow; i < len(rows); i++ {
		row := rows[i]
		if len(row) == 0 || isRowEmpty(row) {
			continue
		}

		getCell := func(index int) string {
			if index >= 0 && index < len(row) {
				return strings.TrimSpace(row[index])
			}
			return ""
		}

		name := getCell(columns.FieldColumn)
		if name == "" {
			continue
		}

		field := types.FieldSpec{
			Name:     name,
			Type:     types.ParseTypeHint(getCell(columns.TypeColumn)),
			Required: isRequired(getCell(columns.RequiredColumn)),
		}
		for _, alias := range aliasSeparators.Split(getCell(columns.AliasesColumn), -1) {
			if alias = strings.TrimSpace(alias); alias != "" {
				field.Aliases = append(field.Aliases, alias)
			}
		}
		schema.Fields = append(schema.Fields, field)

		switch strings.ToLower(getCell(columns.ContentKeyColumn)) {
		case "identifier", "id":
			contentKey.Identifier = name
		case "date":
			contentKey.Date = name
		case "amount":
			contentKey.Amount = name
		case "label", "type":
			contentKey.Label = name
		}
	}

	if contentKey != (types.ContentKeySpec{}) {
		schema.ContentKey = &contentKey
	}

	return schema, nil
}

// isRequired normalizes the required column.
func isRequired(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "required", "req", "r", "yes", "y", "true", "1", "mandatory", "必填", "是":
		return true
	default:
		return false
	}
}
