package xlsxparser

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/sheet-sync/internal/csvparser"
	"github.com/ginjaninja78/sheet-sync/internal/types"
)

// writeWorkbook saves a workbook with the given worksheets in order.
func writeWorkbook(t *testing.T, name string, sheets []string, rows map[string][][]interface{}) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, sheet := range sheets {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", sheet))
		} else {
			_, err := f.NewSheet(sheet)
			require.NoError(t, err)
		}
		for r, row := range rows[sheet] {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			require.NoError(t, err)
			values := row
			require.NoError(t, f.SetSheetRow(sheet, cell, &values))
		}
	}

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestReadSheet_FirstWorksheetByDefault(t *testing.T) {
	path := writeWorkbook(t, "attendance.xlsx", []string{"五月", "六月"}, map[string][][]interface{}{
		"五月": {
			{"日期", "員工編號", "備註"},
			{"2025/05/01", "E001", "ok"},
			{},
			{"2025/05/03", "E002"},
		},
		"六月": {
			{"日期"},
			{"2025/06/01"},
		},
	})

	sheet, err := ReadSheet(path, "", csvparser.Settings{})
	require.NoError(t, err)

	assert.Equal(t, "五月", sheet.Name)
	assert.Equal(t, []string{"日期", "員工編號", "備註"}, sheet.Headers)
	require.Len(t, sheet.Rows, 3)
	assert.True(t, sheet.Rows[1].IsBlank())
	assert.Equal(t, 2, sheet.Rows[2].Index)
	assert.Equal(t, []string{"2025/05/03", "E002", ""}, sheet.Rows[2].Values)
}

func TestReadSheet_KeepsCellsPastLastHeader(t *testing.T) {
	path := writeWorkbook(t, "claims.xlsx", []string{"claims"}, map[string][][]interface{}{
		"claims": {
			{"員工編號", "金額", ""},
			{"E001", "500", "待補收據"},
		},
	})

	sheet, err := ReadSheet(path, "", csvparser.Settings{})
	require.NoError(t, err)

	assert.Equal(t, []string{"員工編號", "金額", "Column_3"}, sheet.Headers)
	require.Len(t, sheet.Rows, 1)
	assert.Equal(t, []string{"E001", "500", "待補收據"}, sheet.Rows[0].Values)
}

func TestReadSheet_NamedWorksheet(t *testing.T) {
	path := writeWorkbook(t, "book.xlsx", []string{"A", "June"}, map[string][][]interface{}{
		"A":    {{"x"}, {"1"}},
		"June": {{"日期"}, {"2025/06/01"}},
	})

	sheet, err := ReadSheet(path, " june ", csvparser.Settings{})
	require.NoError(t, err)
	assert.Equal(t, "June", sheet.Name)
	assert.Equal(t, []string{"日期"}, sheet.Headers)

	_, err = ReadSheet(path, "missing", csvparser.Settings{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestWorksheets(t *testing.T) {
	path := writeWorkbook(t, "book.xlsx", []string{"one", "two"}, map[string][][]interface{}{
		"one": {{"a"}},
		"two": {{"b"}},
	})

	names, err := Worksheets(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, names)
}

func TestParseTemplate_SingleSheetUsesFileName(t *testing.T) {
	path := writeWorkbook(t, "Attendance.xlsx", []string{"fields"}, map[string][][]interface{}{
		"fields": {
			{"Field", "Aliases", "Type", "Required", "Content Key"},
			{"employee_id", "員工編號, Employee ID", "text", "required", "identifier"},
			{"record_date", "日期；Date", "datetime", "yes", "date"},
			{"hours", "時數", "number", "", ""},
			{"", "ignored", "text", "", ""},
			{"is_overtime", "加班", "bool", "no", "label"},
		},
	})

	schemas, err := ParseTemplate(path)
	require.NoError(t, err)
	require.Len(t, schemas, 1)

	schema := schemas[0]
	assert.Equal(t, "attendance", schema.Table)
	require.Len(t, schema.Fields, 4)

	assert.Equal(t, types.FieldSpec{
		Name:     "employee_id",
		Required: true,
		Type:     types.TypeText,
		Aliases:  []string{"員工編號", "Employee ID"},
	}, schema.Fields[0])
	assert.Equal(t, types.TypeDate, schema.Fields[1].Type)
	assert.Equal(t, []string{"日期", "Date"}, schema.Fields[1].Aliases)
	assert.False(t, schema.Fields[2].Required)
	assert.Equal(t, types.TypeBoolean, schema.Fields[3].Type)

	require.NotNil(t, schema.ContentKey)
	assert.Equal(t, types.ContentKeySpec{
		Identifier: "employee_id",
		Date:       "record_date",
		Label:      "is_overtime",
	}, *schema.ContentKey)
}

func TestParseTemplate_MultiSheet(t *testing.T) {
	path := writeWorkbook(t, "tables.xlsx", []string{"payroll", "_notes", "Expenses"}, map[string][][]interface{}{
		"payroll":  {{"Field"}, {"amount", "金額", "currency", "required"}},
		"_notes":   {{"anything"}},
		"Expenses": {{"Field"}, {"title", "項目", "text", "required"}},
	})

	schemas, err := ParseTemplate(path)
	require.NoError(t, err)
	require.Len(t, schemas, 2)

	assert.Equal(t, "payroll", schemas[0].Table)
	assert.Equal(t, types.TypeCurrency, schemas[0].Fields[0].Type)
	assert.Nil(t, schemas[0].ContentKey)
	assert.Equal(t, "expenses", schemas[1].Table)
}
