package converter

import (
	"sort"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ginjaninja78/sheet-sync/internal/types"
)

func classMappings() []types.ColumnMapping {
	return []types.ColumnMapping{
		{SourceHeader: "姓名", Field: "student_name", Type: types.TypeText},
		{SourceHeader: "email", Field: "student_email", Type: types.TypeText, Required: true},
		{SourceHeader: "上課日期", Field: "class_date", Type: types.TypeDate},
		{SourceHeader: "授課老師", Field: "teacher_name", Type: types.TypeText},
	}
}

func newTransformer(t *testing.T, rules []CleanupRule) *Transformer {
	t.Helper()
	tr, err := NewTransformer(rules, zap.NewNop())
	require.NoError(t, err)
	return tr
}

func TestTransform_ClassRow(t *testing.T) {
	headers := []string{"姓名", "email", "上課日期", "授課老師"}
	row := types.RawRow{
		Index:   0,
		Headers: headers,
		Values:  []string{"張小明", "ming@example.com", "2025-01-15", "王老師"},
	}

	record := newTransformer(t, nil).Transform(row, classMappings(), "sheet-1", 0)

	assert.Equal(t, types.RecordKey{SourceSheetID: "sheet-1", RowIndex: 0}, record.Key)
	assert.Equal(t, "張小明", record.Fields["student_name"])
	assert.Equal(t, "ming@example.com", record.Fields["student_email"])
	assert.Equal(t, "2025-01-15", record.Fields["class_date"].(types.Date).String())
	assert.Equal(t, "王老師", record.Fields["teacher_name"])
	assert.Empty(t, record.Unmapped)
}

func TestTransform_NoInformationLoss(t *testing.T) {
	headers := []string{"姓名", "email", "備註", "上課日期", "Column_5", "授課老師"}
	row := types.RawRow{
		Index:   7,
		Headers: headers,
		Values:  []string{"張小明", "", "  請假補課 ", "garbage", "", "王老師"},
	}
	mappings := classMappings()

	record := newTransformer(t, nil).Transform(row, mappings, "sheet-1", 7)

	covered := make(map[string]bool)
	for _, m := range mappings {
		covered[m.SourceHeader] = true
	}
	for header := range record.Unmapped {
		covered[header] = true
	}
	var got []string
	for header := range covered {
		got = append(got, header)
	}
	sort.Strings(got)

	expected := append([]string(nil), headers...)
	sort.Strings(expected)
	assert.Equal(t, expected, got)

	// Unmapped values are kept verbatim, including blanks.
	assert.Equal(t, "  請假補課 ", record.Unmapped["備註"])
	assert.Equal(t, "", record.Unmapped["Column_5"])

	// Malformed and blank cells become nil without failing the row.
	assert.Nil(t, record.Fields["class_date"])
	assert.Nil(t, record.Fields["student_email"])
	assert.Equal(t, 7, record.Key.RowIndex)
}

func TestTransform_MappedHeaderMissingFromSheet(t *testing.T) {
	row := types.RawRow{Headers: []string{"姓名"}, Values: []string{"張小明"}}

	record := newTransformer(t, nil).Transform(row, classMappings(), "s", 0)

	require.Contains(t, record.Fields, "teacher_name")
	assert.Nil(t, record.Fields["teacher_name"])
	assert.Len(t, record.Fields, 4)
}

func TestTransform_BlankRowStillReturned(t *testing.T) {
	row := types.RawRow{
		Index:   3,
		Headers: []string{"姓名", "email", "上課日期", "授課老師"},
		Values:  []string{"", " ", "", ""},
	}

	record := newTransformer(t, nil).Transform(row, classMappings(), "s", 3)

	assert.Len(t, record.Fields, 4)
	for field, value := range record.Fields {
		assert.Nil(t, value, field)
	}
}

func TestTransform_CleanupRulesRunBeforeParsing(t *testing.T) {
	rules := []CleanupRule{
		{Header: "金額", Actions: []Action{{Type: "clear_if_equals", Values: []string{"待補"}}}},
		{Header: "狀態", Actions: []Action{{Type: "lookup", LookupTable: map[string]string{"已繳": "yes", "未繳": "no"}}}},
		{Header: "員工編號", Actions: []Action{{Type: "pad_zeros_to_length", Value: "4"}, {Type: "prepend_string", Value: "E"}}},
	}
	mappings := []types.ColumnMapping{
		{SourceHeader: "金額", Field: "amount", Type: types.TypeCurrency},
		{SourceHeader: "狀態", Field: "paid", Type: types.TypeBoolean},
		{SourceHeader: "員工編號", Field: "employee_id", Type: types.TypeText},
	}
	tr := newTransformer(t, rules)

	record := tr.Transform(types.RawRow{
		Headers: []string{"金額", "狀態", "員工編號"},
		Values:  []string{"待補", "已繳", "12"},
	}, mappings, "s", 0)

	assert.Nil(t, record.Fields["amount"])
	assert.Equal(t, true, record.Fields["paid"])
	assert.Equal(t, "E0012", record.Fields["employee_id"])

	record = tr.Transform(types.RawRow{
		Headers: []string{"金額", "狀態", "員工編號"},
		Values:  []string{"NT$1,500", "未繳", ""},
	}, mappings, "s", 1)

	assert.True(t, decimal.NewFromInt(1500).Equal(record.Fields["amount"].(decimal.Decimal)))
	assert.Equal(t, false, record.Fields["paid"])
	assert.Nil(t, record.Fields["employee_id"])
}

func TestTransformSheet_KeepsSourceOrder(t *testing.T) {
	sheet := &types.Sheet{
		Headers: []string{"姓名"},
		Rows: []types.RawRow{
			{Index: 0, Headers: []string{"姓名"}, Values: []string{"a"}},
			{Index: 1, Headers: []string{"姓名"}, Values: []string{""}},
			{Index: 2, Headers: []string{"姓名"}, Values: []string{"c"}},
		},
	}
	mappings := []types.ColumnMapping{{SourceHeader: "姓名", Field: "student_name", Type: types.TypeText}}

	records := newTransformer(t, nil).TransformSheet(sheet, mappings, "s")

	require.Len(t, records, 3)
	for i, r := range records {
		assert.Equal(t, i, r.Key.RowIndex)
	}
	assert.Equal(t, "c", records[2].Fields["student_name"])
}

func TestNewTransformer_InvalidRule(t *testing.T) {
	_, err := NewTransformer([]CleanupRule{{Header: "a", Actions: []Action{{Type: "explode"}}}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown action type")
}
