package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ginjaninja78/sheet-sync/internal/apperrors"
	"github.com/ginjaninja78/sheet-sync/internal/store"
	"github.com/ginjaninja78/sheet-sync/internal/types"
)

var classHeaders = []string{"姓名", "email", "上課日期", "授課老師"}

func classSheet() types.SourceSheet {
	return types.SourceSheet{ID: "class-2025", Name: "課程紀錄", DestinationTable: "class_records", Enabled: true}
}

func classMappings() []types.ColumnMapping {
	return []types.ColumnMapping{
		{SourceHeader: "姓名", Field: "student_name", Type: types.TypeText},
		{SourceHeader: "email", Field: "student_email", Type: types.TypeText, Required: true},
		{SourceHeader: "上課日期", Field: "class_date", Type: types.TypeDate},
		{SourceHeader: "授課老師", Field: "teacher_name", Type: types.TypeText},
	}
}

func staticReader(headers []string, rows ...[]string) Reader {
	return ReaderFunc(func(ctx context.Context) (*types.Sheet, error) {
		sheet := &types.Sheet{Headers: headers}
		for i, values := range rows {
			sheet.Rows = append(sheet.Rows, types.RawRow{Index: i, Headers: headers, Values: values})
		}
		return sheet, nil
	})
}

func classJob(reader Reader) Job {
	return Job{Sheet: classSheet(), Mappings: classMappings(), Reader: reader}
}

func TestRun_ValidRowIsStored(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	syncer := NewSyncer(mem, zap.NewNop(), Options{})

	report, err := syncer.Run(ctx, classJob(staticReader(classHeaders,
		[]string{"張小明", "ming@example.com", "2025-01-15", "王老師"})))
	require.NoError(t, err)

	assert.Equal(t, types.StateCompleted, report.State)
	assert.Equal(t, 1, report.RowsRead)
	assert.Equal(t, 1, report.Inserted)
	assert.Zero(t, report.InvalidCount)
	assert.Len(t, report.MappingUsed, 4)

	rows, err := mem.Query(ctx, "class_records", store.Filter{SourceSheetID: "class-2025"})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	rec := rows[0]
	assert.Equal(t, 0, rec.Key.RowIndex)
	assert.Equal(t, "張小明", rec.Fields["student_name"])
	assert.Equal(t, "ming@example.com", rec.Fields["student_email"])
	assert.Equal(t, "2025-01-15", rec.Fields["class_date"].(types.Date).String())
	assert.Equal(t, "王老師", rec.Fields["teacher_name"])
}

func TestRun_MissingRequiredIsReportedNotWritten(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	syncer := NewSyncer(mem, zap.NewNop(), Options{})

	report, err := syncer.Run(ctx, classJob(staticReader(classHeaders,
		[]string{"張小明", "ming@example.com", "2025-01-15", "王老師"},
		[]string{"李小華", "", "2025-01-16", "王老師"})))
	require.NoError(t, err)

	assert.Equal(t, 1, report.Inserted)
	assert.Equal(t, 1, report.InvalidCount)
	require.Len(t, report.InvalidRows, 1)
	assert.Equal(t, 1, report.InvalidRows[0].RowIndex)
	assert.Equal(t, []string{"missing required field: student_email"}, report.InvalidRows[0].Reasons)
	assert.Equal(t, 1, mem.Count("class_records"))
}

func TestRun_Idempotent(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	syncer := NewSyncer(mem, zap.NewNop(), Options{})
	job := classJob(staticReader(classHeaders,
		[]string{"張小明", "ming@example.com", "2025-01-15", "王老師"},
		[]string{"李小華", "hua@example.com", "2025/1/16 下午3:27", "陳老師"},
		[]string{"", "", "", ""}))

	first, err := syncer.Run(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Inserted)
	assert.Equal(t, 1, first.Empty)

	second, err := syncer.Run(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 2, second.Updated)
	assert.Equal(t, 2, mem.Count("class_records"))
}

func TestRun_BlankRowsAreEmptyNotInvalid(t *testing.T) {
	syncer := NewSyncer(store.NewMemory(), zap.NewNop(), Options{})

	report, err := syncer.Run(context.Background(), classJob(staticReader(classHeaders,
		[]string{"", " ", "", ""},
		[]string{"張小明", "ming@example.com", "2025-01-15", "王老師"},
		[]string{"", "", "", ""})))
	require.NoError(t, err)

	assert.Equal(t, 3, report.RowsRead)
	assert.Equal(t, 2, report.Empty)
	assert.Zero(t, report.InvalidCount)
	assert.Equal(t, 1, report.Inserted)
}

func TestRun_InvalidDetailsAreCapped(t *testing.T) {
	syncer := NewSyncer(store.NewMemory(), zap.NewNop(), Options{MaxInvalidDetails: 2})

	report, err := syncer.Run(context.Background(), classJob(staticReader(classHeaders,
		[]string{"a", "", "", ""},
		[]string{"b", "", "", ""},
		[]string{"c", "", "", ""})))
	require.NoError(t, err)

	assert.Equal(t, 3, report.InvalidCount)
	assert.Len(t, report.InvalidRows, 2)
	assert.True(t, report.InvalidTruncated)
}

func TestRun_UnmappedColumnsArePreserved(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	syncer := NewSyncer(mem, zap.NewNop(), Options{})
	headers := append(append([]string(nil), classHeaders...), "備註")

	report, err := syncer.Run(ctx, classJob(staticReader(headers,
		[]string{"張小明", "ming@example.com", "2025-01-15", "王老師", "補課"})))
	require.NoError(t, err)
	assert.Equal(t, []string{"備註"}, report.UnmappedHeaders)

	rows, err := mem.Query(ctx, "class_records", store.Filter{})
	require.NoError(t, err)
	assert.Equal(t, "補課", rows[0].Unmapped["備註"])
}

func TestRun_AutoMatchFromSchema(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	syncer := NewSyncer(mem, zap.NewNop(), Options{})

	schema := &types.TableSchema{
		Table: "expense_records",
		Fields: []types.FieldSpec{
			{Name: "employee_id", Required: true, Type: types.TypeText, Aliases: []string{"員工編號"}},
			{Name: "amount", Type: types.TypeCurrency, Aliases: []string{"金額"}},
		},
	}
	job := Job{
		Sheet:     types.SourceSheet{ID: "exp", DestinationTable: "expense_records", Enabled: true},
		Schema:    schema,
		AutoMatch: true,
		Reader:    staticReader([]string{"員工編號", "金額"}, []string{"E001", "NT$86,000"}),
	}

	report, err := syncer.Run(ctx, job)
	require.NoError(t, err)
	require.Len(t, report.MappingUsed, 2)
	assert.Equal(t, types.OriginMatched, report.MappingUsed[0].Origin)

	rows, err := mem.Query(ctx, "expense_records", store.Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, decimal.NewFromInt(86000).Equal(rows[0].Fields["amount"].(decimal.Decimal)))
}

func TestRun_ContentDuplicatesAreReportedOnly(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	syncer := NewSyncer(mem, zap.NewNop(), Options{})

	schema := &types.TableSchema{
		Table: "expense_records",
		Fields: []types.FieldSpec{
			{Name: "employee_id", Required: true, Type: types.TypeText},
			{Name: "record_date", Type: types.TypeDate},
			{Name: "amount", Type: types.TypeCurrency},
		},
		ContentKey: &types.ContentKeySpec{Identifier: "employee_id", Date: "record_date", Amount: "amount"},
	}
	job := Job{
		Sheet:  types.SourceSheet{ID: "exp", DestinationTable: "expense_records", Enabled: true},
		Schema: schema,
		Mappings: []types.ColumnMapping{
			{SourceHeader: "id", Field: "employee_id"},
			{SourceHeader: "date", Field: "record_date"},
			{SourceHeader: "amount", Field: "amount"},
		},
		Reader: staticReader([]string{"id", "date", "amount"},
			[]string{"E001", "2025/03/01", "$4,000.00"},
			[]string{"E002", "2025/03/01", "100"},
			[]string{"e001", "2025-03-01", "4000"}),
	}

	report, err := syncer.Run(ctx, job)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Inserted)
	assert.Zero(t, report.DuplicatesRemoved)
	require.Len(t, report.ContentDuplicates, 1)
	assert.Equal(t, 2, report.ContentDuplicates[0].Keeper.Key.RowIndex)
	assert.Equal(t, 3, mem.Count("expense_records"))
}

func TestRun_IdempotencyDuplicatesCollapsed(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	syncer := NewSyncer(mem, zap.NewNop(), Options{})

	reader := ReaderFunc(func(ctx context.Context) (*types.Sheet, error) {
		return &types.Sheet{
			Headers: classHeaders,
			Rows: []types.RawRow{
				{Index: 0, Headers: classHeaders, Values: []string{"舊", "a@example.com", "", ""}},
				{Index: 0, Headers: classHeaders, Values: []string{"新", "a@example.com", "", ""}},
			},
		}, nil
	})

	report, err := syncer.Run(ctx, classJob(reader))
	require.NoError(t, err)
	assert.Equal(t, 1, report.DuplicatesRemoved)
	assert.Equal(t, 1, report.Inserted)

	rows, err := mem.Query(ctx, "class_records", store.Filter{})
	require.NoError(t, err)
	assert.Equal(t, "新", rows[0].Fields["student_name"])
}

func TestRun_DisabledSheet(t *testing.T) {
	job := classJob(staticReader(classHeaders))
	job.Sheet.Enabled = false

	report, err := NewSyncer(store.NewMemory(), nil, Options{}).Run(context.Background(), job)
	assert.Nil(t, report)
	assert.ErrorIs(t, err, apperrors.ErrSheetDisabled)
}

func TestRun_SourceReadFailure(t *testing.T) {
	mem := store.NewMemory()
	reader := ReaderFunc(func(ctx context.Context) (*types.Sheet, error) {
		return nil, errors.New("403 forbidden")
	})

	report, err := NewSyncer(mem, zap.NewNop(), Options{}).Run(context.Background(), classJob(reader))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrSourceRead)

	assert.Equal(t, types.StateFailed, report.State)
	assert.Equal(t, types.StateReading, report.FailedStep)
	assert.Contains(t, report.Error, "403 forbidden")
	assert.Zero(t, report.RowsRead)

	logs := mem.SyncLogs("class-2025")
	require.Len(t, logs, 1)
	assert.Equal(t, types.StateFailed, logs[0].State)
	_, synced := mem.Sheet("class-2025")
	assert.True(t, synced)
}

// flakyStore fails every upsert after the first n.
type flakyStore struct {
	*store.Memory
	n     int
	calls int
}

func (f *flakyStore) Upsert(ctx context.Context, table string, key types.RecordKey, record types.CandidateRecord) (types.UpsertOutcome, error) {
	f.calls++
	if f.calls > f.n {
		return "", errors.New("connection refused")
	}
	return f.Memory.Upsert(ctx, table, key, record)
}

func TestRun_StoreFailureKeepsPartialReport(t *testing.T) {
	fs := &flakyStore{Memory: store.NewMemory(), n: 1}

	report, err := NewSyncer(fs, zap.NewNop(), Options{}).Run(context.Background(), classJob(staticReader(classHeaders,
		[]string{"a", "a@example.com", "", ""},
		[]string{"b", "b@example.com", "", ""},
		[]string{"c", "c@example.com", "", ""})))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)

	assert.Equal(t, types.StateFailed, report.State)
	assert.Equal(t, types.StateWriting, report.FailedStep)
	assert.Equal(t, 1, report.Inserted)
	assert.Equal(t, 3, report.RowsRead)
	assert.Equal(t, 1, fs.Count("class_records"))
}

// cancellingStore cancels the run after the first write.
type cancellingStore struct {
	*store.Memory
	cancel context.CancelFunc
}

func (c *cancellingStore) Upsert(ctx context.Context, table string, key types.RecordKey, record types.CandidateRecord) (types.UpsertOutcome, error) {
	outcome, err := c.Memory.Upsert(ctx, table, key, record)
	c.cancel()
	return outcome, err
}

func TestRun_CancellationKeepsCommittedRows(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cs := &cancellingStore{Memory: store.NewMemory(), cancel: cancel}

	report, err := NewSyncer(cs, zap.NewNop(), Options{}).Run(ctx, classJob(staticReader(classHeaders,
		[]string{"a", "a@example.com", "", ""},
		[]string{"b", "b@example.com", "", ""})))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, types.StateFailed, report.State)
	assert.Equal(t, 1, report.Inserted)
	assert.Equal(t, 1, cs.Count("class_records"))
}

func TestRun_RecordsCompletedSync(t *testing.T) {
	mem := store.NewMemory()
	finished := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	syncer := NewSyncer(mem, zap.NewNop(), Options{Now: func() time.Time { return finished }})

	_, err := syncer.Run(context.Background(), classJob(staticReader(classHeaders,
		[]string{"張小明", "ming@example.com", "2025-01-15", "王老師"})))
	require.NoError(t, err)

	sheet, ok := mem.Sheet("class-2025")
	require.True(t, ok)
	require.NotNil(t, sheet.LastSyncedAt)
	assert.Equal(t, finished, *sheet.LastSyncedAt)
	assert.Len(t, mem.SyncLogs("class-2025"), 1)
}

func TestRun_NoMappingsFails(t *testing.T) {
	job := classJob(staticReader([]string{"x"}, []string{"1"}))
	job.Mappings = nil

	report, err := NewSyncer(store.NewMemory(), zap.NewNop(), Options{}).Run(context.Background(), job)
	require.Error(t, err)
	assert.Equal(t, types.StateTransforming, report.FailedStep)
}

func TestTableFields(t *testing.T) {
	schema := &types.TableSchema{Fields: []types.FieldSpec{{Name: "a", Type: types.TypeDate}}}
	fields := tableFields(schema, []types.ColumnMapping{
		{Field: "a", Type: types.TypeText},
		{Field: "b", Type: types.TypeBoolean},
	})

	require.Len(t, fields, 2)
	assert.Equal(t, types.TypeDate, fields[0].Type)
	assert.Equal(t, "b", fields[1].Name)
	assert.Equal(t, types.TypeBoolean, fields[1].Type)
}
