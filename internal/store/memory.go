package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ginjaninja78/sheet-sync/internal/apperrors"
	"github.com/ginjaninja78/sheet-sync/internal/types"
)

// Memory is an in-process store used for dry runs and tests.
type Memory struct {
	mu       sync.Mutex
	tables   map[string]*memoryTable
	sheets   map[string]types.SourceSheet
	syncLogs []types.SyncReport
	now      func() time.Time
}

type memoryTable struct {
	rows  []*types.StoredRecord
	byKey map[types.RecordKey]*types.StoredRecord
}

// NewMemory creates an empty memory store.
func NewMemory() *Memory {
	return &Memory{
		tables: make(map[string]*memoryTable),
		sheets: make(map[string]types.SourceSheet),
		now:    time.Now,
	}
}

// WithClock replaces the store's time source.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) table(name string) *memoryTable {
	t, ok := m.tables[name]
	if !ok {
		t = &memoryTable{byKey: make(map[types.RecordKey]*types.StoredRecord)}
		m.tables[name] = t
	}
	return t
}

// Upsert writes a record under its idempotency key.
func (m *Memory) Upsert(ctx context.Context, table string, key types.RecordKey, record types.CandidateRecord) (types.UpsertOutcome, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if m.update(table, key, record) {
		return types.Updated, nil
	}

	err := m.insert(table, key, record)
	if err == nil {
		return types.Inserted, nil
	}
	if !errors.Is(err, apperrors.ErrConflict) {
		return "", err
	}

	// Lost the race to a concurrent insert of the same key.
	if m.update(table, key, record) {
		return types.Updated, nil
	}
	return "", fmt.Errorf("failed to upsert %s: %w", key, apperrors.ErrConflict)
}

func (m *Memory) update(table string, key types.RecordKey, record types.CandidateRecord) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.table(table).byKey[key]
	if !ok {
		return false
	}
	existing.Fields = cloneFields(record.Fields)
	existing.Unmapped = cloneUnmapped(record.Unmapped)
	existing.LastSyncedAt = m.now()
	return true
}

func (m *Memory) insert(table string, key types.RecordKey, record types.CandidateRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.insertLocked(m.table(table), key, record)
}

func (m *Memory) insertLocked(t *memoryTable, key types.RecordKey, record types.CandidateRecord) error {
	if _, exists := t.byKey[key]; exists {
		return apperrors.ErrConflict
	}
	now := m.now()
	stored := &types.StoredRecord{
		ID:           uuid.New(),
		Key:          key,
		Fields:       cloneFields(record.Fields),
		Unmapped:     cloneUnmapped(record.Unmapped),
		CreatedAt:    now,
		LastSyncedAt: now,
	}
	t.rows = append(t.rows, stored)
	t.byKey[key] = stored
	return nil
}

// Seed inserts a stored record as is, bypassing the uniqueness check. It
// exists to reproduce tables that already hold duplicates.
func (m *Memory) Seed(table string, record types.StoredRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.table(table)
	stored := record
	stored.Fields = cloneFields(record.Fields)
	stored.Unmapped = cloneUnmapped(record.Unmapped)
	t.rows = append(t.rows, &stored)
	if _, exists := t.byKey[record.Key]; !exists {
		t.byKey[record.Key] = &stored
	}
}

// Query returns copies of the stored records ordered by creation time.
func (m *Memory) Query(ctx context.Context, table string, filter Filter) ([]types.StoredRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tables[table]
	if !ok {
		return nil, fmt.Errorf("table %s: %w", table, apperrors.ErrNotFound)
	}

	var out []types.StoredRecord
	for _, r := range t.rows {
		if filter.SourceSheetID != "" && r.Key.SourceSheetID != filter.SourceSheetID {
			continue
		}
		rec := *r
		rec.Fields = cloneFields(r.Fields)
		rec.Unmapped = cloneUnmapped(r.Unmapped)
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Delete removes records by id and returns how many were removed.
func (m *Memory) Delete(ctx context.Context, table string, ids []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	remove := make(map[string]bool, len(ids))
	for _, id := range ids {
		remove[id] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tables[table]
	if !ok {
		return 0, fmt.Errorf("table %s: %w", table, apperrors.ErrNotFound)
	}

	kept := t.rows[:0]
	deleted := 0
	for _, r := range t.rows {
		if remove[r.ID.String()] {
			deleted++
			if t.byKey[r.Key] == r {
				delete(t.byKey, r.Key)
			}
			continue
		}
		kept = append(kept, r)
	}
	t.rows = kept

	// Re-point keys whose indexed row was removed at a surviving duplicate.
	for _, r := range t.rows {
		if _, ok := t.byKey[r.Key]; !ok {
			t.byKey[r.Key] = r
		}
	}

	return deleted, nil
}

// Count returns the number of rows in a table.
func (m *Memory) Count(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.tables[table]; ok {
		return len(t.rows)
	}
	return 0
}

// EnsureTable creates the table if needed. Memory tables are schemaless.
func (m *Memory) EnsureTable(ctx context.Context, table string, fields []types.FieldSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.table(table)
	return nil
}

// RecordSync registers the sheet, stores the report and marks the sheet
// synced when the run completed.
func (m *Memory) RecordSync(ctx context.Context, sheet types.SourceSheet, report *types.SyncReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.sheets[sheet.ID]; ok && sheet.LastSyncedAt == nil {
		sheet.LastSyncedAt = prev.LastSyncedAt
	}
	if report.State == types.StateCompleted {
		at := report.FinishedAt
		sheet.LastSyncedAt = &at
	}
	m.sheets[sheet.ID] = sheet
	m.syncLogs = append(m.syncLogs, *report)
	return nil
}

// Sheet returns the registered state of a source sheet.
func (m *Memory) Sheet(id string) (types.SourceSheet, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sheets[id]
	return s, ok
}

// SyncLogs returns the stored reports of a sheet, oldest first.
func (m *Memory) SyncLogs(sheetID string) []types.SyncReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []types.SyncReport
	for _, r := range m.syncLogs {
		if r.SheetID == sheetID {
			out = append(out, r)
		}
	}
	return out
}
