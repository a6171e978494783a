// Package store holds the destination stores that synced records are
// written to: an in-memory store for dry runs and tests, and a Postgres
// store for production.
//
// Both honour the same contract:
//   - (source_sheet_id, origin_row_index) is unique per table
//   - Upsert updates the row with the key when it exists and inserts it
//     otherwise; an insert that loses a uniqueness race is retried as an
//     update, so the caller never sees the conflict
//   - nothing is deleted except through Delete, which takes explicit ids
package store

import (
	"context"

	"github.com/ginjaninja78/sheet-sync/internal/types"
)

// Filter narrows a Query.
type Filter struct {
	// SourceSheetID limits results to one source sheet; empty means all.
	SourceSheetID string
}

// Records is the record-level contract shared by every store.
type Records interface {
	Upsert(ctx context.Context, table string, key types.RecordKey, record types.CandidateRecord) (types.UpsertOutcome, error)
	Query(ctx context.Context, table string, filter Filter) ([]types.StoredRecord, error)
	Delete(ctx context.Context, table string, ids []string) (int, error)
}

// System column names present on every destination table.
const (
	ColumnID           = "id"
	ColumnSourceSheet  = "source_sheet_id"
	ColumnRowIndex     = "origin_row_index"
	ColumnRawData      = "raw_data"
	ColumnCreatedAt    = "created_at"
	ColumnLastSyncedAt = "last_synced_at"
)

// IsSystemColumn reports whether a field name collides with a system column.
func IsSystemColumn(name string) bool {
	switch name {
	case ColumnID, ColumnSourceSheet, ColumnRowIndex, ColumnRawData, ColumnCreatedAt, ColumnLastSyncedAt:
		return true
	default:
		return false
	}
}

func cloneFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func cloneUnmapped(unmapped map[string]string) map[string]string {
	out := make(map[string]string, len(unmapped))
	for k, v := range unmapped {
		out[k] = v
	}
	return out
}
