package types

import "time"

// SyncState is the lifecycle state of a sync run.
type SyncState string

const (
	StateReading      SyncState = "reading"
	StateTransforming SyncState = "transforming"
	StateValidating   SyncState = "validating"
	StateDeduping     SyncState = "deduping"
	StateWriting      SyncState = "writing"
	StateCompleted    SyncState = "completed"
	StateFailed       SyncState = "failed"
)

// InvalidRow describes one row rejected by validation.
type InvalidRow struct {
	RowIndex int      `json:"row_index"`
	Reasons  []string `json:"reasons"`
}

// DuplicateEntry identifies one member of a duplicate group. ID is only set
// for records that already exist in the store.
type DuplicateEntry struct {
	Key RecordKey `json:"key"`
	ID  string    `json:"id,omitempty"`
}

// DuplicateGroup is a set of records sharing a key, with the record kept.
type DuplicateGroup struct {
	Key     string           `json:"key"`
	Keeper  DuplicateEntry   `json:"keeper"`
	Removed []DuplicateEntry `json:"removed"`
}

// SyncReport is the outcome of one sync run. A failed run still carries
// every count accumulated before the failure.
type SyncReport struct {
	RunID      string    `json:"run_id"`
	SheetID    string    `json:"sheet_id"`
	SheetName  string    `json:"sheet_name"`
	Table      string    `json:"table"`
	State      SyncState `json:"state"`
	FailedStep SyncState `json:"failed_step,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	RowsRead int `json:"rows_read"`
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Empty    int `json:"empty"`

	InvalidCount     int          `json:"invalid_count"`
	InvalidRows      []InvalidRow `json:"invalid_rows,omitempty"`
	InvalidTruncated bool         `json:"invalid_truncated,omitempty"`

	DuplicatesRemoved int              `json:"duplicates_removed"`
	DuplicateGroups   []DuplicateGroup `json:"duplicate_groups,omitempty"`

	// ContentDuplicates are reported for review only; nothing is removed
	// because of them.
	ContentDuplicates []DuplicateGroup `json:"content_duplicates,omitempty"`

	MappingUsed     []ColumnMapping `json:"mapping_used"`
	UnmappedHeaders []string        `json:"unmapped_headers,omitempty"`
	MissingHeaders  []string        `json:"missing_headers,omitempty"`
}

// Failed reports whether the run ended in the failed state.
func (r *SyncReport) Failed() bool {
	return r.State == StateFailed
}

// Duration returns the wall time of the run.
func (r *SyncReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
