// =============================================================================
// Sheet Sync - Shared Types
// =============================================================================
//
// This package contains shared types used across multiple modules to avoid
// import cycles. Types defined here are used by:
//   - matcher     (ColumnMapping, FieldSpec, TableSchema)
//   - converter   (Sheet, RawRow, CandidateRecord)
//   - validation  (CandidateRecord, ValidationResult)
//   - dedupe      (RecordKey, StoredRecord)
//   - pipeline    (SourceSheet, SyncReport)
//   - store       (StoredRecord, UpsertOutcome)
//
// =============================================================================

package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// SOURCE SHEETS
// =============================================================================

// SourceSheet is one spreadsheet/worksheet configured as a sync input.
// Sheets are never hard-deleted; disabling a sheet keeps its sync history
// readable.
type SourceSheet struct {
	// ID is the stable source identifier. It is half of every record's
	// idempotency key, so it must never change once rows have been synced.
	ID string `json:"id"`

	// Name is the human-readable name shown in reports.
	Name string `json:"name"`

	// DestinationTable is the table the sheet's rows are written to.
	DestinationTable string `json:"destination_table"`

	// Enabled is false for soft-disabled sheets.
	Enabled bool `json:"enabled"`

	// LastSyncedAt is nil until the first completed sync.
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
}

// =============================================================================
// TYPE HINTS
// =============================================================================

// TypeHint tells the transformer how to convert a raw cell string.
type TypeHint string

const (
	TypeText     TypeHint = "text"
	TypeDate     TypeHint = "date"
	TypeCurrency TypeHint = "currency"
	TypeNumber   TypeHint = "number"
	TypeBoolean  TypeHint = "boolean"
)

// ParseTypeHint normalizes a type hint as written in config files or XLSX
// templates. Unrecognized values fall back to text.
func ParseTypeHint(value string) TypeHint {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "date", "datetime", "timestamp":
		return TypeDate
	case "currency", "money", "amount":
		return TypeCurrency
	case "number", "numeric", "num", "int", "integer", "decimal", "float":
		return TypeNumber
	case "boolean", "bool", "bit", "flag":
		return TypeBoolean
	default:
		return TypeText
	}
}

// UnmarshalYAML normalizes hints read from YAML.
func (t *TypeHint) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	*t = ParseTypeHint(raw)
	return nil
}

// =============================================================================
// SCHEMAS AND MAPPINGS
// =============================================================================

// FieldSpec describes one destination field of a target table.
type FieldSpec struct {
	Name     string   `yaml:"name" json:"name"`
	Required bool     `yaml:"required" json:"required"`
	Type     TypeHint `yaml:"type" json:"type"`

	// Aliases are header spellings known to mean this field, for example
	// the Traditional Chinese header used by the source sheet.
	Aliases []string `yaml:"aliases" json:"aliases,omitempty"`
}

// ContentKeySpec names the fields that make up the secondary
// content-duplicate key of a table.
type ContentKeySpec struct {
	Identifier string `yaml:"identifier" json:"identifier"`
	Date       string `yaml:"date" json:"date"`
	Amount     string `yaml:"amount" json:"amount"`
	Label      string `yaml:"label" json:"label"`
}

// TableSchema is the ordered field list of one destination table.
type TableSchema struct {
	Table      string          `yaml:"table" json:"table"`
	Fields     []FieldSpec     `yaml:"fields" json:"fields"`
	ContentKey *ContentKeySpec `yaml:"content_key,omitempty" json:"content_key,omitempty"`
}

// Field returns the spec for a field name.
func (s *TableSchema) Field(name string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// RequiredFields returns the required field names in declaration order.
func (s *TableSchema) RequiredFields() []string {
	var required []string
	for _, f := range s.Fields {
		if f.Required {
			required = append(required, f.Name)
		}
	}
	return required
}

// MappingOrigin records where a resolved mapping came from.
type MappingOrigin string

const (
	OriginDeclared MappingOrigin = "declared"
	OriginMatched  MappingOrigin = "matched"
)

// ColumnMapping is a correspondence between a source header, exactly as it
// appears in the sheet, and a destination field.
type ColumnMapping struct {
	SourceHeader string   `yaml:"source" json:"source"`
	Field        string   `yaml:"field" json:"field"`
	Required     bool     `yaml:"required" json:"required"`
	Type         TypeHint `yaml:"type" json:"type"`

	// Confidence and Origin are filled in when mappings are resolved for a run.
	Confidence float64       `yaml:"-" json:"confidence,omitempty"`
	Origin     MappingOrigin `yaml:"-" json:"origin,omitempty"`
}

// =============================================================================
// RAW ROWS
// =============================================================================

// Sheet is the result of reading one worksheet: a header row plus data rows.
type Sheet struct {
	Name    string
	Headers []string
	Rows    []RawRow
}

// RawRow is one row of the source sheet. Headers and Values are parallel
// slices; Index is the 0-based position of the row among the data rows.
type RawRow struct {
	Index   int
	Headers []string
	Values  []string
}

// Get returns the cell under a header.
func (r RawRow) Get(header string) (string, bool) {
	for i, h := range r.Headers {
		if h == header {
			if i < len(r.Values) {
				return r.Values[i], true
			}
			return "", true
		}
	}
	return "", false
}

// IsBlank reports whether every cell is empty or whitespace.
func (r RawRow) IsBlank() bool {
	for _, v := range r.Values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// =============================================================================
// RECORDS
// =============================================================================

// RecordKey is the idempotency key of a record: the sheet it came from and
// its 0-based row index within that sheet.
type RecordKey struct {
	SourceSheetID string `json:"source_sheet_id"`
	RowIndex      int    `json:"origin_row_index"`
}

func (k RecordKey) String() string {
	return fmt.Sprintf("%s#%d", k.SourceSheetID, k.RowIndex)
}

// CandidateRecord is a transformed, not yet validated row.
//
// Field values are one of: nil, string, decimal.Decimal, Date, bool.
type CandidateRecord struct {
	Key RecordKey

	// Fields holds every mapped destination field, including those that
	// resolved to nil.
	Fields map[string]any

	// Unmapped preserves every source column without a mapping, keyed by
	// the original header.
	Unmapped map[string]string
}

// StoredRecord is a persisted destination row.
type StoredRecord struct {
	ID           uuid.UUID
	Key          RecordKey
	Fields       map[string]any
	Unmapped     map[string]string
	CreatedAt    time.Time
	LastSyncedAt time.Time
}

// UpsertOutcome tells whether an upsert created or updated a row.
type UpsertOutcome string

const (
	Inserted UpsertOutcome = "inserted"
	Updated  UpsertOutcome = "updated"
)

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationStatus classifies a candidate record.
type ValidationStatus string

const (
	StatusValid   ValidationStatus = "valid"
	StatusInvalid ValidationStatus = "invalid"
	StatusEmpty   ValidationStatus = "empty"
)

// ValidationResult is the outcome of validating one record. Reasons is only
// set for invalid records.
type ValidationResult struct {
	Status  ValidationStatus
	Reasons []string
}
