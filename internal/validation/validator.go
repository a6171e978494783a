// =============================================================================
// Sheet Sync - Row Validator
// =============================================================================
//
// The validator classifies every candidate record as exactly one of:
//   - empty:   every mapped field is null or blank (a blank sheet row);
//              skipped silently, never reported as an error
//   - invalid: at least one required field is null or blank; carries one
//              reason per missing field, in field declaration order
//   - valid:   everything else
//
// The empty check runs first, so a fully blank row is never invalid.
//
// =============================================================================

package validation

import (
	"fmt"
	"strings"

	"github.com/ginjaninja78/sheet-sync/internal/types"
)

// Validator checks records against the required fields of one table.
type Validator struct {
	required []string
}

// NewValidator builds the required-field list from the table schema and the
// resolved mappings: a field is required when either marks it required.
// Schema fields come first, in declaration order.
func NewValidator(schema *types.TableSchema, mappings []types.ColumnMapping) *Validator {
	seen := make(map[string]bool)
	var required []string

	if schema != nil {
		for _, name := range schema.RequiredFields() {
			if !seen[name] {
				seen[name] = true
				required = append(required, name)
			}
		}
	}
	for _, m := range mappings {
		if m.Required && !seen[m.Field] {
			seen[m.Field] = true
			required = append(required, m.Field)
		}
	}

	return &Validator{required: required}
}

// Required returns the required field names in check order.
func (v *Validator) Required() []string {
	return append([]string(nil), v.required...)
}

// Validate classifies one record.
func (v *Validator) Validate(record types.CandidateRecord) types.ValidationResult {
	return Validate(record, v.required)
}

// Validate classifies a record against a list of required field names.
// It has no side effects.
func Validate(record types.CandidateRecord, required []string) types.ValidationResult {
	if IsEmpty(record) {
		return types.ValidationResult{Status: types.StatusEmpty}
	}

	var reasons []string
	for _, field := range required {
		if isBlank(record.Fields[field]) {
			reasons = append(reasons, MissingFieldReason(field))
		}
	}

	if len(reasons) > 0 {
		return types.ValidationResult{Status: types.StatusInvalid, Reasons: reasons}
	}
	return types.ValidationResult{Status: types.StatusValid}
}

// MissingFieldReason is the reason text for a missing required field.
func MissingFieldReason(field string) string {
	return fmt.Sprintf("missing required field: %s", field)
}

// IsEmpty reports whether every mapped field of the record is null or blank.
func IsEmpty(record types.CandidateRecord) bool {
	for _, value := range record.Fields {
		if !isBlank(value) {
			return false
		}
	}
	return true
}

func isBlank(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	default:
		return false
	}
}

// =============================================================================
// BATCH PARTITIONING
// =============================================================================

// InvalidRecord pairs a rejected record with its reasons.
type InvalidRecord struct {
	Record  types.CandidateRecord
	Reasons []string
}

// Partition is a batch split by validation status. Each slice keeps the
// input order.
type Partition struct {
	Valid   []types.CandidateRecord
	Invalid []InvalidRecord
	Empty   []types.CandidateRecord
}

// Partition validates a batch of records.
func (v *Validator) Partition(records []types.CandidateRecord) Partition {
	var p Partition
	for _, record := range records {
		result := v.Validate(record)
		switch result.Status {
		case types.StatusValid:
			p.Valid = append(p.Valid, record)
		case types.StatusInvalid:
			p.Invalid = append(p.Invalid, InvalidRecord{Record: record, Reasons: result.Reasons})
		case types.StatusEmpty:
			p.Empty = append(p.Empty, record)
		}
	}
	return p
}

// FormatReasons joins reasons for single-line output such as CSV cells.
func FormatReasons(reasons []string) string {
	return strings.Join(reasons, "; ")
}
