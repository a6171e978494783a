package store

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ginjaninja78/sheet-sync/internal/apperrors"
)

func TestCheckIdentifier(t *testing.T) {
	tests := []struct {
		name  string
		ident string
		valid bool
	}{
		{"snake case", "class_records", true},
		{"leading underscore", "_staging", true},
		{"digits", "expense_2025", true},
		{"upper case", "ClassRecords", false},
		{"leading digit", "2025_expense", false},
		{"space", "class records", false},
		{"quote", `a"b`, false},
		{"injection", "x'; DROP TABLE users--", false},
		{"empty", "", false},
		{"too long", "a123456789012345678901234567890123456789012345678901234567890123", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckIdentifier(tt.ident)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, apperrors.ErrInvalidIdentifier)
			}
		})
	}
}

func TestCheckFieldName_RejectsSystemColumns(t *testing.T) {
	for _, name := range []string{"id", "source_sheet_id", "origin_row_index", "raw_data", "created_at", "last_synced_at"} {
		assert.ErrorIs(t, CheckFieldName(name), apperrors.ErrInvalidIdentifier, name)
	}
	assert.NoError(t, CheckFieldName("student_email"))
}
