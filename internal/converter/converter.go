// =============================================================================
// Sheet Sync - Field Transformer
// =============================================================================
//
// The transformer turns one raw spreadsheet row into a typed CandidateRecord
// using a resolved set of column mappings.
//
// TRANSFORMATION STEPS (per row):
//   1. Apply cleanup rules to raw cells (rules.go)
//   2. Convert every mapped cell by its type hint (values.go)
//   3. Copy every unmapped column, verbatim, into the catch-all payload
//
// A malformed cell becomes nil and is logged at debug level. A row whose
// mapped fields are all nil is still returned; deciding that it is empty is
// the validator's job.
//
// =============================================================================

package converter

import (
	"go.uber.org/zap"

	"github.com/ginjaninja78/sheet-sync/internal/types"
)

// Transformer converts raw rows into candidate records.
type Transformer struct {
	rules  map[string][]Action
	logger *zap.Logger
}

// NewTransformer creates a Transformer with the given cleanup rules.
//
// PARAMETERS:
//   - rules: Cleanup rules from the sheet configuration (may be nil).
//   - logger: Logger for cell-level parse notes; nil disables logging.
//
// RETURNS:
//   - The transformer, or an error if a rule is invalid.
func NewTransformer(rules []CleanupRule, logger *zap.Logger) (*Transformer, error) {
	compiled, err := CompileRules(rules)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transformer{
		rules:  compiled,
		logger: logger.Named("transformer"),
	}, nil
}

// Transform converts one row.
//
// PARAMETERS:
//   - row: The raw row.
//   - mappings: The resolved mappings for the run.
//   - sheetID: The source sheet id (provenance).
//   - rowIndex: The 0-based data row index (provenance).
//
// RETURNS:
//   - The candidate record. Every mapping yields a Fields entry (nil when
//     blank, unparseable or missing from the sheet); every header without a
//     mapping yields an Unmapped entry.
func (t *Transformer) Transform(row types.RawRow, mappings []types.ColumnMapping, sheetID string, rowIndex int) types.CandidateRecord {
	record := types.CandidateRecord{
		Key:      types.RecordKey{SourceSheetID: sheetID, RowIndex: rowIndex},
		Fields:   make(map[string]any, len(mappings)),
		Unmapped: make(map[string]string),
	}

	mapped := make(map[string]bool, len(mappings))
	for _, m := range mappings {
		mapped[m.SourceHeader] = true

		raw, present := row.Get(m.SourceHeader)
		if !present {
			record.Fields[m.Field] = nil
			continue
		}
		if actions := t.rules[m.SourceHeader]; len(actions) > 0 {
			raw = ApplyActions(raw, actions)
		}

		value, ok := ParseValue(raw, m.Type)
		if !ok {
			t.logger.Debug("Unparseable cell resolved to null",
				zap.String("sheet_id", sheetID),
				zap.Int("row_index", rowIndex),
				zap.String("header", m.SourceHeader),
				zap.String("type", string(m.Type)),
				zap.String("value", raw))
		}
		record.Fields[m.Field] = value
	}

	for i, header := range row.Headers {
		if mapped[header] {
			continue
		}
		value := ""
		if i < len(row.Values) {
			value = row.Values[i]
		}
		record.Unmapped[header] = value
	}

	return record
}

// TransformSheet converts every row of a sheet, in source order.
func (t *Transformer) TransformSheet(sheet *types.Sheet, mappings []types.ColumnMapping, sheetID string) []types.CandidateRecord {
	records := make([]types.CandidateRecord, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		records = append(records, t.Transform(row, mappings, sheetID, row.Index))
	}
	return records
}
