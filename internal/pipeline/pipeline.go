// =============================================================================
// Sheet Sync - Sync Orchestrator
// =============================================================================
//
// This module drives one end-to-end sync of a source sheet into its
// destination table.
//
// SYNC PIPELINE:
//   1. reading:      read every raw row of the configured worksheet
//   2. transforming: resolve column mappings, convert rows to candidates
//   3. validating:   split candidates into valid / invalid / empty
//   4. deduping:     collapse candidates sharing an idempotency key and
//                    report content duplicates for review
//   5. writing:      upsert each surviving record by (sheet id, row index)
//   6. completed
//
// A run that hits an unrecoverable error stops in the failed state; the
// report still carries every count accumulated before the failure.
//
// FAILURE SEMANTICS:
//   - a bad cell or a bad row never aborts the run
//   - a source read failure aborts before any processing
//   - a store failure aborts the remaining writes; rows already written
//     stay written, each upsert commits on its own
//
// CONCURRENCY:
//   Runs for different sheets may proceed concurrently. Runs for the same
//   sheet must be serialized by the caller (see internal/lock).
//
// =============================================================================

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ginjaninja78/sheet-sync/internal/apperrors"
	"github.com/ginjaninja78/sheet-sync/internal/converter"
	"github.com/ginjaninja78/sheet-sync/internal/dedupe"
	"github.com/ginjaninja78/sheet-sync/internal/matcher"
	"github.com/ginjaninja78/sheet-sync/internal/types"
	"github.com/ginjaninja78/sheet-sync/internal/validation"
)

// DefaultMaxInvalidDetails caps the invalid rows listed in a report. The
// total is always reported.
const DefaultMaxInvalidDetails = 100

// =============================================================================
// BOUNDARIES
// =============================================================================

// Reader supplies the rows of one worksheet.
type Reader interface {
	Read(ctx context.Context) (*types.Sheet, error)
}

// ReaderFunc adapts a function to a Reader.
type ReaderFunc func(ctx context.Context) (*types.Sheet, error)

// Read calls f.
func (f ReaderFunc) Read(ctx context.Context) (*types.Sheet, error) {
	return f(ctx)
}

// Store is the destination store.
type Store interface {
	Upsert(ctx context.Context, table string, key types.RecordKey, record types.CandidateRecord) (types.UpsertOutcome, error)
}

// TableEnsurer is implemented by stores that create or extend destination
// tables before writing.
type TableEnsurer interface {
	EnsureTable(ctx context.Context, table string, fields []types.FieldSpec) error
}

// SyncRecorder is implemented by stores that persist sync history.
type SyncRecorder interface {
	RecordSync(ctx context.Context, sheet types.SourceSheet, report *types.SyncReport) error
}

// =============================================================================
// SYNCER
// =============================================================================

// Options tunes a Syncer.
type Options struct {
	// MaxInvalidDetails caps InvalidRows in the report. Zero uses
	// DefaultMaxInvalidDetails.
	MaxInvalidDetails int

	// MinMatchConfidence is the lowest matcher confidence accepted for an
	// automatic mapping. Zero uses matcher.DefaultMinConfidence.
	MinMatchConfidence float64

	// Now is the clock; nil uses time.Now.
	Now func() time.Time
}

// Job is one sync request.
type Job struct {
	Sheet  types.SourceSheet
	Schema *types.TableSchema

	// Mappings are the declared mappings of the sheet.
	Mappings []types.ColumnMapping

	// AutoMatch fills fields without a declared mapping from matcher
	// suggestions.
	AutoMatch bool

	Reader Reader
	Rules  []converter.CleanupRule
}

// Syncer runs sync jobs against one destination store.
type Syncer struct {
	store  Store
	logger *zap.Logger
	opts   Options
}

// NewSyncer creates a Syncer.
//
// PARAMETERS:
//   - store: The destination store.
//   - logger: Logger for run progress; nil disables logging.
//   - opts: Tuning options; zero values use defaults.
func NewSyncer(store Store, logger *zap.Logger, opts Options) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxInvalidDetails <= 0 {
		opts.MaxInvalidDetails = DefaultMaxInvalidDetails
	}
	if opts.MinMatchConfidence <= 0 {
		opts.MinMatchConfidence = matcher.DefaultMinConfidence
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Syncer{store: store, logger: logger.Named("pipeline"), opts: opts}
}

// run carries the state of one Run call.
type run struct {
	s      *Syncer
	job    Job
	report *types.SyncReport
	logger *zap.Logger
}

// Run executes the sync pipeline for a job.
//
// RETURNS:
//   - The report, also for failed runs.
//   - An error when the run failed; the report then holds the failed step.
//     A disabled sheet returns apperrors.ErrSheetDisabled and no report.
func (s *Syncer) Run(ctx context.Context, job Job) (*types.SyncReport, error) {
	if !job.Sheet.Enabled {
		return nil, fmt.Errorf("sheet %s: %w", job.Sheet.ID, apperrors.ErrSheetDisabled)
	}

	report := &types.SyncReport{
		RunID:     uuid.NewString(),
		SheetID:   job.Sheet.ID,
		SheetName: job.Sheet.Name,
		Table:     job.Sheet.DestinationTable,
		StartedAt: s.opts.Now(),
	}
	r := &run{
		s:      s,
		job:    job,
		report: report,
		logger: s.logger.With(
			zap.String("sheet_id", job.Sheet.ID),
			zap.String("table", job.Sheet.DestinationTable),
			zap.String("run_id", report.RunID)),
	}

	err := r.execute(ctx)
	report.FinishedAt = s.opts.Now()
	if err != nil {
		report.State = types.StateFailed
		report.Error = err.Error()
		r.logger.Error("Sync failed",
			zap.String("step", string(report.FailedStep)),
			zap.Int("inserted", report.Inserted),
			zap.Int("updated", report.Updated),
			zap.Error(err))
	} else {
		report.State = types.StateCompleted
		r.logger.Info("Sync completed",
			zap.Int("rows_read", report.RowsRead),
			zap.Int("inserted", report.Inserted),
			zap.Int("updated", report.Updated),
			zap.Int("invalid", report.InvalidCount),
			zap.Int("empty", report.Empty),
			zap.Int("duplicates_removed", report.DuplicatesRemoved),
			zap.Duration("duration", report.Duration()))
	}

	r.record(ctx)
	return report, err
}

func (r *run) enter(state types.SyncState) {
	r.report.State = state
	r.logger.Debug("Entering step", zap.String("step", string(state)))
}

func (r *run) fail(err error) error {
	r.report.FailedStep = r.report.State
	return err
}

func (r *run) execute(ctx context.Context) error {
	job := r.job
	report := r.report

	if job.Reader == nil {
		r.enter(types.StateReading)
		return r.fail(fmt.Errorf("%w: no reader configured", apperrors.ErrSourceRead))
	}

	// =========================================================================
	// STEP 1: READ
	// =========================================================================

	r.enter(types.StateReading)

	sheet, err := job.Reader.Read(ctx)
	if err != nil {
		return r.fail(fmt.Errorf("%w: %w", apperrors.ErrSourceRead, err))
	}
	report.RowsRead = len(sheet.Rows)

	// =========================================================================
	// STEP 2: TRANSFORM
	// =========================================================================
	// Declared mappings always apply; with auto-match on, matcher suggestions
	// fill the schema fields nobody declared.

	r.enter(types.StateTransforming)

	var suggestions []matcher.Suggestion
	if job.AutoMatch && job.Schema != nil {
		suggestions = matcher.Suggest(sheet.Headers, job.Schema)
	}
	mappings := matcher.Resolve(job.Schema, job.Mappings, suggestions, r.s.opts.MinMatchConfidence)
	report.MappingUsed = mappings
	report.UnmappedHeaders, report.MissingHeaders = matcher.Drift(sheet.Headers, mappings)

	if len(mappings) == 0 {
		return r.fail(errors.New("no column mappings resolved for sheet"))
	}
	if len(report.MissingHeaders) > 0 {
		r.logger.Warn("Mapped headers missing from sheet", zap.Strings("headers", report.MissingHeaders))
	}

	transformer, err := converter.NewTransformer(job.Rules, r.logger)
	if err != nil {
		return r.fail(err)
	}
	candidates := transformer.TransformSheet(sheet, mappings, job.Sheet.ID)

	// =========================================================================
	// STEP 3: VALIDATE
	// =========================================================================

	r.enter(types.StateValidating)

	partition := validation.NewValidator(job.Schema, mappings).Partition(candidates)
	report.Empty = len(partition.Empty)
	report.InvalidCount = len(partition.Invalid)
	for _, inv := range partition.Invalid {
		r.logger.Info("Row rejected",
			zap.Int("row_index", inv.Record.Key.RowIndex),
			zap.Strings("reasons", inv.Reasons))
		if len(report.InvalidRows) < r.s.opts.MaxInvalidDetails {
			report.InvalidRows = append(report.InvalidRows, types.InvalidRow{
				RowIndex: inv.Record.Key.RowIndex,
				Reasons:  inv.Reasons,
			})
		} else {
			report.InvalidTruncated = true
		}
	}

	// =========================================================================
	// STEP 4: DEDUPE
	// =========================================================================
	// Idempotency-key duplicates are collapsed. Content duplicates are only
	// reported; they are resolved by an explicit cleanup.

	r.enter(types.StateDeduping)

	byKey := dedupe.ByIdempotencyKey(dedupe.FromCandidates(partition.Valid))
	report.DuplicatesRemoved = byKey.RemovedCount()
	report.DuplicateGroups = byKey.Reports()

	if job.Schema != nil && job.Schema.ContentKey != nil {
		byContent := dedupe.ByContentKey(byKey.Keepers, job.Schema.ContentKey)
		report.ContentDuplicates = byContent.Reports()
		if len(report.ContentDuplicates) > 0 {
			r.logger.Info("Content duplicates found", zap.Int("groups", len(report.ContentDuplicates)))
		}
	}

	survivors := make([]types.CandidateRecord, len(byKey.Keepers))
	for i, item := range byKey.Keepers {
		survivors[i] = partition.Valid[item.Order]
	}

	// =========================================================================
	// STEP 5: WRITE
	// =========================================================================

	r.enter(types.StateWriting)

	table := job.Sheet.DestinationTable
	if ensurer, ok := r.s.store.(TableEnsurer); ok {
		if err := ensurer.EnsureTable(ctx, table, tableFields(job.Schema, mappings)); err != nil {
			return r.fail(storeError(err))
		}
	}

	for _, record := range survivors {
		if err := ctx.Err(); err != nil {
			return r.fail(err)
		}

		outcome, err := r.s.store.Upsert(ctx, table, record.Key, record)
		if err != nil {
			return r.fail(storeError(err))
		}
		switch outcome {
		case types.Inserted:
			report.Inserted++
		case types.Updated:
			report.Updated++
		}
	}

	return nil
}

// record persists the report when the store keeps sync history. A failure
// here never changes the outcome of the run.
func (r *run) record(ctx context.Context) {
	recorder, ok := r.s.store.(SyncRecorder)
	if !ok {
		return
	}

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := recorder.RecordSync(recordCtx, r.job.Sheet, r.report); err != nil {
		r.logger.Warn("Failed to record sync", zap.Error(err))
	}
}

func storeError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, apperrors.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", apperrors.ErrStoreUnavailable, err)
}

// tableFields lists the columns a destination table needs: every schema
// field, then mapped fields the schema does not declare.
func tableFields(schema *types.TableSchema, mappings []types.ColumnMapping) []types.FieldSpec {
	var fields []types.FieldSpec
	seen := make(map[string]bool)
	if schema != nil {
		for _, f := range schema.Fields {
			seen[f.Name] = true
			fields = append(fields, f)
		}
	}
	for _, m := range mappings {
		if seen[m.Field] {
			continue
		}
		seen[m.Field] = true
		fields = append(fields, types.FieldSpec{Name: m.Field, Required: m.Required, Type: m.Type})
	}
	return fields
}
