package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ginjaninja78/sheet-sync/internal/apperrors"
	"github.com/ginjaninja78/sheet-sync/internal/config"
	"github.com/ginjaninja78/sheet-sync/internal/lock"
	"github.com/ginjaninja78/sheet-sync/internal/pipeline"
	"github.com/ginjaninja78/sheet-sync/internal/source"
	"github.com/ginjaninja78/sheet-sync/internal/types"
)

// readerFactory builds the reader of a sheet.
type readerFactory func(sheet *config.SheetConfig) (pipeline.Reader, error)

// sourceReader is the production readerFactory.
func sourceReader(logger *zap.Logger) readerFactory {
	return func(sheet *config.SheetConfig) (pipeline.Reader, error) {
		return source.New(sheet.Source, sheet.CSVSettings, logger)
	}
}

// sheetRunner syncs a set of sheets with bounded concurrency, one run per
// sheet at a time.
type sheetRunner struct {
	syncer      *pipeline.Syncer
	locker      lock.Locker
	schemas     map[string]*types.TableSchema
	newReader   readerFactory
	concurrency int
	runTimeout  time.Duration
	logger      *zap.Logger
}

// runAll syncs every sheet and returns one report per sheet that ran.
// Disabled sheets produce no report. A failing sheet never stops the
// others.
func (r *sheetRunner) runAll(ctx context.Context, sheets []*config.SheetConfig) []*types.SyncReport {
	reports := make([]*types.SyncReport, len(sheets))

	var g errgroup.Group
	g.SetLimit(max(r.concurrency, 1))

	for i, sheet := range sheets {
		g.Go(func() error {
			reports[i] = r.runOne(ctx, sheet)
			return nil
		})
	}
	_ = g.Wait()

	var ran []*types.SyncReport
	for _, report := range reports {
		if report != nil {
			ran = append(ran, report)
		}
	}
	return ran
}

func (r *sheetRunner) runOne(ctx context.Context, sheet *config.SheetConfig) *types.SyncReport {
	logger := r.logger.With(zap.String("sheet_id", sheet.ID))

	if !sheet.IsEnabled() {
		logger.Info("Sheet disabled, skipping")
		return nil
	}

	release, err := r.locker.Acquire(ctx, sheet.ID)
	if err != nil {
		if errors.Is(err, apperrors.ErrLocked) {
			logger.Warn("Sheet is already syncing")
		}
		return failedReport(sheet, "", fmt.Errorf("failed to lock sheet: %w", err))
	}
	defer release()

	reader, err := r.newReader(sheet)
	if err != nil {
		return failedReport(sheet, types.StateReading, fmt.Errorf("%w: %w", apperrors.ErrSourceRead, err))
	}

	runCtx := ctx
	if r.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.runTimeout)
		defer cancel()
	}

	report, err := r.syncer.Run(runCtx, pipeline.Job{
		Sheet:     sheet.SourceSheet(),
		Schema:    r.schemas[sheet.Table],
		Mappings:  sheet.Mappings,
		AutoMatch: sheet.AutoMatch,
		Reader:    reader,
		Rules:     sheet.CleanupRules,
	})
	if errors.Is(err, apperrors.ErrSheetDisabled) {
		return nil
	}
	return report
}

// failedReport describes a run that failed before the pipeline started.
func failedReport(sheet *config.SheetConfig, step types.SyncState, err error) *types.SyncReport {
	now := time.Now()
	return &types.SyncReport{
		RunID:      uuid.NewString(),
		SheetID:    sheet.ID,
		SheetName:  sheet.Name,
		Table:      sheet.Table,
		State:      types.StateFailed,
		FailedStep: step,
		Error:      err.Error(),
		StartedAt:  now,
		FinishedAt: now,
	}
}

// selectSheets filters configs to the requested ids, in request order.
// No ids selects every sheet.
func selectSheets(all []*config.SheetConfig, ids []string) ([]*config.SheetConfig, error) {
	if len(ids) == 0 {
		return all, nil
	}
	selected := make([]*config.SheetConfig, 0, len(ids))
	for _, id := range ids {
		sheet, ok := config.FindSheet(all, id)
		if !ok {
			return nil, fmt.Errorf("sheet %s: %w", id, apperrors.ErrNotFound)
		}
		selected = append(selected, sheet)
	}
	return selected, nil
}
