package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/ginjaninja78/sheet-sync/internal/apperrors"
	"github.com/ginjaninja78/sheet-sync/internal/types"
)

const upsertSheetSQL = `
		INSERT INTO etl_source_sheets (id, name, destination_table, enabled)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    destination_table = EXCLUDED.destination_table,
		    enabled = EXCLUDED.enabled,
		    updated_at = now()`

// RegisterSheet creates or updates a source sheet row. Sheets are never
// deleted; a sheet removed from configuration keeps its row and history.
func (p *Postgres) RegisterSheet(ctx context.Context, sheet types.SourceSheet) error {
	_, err := p.pool.Exec(ctx, upsertSheetSQL, sheet.ID, sheet.Name, sheet.DestinationTable, sheet.Enabled)
	if err != nil {
		return fmt.Errorf("failed to register sheet %s: %w", sheet.ID, err)
	}
	return nil
}

// GetSheet loads a source sheet by id.
func (p *Postgres) GetSheet(ctx context.Context, id string) (*types.SourceSheet, error) {
	var sheet types.SourceSheet
	err := p.pool.QueryRow(ctx, `
		SELECT id, name, destination_table, enabled, last_synced_at
		FROM etl_source_sheets
		WHERE id = $1`, id).
		Scan(&sheet.ID, &sheet.Name, &sheet.DestinationTable, &sheet.Enabled, &sheet.LastSyncedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("sheet %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sheet %s: %w", id, err)
	}
	return &sheet, nil
}

// SetEnabled soft-enables or soft-disables a source sheet.
func (p *Postgres) SetEnabled(ctx context.Context, id string, enabled bool) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE etl_source_sheets SET enabled = $2, updated_at = now() WHERE id = $1`, id, enabled)
	if err != nil {
		return fmt.Errorf("failed to update sheet %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sheet %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

// RecordSync registers the sheet, writes the sync log and, for completed
// runs, sets last_synced_at, all in one transaction.
func (p *Postgres) RecordSync(ctx context.Context, sheet types.SourceSheet, report *types.SyncReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode sync report: %w", err)
	}

	runID, err := uuid.Parse(report.RunID)
	if err != nil {
		runID = uuid.New()
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, upsertSheetSQL, sheet.ID, sheet.Name, sheet.DestinationTable, sheet.Enabled)
	if err != nil {
		return fmt.Errorf("failed to register sheet %s: %w", sheet.ID, err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO etl_sync_logs (
			id, source_sheet_id, destination_table, state, failed_step, error,
			rows_read, inserted, updated, invalid, empty, duplicates_removed,
			report, started_at, finished_at
		) VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		runID, sheet.ID, report.Table, string(report.State), string(report.FailedStep), report.Error,
		report.RowsRead, report.Inserted, report.Updated, report.InvalidCount, report.Empty, report.DuplicatesRemoved,
		payload, report.StartedAt, nullTime(report.FinishedAt))
	if err != nil {
		return fmt.Errorf("failed to save sync log: %w", err)
	}

	if report.State == types.StateCompleted {
		_, err = tx.Exec(ctx, `
			UPDATE etl_source_sheets SET last_synced_at = $2, updated_at = now() WHERE id = $1`,
			sheet.ID, report.FinishedAt)
		if err != nil {
			return fmt.Errorf("failed to mark sheet %s synced: %w", sheet.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	p.logger.Debug("Recorded sync",
		zap.String("sheet_id", sheet.ID),
		zap.String("run_id", runID.String()),
		zap.String("state", string(report.State)))
	return nil
}

// SyncLog is a summary row of etl_sync_logs.
type SyncLog struct {
	ID         uuid.UUID
	SheetID    string
	State      types.SyncState
	Error      *string
	RowsRead   int
	Inserted   int
	Updated    int
	Invalid    int
	StartedAt  time.Time
	FinishedAt *time.Time
}

// RecentSyncLogs returns the latest sync log summaries of a sheet.
func (p *Postgres) RecentSyncLogs(ctx context.Context, sheetID string, limit int) ([]SyncLog, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, source_sheet_id, state, error, rows_read, inserted, updated, invalid, started_at, finished_at
		FROM etl_sync_logs
		WHERE source_sheet_id = $1
		ORDER BY started_at DESC
		LIMIT $2`, sheetID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync logs: %w", err)
	}

	logs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (SyncLog, error) {
		var l SyncLog
		var state string
		err := row.Scan(&l.ID, &l.SheetID, &state, &l.Error, &l.RowsRead, &l.Inserted, &l.Updated,
			&l.Invalid, &l.StartedAt, &l.FinishedAt)
		l.State = types.SyncState(state)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read sync logs: %w", err)
	}
	return logs, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
