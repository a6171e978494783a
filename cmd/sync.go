// =============================================================================
// Sheet Sync - Sync Command
// =============================================================================
//
// This file defines the 'sync' command, the main command of the tool. It
// syncs configured sheets into their destination tables.
//
// COMMAND USAGE:
//   sheetsync sync [flags]
//
// FLAGS:
//   --sheet       : Sync only this sheet id (repeatable)
//   --dry-run     : Run the pipeline against an in-memory store
//   --no-reports  : Do not write report files
//
// PROCESSING PIPELINE:
//   1. Load sheet configs and table schemas
//   2. Connect to PostgreSQL, apply system migrations, register sheets
//   3. For each enabled sheet (concurrently, bounded by sync.concurrency):
//      a. Take the sheet's lock (Redis when configured, else in-process)
//      b. Read, transform, validate, dedupe and upsert its rows
//      c. Record the sync log
//   4. Write per-run reports and print a summary
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ginjaninja78/sheet-sync/internal/config"
	"github.com/ginjaninja78/sheet-sync/internal/lock"
	"github.com/ginjaninja78/sheet-sync/internal/pipeline"
	"github.com/ginjaninja78/sheet-sync/internal/store"
	"github.com/ginjaninja78/sheet-sync/internal/types"
	"github.com/ginjaninja78/sheet-sync/pkg/utils"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

// syncSheetIDs limits the sync to these sheets.
var syncSheetIDs []string

// dryRun runs against an in-memory store.
var dryRun bool

// noReports disables report files.
var noReports bool

// =============================================================================
// SYNC COMMAND DEFINITION
// =============================================================================

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync sheets into their destination tables",
	Long: `The sync command reads every enabled sheet (or the sheets given with
--sheet), converts and validates its rows and upserts them into the sheet's
destination table, keyed by (sheet id, row number).

Sheets are synced concurrently. A failure in one sheet does not affect the
others; the command exits non-zero if any sheet failed.

With --dry-run nothing is written to the database: rows are upserted into an
in-memory store so the report shows what a real run would do on an empty
table.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runSync(ctx)
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().StringSliceVar(
		&syncSheetIDs,
		"sheet",
		nil,
		"Sync only this sheet id (repeatable)",
	)

	syncCmd.Flags().BoolVar(
		&dryRun,
		"dry-run",
		false,
		"Run against an in-memory store instead of the database",
	)

	syncCmd.Flags().BoolVar(
		&noReports,
		"no-reports",
		false,
		"Do not write report files",
	)
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

func runSync(ctx context.Context) error {
	startTime := time.Now()

	// =========================================================================
	// STEP 1: LOAD CONFIGURATION
	// =========================================================================

	allSheets, schemas, err := loadSheetsAndSchemas()
	if err != nil {
		return err
	}
	sheets, err := selectSheets(allSheets, syncSheetIDs)
	if err != nil {
		return err
	}
	if len(sheets) == 0 {
		fmt.Println("No sheets configured.")
		return nil
	}

	logger.Info("Starting sync",
		zap.Int("sheets", len(sheets)),
		zap.Int("schemas", len(schemas)),
		zap.Bool("dry_run", dryRun))

	// =========================================================================
	// STEP 2: CONNECT
	// =========================================================================

	var destination pipeline.Store
	if dryRun {
		destination = store.NewMemory()
	} else {
		pg, closeDB, err := openPostgres(ctx, true)
		if err != nil {
			return err
		}
		defer closeDB()

		for _, sheet := range allSheets {
			if err := pg.RegisterSheet(ctx, sheet.SourceSheet()); err != nil {
				return err
			}
		}
		destination = pg
	}

	locker, closeLocker, err := openLocker(ctx)
	if err != nil {
		return err
	}
	defer closeLocker()

	// =========================================================================
	// STEP 3: SYNC SHEETS
	// =========================================================================

	runner := &sheetRunner{
		syncer: pipeline.NewSyncer(destination, logger, pipeline.Options{
			MaxInvalidDetails:  appConfig.Sync.MaxInvalidDetails,
			MinMatchConfidence: appConfig.Sync.MinMatchConfidence,
		}),
		locker:      locker,
		schemas:     schemas,
		newReader:   sourceReader(logger),
		concurrency: appConfig.Sync.Concurrency,
		runTimeout:  appConfig.Sync.RunTimeout,
		logger:      logger,
	}
	reports := runner.runAll(ctx, sheets)

	// =========================================================================
	// STEP 4: REPORTS AND SUMMARY
	// =========================================================================

	if !noReports {
		writeReports(reports)
	}

	if err := utils.WriteSummary(os.Stdout, reports, time.Since(startTime)); err != nil {
		return err
	}

	failed := 0
	for _, r := range reports {
		if r.Failed() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d sheet(s) failed", failed, len(reports))
	}
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// loadSheetsAndSchemas loads and cross-validates the sheet configs and
// table schemas named by the application config.
func loadSheetsAndSchemas() ([]*config.SheetConfig, map[string]*types.TableSchema, error) {
	sheets, err := config.LoadSheetConfigs(appConfig.Paths.SheetsDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load sheet configs: %w", err)
	}
	schemas, err := config.LoadSchemas(appConfig.Paths.SchemasDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load schemas: %w", err)
	}
	if err := config.ValidateAll(sheets, schemas); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return sheets, schemas, nil
}

// openPostgres connects to the database and, when migrate is set, applies
// pending system-table migrations first.
func openPostgres(ctx context.Context, migrate bool) (*store.Postgres, func(), error) {
	connStr := appConfig.Database.ConnString()

	if migrate {
		if err := migrateDatabase(connStr); err != nil {
			return nil, nil, err
		}
	}

	pool, err := store.Connect(ctx, &store.Config{
		URL:             connStr,
		MaxConnections:  appConfig.Database.MaxConnections,
		MaxConnLifetime: appConfig.Database.MaxConnLifetime,
		MaxConnIdleTime: appConfig.Database.MaxConnIdleTime,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w",
			appConfig.Database.Host, err)
	}

	logger.Debug("Connected to database")
	return store.NewPostgres(pool, logger), pool.Close, nil
}

// migrateDatabase applies system-table migrations.
func migrateDatabase(connStr string) error {
	db, err := store.OpenSQL(connStr)
	if err != nil {
		return err
	}
	defer db.Close()

	return store.RunMigrations(db, logger)
}

// openLocker returns the Redis locker when Redis is configured, otherwise
// an in-process one.
func openLocker(ctx context.Context) (lock.Locker, func(), error) {
	client, err := lock.NewRedisClient(ctx, lock.RedisConfig{
		Host:     appConfig.Redis.Host,
		Port:     appConfig.Redis.Port,
		Password: appConfig.Redis.Password,
		DB:       appConfig.Redis.DB,
	})
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		return lock.NewLocal(), func() {}, nil
	}

	logger.Debug("Using Redis sync locks")
	return lock.NewRedis(client, appConfig.Sync.LockTTL, logger), func() { _ = client.Close() }, nil
}

// writeReports writes the report files of each run and applies retention.
// Report file failures are logged, never fatal: the sync log in the
// database is the durable record.
func writeReports(reports []*types.SyncReport) {
	fm := utils.NewFileManager(appConfig.Paths.ReportsDir, appConfig.Paths.ReportNameFmt, appConfig.Paths.ReportRetention)

	if removed, err := fm.CleanOldReports(); err != nil {
		logger.Warn("Failed to clean old reports", zap.Error(err))
	} else if removed > 0 {
		logger.Info("Removed old reports", zap.Int("count", removed))
	}

	for _, report := range reports {
		files, err := fm.WriteReport(report)
		if err != nil {
			logger.Warn("Failed to write report", zap.String("sheet_id", report.SheetID), zap.Error(err))
			continue
		}
		logger.Info("Report written",
			zap.String("sheet_id", report.SheetID),
			zap.String("report", files.Report),
			zap.String("invalid_rows", files.InvalidRows))
	}
}
