// =============================================================================
// Sheet Sync - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. The root command is
// the base command that all other commands are attached to.
//
// COBRA CLI STRUCTURE:
//   rootCmd (sheetsync)
//   ├── syncCmd     (sheetsync sync)
//   ├── suggestCmd  (sheetsync suggest)
//   ├── dedupeCmd   (sheetsync dedupe)
//   ├── validateCmd (sheetsync validate)
//   ├── migrateCmd  (sheetsync migrate)
//   ├── statusCmd   (sheetsync status)
//   └── versionCmd  (sheetsync version)
//
// CONFIGURATION:
//   The root command is responsible for:
//   1. Setting up global flags (--config, --verbose)
//   2. Loading the application configuration (config.yaml + environment)
//   3. Setting up logging
//
// =============================================================================

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ginjaninja78/sheet-sync/internal/config"
	"github.com/ginjaninja78/sheet-sync/internal/logging"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the main configuration file.
var cfgFile string

// verbose forces debug logging.
var verbose bool

// appConfig and logger are set by loadConfig before any subcommand runs.
var (
	appConfig *config.Config
	logger    *zap.Logger
)

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "sheetsync",
	Short: "Sheet Sync - Sync spreadsheet data into PostgreSQL tables",
	Long: `Sheet Sync reads operational spreadsheets (class records, expense
claims, CSV exports) and keeps a PostgreSQL table per sheet in sync with them.

Key Features:
  - Header-to-field mapping, declared or matched by similarity
  - Tolerant cell parsing (2025年8月21日 dates, NT$ amounts, 是/否 flags)
  - Row validation with a per-run report of rejected rows
  - Idempotent upserts keyed by (sheet, row)
  - Content-duplicate detection with explicit, confirmed cleanup

Example Usage:
  sheetsync sync                      # Sync every enabled sheet
  sheetsync sync --sheet expense-may  # Sync one sheet
  sheetsync suggest --sheet class-2025
  sheetsync validate                  # Validate configuration`,

	SilenceUsage:  true,
	SilenceErrors: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// version and help need no configuration.
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}
		return loadConfig()
	},

	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},

	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the application config and builds the logger.
func loadConfig() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logCfg := cfg.Log.Logging()
	if verbose {
		logCfg.Level = "debug"
	}
	l, err := logging.New(logCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appConfig = cfg
	logger = l
	logger.Debug("Configuration loaded",
		zap.String("config", cfgFile),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnString())),
		zap.Bool("redis", cfg.Redis.Host != ""))
	return nil
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		config.DefaultConfigFile,
		"Path to the main configuration file",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable debug logging",
	)
}
