package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ginjaninja78/sheet-sync/internal/converter"
	"github.com/ginjaninja78/sheet-sync/internal/csvparser"
	"github.com/ginjaninja78/sheet-sync/internal/source"
	"github.com/ginjaninja78/sheet-sync/internal/store"
	"github.com/ginjaninja78/sheet-sync/internal/types"
)

// =============================================================================
// SHEET CONFIGURATION
// =============================================================================

// SheetConfig holds the configuration of one source sheet.
//
// Example (sheets/class_2025.yaml):
//
//	id: class-2025
//	name: 2025 課程紀錄
//	table: class_records
//	source:
//	  kind: xlsx
//	  path: ../data/class_2025.xlsx
//	  worksheet: 課程紀錄
//	auto_match: true
//	mappings:
//	  - source: email
//	    field: student_email
//	    required: true
//	cleanup_rules:
//	  - header: 授課老師
//	    actions:
//	      - type: trim
type SheetConfig struct {
	// ID is the stable source sheet id. Changing it orphans every row
	// already synced from the sheet.
	ID string `yaml:"id"`

	// Name is the display name used in reports.
	Name string `yaml:"name"`

	// Table is the destination table.
	Table string `yaml:"table"`

	// Enabled defaults to true. Disabled sheets are skipped, never deleted.
	Enabled *bool `yaml:"enabled"`

	// Source says where rows are read from.
	Source source.Config `yaml:"source"`

	// CSVSettings controls header/data row positions and, for CSV bodies,
	// delimiter and encoding.
	CSVSettings csvparser.Settings `yaml:"csv_settings"`

	// AutoMatch maps schema fields without a declared mapping by header
	// similarity.
	AutoMatch bool `yaml:"auto_match"`

	// Mappings are the declared header-to-field mappings.
	Mappings []types.ColumnMapping `yaml:"mappings"`

	// CleanupRules are applied to raw cells before type parsing.
	CleanupRules []converter.CleanupRule `yaml:"cleanup_rules"`

	// File is the path the config was loaded from.
	File string `yaml:"-"`
}

// IsEnabled reports whether the sheet takes part in syncs.
func (c *SheetConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// SourceSheet returns the sheet's identity for the pipeline.
func (c *SheetConfig) SourceSheet() types.SourceSheet {
	return types.SourceSheet{
		ID:               c.ID,
		Name:             c.Name,
		DestinationTable: c.Table,
		Enabled:          c.IsEnabled(),
	}
}

var sheetIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)

// LoadSheetConfigs loads every *.yaml / *.yml file in dir, sorted by id.
//
// PARAMETERS:
//   - dir: The sheet config directory.
//
// RETURNS:
//   - The configs, validated and with defaults applied.
//   - An error naming the first file that fails to load or validate, or a
//     duplicated sheet id.
func LoadSheetConfigs(dir string) ([]*SheetConfig, error) {
	files, err := yamlFiles(dir)
	if err != nil {
		return nil, err
	}

	var configs []*SheetConfig
	byID := make(map[string]string)

	for _, file := range files {
		cfg, err := LoadSheetConfig(file)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
		if prev, dup := byID[cfg.ID]; dup {
			return nil, fmt.Errorf("sheet id %q defined in both %s and %s", cfg.ID, prev, file)
		}
		byID[cfg.ID] = file
		configs = append(configs, cfg)
	}

	sort.Slice(configs, func(i, j int) bool { return configs[i].ID < configs[j].ID })
	return configs, nil
}

// LoadSheetConfig loads and validates one sheet config file.
func LoadSheetConfig(path string) (*SheetConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var cfg SheetConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse file: %w", err)
	}
	cfg.File = path

	applySheetDefaults(&cfg, filepath.Dir(path))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applySheetDefaults(cfg *SheetConfig, baseDir string) {
	cfg.CSVSettings.ApplyDefaults()

	if cfg.Name == "" {
		cfg.Name = cfg.ID
	}

	// Relative paths are relative to the config file.
	if cfg.Source.Path != "" && !filepath.IsAbs(cfg.Source.Path) {
		cfg.Source.Path = filepath.Join(baseDir, cfg.Source.Path)
	}

	for i := range cfg.Mappings {
		if cfg.Mappings[i].Type == "" {
			continue
		}
		cfg.Mappings[i].Type = types.ParseTypeHint(string(cfg.Mappings[i].Type))
	}
}

// Validate checks the sheet config.
func (c *SheetConfig) Validate() error {
	if !sheetIDPattern.MatchString(c.ID) {
		return fmt.Errorf("invalid sheet id %q", c.ID)
	}
	if err := store.CheckIdentifier(c.Table); err != nil {
		return fmt.Errorf("sheet %s: table: %w", c.ID, err)
	}
	if err := c.Source.Validate(); err != nil {
		return fmt.Errorf("sheet %s: source: %w", c.ID, err)
	}
	if len(c.Mappings) == 0 && !c.AutoMatch {
		return fmt.Errorf("sheet %s: needs mappings or auto_match", c.ID)
	}

	fields := make(map[string]bool)
	headers := make(map[string]bool)
	for _, m := range c.Mappings {
		if strings.TrimSpace(m.SourceHeader) == "" {
			return fmt.Errorf("sheet %s: mapping for field %q has no source header", c.ID, m.Field)
		}
		if err := store.CheckFieldName(m.Field); err != nil {
			return fmt.Errorf("sheet %s: mapping %q: %w", c.ID, m.SourceHeader, err)
		}
		if fields[m.Field] {
			return fmt.Errorf("sheet %s: field %q mapped twice", c.ID, m.Field)
		}
		if headers[m.SourceHeader] {
			return fmt.Errorf("sheet %s: header %q mapped twice", c.ID, m.SourceHeader)
		}
		fields[m.Field] = true
		headers[m.SourceHeader] = true
	}

	if _, err := converter.CompileRules(c.CleanupRules); err != nil {
		return fmt.Errorf("sheet %s: cleanup rules: %w", c.ID, err)
	}
	return nil
}

// FindSheet returns the config with the given id.
func FindSheet(configs []*SheetConfig, id string) (*SheetConfig, bool) {
	for _, c := range configs {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

func yamlFiles(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to list config files: %w", err)
	}

	ymlFiles, err := filepath.Glob(filepath.Join(dir, "*.yml"))
	if err != nil {
		return nil, fmt.Errorf("failed to list config files: %w", err)
	}
	files = append(files, ymlFiles...)
	sort.Strings(files)
	return files, nil
}
