// =============================================================================
// Sheet Sync - Configuration Module
// =============================================================================
//
// Configuration comes in three layers:
//
//   1. Application config (config.yaml + environment): database, redis,
//      logging, sync tuning and directory locations. Environment variables
//      override YAML values; secrets are read from the environment only.
//
//   2. Sheet configs (one YAML file per source sheet in paths.sheets_dir):
//      where the sheet is read from, which table it syncs into and how its
//      headers map to fields.
//
//   3. Table schemas (paths.schemas_dir): the ordered field list of each
//      destination table, as YAML files or XLSX templates.
//
// =============================================================================

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/ginjaninja78/sheet-sync/internal/logging"
)

// DefaultConfigFile is read when no --config flag is given.
const DefaultConfigFile = "config.yaml"

// Config holds the application configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Log      LogConfig      `yaml:"log"`
	Sync     SyncConfig     `yaml:"sync"`
	Paths    PathsConfig    `yaml:"paths"`
}

// DatabaseConfig holds PostgreSQL connection configuration. URL, when set,
// takes precedence over the individual fields.
type DatabaseConfig struct {
	URL             string        `yaml:"-" env:"DATABASE_URL"` // Secret - may embed a password
	Host            string        `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port            int           `yaml:"port" env:"PGPORT" env-default:"5432"`
	User            string        `yaml:"user" env:"PGUSER" env-default:"sheetsync"`
	Password        string        `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database        string        `yaml:"database" env:"PGDATABASE" env-default:"sheetsync"`
	SSLMode         string        `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections  int32         `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" env:"PGMAX_CONN_LIFETIME" env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"PGMAX_CONN_IDLE_TIME" env-default:"30m"`
}

// ConnString returns the connection URL.
func (d DatabaseConfig) ConnString() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Database,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	if d.Password != "" {
		u.User = url.UserPassword(d.User, d.Password)
	} else {
		u.User = url.User(d.User)
	}
	return u.String()
}

// RedisConfig holds Redis configuration. An empty host disables Redis and
// sync locks stay in-process.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	File        string `yaml:"file" env:"LOG_FILE" env-default:""`
	Development bool   `yaml:"development" env:"LOG_DEVELOPMENT" env-default:"false"`
}

// Logging converts to the logger construction config.
func (l LogConfig) Logging() logging.Config {
	return logging.Config{Level: l.Level, File: l.File, Development: l.Development}
}

// SyncConfig tunes sync runs.
type SyncConfig struct {
	// MaxInvalidDetails caps the invalid rows listed per report.
	MaxInvalidDetails int `yaml:"max_invalid_details" env:"SYNC_MAX_INVALID_DETAILS" env-default:"100"`

	// MinMatchConfidence is the lowest matcher confidence used for
	// automatic mappings.
	MinMatchConfidence float64 `yaml:"min_match_confidence" env:"SYNC_MIN_MATCH_CONFIDENCE" env-default:"0.6"`

	// Concurrency is the number of sheets synced at once.
	Concurrency int `yaml:"concurrency" env:"SYNC_CONCURRENCY" env-default:"4"`

	// LockTTL bounds how long a crashed run can hold a sheet's lock.
	LockTTL time.Duration `yaml:"lock_ttl" env:"SYNC_LOCK_TTL" env-default:"30m"`

	// RunTimeout bounds one sheet's sync run.
	RunTimeout time.Duration `yaml:"run_timeout" env:"SYNC_RUN_TIMEOUT" env-default:"10m"`
}

// PathsConfig holds directory locations.
type PathsConfig struct {
	SheetsDir       string        `yaml:"sheets_dir" env:"SHEETS_DIR" env-default:"./sheets"`
	SchemasDir      string        `yaml:"schemas_dir" env:"SCHEMAS_DIR" env-default:"./schemas"`
	ReportsDir      string        `yaml:"reports_dir" env:"REPORTS_DIR" env-default:"./reports"`
	ReportNameFmt   string        `yaml:"report_name_format" env:"REPORT_NAME_FORMAT" env-default:"{sheet}_{timestamp}_{uuid}"`
	ReportRetention time.Duration `yaml:"report_retention" env:"REPORT_RETENTION" env-default:"720h"`
}

// Load reads configuration from path with environment variable overrides.
// A missing file is not an error: defaults and the environment still apply.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFile
	}

	cfg := &Config{}
	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Sync.Concurrency < 1 {
		return fmt.Errorf("sync.concurrency must be at least 1, got %d", c.Sync.Concurrency)
	}
	if c.Sync.MinMatchConfidence <= 0 || c.Sync.MinMatchConfidence > 1 {
		return fmt.Errorf("sync.min_match_confidence must be in (0, 1], got %g", c.Sync.MinMatchConfidence)
	}
	if c.Sync.MaxInvalidDetails < 1 {
		return fmt.Errorf("sync.max_invalid_details must be at least 1, got %d", c.Sync.MaxInvalidDetails)
	}
	if c.Database.URL == "" && c.Database.Host == "" {
		return errors.New("database.host or DATABASE_URL is required")
	}
	return nil
}
