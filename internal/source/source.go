// Package source builds the spreadsheet reader for a configured sheet.
//
// Three kinds of source are supported:
//   - csv:  a CSV export on disk
//   - xlsx: a worksheet of an XLSX workbook on disk
//   - url:  a CSV or XLSX export fetched over HTTP, for example a published
//     Google Sheets CSV link; transient failures are retried
package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ginjaninja78/sheet-sync/internal/csvparser"
	"github.com/ginjaninja78/sheet-sync/internal/types"
	"github.com/ginjaninja78/sheet-sync/internal/xlsxparser"
)

// Kind names a source type.
type Kind string

const (
	KindCSV  Kind = "csv"
	KindXLSX Kind = "xlsx"
	KindURL  Kind = "url"
)

// Config describes where a sheet's rows come from.
type Config struct {
	Kind Kind `yaml:"kind"`

	// Path is the file path for csv and xlsx sources.
	Path string `yaml:"path"`

	// Worksheet selects the XLSX worksheet; empty means the first one.
	Worksheet string `yaml:"worksheet"`

	// URL is the export link for url sources.
	URL string `yaml:"url"`

	// Format is the body format of url sources: csv (default) or xlsx.
	Format Kind `yaml:"format"`

	// Timeout bounds each HTTP attempt. Default: 30s.
	Timeout time.Duration `yaml:"timeout"`
}

// Validate checks that the fields required by the kind are set.
func (c Config) Validate() error {
	switch c.Kind {
	case KindCSV, KindXLSX:
		if strings.TrimSpace(c.Path) == "" {
			return fmt.Errorf("%s source requires a path", c.Kind)
		}
	case KindURL:
		if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
			return fmt.Errorf("url source requires an http(s) url, got %q", c.URL)
		}
		if c.Format != "" && c.Format != KindCSV && c.Format != KindXLSX {
			return fmt.Errorf("unsupported url format %q", c.Format)
		}
	default:
		return fmt.Errorf("unknown source kind %q", c.Kind)
	}
	return nil
}

// Reader reads every row of one worksheet.
type Reader interface {
	Read(ctx context.Context) (*types.Sheet, error)
}

// New returns the reader for a source configuration.
func New(cfg Config, settings csvparser.Settings, logger *zap.Logger) (Reader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Kind {
	case KindCSV:
		return &CSVFile{Path: cfg.Path, Settings: settings}, nil
	case KindXLSX:
		return &XLSXFile{Path: cfg.Path, Worksheet: cfg.Worksheet, Settings: settings}, nil
	default:
		return NewURL(cfg, settings, logger), nil
	}
}

// CSVFile reads a CSV export from disk.
type CSVFile struct {
	Path     string
	Settings csvparser.Settings
}

// Read parses the file.
func (c *CSVFile) Read(ctx context.Context) (*types.Sheet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return csvparser.Parse(c.Path, c.Settings)
}

// XLSXFile reads one worksheet of a workbook on disk.
type XLSXFile struct {
	Path      string
	Worksheet string
	Settings  csvparser.Settings
}

// Read parses the worksheet.
func (x *XLSXFile) Read(ctx context.Context) (*types.Sheet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return xlsxparser.ReadSheet(x.Path, x.Worksheet, x.Settings)
}
