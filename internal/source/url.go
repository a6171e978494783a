package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ginjaninja78/sheet-sync/internal/csvparser"
	"github.com/ginjaninja78/sheet-sync/internal/retry"
	"github.com/ginjaninja78/sheet-sync/internal/types"
	"github.com/ginjaninja78/sheet-sync/internal/xlsxparser"
)

const (
	defaultTimeout = 30 * time.Second

	// maxBodyBytes bounds a downloaded export.
	maxBodyBytes = 64 << 20
)

// URL fetches a sheet export over HTTP.
type URL struct {
	url       string
	format    Kind
	worksheet string
	settings  csvparser.Settings
	client    *http.Client
	retry     *retry.Config
	maxBytes  int64
	logger    *zap.Logger
}

// NewURL creates a URL reader.
func NewURL(cfg Config, settings csvparser.Settings, logger *zap.Logger) *URL {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	format := cfg.Format
	if format == "" {
		format = KindCSV
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &URL{
		url:       cfg.URL,
		format:    format,
		worksheet: cfg.Worksheet,
		settings:  settings,
		client:    &http.Client{Timeout: timeout},
		retry:     retry.DefaultConfig(),
		maxBytes:  maxBodyBytes,
		logger:    logger.Named("source"),
	}
}

// WithRetry replaces the retry policy.
func (u *URL) WithRetry(cfg *retry.Config) *URL {
	u.retry = cfg
	return u
}

// WithMaxBytes replaces the body size limit.
func (u *URL) WithMaxBytes(n int64) *URL {
	u.maxBytes = n
	return u
}

// Read downloads the export and parses it.
func (u *URL) Read(ctx context.Context) (*types.Sheet, error) {
	attempt := 0
	body, err := retry.DoWithResult(ctx, u.retry, func() ([]byte, error) {
		attempt++
		body, err := u.fetch(ctx)
		if err != nil {
			if retry.IsPermanent(err) {
				return nil, err
			}
			if !retry.IsRetryable(err) {
				return nil, retry.Permanent(err)
			}
			u.logger.Warn("Fetch failed, retrying",
				zap.Int("attempt", attempt),
				zap.Error(err))
		}
		return body, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sheet export: %w", err)
	}

	if u.format == KindXLSX {
		return xlsxparser.ReadSheetFrom(bytes.NewReader(body), u.worksheet, u.settings)
	}
	return csvparser.ParseReader(bytes.NewReader(body), u.settings)
}

func (u *URL) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.url, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		statusErr := fmt.Errorf("unexpected status %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, retry.Permanent(statusErr)
		}
		return nil, statusErr
	}

	// One byte past the limit tells a complete body from a truncated one.
	body, err := io.ReadAll(io.LimitReader(resp.Body, u.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > u.maxBytes {
		return nil, retry.Permanent(fmt.Errorf("export is larger than %d bytes", u.maxBytes))
	}
	return body, nil
}
