package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/ginjaninja78/sheet-sync/internal/csvparser"
	"github.com/ginjaninja78/sheet-sync/internal/retry"
)

const classCSV = "姓名,email,上課日期,授課老師\n張小明,ming@example.com,2025-01-15,王老師\n"

func fastRetry() *retry.Config {
	return &retry.Config{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		valid bool
	}{
		{"csv", Config{Kind: KindCSV, Path: "a.csv"}, true},
		{"csv without path", Config{Kind: KindCSV}, false},
		{"xlsx", Config{Kind: KindXLSX, Path: "a.xlsx", Worksheet: "五月"}, true},
		{"url", Config{Kind: KindURL, URL: "https://example.com/export?format=csv"}, true},
		{"url xlsx", Config{Kind: KindURL, URL: "https://example.com/a.xlsx", Format: KindXLSX}, true},
		{"url bad scheme", Config{Kind: KindURL, URL: "ftp://example.com/a.csv"}, false},
		{"url bad format", Config{Kind: KindURL, URL: "https://example.com", Format: "ods"}, false},
		{"unknown", Config{Kind: "gsheet"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestNew_CSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "class.csv")
	require.NoError(t, os.WriteFile(path, []byte(classCSV), 0o644))

	reader, err := New(Config{Kind: KindCSV, Path: path}, csvparser.Settings{}, zap.NewNop())
	require.NoError(t, err)
	require.IsType(t, &CSVFile{}, reader)

	sheet, err := reader.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"姓名", "email", "上課日期", "授課老師"}, sheet.Headers)
	require.Len(t, sheet.Rows, 1)
	assert.Equal(t, "張小明", sheet.Rows[0].Values[0])
}

func TestNew_XLSXFile(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"員工編號", "金額"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{"E001", "NT$86,000"}))
	path := filepath.Join(t.TempDir(), "expense.xlsx")
	require.NoError(t, f.SaveAs(path))

	reader, err := New(Config{Kind: KindXLSX, Path: path}, csvparser.Settings{}, nil)
	require.NoError(t, err)

	sheet, err := reader.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"員工編號", "金額"}, sheet.Headers)
	assert.Equal(t, []string{"E001", "NT$86,000"}, sheet.Rows[0].Values)
}

func TestURL_ReadCSV(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte(classCSV))
	}))
	defer srv.Close()

	reader, err := New(Config{Kind: KindURL, URL: srv.URL}, csvparser.Settings{}, zap.NewNop())
	require.NoError(t, err)

	sheet, err := reader.Read(context.Background())
	require.NoError(t, err)
	require.Len(t, sheet.Rows, 1)
	assert.Equal(t, "王老師", sheet.Rows[0].Values[3])
}

func TestURL_ReadXLSX(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"姓名", "email"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{"張小明", "ming@example.com"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())
	payload := buf.Bytes()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	reader := NewURL(Config{Kind: KindURL, URL: srv.URL, Format: KindXLSX}, csvparser.Settings{}, nil)

	sheet, err := reader.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"姓名", "email"}, sheet.Headers)
	assert.Equal(t, "ming@example.com", sheet.Rows[0].Values[1])
}

func TestURL_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(classCSV))
	}))
	defer srv.Close()

	reader := NewURL(Config{Kind: KindURL, URL: srv.URL}, csvparser.Settings{}, zap.NewNop()).WithRetry(fastRetry())

	sheet, err := reader.Read(context.Background())
	require.NoError(t, err)
	assert.Len(t, sheet.Rows, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestURL_ClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	reader := NewURL(Config{Kind: KindURL, URL: srv.URL}, csvparser.Settings{}, zap.NewNop()).WithRetry(fastRetry())

	_, err := reader.Read(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Equal(t, int32(1), calls.Load())
}

func TestURL_GivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	reader := NewURL(Config{Kind: KindURL, URL: srv.URL}, csvparser.Settings{}, zap.NewNop()).WithRetry(fastRetry())

	_, err := reader.Read(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Equal(t, int32(3), calls.Load())
}

func TestURL_OversizedExportFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(classCSV))
	}))
	defer srv.Close()

	reader := NewURL(Config{Kind: KindURL, URL: srv.URL}, csvparser.Settings{}, zap.NewNop()).
		WithRetry(fastRetry()).
		WithMaxBytes(int64(len(classCSV) - 1))

	_, err := reader.Read(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "larger than")
	assert.Equal(t, int32(1), calls.Load())

	// A body exactly at the limit is complete.
	reader.WithMaxBytes(int64(len(classCSV)))
	sheet, err := reader.Read(context.Background())
	require.NoError(t, err)
	require.Len(t, sheet.Rows, 1)
}
