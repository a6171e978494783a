package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ginjaninja78/sheet-sync/internal/apperrors"
	"github.com/ginjaninja78/sheet-sync/internal/types"
)

const (
	pgUniqueViolation = "23505"
	pgUndefinedTable  = "42P01"
)

// Config holds database connection configuration.
type Config struct {
	URL             string
	MaxConnections  int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Connect creates a connection pool and pings the database.
func Connect(ctx context.Context, cfg *Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConnections
	if poolConfig.MaxConns == 0 {
		poolConfig.MaxConns = 10
	}

	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	if poolConfig.MaxConnLifetime == 0 {
		poolConfig.MaxConnLifetime = time.Hour
	}

	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	if poolConfig.MaxConnIdleTime == 0 {
		poolConfig.MaxConnIdleTime = time.Minute * 30
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: failed to ping database: %v", apperrors.ErrStoreUnavailable, err)
	}

	return pool, nil
}

// Postgres stores records in per-sheet destination tables.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres wraps a connection pool.
func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) *Postgres {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Postgres{pool: pool, logger: logger.Named("store")}
}

func columnType(hint types.TypeHint) string {
	switch hint {
	case types.TypeDate:
		return "date"
	case types.TypeCurrency, types.TypeNumber:
		return "numeric"
	case types.TypeBoolean:
		return "boolean"
	default:
		return "text"
	}
}

func quote(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// EnsureTable creates the destination table if it does not exist and adds
// any field columns it is missing. Existing columns are never altered or
// dropped.
func (p *Postgres) EnsureTable(ctx context.Context, table string, fields []types.FieldSpec) error {
	if err := CheckIdentifier(table); err != nil {
		return err
	}
	for _, f := range fields {
		if err := CheckFieldName(f.Name); err != nil {
			return err
		}
	}

	quoted := quote(table)
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id uuid PRIMARY KEY,
			source_sheet_id text NOT NULL,
			origin_row_index integer NOT NULL,
			raw_data jsonb NOT NULL DEFAULT '{}'::jsonb,
			created_at timestamptz NOT NULL DEFAULT now(),
			last_synced_at timestamptz NOT NULL DEFAULT now()
		)`, quoted),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (source_sheet_id, origin_row_index)`,
			quote(table+"_source_row_key"), quoted),
	}
	for _, f := range fields {
		stmts = append(stmts, fmt.Sprintf(`ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s`,
			quoted, quote(f.Name), columnType(f.Type)))
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, stmt := range stmts {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure table %s: %w", table, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	p.logger.Debug("Ensured destination table", zap.String("table", table), zap.Int("fields", len(fields)))
	return nil
}

// Upsert writes a record under its idempotency key: UPDATE first, INSERT
// when no row matched, and UPDATE again if the INSERT lost a race.
func (p *Postgres) Upsert(ctx context.Context, table string, key types.RecordKey, record types.CandidateRecord) (types.UpsertOutcome, error) {
	if err := CheckIdentifier(table); err != nil {
		return "", err
	}

	names := make([]string, 0, len(record.Fields))
	for name := range record.Fields {
		if err := CheckFieldName(name); err != nil {
			return "", err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	raw, err := json.Marshal(nonNilUnmapped(record.Unmapped))
	if err != nil {
		return "", fmt.Errorf("failed to encode raw data: %w", err)
	}

	updated, err := p.update(ctx, table, key, names, record.Fields, raw)
	if err != nil {
		return "", err
	}
	if updated {
		return types.Updated, nil
	}

	err = p.insert(ctx, table, key, names, record.Fields, raw)
	if err == nil {
		return types.Inserted, nil
	}
	if !errors.Is(err, apperrors.ErrConflict) {
		return "", err
	}

	p.logger.Debug("Insert conflicted, retrying as update", zap.String("table", table), zap.Stringer("key", key))
	updated, err = p.update(ctx, table, key, names, record.Fields, raw)
	if err != nil {
		return "", err
	}
	if !updated {
		return "", fmt.Errorf("failed to upsert %s: %w", key, apperrors.ErrConflict)
	}
	return types.Updated, nil
}

func (p *Postgres) update(ctx context.Context, table string, key types.RecordKey, names []string, fields map[string]any, raw []byte) (bool, error) {
	args := []any{key.SourceSheetID, key.RowIndex, raw}
	sets := []string{"raw_data = $3", "last_synced_at = now()"}
	for _, name := range names {
		args = append(args, fields[name])
		sets = append(sets, fmt.Sprintf("%s = $%d", quote(name), len(args)))
	}

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE source_sheet_id = $1 AND origin_row_index = $2`,
		quote(table), strings.Join(sets, ", "))

	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, translateError(fmt.Sprintf("failed to update %s", key), err)
	}
	return tag.RowsAffected() > 0, nil
}

func (p *Postgres) insert(ctx context.Context, table string, key types.RecordKey, names []string, fields map[string]any, raw []byte) error {
	columns := []string{"id", "source_sheet_id", "origin_row_index", "raw_data"}
	args := []any{uuid.New(), key.SourceSheetID, key.RowIndex, raw}
	for _, name := range names {
		columns = append(columns, quote(name))
		args = append(args, fields[name])
	}

	placeholders := make([]string, len(args))
	for i := range args {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		quote(table), strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	if _, err := p.pool.Exec(ctx, query, args...); err != nil {
		return translateError(fmt.Sprintf("failed to insert %s", key), err)
	}
	return nil
}

// Query returns stored records ordered by creation time.
func (p *Postgres) Query(ctx context.Context, table string, filter Filter) ([]types.StoredRecord, error) {
	if err := CheckIdentifier(table); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT * FROM %s`, quote(table))
	var args []any
	if filter.SourceSheetID != "" {
		query += ` WHERE source_sheet_id = $1`
		args = append(args, filter.SourceSheetID)
	}
	query += ` ORDER BY created_at, id`

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, translateError(fmt.Sprintf("failed to query %s", table), err)
	}

	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, translateError(fmt.Sprintf("failed to read rows from %s", table), err)
	}

	records := make([]types.StoredRecord, 0, len(maps))
	for _, m := range maps {
		rec, err := storedFromRow(m)
		if err != nil {
			return nil, fmt.Errorf("failed to decode row of %s: %w", table, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Delete removes records by id.
func (p *Postgres) Delete(ctx context.Context, table string, ids []string) (int, error) {
	if err := CheckIdentifier(table); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	parsed := make([]uuid.UUID, len(ids))
	for i, id := range ids {
		u, err := uuid.Parse(id)
		if err != nil {
			return 0, fmt.Errorf("invalid record id %q: %w", id, err)
		}
		parsed[i] = u
	}

	tag, err := p.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, quote(table)), parsed)
	if err != nil {
		return 0, translateError(fmt.Sprintf("failed to delete from %s", table), err)
	}

	p.logger.Info("Deleted records", zap.String("table", table), zap.Int64("count", tag.RowsAffected()))
	return int(tag.RowsAffected()), nil
}

func translateError(msg string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w", msg, apperrors.ErrConflict)
		case pgUndefinedTable:
			return fmt.Errorf("%s: %w", msg, apperrors.ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func nonNilUnmapped(unmapped map[string]string) map[string]string {
	if unmapped == nil {
		return map[string]string{}
	}
	return unmapped
}

// storedFromRow splits a destination row into system columns and fields.
func storedFromRow(row map[string]any) (types.StoredRecord, error) {
	var rec types.StoredRecord
	rec.Fields = make(map[string]any)
	rec.Unmapped = make(map[string]string)

	for col, value := range row {
		switch col {
		case ColumnID:
			id, err := toUUID(value)
			if err != nil {
				return rec, err
			}
			rec.ID = id
		case ColumnSourceSheet:
			rec.Key.SourceSheetID, _ = value.(string)
		case ColumnRowIndex:
			n, _ := value.(int32)
			rec.Key.RowIndex = int(n)
		case ColumnCreatedAt:
			rec.CreatedAt, _ = value.(time.Time)
		case ColumnLastSyncedAt:
			rec.LastSyncedAt, _ = value.(time.Time)
		case ColumnRawData:
			if m, ok := value.(map[string]any); ok {
				for k, v := range m {
					s, _ := v.(string)
					rec.Unmapped[k] = s
				}
			}
		default:
			rec.Fields[col] = fieldValue(value)
		}
	}
	return rec, nil
}

func toUUID(value any) (uuid.UUID, error) {
	switch v := value.(type) {
	case [16]byte:
		return uuid.UUID(v), nil
	case string:
		return uuid.Parse(v)
	default:
		return uuid.Nil, fmt.Errorf("unexpected id type %T", value)
	}
}

// fieldValue converts a scanned column back to the record value types.
func fieldValue(value any) any {
	switch v := value.(type) {
	case pgtype.Numeric:
		if !v.Valid || v.NaN || v.Int == nil {
			return nil
		}
		return decimal.NewFromBigInt(v.Int, v.Exp)
	case time.Time:
		return types.DateOf(v)
	default:
		return v
	}
}
