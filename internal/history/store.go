package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"vidshrink/internal/config"
)

const recordColumns = `source_path, file_name, duration_seconds, original_size_bytes,
    original_bitrate_mbps, target_bitrate_mbps, compressed_size_bytes,
    compression_ratio, impact_label, impact_score, status, updated_at`

// upsertSQL leaves stored values alone when the new value is NULL and refuses
// to replace a completed status with anything but another completed status.
const upsertSQL = `INSERT INTO compression_records (` + recordColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(source_path) DO UPDATE SET
    file_name             = COALESCE(excluded.file_name, compression_records.file_name),
    duration_seconds      = COALESCE(excluded.duration_seconds, compression_records.duration_seconds),
    original_size_bytes   = COALESCE(excluded.original_size_bytes, compression_records.original_size_bytes),
    original_bitrate_mbps = COALESCE(excluded.original_bitrate_mbps, compression_records.original_bitrate_mbps),
    target_bitrate_mbps   = COALESCE(excluded.target_bitrate_mbps, compression_records.target_bitrate_mbps),
    compressed_size_bytes = COALESCE(excluded.compressed_size_bytes, compression_records.compressed_size_bytes),
    compression_ratio     = COALESCE(excluded.compression_ratio, compression_records.compression_ratio),
    impact_label          = COALESCE(excluded.impact_label, compression_records.impact_label),
    impact_score          = COALESCE(excluded.impact_score, compression_records.impact_score),
    status                = excluded.status,
    updated_at            = excluded.updated_at
WHERE compression_records.status NOT IN (?, ?) OR excluded.status IN (?, ?)`

// Store is the SQLite-backed history. Writes are serialised; reads run
// concurrently under WAL.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens the history database under the configured state directory.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.HistoryPath())
}

// OpenPath opens (creating if needed) the database at path and applies
// migrations.
func OpenPath(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Upsert writes rec and reports whether the store changed. Transient
// statuses and attempts to overwrite a completed record with a non-completed
// status are dropped without error.
func (s *Store) Upsert(ctx context.Context, rec Record) (bool, error) {
	rec.SourcePath = strings.TrimSpace(rec.SourcePath)
	rec.Status = strings.TrimSpace(rec.Status)
	if rec.SourcePath == "" {
		return false, errors.New("upsert record: source path is required")
	}
	if rec.Status == "" {
		return false, errors.New("upsert record: status is required")
	}
	if IsTransient(rec.Status) {
		return false, nil
	}
	if rec.Timestamp == "" {
		rec.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, upsertSQL,
		rec.SourcePath,
		nullableString(rec.FileName),
		nullableFloat(rec.DurationSeconds),
		nullableInt(rec.OriginalSizeBytes),
		nullableFloat(rec.OriginalBitrateMbps),
		nullableFloat(rec.TargetBitrateMbps),
		nullableInt(rec.CompressedSizeBytes),
		nullableFloat(rec.CompressionRatio),
		nullableString(rec.ImpactLabel),
		nullableFloat(rec.ImpactScore),
		rec.Status,
		rec.Timestamp,
		StatusCompleted, StatusCompletedDegraded,
		StatusCompleted, StatusCompletedDegraded,
	)
	if err != nil {
		return false, fmt.Errorf("upsert record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("upsert record: rows affected: %w", err)
	}
	return affected > 0, nil
}

// Get returns the record for sourcePath, or nil when none exists.
func (s *Store) Get(ctx context.Context, sourcePath string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM compression_records WHERE source_path = ?`, sourcePath)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// List returns records, most recently updated first. A limit of zero or
// less returns every record.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM compression_records ORDER BY updated_at DESC, source_path`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// Totals sums sizes across completed records.
func (s *Store) Totals(ctx context.Context) (Totals, error) {
	var totals Totals
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1),
        COALESCE(SUM(original_size_bytes), 0),
        COALESCE(SUM(compressed_size_bytes), 0)
    FROM compression_records WHERE status IN (?, ?)`, StatusCompleted, StatusCompletedDegraded)
	if err := row.Scan(&totals.Completed, &totals.OriginalSizeBytes, &totals.CompressedSizeBytes); err != nil {
		return Totals{}, fmt.Errorf("history totals: %w", err)
	}
	totals.SavedBytes = totals.OriginalSizeBytes - totals.CompressedSizeBytes
	return totals, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		rec          Record
		fileName     sql.NullString
		duration     sql.NullFloat64
		originalSize sql.NullInt64
		originalRate sql.NullFloat64
		targetRate   sql.NullFloat64
		encodedSize  sql.NullInt64
		ratio        sql.NullFloat64
		impactLabel  sql.NullString
		impactScore  sql.NullFloat64
	)
	if err := row.Scan(
		&rec.SourcePath,
		&fileName,
		&duration,
		&originalSize,
		&originalRate,
		&targetRate,
		&encodedSize,
		&ratio,
		&impactLabel,
		&impactScore,
		&rec.Status,
		&rec.Timestamp,
	); err != nil {
		return nil, err
	}
	rec.FileName = fileName.String
	rec.DurationSeconds = duration.Float64
	rec.OriginalSizeBytes = originalSize.Int64
	rec.OriginalBitrateMbps = originalRate.Float64
	rec.TargetBitrateMbps = targetRate.Float64
	rec.CompressedSizeBytes = encodedSize.Int64
	rec.CompressionRatio = ratio.Float64
	rec.ImpactLabel = impactLabel.String
	rec.ImpactScore = impactScore.Float64
	return &rec, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func nullableFloat(value float64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullableInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
