package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"musicsync/internal/logging"
	"musicsync/internal/services"
)

// ErrClosed is wrapped into the storage error returned after Close.
var ErrClosed = errors.New("catalog is closed")

const component = "catalog"

// Store is the sqlite-backed catalog.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
	logger *slog.Logger
}

// Open creates or opens the catalog at path. A missing file is created with an
// empty schema; an unreadable or foreign file fails with services.ErrStorage and
// leaves nothing open.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	logger = logging.NewComponentLogger(logger, component)
	if strings.TrimSpace(path) == "" {
		return nil, services.Wrap(services.ErrStorage, component, "open", "empty catalog path", nil)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, services.Wrap(services.ErrStorage, component, "open", "create catalog directory", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, component, "open", "open sqlite db", err)
	}

	// The snapshot is uploaded as one file, so no WAL sidecars.
	pragmas := []string{
		"PRAGMA journal_mode=DELETE",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = FULL",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, services.Wrap(services.ErrStorage, component, "open", fmt.Sprintf("apply pragma %q", pragma), execErr)
		}
	}

	var check string
	if err := db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&check); err != nil {
		_ = db.Close()
		return nil, services.Wrap(services.ErrStorage, component, "open", "integrity check", err)
	}
	if check != "ok" {
		_ = db.Close()
		return nil, services.Wrap(services.ErrStorage, component, "open", "integrity check failed: "+check, nil)
	}

	store := &Store{db: db, path: path, logger: logger}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, services.Wrap(services.ErrStorage, component, "open", "initialize schema", err)
	}

	logger.Debug("catalog opened",
		logging.String(logging.FieldEventType, "catalog_opened"),
		logging.String("path", path),
	)
	return store, nil
}

// Path returns the backing file location.
func (s *Store) Path() string {
	return s.path
}

// Close flushes and releases the database. Closing twice is a no-op.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return services.Wrap(services.ErrStorage, component, "close", "", err)
	}
	s.logger.Debug("catalog closed", logging.String(logging.FieldEventType, "catalog_closed"))
	return nil
}

// Lookup returns the record for sourcePath, or nil when none exists.
func (s *Store) Lookup(ctx context.Context, sourcePath string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen("lookup"); err != nil {
		return nil, err
	}

	var (
		rec Record
		err error
	)
	retryErr := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM synchronized_files WHERE source_path = ?`, sourcePath)
		rec, err = scanRecord(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	})
	if retryErr != nil {
		return nil, services.Wrap(services.ErrStorage, component, "lookup", sourcePath, retryErr)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return &rec, nil
}

// Upsert inserts rec or fully overwrites the record with the same source path.
func (s *Store) Upsert(ctx context.Context, rec Record) (Record, error) {
	if strings.TrimSpace(rec.SourcePath) == "" {
		return Record{}, errors.New("catalog upsert: empty source path")
	}
	if len(rec.ContentHash) != HashSize {
		return Record{}, fmt.Errorf("catalog upsert %s: content hash must be %d bytes, got %d", rec.SourcePath, HashSize, len(rec.ContentHash))
	}
	rec = rec.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen("upsert"); err != nil {
		return Record{}, err
	}

	err := retryOnBusy(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx,
			`INSERT INTO synchronized_files (source_path, modified_at, content_hash, target_file_name)
             VALUES (?, ?, ?, ?)
             ON CONFLICT(source_path) DO UPDATE SET
                 modified_at = excluded.modified_at,
                 content_hash = excluded.content_hash,
                 target_file_name = excluded.target_file_name`,
			rec.SourcePath,
			rec.ModifiedAt.Format(time.RFC3339Nano),
			rec.ContentHash,
			rec.TargetFileName,
		)
		return execErr
	})
	if err != nil {
		return Record{}, services.Wrap(services.ErrStorage, component, "upsert", rec.SourcePath, err)
	}
	return rec, nil
}

// Delete removes the record for sourcePath. A missing record is not an error.
func (s *Store) Delete(ctx context.Context, sourcePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen("delete"); err != nil {
		return err
	}
	err := retryOnBusy(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx, `DELETE FROM synchronized_files WHERE source_path = ?`, sourcePath)
		return execErr
	})
	if err != nil {
		return services.Wrap(services.ErrStorage, component, "delete", sourcePath, err)
	}
	return nil
}

// ListAll returns every record ordered by source path.
func (s *Store) ListAll(ctx context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen("list"); err != nil {
		return nil, err
	}

	var records []Record
	err := retryOnBusy(ctx, func() error {
		records = records[:0]
		rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM synchronized_files ORDER BY source_path`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, component, "list", "", err)
	}
	return records, nil
}

// Count returns the number of records.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpen("count"); err != nil {
		return 0, err
	}
	var count int
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM synchronized_files`).Scan(&count)
	})
	if err != nil {
		return 0, services.Wrap(services.ErrStorage, component, "count", "", err)
	}
	return count, nil
}

func (s *Store) ensureOpen(operation string) error {
	if s == nil || s.closed {
		return services.Wrap(services.ErrStorage, component, operation, "", ErrClosed)
	}
	return nil
}

const recordColumns = `source_path, modified_at, content_hash, target_file_name`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec      Record
		modified string
	)
	if err := row.Scan(&rec.SourcePath, &modified, &rec.ContentHash, &rec.TargetFileName); err != nil {
		return Record{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, modified)
	if err != nil {
		return Record{}, fmt.Errorf("parse modified_at for %s: %w", rec.SourcePath, err)
	}
	rec.ModifiedAt = ts.UTC()
	return rec, nil
}
