package blobstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/liliang-cn/hybridann"
)

// SQLiteStore is a real persisted Store backed by a single SQLite
// database file, grounded on the teacher's pkg/core SQLite init/pragma
// pattern: WAL journaling, a bounded busy timeout, and a small page
// cache sized for a library rather than a server.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if absent) a SQLite-backed Store at
// path and ensures its schema exists.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_cache_size=-2000", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, hybridann.WrapError("sqlitestore.open", fmt.Errorf("%w: %v", hybridann.ErrTransport, err))
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(2 * time.Hour)

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS blobs (
			path TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		db.Close()
		return nil, hybridann.WrapError("sqlitestore.open", fmt.Errorf("%w: %v", hybridann.ErrTransport, err))
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, path string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM blobs WHERE path = ?`, path).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, hybridann.WrapError("sqlitestore.get", hybridann.ErrNotFound)
	}
	if err != nil {
		return nil, hybridann.WrapError("sqlitestore.get", fmt.Errorf("%w: %v", hybridann.ErrTransport, err))
	}
	return data, nil
}

func (s *SQLiteStore) Put(ctx context.Context, path string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blobs (path, data) VALUES (?, ?)
		ON CONFLICT(path) DO UPDATE SET data = excluded.data
	`, path, data)
	if err != nil {
		return hybridann.WrapError("sqlitestore.put", fmt.Errorf("%w: %v", hybridann.ErrTransport, err))
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, path string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE path = ?`, path); err != nil {
		return hybridann.WrapError("sqlitestore.delete", fmt.Errorf("%w: %v", hybridann.ErrTransport, err))
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path FROM blobs WHERE path LIKE ? ORDER BY path`, prefix+"%")
	if err != nil {
		return nil, hybridann.WrapError("sqlitestore.list", fmt.Errorf("%w: %v", hybridann.ErrTransport, err))
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, hybridann.WrapError("sqlitestore.list", fmt.Errorf("%w: %v", hybridann.ErrTransport, err))
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
