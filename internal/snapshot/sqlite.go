package snapshot

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteKV persists snapshots in a local SQLite database so they survive a
// process restart.
type SQLiteKV struct {
	db *sql.DB
}

// NewSQLiteKV opens (and if needed initializes) the snapshot database at path
func NewSQLiteKV(path string) (*SQLiteKV, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}

	const schema = `CREATE TABLE IF NOT EXISTS snapshots (
		key  TEXT PRIMARY KEY,
		blob BLOB NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init snapshot db: %w", err)
	}

	return &SQLiteKV{db: db}, nil
}

func (s *SQLiteKV) Save(ctx context.Context, key string, blob []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (key, blob) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET blob = excluded.blob`,
		key, blob)
	return err
}

func (s *SQLiteKV) Load(ctx context.Context, key string) ([]byte, bool, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT blob FROM snapshots WHERE key = ?`, key).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return blob, true, nil
}

func (s *SQLiteKV) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE key = ?`, key)
	return err
}

func (s *SQLiteKV) Close() error {
	return s.db.Close()
}
