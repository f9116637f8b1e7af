package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// SQLBackend implements Backend on top of a PostgreSQL table, selected via
// STORAGE_BACKEND=sql. STORAGE_PATH is interpreted as a libpq connection
// string rather than a filesystem path for this backend.
type SQLBackend struct {
	db *sql.DB
}

// NewSQLBackend opens a connection pool and ensures the backing table
// exists.
func NewSQLBackend(dsn string) (*SQLBackend, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sql backend: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sql backend: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS vault_kv (
	key   TEXT PRIMARY KEY,
	value BYTEA NOT NULL
)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &SQLBackend{db: db}, nil
}

func (s *SQLBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM vault_kv WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return value, err
}

func (s *SQLBackend) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO vault_kv (key, value) VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
	return err
}

func (s *SQLBackend) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM vault_kv WHERE key = $1`, key)
	return err
}

func (s *SQLBackend) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM vault_kv WHERE key LIKE $1 ORDER BY key`, escapeLikePrefix(prefix)+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *SQLBackend) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM vault_kv WHERE key = $1)`, key).Scan(&exists)
	return exists, err
}

func (s *SQLBackend) Close() error {
	return s.db.Close()
}

// escapeLikePrefix escapes LIKE metacharacters so a literal key prefix
// cannot be altered by `%` or `_` in a path segment.
func escapeLikePrefix(prefix string) string {
	out := make([]byte, 0, len(prefix))
	for i := 0; i < len(prefix); i++ {
		c := prefix[i]
		if c == '%' || c == '_' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return string(out)
}
