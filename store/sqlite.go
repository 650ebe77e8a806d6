// Package store provides the persistence side of the pipeline's loader
// boundary: a SQLite-backed chunk store, a compressed chunk blob codec, and
// a deterministic generator for chunks with no stored row. The cache never
// sees any of this directly — it only receives a Loader function.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/IvanBrykalov/chunkstream/chunk"
)

// ErrNotFound is returned by Load when no row exists for the key.
var ErrNotFound = errors.New("store: chunk not found")

// SQLite persists chunk blobs in a single-file database.
// Safe for concurrent use; the connection pool is capped at one connection,
// which is the sane mode for the sqlite driver under mixed read/write load.
type SQLite struct {
	db *sql.DB
}

// Open creates or opens the database at path and prepares the schema.
func Open(path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("store: empty db path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA busy_timeout=5000;`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: pragma: %w", err)
		}
	}

	const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	cx         INTEGER NOT NULL,
	cz         INTEGER NOT NULL,
	data       BLOB    NOT NULL,
	updated_at TEXT    NOT NULL,
	PRIMARY KEY (cx, cz)
);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Load fetches and decodes the chunk for k.
// The signature matches cache.Loader, so s.Load can be injected directly.
func (s *SQLite) Load(ctx context.Context, k chunk.Key) (*chunk.Chunk, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM chunks WHERE cx = ? AND cz = ?`, k.X, k.Z,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: load %s: %w", k, err)
	}
	return Decode(blob)
}

// Save encodes and upserts the chunk.
func (s *SQLite) Save(ctx context.Context, c *chunk.Chunk) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO chunks (cx, cz, data, updated_at) VALUES (?, ?, ?, ?)`,
		c.Key.X, c.Key.Z, Encode(c), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store: save %s: %w", c.Key, err)
	}
	return nil
}

// Count returns the number of stored chunks.
func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error { return s.db.Close() }

// FallbackLoader returns a loader that serves stored chunks and falls back
// to the generator for keys with no row. This is the usual wiring for a
// world that is generated on demand and persisted as it changes.
func FallbackLoader(s *SQLite, gen Generator) func(context.Context, chunk.Key) (*chunk.Chunk, error) {
	return func(ctx context.Context, k chunk.Key) (*chunk.Chunk, error) {
		c, err := s.Load(ctx, k)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return gen.Load(ctx, k)
	}
}
