// Package cache is a durable TTL key/value store for encoded pipeline
// decisions (spec §4.5), backed by a SQLite file on disk.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite" // register the sqlite driver

	"go.uber.org/zap"
)

// DefaultTTL is the floor a zero or negative TTL clamps to (spec
// §4.5).
const DefaultTTL = time.Minute

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	cache_key  TEXT PRIMARY KEY,
	cache_value TEXT NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_expires_at ON cache_entries(expires_at);
`

// Cache is a handle to the on-disk decision cache. The zero value is
// not usable; construct with Open.
type Cache struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (creating if necessary) the SQLite file at path and
// ensures its schema exists.
func Open(path string, logger *zap.Logger) (*Cache, error) {
	u := url.URL{
		Scheme:   "file",
		Opaque:   path,
		RawQuery: url.Values{"_pragma": {"journal_mode(WAL)", "busy_timeout(5000)"}}.Encode(),
	}
	db, err := sql.Open("sqlite", u.String())
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping cache database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}
	return &Cache{db: db, logger: logger}, nil
}

// Close releases the underlying database handle. Must be called when
// the cache is no longer needed.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the cached value for key, or (_, false, nil) on a miss
// or expiry. An expired row is deleted as part of the read.
func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	var expiresAt int64
	err := c.db.QueryRowContext(ctx, `SELECT cache_value, expires_at FROM cache_entries WHERE cache_key = ?`, key).Scan(&value, &expiresAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("query cache entry: %w", err)
	}

	if expiresAt <= time.Now().Unix() {
		if _, err := c.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE cache_key = ?`, key); err != nil {
			c.logger.Warn("failed to evict expired cache entry", zap.String("key", key), zap.Error(err))
		}
		return "", false, nil
	}
	return value, true, nil
}

// Set upserts key with value, expiring ttl from now. A zero or
// negative ttl clamps to DefaultTTL; a ttl whose expiry would overflow
// the signed-64 timestamp is a hard error.
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	now := time.Now()
	expiresAt := now.Add(ttl)
	if expiresAt.Before(now) {
		return fmt.Errorf("cache: ttl %s overflows expiry timestamp", ttl)
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO cache_entries (cache_key, cache_value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET cache_value = excluded.cache_value, expires_at = excluded.expires_at
	`, key, value, expiresAt.Unix())
	if err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}
