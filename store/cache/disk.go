package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	// Import the pure Go SQLite driver.
	_ "modernc.org/sqlite"
)

const diskFileName = "cache.db"

const diskSchema = `
CREATE TABLE IF NOT EXISTS entry (
	key TEXT NOT NULL PRIMARY KEY,
	query TEXT NOT NULL,
	payload BLOB NOT NULL,
	created_ts INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entry_created_ts ON entry (created_ts);
`

// DiskCache persists encoded values in a SQLite database inside a directory.
type DiskCache struct {
	db     *sql.DB
	dir    string
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// OpenDiskCache opens (creating if needed) the cache database in dir.
func OpenDiskCache(dir string, ttl time.Duration) (*DiskCache, error) {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create cache dir %s", dir)
	}

	dsn := "file:" + filepath.Join(dir, diskFileName) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open cache database in %s", dir)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(diskSchema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to migrate cache database")
	}

	return &DiskCache{
		db:     db,
		dir:    dir,
		ttl:    ttl,
		now:    time.Now,
		logger: slog.Default(),
	}, nil
}

// Dir returns the directory holding the database.
func (d *DiskCache) Dir() string { return d.dir }

// TTL returns the entry lifetime.
func (d *DiskCache) TTL() time.Duration { return d.ttl }

// Get returns the payload stored under key and the time it expires. Expired
// and corrupt rows are deleted and reported as misses.
func (d *DiskCache) Get(ctx context.Context, key string) ([]byte, time.Time, bool, error) {
	var payload []byte
	var createdTs int64
	err := d.db.QueryRowContext(ctx, `SELECT payload, created_ts FROM entry WHERE key = ?`, key).Scan(&payload, &createdTs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, errors.Wrap(err, "failed to read cache entry")
	}

	created := time.Unix(createdTs, 0)
	if d.now().Sub(created) > d.ttl {
		return nil, time.Time{}, false, d.Delete(ctx, key)
	}
	if !json.Valid(payload) {
		d.logger.Warn("removing corrupt cache entry", "key", key)
		return nil, time.Time{}, false, d.Delete(ctx, key)
	}
	return payload, created.Add(d.ttl), true, nil
}

// Set upserts payload under key and resets its age.
func (d *DiskCache) Set(ctx context.Context, key string, q Query, payload []byte) error {
	query, err := json.Marshal(q)
	if err != nil {
		return errors.Wrap(err, "failed to encode cache query")
	}
	stmt := `INSERT INTO entry (key, query, payload, created_ts) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET query = excluded.query, payload = excluded.payload, created_ts = excluded.created_ts`
	if _, err := d.db.ExecContext(ctx, stmt, key, string(query), payload, d.now().Unix()); err != nil {
		return errors.Wrap(err, "failed to write cache entry")
	}
	return nil
}

// Delete removes key.
func (d *DiskCache) Delete(ctx context.Context, key string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM entry WHERE key = ?`, key); err != nil {
		return errors.Wrap(err, "failed to delete cache entry")
	}
	return nil
}

// InvalidateAddress deletes rows whose query mentions address and returns
// their keys.
func (d *DiskCache) InvalidateAddress(ctx context.Context, address string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT key, query FROM entry`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list cache entries")
	}

	var keys []string
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "failed to scan cache entry")
		}
		var q Query
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			d.logger.Warn("skipping cache entry with unreadable query", "key", key, "error", err)
			continue
		}
		if q.Matches(address) {
			keys = append(keys, key)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, errors.Wrap(err, "failed to iterate cache entries")
	}
	rows.Close()

	for _, key := range keys {
		if err := d.Delete(ctx, key); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// ClearExpired deletes rows older than the TTL.
func (d *DiskCache) ClearExpired(ctx context.Context) (int, error) {
	cutoff := d.now().Add(-d.ttl).Unix()
	return d.exec(ctx, `DELETE FROM entry WHERE created_ts < ?`, cutoff)
}

// Clear deletes every row.
func (d *DiskCache) Clear(ctx context.Context) (int, error) {
	return d.exec(ctx, `DELETE FROM entry`)
}

func (d *DiskCache) exec(ctx context.Context, stmt string, args ...any) (int, error) {
	result, err := d.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete cache entries")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to count deleted cache entries")
	}
	return int(n), nil
}

// Stat returns the number of rows and the total payload size in bytes.
func (d *DiskCache) Stat(ctx context.Context) (int, int64, error) {
	var count int
	var size int64
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(LENGTH(payload)), 0) FROM entry`).Scan(&count, &size)
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to stat cache database")
	}
	return count, size, nil
}

// Close closes the database.
func (d *DiskCache) Close() error {
	return d.db.Close()
}
