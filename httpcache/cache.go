// Package httpcache keeps successful GET responses from the release
// databases in a local SQLite file so repeated runs over the same library do
// not hit the remote services again.
package httpcache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

// ErrLocked is returned by Open when another process holds the cache.
var ErrLocked = errors.New("cache directory is in use by another process")

const (
	dbFileName   = "responses.db"
	lockFileName = "cache.lock"
)

// Cache is an on-disk store of HTTP responses keyed by URL.
type Cache struct {
	db   *sql.DB
	lock *flock.Flock
	path string
	ttl  time.Duration
	now  func() time.Time
}

// Entry is one stored response.
type Entry struct {
	Status    int
	Header    http.Header
	Body      []byte
	FetchedAt time.Time
}

// Open creates or opens the cache in dir and takes an exclusive lock on it.
// A ttl of zero keeps entries forever.
func Open(dir string, ttl time.Duration) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory %q: %w", dir, err)
	}

	lock := flock.New(filepath.Join(dir, lockFileName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire cache lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", dir, ErrLocked)
	}

	dbPath := filepath.Join(dir, dbFileName)
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	cache := &Cache{db: db, lock: lock, path: dbPath, ttl: ttl, now: time.Now}
	if err := cache.initSchema(context.Background()); err != nil {
		_ = cache.Close()
		return nil, err
	}
	return cache, nil
}

func (c *Cache) initSchema(ctx context.Context) error {
	const schema = `CREATE TABLE IF NOT EXISTS responses (
		url TEXT PRIMARY KEY,
		status INTEGER NOT NULL,
		header TEXT NOT NULL,
		body BLOB NOT NULL,
		fetched_at INTEGER NOT NULL
	)`
	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init cache schema: %w", err)
	}
	return nil
}

// Path returns the database file location.
func (c *Cache) Path() string {
	return c.path
}

// Close closes the database and releases the directory lock.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.db != nil {
		errs = append(errs, c.db.Close())
	}
	if c.lock != nil {
		errs = append(errs, c.lock.Unlock())
	}
	return errors.Join(errs...)
}

// Get returns the stored response for url. Expired entries are reported as
// missing.
func (c *Cache) Get(ctx context.Context, url string) (Entry, bool, error) {
	var (
		entry     Entry
		header    string
		fetchedAt int64
	)
	row := c.db.QueryRowContext(ctx,
		`SELECT status, header, body, fetched_at FROM responses WHERE url = ?`, url)
	if err := row.Scan(&entry.Status, &header, &entry.Body, &fetchedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("read cache entry: %w", err)
	}

	entry.FetchedAt = time.Unix(fetchedAt, 0)
	if c.ttl > 0 && c.now().Sub(entry.FetchedAt) > c.ttl {
		return Entry{}, false, nil
	}
	if err := json.Unmarshal([]byte(header), &entry.Header); err != nil {
		return Entry{}, false, fmt.Errorf("decode cached header: %w", err)
	}
	return entry, true, nil
}

// Put stores or replaces the response for url.
func (c *Cache) Put(ctx context.Context, url string, entry Entry) error {
	header, err := json.Marshal(entry.Header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO responses (url, status, header, body, fetched_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET status = excluded.status, header = excluded.header,
			body = excluded.body, fetched_at = excluded.fetched_at`,
		url, entry.Status, string(header), entry.Body, c.now().Unix())
	if err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

// Len returns the number of stored responses, expired ones included.
func (c *Cache) Len(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM responses`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count cache entries: %w", err)
	}
	return n, nil
}

// Clear removes every stored response and returns how many there were.
func (c *Cache) Clear(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM responses`)
	if err != nil {
		return 0, fmt.Errorf("clear cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear cache: %w", err)
	}
	return n, nil
}
