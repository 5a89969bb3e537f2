package area

import (
	"bytes"
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/uprent-dev/commutesync/internal/errors"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLite is a durable area backed by a SQLite database. It is the
// authoritative extension storage when the extension host runs as a
// long-lived process.
//
// Watchers are notified for writes made through this handle only; a
// second process writing the same file is not observed.
type SQLite struct {
	db  *sql.DB
	now func() time.Time

	// mu serializes read-compare-write so change events carry the value
	// they replaced.
	mu       sync.Mutex
	closed   bool
	watchers watchers

	// writeMu orders writes together with their notifications, so
	// every watcher sees changes in the order they were applied.
	writeMu sync.Mutex
}

// OpenSQLite creates or opens a SQLite area at path.
func OpenSQLite(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("S024").WithDetail("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.New("S024").Wrap(fmt.Errorf("open sqlite db: %w", err))
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.New("S024").Wrap(fmt.Errorf("ping sqlite db: %w", err))
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, errors.New("S024").Wrap(fmt.Errorf("apply schema: %w", err))
	}
	return &SQLite{db: db, now: time.Now}, nil
}

// Get returns the stored value.
func (s *SQLite) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.New("S022")
	}
	value, err := s.get(ctx, key)
	if err != nil {
		return nil, errors.New("S020").WithDetail("key " + key).Wrap(err)
	}
	return value, nil
}

func (s *SQLite) get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if value == nil {
		value = []byte{}
	}
	return value, nil
}

// Set upserts value.
func (s *SQLite) Set(ctx context.Context, key string, value []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("S022")
	}
	old, err := s.get(ctx, key)
	if err != nil {
		s.mu.Unlock()
		return errors.New("S021").WithDetail("key " + key).Wrap(err)
	}
	if old != nil && bytes.Equal(old, value) {
		s.mu.Unlock()
		return nil
	}
	if value == nil {
		value = []byte{}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, s.now().UTC().UnixMilli())
	s.mu.Unlock()
	if err != nil {
		return errors.New("S021").WithDetail("key " + key).Wrap(err)
	}

	s.watchers.notify(Change{Key: key, OldValue: old, NewValue: clone(value)}, "")
	return nil
}

// Remove deletes key.
func (s *SQLite) Remove(ctx context.Context, key string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("S022")
	}
	old, err := s.get(ctx, key)
	if err != nil {
		s.mu.Unlock()
		return errors.New("S021").WithDetail("key " + key).Wrap(err)
	}
	if old == nil {
		s.mu.Unlock()
		return nil
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	s.mu.Unlock()
	if err != nil {
		return errors.New("S021").WithDetail("key " + key).Wrap(err)
	}

	s.watchers.notify(Change{Key: key, OldValue: old}, "")
	return nil
}

// Watch registers fn for writes made through this handle.
func (s *SQLite) Watch(fn func(Change)) func() {
	return s.watchers.add("", fn)
}

// Keys returns the stored keys in sorted order.
func (s *SQLite) Keys(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.New("S022")
	}
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM kv ORDER BY key`)
	if err != nil {
		return nil, errors.New("S020").Wrap(err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, errors.New("S020").Wrap(err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Close closes the database handle.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.watchers.clear()
	return s.db.Close()
}
