// Package cache stores generated Go code keyed by the source and settings
// it was generated from. Rows live in SQLite with an in-memory front map.
package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"
)

// ErrNotFound is returned by Get for unknown keys.
var ErrNotFound = errors.New("not in cache")

// Entry is one cached compilation.
type Entry struct {
	ID        string
	Key       string
	Style     string
	Code      string
	Warnings  []string
	CreatedAt time.Time
}

// Store is a compile cache.
type Store struct {
	db   *sql.DB
	path string

	mem   map[string]*Entry
	memMu sync.RWMutex
}

const schema = `CREATE TABLE IF NOT EXISTS generated (
	id         TEXT PRIMARY KEY,
	key        TEXT NOT NULL UNIQUE,
	style      TEXT NOT NULL,
	code       TEXT NOT NULL,
	warnings   TEXT NOT NULL,
	created_at TEXT NOT NULL
)`

// Key derives the cache key of a source under everything else that shapes
// the output: the input name, settings fingerprint and generator version.
func Key(source []byte, parts ...string) string {
	h := sha256.New()
	h.Write(source)

	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}

	return hex.EncodeToString(h.Sum(nil))
}

// Open opens or creates the cache database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open cache")
	}

	// concurrent compiler runs may share the file
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "set busy timeout")
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create schema")
	}

	return &Store{
		db:   db,
		path: path,
		mem:  make(map[string]*Entry),
	}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.memMu.Lock()
	s.mem = nil
	s.memMu.Unlock()

	return s.db.Close()
}

// Get returns the entry stored under key.
func (s *Store) Get(key string) (*Entry, error) {
	s.memMu.RLock()
	if e, ok := s.mem[key]; ok {
		s.memMu.RUnlock()

		return e, nil
	}
	s.memMu.RUnlock()

	var (
		e        Entry
		warnings string
		created  string
	)

	err := s.db.QueryRow("SELECT id, key, style, code, warnings, created_at FROM generated WHERE key = ?", key).
		Scan(&e.ID, &e.Key, &e.Style, &e.Code, &warnings, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "query cache")
	}

	if err := json.Unmarshal([]byte(warnings), &e.Warnings); err != nil {
		return nil, errors.Wrap(err, "decode warnings")
	}

	e.CreatedAt, err = time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return nil, errors.Wrap(err, "decode created_at")
	}

	s.remember(&e)

	tlog.V("cache").Printw("cache hit", "key", key, "id", e.ID)

	return &e, nil
}

// Put stores generated code under key, replacing an older entry.
func (s *Store) Put(key, style, code string, warnings []string) (*Entry, error) {
	if warnings == nil {
		warnings = []string{}
	}

	w, err := json.Marshal(warnings)
	if err != nil {
		return nil, errors.Wrap(err, "encode warnings")
	}

	e := &Entry{
		ID:        uuid.New().String(),
		Key:       key,
		Style:     style,
		Code:      code,
		Warnings:  warnings,
		CreatedAt: time.Now().UTC(),
	}

	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO generated (id, key, style, code, warnings, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		e.ID, e.Key, e.Style, e.Code, string(w), e.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, errors.Wrap(err, "store cache entry")
	}

	s.remember(e)

	return e, nil
}

func (s *Store) remember(e *Entry) {
	s.memMu.Lock()
	defer s.memMu.Unlock()

	s.mem[e.Key] = e
}

// Clear removes every entry and returns how many rows were deleted.
func (s *Store) Clear() (int64, error) {
	s.memMu.Lock()
	s.mem = make(map[string]*Entry)
	s.memMu.Unlock()

	res, err := s.db.Exec("DELETE FROM generated")
	if err != nil {
		return 0, errors.Wrap(err, "clear cache")
	}

	return res.RowsAffected()
}

// Stats returns the number of entries in memory and on disk.
func (s *Store) Stats() (mem, rows int, err error) {
	s.memMu.RLock()
	mem = len(s.mem)
	s.memMu.RUnlock()

	err = s.db.QueryRow("SELECT COUNT(*) FROM generated").Scan(&rows)
	if err != nil {
		return mem, 0, errors.Wrap(err, "count cache")
	}

	return mem, rows, nil
}

// Path returns the database file.
func (s *Store) Path() string { return s.path }
