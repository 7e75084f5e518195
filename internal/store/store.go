package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// ErrClosed is returned by operations on a closed Store or Recorder.
var ErrClosed = errors.New("store: closed")

// Store is the SQLite declaration freshness cache.
//
// Node IDs are only meaningful inside the process that parsed the tree, so
// the store also remembers which declaration row each indexed node maps to.
// Invalidations for nodes that were never indexed in this process are
// ignored.
type Store struct {
	db *sql.DB

	mu     sync.RWMutex
	nodes  map[uint64]int64 // node ID -> declarations.id
	closed bool
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}
	return &Store{db: db, nodes: make(map[uint64]int64)}, nil
}

// Open is NewStore followed by Migrate.
func Open(dbPath string) (*Store, error) {
	s, err := NewStore(dbPath)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.nodes = nil
	s.mu.Unlock()
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS files (
  id              INTEGER PRIMARY KEY,
  path            TEXT NOT NULL UNIQUE,
  hash            TEXT NOT NULL,
  last_indexed    TIMESTAMP
);

CREATE TABLE IF NOT EXISTS declarations (
  id              INTEGER PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
  node_id         INTEGER NOT NULL,
  name            TEXT NOT NULL,
  type            TEXT NOT NULL,
  ordinal         INTEGER NOT NULL,
  depth           INTEGER NOT NULL,
  start_byte      INTEGER NOT NULL,
  end_byte        INTEGER NOT NULL,
  fingerprint     TEXT NOT NULL,
  dirty           BOOLEAN NOT NULL DEFAULT FALSE,
  generation      INTEGER NOT NULL DEFAULT 0,
  UNIQUE (file_id, name, type, ordinal)
);

CREATE TABLE IF NOT EXISTS invalidations (
  id              INTEGER PRIMARY KEY,
  declaration_id  INTEGER NOT NULL REFERENCES declarations(id) ON DELETE CASCADE,
  generation      INTEGER NOT NULL,
  external        BOOLEAN NOT NULL DEFAULT FALSE,
  recorded_at     TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_declarations_file ON declarations(file_id);
CREATE INDEX IF NOT EXISTS idx_declarations_dirty ON declarations(dirty);
CREATE INDEX IF NOT EXISTS idx_invalidations_declaration ON invalidations(declaration_id);
`

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *Store) lookup(nodeID uint64) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, false, ErrClosed
	}
	id, ok := s.nodes[nodeID]
	return id, ok, nil
}

func (s *Store) remember(ids map[uint64]int64, forget []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if len(forget) > 0 {
		gone := make(map[int64]bool, len(forget))
		for _, id := range forget {
			gone[id] = true
		}
		for node, id := range s.nodes {
			if gone[id] {
				delete(s.nodes, node)
			}
		}
	}
	for node, id := range ids {
		s.nodes[node] = id
	}
	return nil
}

// DeleteFile transactionally removes a file, its declarations and their
// invalidation history.
func (s *Store) DeleteFile(path string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	defer tx.Rollback()

	var fileID int64
	err = tx.QueryRow("SELECT id FROM files WHERE path = ?", path).Scan(&fileID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("store: query file: %w", err)
	}

	declIDs, err := queryIDs(tx, "SELECT id FROM declarations WHERE file_id = ?", fileID)
	if err != nil {
		return fmt.Errorf("store: query declarations: %w", err)
	}
	if len(declIDs) > 0 {
		q := "DELETE FROM invalidations WHERE declaration_id IN (" + placeholderList(len(declIDs)) + ")"
		if _, err := tx.Exec(q, int64sToArgs(declIDs)...); err != nil {
			return fmt.Errorf("store: delete invalidations: %w", err)
		}
	}
	for _, q := range []string{
		"DELETE FROM declarations WHERE file_id = ?",
		"DELETE FROM files WHERE id = ?",
	} {
		if _, err := tx.Exec(q, fileID); err != nil {
			return fmt.Errorf("store: delete file data: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return s.remember(nil, declIDs)
}
