package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jward/freshen/internal/syntax"
)

type declKey struct {
	name    string
	typ     string
	ordinal int
}

type storedDecl struct {
	id          int64
	fingerprint string
}

// IndexTree records every declaration in tree under path.
//
// Rows are matched to the tree's declarations by name, grammar type and
// ordinal. A matched row whose fingerprint changed is marked dirty, as is
// every declaration that appears in a file indexed before. Rows with no
// match are deleted with their history. Node IDs from tree are remembered so
// a Recorder can resolve later invalidations.
func (s *Store) IndexTree(path string, tree *syntax.Tree) (*IndexResult, error) {
	if tree == nil || tree.Root() == nil {
		return nil, fmt.Errorf("store: index %s: empty tree", path)
	}
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	hash := ContentHash(tree.Text())

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("store: begin transaction: %w", err)
	}
	defer tx.Rollback()

	var fileID int64
	existed := true
	err = tx.QueryRow("SELECT id FROM files WHERE path = ?", path).Scan(&fileID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		existed = false
		res, err := tx.Exec("INSERT INTO files (path, hash, last_indexed) VALUES (?, ?, ?)", path, hash, now)
		if err != nil {
			return nil, fmt.Errorf("store: insert file: %w", err)
		}
		if fileID, err = res.LastInsertId(); err != nil {
			return nil, fmt.Errorf("store: file id: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("store: query file: %w", err)
	default:
		if _, err := tx.Exec("UPDATE files SET hash = ?, last_indexed = ? WHERE id = ?", hash, now, fileID); err != nil {
			return nil, fmt.Errorf("store: update file: %w", err)
		}
	}

	stored := make(map[declKey]storedDecl)
	rows, err := tx.Query("SELECT id, name, type, ordinal, fingerprint FROM declarations WHERE file_id = ?", fileID)
	if err != nil {
		return nil, fmt.Errorf("store: query declarations: %w", err)
	}
	for rows.Next() {
		var k declKey
		var d storedDecl
		if err := rows.Scan(&d.id, &k.name, &k.typ, &k.ordinal, &d.fingerprint); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: scan declaration: %w", err)
		}
		stored[k] = d
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: query declarations: %w", err)
	}

	result := &IndexResult{File: &File{ID: fileID, Path: path, Hash: hash, LastIndexed: now}}
	nodes := make(map[uint64]int64)
	ordinals := make(map[[2]string]int)

	for _, decl := range syntax.Declarations(tree.Root()) {
		name, typ := syntax.Name(decl), decl.Type()
		ord := ordinals[[2]string{name, typ}]
		ordinals[[2]string{name, typ}] = ord + 1
		key := declKey{name: name, typ: typ, ordinal: ord}

		start := tree.Offset(decl)
		end := start + decl.Len()
		fp := Fingerprint(decl)
		result.Indexed++

		prev, ok := stored[key]
		switch {
		case !ok:
			res, err := tx.Exec(`INSERT INTO declarations
				(file_id, node_id, name, type, ordinal, depth, start_byte, end_byte, fingerprint, dirty)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				fileID, int64(decl.ID()), name, typ, ord, decl.Depth(), start, end, fp, existed)
			if err != nil {
				return nil, fmt.Errorf("store: insert declaration %s: %w", name, err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return nil, fmt.Errorf("store: declaration id: %w", err)
			}
			nodes[decl.ID()] = id
			result.Added++
		case prev.fingerprint == fp:
			if _, err := tx.Exec(`UPDATE declarations SET node_id = ?, depth = ?, start_byte = ?, end_byte = ?
				WHERE id = ?`, int64(decl.ID()), decl.Depth(), start, end, prev.id); err != nil {
				return nil, fmt.Errorf("store: update declaration %s: %w", name, err)
			}
			nodes[decl.ID()] = prev.id
			delete(stored, key)
			result.Unchanged++
		default:
			if _, err := tx.Exec(`UPDATE declarations SET node_id = ?, depth = ?, start_byte = ?, end_byte = ?,
				fingerprint = ?, dirty = TRUE, generation = generation + 1 WHERE id = ?`,
				int64(decl.ID()), decl.Depth(), start, end, fp, prev.id); err != nil {
				return nil, fmt.Errorf("store: update declaration %s: %w", name, err)
			}
			if err := logInvalidation(tx, prev.id, true, now); err != nil {
				return nil, err
			}
			nodes[decl.ID()] = prev.id
			delete(stored, key)
			result.Changed++
		}
	}

	var removed []int64
	for _, d := range stored {
		removed = append(removed, d.id)
	}
	if len(removed) > 0 {
		placeholders := placeholderList(len(removed))
		args := int64sToArgs(removed)
		for _, q := range []string{
			"DELETE FROM invalidations WHERE declaration_id IN (" + placeholders + ")",
			"DELETE FROM declarations WHERE id IN (" + placeholders + ")",
		} {
			if _, err := tx.Exec(q, args...); err != nil {
				return nil, fmt.Errorf("store: delete stale declarations: %w", err)
			}
		}
		result.Removed = len(removed)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit: %w", err)
	}
	if err := s.remember(nodes, removed); err != nil {
		return nil, err
	}
	return result, nil
}

func logInvalidation(tx *sql.Tx, declID int64, external bool, at time.Time) error {
	_, err := tx.Exec(`INSERT INTO invalidations (declaration_id, generation, external, recorded_at)
		SELECT id, generation, ?, ? FROM declarations WHERE id = ?`, external, at, declID)
	if err != nil {
		return fmt.Errorf("store: log invalidation: %w", err)
	}
	return nil
}

// RecordInvalidation marks the declaration indexed from nodeID dirty, bumps
// its generation and appends to its invalidation log. It reports false when
// nodeID was never indexed by this Store.
func (s *Store) RecordInvalidation(nodeID uint64, external bool) (int64, bool, error) {
	declID, ok, err := s.lookup(nodeID)
	if err != nil || !ok {
		return 0, false, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, false, fmt.Errorf("store: begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec("UPDATE declarations SET dirty = TRUE, generation = generation + 1 WHERE id = ?", declID)
	if err != nil {
		return 0, false, fmt.Errorf("store: mark dirty: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Deleted by a concurrent re-index.
		return declID, false, nil
	}
	if err := logInvalidation(tx, declID, external, time.Now().UTC()); err != nil {
		return 0, false, err
	}
	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("store: commit: %w", err)
	}
	return declID, true, nil
}

// MarkVerified clears the dirty flag on the given declarations and returns
// how many rows changed.
func (s *Store) MarkVerified(ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.db.Exec("UPDATE declarations SET dirty = FALSE WHERE dirty AND id IN ("+placeholderList(len(ids))+")",
		int64sToArgs(ids)...)
	if err != nil {
		return 0, fmt.Errorf("store: mark verified: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: mark verified: %w", err)
	}
	return n, nil
}

// FileByPath returns the indexed file at path, or nil if it was never
// indexed.
func (s *Store) FileByPath(path string) (*File, error) {
	var f File
	err := s.db.QueryRow("SELECT id, path, hash, last_indexed FROM files WHERE path = ?", path).
		Scan(&f.ID, &f.Path, &f.Hash, &f.LastIndexed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: file by path: %w", err)
	}
	return &f, nil
}

const declColumns = `d.id, d.file_id, f.path, d.node_id, d.name, d.type, d.ordinal, d.depth,
	d.start_byte, d.end_byte, d.fingerprint, d.dirty, d.generation`

// Declarations lists the declarations of path in source order. An empty
// path lists every file.
func (s *Store) Declarations(path string) ([]*Declaration, error) {
	return s.queryDeclarations(path, false)
}

// DirtyDeclarations lists the dirty declarations of path in source order.
// An empty path lists every file.
func (s *Store) DirtyDeclarations(path string) ([]*Declaration, error) {
	return s.queryDeclarations(path, true)
}

func (s *Store) queryDeclarations(path string, dirtyOnly bool) ([]*Declaration, error) {
	q := "SELECT " + declColumns + " FROM declarations d JOIN files f ON f.id = d.file_id WHERE 1 = 1"
	var args []any
	if path != "" {
		q += " AND f.path = ?"
		args = append(args, path)
	}
	if dirtyOnly {
		q += " AND d.dirty"
	}
	q += " ORDER BY f.path, d.start_byte, d.depth"

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query declarations: %w", err)
	}
	defer rows.Close()
	var out []*Declaration
	for rows.Next() {
		d, err := scanDeclaration(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan declaration: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeclarationByID returns one declaration, or nil if it does not exist.
func (s *Store) DeclarationByID(id int64) (*Declaration, error) {
	row := s.db.QueryRow("SELECT "+declColumns+" FROM declarations d JOIN files f ON f.id = d.file_id WHERE d.id = ?", id)
	d, err := scanDeclaration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: declaration by id: %w", err)
	}
	return d, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDeclaration(sc scanner) (*Declaration, error) {
	var d Declaration
	var nodeID int64
	if err := sc.Scan(&d.ID, &d.FileID, &d.Path, &nodeID, &d.Name, &d.Type, &d.Ordinal, &d.Depth,
		&d.StartByte, &d.EndByte, &d.Fingerprint, &d.Dirty, &d.Generation); err != nil {
		return nil, err
	}
	d.NodeID = uint64(nodeID)
	return &d, nil
}

// Invalidations returns a declaration's invalidation log, oldest first.
func (s *Store) Invalidations(declID int64) ([]*Invalidation, error) {
	rows, err := s.db.Query(`SELECT id, declaration_id, generation, external, recorded_at
		FROM invalidations WHERE declaration_id = ? ORDER BY id`, declID)
	if err != nil {
		return nil, fmt.Errorf("store: query invalidations: %w", err)
	}
	defer rows.Close()
	var out []*Invalidation
	for rows.Next() {
		var inv Invalidation
		if err := rows.Scan(&inv.ID, &inv.DeclarationID, &inv.Generation, &inv.External, &inv.RecordedAt); err != nil {
			return nil, fmt.Errorf("store: scan invalidation: %w", err)
		}
		out = append(out, &inv)
	}
	return out, rows.Err()
}
