// Package sqlite persists the property graph to a SQLite file. Transactions
// run against the in-memory engine; every commit rewrites the graph tables
// inside one SQLite transaction before it becomes visible.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"cargohold/internal/infra/graph/memory"
	"cargohold/internal/infra/graph/sqlbundle"
	"cargohold/pkg/graph"
)

// DefaultPath is used when no path is configured.
const DefaultPath = "cargohold.db"

var _ graph.Store = (*Store)(nil)

// Store is a SQLite-backed graph store.
type Store struct {
	*memory.Store
	db   *sql.DB
	path string
}

// NewStore opens (creating when needed) the database at path, applies the
// DDL and loads the stored graph. Constraints are evaluated before every
// commit like in the memory engine.
func NewStore(ctx context.Context, path string, constraints ...graph.Constraint) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; the memory engine already serialises commits.
	db.SetMaxOpenConns(1)
	if err := sqlbundle.ApplyDDL(ctx, db, sqlbundle.SQLiteDialect); err != nil {
		_ = db.Close()
		return nil, err
	}
	snapshot, err := sqlbundle.Load(ctx, db, sqlbundle.SQLiteDialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &Store{db: db, path: path}
	s.Store = memory.NewStore(memory.WithConstraints(constraints...), memory.WithCommitHook(s.persist))
	if err := s.ImportState(snapshot); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("load sqlite graph: %w", err)
	}
	return s, nil
}

func (s *Store) persist(ctx context.Context, snapshot memory.Snapshot) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sqlite tx: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if err := sqlbundle.Persist(ctx, tx, sqlbundle.SQLiteDialect, snapshot); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sqlite tx: %w", err)
	}
	return nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
