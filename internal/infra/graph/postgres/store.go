// Package postgres persists the property graph to Postgres. It mirrors the
// sqlite engine: the graph lives in memory and every commit rewrites the
// graph tables, with properties stored as JSONB.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"cargohold/internal/infra/graph/memory"
	"cargohold/internal/infra/graph/sqlbundle"
	"cargohold/pkg/graph"
)

var _ graph.Store = (*Store)(nil)

const (
	defaultDriver = "pgx"
	// DefaultDSN is used when no DSN is configured.
	DefaultDSN = "postgres://localhost/cargohold?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store is a Postgres-backed graph store.
type Store struct {
	*memory.Store
	db *sql.DB
}

// NewStore opens dsn, applies the DDL and loads the stored graph.
func NewStore(ctx context.Context, dsn string, constraints ...graph.Constraint) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := sqlbundle.ApplyDDL(ctx, db, sqlbundle.PostgresDialect); err != nil {
		_ = db.Close()
		return nil, err
	}
	snapshot, err := sqlbundle.Load(ctx, db, sqlbundle.PostgresDialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &Store{db: db}
	s.Store = memory.NewStore(memory.WithConstraints(constraints...), memory.WithCommitHook(s.persist))
	if err := s.ImportState(snapshot); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("load postgres graph: %w", err)
	}
	return s, nil
}

func (s *Store) persist(ctx context.Context, snapshot memory.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := sqlbundle.Persist(ctx, tx, sqlbundle.PostgresDialect, snapshot); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
