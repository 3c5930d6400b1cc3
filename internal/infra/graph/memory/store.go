// Package memory provides a transactional in-memory property graph used for
// tests, ephemeral environments and as the working set of the durable
// engines.
package memory

import (
	"context"
	"sync"

	"cargohold/pkg/graph"
)

var _ graph.Store = (*Store)(nil)

// CommitHook persists the state a transaction is about to commit. An error
// aborts the commit.
type CommitHook func(ctx context.Context, snapshot Snapshot) error

// Option configures a Store.
type Option func(*Store)

// WithConstraints registers constraints evaluated before every commit.
func WithConstraints(constraints ...graph.Constraint) Option {
	return func(s *Store) {
		for _, c := range constraints {
			s.constraints.Register(c)
		}
	}
}

// WithCommitHook installs hook; it runs under the write lock for every
// transaction that changed the graph.
func WithCommitHook(hook CommitHook) Option {
	return func(s *Store) { s.commit = hook }
}

// Store is a copy-on-transaction graph. Writers are serialised; readers see
// the last committed state without blocking writers.
type Store struct {
	mu          sync.RWMutex
	state       *memoryState
	constraints *graph.Constraints
	commit      CommitHook
}

// NewStore constructs an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{state: newMemoryState(), constraints: graph.NewConstraints()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterConstraint adds a constraint after construction.
func (s *Store) RegisterConstraint(c graph.Constraint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.constraints.Register(c)
}

// RunInTransaction executes fn against a private copy of the state and
// commits it only when fn, every constraint and the commit hook succeed.
func (s *Store) RunInTransaction(ctx context.Context, fn func(graph.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{reader: reader{state: s.state.clone()}}
	if err := fn(tx); err != nil {
		return err
	}
	if !tx.dirty {
		return nil
	}
	if err := s.constraints.Evaluate(ctx, tx.reader, tx.changes); err != nil {
		return err
	}
	if s.commit != nil {
		if err := s.commit(ctx, snapshotFromState(tx.state)); err != nil {
			return err
		}
	}
	s.state = tx.state
	return nil
}

// View executes fn against the last committed state.
func (s *Store) View(ctx context.Context, fn func(graph.Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	state := s.state
	s.mu.RUnlock()
	return fn(reader{state: state})
}

// ExportState returns a copy of the committed graph.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromState(s.state)
}

// ImportState replaces the committed graph with snapshot.
func (s *Store) ImportState(snapshot Snapshot) error {
	state, err := stateFromSnapshot(snapshot)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	return nil
}

// Counts reports the number of vertices and edges committed.
func (s *Store) Counts() (vertices, edges int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.vertices), len(s.state.edges)
}
