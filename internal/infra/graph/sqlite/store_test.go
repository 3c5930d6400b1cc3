package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"cargohold/pkg/graph"
)

type rejectAll struct{}

func (rejectAll) Name() string { return "reject-all" }

func (rejectAll) Evaluate(context.Context, graph.Reader, []graph.Change) error {
	return errors.New("rejected")
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "graph.db")
	s, err := NewStore(ctx, path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	var a graph.Vertex
	err = s.RunInTransaction(ctx, func(tx graph.Tx) error {
		var err error
		a, err = tx.UpsertVertex("ARTIFACT", "u1", func(tx graph.Tx, v graph.Vertex) error {
			if err := tx.SetProperty(v.ID, "filenames", []string{"a.jar", "a.pom"}, graph.Multi); err != nil {
				return err
			}
			return tx.SetProperty(v.ID, "size", int64(99), graph.Single)
		})
		if err != nil {
			return err
		}
		tag, err := tx.UpsertVertex("ARTIFACT_TAG", "latest", nil)
		if err != nil {
			return err
		}
		_, err = tx.AddEdge(a.ID, "ARTIFACT_HAS_TAGS", tag.ID)
		return err
	})
	if err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}
	if s.Path() != path {
		t.Fatalf("unexpected path %q", s.Path())
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	err = reopened.View(ctx, func(r graph.Reader) error {
		v, ok := r.VertexByUUID("ARTIFACT", "u1")
		if !ok || v.ID != a.ID {
			t.Fatalf("artifact not reloaded: %+v %v", v, ok)
		}
		if got := r.Property(v.ID, "size"); got != int64(99) {
			t.Fatalf("expected size 99, got %#v", got)
		}
		if got, ok := r.Property(v.ID, "filenames").([]any); !ok || len(got) != 2 {
			t.Fatalf("expected two filenames, got %#v", r.Property(v.ID, "filenames"))
		}
		if len(r.OutEdges(v.ID, "ARTIFACT_HAS_TAGS")) != 1 {
			t.Fatalf("tag edge not reloaded")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	err = reopened.RunInTransaction(ctx, func(tx graph.Tx) error {
		v, err := tx.UpsertVertex("ARTIFACT", "u2", nil)
		if err != nil {
			return err
		}
		if v.ID == "1" || v.ID == "2" || v.ID == "3" {
			t.Fatalf("reopened store reused id %s", v.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("second transaction: %v", err)
	}
}

func TestRejectedTransactionIsNotPersisted(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "graph.db")
	s, err := NewStore(ctx, path, rejectAll{})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	err = s.RunInTransaction(ctx, func(tx graph.Tx) error {
		_, err := tx.UpsertVertex("ARTIFACT", "u1", nil)
		return err
	})
	if err == nil {
		t.Fatalf("expected constraint rejection")
	}
	var n int
	if err := s.DB().QueryRow(`SELECT COUNT(*) FROM graph_vertices`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected no persisted vertices, got %d", n)
	}
	_ = s.Close()
}
