package memory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"cargohold/pkg/graph"
)

func mustTx(t *testing.T, s *Store, fn func(graph.Tx) error) {
	t.Helper()
	if err := s.RunInTransaction(context.Background(), fn); err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func TestUpsertVertexIsIdempotent(t *testing.T) {
	s := NewStore()
	var first, second graph.Vertex
	mustTx(t, s, func(tx graph.Tx) error {
		var err error
		first, err = tx.UpsertVertex("A", "u1", nil)
		return err
	})
	mustTx(t, s, func(tx graph.Tx) error {
		var err error
		second, err = tx.UpsertVertex("A", "u1", func(tx graph.Tx, v graph.Vertex) error {
			return tx.SetProperty(v.ID, "name", "x", graph.Single)
		})
		return err
	})
	if first.ID != second.ID {
		t.Fatalf("expected same vertex, got %s and %s", first.ID, second.ID)
	}
	if n, _ := s.Counts(); n != 1 {
		t.Fatalf("expected 1 vertex, got %d", n)
	}
	_ = s.View(context.Background(), func(r graph.Reader) error {
		if got := r.Property(first.ID, "name"); got != "x" {
			t.Fatalf("expected name x, got %#v", got)
		}
		if got := r.Property(first.ID, graph.UUIDKey); got != "u1" {
			t.Fatalf("expected uuid u1, got %#v", got)
		}
		return nil
	})
}

func TestFailedTransactionLeavesNoTrace(t *testing.T) {
	s := NewStore()
	boom := errors.New("boom")
	err := s.RunInTransaction(context.Background(), func(tx graph.Tx) error {
		if _, err := tx.UpsertVertex("A", "u1", nil); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if n, _ := s.Counts(); n != 0 {
		t.Fatalf("expected rollback, found %d vertices", n)
	}
}

func TestDropVertexRemovesIncidentEdges(t *testing.T) {
	s := NewStore()
	var a, b graph.Vertex
	mustTx(t, s, func(tx graph.Tx) error {
		a, _ = tx.UpsertVertex("A", "a", nil)
		b, _ = tx.UpsertVertex("B", "b", nil)
		if _, err := tx.AddEdge(a.ID, "L", b.ID); err != nil {
			return err
		}
		_, err := tx.AddEdge(b.ID, "L", a.ID)
		return err
	})
	mustTx(t, s, func(tx graph.Tx) error { return tx.DropVertex(a.ID) })
	if v, e := s.Counts(); v != 1 || e != 0 {
		t.Fatalf("expected 1 vertex and no edges, got %d/%d", v, e)
	}
	_ = s.View(context.Background(), func(r graph.Reader) error {
		if _, ok := r.VertexByUUID("A", "a"); ok {
			t.Fatalf("uuid index still resolves dropped vertex")
		}
		if len(r.InEdges(b.ID, "")) != 0 || len(r.OutEdges(b.ID, "")) != 0 {
			t.Fatalf("dangling edges on %s", b.ID)
		}
		return nil
	})
}

func TestMultiPropertyReplacesWholeSet(t *testing.T) {
	s := NewStore()
	var v graph.Vertex
	mustTx(t, s, func(tx graph.Tx) error {
		v, _ = tx.UpsertVertex("A", "a", nil)
		return tx.SetProperty(v.ID, "tags", []string{"x", "y"}, graph.Multi)
	})
	mustTx(t, s, func(tx graph.Tx) error {
		return tx.SetProperty(v.ID, "tags", []string{"z"}, graph.Multi)
	})
	_ = s.View(context.Background(), func(r graph.Reader) error {
		got, ok := r.Property(v.ID, "tags").([]any)
		if !ok || len(got) != 1 || got[0] != "z" {
			t.Fatalf("expected [z], got %#v", r.Property(v.ID, "tags"))
		}
		return nil
	})
}

type rejectLabel string

func (r rejectLabel) Name() string { return "reject-" + string(r) }

func (r rejectLabel) Evaluate(_ context.Context, _ graph.Reader, changes []graph.Change) error {
	for _, c := range changes {
		if c.Label == string(r) && c.Action == graph.ActionCreate {
			return errors.New("rejected")
		}
	}
	return nil
}

func TestConstraintAbortsCommit(t *testing.T) {
	s := NewStore(WithConstraints(rejectLabel("B")))
	mustTx(t, s, func(tx graph.Tx) error {
		_, err := tx.UpsertVertex("A", "a", nil)
		return err
	})
	err := s.RunInTransaction(context.Background(), func(tx graph.Tx) error {
		_, err := tx.UpsertVertex("B", "b", nil)
		return err
	})
	if err == nil || err.Error() != "rejected" {
		t.Fatalf("expected rejection, got %v", err)
	}
	if n, _ := s.Counts(); n != 1 {
		t.Fatalf("expected only the first vertex, got %d", n)
	}
}

func TestCommitHookFailureAbortsCommit(t *testing.T) {
	var seen Snapshot
	s := NewStore(WithCommitHook(func(_ context.Context, snap Snapshot) error {
		seen = snap
		return errors.New("disk full")
	}))
	err := s.RunInTransaction(context.Background(), func(tx graph.Tx) error {
		_, err := tx.UpsertVertex("A", "a", nil)
		return err
	})
	if err == nil {
		t.Fatalf("expected hook error")
	}
	if len(seen.Vertices) != 1 {
		t.Fatalf("hook should see pending state, got %+v", seen)
	}
	if n, _ := s.Counts(); n != 0 {
		t.Fatalf("expected nothing committed, got %d", n)
	}
}

func TestSnapshotRoundTripThroughJSON(t *testing.T) {
	s := NewStore()
	mustTx(t, s, func(tx graph.Tx) error {
		a, _ := tx.UpsertVertex("A", "a", nil)
		b, _ := tx.UpsertVertex("B", "b", nil)
		if err := tx.SetProperty(a.ID, "size", int64(42), graph.Single); err != nil {
			return err
		}
		_, err := tx.AddEdge(a.ID, "L", b.ID)
		return err
	})
	raw, err := json.Marshal(s.ExportState())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	restored := NewStore()
	if err := restored.ImportState(snap); err != nil {
		t.Fatalf("import: %v", err)
	}
	_ = restored.View(context.Background(), func(r graph.Reader) error {
		a, ok := r.VertexByUUID("A", "a")
		if !ok {
			t.Fatalf("uuid index not rebuilt")
		}
		if got := r.Property(a.ID, "size"); got != int64(42) {
			t.Fatalf("expected int64 size, got %#v", got)
		}
		if len(r.OutEdges(a.ID, "L")) != 1 {
			t.Fatalf("edge not restored")
		}
		return nil
	})
	mustTx(t, restored, func(tx graph.Tx) error {
		c, err := tx.UpsertVertex("C", "c", nil)
		if err != nil {
			return err
		}
		if c.ID == "1" || c.ID == "2" || c.ID == "3" {
			t.Fatalf("restored store reused id %s", c.ID)
		}
		return nil
	})
}

func TestImportRejectsDanglingEdge(t *testing.T) {
	s := NewStore()
	err := s.ImportState(Snapshot{Edges: []graph.Edge{{ID: "2", Label: "L", Out: "1", In: "3"}}})
	if err == nil {
		t.Fatalf("expected error for dangling edge")
	}
}

func TestCanceledContext(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.RunInTransaction(ctx, func(graph.Tx) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
