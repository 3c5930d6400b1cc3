package memory

import (
	"fmt"
	"sort"

	"cargohold/pkg/graph"
)

// reader serves graph.Reader from one state.
type reader struct {
	state *memoryState
}

var _ graph.Reader = reader{}

func (r reader) Vertex(id graph.ID) (graph.Vertex, bool) {
	rec, ok := r.state.vertices[id]
	if !ok {
		return graph.Vertex{}, false
	}
	return graph.Vertex{ID: id, Label: rec.label}, true
}

func (r reader) VertexByUUID(label, uuid string) (graph.Vertex, bool) {
	id, ok := r.state.uuids[label][uuid]
	if !ok {
		return graph.Vertex{}, false
	}
	return r.Vertex(id)
}

func (r reader) VerticesByLabel(labels ...string) []graph.Vertex {
	want := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		want[l] = struct{}{}
	}
	var out []graph.Vertex
	for id, rec := range r.state.vertices {
		if _, ok := want[rec.label]; ok {
			out = append(out, graph.Vertex{ID: id, Label: rec.label})
		}
	}
	sort.Slice(out, func(i, j int) bool { return lessID(out[i].ID, out[j].ID) })
	return out
}

func (r reader) Property(id graph.ID, key string) any {
	rec, ok := r.state.vertices[id]
	if !ok {
		return nil
	}
	p, ok := rec.props[key]
	if !ok {
		return nil
	}
	return p.Value()
}

func (r reader) PropertyKeys(id graph.ID) []string {
	rec, ok := r.state.vertices[id]
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(rec.props))
	for k := range rec.props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r reader) OutEdges(id graph.ID, label string) []graph.Edge {
	return r.edges(r.state.out[id], label)
}

func (r reader) InEdges(id graph.ID, label string) []graph.Edge {
	return r.edges(r.state.in[id], label)
}

func (r reader) edges(ids []graph.ID, label string) []graph.Edge {
	var out []graph.Edge
	for _, id := range ids {
		e := r.state.edges[id]
		if label == "" || e.Label == label {
			out = append(out, e)
		}
	}
	return out
}

// transaction mutates a private clone of the committed state.
type transaction struct {
	reader
	changes []graph.Change
	dirty   bool
}

var _ graph.Tx = (*transaction)(nil)

func (tx *transaction) record(id graph.ID, label string, action graph.Action) {
	tx.dirty = true
	tx.changes = append(tx.changes, graph.Change{Vertex: id, Label: label, Action: action})
}

func (tx *transaction) vertex(id graph.ID) (*vertexRecord, error) {
	rec, ok := tx.state.vertices[id]
	if !ok {
		return nil, graph.VertexNotFoundError{ID: id}
	}
	return rec, nil
}

func (tx *transaction) SetProperty(id graph.ID, key string, value any, card graph.Cardinality) error {
	rec, err := tx.vertex(id)
	if err != nil {
		return err
	}
	p, err := graph.NewProperty(value, card)
	if err != nil {
		return fmt.Errorf("property %s: %w", key, err)
	}
	if key == graph.UUIDKey {
		uuid, ok := p.Value().(string)
		if !ok || card != graph.Single {
			return fmt.Errorf("property %s: %w: uuid must be a single string", key, graph.ErrUnsupportedValue)
		}
		tx.state.unindexUUID(rec.label, id)
		if err := tx.state.indexUUID(rec.label, uuid, id); err != nil {
			return err
		}
	}
	rec.props[key] = p
	tx.record(id, rec.label, graph.ActionUpdate)
	return nil
}

func (tx *transaction) DropProperty(id graph.ID, key string) error {
	rec, err := tx.vertex(id)
	if err != nil {
		return err
	}
	if _, ok := rec.props[key]; !ok {
		return nil
	}
	if key == graph.UUIDKey {
		tx.state.unindexUUID(rec.label, id)
	}
	delete(rec.props, key)
	tx.record(id, rec.label, graph.ActionUpdate)
	return nil
}

func (tx *transaction) AddEdge(from graph.ID, label string, to graph.ID) (graph.Edge, error) {
	if label == "" {
		return graph.Edge{}, fmt.Errorf("graph: edge label is empty")
	}
	if _, err := tx.vertex(from); err != nil {
		return graph.Edge{}, err
	}
	if _, err := tx.vertex(to); err != nil {
		return graph.Edge{}, err
	}
	e := graph.Edge{ID: tx.state.nextID(), Label: label, Out: from, In: to}
	tx.state.edges[e.ID] = e
	tx.state.out[from] = append(tx.state.out[from], e.ID)
	tx.state.in[to] = append(tx.state.in[to], e.ID)
	tx.dirty = true
	return e, nil
}

func (tx *transaction) DropEdge(id graph.ID) error {
	e, ok := tx.state.edges[id]
	if !ok {
		return fmt.Errorf("%w: %s", graph.ErrEdgeNotFound, id)
	}
	delete(tx.state.edges, id)
	tx.state.out[e.Out] = removeID(tx.state.out[e.Out], id)
	tx.state.in[e.In] = removeID(tx.state.in[e.In], id)
	tx.dirty = true
	return nil
}

func (tx *transaction) UpsertVertex(label, uuid string, fn func(graph.Tx, graph.Vertex) error) (graph.Vertex, error) {
	if label == "" || uuid == "" {
		return graph.Vertex{}, fmt.Errorf("graph: upsert needs a label and a uuid")
	}
	v, ok := tx.VertexByUUID(label, uuid)
	if !ok {
		v = graph.Vertex{ID: tx.state.nextID(), Label: label}
		tx.state.vertices[v.ID] = &vertexRecord{label: label, props: map[string]graph.Property{
			graph.UUIDKey: {Cardinality: graph.Single, Values: []any{uuid}},
		}}
		if err := tx.state.indexUUID(label, uuid, v.ID); err != nil {
			return graph.Vertex{}, err
		}
		tx.record(v.ID, label, graph.ActionCreate)
	}
	if fn != nil {
		if err := fn(tx, v); err != nil {
			return graph.Vertex{}, err
		}
	}
	return v, nil
}

func (tx *transaction) DropVertex(id graph.ID) error {
	rec, err := tx.vertex(id)
	if err != nil {
		return err
	}
	incident := append(append([]graph.ID(nil), tx.state.out[id]...), tx.state.in[id]...)
	for _, eid := range incident {
		if _, ok := tx.state.edges[eid]; !ok {
			continue
		}
		if err := tx.DropEdge(eid); err != nil {
			return err
		}
	}
	tx.state.unindexUUID(rec.label, id)
	delete(tx.state.vertices, id)
	delete(tx.state.out, id)
	delete(tx.state.in, id)
	tx.record(id, rec.label, graph.ActionDelete)
	return nil
}
