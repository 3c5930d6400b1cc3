package memory

import (
	"fmt"
	"sort"
	"strconv"

	"cargohold/pkg/graph"
)

type vertexRecord struct {
	label string
	props map[string]graph.Property
}

func (v *vertexRecord) clone() *vertexRecord {
	props := make(map[string]graph.Property, len(v.props))
	for k, p := range v.props {
		props[k] = p.Clone()
	}
	return &vertexRecord{label: v.label, props: props}
}

// memoryState is never mutated once committed: transactions work on a
// clone and the store swaps the pointer on commit.
type memoryState struct {
	vertices map[graph.ID]*vertexRecord
	edges    map[graph.ID]graph.Edge
	out      map[graph.ID][]graph.ID
	in       map[graph.ID][]graph.ID
	uuids    map[string]map[string]graph.ID
	seq      uint64
}

func newMemoryState() *memoryState {
	return &memoryState{
		vertices: make(map[graph.ID]*vertexRecord),
		edges:    make(map[graph.ID]graph.Edge),
		out:      make(map[graph.ID][]graph.ID),
		in:       make(map[graph.ID][]graph.ID),
		uuids:    make(map[string]map[string]graph.ID),
	}
}

func (s *memoryState) clone() *memoryState {
	cp := &memoryState{
		vertices: make(map[graph.ID]*vertexRecord, len(s.vertices)),
		edges:    make(map[graph.ID]graph.Edge, len(s.edges)),
		out:      make(map[graph.ID][]graph.ID, len(s.out)),
		in:       make(map[graph.ID][]graph.ID, len(s.in)),
		uuids:    make(map[string]map[string]graph.ID, len(s.uuids)),
		seq:      s.seq,
	}
	for id, v := range s.vertices {
		cp.vertices[id] = v.clone()
	}
	for id, e := range s.edges {
		cp.edges[id] = e
	}
	for id, list := range s.out {
		cp.out[id] = append([]graph.ID(nil), list...)
	}
	for id, list := range s.in {
		cp.in[id] = append([]graph.ID(nil), list...)
	}
	for label, idx := range s.uuids {
		m := make(map[string]graph.ID, len(idx))
		for k, v := range idx {
			m[k] = v
		}
		cp.uuids[label] = m
	}
	return cp
}

func (s *memoryState) nextID() graph.ID {
	s.seq++
	return graph.ID(strconv.FormatUint(s.seq, 10))
}

// observeID keeps the sequence ahead of every imported id.
func (s *memoryState) observeID(id graph.ID) {
	if n, err := strconv.ParseUint(string(id), 10, 64); err == nil && n > s.seq {
		s.seq = n
	}
}

func (s *memoryState) indexUUID(label, uuid string, id graph.ID) error {
	idx := s.uuids[label]
	if idx == nil {
		idx = make(map[string]graph.ID)
		s.uuids[label] = idx
	}
	if other, ok := idx[uuid]; ok && other != id {
		return fmt.Errorf("graph: %s uuid %s already held by vertex %s", label, uuid, other)
	}
	idx[uuid] = id
	return nil
}

func (s *memoryState) unindexUUID(label string, id graph.ID) {
	rec := s.vertices[id]
	if rec == nil {
		return
	}
	p, ok := rec.props[graph.UUIDKey]
	if !ok {
		return
	}
	if uuid, ok := p.Value().(string); ok {
		if s.uuids[label][uuid] == id {
			delete(s.uuids[label], uuid)
		}
	}
}

func removeID(list []graph.ID, id graph.ID) []graph.ID {
	for i, v := range list {
		if v == id {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}

// lessID orders the decimal ids this engine issues numerically.
func lessID(a, b graph.ID) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

// VertexRecord is the exported form of a vertex.
type VertexRecord struct {
	ID         graph.ID                  `json:"id"`
	Label      string                    `json:"label"`
	Properties map[string]graph.Property `json:"properties"`
}

// Snapshot captures a point-in-time copy of the graph.
type Snapshot struct {
	Vertices []VertexRecord `json:"vertices"`
	Edges    []graph.Edge   `json:"edges"`
	Sequence uint64         `json:"sequence"`
}

func snapshotFromState(s *memoryState) Snapshot {
	snap := Snapshot{
		Vertices: make([]VertexRecord, 0, len(s.vertices)),
		Edges:    make([]graph.Edge, 0, len(s.edges)),
		Sequence: s.seq,
	}
	for id, v := range s.vertices {
		rec := v.clone()
		snap.Vertices = append(snap.Vertices, VertexRecord{ID: id, Label: rec.label, Properties: rec.props})
	}
	for _, e := range s.edges {
		snap.Edges = append(snap.Edges, e)
	}
	sort.Slice(snap.Vertices, func(i, j int) bool { return lessID(snap.Vertices[i].ID, snap.Vertices[j].ID) })
	sort.Slice(snap.Edges, func(i, j int) bool { return lessID(snap.Edges[i].ID, snap.Edges[j].ID) })
	return snap
}

func stateFromSnapshot(snap Snapshot) (*memoryState, error) {
	s := newMemoryState()
	s.seq = snap.Sequence
	vertices := append([]VertexRecord(nil), snap.Vertices...)
	sort.Slice(vertices, func(i, j int) bool { return lessID(vertices[i].ID, vertices[j].ID) })
	for _, v := range vertices {
		if _, dup := s.vertices[v.ID]; dup {
			return nil, fmt.Errorf("graph snapshot: duplicate vertex %s", v.ID)
		}
		rec := &vertexRecord{label: v.Label, props: make(map[string]graph.Property, len(v.Properties))}
		for k, p := range v.Properties {
			rec.props[k] = p.Clone()
		}
		s.vertices[v.ID] = rec
		s.observeID(v.ID)
		if p, ok := rec.props[graph.UUIDKey]; ok {
			if uuid, ok := p.Value().(string); ok {
				if err := s.indexUUID(v.Label, uuid, v.ID); err != nil {
					return nil, fmt.Errorf("graph snapshot: %w", err)
				}
			}
		}
	}
	edges := append([]graph.Edge(nil), snap.Edges...)
	sort.Slice(edges, func(i, j int) bool { return lessID(edges[i].ID, edges[j].ID) })
	for _, e := range edges {
		if _, ok := s.vertices[e.Out]; !ok {
			return nil, fmt.Errorf("graph snapshot: edge %s leaves missing vertex %s", e.ID, e.Out)
		}
		if _, ok := s.vertices[e.In]; !ok {
			return nil, fmt.Errorf("graph snapshot: edge %s enters missing vertex %s", e.ID, e.In)
		}
		s.edges[e.ID] = e
		s.observeID(e.ID)
		s.out[e.Out] = append(s.out[e.Out], e.ID)
		s.in[e.In] = append(s.in[e.In], e.ID)
	}
	return s, nil
}
