package adapters

import "cargohold/pkg/graph"

// CascadeSet accumulates the vertices a delete must remove. Ids are kept in
// discovery order and each id is recorded at most once, which is also what
// stops cascades from looping on cyclic data.
type CascadeSet struct {
	ids  []graph.ID
	seen map[graph.ID]struct{}
}

// NewCascadeSet returns an empty set.
func NewCascadeSet() *CascadeSet {
	return &CascadeSet{seen: make(map[graph.ID]struct{})}
}

// Add records id and reports whether it was new.
func (s *CascadeSet) Add(id graph.ID) bool {
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = struct{}{}
	s.ids = append(s.ids, id)
	return true
}

// Contains reports whether id is recorded.
func (s *CascadeSet) Contains(id graph.ID) bool {
	_, ok := s.seen[id]
	return ok
}

// Len returns the number of recorded vertices.
func (s *CascadeSet) Len() int { return len(s.ids) }

// IDs returns the recorded vertices in discovery order.
func (s *CascadeSet) IDs() []graph.ID {
	return append([]graph.ID(nil), s.ids...)
}

// Drop removes every recorded vertex, and with them their edges.
func (s *CascadeSet) Drop(tx graph.Tx) error {
	for _, id := range s.ids {
		if _, ok := tx.Vertex(id); !ok {
			continue
		}
		if err := tx.DropVertex(id); err != nil {
			return err
		}
	}
	return nil
}

type cascadeFunc func(r graph.Reader, id graph.ID, set *CascadeSet) error

func cascadeSelf(_ graph.Reader, id graph.ID, set *CascadeSet) error {
	set.Add(id)
	return nil
}

func runCascade(r graph.Reader, id graph.ID, fn cascadeFunc) (*CascadeSet, error) {
	set := NewCascadeSet()
	if _, ok := r.Vertex(id); !ok {
		return set, nil
	}
	if err := fn(r, id, set); err != nil {
		return nil, err
	}
	return set, nil
}
