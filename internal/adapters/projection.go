package adapters

import "cargohold/pkg/graph"

// Projection pairs a Query with the pure function mapping its result to an
// entity. Executing a projection never writes.
type Projection[T any] struct {
	Query *Query
	Map   func(*Bag) (T, error)
}

// Run folds the vertex id. ok is false when the vertex is missing or its
// label matches none of the query cases.
func (p Projection[T]) Run(r graph.Reader, id graph.ID) (T, bool, error) {
	var zero T
	bag := Collect(r, id, p.Query)
	if bag == nil {
		return zero, false, nil
	}
	out, err := p.Map(bag)
	if err != nil {
		return zero, false, err
	}
	return out, true, nil
}

// RunAll folds every vertex in order, skipping those the query does not match.
func (p Projection[T]) RunAll(r graph.Reader, vertices []graph.Vertex) ([]T, error) {
	out := make([]T, 0, len(vertices))
	for _, v := range vertices {
		bag := collect(r, v, p.Query)
		if bag == nil {
			continue
		}
		item, err := p.Map(bag)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

// mapOne maps a nested bag, reporting false for nil.
func mapOne[T any](p Projection[T], bag *Bag) (T, bool, error) {
	var zero T
	if bag == nil {
		return zero, false, nil
	}
	out, err := p.Map(bag)
	if err != nil {
		return zero, false, err
	}
	return out, true, nil
}
