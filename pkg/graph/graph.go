// Package graph defines the property-graph contract the mapping layer is
// written against. It is intentionally small: vertices carry one label and a
// bag of typed properties, edges are directed and labelled, and every mutation
// happens inside a transaction handed out by a Store. Concrete engines live
// under internal/infra/graph.
package graph

import "context"

// ID is the engine-native identifier of a vertex or edge.
type ID string

// UUIDKey is the property every mapped vertex carries its logical identity in.
// Engines index it per label so UpsertVertex and VertexByUUID are lookups.
const UUIDKey = "uuid"

// Cardinality describes how many values a property holds.
type Cardinality uint8

const (
	// Single properties hold exactly one value.
	Single Cardinality = iota
	// Multi properties hold a set of values; writing one replaces the whole set.
	Multi
)

func (c Cardinality) String() string {
	if c == Multi {
		return "multi"
	}
	return "single"
}

// Direction selects which end of an edge a traversal step follows.
type Direction uint8

const (
	// Out follows edges leaving the current vertex.
	Out Direction = iota
	// In follows edges arriving at the current vertex.
	In
)

func (d Direction) String() string {
	if d == In {
		return "in"
	}
	return "out"
}

// Vertex is a labelled node.
type Vertex struct {
	ID    ID     `json:"id"`
	Label string `json:"label"`
}

// Edge is a directed, labelled relation from Out to In.
type Edge struct {
	ID    ID     `json:"id"`
	Label string `json:"label"`
	Out   ID     `json:"out"`
	In    ID     `json:"in"`
}

// Target returns the vertex reached when the edge is walked in direction d.
func (e Edge) Target(d Direction) ID {
	if d == In {
		return e.Out
	}
	return e.In
}

// Reader exposes read access to a consistent view of the graph.
type Reader interface {
	Vertex(id ID) (Vertex, bool)
	VertexByUUID(label, uuid string) (Vertex, bool)
	// VerticesByLabel returns every vertex carrying one of labels, ordered by id.
	VerticesByLabel(labels ...string) []Vertex
	// Property returns the scalar value of a single property, a []any copy of
	// a multi property, or nil when the property is absent.
	Property(id ID, key string) any
	PropertyKeys(id ID) []string
	OutEdges(id ID, label string) []Edge
	InEdges(id ID, label string) []Edge
}

// Tx is a read-write view of the graph bound to one transaction.
type Tx interface {
	Reader
	SetProperty(id ID, key string, value any, card Cardinality) error
	DropProperty(id ID, key string) error
	AddEdge(from ID, label string, to ID) (Edge, error)
	DropEdge(id ID) error
	// UpsertVertex finds the vertex with (label, uuid) or creates it, then
	// invokes fn (which may be nil) on it.
	UpsertVertex(label, uuid string, fn func(Tx, Vertex) error) (Vertex, error)
	// DropVertex removes the vertex and every edge incident to it.
	DropVertex(id ID) error
}

// Store is the transactional boundary of a graph engine.
type Store interface {
	// RunInTransaction executes fn atomically; nothing fn wrote is visible to
	// other callers unless it returns nil.
	RunInTransaction(ctx context.Context, fn func(Tx) error) error
	// View executes fn against a read-only snapshot.
	View(ctx context.Context, fn func(Reader) error) error
}

// Edges walks the edges of id in direction d.
func Edges(r Reader, id ID, d Direction, label string) []Edge {
	if d == In {
		return r.InEdges(id, label)
	}
	return r.OutEdges(id, label)
}
