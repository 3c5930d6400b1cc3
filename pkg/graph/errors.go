package graph

import (
	"errors"
	"fmt"
)

// ErrVertexNotFound is returned by Tx mutations addressed at a missing vertex.
var ErrVertexNotFound = errors.New("graph: vertex not found")

// ErrEdgeNotFound is returned by DropEdge for a missing edge.
var ErrEdgeNotFound = errors.New("graph: edge not found")

// VertexNotFoundError names the vertex a mutation could not find.
type VertexNotFoundError struct {
	ID ID
}

func (e VertexNotFoundError) Error() string {
	return fmt.Sprintf("graph: vertex %s not found", e.ID)
}

// Unwrap exposes ErrVertexNotFound to errors.Is.
func (e VertexNotFoundError) Unwrap() error { return ErrVertexNotFound }
