package core

import (
	"context"
	"reflect"

	"cargohold/pkg/domain"
	"cargohold/pkg/graph"
)

// UniqueConstraint rejects two vertices of one label sharing the same values
// for every key. Vertices missing all keys are ignored.
type UniqueConstraint struct {
	name  string
	label string
	keys  []string
}

var _ graph.Constraint = UniqueConstraint{}

// NewUniqueConstraint builds a unique constraint over keys of label.
func NewUniqueConstraint(name, label string, keys ...string) UniqueConstraint {
	return UniqueConstraint{name: name, label: label, keys: append([]string(nil), keys...)}
}

// GroupNameUnique keeps one artifact id group per name in a repository.
func GroupNameUnique() UniqueConstraint {
	return NewUniqueConstraint("artifact_id_group_name_unique", domain.LabelArtifactIDGroup,
		domain.PropStorageID, domain.PropRepositoryID, domain.PropName)
}

// DefaultConstraints returns the constraints every graph store of the
// service is opened with.
func DefaultConstraints() []graph.Constraint {
	return []graph.Constraint{GroupNameUnique()}
}

// Name implements graph.Constraint.
func (c UniqueConstraint) Name() string { return c.name }

// Evaluate implements graph.Constraint.
func (c UniqueConstraint) Evaluate(_ context.Context, view graph.Reader, changes []graph.Change) error {
	var candidates []graph.Vertex
	for _, change := range changes {
		if change.Label != c.label || change.Action == graph.ActionDelete {
			continue
		}
		values, ok := c.values(view, change.Vertex)
		if !ok {
			continue
		}
		if candidates == nil {
			candidates = view.VerticesByLabel(c.label)
		}
		for _, other := range candidates {
			if other.ID == change.Vertex {
				continue
			}
			if theirs, ok := c.values(view, other.ID); ok && reflect.DeepEqual(values, theirs) {
				return &domain.DuplicateKeyError{Constraint: c.name, Label: c.label, Keys: c.keys, Values: values}
			}
		}
	}
	return nil
}

func (c UniqueConstraint) values(view graph.Reader, id graph.ID) ([]any, bool) {
	if _, ok := view.Vertex(id); !ok {
		return nil, false
	}
	values := make([]any, len(c.keys))
	present := false
	for i, key := range c.keys {
		values[i] = view.Property(id, key)
		if values[i] != nil {
			present = true
		}
	}
	return values, present
}
