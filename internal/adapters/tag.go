package adapters

import (
	"fmt"

	"cargohold/pkg/domain"
	"cargohold/pkg/graph"
)

// TagAdapter maps ArtifactTag vertices. Tags are shared between artifacts
// and are never removed by an artifact cascade.
type TagAdapter struct{}

var _ Adapter[*domain.ArtifactTag] = TagAdapter{}

// Labels implements Adapter.
func (TagAdapter) Labels() []string { return []string{domain.LabelArtifactTag} }

// Descriptor implements the registry view.
func (TagAdapter) Descriptor() Descriptor {
	return describe[*domain.ArtifactTag]("tag", domain.LabelArtifactTag)
}

// Fold implements Adapter.
func (TagAdapter) Fold() Projection[*domain.ArtifactTag] {
	return Projection[*domain.ArtifactTag]{
		Query: &Query{Cases: []Case{{
			Label: domain.LabelArtifactTag,
			Query: &Query{Keys: []string{domain.PropUUID, domain.PropName}},
		}}},
		Map: func(b *Bag) (*domain.ArtifactTag, error) {
			name, _ := Scalar[string](b.Prop(domain.PropName))
			return &domain.ArtifactTag{Base: baseOf(b), Name: name}, nil
		},
	}
}

// Unfold implements Adapter.
func (TagAdapter) Unfold(tag *domain.ArtifactTag) (*Plan, error) {
	if tag == nil || tag.Name == "" {
		return nil, fmt.Errorf("%w: tag without name", domain.ErrInvalid)
	}
	if tag.UUID == "" {
		tag.UUID = tag.Name
	}
	return NewPlan(domain.LabelArtifactTag, tag.UUID).Put(domain.PropName, tag.Name), nil
}

// Cascade implements Adapter.
func (a TagAdapter) Cascade(r graph.Reader, id graph.ID) (*CascadeSet, error) {
	return runCascade(r, id, a.cascadeInto)
}

func (TagAdapter) cascadeInto(r graph.Reader, id graph.ID, set *CascadeSet) error {
	return cascadeSelf(r, id, set)
}
