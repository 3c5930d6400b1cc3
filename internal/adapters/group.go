package adapters

import (
	"fmt"

	"github.com/google/uuid"

	"cargohold/pkg/domain"
	"cargohold/pkg/graph"
)

const branchArtifacts = "artifacts"

// GroupAdapter maps ArtifactIDGroup vertices. Membership edges point at the
// ARTIFACT vertex of each member and are only ever added: saving a group
// never unlinks an artifact, deleting the group deletes its artifacts.
type GroupAdapter struct {
	artifacts *ArtifactAdapter
}

var _ Adapter[*domain.ArtifactIDGroup] = (*GroupAdapter)(nil)

// Labels implements Adapter.
func (*GroupAdapter) Labels() []string { return []string{domain.LabelArtifactIDGroup} }

// Descriptor implements the registry view.
func (*GroupAdapter) Descriptor() Descriptor {
	return describe[*domain.ArtifactIDGroup]("artifact-id-group", domain.LabelArtifactIDGroup)
}

// Fold implements Adapter.
func (a *GroupAdapter) Fold() Projection[*domain.ArtifactIDGroup] {
	members := a.artifacts.FoldDown()
	return Projection[*domain.ArtifactIDGroup]{
		Query: &Query{Cases: []Case{{Label: domain.LabelArtifactIDGroup, Query: &Query{
			Keys: []string{domain.PropUUID, domain.PropStorageID, domain.PropRepositoryID, domain.PropName},
			Branches: []Branch{{
				Name:  branchArtifacts,
				Step:  OutStep(domain.EdgeArtifactGroupHasArtifacts),
				Query: members.Query,
			}},
		}}}},
		Map: func(b *Bag) (*domain.ArtifactIDGroup, error) {
			g := &domain.ArtifactIDGroup{Base: baseOf(b)}
			g.StorageID, _ = Scalar[string](b.Prop(domain.PropStorageID))
			g.RepositoryID, _ = Scalar[string](b.Prop(domain.PropRepositoryID))
			g.Name, _ = Scalar[string](b.Prop(domain.PropName))
			for _, ab := range b.All(branchArtifacts) {
				node, err := members.Map(ab)
				if err != nil {
					return nil, fmt.Errorf("group %s: %w", g.Name, err)
				}
				g.Artifacts = append(g.Artifacts, node)
			}
			return g, nil
		},
	}
}

// Unfold implements Adapter. Members must already be stored.
func (a *GroupAdapter) Unfold(g *domain.ArtifactIDGroup) (*Plan, error) {
	if g == nil {
		return nil, fmt.Errorf("%w: nil group", domain.ErrInvalid)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if g.UUID == "" {
		g.UUID = uuid.NewString()
	}
	refs := make([]*Plan, 0, len(g.Artifacts))
	for _, node := range g.Artifacts {
		artifact := domain.ArtifactOf(node)
		if artifact == nil {
			return nil, domain.StructuralMismatchf(node, "group member has no artifact level")
		}
		if err := artifact.EnsureUUID(); err != nil {
			return nil, err
		}
		refs = append(refs, RefPlan(domain.LabelArtifact, artifact.UUID))
	}
	return NewPlan(domain.LabelArtifactIDGroup, g.UUID).
		Put(domain.PropStorageID, g.StorageID).
		Put(domain.PropRepositoryID, g.RepositoryID).
		Put(domain.PropName, g.Name).
		Link(OutStep(domain.EdgeArtifactGroupHasArtifacts), Merge, refs...), nil
}

// Cascade implements Adapter.
func (a *GroupAdapter) Cascade(r graph.Reader, id graph.ID) (*CascadeSet, error) {
	return runCascade(r, id, a.cascadeInto)
}

func (a *GroupAdapter) cascadeInto(r graph.Reader, id graph.ID, set *CascadeSet) error {
	if !set.Add(id) {
		return nil
	}
	for _, e := range r.OutEdges(id, domain.EdgeArtifactGroupHasArtifacts) {
		if err := a.artifacts.cascadeInto(r, e.In, set); err != nil {
			return err
		}
	}
	return nil
}
