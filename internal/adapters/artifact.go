package adapters

import (
	"fmt"
	"sort"

	"cargohold/pkg/domain"
	"cargohold/pkg/graph"
)

const (
	branchCoordinates = "coordinates"
	branchTags        = "tags"
)

var artifactKeys = []string{
	domain.PropUUID,
	domain.PropStorageID,
	domain.PropRepositoryID,
	domain.PropCreated,
	domain.PropLastUpdated,
	domain.PropLastUsed,
	domain.PropSizeInBytes,
	domain.PropDownloadCount,
	domain.PropFilenames,
	domain.PropChecksums,
	domain.PropArtifactFileExists,
}

// artifactLevel maps the ARTIFACT vertex: the identity anchor of the
// artifact hierarchy, owner of the coordinates edge and the tag edges.
type artifactLevel struct {
	coordinates *CoordinatesAdapter
	tags        TagAdapter
}

func (artifactLevel) Labels() []string { return []string{domain.LabelArtifact} }

func (artifactLevel) Descriptor() Descriptor {
	return describe[*domain.Artifact]("artifact", domain.LabelArtifact)
}

func (a artifactLevel) Fold() Projection[*domain.Artifact] {
	coordinates := a.coordinates.Fold()
	tags := a.tags.Fold()
	return Projection[*domain.Artifact]{
		Query: &Query{Cases: []Case{{Label: domain.LabelArtifact, Query: &Query{
			Keys: artifactKeys,
			Branches: []Branch{
				{Name: branchCoordinates, Step: OutStep(domain.EdgeArtifactHasArtifactCoordinates), Query: coordinates.Query},
				{Name: branchTags, Step: OutStep(domain.EdgeArtifactHasTags), Query: tags.Query},
			},
		}}}},
		Map: func(b *Bag) (*domain.Artifact, error) {
			out := &domain.Artifact{Base: baseOf(b)}
			out.StorageID, _ = Scalar[string](b.Prop(domain.PropStorageID))
			out.RepositoryID, _ = Scalar[string](b.Prop(domain.PropRepositoryID))
			out.Created = ToTime(b.Prop(domain.PropCreated))
			out.LastUpdated = ToTime(b.Prop(domain.PropLastUpdated))
			out.LastUsed = ToTime(b.Prop(domain.PropLastUsed))
			out.SizeInBytes, _ = Scalar[int64](b.Prop(domain.PropSizeInBytes))
			out.DownloadCount, _ = Scalar[int64](b.Prop(domain.PropDownloadCount))
			out.ArtifactFileExists, _ = Scalar[bool](b.Prop(domain.PropArtifactFileExists))
			if names := List[string](b.Prop(domain.PropFilenames)); len(names) > 0 {
				out.Filenames = names
			}
			out.Checksums = DecodeChecksums(List[string](b.Prop(domain.PropChecksums)))
			c, ok, err := mapOne(coordinates, b.One(branchCoordinates))
			if err != nil {
				return nil, fmt.Errorf("artifact %s coordinates: %w", out.UUID, err)
			}
			if ok {
				out.ArtifactCoordinates = c
			}
			for _, tb := range b.All(branchTags) {
				tag, err := tags.Map(tb)
				if err != nil {
					return nil, err
				}
				out.Tags = append(out.Tags, tag)
			}
			sort.Slice(out.Tags, func(i, j int) bool { return out.Tags[i].Name < out.Tags[j].Name })
			return out, nil
		},
	}
}

func (a artifactLevel) Unfold(artifact *domain.Artifact) (*Plan, error) {
	if artifact == nil {
		return nil, fmt.Errorf("%w: nil artifact", domain.ErrInvalid)
	}
	if err := artifact.EnsureUUID(); err != nil {
		return nil, err
	}
	coordinates, err := a.coordinates.Unfold(artifact.ArtifactCoordinates)
	if err != nil {
		return nil, err
	}
	tags := make([]*Plan, 0, len(artifact.Tags))
	for _, tag := range artifact.Tags {
		tp, err := a.tags.Unfold(tag)
		if err != nil {
			return nil, err
		}
		tags = append(tags, tp)
	}
	return NewPlan(domain.LabelArtifact, artifact.UUID).
		Put(domain.PropStorageID, artifact.StorageID).
		Put(domain.PropRepositoryID, artifact.RepositoryID).
		PutTimeOnce(domain.PropCreated, artifact.Created).
		PutTime(domain.PropLastUpdated, artifact.LastUpdated).
		PutTime(domain.PropLastUsed, artifact.LastUsed).
		Put(domain.PropSizeInBytes, artifact.SizeInBytes).
		Put(domain.PropDownloadCount, artifact.DownloadCount).
		Put(domain.PropArtifactFileExists, artifact.ArtifactFileExists).
		PutSet(domain.PropFilenames, artifact.Filenames).
		PutSet(domain.PropChecksums, EncodeChecksums(artifact.Checksums)).
		Link(OutStep(domain.EdgeArtifactHasArtifactCoordinates), Coalesce, coordinates).
		Link(OutStep(domain.EdgeArtifactHasTags), Replace, tags...), nil
}

func (a artifactLevel) Cascade(r graph.Reader, id graph.ID) (*CascadeSet, error) {
	return runCascade(r, id, a.cascadeInto)
}

// cascadeInto records the artifact vertex and then its coordinates, which
// are only removed when no artifact outside the set still references them.
// Tags are shared and never cascaded.
func (a artifactLevel) cascadeInto(r graph.Reader, id graph.ID, set *CascadeSet) error {
	set.Add(id)
	for _, e := range r.OutEdges(id, domain.EdgeArtifactHasArtifactCoordinates) {
		if err := a.coordinates.cascadeInto(r, e.In, set); err != nil {
			return err
		}
	}
	return nil
}

// remoteLevel maps REMOTE_ARTIFACT vertices.
type remoteLevel struct{}

func (remoteLevel) Labels() []string { return []string{domain.LabelRemoteArtifact} }

func (remoteLevel) Descriptor() Descriptor {
	return describe[*domain.RemoteArtifact]("remote-artifact", domain.LabelRemoteArtifact)
}

func (remoteLevel) Fold() Projection[*domain.RemoteArtifact] {
	return Projection[*domain.RemoteArtifact]{
		Query: &Query{Cases: []Case{{Label: domain.LabelRemoteArtifact, Query: &Query{
			Keys: []string{domain.PropUUID, domain.PropCached},
		}}}},
		Map: func(b *Bag) (*domain.RemoteArtifact, error) {
			cached, _ := Scalar[bool](b.Prop(domain.PropCached))
			return &domain.RemoteArtifact{Base: baseOf(b), Cached: cached}, nil
		},
	}
}

func (remoteLevel) Unfold(remote *domain.RemoteArtifact) (*Plan, error) {
	if remote == nil || remote.UUID == "" {
		return nil, fmt.Errorf("%w: remote artifact without uuid", domain.ErrInvalid)
	}
	return NewPlan(domain.LabelRemoteArtifact, remote.UUID).Put(domain.PropCached, remote.Cached), nil
}

func (a remoteLevel) Cascade(r graph.Reader, id graph.ID) (*CascadeSet, error) {
	return runCascade(r, id, a.cascadeInto)
}

func (remoteLevel) cascadeInto(r graph.Reader, id graph.ID, set *CascadeSet) error {
	return cascadeSelf(r, id, set)
}

// ArtifactAdapter is the aggregate over the artifact hierarchy, its
// coordinates and its tags.
type ArtifactAdapter struct {
	hierarchy   *UpwardHierarchy
	coordinates *CoordinatesAdapter
}

var _ Adapter[domain.HierarchyNode] = (*ArtifactAdapter)(nil)

func newArtifactAdapter(coordinates *CoordinatesAdapter, maxDepth int) (*ArtifactAdapter, []Descriptor, error) {
	root, err := bind[domain.HierarchyNode](leaf[*domain.Artifact](artifactLevel{coordinates: coordinates}))
	if err != nil {
		return nil, nil, err
	}
	remote, err := bind[domain.HierarchyNode](leaf[*domain.RemoteArtifact](remoteLevel{}))
	if err != nil {
		return nil, nil, err
	}
	h, err := NewUpwardHierarchy(UpwardConfig{
		Name:      "artifact",
		Edge:      domain.EdgeRemoteArtifactInheritArtifact,
		Direction: graph.Out,
		MaxDepth:  maxDepth,
		Root:      root,
		Members:   []Variant[domain.HierarchyNode]{remote},
	})
	if err != nil {
		return nil, nil, err
	}
	return &ArtifactAdapter{hierarchy: h, coordinates: coordinates}, []Descriptor{root.Descriptor(), remote.Descriptor()}, nil
}

// Labels implements Adapter.
func (a *ArtifactAdapter) Labels() []string { return a.hierarchy.Labels() }

// MaxDepth returns the hop bound of the artifact hierarchy.
func (a *ArtifactAdapter) MaxDepth() int { return a.hierarchy.MaxDepth() }

// Fold resolves an artifact level vertex and its ancestors.
func (a *ArtifactAdapter) Fold() Projection[domain.HierarchyNode] { return a.hierarchy.Fold() }

// FoldDown resolves the ARTIFACT vertex and its descendants.
func (a *ArtifactAdapter) FoldDown() Projection[domain.HierarchyNode] { return a.hierarchy.FoldDown() }

// Unfold implements Adapter. The plan is anchored at the ARTIFACT vertex.
func (a *ArtifactAdapter) Unfold(node domain.HierarchyNode) (*Plan, error) {
	return a.hierarchy.Unfold(node)
}

// Cascade implements Adapter.
func (a *ArtifactAdapter) Cascade(r graph.Reader, id graph.ID) (*CascadeSet, error) {
	return a.hierarchy.Cascade(r, id)
}

func (a *ArtifactAdapter) cascadeInto(r graph.Reader, id graph.ID, set *CascadeSet) error {
	return a.hierarchy.cascadeInto(r, id, set)
}

// Locate returns the most derived level vertex of the artifact uuid.
func (a *ArtifactAdapter) Locate(r graph.Reader, uuid string) (graph.Vertex, bool) {
	return a.hierarchy.Locate(r, uuid)
}

// Find folds the artifact uuid from its most derived level.
func (a *ArtifactAdapter) Find(r graph.Reader, uuid string) (domain.HierarchyNode, bool, error) {
	v, ok := a.Locate(r, uuid)
	if !ok {
		return nil, false, nil
	}
	return a.Fold().Run(r, v.ID)
}

// FoldAll folds every artifact once, from its most derived level.
func (a *ArtifactAdapter) FoldAll(r graph.Reader) ([]domain.HierarchyNode, error) {
	roots := r.VerticesByLabel(domain.LabelArtifact)
	out := make([]domain.HierarchyNode, 0, len(roots))
	down := a.FoldDown()
	for _, v := range roots {
		node, ok, err := down.Run(r, v.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, node)
		}
	}
	return out, nil
}
