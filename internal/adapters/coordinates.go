package adapters

import (
	"fmt"
	"sort"

	"cargohold/pkg/domain"
	"cargohold/pkg/graph"
)

// GenericCoordinatesAdapter maps the root vertex of the coordinates
// hierarchy. It folds on its own but refuses to write or delete: the root is
// only ever mutated through CoordinatesAdapter together with its subtype.
type GenericCoordinatesAdapter struct{}

var _ Adapter[*domain.GenericArtifactCoordinates] = GenericCoordinatesAdapter{}

// Labels implements Adapter.
func (GenericCoordinatesAdapter) Labels() []string {
	return []string{domain.LabelGenericArtifactCoordinates}
}

// Descriptor implements the registry view.
func (GenericCoordinatesAdapter) Descriptor() Descriptor {
	return describe[*domain.GenericArtifactCoordinates]("generic-coordinates", domain.LabelGenericArtifactCoordinates)
}

// Fold implements Adapter.
func (GenericCoordinatesAdapter) Fold() Projection[*domain.GenericArtifactCoordinates] {
	return Projection[*domain.GenericArtifactCoordinates]{
		Query: &Query{Cases: []Case{{
			Label: domain.LabelGenericArtifactCoordinates,
			Query: &Query{Keys: []string{domain.PropUUID, domain.PropVersion, domain.PropCoordinatesPrefix + "*"}},
		}}},
		Map: func(b *Bag) (*domain.GenericArtifactCoordinates, error) {
			g := &domain.GenericArtifactCoordinates{Base: baseOf(b)}
			g.Version, _ = Scalar[string](b.Prop(domain.PropVersion))
			for key, raw := range b.PropsWithPrefix(domain.PropCoordinatesPrefix) {
				if v, ok := Scalar[string](raw); ok {
					g.SetCoordinate(key, v)
				}
			}
			return g, nil
		},
	}
}

// Unfold implements Adapter and always fails with ErrUnsupported.
func (GenericCoordinatesAdapter) Unfold(*domain.GenericArtifactCoordinates) (*Plan, error) {
	return nil, fmt.Errorf("%w: generic coordinates are written through their layout", domain.ErrUnsupported)
}

// Cascade implements Adapter and always fails with ErrUnsupported.
func (GenericCoordinatesAdapter) Cascade(graph.Reader, graph.ID) (*CascadeSet, error) {
	return nil, fmt.Errorf("%w: generic coordinates are deleted through their layout", domain.ErrUnsupported)
}

func (GenericCoordinatesAdapter) cascadeInto(graph.Reader, graph.ID, *CascadeSet) error {
	return fmt.Errorf("%w: generic coordinates are deleted through their layout", domain.ErrUnsupported)
}

// plan writes the generic root of any coordinates. Dynamic coordinates the
// entity no longer carries are dropped.
func (GenericCoordinatesAdapter) plan(c domain.ArtifactCoordinates) (*Plan, error) {
	if err := domain.EnsureCoordinatesUUID(c); err != nil {
		return nil, err
	}
	g := c.Generic()
	p := NewPlan(domain.LabelGenericArtifactCoordinates, c.Identity().UUID).
		PutString(domain.PropVersion, g.Version).
		ReplacePrefix(domain.PropCoordinatesPrefix)
	if g.Version == "" {
		p.Drop = append(p.Drop, domain.PropVersion)
	}
	keys := make([]string, 0, len(g.Coordinates))
	for k := range g.Coordinates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		p.PutString(domain.PropCoordinatesPrefix+k, g.Coordinates[k])
	}
	return p, nil
}

// layoutAdapter maps one layout vertex. The layout vertex carries only its
// identity; everything else lives on the generic root.
type layoutAdapter[T domain.LayoutCoordinates] struct {
	name  string
	label string
	make  func() T
}

// Labels implements Adapter.
func (a layoutAdapter[T]) Labels() []string { return []string{a.label} }

// Descriptor implements the registry view.
func (a layoutAdapter[T]) Descriptor() Descriptor { return describe[T](a.name, a.label) }

// Fold implements Adapter. The folded entity has an empty generic root until
// a hierarchy attaches the stored one.
func (a layoutAdapter[T]) Fold() Projection[T] {
	return Projection[T]{
		Query: &Query{Cases: []Case{{Label: a.label, Query: &Query{Keys: []string{domain.PropUUID}}}}},
		Map: func(b *Bag) (T, error) {
			c := a.make()
			*c.Identity() = baseOf(b)
			return c, nil
		},
	}
}

// Unfold implements Adapter.
func (a layoutAdapter[T]) Unfold(c T) (*Plan, error) {
	if err := domain.EnsureCoordinatesUUID(c); err != nil {
		return nil, err
	}
	return NewPlan(a.label, c.Identity().UUID), nil
}

// Cascade implements Adapter.
func (a layoutAdapter[T]) Cascade(r graph.Reader, id graph.ID) (*CascadeSet, error) {
	return runCascade(r, id, a.cascadeInto)
}

func (a layoutAdapter[T]) cascadeInto(r graph.Reader, id graph.ID, set *CascadeSet) error {
	return cascadeSelf(r, id, set)
}

// RawCoordinatesAdapter maps RAW_ARTIFACT_COORDINATES vertices.
func RawCoordinatesAdapter() Adapter[*domain.RawArtifactCoordinates] {
	return rawLayout()
}

// MavenCoordinatesAdapter maps MAVEN_ARTIFACT_COORDINATES vertices.
func MavenCoordinatesAdapter() Adapter[*domain.MavenArtifactCoordinates] {
	return mavenLayout()
}

// NugetCoordinatesAdapter maps NUGET_ARTIFACT_COORDINATES vertices.
func NugetCoordinatesAdapter() Adapter[*domain.NugetArtifactCoordinates] {
	return nugetLayout()
}

func rawLayout() layoutAdapter[*domain.RawArtifactCoordinates] {
	return layoutAdapter[*domain.RawArtifactCoordinates]{
		name: "raw-coordinates", label: domain.LabelRawArtifactCoordinates,
		make: func() *domain.RawArtifactCoordinates { return &domain.RawArtifactCoordinates{} },
	}
}

func mavenLayout() layoutAdapter[*domain.MavenArtifactCoordinates] {
	return layoutAdapter[*domain.MavenArtifactCoordinates]{
		name: "maven-coordinates", label: domain.LabelMavenArtifactCoordinates,
		make: func() *domain.MavenArtifactCoordinates { return &domain.MavenArtifactCoordinates{} },
	}
}

func nugetLayout() layoutAdapter[*domain.NugetArtifactCoordinates] {
	return layoutAdapter[*domain.NugetArtifactCoordinates]{
		name: "nuget-coordinates", label: domain.LabelNugetArtifactCoordinates,
		make: func() *domain.NugetArtifactCoordinates { return &domain.NugetArtifactCoordinates{} },
	}
}

// CoordinatesAdapter is the aggregate over the coordinates hierarchy. On top
// of the hierarchy it only deletes coordinates no other artifact references.
type CoordinatesAdapter struct {
	hierarchy *Hierarchy[domain.ArtifactCoordinates]
}

var _ Adapter[domain.ArtifactCoordinates] = (*CoordinatesAdapter)(nil)

func newCoordinatesAdapter() (*CoordinatesAdapter, []Descriptor, error) {
	generic := GenericCoordinatesAdapter{}
	root, err := bind[domain.ArtifactCoordinates](leaf[*domain.GenericArtifactCoordinates](generic))
	if err != nil {
		return nil, nil, err
	}
	raw, err := bind[domain.ArtifactCoordinates](leaf[*domain.RawArtifactCoordinates](rawLayout()))
	if err != nil {
		return nil, nil, err
	}
	maven, err := bind[domain.ArtifactCoordinates](leaf[*domain.MavenArtifactCoordinates](mavenLayout()))
	if err != nil {
		return nil, nil, err
	}
	nuget, err := bind[domain.ArtifactCoordinates](leaf[*domain.NugetArtifactCoordinates](nugetLayout()))
	if err != nil {
		return nil, nil, err
	}
	h, err := NewHierarchy(HierarchyConfig[domain.ArtifactCoordinates]{
		Name:     "coordinates",
		Inherit:  OutStep(domain.EdgeCoordinatesInheritGeneric),
		Root:     root,
		RootPlan: generic.plan,
		Join: func(member, root domain.ArtifactCoordinates) error {
			layout, ok := member.(domain.LayoutCoordinates)
			if !ok {
				return fmt.Errorf("%w: %T has no generic root", domain.ErrStructuralMismatch, member)
			}
			g, ok := root.(*domain.GenericArtifactCoordinates)
			if !ok {
				return fmt.Errorf("%w: coordinates root is %T", domain.ErrStructuralMismatch, root)
			}
			layout.SetGeneric(g)
			return nil
		},
		Members: []Variant[domain.ArtifactCoordinates]{maven, nuget, raw},
	})
	if err != nil {
		return nil, nil, err
	}
	descs := []Descriptor{root.Descriptor(), maven.Descriptor(), nuget.Descriptor(), raw.Descriptor()}
	return &CoordinatesAdapter{hierarchy: h}, descs, nil
}

// Labels implements Adapter.
func (a *CoordinatesAdapter) Labels() []string { return a.hierarchy.Labels() }

// Fold implements Adapter.
func (a *CoordinatesAdapter) Fold() Projection[domain.ArtifactCoordinates] {
	return a.hierarchy.Fold()
}

// Unfold implements Adapter.
func (a *CoordinatesAdapter) Unfold(c domain.ArtifactCoordinates) (*Plan, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: nil coordinates", domain.ErrInvalid)
	}
	return a.hierarchy.Unfold(c)
}

// Cascade implements Adapter.
func (a *CoordinatesAdapter) Cascade(r graph.Reader, id graph.ID) (*CascadeSet, error) {
	return runCascade(r, id, a.cascadeInto)
}

// cascadeInto removes the coordinates only when every artifact pointing at
// them is already part of the deletion.
func (a *CoordinatesAdapter) cascadeInto(r graph.Reader, id graph.ID, set *CascadeSet) error {
	for _, e := range r.InEdges(id, domain.EdgeArtifactHasArtifactCoordinates) {
		if !set.Contains(e.Out) {
			return nil
		}
	}
	return a.hierarchy.cascadeInto(r, id, set)
}

// FoldAll folds every coordinates entity once. Generic vertices that are
// the root of a layout vertex are reached through that layout and skipped.
func (a *CoordinatesAdapter) FoldAll(r graph.Reader) ([]domain.ArtifactCoordinates, error) {
	vertices := r.VerticesByLabel(a.Labels()...)
	top := vertices[:0:0]
	for _, v := range vertices {
		if v.Label == domain.LabelGenericArtifactCoordinates && len(r.InEdges(v.ID, domain.EdgeCoordinatesInheritGeneric)) > 0 {
			continue
		}
		top = append(top, v)
	}
	return a.Fold().RunAll(r, top)
}
