package adapters

import (
	"fmt"
	"reflect"

	"cargohold/pkg/domain"
	"cargohold/pkg/graph"
)

const branchRoot = "root"

// HierarchyConfig wires a single-root hierarchy. Every member vertex points
// at exactly one root vertex over Inherit; the root holds the shared data.
type HierarchyConfig[R domain.Entity] struct {
	Name    string
	Inherit Step
	Root    Variant[R]
	// RootPlan writes the root vertex for any member of the hierarchy.
	RootPlan func(R) (*Plan, error)
	// Join attaches a folded root to a folded member.
	Join func(member, root R) error
	// Members are matched in order, most derived first.
	Members []Variant[R]
}

// Hierarchy maps a label-discriminated, single-root type hierarchy.
type Hierarchy[R domain.Entity] struct {
	cfg   HierarchyConfig[R]
	query *Query
}

var _ Adapter[domain.ArtifactCoordinates] = (*Hierarchy[domain.ArtifactCoordinates])(nil)

// NewHierarchy validates cfg and builds the fold query.
func NewHierarchy[R domain.Entity](cfg HierarchyConfig[R]) (*Hierarchy[R], error) {
	if cfg.RootPlan == nil || cfg.Join == nil || len(cfg.Root.desc.Labels) == 0 {
		return nil, domain.Wiringf(cfg.Name, "hierarchy needs a root, a root plan and a join")
	}
	labels := map[string]string{cfg.Root.Label(): cfg.Root.desc.Name}
	types := map[reflect.Type]string{cfg.Root.desc.Type: cfg.Root.desc.Name}
	query := &Query{}
	for _, m := range cfg.Members {
		if other, dup := labels[m.Label()]; dup {
			return nil, domain.Wiringf(cfg.Name, "label %s claimed by %s and %s", m.Label(), other, m.desc.Name)
		}
		if other, dup := types[m.desc.Type]; dup {
			return nil, domain.Wiringf(cfg.Name, "type %s claimed by %s and %s", m.desc.Type, other, m.desc.Name)
		}
		labels[m.Label()] = m.desc.Name
		types[m.desc.Type] = m.desc.Name
		query.Cases = append(query.Cases, Case{
			Label: m.Label(),
			Query: m.fold.Query.With(Branch{Name: branchRoot, Step: cfg.Inherit, Query: cfg.Root.fold.Query}),
		})
	}
	query.Cases = append(query.Cases, Case{Label: cfg.Root.Label(), Query: cfg.Root.fold.Query})
	return &Hierarchy[R]{cfg: cfg, query: query}, nil
}

// Labels returns every member label then the root label.
func (h *Hierarchy[R]) Labels() []string { return h.query.Labels() }

// Fold implements Adapter. The vertex label picks the member; a vertex of
// none of the hierarchy labels folds to not-found.
func (h *Hierarchy[R]) Fold() Projection[R] {
	return Projection[R]{Query: h.query, Map: h.mapBag}
}

func (h *Hierarchy[R]) mapBag(b *Bag) (R, error) {
	var zero R
	if b.Label == h.cfg.Root.Label() {
		return h.cfg.Root.fold.Map(b)
	}
	member, ok := variantByLabel(h.cfg.Members, b.Label)
	if !ok {
		return zero, fmt.Errorf("%w: %s has no member for label %s", domain.ErrStructuralMismatch, h.cfg.Name, b.Label)
	}
	entity, err := member.fold.Map(b)
	if err != nil {
		return zero, err
	}
	if rootBag := b.One(branchRoot); rootBag != nil {
		root, err := h.cfg.Root.fold.Map(rootBag)
		if err != nil {
			return zero, err
		}
		if err := h.cfg.Join(entity, root); err != nil {
			return zero, err
		}
	}
	return entity, nil
}

// Unfold writes the member vertex and coalesces its inherit edge to the root
// vertex. A bare root entity is written on its own.
func (h *Hierarchy[R]) Unfold(entity R) (*Plan, error) {
	if h.cfg.Root.accepts(entity) {
		return h.cfg.RootPlan(entity)
	}
	member, err := selectVariant(h.cfg.Name, h.cfg.Members, entity)
	if err != nil {
		return nil, err
	}
	plan, err := member.unfold(entity)
	if err != nil {
		return nil, err
	}
	rootPlan, err := h.cfg.RootPlan(entity)
	if err != nil {
		return nil, err
	}
	return plan.Link(h.cfg.Inherit, Coalesce, rootPlan), nil
}

// Cascade implements Adapter.
func (h *Hierarchy[R]) Cascade(r graph.Reader, id graph.ID) (*CascadeSet, error) {
	return runCascade(r, id, h.cascadeInto)
}

// cascadeInto records the vertex and everything reachable over the inherit
// edge, stopping at vertices already recorded.
func (h *Hierarchy[R]) cascadeInto(r graph.Reader, id graph.ID, set *CascadeSet) error {
	for cur := id; set.Add(cur); {
		edges := graph.Edges(r, cur, h.cfg.Inherit.Direction, h.cfg.Inherit.Edge)
		if len(edges) == 0 {
			return nil
		}
		cur = edges[0].Target(h.cfg.Inherit.Direction)
	}
	return nil
}
