// Package adapters maps domain entities to and from the property graph.
//
// Every adapter offers three operations. Fold returns a Projection: a query
// describing the sub-graph an entity is read from plus a pure function
// mapping the collected result to the entity. Unfold turns an entity into a
// Plan of idempotent upserts. Cascade computes the vertices removed together
// with an entity. Leaf adapters handle exactly one vertex label; hierarchy
// and aggregate adapters compose leaves.
package adapters

import (
	"fmt"
	"reflect"

	"cargohold/pkg/domain"
	"cargohold/pkg/graph"
)

// Adapter maps one entity type.
type Adapter[T domain.Entity] interface {
	Labels() []string
	Fold() Projection[T]
	Unfold(entity T) (*Plan, error)
	Cascade(r graph.Reader, id graph.ID) (*CascadeSet, error)
}

// Descriptor is the registry view of a leaf adapter.
type Descriptor struct {
	Name   string
	Labels []string
	Type   reflect.Type
}

type leaf[T domain.Entity] interface {
	Adapter[T]
	Descriptor() Descriptor
	cascadeInto(r graph.Reader, id graph.ID, set *CascadeSet) error
}

// Variant is a leaf adapter for a subtype T seen through its hierarchy
// type R.
type Variant[R domain.Entity] struct {
	desc    Descriptor
	fold    Projection[R]
	accepts func(R) bool
	unfold  func(R) (*Plan, error)
	cascade cascadeFunc
}

// Label returns the single label the variant claims.
func (v Variant[R]) Label() string { return v.desc.Labels[0] }

// Descriptor returns the registry view of the underlying leaf.
func (v Variant[R]) Descriptor() Descriptor { return v.desc }

func bind[R domain.Entity, T domain.Entity](a leaf[T]) (Variant[R], error) {
	desc := a.Descriptor()
	if len(desc.Labels) != 1 {
		return Variant[R]{}, domain.Wiringf(desc.Name, "claims %d labels %v, a hierarchy member must claim exactly one", len(desc.Labels), desc.Labels)
	}
	var zero T
	if _, ok := any(zero).(R); !ok {
		return Variant[R]{}, domain.Wiringf(desc.Name, "%s is not a %s", desc.Type, reflect.TypeFor[R]())
	}
	p := a.Fold()
	return Variant[R]{
		desc: desc,
		fold: Projection[R]{Query: p.Query, Map: func(b *Bag) (R, error) {
			t, err := p.Map(b)
			if err != nil {
				var none R
				return none, err
			}
			return any(t).(R), nil
		}},
		accepts: func(r R) bool {
			_, ok := any(r).(T)
			return ok
		},
		unfold: func(r R) (*Plan, error) {
			t, ok := any(r).(T)
			if !ok {
				return nil, fmt.Errorf("%w: %T is not handled by %s", domain.ErrStructuralMismatch, r, desc.Name)
			}
			return a.Unfold(t)
		},
		cascade: a.cascadeInto,
	}, nil
}

func describe[T domain.Entity](name string, labels ...string) Descriptor {
	return Descriptor{Name: name, Labels: labels, Type: reflect.TypeFor[T]()}
}

func baseOf(b *Bag) domain.Base {
	id, _ := Scalar[string](b.Prop(domain.PropUUID))
	return domain.Base{UUID: id, NativeID: string(b.ID)}
}

// selectVariant returns the unique variant accepting entity.
func selectVariant[R domain.Entity](owner string, variants []Variant[R], entity R) (Variant[R], error) {
	var (
		found Variant[R]
		n     int
	)
	for _, v := range variants {
		if v.accepts(entity) {
			if n == 0 {
				found = v
			}
			n++
		}
	}
	switch n {
	case 0:
		return Variant[R]{}, fmt.Errorf("%w: %s has no member for %T", domain.ErrStructuralMismatch, owner, entity)
	case 1:
		return found, nil
	default:
		return Variant[R]{}, domain.Wiringf(owner, "%d members accept %T", n, entity)
	}
}

func variantByLabel[R domain.Entity](variants []Variant[R], label string) (Variant[R], bool) {
	for _, v := range variants {
		if v.Label() == label {
			return v, true
		}
	}
	return Variant[R]{}, false
}
