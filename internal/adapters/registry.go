package adapters

import (
	"reflect"
	"sort"
	"sync"

	"cargohold/pkg/domain"
)

// Registry indexes the leaf adapters by label and by entity type. It is
// validated when built and never changes afterwards.
type Registry struct {
	descs   []Descriptor
	byLabel map[string]Descriptor
	byType  map[reflect.Type]Descriptor
}

// NewRegistry validates descs: every adapter claims exactly one label, no
// label is claimed twice and no entity type is claimed twice.
func NewRegistry(descs ...Descriptor) (*Registry, error) {
	r := &Registry{
		descs:   append([]Descriptor(nil), descs...),
		byLabel: make(map[string]Descriptor, len(descs)),
		byType:  make(map[reflect.Type]Descriptor, len(descs)),
	}
	for _, d := range descs {
		if len(d.Labels) != 1 {
			return nil, domain.Wiringf(d.Name, "claims %d labels %v, expected exactly one", len(d.Labels), d.Labels)
		}
		if d.Type == nil {
			return nil, domain.Wiringf(d.Name, "no entity type")
		}
		label := d.Labels[0]
		if other, dup := r.byLabel[label]; dup {
			return nil, domain.Wiringf(d.Name, "label %s already claimed by %s", label, other.Name)
		}
		if other, dup := r.byType[d.Type]; dup {
			return nil, domain.Wiringf(d.Name, "type %s already claimed by %s", d.Type, other.Name)
		}
		r.byLabel[label] = d
		r.byType[d.Type] = d
	}
	return r, nil
}

// ForLabel returns the adapter claiming label.
func (r *Registry) ForLabel(label string) (Descriptor, bool) {
	d, ok := r.byLabel[label]
	return d, ok
}

// ForType returns the adapter claiming entity type t.
func (r *Registry) ForType(t reflect.Type) (Descriptor, bool) {
	d, ok := r.byType[t]
	return d, ok
}

// Descriptors returns the registered adapters in registration order.
func (r *Registry) Descriptors() []Descriptor {
	return append([]Descriptor(nil), r.descs...)
}

// Labels returns every claimed label, sorted.
func (r *Registry) Labels() []string {
	out := make([]string, 0, len(r.byLabel))
	for label := range r.byLabel {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

// Options configures New.
type Options struct {
	// MaxHierarchyDepth bounds upward hierarchy walks; zero means
	// DefaultMaxHierarchyDepth.
	MaxHierarchyDepth int
}

// Adapters is the wired set of aggregate adapters.
type Adapters struct {
	Registry    *Registry
	Artifacts   *ArtifactAdapter
	Coordinates *CoordinatesAdapter
	Tags        TagAdapter
	Groups      *GroupAdapter
}

// New wires every adapter and validates the result. Any error is a wiring
// error and should stop the process.
func New(opts Options) (*Adapters, error) {
	depth := opts.MaxHierarchyDepth
	if depth == 0 {
		depth = DefaultMaxHierarchyDepth
	}
	coordinates, coordinateDescs, err := newCoordinatesAdapter()
	if err != nil {
		return nil, err
	}
	artifacts, artifactDescs, err := newArtifactAdapter(coordinates, depth)
	if err != nil {
		return nil, err
	}
	tags := TagAdapter{}
	groups := &GroupAdapter{artifacts: artifacts}
	descs := append(append(coordinateDescs, artifactDescs...), tags.Descriptor(), groups.Descriptor())
	registry, err := NewRegistry(descs...)
	if err != nil {
		return nil, err
	}
	return &Adapters{
		Registry:    registry,
		Artifacts:   artifacts,
		Coordinates: coordinates,
		Tags:        tags,
		Groups:      groups,
	}, nil
}

// Default returns the process-wide adapter set with default options, built
// on first use.
var Default = sync.OnceValues(func() (*Adapters, error) {
	return New(Options{})
})
