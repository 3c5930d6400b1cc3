package adapters

import (
	"strings"

	"cargohold/pkg/graph"
)

// Step is one traversal hop over edges with a given label.
type Step struct {
	Direction graph.Direction
	Edge      string
}

// OutStep follows edge away from the current vertex.
func OutStep(edge string) Step { return Step{Direction: graph.Out, Edge: edge} }

// InStep follows edge towards the current vertex.
func InStep(edge string) Step { return Step{Direction: graph.In, Edge: edge} }

// Reverse returns the step walking the same edges the other way.
func (s Step) Reverse() Step {
	if s.Direction == graph.Out {
		return InStep(s.Edge)
	}
	return OutStep(s.Edge)
}

// Query describes the sub-graph collected around a vertex. It is plain data
// and can be built once then executed any number of times.
//
// When Cases is set the vertex label selects the first matching case and
// that case's query is executed instead; a vertex matching no case is
// skipped. Otherwise Keys lists the properties to collect (nil collects every
// property, a key ending in ".*" collects a prefix) and Branches are followed.
type Query struct {
	Keys     []string
	Branches []Branch
	Cases    []Case
}

// Branch collects the vertices reached over Step into a named bag slot.
type Branch struct {
	Name  string
	Step  Step
	Query *Query
}

// Case applies Query to vertices carrying Label.
type Case struct {
	Label string
	Query *Query
}

// With returns a copy of q with extra branches appended. For a query with
// cases the branches are appended to every case.
func (q *Query) With(branches ...Branch) *Query {
	cp := *q
	if len(q.Cases) > 0 {
		cp.Cases = make([]Case, len(q.Cases))
		for i, c := range q.Cases {
			cp.Cases[i] = Case{Label: c.Label, Query: c.Query.With(branches...)}
		}
		return &cp
	}
	cp.Branches = append(append([]Branch(nil), q.Branches...), branches...)
	return &cp
}

// Labels returns the case labels in match order.
func (q *Query) Labels() []string {
	labels := make([]string, 0, len(q.Cases))
	for _, c := range q.Cases {
		labels = append(labels, c.Label)
	}
	return labels
}

// match resolves the cases for label, descending through nested cases so a
// leaf query keeps its own label guard when a hierarchy wraps it.
func (q *Query) match(label string) (*Query, bool) {
	for q != nil && len(q.Cases) > 0 {
		var next *Query
		for _, c := range q.Cases {
			if c.Label == label {
				next = c.Query
				break
			}
		}
		if next == nil {
			return nil, false
		}
		q = next
	}
	return q, q != nil
}

// Bag holds what a Query collected for one vertex.
type Bag struct {
	ID       graph.ID
	Label    string
	Props    map[string]any
	Branches map[string][]*Bag
}

// Prop returns a collected property or nil.
func (b *Bag) Prop(key string) any {
	if b == nil {
		return nil
	}
	return b.Props[key]
}

// PropsWithPrefix returns the collected properties under prefix with the
// prefix stripped.
func (b *Bag) PropsWithPrefix(prefix string) map[string]any {
	var out map[string]any
	for k, v := range b.Props {
		if rest, ok := strings.CutPrefix(k, prefix); ok {
			if out == nil {
				out = make(map[string]any)
			}
			out[rest] = v
		}
	}
	return out
}

// One returns the first bag of a branch or nil.
func (b *Bag) One(branch string) *Bag {
	if b == nil {
		return nil
	}
	if all := b.Branches[branch]; len(all) > 0 {
		return all[0]
	}
	return nil
}

// All returns every bag of a branch.
func (b *Bag) All(branch string) []*Bag {
	if b == nil {
		return nil
	}
	return b.Branches[branch]
}

// Collect executes q at vertex id. A missing vertex, or one whose label
// matches none of the query cases, yields a nil bag and no error.
func Collect(r graph.Reader, id graph.ID, q *Query) *Bag {
	v, ok := r.Vertex(id)
	if !ok {
		return nil
	}
	return collect(r, v, q)
}

func collect(r graph.Reader, v graph.Vertex, q *Query) *Bag {
	q, ok := q.match(v.Label)
	if !ok {
		return nil
	}
	bag := &Bag{ID: v.ID, Label: v.Label, Props: make(map[string]any)}
	for _, key := range selectKeys(r, v.ID, q.Keys) {
		if val := r.Property(v.ID, key); val != nil {
			bag.Props[key] = val
		}
	}
	for _, br := range q.Branches {
		for _, e := range graph.Edges(r, v.ID, br.Step.Direction, br.Step.Edge) {
			target, ok := r.Vertex(e.Target(br.Step.Direction))
			if !ok {
				continue
			}
			child := collect(r, target, br.Query)
			if child == nil {
				continue
			}
			if bag.Branches == nil {
				bag.Branches = make(map[string][]*Bag)
			}
			bag.Branches[br.Name] = append(bag.Branches[br.Name], child)
		}
	}
	return bag
}

func selectKeys(r graph.Reader, id graph.ID, keys []string) []string {
	if len(keys) == 0 {
		return r.PropertyKeys(id)
	}
	var prefixes []string
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if prefix, ok := strings.CutSuffix(k, "*"); ok {
			prefixes = append(prefixes, prefix)
			continue
		}
		out = append(out, k)
	}
	if len(prefixes) == 0 {
		return out
	}
	for _, k := range r.PropertyKeys(id) {
		for _, prefix := range prefixes {
			if strings.HasPrefix(k, prefix) {
				out = append(out, k)
				break
			}
		}
	}
	return out
}
