package adapters

import (
	"fmt"
	"strings"
	"time"

	"cargohold/pkg/domain"
	"cargohold/pkg/graph"
)

// EdgeMode selects how an EdgePlan reconciles existing edges.
type EdgeMode uint8

const (
	// Coalesce keeps exactly one edge. An existing edge is reused and its
	// target updated in place; otherwise the target is upserted and linked.
	// An existing target with another identity is an ErrIdentityConflict.
	Coalesce EdgeMode = iota
	// Replace makes the edges equal to the targets, dropping the rest.
	Replace
	// Merge links every target and never drops an edge.
	Merge
)

func (m EdgeMode) String() string {
	switch m {
	case Coalesce:
		return "coalesce"
	case Replace:
		return "replace"
	case Merge:
		return "merge"
	default:
		return fmt.Sprintf("mode(%d)", m)
	}
}

// Write is a single property write.
type Write struct {
	Key         string
	Value       any
	Cardinality graph.Cardinality
	// IfAbsent skips the write when the property is already set.
	IfAbsent bool
}

// Plan describes the idempotent upserts that persist one entity. Like Query
// it is plain data; Apply executes it.
type Plan struct {
	Label string
	UUID  string
	// Ref marks a plan that only addresses an existing vertex. Applying it
	// writes nothing and fails when the vertex does not exist.
	Ref        bool
	Set        []Write
	Drop       []string
	DropPrefix []string
	Edges      []EdgePlan
}

// EdgePlan reconciles the edges leaving the plan vertex over Step.
type EdgePlan struct {
	Step    Step
	Mode    EdgeMode
	Targets []*Plan
}

// NewPlan starts a plan upserting (label, uuid).
func NewPlan(label, uuid string) *Plan {
	return &Plan{Label: label, UUID: uuid}
}

// RefPlan addresses the existing vertex (label, uuid).
func RefPlan(label, uuid string) *Plan {
	return &Plan{Label: label, UUID: uuid, Ref: true}
}

// Put writes a single value.
func (p *Plan) Put(key string, value any) *Plan {
	p.Set = append(p.Set, Write{Key: key, Value: value, Cardinality: graph.Single})
	return p
}

// PutOnce writes a single value unless one is already stored.
func (p *Plan) PutOnce(key string, value any) *Plan {
	p.Set = append(p.Set, Write{Key: key, Value: value, Cardinality: graph.Single, IfAbsent: true})
	return p
}

// PutString writes v unless it is empty.
func (p *Plan) PutString(key, v string) *Plan {
	if v == "" {
		return p
	}
	return p.Put(key, v)
}

// PutTime writes t as epoch milliseconds unless it is zero.
func (p *Plan) PutTime(key string, t time.Time) *Plan {
	if ms, ok := ToLong(t); ok {
		return p.Put(key, ms)
	}
	return p
}

// PutTimeOnce is PutTime for write-once fields.
func (p *Plan) PutTimeOnce(key string, t time.Time) *Plan {
	if ms, ok := ToLong(t); ok {
		return p.PutOnce(key, ms)
	}
	return p
}

// PutSet replaces a multi-valued property. An empty set drops it so a
// previously stored non-empty set does not survive.
func (p *Plan) PutSet(key string, values []string) *Plan {
	if len(values) == 0 {
		p.Drop = append(p.Drop, key)
		return p
	}
	p.Set = append(p.Set, Write{Key: key, Value: append([]string(nil), values...), Cardinality: graph.Multi})
	return p
}

// ReplacePrefix drops every stored property under prefix that this plan
// does not write.
func (p *Plan) ReplacePrefix(prefix string) *Plan {
	p.DropPrefix = append(p.DropPrefix, prefix)
	return p
}

// Link adds an edge reconciliation.
func (p *Plan) Link(step Step, mode EdgeMode, targets ...*Plan) *Plan {
	p.Edges = append(p.Edges, EdgePlan{Step: step, Mode: mode, Targets: targets})
	return p
}

// Apply executes p inside tx and returns the vertex the plan is anchored at.
func Apply(tx graph.Tx, p *Plan) (graph.Vertex, error) {
	if p == nil {
		return graph.Vertex{}, fmt.Errorf("%w: nil plan", domain.ErrInvalid)
	}
	if p.UUID == "" {
		return graph.Vertex{}, fmt.Errorf("%w: %s plan has no uuid", domain.ErrInvalid, p.Label)
	}
	var (
		v   graph.Vertex
		err error
	)
	if p.Ref {
		found, ok := tx.VertexByUUID(p.Label, p.UUID)
		if !ok {
			return graph.Vertex{}, domain.NotFoundError{Entity: p.Label, ID: p.UUID}
		}
		v = found
	} else {
		v, err = tx.UpsertVertex(p.Label, p.UUID, func(tx graph.Tx, v graph.Vertex) error {
			return writeProperties(tx, v.ID, p)
		})
		if err != nil {
			return graph.Vertex{}, fmt.Errorf("upsert %s %s: %w", p.Label, p.UUID, err)
		}
	}
	for _, ep := range p.Edges {
		if err := applyEdges(tx, v, ep); err != nil {
			return graph.Vertex{}, err
		}
	}
	return v, nil
}

func writeProperties(tx graph.Tx, id graph.ID, p *Plan) error {
	if len(p.DropPrefix) > 0 {
		written := make(map[string]struct{}, len(p.Set))
		for _, w := range p.Set {
			written[w.Key] = struct{}{}
		}
		for _, key := range tx.PropertyKeys(id) {
			if _, keep := written[key]; keep {
				continue
			}
			for _, prefix := range p.DropPrefix {
				if strings.HasPrefix(key, prefix) {
					if err := tx.DropProperty(id, key); err != nil {
						return err
					}
					break
				}
			}
		}
	}
	for _, key := range p.Drop {
		if err := tx.DropProperty(id, key); err != nil {
			return err
		}
	}
	for _, w := range p.Set {
		if w.IfAbsent && tx.Property(id, w.Key) != nil {
			continue
		}
		if w.Cardinality == graph.Multi {
			if err := tx.DropProperty(id, w.Key); err != nil {
				return err
			}
		}
		if err := tx.SetProperty(id, w.Key, w.Value, w.Cardinality); err != nil {
			return fmt.Errorf("set %s.%s: %w", p.Label, w.Key, err)
		}
	}
	return nil
}

func applyEdges(tx graph.Tx, v graph.Vertex, ep EdgePlan) error {
	if ep.Mode == Coalesce {
		return coalesce(tx, v, ep)
	}
	want := make(map[graph.ID]struct{}, len(ep.Targets))
	order := make([]graph.ID, 0, len(ep.Targets))
	for _, target := range ep.Targets {
		tv, err := Apply(tx, target)
		if err != nil {
			return err
		}
		if _, dup := want[tv.ID]; dup {
			continue
		}
		want[tv.ID] = struct{}{}
		order = append(order, tv.ID)
	}
	have := make(map[graph.ID]struct{})
	for _, e := range graph.Edges(tx, v.ID, ep.Step.Direction, ep.Step.Edge) {
		other := e.Target(ep.Step.Direction)
		_, wanted := want[other]
		_, seen := have[other]
		if seen || (!wanted && ep.Mode == Replace) {
			if err := tx.DropEdge(e.ID); err != nil {
				return err
			}
			continue
		}
		have[other] = struct{}{}
	}
	for _, id := range order {
		if _, ok := have[id]; ok {
			continue
		}
		if err := addEdge(tx, v.ID, ep.Step, id); err != nil {
			return err
		}
	}
	return nil
}

func coalesce(tx graph.Tx, v graph.Vertex, ep EdgePlan) error {
	if len(ep.Targets) != 1 {
		return domain.Wiringf(v.Label, "coalesce over %s needs exactly one target, got %d", ep.Step.Edge, len(ep.Targets))
	}
	target := ep.Targets[0]
	existing := graph.Edges(tx, v.ID, ep.Step.Direction, ep.Step.Edge)
	if len(existing) > 0 {
		current, _ := tx.Vertex(existing[0].Target(ep.Step.Direction))
		currentUUID, _ := Scalar[string](tx.Property(current.ID, graph.UUIDKey))
		if current.Label != target.Label || currentUUID != target.UUID {
			return fmt.Errorf("%w: %s of %s %s points at %s %s, refusing to repoint it to %s %s",
				domain.ErrIdentityConflict, ep.Step.Edge, v.Label, v.ID,
				current.Label, currentUUID, target.Label, target.UUID)
		}
		for _, extra := range existing[1:] {
			if err := tx.DropEdge(extra.ID); err != nil {
				return err
			}
		}
	}
	tv, err := Apply(tx, target)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	return addEdge(tx, v.ID, ep.Step, tv.ID)
}

func addEdge(tx graph.Tx, from graph.ID, step Step, to graph.ID) error {
	var err error
	if step.Direction == graph.Out {
		_, err = tx.AddEdge(from, step.Edge, to)
	} else {
		_, err = tx.AddEdge(to, step.Edge, from)
	}
	if err != nil {
		return fmt.Errorf("add %s edge: %w", step.Edge, err)
	}
	return nil
}
