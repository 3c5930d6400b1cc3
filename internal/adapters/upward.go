package adapters

import (
	"fmt"
	"reflect"

	"cargohold/pkg/domain"
	"cargohold/pkg/graph"
)

// DefaultMaxHierarchyDepth bounds every upward hierarchy walk unless
// configured otherwise.
const DefaultMaxHierarchyDepth = 8

const (
	branchParent = "parent"
	branchChild  = "child"
)

// UpwardConfig wires a multi-level hierarchy. Each level is a separate
// vertex, all levels of one entity share its uuid, and adjacent levels are
// joined by one Edge.
type UpwardConfig struct {
	Name string
	// Edge defaults to EXTENDS.
	Edge string
	// Direction is the way Edge leaves a child level towards its parent.
	// The zero value, graph.Out, links child -[Edge]-> parent.
	Direction graph.Direction
	MaxDepth  int
	Root     Variant[domain.HierarchyNode]
	// Members are the child levels, most derived first.
	Members []Variant[domain.HierarchyNode]
}

// UpwardHierarchy maps entities spread over a chain of levels.
type UpwardHierarchy struct {
	cfg      UpwardConfig
	levels   []Variant[domain.HierarchyNode]
	toParent Step
	toChild  Step
	up       *Query
	down     *Query
}

var _ Adapter[domain.HierarchyNode] = (*UpwardHierarchy)(nil)

// NewUpwardHierarchy validates cfg and unrolls the fold queries to the
// configured depth.
func NewUpwardHierarchy(cfg UpwardConfig) (*UpwardHierarchy, error) {
	if cfg.Edge == "" {
		cfg.Edge = domain.EdgeExtends
	}
	if cfg.MaxDepth <= 0 {
		return nil, domain.Wiringf(cfg.Name, "max hierarchy depth must be positive, got %d", cfg.MaxDepth)
	}
	if len(cfg.Root.desc.Labels) == 0 {
		return nil, domain.Wiringf(cfg.Name, "upward hierarchy needs a root level")
	}
	levels := append(append([]Variant[domain.HierarchyNode](nil), cfg.Members...), cfg.Root)
	labels := make(map[string]string, len(levels))
	types := make(map[reflect.Type]string, len(levels))
	for _, lv := range levels {
		if other, dup := labels[lv.Label()]; dup {
			return nil, domain.Wiringf(cfg.Name, "label %s claimed by %s and %s", lv.Label(), other, lv.desc.Name)
		}
		if other, dup := types[lv.desc.Type]; dup {
			return nil, domain.Wiringf(cfg.Name, "type %s claimed by %s and %s", lv.desc.Type, other, lv.desc.Name)
		}
		labels[lv.Label()] = lv.desc.Name
		types[lv.desc.Type] = lv.desc.Name
	}
	if cfg.Direction != graph.Out && cfg.Direction != graph.In {
		return nil, domain.Wiringf(cfg.Name, "unknown edge direction %d", cfg.Direction)
	}
	h := &UpwardHierarchy{cfg: cfg, levels: levels}
	h.toParent = Step{Direction: cfg.Direction, Edge: cfg.Edge}
	h.toChild = h.toParent.Reverse()
	h.up = unroll(levels, h.toParent, branchParent, cfg.MaxDepth)
	h.down = unroll(levels, h.toChild, branchChild, cfg.MaxDepth)
	return h, nil
}

// unroll builds a query following step at most depth times. Each level is a
// fresh set of label cases whose branch points at the level above it, so
// the result is finite however the data is shaped.
func unroll(levels []Variant[domain.HierarchyNode], step Step, branch string, depth int) *Query {
	var next *Query
	for i := 0; i <= depth; i++ {
		q := &Query{Cases: make([]Case, 0, len(levels))}
		for _, lv := range levels {
			lq := lv.fold.Query
			if next != nil {
				lq = lq.With(Branch{Name: branch, Step: step, Query: next})
			}
			q.Cases = append(q.Cases, Case{Label: lv.Label(), Query: lq})
		}
		next = q
	}
	return next
}

// Edge returns the label of the edge joining adjacent levels.
func (h *UpwardHierarchy) Edge() string { return h.cfg.Edge }

// ParentStep returns the step from a child level to its parent.
func (h *UpwardHierarchy) ParentStep() Step { return h.toParent }

// MaxDepth returns the hop bound.
func (h *UpwardHierarchy) MaxDepth() int { return h.cfg.MaxDepth }

// Labels returns level labels, most derived first.
func (h *UpwardHierarchy) Labels() []string {
	out := make([]string, 0, len(h.levels))
	for _, lv := range h.levels {
		out = append(out, lv.Label())
	}
	return out
}

// Fold resolves the vertex and up to MaxDepth ancestors and returns the
// vertex's own level with parents linked.
func (h *UpwardHierarchy) Fold() Projection[domain.HierarchyNode] {
	return Projection[domain.HierarchyNode]{Query: h.up, Map: func(b *Bag) (domain.HierarchyNode, error) {
		nodes, err := h.chain(b, branchParent)
		if err != nil {
			return nil, err
		}
		for i := 0; i+1 < len(nodes); i++ {
			domain.Link(nodes[i+1], nodes[i])
		}
		return nodes[0], nil
	}}
}

// FoldDown resolves a top-level vertex and up to MaxDepth descendants and
// returns the most derived level.
func (h *UpwardHierarchy) FoldDown() Projection[domain.HierarchyNode] {
	return Projection[domain.HierarchyNode]{Query: h.down, Map: func(b *Bag) (domain.HierarchyNode, error) {
		nodes, err := h.chain(b, branchChild)
		if err != nil {
			return nil, err
		}
		for i := 0; i+1 < len(nodes); i++ {
			domain.Link(nodes[i], nodes[i+1])
		}
		return nodes[len(nodes)-1], nil
	}}
}

// chain maps the bags along branch. The walk is cut at MaxDepth hops and at
// the first vertex seen twice.
func (h *UpwardHierarchy) chain(b *Bag, branch string) ([]domain.HierarchyNode, error) {
	seen := make(map[graph.ID]struct{})
	var nodes []domain.HierarchyNode
	for cur, hops := b, 0; cur != nil && hops <= h.cfg.MaxDepth; hops++ {
		if _, loop := seen[cur.ID]; loop {
			break
		}
		seen[cur.ID] = struct{}{}
		lv, ok := variantByLabel(h.levels, cur.Label)
		if !ok {
			break
		}
		node, err := lv.fold.Map(cur)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
		cur = cur.One(branch)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s matched no level for %s", domain.ErrStructuralMismatch, h.cfg.Name, b.Label)
	}
	return nodes, nil
}

// Unfold writes every level from the root down, each level coalesced below
// its parent, and returns the plan anchored at the root.
func (h *UpwardHierarchy) Unfold(node domain.HierarchyNode) (*Plan, error) {
	if node == nil {
		return nil, fmt.Errorf("%w: nil %s", domain.ErrInvalid, h.cfg.Name)
	}
	var chain []domain.HierarchyNode
	for n := node; n != nil; n = n.HierarchyParent() {
		if len(chain) > h.cfg.MaxDepth {
			return nil, domain.StructuralMismatchf(node, "%s chain is deeper than %d levels", h.cfg.Name, h.cfg.MaxDepth)
		}
		chain = append(chain, n)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	if !h.cfg.Root.accepts(chain[0]) {
		return nil, domain.StructuralMismatchf(chain[0], "%s chain must start at %s", h.cfg.Name, h.cfg.Root.desc.Type)
	}
	rootPlan, err := h.cfg.Root.unfold(chain[0])
	if err != nil {
		return nil, err
	}
	id := chain[0].Identity().UUID
	prev := rootPlan
	for _, n := range chain[1:] {
		lv, err := selectVariant(h.cfg.Name, h.cfg.Members, n)
		if err != nil {
			return nil, err
		}
		base := n.Identity()
		if base.UUID == "" {
			base.UUID = id
		} else if base.UUID != id {
			return nil, domain.StructuralMismatchf(n, "level uuid %s differs from root uuid %s", base.UUID, id)
		}
		p, err := lv.unfold(n)
		if err != nil {
			return nil, err
		}
		prev.Link(h.toChild, Coalesce, p)
		prev = p
	}
	return rootPlan, nil
}

// Cascade implements Adapter.
func (h *UpwardHierarchy) Cascade(r graph.Reader, id graph.ID) (*CascadeSet, error) {
	return runCascade(r, id, h.cascadeInto)
}

// cascadeInto deletes the whole entity: it climbs to the top level, then
// records that level and every level below it, each through its own adapter.
func (h *UpwardHierarchy) cascadeInto(r graph.Reader, id graph.ID, set *CascadeSet) error {
	top := id
	climbed := map[graph.ID]struct{}{id: {}}
	for hops := 0; hops < h.cfg.MaxDepth; hops++ {
		up := graph.Edges(r, top, h.toParent.Direction, h.cfg.Edge)
		if len(up) == 0 {
			break
		}
		parent := up[0].Target(h.toParent.Direction)
		if _, loop := climbed[parent]; loop {
			break
		}
		climbed[parent] = struct{}{}
		top = parent
	}
	frontier := []graph.ID{top}
	for hops := 0; hops <= h.cfg.MaxDepth && len(frontier) > 0; hops++ {
		var next []graph.ID
		for _, cur := range frontier {
			if set.Contains(cur) {
				continue
			}
			v, ok := r.Vertex(cur)
			if !ok {
				continue
			}
			if lv, ok := variantByLabel(h.levels, v.Label); ok {
				if err := lv.cascade(r, cur, set); err != nil {
					return err
				}
			} else {
				set.Add(cur)
			}
			for _, e := range graph.Edges(r, cur, h.toChild.Direction, h.cfg.Edge) {
				next = append(next, e.Target(h.toChild.Direction))
			}
		}
		frontier = next
	}
	return nil
}

// Locate returns the most derived level vertex carrying uuid.
func (h *UpwardHierarchy) Locate(r graph.Reader, uuid string) (graph.Vertex, bool) {
	for _, lv := range h.levels {
		if v, ok := r.VertexByUUID(lv.Label(), uuid); ok {
			return v, true
		}
	}
	return graph.Vertex{}, false
}
