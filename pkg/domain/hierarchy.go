package domain

// HierarchyNode is a level of a multi-level entity. Each level knows the
// level it extends (its parent) and the level extending it (its child). The
// set of node types is closed to this package.
type HierarchyNode interface {
	Entity
	HierarchyParent() HierarchyNode
	HierarchyChild() HierarchyNode
	links() *hierarchy
}

type hierarchy struct {
	parent HierarchyNode
	child  HierarchyNode
}

// HierarchyParent returns the level this node extends, or nil at the root.
func (h *hierarchy) HierarchyParent() HierarchyNode { return h.parent }

// HierarchyChild returns the level extending this node, or nil at the leaf.
func (h *hierarchy) HierarchyChild() HierarchyNode { return h.child }

func (h *hierarchy) links() *hierarchy { return h }

// Link makes parent and child point at each other. Either may be nil to
// detach the other side.
func Link(parent, child HierarchyNode) {
	if child != nil {
		child.links().parent = parent
	}
	if parent != nil {
		parent.links().child = child
	}
}

// Root walks parent links up to the top of the chain. A chain that loops is
// cut after limit steps.
func Root(node HierarchyNode, limit int) HierarchyNode {
	for i := 0; node != nil && i < limit; i++ {
		parent := node.HierarchyParent()
		if parent == nil {
			return node
		}
		node = parent
	}
	return node
}

// Leaf walks child links down to the most derived level.
func Leaf(node HierarchyNode, limit int) HierarchyNode {
	for i := 0; node != nil && i < limit; i++ {
		child := node.HierarchyChild()
		if child == nil {
			return node
		}
		node = child
	}
	return node
}

// ArtifactOf returns the Artifact level of node's chain, or nil.
func ArtifactOf(node HierarchyNode) *Artifact {
	for i := 0; node != nil && i < maxChainWalk; i++ {
		if a, ok := node.(*Artifact); ok {
			return a
		}
		node = node.HierarchyParent()
	}
	return nil
}

// maxChainWalk bounds walks over in-memory chains built by callers.
const maxChainWalk = 64
