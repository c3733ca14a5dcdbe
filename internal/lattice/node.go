package lattice

import (
	"strings"

	"github.com/cockroachdb/errors"
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/polypheny/Polypheny-DB-sub058/internal/domain"
)

// Node is one table's occurrence in a lattice tree. Nodes live in their
// RootNode's arena and refer to their parent and children by index.
type Node struct {
	index    int
	parent   int
	table    *Table
	startCol int
	endCol   int
	alias    string
	step     *Step
	children []int
	digest   string
}

// Index returns the node's position in the root's pre-order descendant list.
func (n *Node) Index() int { return n.index }

// ParentIndex returns the index of the parent node, or -1 for the root.
func (n *Node) ParentIndex() int { return n.parent }

// IsRoot reports whether n is the tree's root.
func (n *Node) IsRoot() bool { return n.parent < 0 }

// Table returns the table this node is an occurrence of.
func (n *Node) Table() *Table { return n.table }

// StartCol returns the first column of this node in the lattice's flattened
// row layout.
func (n *Node) StartCol() int { return n.startCol }

// EndCol returns one past the last column of this node.
func (n *Node) EndCol() int { return n.endCol }

// Alias returns the node's alias in generated SQL.
func (n *Node) Alias() string { return n.alias }

// Step returns the edge from the parent's table to this node's table, or nil
// for the root.
func (n *Node) Step() *Step { return n.step }

// Link returns the join keys to the parent, or nil for the root.
func (n *Node) Link() []IntPair {
	if n.step == nil {
		return nil
	}
	return n.step.Keys()
}

// ChildIndices returns the indices of the node's children in declaration
// order.
func (n *Node) ChildIndices() []int { return append([]int(nil), n.children...) }

// Digest returns the canonical string encoding of the subtree rooted at n.
// Trees with equal digests have the same shape, in any Space.
func (n *Node) Digest() string { return n.digest }

func (n *Node) String() string { return n.digest }

// RootNode is the frozen, immutable form of a lattice tree. It owns the node
// arena in pre-order and the interned root-to-node paths.
type RootNode struct {
	nodes   []Node
	paths   []*Path
	pathSet mapset.Set[*Path]
}

// NewRootNode freezes the description rooted at m. Column ranges must already
// be assigned (see MutableNode.AssignColumns).
func NewRootNode(space *Space, m *MutableNode) (*RootNode, error) {
	if space == nil {
		return nil, domain.ErrValidation("space is required")
	}
	if m == nil {
		return nil, domain.ErrValidation("root description is required")
	}
	if m.Step != nil {
		return nil, domain.ErrValidation("root node %s must not have a parent step", m.Table)
	}
	r := &RootNode{}
	if _, err := r.build(space, m, -1); err != nil {
		return nil, err
	}
	if err := r.IsValid(); err != nil {
		panic(errors.NewAssertionErrorWithWrappedErrf(err, "lattice tree is malformed"))
	}

	var steps []*Step
	r.createPathsRecurse(space, 0, &steps)
	if len(steps) != 0 {
		panic(errors.AssertionFailedf("step stack not empty after path walk: %d", len(steps)))
	}
	r.pathSet = mapset.NewThreadUnsafeSet(r.paths...)
	return r, nil
}

func (r *RootNode) build(space *Space, m *MutableNode, parent int) (int, error) {
	if m.Table == nil {
		return 0, domain.ErrValidation("lattice node requires a table")
	}
	if m.StartCol < 0 {
		return 0, domain.ErrValidation("node %s: startCol %d must be >= 0", m.Table, m.StartCol)
	}
	if m.EndCol <= m.StartCol {
		return 0, domain.ErrValidation("node %s: endCol %d must be > startCol %d", m.Table, m.EndCol, m.StartCol)
	}
	if parent >= 0 {
		if m.Step == nil {
			return 0, domain.ErrValidation("child node %s requires a step from its parent", m.Table)
		}
		if m.Step.Source() != r.nodes[parent].table || m.Step.Target() != m.Table {
			return 0, domain.ErrValidation("step %s does not join %s to %s", m.Step, r.nodes[parent].table, m.Table)
		}
		if err := CheckKeys(m.Step.Source(), m.Step.Target(), m.Step.keys); err != nil {
			return 0, err
		}
	}

	idx := len(r.nodes)
	r.nodes = append(r.nodes, Node{
		index:    idx,
		parent:   parent,
		table:    m.Table,
		startCol: m.StartCol,
		endCol:   m.EndCol,
		alias:    m.Alias,
		step:     m.Step,
	})

	var b strings.Builder
	b.WriteString(space.SimpleName(m.Table))
	if m.Step != nil {
		b.WriteByte(':')
		for i, k := range m.Step.keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(m.Step.Source().Field(k.Source).Name)
		}
	}

	children := make([]int, 0, len(m.Children))
	if len(m.Children) > 0 {
		b.WriteString(" (")
		for i, child := range m.Children {
			cidx, err := r.build(space, child, idx)
			if err != nil {
				return 0, err
			}
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(r.nodes[cidx].digest)
			children = append(children, cidx)
		}
		b.WriteByte(')')
	}

	r.nodes[idx].children = children
	r.nodes[idx].digest = b.String()
	return idx, nil
}

// createPathsRecurse interns the path to node i, then pushes the step to each
// child, recurses and pops.
func (r *RootNode) createPathsRecurse(space *Space, i int, steps *[]*Step) {
	r.paths = append(r.paths, space.AddPath(*steps))
	for _, c := range r.nodes[i].children {
		child := &r.nodes[c]
		*steps = append(*steps, space.AddEdge(r.nodes[i].table, child.table, child.step.keys))
		r.createPathsRecurse(space, c, steps)
		*steps = (*steps)[:len(*steps)-1]
	}
}

// Root returns the root node.
func (r *RootNode) Root() *Node { return &r.nodes[0] }

// Digest returns the root's digest, the structural key of the whole tree.
func (r *RootNode) Digest() string { return r.nodes[0].digest }

// Size returns the number of nodes in the tree.
func (r *RootNode) Size() int { return len(r.nodes) }

// Node returns the node at pre-order index i.
func (r *RootNode) Node(i int) *Node { return &r.nodes[i] }

// Descendants returns every node in pre-order, starting with the root.
func (r *RootNode) Descendants() []*Node {
	out := make([]*Node, len(r.nodes))
	for i := range r.nodes {
		out[i] = &r.nodes[i]
	}
	return out
}

// Parent returns n's parent, or false for the root.
func (r *RootNode) Parent(n *Node) (*Node, bool) {
	if n.parent < 0 {
		return nil, false
	}
	return &r.nodes[n.parent], true
}

// Children returns n's children in declaration order.
func (r *RootNode) Children(n *Node) []*Node {
	out := make([]*Node, len(n.children))
	for i, c := range n.children {
		out[i] = &r.nodes[c]
	}
	return out
}

// Paths returns the interned root-to-node paths, one per node, in pre-order.
func (r *RootNode) Paths() []*Path { return append([]*Path(nil), r.paths...) }

// Use appends node i and any of its ancestors missing from used, ancestors
// first, and returns the extended list.
func (r *RootNode) Use(used []int, i int) []int {
	for _, u := range used {
		if u == i {
			return used
		}
	}
	if p := r.nodes[i].parent; p >= 0 {
		used = r.Use(used, p)
	}
	return append(used, i)
}

// IsValid checks the structural invariants of the descendant list: index 0
// is the root and every later node's parent occurs before it. It is a
// diagnostic; a tree that fails it was built incorrectly.
func (r *RootNode) IsValid() error {
	for i := range r.nodes {
		n := &r.nodes[i]
		if n.index != i {
			return errors.Newf("node %d records index %d", i, n.index)
		}
		if i == 0 {
			if n.parent >= 0 {
				return errors.New("node 0 should be root")
			}
			continue
		}
		if n.parent < 0 {
			return errors.Newf("node %d should be a child", i)
		}
		if n.parent >= i {
			return errors.Newf("parent of node %d not in preceding list", i)
		}
	}
	return nil
}

// Contains reports whether every path of other is also a path of r.
func (r *RootNode) Contains(other *RootNode) bool {
	return r.pathSet.IsSuperset(other.pathSet)
}

// Contains reports whether lattice tree a covers lattice tree b.
func Contains(a, b *RootNode) bool { return a.Contains(b) }
