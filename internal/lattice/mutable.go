package lattice

import (
	"strconv"

	"github.com/polypheny/Polypheny-DB-sub058/internal/schema"
)

// MutableNode is the build-time description of one table occurrence in a
// lattice tree. A tree of MutableNodes is assembled first and then frozen
// into a RootNode; the description is not referenced afterwards.
type MutableNode struct {
	Table    *Table
	Step     *Step // edge from the parent's table; nil for the root
	StartCol int
	EndCol   int
	Alias    string
	Children []*MutableNode
}

// NewMutableNode registers t in space and returns a root description for it.
func NewMutableNode(space *Space, t *schema.Table) *MutableNode {
	return &MutableNode{Table: space.Register(t)}
}

// AddChild registers t, interns the edge from m's table to t over keys, and
// appends a child description joined through that edge. Key sources are
// ordinals in m's table; key targets are ordinals in t.
func (m *MutableNode) AddChild(space *Space, t *schema.Table, keys []IntPair) *MutableNode {
	table := space.Register(t)
	child := &MutableNode{
		Table: table,
		Step:  space.AddEdge(m.Table, table, keys),
	}
	m.Children = append(m.Children, child)
	return child
}

// AssignColumns lays the tree's columns out in pre-order, giving every node
// the column range of its table's fields, and gives nodes without an alias a
// unique alias derived from the table's simple name.
func (m *MutableNode) AssignColumns(space *Space) {
	used := make(map[string]struct{})
	m.Walk(func(n *MutableNode) {
		if n.Alias != "" {
			used[n.Alias] = struct{}{}
		}
	})
	offset := 0
	m.Walk(func(n *MutableNode) {
		n.StartCol = offset
		n.EndCol = offset + n.Table.FieldCount()
		offset = n.EndCol
		if n.Alias == "" {
			n.Alias = uniquify(space.SimpleName(n.Table), used)
		}
	})
}

// Walk visits m and its descendants in pre-order.
func (m *MutableNode) Walk(fn func(*MutableNode)) {
	fn(m)
	for _, c := range m.Children {
		c.Walk(fn)
	}
}

// uniquify returns name, or name followed by the smallest integer suffix that
// is not yet used, and records the result as used.
func uniquify(name string, used map[string]struct{}) string {
	candidate := name
	for i := 0; ; i++ {
		if _, ok := used[candidate]; !ok {
			used[candidate] = struct{}{}
			return candidate
		}
		candidate = name + strconv.Itoa(i)
	}
}
