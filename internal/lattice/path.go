package lattice

import (
	"slices"
	"strconv"
	"strings"
)

// Path is an interned sequence of steps from a lattice root to one of its
// nodes. The root's own path has no steps.
type Path struct {
	steps []*Step
	id    int
}

// ID returns the sequence number assigned when the path was first interned
// in its Space.
func (p *Path) ID() int { return p.id }

// Steps returns a copy of the path's steps.
func (p *Path) Steps() []*Step { return slices.Clone(p.steps) }

// Len returns the number of steps.
func (p *Path) Len() int { return len(p.steps) }

func (p *Path) String() string {
	parts := make([]string, len(p.steps))
	for i, s := range p.steps {
		parts[i] = s.String()
	}
	return "Path" + strconv.Itoa(p.id) + "[" + strings.Join(parts, ", ") + "]"
}

func pathKey(steps []*Step) string {
	var b strings.Builder
	for i, s := range steps {
		if i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(strconv.Itoa(s.id))
	}
	return b.String()
}
