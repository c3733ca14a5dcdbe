package lattice

import "slices"

type edgeEnds struct {
	source *Table
	target *Table
}

// graph is a directed multigraph over tables whose edges carry key lists.
// Several edges may join the same ordered pair of tables as long as their
// keys differ.
type graph struct {
	vertices []*Table
	edges    map[edgeEnds][]*Step
	edgeList []*Step
}

func newGraph() *graph {
	return &graph{edges: make(map[edgeEnds][]*Step)}
}

func (g *graph) addVertex(t *Table) {
	g.vertices = append(g.vertices, t)
}

// addEdge inserts an edge and returns it, or returns nil when an edge with
// the same endpoints and keys is already present.
func (g *graph) addEdge(source, target *Table, keys []IntPair) *Step {
	ends := edgeEnds{source: source, target: target}
	for _, e := range g.edges[ends] {
		if slices.Equal(e.keys, keys) {
			return nil
		}
	}
	step := newStep(len(g.edgeList), source, target, keys)
	g.edges[ends] = append(g.edges[ends], step)
	g.edgeList = append(g.edgeList, step)
	return step
}

// edgesBetween returns every edge from source to target.
func (g *graph) edgesBetween(source, target *Table) []*Step {
	return g.edges[edgeEnds{source: source, target: target}]
}
