package lattice

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/polypheny/Polypheny-DB-sub058/internal/domain"
	"github.com/polypheny/Polypheny-DB-sub058/internal/schema"
)

type fakeTableStats map[string]float64

func (f fakeTableStats) TableCardinality(_ context.Context, qualifiedName []string) (float64, error) {
	n, ok := f[strings.Join(qualifiedName, ".")]
	if !ok {
		return 0, domain.ErrNotFound("no statistics for %s", strings.Join(qualifiedName, "."))
	}
	return n, nil
}

type constProvider float64

func (c constProvider) Cardinality(context.Context, []Column) (float64, error) {
	return float64(c), nil
}

func constFactory(v float64) StatisticProviderFactory {
	return func(*Lattice) StatisticProvider { return constProvider(v) }
}

// salesCatalog returns a catalog with sales.F(f1,f2,f3), sales.D(d1,d2) and
// sales.E(e1,e2).
func salesCatalog() (*schema.Schema, *schema.Table, *schema.Table, *schema.Table) {
	root := schema.NewRoot()
	sales := root.AddSubSchema("sales")
	f := sales.AddTable("F", schema.Column{Name: "f1"}, schema.Column{Name: "f2"}, schema.Column{Name: "f3"})
	d := sales.AddTable("D", schema.Column{Name: "d1"}, schema.Column{Name: "d2"})
	e := sales.AddTable("E", schema.Column{Name: "e1"}, schema.Column{Name: "e2"})
	return root, f.Table, d.Table, e.Table
}

func newTestSpace(t *testing.T) *Space {
	t.Helper()
	space, err := NewSpace(fakeTableStats{"sales.F": 1000, "sales.D": 10, "sales.E": 50}, nil)
	require.NoError(t, err)
	return space
}
