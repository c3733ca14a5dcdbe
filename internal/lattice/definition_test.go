package lattice

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polypheny/Polypheny-DB-sub058/internal/domain"
)

const salesDefinition = `
name: sales
row_count_estimate: 500
root:
  table: sales.F
  children:
    - table: sales.D
      on: [{parent: f2, child: d1}]
    - table: sales.E
      alias: region
      on: [{parent: f3, child: e1}]
measures:
  - {agg: sum, args: [F.f3]}
  - {agg: count}
tiles:
  - dimensions: [D.d2]
    measures: [{agg: count}]
`

func TestLoadDefinitionAndBuild(t *testing.T) {
	def, err := LoadDefinition(strings.NewReader(salesDefinition))
	require.NoError(t, err)
	assert.Equal(t, "sales", def.Name)
	require.Len(t, def.Root.Children, 2)

	space := newTestSpace(t)
	catalog, _, _, _ := salesCatalog()
	l, err := def.Build(space, catalog, constFactory(3))
	require.NoError(t, err)

	assert.Equal(t, "F (D:f2 E:f3)", l.Digest())
	assert.Equal(t, "region", l.Root().Node(2).Alias())
	assert.Len(t, l.DefaultMeasures(), 2)
	require.Len(t, l.Tiles(), 1)
	assert.Equal(t, []int{4}, Ordinals(l.Tiles()[0].BitSet()))

	n, err := l.FactRowCount(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 500.0, n)
}

func TestLoadDefinition_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "no root", yaml: "name: x\n"},
		{name: "unknown field", yaml: "name: x\nroot: {table: sales.F}\nbogus: 1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadDefinition(strings.NewReader(tt.yaml))
			require.Error(t, err)
		})
	}
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr any
	}{
		{
			name:    "unknown table",
			yaml:    "root: {table: sales.Nope}\n",
			wantErr: &domain.NotFoundError{},
		},
		{
			name:    "unknown join column",
			yaml:    "root:\n  table: sales.F\n  children:\n    - table: sales.D\n      on: [{parent: zz, child: d1}]\n",
			wantErr: &domain.NotFoundError{},
		},
		{
			name:    "join without keys",
			yaml:    "root:\n  table: sales.F\n  children:\n    - table: sales.D\n",
			wantErr: &domain.ValidationError{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, err := LoadDefinition(strings.NewReader(tt.yaml))
			require.NoError(t, err)
			catalog, _, _, _ := salesCatalog()
			_, err = def.Build(newTestSpace(t), catalog, constFactory(1))
			require.Error(t, err)
			switch want := tt.wantErr.(type) {
			case *domain.NotFoundError:
				require.ErrorAs(t, err, &want)
			case *domain.ValidationError:
				require.ErrorAs(t, err, &want)
			}
		})
	}
}

func TestParseColumnRef(t *testing.T) {
	assert.Equal(t, ColumnRef{Table: "F", Column: "f1"}, ParseColumnRef("F.f1"))
	assert.Equal(t, ColumnRef{Column: "f1"}, ParseColumnRef(" f1 "))
}

func TestParseMeasureRef(t *testing.T) {
	tests := []struct {
		in   string
		want MeasureRef
	}{
		{"count", MeasureRef{Agg: "count"}},
		{"COUNT(*)", MeasureRef{Agg: "count"}},
		{"count()", MeasureRef{Agg: "count"}},
		{"sum(F.f3)", MeasureRef{Agg: "sum", Args: []ColumnRef{{Table: "F", Column: "f3"}}}},
		{" max( f1 , D.d2 ) ", MeasureRef{Agg: "max", Args: []ColumnRef{{Column: "f1"}, {Table: "D", Column: "d2"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMeasureRef(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "sum(f1", "(f1)", "sum(f1,)", "F.f1"} {
		_, err := ParseMeasureRef(bad)
		var ve *domain.ValidationError
		assert.ErrorAs(t, err, &ve, bad)
	}
}

func TestParseMeasureRef_RejectsUnknownAggregates(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"statement injection", "1 from sales; drop table product; select sum(sales.units)"},
		{"bare injection", "count;drop"},
		{"comment", "sum/**/(f1)"},
		{"quoted", `"sum"(f1)`},
		{"unknown function", "stddev(f1)"},
		{"bare unknown", "median"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMeasureRef(tt.in)
			var ve *domain.ValidationError
			require.ErrorAs(t, err, &ve)
		})
	}
}
