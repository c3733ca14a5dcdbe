package lattice

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/polypheny/Polypheny-DB-sub058/internal/domain"
	"github.com/polypheny/Polypheny-DB-sub058/internal/schema"
)

// Definition is the file form of a lattice:
//
//	name: sales
//	row_count_estimate: 1000
//	root:
//	  table: main.fact
//	  children:
//	    - table: main.dim
//	      on: [{parent: f2, child: d1}]
//	measures:
//	  - {agg: sum, args: [fact.f3]}
//	tiles:
//	  - dimensions: [dim.d2]
//	    measures: [{agg: count}]
type Definition struct {
	Name             string              `yaml:"name"`
	RowCountEstimate float64             `yaml:"row_count_estimate,omitempty"`
	Root             NodeDefinition      `yaml:"root"`
	Measures         []MeasureDefinition `yaml:"measures,omitempty"`
	Tiles            []TileDefinition    `yaml:"tiles,omitempty"`
}

// NodeDefinition describes one table of the tree and how it joins its parent.
type NodeDefinition struct {
	Table    string              `yaml:"table"`
	Alias    string              `yaml:"alias,omitempty"`
	On       []JoinKeyDefinition `yaml:"on,omitempty"`
	Children []NodeDefinition    `yaml:"children,omitempty"`
}

// JoinKeyDefinition pairs a parent column with a child column by name.
type JoinKeyDefinition struct {
	Parent string `yaml:"parent"`
	Child  string `yaml:"child"`
}

// MeasureDefinition names an aggregate and its argument columns.
type MeasureDefinition struct {
	Agg  string   `yaml:"agg"`
	Args []string `yaml:"args,omitempty"`
}

// TileDefinition declares a tile by dimension columns and measures.
type TileDefinition struct {
	Dimensions []string            `yaml:"dimensions,omitempty"`
	Measures   []MeasureDefinition `yaml:"measures,omitempty"`
}

// LoadDefinition decodes a YAML lattice definition. Unknown fields are
// rejected.
func LoadDefinition(r io.Reader) (*Definition, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var d Definition
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("decode lattice definition: %w", err)
	}
	if d.Root.Table == "" {
		return nil, domain.ErrValidation("lattice definition %q has no root table", d.Name)
	}
	return &d, nil
}

// Build resolves the definition's tables in catalog and builds the lattice in
// space.
func (d *Definition) Build(space *Space, catalog *schema.Schema, factory StatisticProviderFactory) (*Lattice, error) {
	entry, err := catalog.Resolve(strings.Split(d.Root.Table, "."))
	if err != nil {
		return nil, err
	}
	root := NewMutableNode(space, entry.Table)
	root.Alias = d.Root.Alias
	if err := addChildren(space, catalog, root, entry.Table, d.Root.Children); err != nil {
		return nil, err
	}

	opts := Options{RowCountEstimate: d.RowCountEstimate, StatisticProvider: factory}
	for _, m := range d.Measures {
		opts.DefaultMeasures = append(opts.DefaultMeasures, m.ref())
	}
	for _, t := range d.Tiles {
		ref := TileRef{}
		for _, dim := range t.Dimensions {
			ref.Dimensions = append(ref.Dimensions, ParseColumnRef(dim))
		}
		for _, m := range t.Measures {
			ref.Measures = append(ref.Measures, m.ref())
		}
		opts.Tiles = append(opts.Tiles, ref)
	}
	return New(space, root, opts)
}

func addChildren(space *Space, catalog *schema.Schema, parent *MutableNode, parentTable *schema.Table, defs []NodeDefinition) error {
	for _, def := range defs {
		entry, err := catalog.Resolve(strings.Split(def.Table, "."))
		if err != nil {
			return err
		}
		if len(def.On) == 0 {
			return domain.ErrValidation("join from %s to %s has no keys", parentTable, entry.Table)
		}
		keys := make([]IntPair, 0, len(def.On))
		for _, on := range def.On {
			src := parentTable.ColumnIndex(on.Parent)
			if src < 0 {
				return domain.ErrNotFound("column %q not found in %s", on.Parent, parentTable)
			}
			tgt := entry.Table.ColumnIndex(on.Child)
			if tgt < 0 {
				return domain.ErrNotFound("column %q not found in %s", on.Child, entry.Table)
			}
			keys = append(keys, IntPair{Source: src, Target: tgt})
		}
		child := parent.AddChild(space, entry.Table, keys)
		child.Alias = def.Alias
		if err := addChildren(space, catalog, child, entry.Table, def.Children); err != nil {
			return err
		}
	}
	return nil
}

func (m MeasureDefinition) ref() MeasureRef {
	ref := MeasureRef{Agg: m.Agg}
	for _, a := range m.Args {
		ref.Args = append(ref.Args, ParseColumnRef(a))
	}
	return ref
}

// ParseColumnRef parses "alias.column" or a bare "column".
func ParseColumnRef(s string) ColumnRef {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "."); i >= 0 {
		return ColumnRef{Table: s[:i], Column: s[i+1:]}
	}
	return ColumnRef{Column: s}
}

// ParseMeasureRef parses "agg(col, ...)", "agg()" or a bare "agg" (no
// arguments), as written on a command line.
func ParseMeasureRef(s string) (MeasureRef, error) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '(')
	if open < 0 {
		if s == "" || strings.ContainsAny(s, ")., ") {
			return MeasureRef{}, domain.ErrValidation("malformed measure %q", s)
		}
		if err := ValidateAggregate(s); err != nil {
			return MeasureRef{}, err
		}
		return MeasureRef{Agg: strings.ToLower(s)}, nil
	}
	if !strings.HasSuffix(s, ")") || open == 0 {
		return MeasureRef{}, domain.ErrValidation("malformed measure %q", s)
	}
	ref := MeasureRef{Agg: strings.ToLower(strings.TrimSpace(s[:open]))}
	if err := ValidateAggregate(ref.Agg); err != nil {
		return MeasureRef{}, err
	}
	inner := strings.TrimSpace(s[open+1 : len(s)-1])
	if inner == "" || inner == "*" {
		return ref, nil
	}
	for _, a := range strings.Split(inner, ",") {
		if strings.TrimSpace(a) == "" {
			return MeasureRef{}, domain.ErrValidation("malformed measure %q", s)
		}
		ref.Args = append(ref.Args, ParseColumnRef(a))
	}
	return ref, nil
}
