package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/xlab/treeprint"

	"github.com/polypheny/Polypheny-DB-sub058/internal/lattice"
)

type nodeJSON struct {
	Alias    string   `json:"alias"`
	Table    string   `json:"table"`
	Parent   string   `json:"parent,omitempty"`
	JoinKeys []string `json:"join_keys,omitempty"`
	StartCol int      `json:"start_col"`
	EndCol   int      `json:"end_col"`
	Digest   string   `json:"digest"`
}

type columnJSON struct {
	Ordinal int    `json:"ordinal"`
	Table   string `json:"table"`
	Name    string `json:"name"`
	Alias   string `json:"alias"`
}

type tileJSON struct {
	Dimensions []string `json:"dimensions"`
	Measures   []string `json:"measures"`
}

type describeJSON struct {
	Digest   string       `json:"digest"`
	Nodes    []nodeJSON   `json:"nodes"`
	Columns  []columnJSON `json:"columns"`
	Measures []string     `json:"measures"`
	Tiles    []tileJSON   `json:"tiles"`
}

func newDescribeCmd(f *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "describe",
		Short: "Show a lattice's digest, join tree, columns and declared tiles",
		Example: `  latticectl describe --demo
  latticectl describe --lattice sales.yaml --dsn sales.duckdb -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, f, func(_ context.Context, s *session) error {
				d := describeLattice(s.lattice)
				if getOutputFormat(cmd) == "json" {
					return printJSON(cmd.OutOrStdout(), d)
				}
				w := cmd.OutOrStdout()
				_, _ = fmt.Fprintf(w, "Lattice: %s\n\n", d.Digest)
				_, _ = fmt.Fprint(w, joinTree(s.lattice.Root()).String())
				_, _ = fmt.Fprintln(w)

				rows := make([][]string, len(d.Columns))
				for i, c := range d.Columns {
					rows[i] = []string{strconv.Itoa(c.Ordinal), c.Table, c.Name, c.Alias}
				}
				if err := printTable(w, []string{"ordinal", "table", "column", "alias"}, rows); err != nil {
					return err
				}
				if len(d.Measures) > 0 {
					_, _ = fmt.Fprintf(w, "\nMeasures: %s\n", strings.Join(d.Measures, ", "))
				}
				if len(d.Tiles) > 0 {
					_, _ = fmt.Fprintln(w)
					rows = rows[:0]
					for _, t := range d.Tiles {
						rows = append(rows, []string{strings.Join(t.Dimensions, ", "), strings.Join(t.Measures, ", ")})
					}
					return printTable(w, []string{"dimensions", "measures"}, rows)
				}
				return nil
			})
		},
	}
}

func describeLattice(l *lattice.Lattice) describeJSON {
	root := l.Root()
	d := describeJSON{Digest: l.Digest()}
	for _, n := range root.Descendants() {
		nj := nodeJSON{
			Alias:    n.Alias(),
			Table:    n.Table().String(),
			StartCol: n.StartCol(),
			EndCol:   n.EndCol(),
			Digest:   n.Digest(),
		}
		if p, ok := root.Parent(n); ok {
			nj.Parent = p.Alias()
			nj.JoinKeys = joinKeys(p, n)
		}
		d.Nodes = append(d.Nodes, nj)
	}
	for _, c := range l.Columns() {
		d.Columns = append(d.Columns, columnJSON{Ordinal: c.Ordinal, Table: c.Table, Name: c.Name, Alias: c.Alias})
	}
	for _, m := range l.DefaultMeasures() {
		d.Measures = append(d.Measures, m.String())
	}
	for _, t := range l.Tiles() {
		tj := tileJSON{Dimensions: []string{}, Measures: []string{}}
		for _, c := range t.Dimensions {
			tj.Dimensions = append(tj.Dimensions, c.String())
		}
		for _, m := range t.Measures {
			tj.Measures = append(tj.Measures, m.String())
		}
		d.Tiles = append(d.Tiles, tj)
	}
	return d
}

// joinKeys renders the equi-join conditions from parent to child.
func joinKeys(parent, child *lattice.Node) []string {
	link := child.Link()
	keys := make([]string, len(link))
	for i, k := range link {
		keys[i] = parent.Alias() + "." + parent.Table().Field(k.Source).Name +
			" = " + child.Alias() + "." + child.Table().Field(k.Target).Name
	}
	return keys
}

func joinTree(root *lattice.RootNode) treeprint.Tree {
	label := func(n *lattice.Node) string {
		s := fmt.Sprintf("%s [%s] columns %d-%d", n.Alias(), n.Table(), n.StartCol(), n.EndCol()-1)
		if p, ok := root.Parent(n); ok {
			s += " ON " + strings.Join(joinKeys(p, n), " AND ")
		}
		return s
	}
	tree := treeprint.NewWithRoot(label(root.Root()))
	var add func(t treeprint.Tree, n *lattice.Node)
	add = func(t treeprint.Tree, n *lattice.Node) {
		for _, c := range root.Children(n) {
			add(t.AddBranch(label(c)), c)
		}
	}
	add(tree, root.Root())
	return tree
}
