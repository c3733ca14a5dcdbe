package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/polypheny/Polypheny-DB-sub058/internal/lattice"
	"github.com/polypheny/Polypheny-DB-sub058/internal/materialize"
)

type tileResultJSON struct {
	Request    bool     `json:"request"`
	Dimensions []string `json:"dimensions"`
	Measures   []string `json:"measures"`
	Match      string   `json:"match"`
	Table      string   `json:"table,omitempty"`
}

type tilesOptions struct {
	dimensions []string
	measures   []string
	schema     string
	name       string
	create     bool
	exact      bool
}

func newTilesCmd(f *globalFlags) *cobra.Command {
	o := &tilesOptions{}
	cmd := &cobra.Command{
		Use:   "tiles",
		Short: "Materialize declared tiles and look up a requested one",
		Long: "Builds every tile the lattice declares as a table in --schema. With --dimensions or\n" +
			"--measures it then asks for that tile, reporting whether it was answered exactly, by a\n" +
			"tile with more measures, by rolling up a finer tile, or (with --create) by a new tile.",
		Example: `  latticectl tiles --demo
  latticectl tiles --demo --dimensions product.category --measures 'sum(sales.units)'
  latticectl tiles --demo --dimensions store.region --measures count --exact --create`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, f, func(ctx context.Context, s *session) error {
				return runTiles(ctx, cmd, s, o)
			})
		},
	}
	cmd.Flags().StringSliceVar(&o.dimensions, "dimensions", nil, "Comma-separated dimension columns of the requested tile")
	cmd.Flags().StringSliceVar(&o.measures, "measures", nil, "Measures of the requested tile, such as count or sum(sales.units)")
	cmd.Flags().StringVar(&o.schema, "schema", "main", "Schema that receives backing tables")
	cmd.Flags().StringVar(&o.name, "name", "", "Suggested name for the requested tile's table")
	cmd.Flags().BoolVar(&o.create, "create", false, "Create the requested tile when no existing one answers it")
	cmd.Flags().BoolVar(&o.exact, "exact", false, "Do not answer the requested tile from a finer tile")
	return cmd
}

func runTiles(ctx context.Context, cmd *cobra.Command, s *session, o *tilesOptions) error {
	sch := s.app.MaterializationSchema(o.schema)
	svc := s.app.Materialize

	declared, err := svc.DefineLatticeTiles(ctx, s.lattice, sch)
	if err != nil {
		return err
	}
	var results []tileResultJSON
	for _, r := range declared {
		results = append(results, tileResult(s.lattice, r, false))
	}

	if len(o.dimensions) > 0 || len(o.measures) > 0 {
		dims, err := s.resolveColumns(o.dimensions)
		if err != nil {
			return err
		}
		measures, err := s.resolveMeasures(o.measures)
		if err != nil {
			return err
		}
		r, err := svc.DefineTile(ctx, materialize.TileRequest{
			Lattice:            s.lattice,
			Dimensions:         lattice.ColumnsToBitSet(dims),
			Measures:           measures,
			Schema:             sch,
			Create:             o.create,
			Exact:              o.exact,
			SuggestedTableName: o.name,
		})
		if err != nil {
			return err
		}
		results = append(results, tileResult(s.lattice, r, true))
	}

	if getOutputFormat(cmd) == "json" {
		return printJSON(cmd.OutOrStdout(), results)
	}
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		kind := "declared"
		if r.Request {
			kind = "request"
		}
		rows = append(rows, []string{kind, strings.Join(r.Dimensions, ", "), strings.Join(r.Measures, ", "), r.Match, r.Table})
	}
	return printTable(cmd.OutOrStdout(), []string{"kind", "dimensions", "measures", "match", "table"}, rows)
}

func tileResult(l *lattice.Lattice, r *materialize.TileResult, request bool) tileResultJSON {
	out := tileResultJSON{Request: request, Dimensions: []string{}, Measures: []string{}, Match: string(r.Match)}
	for _, o := range lattice.Ordinals(r.Tile.Dimensions()) {
		out.Dimensions = append(out.Dimensions, l.Column(o).String())
	}
	for _, m := range r.Tile.Measures() {
		out.Measures = append(out.Measures, m.String())
	}
	if r.Table != nil {
		out.Table = r.Table.Table.String()
	}
	return out
}
