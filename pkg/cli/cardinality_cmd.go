package cli

import (
	"context"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/polypheny/Polypheny-DB-sub058/internal/lattice"
)

type cardinalityJSON struct {
	Columns     []string `json:"columns"`
	Cardinality float64  `json:"cardinality"`
}

func newCardinalityCmd(f *globalFlags) *cobra.Command {
	var columns []string
	cmd := &cobra.Command{
		Use:   "cardinality",
		Short: "Estimate distinct value counts of lattice columns",
		Long: "With --columns, estimates the number of distinct combinations of the named columns.\n" +
			"Without it, estimates every column on its own. Columns are named alias.column, or by a\n" +
			"bare column name when it is unambiguous.",
		Example: `  latticectl cardinality --demo --columns product.category,store.region
  STATS_PROVIDER=cached-profile latticectl cardinality --demo`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, f, func(ctx context.Context, s *session) error {
				var groups [][]lattice.Column
				if len(columns) > 0 {
					cols, err := s.resolveColumns(columns)
					if err != nil {
						return err
					}
					groups = append(groups, cols)
				} else {
					for _, c := range s.lattice.Columns() {
						groups = append(groups, []lattice.Column{c})
					}
				}

				factRows, err := s.lattice.FactRowCount(ctx)
				if err != nil {
					return err
				}
				results := make([]cardinalityJSON, 0, len(groups))
				for _, g := range groups {
					n, err := s.lattice.Cardinality(ctx, g)
					if err != nil {
						return err
					}
					names := make([]string, len(g))
					for i, c := range g {
						names[i] = c.String()
					}
					results = append(results, cardinalityJSON{Columns: names, Cardinality: n})
				}

				if getOutputFormat(cmd) == "json" {
					return printJSON(cmd.OutOrStdout(), map[string]any{
						"fact_rows": factRows,
						"results":   results,
					})
				}
				rows := make([][]string, 0, len(results)+1)
				rows = append(rows, []string{"(fact rows)", formatCount(factRows)})
				for _, r := range results {
					rows = append(rows, []string{strings.Join(r.Columns, ", "), formatCount(r.Cardinality)})
				}
				return printTable(cmd.OutOrStdout(), []string{"columns", "cardinality"}, rows)
			})
		},
	}
	cmd.Flags().StringSliceVar(&columns, "columns", nil, "Comma-separated columns to estimate together")
	return cmd
}

func formatCount(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
