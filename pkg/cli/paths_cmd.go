package cli

import (
	"context"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

type stepJSON struct {
	Source    string `json:"source"`
	Target    string `json:"target"`
	Keys      string `json:"keys"`
	Backwards bool   `json:"backwards"`
}

type pathJSON struct {
	ID    int        `json:"id"`
	Steps []stepJSON `json:"steps"`
}

func newPathsCmd(f *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "List the root-to-node join paths of a lattice",
		Long: "Lists one path per node of the lattice, from the fact table down to that node, with the\n" +
			"space-wide path id and whether each step runs from the one side to the many side.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, f, func(ctx context.Context, s *session) error {
				stats := s.app.Space.Statistics()
				var paths []pathJSON
				for _, p := range s.lattice.Root().Paths() {
					pj := pathJSON{ID: p.ID(), Steps: []stepJSON{}}
					for _, st := range p.Steps() {
						backwards, err := st.IsBackwards(ctx, stats)
						if err != nil {
							return err
						}
						pj.Steps = append(pj.Steps, stepJSON{
							Source:    st.Source().String(),
							Target:    st.Target().String(),
							Keys:      st.KeyString(),
							Backwards: backwards,
						})
					}
					paths = append(paths, pj)
				}

				if getOutputFormat(cmd) == "json" {
					return printJSON(cmd.OutOrStdout(), paths)
				}
				rows := make([][]string, 0, len(paths))
				for _, p := range paths {
					steps := make([]string, len(p.Steps))
					for i, st := range p.Steps {
						arrow := " -> "
						if st.Backwards {
							arrow = " <- "
						}
						steps[i] = st.Source + arrow + st.Target + " (" + strings.TrimSpace(st.Keys) + ")"
					}
					if len(steps) == 0 {
						steps = []string{"(root)"}
					}
					rows = append(rows, []string{strconv.Itoa(p.ID), strconv.Itoa(len(p.Steps)), strings.Join(steps, ", ")})
				}
				return printTable(cmd.OutOrStdout(), []string{"id", "length", "steps"}, rows)
			})
		},
	}
}
