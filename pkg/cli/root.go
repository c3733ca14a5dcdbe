// Package cli implements latticectl, a command-line front end that loads a
// lattice definition over a DuckDB or SQLite database and exercises its
// statistics and tile materialization.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/polypheny/Polypheny-DB-sub058/internal/domain"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		output, _ := rootCmd.PersistentFlags().GetString("output")
		if output == "json" {
			errObj := map[string]any{"error": err.Error()}
			var ve *domain.ValidationError
			var nf *domain.NotFoundError
			switch {
			case errors.As(err, &ve):
				errObj["code"] = "validation"
			case errors.As(err, &nf):
				errObj["code"] = "not_found"
			}
			_ = json.NewEncoder(os.Stdout).Encode(errObj)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	driver      string
	dsn         string
	envFile     string
	logLevel    string
	output      string
	lattice     string
	initScript  string
	demo        bool
	showMetrics bool
}

func newRootCmd() *cobra.Command {
	f := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "latticectl",
		Short: "Inspect lattices and their tiles",
		Long: "Command-line interface that builds a lattice from a YAML definition over a DuckDB or\n" +
			"SQLite database, estimates column cardinalities and materializes tiles.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return validateOutputFormat(f.output)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&f.driver, "driver", "", "Database driver: duckdb or sqlite3 (env LATTICE_DB_DRIVER)")
	pf.StringVar(&f.dsn, "dsn", "", "Database DSN; empty opens an in-memory database (env LATTICE_DB_DSN)")
	pf.StringVar(&f.envFile, "env-file", ".env", "File of KEY=VALUE defaults for the environment")
	pf.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error (env LOG_LEVEL)")
	pf.StringVarP(&f.output, "output", "o", "table", "Output format (table, json)")
	pf.StringVarP(&f.lattice, "lattice", "l", "", "Lattice definition file (YAML)")
	pf.StringVar(&f.initScript, "init", "", "SQL script to run before loading the catalog")
	pf.BoolVar(&f.demo, "demo", false, "Seed a demo star schema and use its lattice when --lattice is not set")
	pf.BoolVar(&f.showMetrics, "metrics", false, "Print statistics and materialization counters to stderr")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newDescribeCmd(f))
	rootCmd.AddCommand(newPathsCmd(f))
	rootCmd.AddCommand(newCardinalityCmd(f))
	rootCmd.AddCommand(newTilesCmd(f))
	rootCmd.AddCommand(newServeCmd(f))

	return rootCmd
}
