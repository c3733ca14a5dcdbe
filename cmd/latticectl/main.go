// Package main is the entry point for the latticectl binary.
package main

import (
	"os"

	cli "github.com/polypheny/Polypheny-DB-sub058/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
