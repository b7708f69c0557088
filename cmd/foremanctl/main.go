// Package main is the entry point for the foremanctl binary, the operator
// CLI for a running foreman daemon.
package main

import (
	"fmt"
	"os"

	"github.com/foremanhq/foreman/internal/cli"
)

// Version is set via ldflags during build.
var Version = "dev"

func main() {
	root := cli.NewRootCmd(Version)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.ExitCode(err))
	}
}
