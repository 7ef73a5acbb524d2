// Package main provides the entry point for the taxctx CLI.
package main

import (
	"os"

	"github.com/Bikash9609/ca-ai/cmd/taxctx/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
