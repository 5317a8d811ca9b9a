// Package main is the entry point for the climalert CLI tool.
package main

import (
	"os"

	"github.com/good-yellow-bee/climalert/cmd/climactl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
