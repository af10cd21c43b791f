// Package main is the entry point for the alertdb CLI.
package main

import (
	"os"

	"github.com/good-yellow-bee/alertdb/cmd/alertdb/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
