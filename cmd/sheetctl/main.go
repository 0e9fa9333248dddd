// Package main is the entry point for sheetctl, the Sheetsmith operator CLI.
package main

import (
	"os"

	"github.com/sheetsmith/sheetsmith/cmd/sheetctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
