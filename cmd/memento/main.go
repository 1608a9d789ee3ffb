// Package main provides the entry point for the memento CLI.
package main

import (
	"os"

	"github.com/bgconley/memento/cmd/memento/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
