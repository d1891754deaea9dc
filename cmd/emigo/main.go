// Package main provides the entry point for the emigo CLI.
package main

import (
	"fmt"
	"os"

	"github.com/opencode-ai/emigo/cmd/emigo/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
