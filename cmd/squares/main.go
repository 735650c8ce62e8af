package main

import (
	"os"

	"github.com/jacentio/squares/cmd/squares/commands"
)

// Set during build.
var version = "dev"

func main() {
	// Errors are printed by the printer package.
	if err := commands.Execute(version); err != nil {
		os.Exit(1)
	}
}
