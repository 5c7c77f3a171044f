// Command aether is a command line front end for an aether data directory.
package main

import (
	"fmt"
	"os"

	"github.com/hupe1980/aether/cmd/aether/commands"
)

// Version information (set by the release build).
var (
	version = "dev"
	commit  = "none"
)

func main() {
	commands.SetVersion(version, commit)

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
