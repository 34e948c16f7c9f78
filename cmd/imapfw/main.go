package main

import (
	"os"

	"github.com/c4ffein/imapfw/cmd/imapfw/commands"
)

// Version information - set during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	// Failures are printed by the commands themselves; Execute only maps
	// them to the process exit code.
	os.Exit(commands.Execute())
}
