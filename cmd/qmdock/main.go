// Command qmdock scores and refines candidate molecules from the shell.
package main

import (
	"github.com/copyleftdev/qmdock/internal/interfaces/cli"
)

// Build-time variables injected via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func init() {
	cli.Version = version
	cli.GitCommit = commit
	cli.BuildDate = buildDate
}

func main() {
	cli.Main()
}
