// Command auto-codex drives an external LLM executor through a
// dependency-ordered task plan against a git-versioned working copy.
package main

import (
	"os"

	"github.com/harrison/auto-codex/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
