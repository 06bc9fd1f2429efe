// ./main.go
package main

import (
	"github.com/glaciousm/intent-healer-sub001/cmd"
)

// main is the entry point for the Intent Healer CLI.
func main() {
	// Execute the root command defined in the cmd package.
	// This handles all command-line parsing, configuration, and execution.
	cmd.Execute()
}
