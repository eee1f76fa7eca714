// Command spadctl runs detections and inspects models and datasets from the shell.
//
// Usage:
//
//	spadctl detect <file>...
//	spadctl models [--status production]
//	spadctl verify
//	spadctl dataset summary [--dir extracted_features] [--set All]
//
// Configuration comes from the same environment (and .env) as the API server.
package main

import (
	"fmt"
	"os"

	"spad-go/cmd/spadctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
