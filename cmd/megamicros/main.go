// ABOUTME: Entry point for the megamicros CLI
// ABOUTME: Delegates to the cobra command tree
package main

import (
	"os"

	"github.com/megamicros/megamicros-go/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
