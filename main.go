// ABOUTME: Entry point for the xam CLI
// ABOUTME: Command-line client for the marketplace REST API

package main

import (
	"fmt"
	"os"

	"github.com/markalston/xam-client/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
