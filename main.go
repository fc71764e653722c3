// Package main is the entry point for the twinport switch data plane.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/twinport/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
