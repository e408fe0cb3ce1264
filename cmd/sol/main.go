// Package main is the entry point for the sol CLI.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "sol: %v\n", err)
		os.Exit(1)
	}
}
