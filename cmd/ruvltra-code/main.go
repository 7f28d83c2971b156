// ============================================================================
// ruvltra-core - Main Entry Point
// ============================================================================
//
// File: cmd/ruvltra-code/main.go
// Function: Application entry point, version injection, and panic recovery,
// direct transform of the teacher's cmd/queue/main.go.
//
// ============================================================================

package main

import (
	"fmt"
	"os"

	"github.com/ChuLiYu/ruvltra-core/internal/cli"
)

var (
	version = "1.0.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "fatal error: %v\n", r)
			os.Exit(1)
		}
	}()

	rootCmd := cli.BuildCLI()
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
