package main

// Package main is the entry point for the copilot binary.
//
// Commands:
//   - serve     run the HTTP service (plus gRPC health when configured)
//   - diagnose  run the diagnosis pipeline in-process on local files
//   - metrics   print usage totals and recent records from the metrics store

import (
	"fmt"
	"os"

	"github.com/kubilitics/kubilitics-copilot/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
