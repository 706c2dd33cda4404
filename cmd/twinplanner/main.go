// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command twinplanner runs the Plan stage of a digital-twin control loop.
//
// Usage:
//
//	twinplanner serve --config configs/twinplanner.yaml
//	twinplanner plan --config configs/twinplanner.yaml --snapshot zone.json
//	twinplanner version
//
// Example requests against a running server:
//
//	# Health and twin circuit breaker
//	curl http://localhost:8090/v1/health
//
//	# Plan one round for a posted snapshot
//	curl -X POST http://localhost:8090/v1/plan \
//	  -H "Content-Type: application/json" \
//	  -d @snapshot.json
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "twinplanner",
		Short: "Plan corrective actions for a digital twin zone",
		Long: `twinplanner evaluates a zone snapshot against its knowledge base,
simulates candidate action sequences on the twin and picks the best path.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML/JSON config file (env TWIN_* overrides)")

	root.AddCommand(
		newServeCmd(&configPath),
		newPlanCmd(&configPath),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "twinplanner %s\n", Version)
		},
	}
}
