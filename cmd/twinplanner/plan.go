// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianTwin/services/planner/config"
	"github.com/AleutianAI/AleutianTwin/services/planner/model"
)

func newPlanCmd(configPath *string) *cobra.Command {
	var snapshotPath string
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Plan one round for a snapshot file and print the plan as JSON",
		Long: `plan reads a zone snapshot ({"properties": [...], "parameters": [...]})
from --snapshot, or stdin when the flag is "-", runs one planning round and
writes the plan to stdout. Nothing is executed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			snapshot, err := readSnapshot(snapshotPath, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return planOnce(cmd.Context(), cfg, snapshot, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVarP(&snapshotPath, "snapshot", "s", "", `Snapshot JSON file, or "-" for stdin`)
	_ = cmd.MarkFlagRequired("snapshot")
	return cmd
}

func readSnapshot(path string, stdin io.Reader) (*model.PropertyCache, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var cache model.PropertyCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return &cache, nil
}

// planOnce logs to stderr so stdout carries only the plan.
func planOnce(ctx context.Context, cfg config.Config, snapshot *model.PropertyCache, stdout, stderr io.Writer) error {
	logger, err := newLogger(cfg.Observability, stderr)
	if err != nil {
		return err
	}
	defer logger.Close()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	plan, err := a.planner.Plan(ctx, snapshot)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(plan)
}
