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
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianTwin/services/planner/model"
	"github.com/AleutianAI/AleutianTwin/services/planner/twin"
)

const testKnowledge = `
conditions:
  - name: comfort
    property: temperature
    expression: value >= 20 && value <= 24
optimal_conditions:
  - name: ideal
    property: temperature
    expression: value >= 21 && value <= 22
actuators:
  - name: heater
    states: ["on", "off"]
    effects:
      - {property: temperature, when: "on", effect: increase}
  - name: cooler
    states: ["on", "off"]
    effects:
      - {property: temperature, when: "on", effect: decrease}
`

// writeFixtures lays out a config, a knowledge base and a snapshot at
// temperature in a temp dir and returns the config and snapshot paths.
func writeFixtures(t *testing.T, temperature float64, backend string) (string, string) {
	t.Helper()
	dir := t.TempDir()

	knowledgePath := filepath.Join(dir, "knowledge.yaml")
	require.NoError(t, os.WriteFile(knowledgePath, []byte(testKnowledge), 0o644))

	cfg := strings.Join([]string{
		"planner:",
		"  lookahead_cycles: 2",
		"casebase:",
		"  backend: " + backend,
		"  path: " + filepath.Join(dir, "cases"),
		"knowledge:",
		"  path: " + knowledgePath,
		"observability:",
		"  log_level: error",
	}, "\n")
	configPath := filepath.Join(dir, "twinplanner.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(cfg), 0o644))

	snapshot, err := json.Marshal(twin.InitialSnapshot(temperature))
	require.NoError(t, err)
	snapshotPath := filepath.Join(dir, "snapshot.json")
	require.NoError(t, os.WriteFile(snapshotPath, snapshot, 0o644))

	return configPath, snapshotPath
}

type planOutput struct {
	FirstActions []model.Action `json:"first_actions"`
	Reason       string         `json:"reason"`
	Strategy     string         `json:"strategy"`
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.Execute()
	return stdout.String(), err
}

func TestPlanCommand_ColdZoneTurnsHeaterOn(t *testing.T) {
	for _, backend := range []string{"none", "memory", "sqlite", "badger"} {
		t.Run(backend, func(t *testing.T) {
			configPath, snapshotPath := writeFixtures(t, 17, backend)

			out, err := runCLI(t, "plan", "--config", configPath, "--snapshot", snapshotPath)
			require.NoError(t, err)

			var plan planOutput
			require.NoError(t, json.Unmarshal([]byte(out), &plan), out)
			assert.Equal(t, "euclidean", plan.Strategy)
			require.Len(t, plan.FirstActions, 1)
			assert.Equal(t, "heater", plan.FirstActions[0].Target)
			assert.Equal(t, model.StringValue("on"), plan.FirstActions[0].Value)
		})
	}
}

func TestPlanCommand_ComfortableZoneDoesNothing(t *testing.T) {
	configPath, snapshotPath := writeFixtures(t, 22, "none")

	out, err := runCLI(t, "plan", "--config", configPath, "--snapshot", snapshotPath)
	require.NoError(t, err)

	var plan planOutput
	require.NoError(t, json.Unmarshal([]byte(out), &plan))
	assert.Empty(t, plan.FirstActions)
	assert.Equal(t, "all conditions satisfied", plan.Reason)
}

func TestPlanCommand_Errors(t *testing.T) {
	configPath, _ := writeFixtures(t, 17, "none")

	_, err := runCLI(t, "plan", "--config", configPath)
	assert.ErrorContains(t, err, "snapshot")

	_, err = runCLI(t, "plan", "--config", configPath, "--snapshot", filepath.Join(t.TempDir(), "absent.json"))
	assert.ErrorContains(t, err, "read snapshot")

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"properties": 3}`), 0o644))
	_, err = runCLI(t, "plan", "--config", configPath, "--snapshot", bad)
	assert.ErrorContains(t, err, "parse snapshot")
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "twinplanner dev\n", out)
}
