// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package record keeps an audit trail of planning rounds.
package record

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strconv"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/AleutianAI/AleutianTwin/services/planner/mapek"
	"github.com/AleutianAI/AleutianTwin/services/planner/model"
)

// Measurement is the InfluxDB measurement written per round.
const Measurement = "plan_round"

// LogRecorder writes one structured log line per round.
type LogRecorder struct {
	logger *slog.Logger
}

// NewLogRecorder returns a recorder over logger, or slog.Default().
func NewLogRecorder(logger *slog.Logger) *LogRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogRecorder{logger: logger}
}

// Record implements mapek.Recorder.
func (r *LogRecorder) Record(ctx context.Context, plan *mapek.Plan) error {
	attrs := []slog.Attr{
		slog.String("round_id", plan.RoundID),
		slog.String("strategy", plan.Strategy),
		slog.Bool("from_case", plan.FromCase),
		slog.Int("candidates", plan.Candidates),
		slog.Bool("truncated", plan.Truncated),
		slog.Int("violations", len(plan.Violations)),
	}
	if plan.Empty() {
		attrs = append(attrs, slog.String("reason", plan.Reason))
	} else {
		attrs = append(attrs,
			slog.String("first_actions", model.ActionKeys(plan.FirstActions)),
			slog.Float64("score", plan.Score),
		)
	}
	r.logger.LogAttrs(ctx, slog.LevelInfo, "plan round recorded", attrs...)
	return nil
}

// InfluxConfig locates the bucket rounds are written to.
type InfluxConfig struct {
	URL    string `yaml:"url" json:"url" validate:"omitempty,url"`
	Token  string `yaml:"token" json:"token"`
	Org    string `yaml:"org" json:"org"`
	Bucket string `yaml:"bucket" json:"bucket"`
	Zone   string `yaml:"zone" json:"zone"`
}

// Enabled reports whether a URL is configured.
func (c InfluxConfig) Enabled() bool { return c.URL != "" }

// InfluxRecorder writes one plan_round point per round with the blocking
// write API.
type InfluxRecorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	zone     string
}

// NewInfluxRecorder connects to the configured server. Connections are
// lazy; an unreachable server surfaces on the first Record.
func NewInfluxRecorder(cfg InfluxConfig) *InfluxRecorder {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxRecorder{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		zone:     cfg.Zone,
	}
}

// NewInfluxRecorderWithAPI wraps an existing write API.
func NewInfluxRecorderWithAPI(writeAPI api.WriteAPIBlocking, zone string) *InfluxRecorder {
	return &InfluxRecorder{writeAPI: writeAPI, zone: zone}
}

// Record implements mapek.Recorder.
func (r *InfluxRecorder) Record(ctx context.Context, plan *mapek.Plan) error {
	p := influxdb2.NewPointWithMeasurement(Measurement).
		AddTag("strategy", plan.Strategy).
		AddTag("from_case", strconv.FormatBool(plan.FromCase)).
		AddTag("truncated", strconv.FormatBool(plan.Truncated)).
		AddField("round_id", plan.RoundID).
		AddField("candidates", plan.Candidates).
		AddField("violations", len(plan.Violations)).
		AddField("actions", len(plan.FirstActions)).
		SetTime(plan.CreatedAt)
	if r.zone != "" {
		p.AddTag("zone", r.zone)
	}
	if plan.Reason != "" {
		p.AddTag("reason", plan.Reason)
	}
	if len(plan.FirstActions) > 0 {
		p.AddField("first_actions", model.ActionKeys(plan.FirstActions))
	}
	// Line protocol has no representation for NaN or infinities.
	if !math.IsNaN(plan.Score) && !math.IsInf(plan.Score, 0) {
		p.AddField("score", plan.Score)
	}
	return r.writeAPI.WritePoint(ctx, p)
}

// Close releases the client if this recorder created it.
func (r *InfluxRecorder) Close() {
	if r.client != nil {
		r.client.Close()
	}
}

// Multi fans a round out to several recorders. Every recorder runs; the
// errors are joined.
type Multi []mapek.Recorder

// Record implements mapek.Recorder.
func (m Multi) Record(ctx context.Context, plan *mapek.Plan) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(ctx, plan); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
