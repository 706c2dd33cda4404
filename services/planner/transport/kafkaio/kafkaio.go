// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package kafkaio connects the control loop to a zone over Kafka.
//
// Monitor consumes zone snapshots from a topic and always returns the most
// recent one; older messages waiting in the partition are obsolete and
// skipped. Executor publishes the first-tick actions of a plan as command
// messages keyed by actuator or parameter name, so all commands for one
// target land on the same partition in order.
package kafkaio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/AleutianAI/AleutianTwin/services/planner/mapek"
	"github.com/AleutianAI/AleutianTwin/services/planner/model"
)

// ErrNoSnapshot is returned by Monitor before the first snapshot arrives.
var ErrNoSnapshot = errors.New("no zone snapshot received yet")

// Config selects brokers and topics.
type Config struct {
	Brokers       []string      `yaml:"brokers" json:"brokers" validate:"required,min=1"`
	SnapshotTopic string        `yaml:"snapshot_topic" json:"snapshot_topic" validate:"required"`
	CommandTopic  string        `yaml:"command_topic" json:"command_topic" validate:"required"`
	Partition     int           `yaml:"partition" json:"partition" validate:"gte=0"`
	DrainWindow   time.Duration `yaml:"drain_window" json:"drain_window"`
	FetchTimeout  time.Duration `yaml:"fetch_timeout" json:"fetch_timeout"`
}

// DefaultConfig returns a local single-broker layout.
func DefaultConfig() Config {
	return Config{
		Brokers:       []string{"localhost:9092"},
		SnapshotTopic: "twin.snapshots",
		CommandTopic:  "twin.commands",
		DrainWindow:   350 * time.Millisecond,
		FetchTimeout:  100 * time.Millisecond,
	}
}

// MessageReader is the subset of *kafka.Reader used by Monitor.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// MessageWriter is the subset of *kafka.Writer used by Executor.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewReader returns a partition-bound reader for the snapshot topic.
func NewReader(cfg Config) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:   cfg.Brokers,
		Topic:     cfg.SnapshotTopic,
		Partition: cfg.Partition,
		MinBytes:  1,
		MaxBytes:  10e6,
		MaxWait:   200 * time.Millisecond,
	})
}

// NewWriter returns a writer for the command topic that partitions by key.
func NewWriter(cfg Config) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.CommandTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
}

// Monitor implements mapek.Monitor over a snapshot topic.
//
// Thread Safety: Not safe for concurrent use. The control loop calls
// Monitor from a single goroutine.
type Monitor struct {
	reader       MessageReader
	logger       *slog.Logger
	drainWindow  time.Duration
	fetchTimeout time.Duration

	latest *model.PropertyCache
}

// NewMonitor wraps reader.
func NewMonitor(reader MessageReader, cfg Config, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.DrainWindow <= 0 {
		cfg.DrainWindow = def.DrainWindow
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}
	return &Monitor{
		reader:       reader,
		logger:       logger,
		drainWindow:  cfg.DrainWindow,
		fetchTimeout: cfg.FetchTimeout,
	}
}

// Monitor drains the messages available right now and returns the newest
// snapshot. When nothing new has arrived the previous snapshot is returned
// again.
//
// # Outputs
//
//   - *model.PropertyCache: Latest snapshot.
//   - error: ErrNoSnapshot before any snapshot, a broker error when nothing
//     could be read, or ctx.Err().
func (m *Monitor) Monitor(ctx context.Context) (*model.PropertyCache, error) {
	deadline := time.Now().Add(m.drainWindow)
	received := 0
	for {
		fetchCtx, cancel := context.WithTimeout(ctx, m.fetchTimeout)
		msg, err := m.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				break
			}
			if m.latest == nil {
				return nil, fmt.Errorf("fetch snapshot: %w", err)
			}
			m.logger.Warn("snapshot fetch failed, reusing previous", slog.String("error", err.Error()))
			break
		}

		var cache model.PropertyCache
		if err := json.Unmarshal(msg.Value, &cache); err != nil {
			m.logger.Warn("discarding malformed snapshot",
				slog.Int64("offset", msg.Offset),
				slog.String("error", err.Error()),
			)
			continue
		}
		m.latest = &cache
		received++
		if time.Now().After(deadline) {
			break
		}
	}

	if m.latest == nil {
		return nil, ErrNoSnapshot
	}
	if received > 1 {
		m.logger.Debug("skipped obsolete snapshots", slog.Int("count", received-1))
	}
	return m.latest, nil
}

// Close closes the reader.
func (m *Monitor) Close() error { return m.reader.Close() }

// Command is the message published for each executed action.
type Command struct {
	RoundID  string `json:"roundId"`
	Kind     string `json:"kind"`
	Target   string `json:"target"`
	Value    string `json:"value"`
	Effect   string `json:"effect,omitempty"`
	IssuedAt int64  `json:"issuedAt"`
}

// Executor implements mapek.Executor over a command topic.
type Executor struct {
	writer MessageWriter
	logger *slog.Logger
	now    func() time.Time
}

// NewExecutor wraps writer.
func NewExecutor(writer MessageWriter, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{writer: writer, logger: logger, now: time.Now}
}

// Execute publishes one command per first-tick action in a single batch.
func (e *Executor) Execute(ctx context.Context, plan *mapek.Plan, _ *model.PropertyCache) error {
	if len(plan.FirstActions) == 0 {
		return nil
	}
	issued := e.now()
	msgs := make([]kafka.Message, 0, len(plan.FirstActions))
	for _, a := range plan.FirstActions {
		cmd := Command{
			RoundID:  plan.RoundID,
			Kind:     a.Kind.String(),
			Target:   a.Target,
			Value:    a.Value.String(),
			IssuedAt: issued.UnixMilli(),
		}
		if a.Kind == model.Reconfiguration {
			cmd.Effect = a.Effect.String()
		}
		b, err := json.Marshal(cmd)
		if err != nil {
			return fmt.Errorf("marshal command for %s: %w", a.Target, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:     []byte(a.Target),
			Value:   b,
			Time:    issued,
			Headers: []kafka.Header{{Key: "round_id", Value: []byte(plan.RoundID)}},
		})
	}
	if err := e.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d commands: %w", len(msgs), err)
	}
	e.logger.Info("commands published",
		slog.String("round_id", plan.RoundID),
		slog.Int("count", len(msgs)),
	)
	return nil
}

// Close closes the writer.
func (e *Executor) Close() error { return e.writer.Close() }
