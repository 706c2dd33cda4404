// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package kafkaio

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianTwin/services/planner/mapek"
	"github.com/AleutianAI/AleutianTwin/services/planner/model"
)

var (
	_ mapek.Monitor  = (*Monitor)(nil)
	_ mapek.Executor = (*Executor)(nil)
	_ MessageReader  = (*kafka.Reader)(nil)
	_ MessageWriter  = (*kafka.Writer)(nil)
)

type fakeReader struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (r *fakeReader) push(msgs ...kafka.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msgs...)
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if r.err != nil {
		err := r.err
		r.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) Close() error { return nil }

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func snapshotMessage(t *testing.T, offset int64, temp float64) kafka.Message {
	t.Helper()
	cache := model.NewPropertyCache([]model.Property{model.NewProperty("temperature", model.DoubleValue(temp))}, nil)
	b, err := json.Marshal(cache)
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Value: b}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.FetchTimeout = 5 * time.Millisecond
	cfg.DrainWindow = time.Second
	return cfg
}

func tempOf(t *testing.T, c *model.PropertyCache) float64 {
	t.Helper()
	p, ok := c.Property("temperature")
	require.True(t, ok)
	return p.Value.Float()
}

func TestMonitor_ReturnsLatestSnapshot(t *testing.T) {
	r := &fakeReader{}
	m := NewMonitor(r, testConfig(), quietLogger())
	ctx := context.Background()

	_, err := m.Monitor(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	r.push(snapshotMessage(t, 1, 18), snapshotMessage(t, 2, 19), snapshotMessage(t, 3, 20))
	got, err := m.Monitor(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20.0, tempOf(t, got))

	again, err := m.Monitor(ctx)
	require.NoError(t, err)
	assert.Same(t, got, again, "nothing new keeps the previous snapshot")
}

func TestMonitor_SkipsMalformedMessages(t *testing.T) {
	r := &fakeReader{}
	m := NewMonitor(r, testConfig(), quietLogger())

	r.push(snapshotMessage(t, 1, 21), kafka.Message{Offset: 2, Value: []byte("{not json")})
	got, err := m.Monitor(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 21.0, tempOf(t, got))
}

func TestMonitor_BrokerErrors(t *testing.T) {
	down := errors.New("broker unreachable")
	r := &fakeReader{err: down}
	m := NewMonitor(r, testConfig(), quietLogger())

	_, err := m.Monitor(context.Background())
	assert.ErrorIs(t, err, down)

	r.err = nil
	r.push(snapshotMessage(t, 1, 22))
	_, err = m.Monitor(context.Background())
	require.NoError(t, err)

	r.err = down
	got, err := m.Monitor(context.Background())
	require.NoError(t, err, "previous snapshot is reused")
	assert.Equal(t, 22.0, tempOf(t, got))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.err = nil
	_, err = m.Monitor(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecutor_PublishesCommandsKeyedByTarget(t *testing.T) {
	w := &fakeWriter{}
	e := NewExecutor(w, quietLogger())
	e.now = func() time.Time { return time.UnixMilli(1700000000000) }

	plan := &mapek.Plan{
		RoundID: "round-7",
		FirstActions: []model.Action{
			model.NewActuation("heat", "heater", model.StringValue("on")),
			model.NewReconfiguration("fan", "fan_speed", model.IntValue(50), model.ValueIncrease),
		},
	}
	require.NoError(t, e.Execute(context.Background(), plan, nil))
	require.Len(t, w.msgs, 2)

	assert.Equal(t, "heater", string(w.msgs[0].Key))
	assert.Equal(t, "round_id", w.msgs[0].Headers[0].Key)
	assert.Equal(t, "round-7", string(w.msgs[0].Headers[0].Value))

	var heat, fan Command
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &heat))
	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &fan))
	assert.Equal(t, Command{RoundID: "round-7", Kind: "actuation", Target: "heater", Value: "on", IssuedAt: 1700000000000}, heat)
	assert.Equal(t, "fan_speed", fan.Target)
	assert.Equal(t, "50", fan.Value)
	assert.Equal(t, "increase", fan.Effect)
}

func TestExecutor_EmptyPlanAndErrors(t *testing.T) {
	w := &fakeWriter{}
	e := NewExecutor(w, quietLogger())
	require.NoError(t, e.Execute(context.Background(), &mapek.Plan{}, nil))
	assert.Empty(t, w.msgs)

	w.err = errors.New("leader not available")
	plan := &mapek.Plan{FirstActions: []model.Action{model.NewActuation("heat", "heater", model.StringValue("on"))}}
	assert.ErrorIs(t, e.Execute(context.Background(), plan, nil), w.err)
}
