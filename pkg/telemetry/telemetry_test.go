// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInit_None(t *testing.T) {
	tp, shutdown, err := Init(context.Background(), Config{Exporter: ExporterNone})
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	_, span := tp.Tracer("test").Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_StdoutWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	tp, shutdown, err := Init(context.Background(), Config{
		ServiceName: "twinplanner",
		Exporter:    ExporterStdout,
		SampleRate:  1,
		Writer:      &buf,
	})
	require.NoError(t, err)
	assert.Same(t, tp, otel.GetTracerProvider())

	_, span := otel.Tracer("test").Start(context.Background(), "planner.Plan")
	assert.True(t, span.SpanContext().IsSampled())
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "planner.Plan")
	assert.Contains(t, buf.String(), "twinplanner")
}

func TestInit_ZeroSampleRateDropsRoots(t *testing.T) {
	tp, shutdown, err := Init(context.Background(), Config{Exporter: ExporterStdout, Writer: &bytes.Buffer{}})
	require.NoError(t, err)
	defer shutdown(context.Background())

	_, span := tp.Tracer("test").Start(context.Background(), "dropped")
	assert.False(t, span.SpanContext().IsSampled())
	span.End()
}

func TestInit_Errors(t *testing.T) {
	_, _, err := Init(context.Background(), Config{Exporter: "jaeger-thrift"})
	assert.ErrorIs(t, err, ErrUnknownExporter)

	//nolint:staticcheck // nil context is the case under test
	_, _, err = Init(nil, Config{})
	assert.ErrorIs(t, err, ErrNilContext)
}
