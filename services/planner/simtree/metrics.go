// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package simtree

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var knownTruncations = map[string]bool{
	"time":    true,
	"nodes":   true,
	"depth":   true,
	"context": true,
}

func sanitizeTruncation(reason string) string {
	if knownTruncations[reason] {
		return reason
	}
	return "unknown"
}

var (
	stepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "twin",
			Subsystem: "simtree",
			Name:      "steps_total",
			Help:      "Twin steps by outcome (ok, failed, rejected)",
		},
		[]string{"status"},
	)

	buildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "twin",
			Subsystem: "simtree",
			Name:      "builds_total",
			Help:      "Tree builds by completion (complete or truncation reason)",
		},
		[]string{"result"},
	)

	buildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "twin",
			Subsystem: "simtree",
			Name:      "build_duration_seconds",
			Help:      "Wall clock duration of tree builds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		},
	)

	treePaths = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "twin",
			Subsystem: "simtree",
			Name:      "paths",
			Help:      "Number of candidate paths per built tree",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		},
	)
)
