// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mapek

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	planRoundsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "twin",
			Subsystem: "planner",
			Name:      "rounds_total",
			Help:      "Planning rounds by outcome (planned, cached, empty, aborted)",
		},
		[]string{"outcome"},
	)

	planDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "twin",
			Subsystem: "planner",
			Name:      "round_duration_seconds",
			Help:      "Wall clock duration of planning rounds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		},
	)

	loopStagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "twin",
			Subsystem: "loop",
			Name:      "stage_errors_total",
			Help:      "Loop stage failures by stage (monitor, plan, execute, record)",
		},
		[]string{"stage"},
	)

	actionsExecuted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "twin",
			Subsystem: "loop",
			Name:      "actions_executed_total",
			Help:      "Actions handed to the executor",
		},
	)
)
