// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	resolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "folio",
		Subsystem: "engine",
		Name:      "resolutions_total",
		Help:      "Total resolutions by outcome",
	}, []string{"outcome"})

	resolutionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "folio",
		Subsystem: "engine",
		Name:      "resolution_latency_seconds",
		Help:      "Time to resolve one user turn",
		Buckets:   []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	})

	candidateCount = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "folio",
		Subsystem: "engine",
		Name:      "candidate_count",
		Help:      "Number of fuzzy-match candidates per search",
		Buckets:   []float64{0, 1, 2, 3, 5, 10, 20, 50},
	})

	bestScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "folio",
		Subsystem: "engine",
		Name:      "best_score",
		Help:      "Best candidate score per search (0 = perfect)",
		Buckets:   []float64{0, 0.1, 0.2, 0.3, 0.35, 0.5, 0.7, 0.9, 1},
	})

	shortcutHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "folio",
		Subsystem: "engine",
		Name:      "shortcut_hits_total",
		Help:      "Canonical shortcut answers by rule",
	}, []string{"rule"})

	indexDocuments = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "folio",
		Subsystem: "index",
		Name:      "documents",
		Help:      "Documents in the active index",
	})

	indexSwaps = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "folio",
		Subsystem: "index",
		Name:      "swaps_total",
		Help:      "Times a new index replaced the active one",
	})
)

// =============================================================================
// OTel Tracer
// =============================================================================

var tracer = otel.Tracer("folio.engine")
