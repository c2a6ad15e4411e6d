// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package folio

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	sessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "folio",
		Subsystem: "service",
		Name:      "sessions_created_total",
		Help:      "Sessions created",
	})

	reloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "folio",
		Subsystem: "service",
		Name:      "kb_reloads_total",
		Help:      "Knowledge base loads by result",
	}, []string{"result"})

	rateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "folio",
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter",
	})

	wsConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "folio",
		Subsystem: "http",
		Name:      "websocket_connections",
		Help:      "Open chat WebSocket connections",
	})
)

// =============================================================================
// OTel Tracer
// =============================================================================

var tracer = otel.Tracer("folio.service")
