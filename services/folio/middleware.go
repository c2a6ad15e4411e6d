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
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// maxTrackedClients caps the per-client limiter table; the table is reset
// when it fills.
const maxTrackedClients = 10000

// ReadinessGuard returns 503 until the knowledge-base index is built.
//
// Description:
//
//	Protects query endpoints from running against an empty engine. The
//	rejection is recorded as a span carrying the caller's trace context so
//	clients can correlate 503 responses with their traces.
//
// Thread Safety: This middleware is safe for concurrent use.
func ReadinessGuard(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if svc.Ready() {
			c.Next()
			return
		}

		_, span := tracer.Start(c.Request.Context(), "readiness_guard.reject",
			oteltrace.WithAttributes(
				attribute.String("path", c.Request.URL.Path),
				attribute.String("method", c.Request.Method),
				attribute.Int("http.status_code", http.StatusServiceUnavailable),
			),
		)
		defer span.End()
		span.SetStatus(codes.Error, "index not ready")

		traceID := ""
		if sc := span.SpanContext(); sc.HasTraceID() {
			traceID = sc.TraceID().String()
		}
		slog.Warn("request rejected: index not ready",
			slog.String("path", c.Request.URL.Path),
			slog.String("trace_id", traceID),
		)

		c.Header("Retry-After", "5")
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "knowledge base index not ready",
			Code:  "INDEX_NOT_READY",
		})
	}
}

// RateLimit limits requests per client IP with a token bucket of the given
// rate and burst. A non-positive rate disables limiting.
//
// Thread Safety: This middleware is safe for concurrent use.
func RateLimit(perSecond float64, burst int) gin.HandlerFunc {
	if perSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst < 1 {
		burst = 1
	}

	var (
		mu       sync.Mutex
		limiters = make(map[string]*rate.Limiter)
	)
	limiterFor := func(key string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		l, ok := limiters[key]
		if !ok {
			if len(limiters) >= maxTrackedClients {
				clear(limiters)
			}
			l = rate.NewLimiter(rate.Limit(perSecond), burst)
			limiters[key] = l
		}
		return l
	}

	return func(c *gin.Context) {
		if !limiterFor(c.ClientIP()).Allow() {
			rateLimited.Inc()
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Error: "rate limit exceeded",
				Code:  "RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}
