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
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes registers all Folio routes with the router.
//
// Description:
//
//	Registers all /v1/folio/* endpoints with the given Gin router group.
//	Session and document endpoints sit behind ReadinessGuard; health,
//	readiness and metrics are always served.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	POST   /v1/folio/sessions - Start a conversation
//	POST   /v1/folio/sessions/:id/ask - Resolve one query
//	POST   /v1/folio/sessions/:id/select - Answer a chosen document
//	DELETE /v1/folio/sessions/:id - End a conversation
//	GET    /v1/folio/sessions/:id/ws - Chat over WebSocket
//	GET    /v1/folio/documents - List indexed documents
//	GET    /v1/folio/health - Health check
//	GET    /v1/folio/ready - Readiness check
//	GET    /v1/folio/metrics - Prometheus metrics
//
// Example:
//
//	svc, _ := folio.NewService(ctx, cfg)
//	v1 := router.Group("/v1")
//	folio.RegisterRoutes(v1, folio.NewHandlers(svc))
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	folio := rg.Group("/folio")
	{
		folio.GET("/health", handlers.HandleHealth)
		folio.GET("/ready", handlers.HandleReady)
		folio.GET("/metrics", gin.WrapH(promhttp.Handler()))

		guarded := folio.Group("", ReadinessGuard(handlers.svc))
		guarded.POST("/sessions", handlers.HandleCreateSession)
		guarded.POST("/sessions/:id/ask", handlers.HandleAsk)
		guarded.POST("/sessions/:id/select", handlers.HandleSelect)
		guarded.DELETE("/sessions/:id", handlers.HandleDeleteSession)
		guarded.GET("/sessions/:id/ws", handlers.HandleChatSocket)
		guarded.GET("/documents", handlers.HandleDocuments)
	}
}
