// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AleutianAI/folio/services/folio"
)

var (
	serveAddr        string
	serveSessionTTL  time.Duration
	serveRateLimit   float64
	serveRateBurst   int
	serveWatch       bool
	serveDebug       bool
	serveTraceStdout bool
	serveOTLP        string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket API",
	Long: `Starts the folio API under /v1/folio. Query endpoints return 503 until the
knowledge base index is built. File knowledge bases are reloaded on change.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", envOr("FOLIO_ADDR", ":8080"), "listen address (env FOLIO_ADDR)")
	serveCmd.Flags().DurationVar(&serveSessionTTL, "session-ttl", envDuration("FOLIO_SESSION_TTL", folio.DefaultSessionTTL),
		"idle session expiry (env FOLIO_SESSION_TTL)")
	serveCmd.Flags().Float64Var(&serveRateLimit, "rate-limit", envFloat("FOLIO_RATE_LIMIT", 20),
		"requests per second per client, 0 disables (env FOLIO_RATE_LIMIT)")
	serveCmd.Flags().IntVar(&serveRateBurst, "rate-burst", 40, "rate limiter burst size")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", true, "reload a file knowledge base when it changes")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "gin debug mode and request logging")
	serveCmd.Flags().BoolVar(&serveTraceStdout, "trace-stdout", false, "export OpenTelemetry spans to stdout")
	serveCmd.Flags().StringVar(&serveOTLP, "otlp-endpoint", os.Getenv("FOLIO_OTLP_ENDPOINT"),
		"export spans over OTLP/gRPC to host:port (env FOLIO_OTLP_ENDPOINT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if serveDebug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if serveTraceStdout || serveOTLP != "" {
		shutdown, err := installTracer(ctx)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutdownCtx)
		}()
	}

	svc, err := folio.NewService(ctx, folio.ServiceConfig{
		Source:     kbSource,
		RulesDir:   rulesDir,
		SessionTTL: serveSessionTTL,
	}, serviceOptions()...)
	if err != nil {
		return err
	}
	defer svc.Close()

	if serveWatch {
		go func() {
			if err := svc.Watch(ctx); err != nil {
				slog.Warn("knowledge base watcher stopped", slog.String("error", err.Error()))
			}
		}()
	}

	router := newRouter(svc)
	srv := &http.Server{
		Addr:              serveAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting folio server",
			slog.String("address", serveAddr),
			slog.Bool("ready", svc.Ready()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down folio server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newRouter assembles middleware and routes.
func newRouter(svc *folio.Service) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("folio"))
	router.Use(folio.RateLimit(serveRateLimit, serveRateBurst))
	if serveDebug {
		router.Use(gin.Logger())
	}
	folio.RegisterRoutes(router.Group("/v1"), folio.NewHandlers(svc))
	return router
}

// installTracer sets the global tracer provider. An OTLP endpoint takes
// precedence over stdout.
func installTracer(ctx context.Context) (func(context.Context) error, error) {
	var (
		exp sdktrace.SpanExporter
		err error
	)
	if serveOTLP != "" {
		exp, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(serveOTLP),
			otlptracegrpc.WithInsecure(),
		)
	} else {
		exp, err = stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
	}
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", "folio"))),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
