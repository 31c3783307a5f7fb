// Copyright (C) 2026 ReConnect TraitBank (traitbank-reconnect.hcmr.gr)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// The agent service exposes the ReConnect TraitBank over an HTTP streaming
// API. It resolves taxon names to taxon IDs, fetches trait records, and
// streams progress and results as Server-Sent Events.
//
// Configuration comes from ~/.traitbank/agent.yaml (or AGENT_CONFIG) with
// environment overrides; see services/agent/config. The service listens on
// port 9999 by default.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/reconnect-bio/traitbank-agent/pkg/logging"
	"github.com/reconnect-bio/traitbank-agent/services/agent/cache"
	"github.com/reconnect-bio/traitbank-agent/services/agent/config"
	"github.com/reconnect-bio/traitbank-agent/services/agent/datatypes"
	"github.com/reconnect-bio/traitbank-agent/services/agent/handlers"
	"github.com/reconnect-bio/traitbank-agent/services/agent/middleware"
	"github.com/reconnect-bio/traitbank-agent/services/agent/observability"
	"github.com/reconnect-bio/traitbank-agent/services/agent/pipeline"
	"github.com/reconnect-bio/traitbank-agent/services/agent/traitbank"
)

// Version is the service version reported in the agent card and health
// endpoint.
const Version = "1.0.0"

const serviceName = "traitbank-agent"

// upstream readiness probe
const (
	pingRetries  = 5
	pingInterval = 3 * time.Second
)

// initTracer sets up the OTLP gRPC trace exporter. Returns a shutdown
// function to flush spans on exit.
func initTracer(endpoint string) (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			log.Printf("failed to shutdown OTLP exporter: %v", err)
		}
	}, nil
}

// parseLogLevel maps a config string to a logging level.
func parseLogLevel(level string) logging.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logging.LevelDebug
	case "warn", "warning":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

// expandPath resolves a leading ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

func main() {
	settings, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := logging.New(logging.Config{
		Level:   parseLogLevel(settings.LogLevel),
		LogDir:  settings.LogDir,
		Service: "agent",
		JSON:    true,
	})
	defer logger.Close()

	// Tracing is opt-in: enabled only when an OTLP endpoint is configured.
	if settings.OTLPEndpoint != "" {
		cleanup, err := initTracer(settings.OTLPEndpoint)
		if err != nil {
			log.Fatalf("failed to setup the OTLP tracer: %v", err)
		}
		defer cleanup(context.Background())
		logger.Info("tracing enabled", "endpoint", settings.OTLPEndpoint)
	}

	metrics := observability.InitMetrics()

	// Response cache is optional; an empty cache_dir disables it.
	var responseCache traitbank.Cache
	var cacheStore *cache.Store
	if settings.CacheDir != "" {
		cacheStore, err = cache.Open(cache.Config{
			Path:   expandPath(settings.CacheDir),
			TTL:    settings.CacheTTL.Std(),
			Logger: logger.Slog(),
			Hit:    metrics.RecordCacheHit,
			Miss:   metrics.RecordCacheMiss,
		})
		if err != nil {
			log.Fatalf("failed to open response cache: %v", err)
		}
		defer cacheStore.Close()
		responseCache = cacheStore
		logger.Info("response cache enabled", "dir", settings.CacheDir, "ttl", settings.CacheTTL.Std().String())
	}

	client := traitbank.New(traitbank.Config{
		BaseURL:   settings.BaseURL,
		RateLimit: settings.RateLimit,
		Workers:   settings.Workers,
		Cache:     responseCache,
		Observer:  metrics.RecordUpstream,
	})

	// Probe the upstream before accepting traffic. A cold start with the
	// upstream down should fail fast and visibly.
	ctx := context.Background()
	for attempt := 1; ; attempt++ {
		if err := client.Ping(ctx); err == nil {
			logger.Info("upstream reachable", "base_url", settings.BaseURL)
			break
		} else if attempt >= pingRetries {
			log.Fatalf("upstream unreachable after %d attempts: %v", attempt, err)
		} else {
			logger.Warn("upstream not reachable yet, retrying",
				"attempt", attempt, "error", err.Error())
			time.Sleep(pingInterval)
		}
	}

	agentPipeline := pipeline.New(client, logger)
	card := datatypes.NewAgentCard(fmt.Sprintf("http://localhost:%d", settings.Port), Version)
	handler := handlers.NewHandler(agentPipeline, card, metrics, logger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if settings.OTLPEndpoint != "" {
		router.Use(otelgin.Middleware(serviceName))
	}

	router.GET("/health", handler.HandleHealth)
	router.GET("/.well-known/agent.json", handler.HandleAgentCard)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.Use(middleware.BearerAuth(settings.APIToken))
	v1.POST("/agent/run", handler.HandleRun)

	addr := fmt.Sprintf(":%d", settings.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		logger.Info("starting the agent server", "addr", addr, "version", Version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	// Shut down cleanly on SIGINT/SIGTERM so the cache closes properly.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err.Error())
	}
}
