// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api provides the HTTP service wrapping the ensemble framework.
//
// This package contains the main Service type that coordinates all
// components of the ensemble daemon: HTTP routing, generator and scorer
// caches, the model statistics store, and observability infrastructure.
//
// # Usage
//
//	cfg := api.Config{Port: 12240}
//	svc, err := api.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc.Run()
package api

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianEnsemble/services/ensemble"
	"github.com/AleutianAI/AleutianEnsemble/services/ensemble/stats"
	"github.com/AleutianAI/AleutianEnsemble/services/generators"
	"github.com/AleutianAI/AleutianEnsemble/services/scorers"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
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
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the ensemble HTTP service.
//
// # Description
//
// Service abstracts the daemon lifecycle, enabling testing and alternative
// implementations. Only essential lifecycle methods are exposed.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and should
// only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	//
	// # Outputs
	//
	//   - error: Non-nil if the server fails to start or encounters a
	//     fatal error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	//
	// # Outputs
	//
	//   - *gin.Engine: The configured router with all routes registered.
	//
	// # Assumptions
	//
	//   - Caller will not modify the router.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds ensemble daemon configuration options.
//
// # Description
//
// Config centralizes all configuration for the service. Values can be
// populated from environment variables, config files, or programmatically
// for testing.
//
// # Required Fields
//
// None - all fields have sensible defaults.
//
// # Examples
//
//	// Minimal config (uses all defaults)
//	cfg := Config{}
//
//	// Custom port with a persistent stats database
//	cfg := Config{
//	    Port:        8080,
//	    StatsDBPath: "/var/lib/aleutian/modelstats",
//	}
type Config struct {
	// Port is the HTTP server port. Default: 12240
	Port int

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "aleutian-otel-collector:4317"
	OTelEndpoint string

	// EnableTracing controls whether the OTLP exporter is started.
	// Tests and local runs without a collector should leave this false.
	EnableTracing bool

	// GinMode sets the Gin framework mode.
	// Valid values: "debug", "release", "test"
	// Default: uses GIN_MODE env var or "debug"
	GinMode string

	// StatsDBPath is the directory for the Badger model statistics store.
	// If empty, selection falls back to the built-in statistics table and
	// the stats endpoints return 404.
	StatsDBPath string

	// StatsSeedPath optionally seeds the stats store from a YAML file on
	// startup. Ignored when StatsDBPath is empty.
	StatsSeedPath string

	// MaxTokens caps each generated continuation. Zero keeps backend
	// defaults.
	MaxTokens int

	// RequestTimeout bounds each individual generator call.
	// Default: 5 minutes.
	RequestTimeout time.Duration

	// OllamaKeepAlive is applied to Ollama-engine generators.
	// Default: "-1" (models stay resident).
	OllamaKeepAlive string
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Description
//
// service coordinates:
//   - HTTP routing via Gin
//   - The generator construction cache (shared across requests)
//   - The scorer construction cache
//   - The optional Badger model statistics store
//   - OpenTelemetry tracing
//   - Prometheus metrics
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns; the caches and store carry their own locking.
type service struct {
	config        Config
	router        *gin.Engine
	generators    *generators.Cache
	scorers       *scorers.Cache
	statsStore    *stats.Store
	metrics       *ensemble.ReasonerMetrics
	registry      *prometheus.Registry
	tracerCleanup func(context.Context)
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a new ensemble Service with the given configuration.
//
// # Description
//
// New initializes all daemon components:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing (when enabled)
//  3. Registers Prometheus metrics on a private registry
//  4. Opens the model statistics store (when configured)
//  5. Creates the generator and scorer caches
//  6. Sets up HTTP routes
//
// # Inputs
//
//   - cfg: Service configuration. Zero values use defaults.
//
// # Outputs
//
//   - Service: Ready-to-run ensemble service
//   - error: Non-nil if initialization fails
//
// # Limitations
//
//   - Stats store open failures are fatal when StatsDBPath is set; a
//     half-available store would silently change selection behavior.
func New(cfg Config) (Service, error) {
	s := &service{
		config:   applyConfigDefaults(cfg),
		registry: prometheus.NewRegistry(),
	}

	if s.config.EnableTracing {
		cleanup, err := s.initTracer()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
		s.tracerCleanup = cleanup
	}

	s.registry.MustRegister(collectors.NewGoCollector())
	s.metrics = ensemble.NewReasonerMetrics(s.registry)

	if s.config.StatsDBPath != "" {
		store, err := stats.Open(s.config.StatsDBPath)
		if err != nil {
			s.cleanup()
			return nil, fmt.Errorf("failed to open stats store: %w", err)
		}
		s.statsStore = store

		if s.config.StatsSeedPath != "" {
			if err := store.SeedFromYAML(s.config.StatsSeedPath); err != nil {
				slog.Warn("stats seeding failed, continuing with store contents",
					"path", s.config.StatsSeedPath,
					"error", err)
			}
		}
	}

	s.generators = generators.NewCache(generators.CacheConfig{
		MaxTokens:       s.config.MaxTokens,
		OllamaKeepAlive: s.config.OllamaKeepAlive,
		RequestTimeout:  s.config.RequestTimeout,
	})
	s.scorers = scorers.NewCache()

	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting ensemble server", "port", s.config.Port)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12240
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "aleutian-otel-collector:4317"
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 5 * time.Minute
	}
	if cfg.OllamaKeepAlive == "" {
		cfg.OllamaKeepAlive = "-1"
	}
	return cfg
}

// initTracer initializes OpenTelemetry distributed tracing.
//
// # Description
//
// Sets up an OTLP trace exporter sending spans to the configured collector.
//
// # Outputs
//
//   - func(context.Context): Cleanup function to call on shutdown
//   - error: Non-nil if tracer setup fails
//
// # Limitations
//
//   - Uses insecure gRPC connection (appropriate for internal networks)
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("ensemble-service")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}

	s.router = gin.New()
	s.router.Use(gin.Logger(), gin.Recovery())
	s.router.Use(otelgin.Middleware("ensemble-service"))
	s.router.Use(requestIDMiddleware())

	s.router.GET("/healthz", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(
		promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/ensemble", s.handleEnsemble)
		v1.POST("/warmup", s.handleWarmup)
		v1.GET("/stats", s.handleStatsList)
		// Wildcard, not :model - model refs like "Qwen/Qwen3-4B" span
		// path segments.
		v1.GET("/stats/*model", s.handleStatsGet)
		v1.PUT("/stats/*model", s.handleStatsPut)
	}
}

// requestIDMiddleware tags every request with a UUID, echoed in the
// X-Request-ID response header and available to handlers for logging.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// cleanup releases all resources held by the service.
func (s *service) cleanup() {
	if s.generators != nil {
		if err := s.generators.Close(); err != nil {
			slog.Warn("generator cache close error", "error", err)
		}
	}
	if s.statsStore != nil {
		if err := s.statsStore.Close(); err != nil {
			slog.Warn("stats store close error", "error", err)
		}
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
