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
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/AdForge/config"
	"github.com/AleutianAI/AdForge/engine"
	"github.com/AleutianAI/AdForge/executors"
	"github.com/AleutianAI/AdForge/fal"
	"github.com/AleutianAI/AdForge/gcs"
	"github.com/AleutianAI/AdForge/llm"
	"github.com/AleutianAI/AdForge/observability"
	authpkg "github.com/AleutianAI/AdForge/pkg/auth"
	"github.com/AleutianAI/AdForge/pkg/extensions"
	"github.com/AleutianAI/AdForge/pkg/logging"
	"github.com/AleutianAI/AdForge/reddit"
	"github.com/AleutianAI/AdForge/routes"
	"github.com/AleutianAI/AdForge/storage"
	"github.com/AleutianAI/AdForge/storage/badger"
	"github.com/AleutianAI/AdForge/storage/postgres"
	"github.com/AleutianAI/AdForge/tasks"
)

// shutdownTimeout bounds the graceful-stop sequence: HTTP drain first,
// then the supervisor's own grace period applies to running executions.
const shutdownTimeout = 35 * time.Second

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
		resource.WithAttributes(semconv.ServiceNameKey.String("adforge")))
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
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// initMeter bridges the engine's otel meters into the default
// Prometheus registry, so /metrics serves both the service metrics and
// the per-node instrumentation.
func initMeter() error {
	exporter, err := otelprom.New()
	if err != nil {
		return err
	}
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)))
	return nil
}

func newLogger(cfg config.LoggingConfig) *logging.Logger {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		level = logging.LevelInfo
	}
	// JSON in containers, text when a human is watching.
	useJSON := cfg.JSON || !isatty.IsTerminal(os.Stdout.Fd())
	return logging.New(logging.Config{
		Level:   level,
		Service: "adforge",
		JSON:    useJSON,
		LogDir:  cfg.Dir,
	})
}

func openStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Backend {
	case "", "badger":
		badgerCfg := badger.DefaultConfig(cfg.BadgerDir)
		badgerCfg.Logger = logger
		return badger.Open(badgerCfg)
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, errors.New("storage.postgres_dsn is required for the postgres backend")
		}
		return postgres.Open(ctx, cfg.PostgresDSN, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := config.Global
	secrets := config.LoadSecrets()

	logger := newLogger(cfg.Logging)
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	observability.InitMetrics()
	if err := initMeter(); err != nil {
		log.Fatalf("failed to set up the metrics bridge: %v", err)
	}
	if cfg.Telemetry.OTLPEndpoint != "" {
		cleanup, err := initTracer(cfg.Telemetry.OTLPEndpoint)
		if err != nil {
			log.Fatalf("failed to setup the OTLP tracer: %v", err)
		}
		defer cleanup(context.Background())
	}

	ctx := context.Background()
	store, err := openStore(ctx, cfg.Storage, logger.Slog())
	if err != nil {
		log.Fatalf("failed to open the store: %v", err)
	}
	defer store.Close()

	// Collaborators. Each is optional: an unset credential disables the
	// feature instead of refusing to start.
	var generator executors.ImageGenerator
	if secrets.FalKey.IsSet() {
		key, err := secrets.FalKey.Open()
		if err != nil {
			log.Fatalf("failed to open the fal key: %v", err)
		}
		opts := []fal.Option{fal.WithRateLimit(cfg.Fal.RequestsPerSecond, cfg.Fal.Burst)}
		if cfg.Fal.BaseURL != "" {
			opts = append(opts, fal.WithBaseURL(cfg.Fal.BaseURL))
		}
		generator = fal.NewClient(key, logger.Slog(), opts...)
	} else {
		slog.Warn("FAL_KEY not set; image model nodes will fail")
	}

	var optimizer executors.Optimizer
	if secrets.OpenAIKey.IsSet() {
		key, err := secrets.OpenAIKey.Open()
		if err != nil {
			log.Fatalf("failed to open the OpenAI key: %v", err)
		}
		optimizer, err = llm.NewOptimizer(key, cfg.OpenAI.Model, logger.Slog())
		if err != nil {
			log.Fatalf("failed to create the prompt optimizer: %v", err)
		}
	} else {
		slog.Info("OPENAI_API_KEY not set; prompt optimization disabled")
	}

	var mirror executors.AssetMirror
	if cfg.GCS.Bucket != "" {
		gcsClient, err := gcs.NewClient(ctx, cfg.GCS.Bucket, cfg.GCS.Prefix, cfg.GCS.CredentialsFile, logger.Slog())
		if err != nil {
			log.Fatalf("failed to create the GCS mirror: %v", err)
		}
		defer gcsClient.Close()
		mirror = gcsClient
	}

	redditClient := reddit.NewClient(logger.Slog())

	registry := executors.NewDefaultRegistry(executors.Deps{
		Optimizer:   optimizer,
		Trends:      redditClient,
		Images:      generator,
		Generations: store,
		Mirror:      mirror,
	})

	eng := engine.NewEngine(store, registry, logger.Slog())
	supervisor := tasks.NewSupervisor(store, logger.Slog(), tasks.DefaultConfig())

	var provider extensions.AuthProvider
	if secrets.JWTSecret.IsSet() {
		key, err := secrets.JWTSecret.OpenBytes()
		if err != nil {
			log.Fatalf("failed to open the JWT secret: %v", err)
		}
		leeway := time.Duration(cfg.Auth.LeewaySeconds) * time.Second
		provider, err = authpkg.NewJWTProvider(key, authpkg.WithLeeway(leeway))
		if err != nil {
			log.Fatalf("failed to create the JWT provider: %v", err)
		}
	} else {
		slog.Warn("ADFORGE_JWT_SECRET not set; running with the single-user nop auth provider")
		provider = &extensions.NopAuthProvider{}
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("adforge"))

	routes.SetupRoutes(router, routes.Deps{
		Auth:         provider,
		Engine:       eng,
		Supervisor:   supervisor,
		Store:        store,
		RedditClient: redditClient,
		Version:      version,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("starting the adforge server", "port", cfg.Server.Port, "backend", cfg.Storage.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	stop, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	<-stop.Done()
	slog.Info("shutdown requested")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown failed", "error", err)
	}
	if err := supervisor.Shutdown(shutdownCtx); err != nil {
		slog.Error("supervisor shutdown failed", "error", err)
	}
	slog.Info("shutdown complete")
}
