// Copyright (c) 2026 Ledger QL. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Api is the entry point for the Ledger QL natural-language SQL gateway.

The server exposes a read-only, rate-limited HTTP API that turns natural
language questions into validated, sandboxed PostgreSQL queries. It never
mutates the target database: every generated statement runs against a
read-only connection pool inside a read-only transaction.

Usage:

	go run cmd/api/main.go [flags]

The flags/environment variables are:

	SERVER_PORT       Port to listen on (default: 8080)
	ENVIRONMENT       deployment environment (development, production)
	DATABASE_URL      Postgres connection string (required)
	LLM_API_KEY       Anthropic API key (required)
	REDIS_URL         Redis connection string (optional; metadata cache
	                  falls back to an in-process map when unset)

Startup Sequence:

 1. Logger: Initialize structured JSON logging (slog).
 2. Config: Load and validate environment variables.
 3. Storage: Establish metadata and query Postgres pools, optional Redis client.
 4. Knowledge Base: Build the schema introspector, semantic store, and
    compiler, then run the scheduler's first (blocking) refresh.
 5. Wiring: Inject dependencies into the generation pipeline and HTTP handlers.
 6. Server: Bind HTTP listener and handle graceful shutdown.

No business logic lives here. This file is strictly for orchestration and wiring.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ledgerql/gateway/internal/api"
	"github.com/ledgerql/gateway/internal/convo/resolver"
	"github.com/ledgerql/gateway/internal/convo/session"
	"github.com/ledgerql/gateway/internal/executor"
	"github.com/ledgerql/gateway/internal/generator"
	"github.com/ledgerql/gateway/internal/generator/llm"
	"github.com/ledgerql/gateway/internal/kb/catalog"
	"github.com/ledgerql/gateway/internal/kb/compiler"
	"github.com/ledgerql/gateway/internal/kb/scheduler"
	"github.com/ledgerql/gateway/internal/kb/semantic"
	"github.com/ledgerql/gateway/internal/metadatacache"
	"github.com/ledgerql/gateway/internal/metrics"
	"github.com/ledgerql/gateway/internal/platform/config"
	"github.com/ledgerql/gateway/internal/platform/constants"
	"github.com/ledgerql/gateway/internal/platform/dbmanager"
	redisstore "github.com/ledgerql/gateway/internal/platform/redis"
	"github.com/ledgerql/gateway/internal/retrieval"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		slog.Error("application_startup_failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	// # 1. Logger
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries for trace correlation
	log := rawLog.With(slog.String("app", constants.AppName))
	slog.SetDefault(log)

	log.Info("service_initializing")

	// # 2. Configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	// Adjust log level if debug mode is explicitly enabled
	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", constants.AppName))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
	)

	// Root context for startup. A 30s deadline prevents the app from hanging.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// # 3. PostgreSQL (two disjoint pools: metadata and read-only query)
	dbManager, err := dbmanager.New(startupCtx, cfg.MetadataDSN(), cfg.QueryDSN(), cfg.StatementTimeoutSeconds, log)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer func() {
		log.Info("closing postgres pools")
		dbManager.Close()
	}()

	// # 4. Redis (optional — the metadata cache degrades to an in-process map)
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = redisstore.NewClient(startupCtx, cfg.RedisURL, log)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer func() {
			log.Info("closing redis client")
			if cerr := rdb.Close(); cerr != nil {
				log.Error("redis close error", slog.Any("error", cerr))
			}
		}()
	}

	cache := metadatacache.New(rdb, time.Duration(cfg.MetadataCacheTTLMinutes)*time.Minute)

	// # 5. Knowledge Base (introspection, semantic overlay, compiled rules)
	introspector := catalog.New(dbManager.Metadata, cfg.SchemaName, 0)
	semanticStore := semantic.New(filepath.Join(cfg.KBDirectory, "kb_semantic.json"))
	kbCompiler := compiler.New(cfg.KBDirectory, compiler.Policy{
		DefaultLimit:            cfg.DefaultLimit,
		MaxLimit:                cfg.MaxLimit,
		MaxJoinDepth:            cfg.MaxJoinDepth,
		HardCapJoinDepth:        cfg.HardCapJoinDepth,
		DeepJoinThreshold:       cfg.DeepJoinThreshold,
		StatementTimeoutSeconds: cfg.StatementTimeoutSeconds,
		AllowedSchemas:          []string{cfg.SchemaName},
	})

	kbScheduler := scheduler.New(
		introspector,
		semanticStore,
		kbCompiler,
		cfg.SchemaName,
		time.Duration(cfg.KBRefreshIntervalHours)*time.Hour,
		cache,
		log,
	)

	// Create a background context for the whole application lifecycle
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	log.Info("knowledge_base_refresh_starting")
	if err := kbScheduler.Start(appCtx); err != nil {
		return fmt.Errorf("start knowledge base scheduler: %w", err)
	}

	// # 6. Conversation state
	sessionStore := session.New(cfg.SessionRingCapacity)
	convoResolver := resolver.New(sessionStore, log)

	// # 7. Retrieval and generation
	retriever := retrieval.New(retrieval.Options{
		Enabled:            cfg.RAGEnabled,
		MaxTables:          cfg.RAGMaxTables,
		MaxColumnsPerTable: cfg.RAGMaxColumnsPerTable,
		MaxJoinPaths:       cfg.RAGMaxJoinPaths,
	})
	llmClient := llm.New(cfg.LLMAPIKey, cfg.LLMModel, time.Duration(cfg.LLMTimeoutSecs)*time.Second)
	sqlGenerator := generator.New(retriever, llmClient)
	sqlExecutor := executor.New(dbManager.Query)
	metricsCollector := metrics.New()

	// # 8. Health Wiring
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func() error {
			return dbManager.PingAll(context.Background())
		},
		CheckCache: func() error {
			if rdb == nil {
				return nil
			}
			return redisstore.Ping(context.Background(), rdb)
		},
	}, log)

	// # 9. API Assembly
	queryHandlers := api.NewQueryHandlers(
		convoResolver,
		sqlGenerator,
		kbScheduler,
		sqlExecutor,
		metricsCollector,
		cfg.StatementTimeoutSeconds,
		log,
	)

	handlers := api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Query:     queryHandlers.Query,
		Clarify:   queryHandlers.Clarify,
		KBStatus:  api.NewKBStatusHandler(kbScheduler),
		Metrics:   api.NewMetricsHandler(metricsCollector),
	}

	server := api.NewServer(appCtx, cfg, log, handlers)

	// # 10. Lifecycle Handling
	shutdownErr := make(chan error, 1)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			shutdownErr <- fmt.Errorf("http_server_crash: %w", err)
		}
	}()

	log.Info("gateway_api_running", slog.String("port", cfg.ServerPort))

	// Block until signal or error
	select {
	case sig := <-quit:
		log.Info("shutdown_signal_received", slog.String("signal", sig.String()))
	case err := <-shutdownErr:
		return err
	}

	// Start Graceful Shutdown Sequence
	appCancel() // Signal background workers (knowledge base scheduler) to stop

	log.Info("shutting_down_api_server", slog.Duration("timeout", constants.ShutdownTimeout))
	if err := server.Shutdown(constants.ShutdownTimeout); err != nil {
		return fmt.Errorf("server_shutdown_failed: %w", err)
	}

	log.Info("graceful_shutdown_complete")
	return nil
}
