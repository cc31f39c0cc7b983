// Copyright (c) 2026 Ledger QL. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package dbmanager owns the two disjoint PostgreSQL connection pools the
gateway depends on: a metadata pool used exclusively by catalog introspection
and cache-refresh probes, and a query pool used exclusively by the Safe
Executor to run validated, read-only user SELECTs.

Architecture:

  - Metadata pool: small (2-5 conns), longer command timeout, read-write
    capable (introspection only issues reads, but does not force a
    read-only session).
  - Query pool: wider (5-20 conns), tight command timeout, every connection
    is pinned to `default_transaction_read_only = on` via AfterConnect so
    that even a validator bypass cannot mutate data.

This package is the bridge between the domain components and the physical
storage layer, generalized from a single shared pool into two role-scoped
pools per the concurrency/resource model.
*/
package dbmanager

import (
	stdctx "context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// # Pool Configuration (Tuning)

const (
	metadataMaxConns = 5
	metadataMinConns = 2

	queryMaxConns = 20
	queryMinConns = 5

	maxConnLifetime   = 60 * time.Minute
	maxConnIdleTime   = 10 * time.Minute
	healthCheckPeriod = 1 * time.Minute

	metadataConnectTimeout = 5 * time.Second
	queryConnectTimeout    = 5 * time.Second

	pingTimeout = 2 * time.Second

	// metadataStatementTimeoutSeconds bounds individual introspection/probe
	// queries at the session level, generously, since catalog scans over wide
	// schemas can legitimately take longer than a single user query.
	metadataStatementTimeoutSeconds = 30
)

// Manager owns the metadata and query pools and their shared lifecycle.
type Manager struct {
	Metadata *pgxpool.Pool
	Query    *pgxpool.Pool

	log *slog.Logger
}

// New establishes both pools against the given DSNs and validates connectivity.
// statementTimeoutSeconds bounds every statement issued through the query pool.
func New(ctx stdctx.Context, metadataDSN, queryDSN string, statementTimeoutSeconds int, logger *slog.Logger) (*Manager, error) {
	metadataPool, err := newPool(ctx, metadataDSN, poolTuning{
		maxConns:          metadataMaxConns,
		minConns:          metadataMinConns,
		connectTimeout:    metadataConnectTimeout,
		statementTimeout:  metadataStatementTimeoutSeconds,
		readOnlySession:   false,
	}, logger.With(slog.String("pool", "metadata")))
	if err != nil {
		return nil, fmt.Errorf("dbmanager: metadata pool: %w", err)
	}

	queryPool, err := newPool(ctx, queryDSN, poolTuning{
		maxConns:         queryMaxConns,
		minConns:         queryMinConns,
		connectTimeout:   queryConnectTimeout,
		statementTimeout: statementTimeoutSeconds,
		readOnlySession:  true,
	}, logger.With(slog.String("pool", "query")))
	if err != nil {
		metadataPool.Close()
		return nil, fmt.Errorf("dbmanager: query pool: %w", err)
	}

	return &Manager{Metadata: metadataPool, Query: queryPool, log: logger}, nil
}

// Close releases both pools. Safe to call once during graceful shutdown.
func (m *Manager) Close() {
	if m.Metadata != nil {
		m.Metadata.Close()
	}
	if m.Query != nil {
		m.Query.Close()
	}
}

// PingAll verifies both pools are reachable; used by the /ready endpoint.
func (m *Manager) PingAll(ctx stdctx.Context) error {
	if err := ping(ctx, m.Metadata); err != nil {
		return fmt.Errorf("metadata pool: %w", err)
	}
	if err := ping(ctx, m.Query); err != nil {
		return fmt.Errorf("query pool: %w", err)
	}
	return nil
}

type poolTuning struct {
	maxConns         int32
	minConns         int32
	connectTimeout   time.Duration
	statementTimeout int
	readOnlySession  bool
}

func newPool(ctx stdctx.Context, dsn string, tuning poolTuning, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid DSN: %w", err)
	}

	poolConfig.MaxConns = tuning.maxConns
	poolConfig.MinConns = tuning.minConns
	poolConfig.MaxConnLifetime = maxConnLifetime
	poolConfig.MaxConnIdleTime = maxConnIdleTime
	poolConfig.HealthCheckPeriod = healthCheckPeriod
	poolConfig.ConnConfig.ConnectTimeout = tuning.connectTimeout

	// AfterConnect runs once per physical connection. For the query pool this
	// is where read-only mode is pinned session-wide, as defense-in-depth
	// alongside the per-transaction BEGIN TRANSACTION READ ONLY the Safe
	// Executor issues.
	poolConfig.AfterConnect = func(ctx stdctx.Context, conn *pgx.Conn) error {
		timeoutQuery := fmt.Sprintf("SET statement_timeout = '%ds'", tuning.statementTimeout)
		if _, err := conn.Exec(ctx, timeoutQuery); err != nil {
			return err
		}
		if tuning.readOnlySession {
			if _, err := conn.Exec(ctx, "SET default_transaction_read_only = on"); err != nil {
				return err
			}
		}
		return nil
	}

	connectCtx, cancel := stdctx.WithTimeout(ctx, tuning.connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := ping(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	stats := pool.Stat()
	logger.Info("postgres pool connected",
		slog.Int("max_conns", int(stats.MaxConns())),
		slog.Int("total_conns", int(stats.TotalConns())),
	)

	return pool, nil
}

func ping(ctx stdctx.Context, pool *pgxpool.Pool) error {
	pingCtx, cancel := stdctx.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}
