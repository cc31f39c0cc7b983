// Copyright (c) 2026 Ledger QL. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package constants provides centralized, immutable values for the entire platform.

It defines default timeouts, rate limits, and cross-cutting keys that are shared
between different layers of the system.

Categories:

  - Server Timing: Read/Write/Idle timeouts for the HTTP server.
  - Rate Limiting: Burst capacities and IP tracking TTLs.
  - HTTP Headers: Well-known header names used by tracing/CORS middleware.
  - Query Policy: Defaults for the SQL safety envelope (limits, join depth, timeouts).

Using this package ensures Magic Strings and Magic Numbers are eliminated
from the business logic.
*/
package constants

import "time"

// # Metadata

const (
	AppName    = "ledgerql-gateway"
	AppVersion = "0.1.0-dev"
)

// # Server Timing

const (
	// DefaultReadTimeout is the maximum duration for reading the entire request.
	DefaultReadTimeout = 5 * time.Second

	// DefaultWriteTimeout is the maximum duration before timing out writes of the response.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultIdleTimeout is the maximum amount of time to wait for the next request.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultReadHeaderTimeout is the amount of time allowed to read request headers.
	DefaultReadHeaderTimeout = 2 * time.Second

	// GlobalRequestTimeout is the deadline for the entire request lifecycle.
	GlobalRequestTimeout = 30 * time.Second

	// ShutdownTimeout is how long we wait for in-flight requests to complete during shutdown.
	ShutdownTimeout = 30 * time.Second
)

// # Rate Limiting

const (
	// DefaultRateLimitRPS is the requests per second allowed per IP.
	DefaultRateLimitRPS = 100.0

	// DefaultRateLimitBurst is the maximum burst allowed for the rate limiter.
	DefaultRateLimitBurst = 150

	// RateLimitCleanupInterval is how often old IP entries are removed from memory.
	RateLimitCleanupInterval = 1 * time.Minute

	// RateLimitClientTTL is how long a client must be idle before its entry is deleted.
	RateLimitClientTTL = 3 * time.Minute
)

// # HTTP Headers

const (
	HeaderXRequestID     = "X-Request-ID"
	HeaderOrigin         = "Origin"
	HeaderXRealIP        = "X-Real-IP"
	HeaderXForwardedFor  = "X-Forwarded-For"
	HeaderContentType    = "Content-Type"
)

// # JSON Field Identifiers

const (
	FieldData    = "data"
	FieldMeta    = "meta"
	FieldError   = "error"
	FieldCode    = "code"
	FieldDetails = "details"
	FieldItems   = "items"
	FieldTotal   = "total"
	FieldMessage = "message"
	FieldStatus  = "status"
	FieldApp     = "app"
	FieldVersion = "version"
	FieldChecks  = "checks"
)

// # Database Schema

const (
	// SchemaCore is the default configured target schema for catalog introspection.
	SchemaCore = "core"
)

// # Redis Prefixes (Metadata Cache Taxonomy)

const (
	RedisPrefixMaxDate   = "metadata:max_date:"
	RedisPrefixRowCount  = "metadata:row_estimate:"
)

// # Query Policy Defaults

const (
	// DefaultLimit is injected into generated SQL with no LIMIT clause.
	DefaultLimit = 50

	// DefaultMaxLimit is the hard cap any LIMIT clause is clamped to.
	DefaultMaxLimit = 500

	// DefaultMaxJoinDepth is the soft cap on join depth before a warning is raised.
	DefaultMaxJoinDepth = 4

	// DefaultHardCapJoinDepth rejects any statement whose join depth exceeds this.
	DefaultHardCapJoinDepth = 6

	// DefaultDeepJoinThreshold is the depth at which a WHERE clause becomes mandatory.
	DefaultDeepJoinThreshold = 5

	// DefaultStatementTimeoutSeconds bounds every executed SELECT.
	DefaultStatementTimeoutSeconds = 10

	// DefaultKBRefreshIntervalHours is how often the KB Scheduler re-compiles the KB.
	DefaultKBRefreshIntervalHours = 6

	// DefaultSessionRingCapacity is the number of turns retained per session.
	DefaultSessionRingCapacity = 5

	// DefaultRAGMaxTables caps the number of tables surfaced to the prompt.
	DefaultRAGMaxTables = 8

	// DefaultRAGMaxColumnsPerTable caps per-table columns surfaced to the prompt.
	DefaultRAGMaxColumnsPerTable = 15

	// DefaultRAGMaxJoinPaths caps join paths surfaced to the prompt.
	DefaultRAGMaxJoinPaths = 20

	// DefaultMetadataCacheTTL is the default TTL for metadata-cache entries.
	DefaultMetadataCacheTTL = 15 * time.Minute
)
