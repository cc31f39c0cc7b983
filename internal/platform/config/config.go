// Copyright (c) 2026 Ledger QL. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to subsystems (DB pools, LLM client, scheduler) via constructors.
  - Zero Hidden State: No global variables are used to store config.

This ensures the application is Twelve-Factor compliant by storing config in the env.
*/
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// # Configuration Schema

// Config holds all runtime configuration for the gateway API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`
	CORSDomain  string `env:"CORS_DOMAIN"  envDefault:"ledgerql.app"`

	// Relational database (PostgreSQL). MetadataDatabaseURL/QueryDatabaseURL allow
	// running the metadata pool and the query pool under distinct credentials; when
	// unset, both pools use DatabaseURL.
	DatabaseURL         string `env:"DATABASE_URL,required"`
	MetadataDatabaseURL string `env:"METADATA_DATABASE_URL"`
	QueryDatabaseURL    string `env:"QUERY_DATABASE_URL"`
	SchemaName          string `env:"SCHEMA_NAME" envDefault:"core"`

	// Key-Value cache (Redis), backing the Metadata Cache. Optional — the cache
	// degrades to an in-process map when unset.
	RedisURL string `env:"REDIS_URL"`

	// LLM (anthropic-sdk-go)
	LLMAPIKey      string  `env:"LLM_API_KEY,required"`
	LLMModel       string  `env:"LLM_MODEL"        envDefault:"claude-sonnet-4-5-20250929"`
	LLMTemperature float64 `env:"LLM_TEMPERATURE"  envDefault:"0.0"`
	LLMMaxTokens   int     `env:"LLM_MAX_TOKENS"   envDefault:"2048"`
	LLMTimeoutSecs int     `env:"LLM_TIMEOUT_SECONDS" envDefault:"30"`

	// Query policy envelope
	DefaultLimit            int `env:"DEFAULT_LIMIT"             envDefault:"50"`
	MaxLimit                int `env:"MAX_LIMIT"                 envDefault:"500"`
	StatementTimeoutSeconds int `env:"STATEMENT_TIMEOUT_SECONDS" envDefault:"10"`
	MaxJoinDepth            int `env:"MAX_JOIN_DEPTH"            envDefault:"4"`
	HardCapJoinDepth        int `env:"HARD_CAP_JOIN_DEPTH"       envDefault:"6"`
	DeepJoinThreshold       int `env:"DEEP_JOIN_THRESHOLD"       envDefault:"5"`
	KBRefreshIntervalHours  int `env:"KB_REFRESH_INTERVAL_HOURS" envDefault:"6"`

	// Retrieval-Augmented Generation
	RAGEnabled               bool `env:"RAG_ENABLED"                   envDefault:"true"`
	RAGMaxTables             int  `env:"RAG_MAX_TABLES"                envDefault:"8"`
	RAGMaxColumnsPerTable    int  `env:"RAG_MAX_COLUMNS_PER_TABLE"     envDefault:"15"`
	RAGMaxJoinPaths          int  `env:"RAG_MAX_JOIN_PATHS"            envDefault:"20"`

	// Knowledge Base artifact storage
	KBDirectory string `env:"KB_DIRECTORY" envDefault:"./data/kb"`

	// Conversation state
	SessionRingCapacity int `env:"SESSION_RING_CAPACITY" envDefault:"5"`

	// Metadata cache
	MetadataCacheTTLMinutes int `env:"METADATA_CACHE_TTL_MINUTES" envDefault:"15"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	return cfg, nil
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// CORSAllowedSuffix returns the origin suffix allowed cross-origin in production.
func (c *Config) CORSAllowedSuffix() string {
	return c.CORSDomain
}

// MetadataDSN returns the DSN the metadata pool should connect with, falling
// back to the primary DatabaseURL when no dedicated role is configured.
func (c *Config) MetadataDSN() string {
	if c.MetadataDatabaseURL != "" {
		return c.MetadataDatabaseURL
	}
	return c.DatabaseURL
}

// QueryDSN returns the DSN the query pool should connect with, falling back
// to the primary DatabaseURL when no dedicated role is configured.
func (c *Config) QueryDSN() string {
	if c.QueryDatabaseURL != "" {
		return c.QueryDatabaseURL
	}
	return c.DatabaseURL
}
