// Copyright (c) 2026 Ledger QL. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package compiler assembles the Compiled Rules artifact from a catalog
snapshot and the join graph, validates it, and publishes it via an atomic
temp-file-then-rename swap so that a failed compile never disturbs the
previously served ("last known good") artifact.
*/
package compiler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ledgerql/gateway/internal/kb/joingraph"
	"github.com/ledgerql/gateway/internal/kb/semantic"
	"github.com/ledgerql/gateway/internal/kb/types"
)

// BlockedFunctions is the fixed list of Postgres functions that must never
// appear in generated SQL, regardless of query policy configuration.
var BlockedFunctions = []string{
	"pg_sleep", "pg_sleep_for", "pg_sleep_until",
	"pg_read_file", "pg_read_binary_file", "pg_ls_dir",
	"dblink", "dblink_exec", "dblink_connect", "dblink_open",
	"lo_import", "lo_export", "lo_create", "lo_unlink",
	"pg_terminate_backend", "pg_cancel_backend", "pg_reload_conf",
	"pg_advisory_lock", "pg_try_advisory_lock",
}

// BlockedKeywords is the fixed list of SQL keywords rejected in the text of
// any generated statement, independent of AST-level checks.
var BlockedKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "TRUNCATE", "DROP", "CREATE", "ALTER",
	"RENAME", "GRANT", "REVOKE", "BEGIN", "COMMIT", "ROLLBACK", "SAVEPOINT",
	"VACUUM", "ANALYZE", "CLUSTER", "REINDEX", "DO", "CALL", "COPY",
	"LISTEN", "NOTIFY", "UNLISTEN",
}

// Policy carries the configuration-driven knobs merged into query_policies.
type Policy struct {
	DefaultLimit            int
	MaxLimit                int
	MaxJoinDepth            int
	HardCapJoinDepth        int
	DeepJoinThreshold       int
	StatementTimeoutSeconds int
	AllowedSchemas          []string
}

// Compiler assembles and persists the Compiled Rules artifact.
type Compiler struct {
	dir    string
	policy Policy
}

// New constructs a Compiler that persists artifacts under dir.
func New(dir string, policy Policy) *Compiler {
	return &Compiler{dir: dir, policy: policy}
}

// Compile merges schema + join graph into one Compiled Rules value, stamped
// with a monotonic version derived from the current time.
func (c *Compiler) Compile(schema *types.KBSchema, schemaName string) (*types.CompiledRules, error) {
	builder := joingraph.New(schema)
	builder.BuildFKGraph()

	rules := &types.CompiledRules{
		Version:    strconv.FormatInt(time.Now().UnixNano(), 10),
		SchemaName: schemaName,
		Tables:     schema.Tables,
		JoinGraph:  builder.JoinGraph(),
		JoinPaths:  builder.ComputeJoinPaths(c.policy.MaxJoinDepth),
		FKEdges:    builder.GetFKEdges(),
		QueryPolicies: types.QueryPolicies{
			DefaultLimit:               c.policy.DefaultLimit,
			MaxLimit:                   c.policy.MaxLimit,
			MaxJoinDepth:               c.policy.MaxJoinDepth,
			HardCapJoinDepth:           c.policy.HardCapJoinDepth,
			RequireWhereForDeepJoins:   true,
			DeepJoinThreshold:          c.policy.DeepJoinThreshold,
			BlockedFunctions:           BlockedFunctions,
			BlockedPatterns:            BlockedKeywords,
			RequireSchemaQualification: true,
			AllowedSchemas:             c.policy.AllowedSchemas,
			StatementTimeoutSeconds:    c.policy.StatementTimeoutSeconds,
		},
	}

	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("compiler: %w", err)
	}
	return rules, nil
}

// SemanticPath returns the on-disk path of the semantic enrichment document
// under this compiler's artifact directory.
func (c *Compiler) SemanticPath() string {
	return filepath.Join(c.dir, "kb_semantic.json")
}

// Persist writes schema, semantic, and compiled-rules artifacts to temp
// files and atomically renames all three into place. Each file is swapped
// independently, but all three are written before any is considered durable
// by the caller; a failure on any one leaves the previously published set
// of files as the artifact served to the rest of the system.
func (c *Compiler) Persist(schema *types.KBSchema, rules *types.CompiledRules) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("compiler: mkdir kb dir: %w", err)
	}

	schemaPath := filepath.Join(c.dir, "kb_schema.json")
	rulesPath := filepath.Join(c.dir, "compiled_rules.json")

	if err := writeAtomic(schemaPath, schema); err != nil {
		return fmt.Errorf("compiler: persist schema: %w", err)
	}
	if err := semantic.New(c.SemanticPath()).Save(schema); err != nil {
		return fmt.Errorf("compiler: persist semantic: %w", err)
	}
	if err := writeAtomic(rulesPath, rules); err != nil {
		return fmt.Errorf("compiler: persist rules: %w", err)
	}
	return nil
}

// Load reads a previously published Compiled Rules artifact from disk, used
// for the "last known good" fallback when a refresh fails.
func (c *Compiler) Load() (*types.CompiledRules, error) {
	data, err := os.ReadFile(filepath.Join(c.dir, "compiled_rules.json"))
	if err != nil {
		return nil, err
	}
	var rules types.CompiledRules
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, err
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return &rules, nil
}

func writeAtomic(finalPath string, value interface{}) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}

	tempPath := finalPath + "_temp.json"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tempPath, finalPath)
}
