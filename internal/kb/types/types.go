// Copyright (c) 2026 Ledger QL. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package types defines the shared data model for the Knowledge Base:
// catalog metadata, the join graph, and the Compiled Rules artifact that
// every downstream component (retriever, generator, validator) consumes as
// a single atomic snapshot.
package types

// Column describes a single table column as introspected from the catalog.
type Column struct {
	Name                  string   `json:"name"`
	DataType              string   `json:"data_type"`
	Nullable              bool     `json:"nullable"`
	Default               string   `json:"default,omitempty"`
	CharacterMaxLength    *int     `json:"character_max_length,omitempty"`
	NumericPrecision      *int     `json:"numeric_precision,omitempty"`
	NumericScale          *int     `json:"numeric_scale,omitempty"`
	OrdinalPosition       int      `json:"ordinal_position"`
	EnumValues            []string `json:"enum_values,omitempty"`
	CheckConstraintValues []string `json:"check_constraint_values,omitempty"`
}

// ForeignKey describes a child->parent foreign key relationship.
type ForeignKey struct {
	ConstraintName   string `json:"constraint_name"`
	Table            string `json:"table"`
	Column           string `json:"column"`
	ReferencedSchema string `json:"referenced_schema"`
	ReferencedTable  string `json:"referenced_table"`
	ReferencedColumn string `json:"referenced_column"`
}

// Index describes a btree/unique/primary-key index.
type Index struct {
	Name      string   `json:"name"`
	Table     string   `json:"table"`
	Columns   []string `json:"columns"`
	IsUnique  bool     `json:"is_unique"`
	IsPrimary bool     `json:"is_primary"`
}

// Semantic is the human-authored enrichment block merged onto a table.
type Semantic struct {
	Purpose               string            `json:"purpose"`
	Aliases               []string          `json:"aliases"`
	PII                   []string          `json:"pii,omitempty"`
	DefaultFilters        map[string]string `json:"default_filters,omitempty"`
	RecommendedDimensions []string          `json:"recommended_dimensions,omitempty"`
	RecommendedMetrics    []string          `json:"recommended_metrics,omitempty"`
	JoinPolicy            JoinPolicy        `json:"join_policy"`
	BusinessRules         []string          `json:"business_rules,omitempty"`
}

// JoinPolicy constrains how a table may be joined.
type JoinPolicy struct {
	MaxDepth     int      `json:"max_depth"`
	BlockedPaths []string `json:"blocked_paths,omitempty"`
}

// Table is the fully assembled catalog+semantic record for one schema-qualified table.
type Table struct {
	Schema            string       `json:"schema"`
	Name              string       `json:"name"`
	Columns           []Column     `json:"columns"`
	PrimaryKey        []string     `json:"primary_key"`
	ForeignKeys       []ForeignKey `json:"foreign_keys"`
	Indexes           []Index      `json:"indexes"`
	CheckConstraints  []string     `json:"check_constraints,omitempty"`
	DateColumns       []string     `json:"date_columns"`
	StatusColumns     []string     `json:"status_columns"`
	NaturalKeyColumns []string     `json:"natural_key_columns"`
	Domain            string       `json:"domain"`
	Semantic          Semantic     `json:"semantic"`
}

// Key returns the schema-qualified key used in the Tables map ("schema.name").
func (t Table) Key() string { return t.Schema + "." + t.Name }

// KBSchema is the raw catalog-introspection snapshot, keyed by schema-qualified name.
type KBSchema struct {
	Tables map[string]*Table `json:"tables"`
}

// FKEdge is a single directed edge in the flat FK edge list used by the
// JOIN ON validator; the list contains both directions of every declared FK.
type FKEdge struct {
	FromTable  string `json:"from_table"`
	FromColumn string `json:"from_column"`
	ToTable    string `json:"to_table"`
	ToColumn   string `json:"to_column"`
}

// JoinPath is a precomputed shortest path between two tables in the join graph.
type JoinPath struct {
	From  string     `json:"from"`
	To    string     `json:"to"`
	Nodes []string   `json:"nodes"`
	Edges []PathEdge `json:"edges"`
	Depth int        `json:"depth"`
}

// PathEdge is one hop of a JoinPath, carrying the owning-side column.
type PathEdge struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Column string `json:"column"`
	RefCol string `json:"ref_column"`
}

// QueryPolicies bounds what generated SQL is allowed to do.
type QueryPolicies struct {
	DefaultLimit               int      `json:"default_limit"`
	MaxLimit                   int      `json:"max_limit"`
	MaxJoinDepth               int      `json:"max_join_depth"`
	HardCapJoinDepth           int      `json:"hard_cap_join_depth"`
	RequireWhereForDeepJoins   bool     `json:"require_where_for_deep_joins"`
	DeepJoinThreshold          int      `json:"deep_join_threshold"`
	BlockedFunctions           []string `json:"blocked_functions"`
	BlockedPatterns            []string `json:"blocked_patterns"`
	RequireSchemaQualification bool     `json:"require_schema_qualification"`
	AllowedSchemas             []string `json:"allowed_schemas"`
	StatementTimeoutSeconds    int      `json:"statement_timeout_seconds"`
}

// CompiledRules is the single atomic runtime artifact published by the
// Rules Compiler and consumed, via one immutable snapshot per request, by
// the retriever, generator, and validator.
type CompiledRules struct {
	Version       string               `json:"version"`
	SchemaName    string               `json:"schema_name"`
	Tables        map[string]*Table    `json:"tables"`
	JoinGraph     map[string][]string  `json:"join_graph"`
	JoinPaths     map[string]*JoinPath `json:"join_paths"`
	FKEdges       []FKEdge             `json:"fk_edges"`
	QueryPolicies QueryPolicies        `json:"query_policies"`
}

// Validate checks the Compiled Rules invariants described in the data model:
// required keys present, fk_edges is a (possibly empty) list, and every
// table referenced by fk_edges/join_paths exists in Tables.
func (c *CompiledRules) Validate() error {
	if c.Version == "" {
		return errMissing("version")
	}
	if c.SchemaName == "" {
		return errMissing("schema_name")
	}
	if len(c.Tables) == 0 {
		return errMissing("tables")
	}
	if c.JoinGraph == nil {
		return errMissing("join_graph")
	}
	if c.JoinPaths == nil {
		return errMissing("join_paths")
	}
	if c.FKEdges == nil {
		c.FKEdges = []FKEdge{}
	}
	for _, e := range c.FKEdges {
		if _, ok := c.Tables[e.FromTable]; !ok {
			return errMissing("fk_edges references unknown table " + e.FromTable)
		}
		if _, ok := c.Tables[e.ToTable]; !ok {
			return errMissing("fk_edges references unknown table " + e.ToTable)
		}
	}
	for _, p := range c.JoinPaths {
		if _, ok := c.Tables[p.From]; !ok {
			return errMissing("join_paths references unknown table " + p.From)
		}
		if _, ok := c.Tables[p.To]; !ok {
			return errMissing("join_paths references unknown table " + p.To)
		}
	}
	return nil
}

type validationError string

func (e validationError) Error() string { return string(e) }

func errMissing(what string) error {
	return validationError("compiled rules missing required field: " + what)
}
