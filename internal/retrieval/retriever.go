// Copyright (c) 2026 Ledger QL. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package retrieval implements deterministic, RAG-style selection of the
Knowledge Base context handed to the SQL generator: which tables, which
columns per table, and which join paths are relevant to one question.
Nothing here calls a model; every decision is scored and sorted so the same
question against the same Compiled Rules snapshot always selects the same
context.
*/
package retrieval

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ledgerql/gateway/internal/kb/types"
)

const (
	weightTableName     = 10.0
	weightAlias         = 8.0
	weightColumn        = 3.0
	weightContext       = 15.0
	weightIntentTable   = 12.0
	weightIntentMetric  = 5.0
)

var tokenRegex = regexp.MustCompile(`[a-z0-9]+`)

// TokenizeText lowercases text, splits underscores/hyphens into word
// boundaries, and returns the set of alphanumeric tokens found.
func TokenizeText(text string) map[string]struct{} {
	lowered := strings.ToLower(text)
	lowered = strings.Map(func(r rune) rune {
		if r == '_' || r == '-' {
			return ' '
		}
		return r
	}, lowered)

	tokens := make(map[string]struct{})
	for _, tok := range tokenRegex.FindAllString(lowered, -1) {
		tokens[tok] = struct{}{}
	}
	return tokens
}

func overlapCount(a, b map[string]struct{}) int {
	count := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			count++
		}
	}
	return count
}

// Options tunes the retriever's selection limits and enable switch.
type Options struct {
	Enabled            bool
	MaxTables          int
	MaxColumnsPerTable int
	MaxJoinPaths       int
}

// PartialIntent carries the clarification-derived hints the scorer can use
// to boost tables already implicated by a prior, incomplete parse.
type PartialIntent struct {
	Tables []string
	Metric string
}

// Context is the filtered Knowledge Base slice handed to the prompt builder.
type Context struct {
	SchemaName    string                     `json:"schema_name"`
	Tables        map[string]*SelectedTable  `json:"tables"`
	JoinPaths     map[string]*types.JoinPath `json:"join_paths"`
	FKEdges       []types.FKEdge             `json:"fk_edges"`
	QueryPolicies MinimalPolicies            `json:"query_policies"`
	RetrievalMeta RetrievalMetadata          `json:"retrieval_metadata"`
}

// SelectedTable is the trimmed per-table view included in retrieval output.
type SelectedTable struct {
	Schema              string             `json:"schema"`
	Table               string             `json:"table"`
	SchemaQualifiedName string             `json:"schema_qualified_name"`
	Columns             []types.Column     `json:"columns"`
	PrimaryKey          []string           `json:"primary_keys"`
	ForeignKeys         []types.ForeignKey `json:"foreign_keys"`
	DateColumns         []string           `json:"date_columns"`
	NaturalKeyColumns   []string           `json:"natural_key_columns"`
	Domain              string             `json:"domain"`
	Semantic            SelectedSemantic   `json:"semantic"`
}

// SelectedSemantic is the trimmed semantic block included per selected table.
type SelectedSemantic struct {
	Purpose            string            `json:"purpose"`
	Aliases            []string          `json:"aliases"`
	DefaultFilters     map[string]string `json:"default_filters,omitempty"`
	RecommendedMetrics []string          `json:"recommended_metrics,omitempty"`
	BusinessRules      []string          `json:"business_rules,omitempty"`
}

// MinimalPolicies is a trimmed view of query policies, omitting the full
// blocked-function/blocked-pattern lists to keep the prompt compact.
type MinimalPolicies struct {
	DefaultLimit            int `json:"default_limit"`
	MaxLimit                int `json:"max_limit"`
	MaxJoinDepth            int `json:"max_join_depth"`
	StatementTimeoutSeconds int `json:"statement_timeout_seconds"`
	BlockedFunctionsCount   int `json:"blocked_functions_count"`
	BlockedPatternsCount    int `json:"blocked_patterns_count"`
}

// RetrievalMetadata reports what the retriever actually selected, for
// logging and for the prompt builder's own bookkeeping.
type RetrievalMetadata struct {
	TotalTablesSelected    int     `json:"total_tables_selected"`
	TotalColumnsSelected   int     `json:"total_columns_selected"`
	TotalJoinPaths         int     `json:"total_join_paths"`
	RAGEnabled             bool    `json:"rag_enabled"`
	ContextTablesHintCount int     `json:"context_tables_hint_count"`
	Fallback               bool    `json:"fallback"`
	DurationMS             float64 `json:"duration_ms"`
}

// Retriever selects a minimal, relevant slice of a Compiled Rules snapshot.
type Retriever struct {
	opts Options
}

// New constructs a Retriever with the given selection limits.
func New(opts Options) *Retriever {
	return &Retriever{opts: opts}
}

// Retrieve scores every table in rules against the question (plus an
// optional clarification answer), selects the top-scoring tables and their
// most relevant columns, and filters join paths down to ones connecting
// only selected tables.
func (r *Retriever) Retrieve(question string, rules *types.CompiledRules, contextTableHints []string, partialIntent *PartialIntent, clarificationAnswer string) *Context {
	start := time.Now()

	if !r.opts.Enabled {
		ctx := r.minimalFallback(rules)
		ctx.RetrievalMeta.DurationMS = msSince(start)
		return ctx
	}

	combined := question
	if clarificationAnswer != "" {
		combined = question + " " + clarificationAnswer
	}
	questionTokens := TokenizeText(combined)

	contextTables := make(map[string]struct{}, len(contextTableHints)*2)
	for _, t := range contextTableHints {
		if t == "" {
			continue
		}
		contextTables[t] = struct{}{}
		if idx := strings.LastIndexByte(t, '.'); idx >= 0 {
			contextTables[t[idx+1:]] = struct{}{}
		}
	}

	type scored struct {
		score float64
		key   string
		table *types.Table
	}

	keys := make([]string, 0, len(rules.Tables))
	for k := range rules.Tables {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	results := make([]scored, 0, len(keys))
	for _, key := range keys {
		table := rules.Tables[key]
		results = append(results, scored{
			score: scoreTable(table, key, questionTokens, contextTables, partialIntent),
			key:   key,
			table: table,
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].score > results[j].score })

	maxTables := r.opts.MaxTables
	if maxTables > len(results) {
		maxTables = len(results)
	}
	top := results[:maxTables]

	selectedTables := make(map[string]*SelectedTable, len(top))
	selectedNames := make(map[string]struct{}, len(top)*2)
	totalColumns := 0

	for _, s := range top {
		selectedNames[s.key] = struct{}{}
		if s.table.Name != "" {
			selectedNames[s.table.Name] = struct{}{}
		}

		fkCols := make(map[string]struct{}, len(s.table.ForeignKeys))
		for _, fk := range s.table.ForeignKeys {
			fkCols[fk.Column] = struct{}{}
		}
		cols := selectTopColumns(s.table.Columns, questionTokens, s.table.PrimaryKey, fkCols, r.opts.MaxColumnsPerTable)
		totalColumns += len(cols)

		selectedTables[s.key] = &SelectedTable{
			Schema:              s.table.Schema,
			Table:               s.table.Name,
			SchemaQualifiedName: s.key,
			Columns:             cols,
			PrimaryKey:          s.table.PrimaryKey,
			ForeignKeys:         s.table.ForeignKeys,
			DateColumns:         s.table.DateColumns,
			NaturalKeyColumns:   s.table.NaturalKeyColumns,
			Domain:              s.table.Domain,
			Semantic: SelectedSemantic{
				Purpose:            s.table.Semantic.Purpose,
				Aliases:            s.table.Semantic.Aliases,
				DefaultFilters:      s.table.Semantic.DefaultFilters,
				RecommendedMetrics: s.table.Semantic.RecommendedMetrics,
				BusinessRules:      s.table.Semantic.BusinessRules,
			},
		}
	}

	joinPaths := filterJoinPaths(rules.JoinPaths, selectedNames, r.opts.MaxJoinPaths)

	policy := rules.QueryPolicies
	return &Context{
		SchemaName: rules.SchemaName,
		Tables:     selectedTables,
		JoinPaths:  joinPaths,
		FKEdges:    rules.FKEdges,
		QueryPolicies: MinimalPolicies{
			DefaultLimit:            policy.DefaultLimit,
			MaxLimit:                policy.MaxLimit,
			MaxJoinDepth:            policy.MaxJoinDepth,
			StatementTimeoutSeconds: policy.StatementTimeoutSeconds,
			BlockedFunctionsCount:   len(policy.BlockedFunctions),
			BlockedPatternsCount:    len(policy.BlockedPatterns),
		},
		RetrievalMeta: RetrievalMetadata{
			TotalTablesSelected:    len(selectedTables),
			TotalColumnsSelected:   totalColumns,
			TotalJoinPaths:         len(joinPaths),
			RAGEnabled:             true,
			ContextTablesHintCount: len(contextTables),
			DurationMS:             msSince(start),
		},
	}
}

func scoreTable(table *types.Table, key string, questionTokens, contextTables map[string]struct{}, partialIntent *PartialIntent) float64 {
	score := 0.0

	tableTokens := TokenizeText(table.Name)
	if overlap := overlapCount(questionTokens, tableTokens); overlap > 0 {
		score += weightTableName * float64(overlap)
	}

	for _, alias := range table.Semantic.Aliases {
		if overlap := overlapCount(questionTokens, TokenizeText(alias)); overlap > 0 {
			score += weightAlias * float64(overlap)
		}
	}

	matchedColumns := 0
	for _, col := range table.Columns {
		if overlapCount(questionTokens, TokenizeText(col.Name)) > 0 {
			matchedColumns++
		}
	}
	score += weightColumn * float64(matchedColumns)

	if _, ok := contextTables[key]; ok {
		score += weightContext
	} else if _, ok := contextTables[table.Name]; ok {
		score += weightContext
	}

	if partialIntent != nil {
		for _, t := range partialIntent.Tables {
			if t == table.Name || t == key {
				score += weightIntentTable
				break
			}
		}
		if partialIntent.Metric != "" {
			if overlapCount(tableTokens, TokenizeText(partialIntent.Metric)) > 0 {
				score += weightIntentMetric
			}
		}
	}

	return score
}

// selectTopColumns always keeps PK/FK columns, then fills the remaining
// budget with the highest question-token-overlap regular columns, in a
// stable sort (ties keep catalog ordinal order).
func selectTopColumns(columns []types.Column, questionTokens map[string]struct{}, pk []string, fkCols map[string]struct{}, maxColumns int) []types.Column {
	pkSet := make(map[string]struct{}, len(pk))
	for _, p := range pk {
		pkSet[p] = struct{}{}
	}

	var pkFk, regular []types.Column
	for _, col := range columns {
		if _, ok := pkSet[col.Name]; ok {
			pkFk = append(pkFk, col)
			continue
		}
		if _, ok := fkCols[col.Name]; ok {
			pkFk = append(pkFk, col)
			continue
		}
		regular = append(regular, col)
	}

	type scoredCol struct {
		relevance int
		col       types.Column
	}
	scoredRegular := make([]scoredCol, len(regular))
	for i, col := range regular {
		scoredRegular[i] = scoredCol{relevance: overlapCount(questionTokens, TokenizeText(col.Name)), col: col}
	}
	sort.SliceStable(scoredRegular, func(i, j int) bool { return scoredRegular[i].relevance > scoredRegular[j].relevance })

	selected := append([]types.Column{}, pkFk...)
	remaining := maxColumns - len(selected)
	if remaining < 0 {
		remaining = 0
	}
	for i := 0; i < remaining && i < len(scoredRegular); i++ {
		selected = append(selected, scoredRegular[i].col)
	}
	return selected
}

// filterJoinPaths keeps only paths whose endpoints are both in the selected
// table set, stopping once maxPaths is reached (iteration order follows the
// sorted path-key slice, so the cut is deterministic).
func filterJoinPaths(all map[string]*types.JoinPath, selected map[string]struct{}, maxPaths int) map[string]*types.JoinPath {
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]*types.JoinPath)
	for _, k := range keys {
		path := all[k]
		_, fromOK := selected[path.From]
		_, toOK := selected[path.To]
		if fromOK && toOK {
			out[k] = path
			if len(out) >= maxPaths {
				break
			}
		}
	}
	return out
}

// minimalFallback returns a safe, low-content context used when RAG is
// disabled, capped at 5 tables and 10 columns per table with no join paths.
// Retrieve has no error path that falls back to it.
func (r *Retriever) minimalFallback(rules *types.CompiledRules) *Context {
	keys := make([]string, 0, len(rules.Tables))
	for k := range rules.Tables {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > 5 {
		keys = keys[:5]
	}

	tables := make(map[string]*SelectedTable, len(keys))
	for _, k := range keys {
		table := rules.Tables[k]
		cols := table.Columns
		if len(cols) > 10 {
			cols = cols[:10]
		}
		tables[k] = &SelectedTable{
			Schema:              table.Schema,
			Table:               table.Name,
			SchemaQualifiedName: k,
			Columns:             cols,
			PrimaryKey:          table.PrimaryKey,
			ForeignKeys:         table.ForeignKeys,
			DateColumns:         table.DateColumns,
			NaturalKeyColumns:   table.NaturalKeyColumns,
		}
	}

	return &Context{
		SchemaName: rules.SchemaName,
		Tables:     tables,
		JoinPaths:  map[string]*types.JoinPath{},
		FKEdges:    rules.FKEdges,
		QueryPolicies: MinimalPolicies{
			DefaultLimit: 200,
			MaxLimit:     2000,
		},
		RetrievalMeta: RetrievalMetadata{
			TotalTablesSelected: len(tables),
			RAGEnabled:          false,
			Fallback:            true,
		},
	}
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
