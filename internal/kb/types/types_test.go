// Copyright (c) 2026 Ledger QL. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package types_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerql/gateway/internal/kb/types"
)

func validRules() *types.CompiledRules {
	tables := map[string]*types.Table{
		"public.loans":     {Schema: "public", Name: "loans"},
		"public.borrowers": {Schema: "public", Name: "borrowers"},
	}
	return &types.CompiledRules{
		Version:    "1",
		SchemaName: "public",
		Tables:     tables,
		JoinGraph:  map[string][]string{"public.loans": {"public.borrowers"}},
		JoinPaths:  map[string]*types.JoinPath{},
		FKEdges: []types.FKEdge{
			{FromTable: "public.loans", FromColumn: "borrower_id", ToTable: "public.borrowers", ToColumn: "id"},
		},
	}
}

func TestCompiledRules_Validate_OK(t *testing.T) {
	rules := validRules()
	assert.NoError(t, rules.Validate())
}

func TestCompiledRules_Validate_MissingFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*types.CompiledRules)
	}{
		{"missing_version", func(r *types.CompiledRules) { r.Version = "" }},
		{"missing_schema_name", func(r *types.CompiledRules) { r.SchemaName = "" }},
		{"empty_tables", func(r *types.CompiledRules) { r.Tables = nil }},
		{"nil_join_graph", func(r *types.CompiledRules) { r.JoinGraph = nil }},
		{"nil_join_paths", func(r *types.CompiledRules) { r.JoinPaths = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules := validRules()
			tt.mutate(rules)
			require.Error(t, rules.Validate())
		})
	}
}

func TestCompiledRules_Validate_DanglingFKEdge(t *testing.T) {
	rules := validRules()
	rules.FKEdges = append(rules.FKEdges, types.FKEdge{FromTable: "public.ghost", ToTable: "public.loans"})
	require.Error(t, rules.Validate())
}

func TestCompiledRules_Validate_NilFKEdgesBecomesEmptySlice(t *testing.T) {
	rules := validRules()
	rules.FKEdges = nil
	require.NoError(t, rules.Validate())
	assert.NotNil(t, rules.FKEdges)
	assert.Empty(t, rules.FKEdges)
}

func TestTable_Key(t *testing.T) {
	table := types.Table{Schema: "public", Name: "loans"}
	assert.Equal(t, "public.loans", table.Key())
}
