// Copyright (c) 2026 Ledger QL. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package joins_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerql/gateway/internal/kb/types"
	"github.com/ledgerql/gateway/internal/validator/ast"
	"github.com/ledgerql/gateway/internal/validator/joins"
)

func sampleRules() *types.CompiledRules {
	return &types.CompiledRules{
		FKEdges: []types.FKEdge{
			{FromTable: "public.loans", FromColumn: "borrower_id", ToTable: "public.borrowers", ToColumn: "id"},
			{FromTable: "public.borrowers", FromColumn: "id", ToTable: "public.loans", ToColumn: "borrower_id"},
		},
	}
}

func TestReachable_DirectEdge(t *testing.T) {
	g := joins.BuildGraph(sampleRules())
	assert.True(t, g.Reachable("public.loans", "public.borrowers"))
}

func TestReachable_NoPath(t *testing.T) {
	g := joins.BuildGraph(sampleRules())
	assert.False(t, g.Reachable("public.loans", "public.audit_log"))
}

func TestValidatePathReachability_AllConnected(t *testing.T) {
	g := joins.BuildGraph(sampleRules())
	err := joins.ValidatePathReachability(g, []string{"public.loans", "public.borrowers"})
	assert.NoError(t, err)
}

func TestValidatePathReachability_Disconnected(t *testing.T) {
	g := joins.BuildGraph(sampleRules())
	err := joins.ValidatePathReachability(g, []string{"public.loans", "public.audit_log"})
	assert.Error(t, err)
}

func TestValidateJoinOnFK_AcceptsMatchingCondition(t *testing.T) {
	result, err := ast.Parse("SELECT * FROM loans JOIN borrowers ON loans.borrower_id = borrowers.id")
	require.NoError(t, err)
	stmt, err := ast.SelectOnly(result)
	require.NoError(t, err)
	astJoins := ast.ExtractJoins(stmt)

	g := joins.BuildGraph(sampleRules())
	aliasMap := joins.AliasMap{"loans": "public.loans", "borrowers": "public.borrowers"}
	problems := joins.ValidateJoinOnFK(g, astJoins, aliasMap, map[string]struct{}{})
	assert.Empty(t, problems)
}

func TestValidateJoinOnFK_RejectsUnrelatedCondition(t *testing.T) {
	result, err := ast.Parse("SELECT * FROM loans JOIN borrowers ON loans.status = borrowers.name")
	require.NoError(t, err)
	stmt, err := ast.SelectOnly(result)
	require.NoError(t, err)
	astJoins := ast.ExtractJoins(stmt)

	g := joins.BuildGraph(sampleRules())
	aliasMap := joins.AliasMap{"loans": "public.loans", "borrowers": "public.borrowers"}
	problems := joins.ValidateJoinOnFK(g, astJoins, aliasMap, map[string]struct{}{})
	assert.NotEmpty(t, problems)
}

func TestValidateJoinOnFK_SkipsCTESide(t *testing.T) {
	g := joins.BuildGraph(sampleRules())
	astJoins := []ast.Join{{LeftTable: "recent", RightTable: "borrowers", OnCondition: "recent.id = borrowers.id"}}
	aliasMap := joins.AliasMap{"borrowers": "public.borrowers"}
	problems := joins.ValidateJoinOnFK(g, astJoins, aliasMap, map[string]struct{}{"recent": {}})
	assert.Empty(t, problems)
}

func TestValidateJoinOnFK_FailsClosedOnUnresolvableAlias(t *testing.T) {
	g := joins.BuildGraph(sampleRules())
	astJoins := []ast.Join{{LeftTable: "x", RightTable: "y", OnCondition: "x.a = y.b"}}
	problems := joins.ValidateJoinOnFK(g, astJoins, joins.AliasMap{}, map[string]struct{}{})
	assert.NotEmpty(t, problems)
}
