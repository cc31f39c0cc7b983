// Copyright (c) 2026 Ledger QL. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package validator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerql/gateway/internal/kb/types"
	"github.com/ledgerql/gateway/internal/validator"
)

func sampleRules() *types.CompiledRules {
	return &types.CompiledRules{
		Version:    "1",
		SchemaName: "core",
		Tables: map[string]*types.Table{
			"core.loans":     {Schema: "core", Name: "loans"},
			"core.borrowers": {Schema: "core", Name: "borrowers"},
			"core.branches":  {Schema: "core", Name: "branches"},
		},
		FKEdges: []types.FKEdge{
			{FromTable: "core.loans", FromColumn: "borrower_id", ToTable: "core.borrowers", ToColumn: "id"},
			{FromTable: "core.borrowers", FromColumn: "id", ToTable: "core.loans", ToColumn: "borrower_id"},
		},
		QueryPolicies: types.QueryPolicies{
			DefaultLimit:     50,
			MaxLimit:         500,
			MaxJoinDepth:     3,
			HardCapJoinDepth: 5,
			DeepJoinThreshold: 4,
			RequireWhereForDeepJoins: true,
			BlockedFunctions: []string{"pg_sleep"},
			BlockedPatterns:  []string{"INSERT", "DELETE", "DROP"},
			AllowedSchemas:   []string{"core"},
		},
	}
}

func TestValidate_RejectsEmptySQL(t *testing.T) {
	result := validator.Validate("   ", sampleRules())
	require.False(t, result.Valid)
	assert.Contains(t, result.FailureReasons, validator.ReasonEmptySQL)
}

func TestValidate_RejectsUnparseable(t *testing.T) {
	result := validator.Validate("SELECT * FRO loans", sampleRules())
	require.False(t, result.Valid)
	assert.Contains(t, result.FailureReasons, validator.ReasonParseError)
}

func TestValidate_RejectsNonSelect(t *testing.T) {
	result := validator.Validate("DELETE FROM core.loans", sampleRules())
	require.False(t, result.Valid)
	assert.Contains(t, result.FailureReasons, validator.ReasonNotSelect)
}

func TestValidate_RejectsMultiStatementWithBlockedKeyword(t *testing.T) {
	result := validator.Validate("SELECT * FROM core.loans; DROP TABLE core.loans", sampleRules())
	require.False(t, result.Valid)
	assert.Contains(t, result.FailureReasons, validator.ReasonMultiStatement)
}

func TestValidate_RejectsSchemaNotAllowed(t *testing.T) {
	result := validator.Validate("SELECT * FROM public.loans", sampleRules())
	require.False(t, result.Valid)
	assert.Contains(t, result.FailureReasons, validator.ReasonSchemaNotAllowed)
}

func TestValidate_RejectsUnknownTable(t *testing.T) {
	result := validator.Validate("SELECT * FROM core.nonexistent", sampleRules())
	require.False(t, result.Valid)
	assert.Contains(t, result.FailureReasons, validator.ReasonTableNotFound)
}

func TestValidate_WarnsOnUnqualifiedTable(t *testing.T) {
	result := validator.Validate("SELECT * FROM loans", sampleRules())
	require.True(t, result.Valid)
	assert.NotEmpty(t, result.Warnings)
}

func TestValidate_RejectsBlockedFunction(t *testing.T) {
	result := validator.Validate("SELECT pg_sleep(1) FROM core.loans", sampleRules())
	require.False(t, result.Valid)
	assert.Contains(t, result.FailureReasons, validator.ReasonBlockedFunctions)
}

func TestValidate_RejectsCrossJoin(t *testing.T) {
	result := validator.Validate("SELECT * FROM core.loans CROSS JOIN core.borrowers", sampleRules())
	require.False(t, result.Valid)
	assert.Contains(t, result.FailureReasons, validator.ReasonBlockedJoinType)
}

func TestValidate_RejectsJoinOnUnrelatedColumns(t *testing.T) {
	sql := "SELECT * FROM core.loans JOIN core.borrowers ON core.loans.id = core.borrowers.name"
	result := validator.Validate(sql, sampleRules())
	require.False(t, result.Valid)
	assert.Contains(t, result.FailureReasons, validator.ReasonInvalidJoinOn)
}

func TestValidate_AcceptsValidJoinOnFK(t *testing.T) {
	sql := "SELECT * FROM core.loans JOIN core.borrowers ON core.loans.borrower_id = core.borrowers.id"
	result := validator.Validate(sql, sampleRules())
	require.True(t, result.Valid)
	assert.Contains(t, result.SQL, "LIMIT 50")
}

func TestValidate_InjectsDefaultLimitWhenMissing(t *testing.T) {
	result := validator.Validate("SELECT * FROM core.loans", sampleRules())
	require.True(t, result.Valid)
	assert.Contains(t, result.SQL, "LIMIT 50")
	assert.NotEmpty(t, result.Warnings)
}

func TestValidate_CapsLimitOverMax(t *testing.T) {
	result := validator.Validate("SELECT * FROM core.loans LIMIT 10000", sampleRules())
	require.True(t, result.Valid)
	assert.Contains(t, result.SQL, "LIMIT 500")
}

func TestValidate_ProducesSafetyExplanationWhenValid(t *testing.T) {
	result := validator.Validate("SELECT * FROM core.loans LIMIT 10", sampleRules())
	require.True(t, result.Valid)
	assert.NotEmpty(t, result.SafetyExplanation)
}

func TestValidate_AllowsCTEWithoutFKCheck(t *testing.T) {
	sql := "WITH recent AS (SELECT id FROM core.loans) SELECT * FROM recent"
	result := validator.Validate(sql, sampleRules())
	assert.True(t, result.Valid)
}
