// Copyright (c) 2026 Ledger QL. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package ast_test

import (
	"testing"

	pgquery "github.com/pganalyze/pg_query_go/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerql/gateway/internal/validator/ast"
)

func TestParse_RejectsUnparseable(t *testing.T) {
	_, err := ast.Parse("SELECT * FRO loans")
	assert.Error(t, err)
}

func TestIsSingleStatement(t *testing.T) {
	result, err := ast.Parse("SELECT 1; SELECT 2")
	require.NoError(t, err)
	assert.False(t, ast.IsSingleStatement(result))
}

func TestSelectOnly_RejectsNonSelect(t *testing.T) {
	result, err := ast.Parse("DELETE FROM loans")
	require.NoError(t, err)
	_, err = ast.SelectOnly(result)
	assert.Error(t, err)
}

func TestSelectOnly_AllowsCTE(t *testing.T) {
	result, err := ast.Parse("WITH recent AS (SELECT id FROM loans) SELECT * FROM recent")
	require.NoError(t, err)
	stmt, err := ast.SelectOnly(result)
	require.NoError(t, err)
	assert.NotNil(t, stmt)
}

func TestSelectOnly_AllowsUnion(t *testing.T) {
	result, err := ast.Parse("SELECT id FROM loans UNION SELECT id FROM borrowers")
	require.NoError(t, err)
	stmt, err := ast.SelectOnly(result)
	require.NoError(t, err)
	assert.NotNil(t, stmt)
}

func TestExtractTables_IncludesJoinedAndCTETables(t *testing.T) {
	result, err := ast.Parse(
		"WITH recent AS (SELECT id FROM loans) " +
			"SELECT * FROM recent JOIN borrowers ON recent.id = borrowers.id")
	require.NoError(t, err)
	stmt, err := ast.SelectOnly(result)
	require.NoError(t, err)

	tables := ast.ExtractTables(stmt)
	assert.Contains(t, tables, "borrowers")

	ctes := ast.ExtractCTENames(stmt)
	_, ok := ctes["recent"]
	assert.True(t, ok)
}

func TestExtractFunctions_FindsNestedCalls(t *testing.T) {
	result, err := ast.Parse("SELECT COALESCE(pg_sleep(1), 0) FROM loans")
	require.NoError(t, err)
	stmt, err := ast.SelectOnly(result)
	require.NoError(t, err)

	funcs := ast.ExtractFunctions(stmt)
	_, ok := funcs["pg_sleep"]
	assert.True(t, ok)
}

func TestExtractJoins_ReportsJoinType(t *testing.T) {
	result, err := ast.Parse("SELECT * FROM loans LEFT JOIN borrowers ON loans.borrower_id = borrowers.id")
	require.NoError(t, err)
	stmt, err := ast.SelectOnly(result)
	require.NoError(t, err)

	joins := ast.ExtractJoins(stmt)
	require.Len(t, joins, 1)
	assert.Equal(t, "LEFT", joins[0].Type)
}

func TestExtractJoins_DetectsCrossJoin(t *testing.T) {
	result, err := ast.Parse("SELECT * FROM loans CROSS JOIN borrowers")
	require.NoError(t, err)
	stmt, err := ast.SelectOnly(result)
	require.NoError(t, err)

	joins := ast.ExtractJoins(stmt)
	require.Len(t, joins, 1)
	assert.True(t, ast.IsCrossJoin(joins[0]))
}

func TestHasLimit_AndLimitValue(t *testing.T) {
	result, err := ast.Parse("SELECT * FROM loans LIMIT 25")
	require.NoError(t, err)
	stmt, err := ast.SelectOnly(result)
	require.NoError(t, err)

	assert.True(t, ast.HasLimit(stmt))
	v := ast.LimitValue(stmt)
	require.NotNil(t, v)
	assert.Equal(t, 25, *v)
}

func TestHasLimit_FalseWhenAbsent(t *testing.T) {
	result, err := ast.Parse("SELECT * FROM loans")
	require.NoError(t, err)
	stmt, err := ast.SelectOnly(result)
	require.NoError(t, err)

	assert.False(t, ast.HasLimit(stmt))
	assert.Nil(t, ast.LimitValue(stmt))
}

func TestHasWhere(t *testing.T) {
	result, err := ast.Parse("SELECT * FROM loans WHERE status = 'active'")
	require.NoError(t, err)
	stmt, err := ast.SelectOnly(result)
	require.NoError(t, err)
	assert.True(t, ast.HasWhere(stmt))
}

func TestInjectLimit_AppendsWhenMissing(t *testing.T) {
	got := ast.InjectLimit("SELECT * FROM loans", 50)
	assert.Equal(t, "SELECT * FROM loans LIMIT 50", got)
}

func TestInjectLimit_ReplacesExisting(t *testing.T) {
	got := ast.InjectLimit("SELECT * FROM loans LIMIT 500", 50)
	assert.Equal(t, "SELECT * FROM loans LIMIT 50", got)
}

func TestDeparse_RoundTrips(t *testing.T) {
	result, err := ast.Parse("SELECT id FROM loans WHERE status = 'active'")
	require.NoError(t, err)
	sql, err := pgquery.Deparse(result)
	require.NoError(t, err)
	assert.Contains(t, sql, "loans")
}
