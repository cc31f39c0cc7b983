// Copyright (c) 2026 Ledger QL. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package blocked_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerql/gateway/internal/validator/ast"
	"github.com/ledgerql/gateway/internal/validator/blocked"
)

func TestStripLiteralsAndComments(t *testing.T) {
	sql := "SELECT * FROM loans WHERE status = 'DROP TABLE x' -- comment mentioning DELETE\n/* block ALTER */"
	cleaned := blocked.StripLiteralsAndComments(sql)
	assert.NotContains(t, cleaned, "DROP")
	assert.NotContains(t, cleaned, "DELETE")
	assert.NotContains(t, cleaned, "ALTER")
	assert.Contains(t, cleaned, "SELECT")
}

func TestScanKeywords_FindsBlockedWord(t *testing.T) {
	found := blocked.ScanKeywords("SELECT * FROM loans; DROP TABLE loans", []string{"DROP", "INSERT"})
	assert.Contains(t, found, "DROP")
	assert.NotContains(t, found, "INSERT")
}

func TestScanKeywords_IgnoresWordsInsideStrings(t *testing.T) {
	found := blocked.ScanKeywords("SELECT * FROM loans WHERE note = 'please DROP by'", []string{"DROP"})
	assert.Empty(t, found)
}

func TestScanFunctions(t *testing.T) {
	funcs := map[string]struct{}{"pg_sleep": {}, "count": {}}
	found := blocked.ScanFunctions(funcs, []string{"pg_sleep", "pg_terminate_backend"})
	assert.Contains(t, found, "pg_sleep")
	assert.NotContains(t, found, "pg_terminate_backend")
}

func TestScanJoinTypes_RejectsCrossAndNatural(t *testing.T) {
	result, err := ast.Parse("SELECT * FROM loans CROSS JOIN borrowers")
	require.NoError(t, err)
	stmt, err := ast.SelectOnly(result)
	require.NoError(t, err)

	joins := ast.ExtractJoins(stmt)
	found := blocked.ScanJoinTypes(joins)
	assert.Len(t, found, 1)
}

func TestScanJoinTypes_AllowsInnerJoinWithCondition(t *testing.T) {
	result, err := ast.Parse("SELECT * FROM loans JOIN borrowers ON loans.borrower_id = borrowers.id")
	require.NoError(t, err)
	stmt, err := ast.SelectOnly(result)
	require.NoError(t, err)

	joins := ast.ExtractJoins(stmt)
	found := blocked.ScanJoinTypes(joins)
	assert.Empty(t, found)
}
