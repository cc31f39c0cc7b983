// Copyright (c) 2026 Ledger QL. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package resolver_test

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerql/gateway/internal/convo"
	"github.com/ledgerql/gateway/internal/convo/resolver"
	"github.com/ledgerql/gateway/internal/convo/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolve_NoHistoryIsNew(t *testing.T) {
	r := resolver.New(session.New(5), testLogger())
	result := r.Resolve("s1", "how many loans are overdue")
	assert.Equal(t, convo.ContinuationNew, result.ContinuationType)
	assert.False(t, result.IsRelated)
}

func TestResolve_HistoryWithoutSQLIsNew(t *testing.T) {
	s := session.New(5)
	s.AddTurn("s1", convo.Turn{Question: "first"})
	r := resolver.New(s, testLogger())

	result := r.Resolve("s1", "sort by amount")
	assert.Equal(t, convo.ContinuationNew, result.ContinuationType)
}

func TestResolve_LimitChangeIsRefine(t *testing.T) {
	s := session.New(5)
	s.AddTurn("s1", convo.Turn{Question: "top borrowers by balance", SQL: "SELECT 1"})
	r := resolver.New(s, testLogger())

	result := r.Resolve("s1", "make it 20")
	require.True(t, result.IsRelated)
	assert.Equal(t, convo.ContinuationRefine, result.ContinuationType)
	assert.Equal(t, "limit_change", result.RefinementInstruction)
	assert.NotNil(t, result.AnchorTurn)
}

func TestResolve_BareNumberIsLimitRefine(t *testing.T) {
	s := session.New(5)
	s.AddTurn("s1", convo.Turn{Question: "top borrowers", SQL: "SELECT 1"})
	r := resolver.New(s, testLogger())

	result := r.Resolve("s1", "10")
	assert.Equal(t, convo.ContinuationRefine, result.ContinuationType)
	assert.Equal(t, "limit_change", result.RefinementInstruction)
}

func TestResolve_ShowMeNumberWithTrailingWordIsNotLimitRefine(t *testing.T) {
	s := session.New(5)
	s.AddTurn("s1", convo.Turn{Question: "top borrowers", SQL: "SELECT 1"})
	r := resolver.New(s, testLogger())

	result := r.Resolve("s1", "show me 10 borrowers")
	assert.NotEqual(t, "limit_change", result.RefinementInstruction)
}

func TestResolve_PronounIsDrilldown(t *testing.T) {
	s := session.New(5)
	s.AddTurn("s1", convo.Turn{Question: "list overdue loans", SQL: "SELECT 1"})
	r := resolver.New(s, testLogger())

	result := r.Resolve("s1", "what branch are they in")
	assert.Equal(t, convo.ContinuationDrilldown, result.ContinuationType)
}

func TestResolve_ReferentialIsRefine(t *testing.T) {
	s := session.New(5)
	s.AddTurn("s1", convo.Turn{Question: "total loans by branch", SQL: "SELECT 1"})
	r := resolver.New(s, testLogger())

	result := r.Resolve("s1", "what about last quarter")
	assert.Equal(t, convo.ContinuationRefine, result.ContinuationType)
}

func TestResolve_UnrelatedQuestionIsNew(t *testing.T) {
	s := session.New(5)
	s.AddTurn("s1", convo.Turn{Question: "total loans by branch", SQL: "SELECT 1"})
	r := resolver.New(s, testLogger())

	result := r.Resolve("s1", "list all field officers")
	assert.Equal(t, convo.ContinuationNew, result.ContinuationType)
}

func TestNormalizeQuestion_StripsSmartQuotesAndPunctuation(t *testing.T) {
	got := resolver.NormalizeQuestion("  “how many loans?”  ")
	assert.Equal(t, `how many loans`, got)
}

func TestResolve_PreservesAnchorDimensions(t *testing.T) {
	s := session.New(5)
	subject := "loans"
	s.AddTurn("s1", convo.Turn{
		Question: "total loans by branch",
		SQL:      "SELECT 1",
		IntentSummary: convo.IntentSummary{
			Subject: &subject,
			Tables:  []string{"public.loans"},
		},
	})
	r := resolver.New(s, testLogger())

	result := r.Resolve("s1", "now sort by amount desc")
	require.Equal(t, convo.ContinuationRefine, result.ContinuationType)
	require.NotNil(t, result.PreservedDimensions.Subject)
	assert.Equal(t, "loans", *result.PreservedDimensions.Subject)
	assert.Equal(t, []string{"public.loans"}, result.PreservedDimensions.Tables)
}
