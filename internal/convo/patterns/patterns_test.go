// Copyright (c) 2026 Ledger QL. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package patterns_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerql/gateway/internal/convo/patterns"
)

func TestDetectRefinement(t *testing.T) {
	tests := []struct {
		question string
		want     string
	}{
		{"make it 20", "limit_change"},
		{"10", "limit_change"},
		{"top 10", "limit_change"},
		{"show me 10 results", "limit_change"},
		{"show me 10 borrowers", ""},
		{"now by outstanding balance", "metric_change"},
		{"sort by amount", "order_change"},
		{"highest balance first", "order_change"},
		{"only active loans", "filter_change"},
		{"last month", "time_window_change"},
		{"in march 2025", "time_window_change"},
		{"in q2 2025", "time_window_change"},
		{"how many borrowers are there", ""},
	}

	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			assert.Equal(t, tt.want, patterns.DetectRefinement(tt.question))
		})
	}
}

func TestIsDrilldown(t *testing.T) {
	assert.True(t, patterns.IsDrilldown("what branch are they in"))
	assert.True(t, patterns.IsDrilldown("show me their balances"))
	assert.False(t, patterns.IsDrilldown("how many loans are overdue"))
}

func TestIsReferential(t *testing.T) {
	assert.True(t, patterns.IsReferential("what about last quarter"))
	assert.True(t, patterns.IsReferential("break down by branch"))
	assert.False(t, patterns.IsReferential("how many loans are overdue"))
}

func TestRewriteLimit_ReplacesExisting(t *testing.T) {
	sql := "SELECT * FROM public.loans LIMIT 50"
	got := patterns.RewriteLimit(sql, 20)
	assert.Equal(t, "SELECT * FROM public.loans LIMIT 20", got)
}

func TestRewriteLimit_AppendsWhenMissing(t *testing.T) {
	got := patterns.RewriteLimit("SELECT 1", 10)
	assert.Equal(t, "SELECT 1\nLIMIT 10", got)
}

func TestParseLimitValue(t *testing.T) {
	tests := []struct {
		question string
		want     int
		ok       bool
	}{
		{"make it 5", 5, true},
		{"10", 10, true},
		{"top 3", 3, true},
		{"limit 7", 7, true},
		{"show 20", 20, true},
		{"how many loans are overdue", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			got, ok := patterns.ParseLimitValue(tt.question)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestRewriteLimit_ReplacesExistingOnUnqualifiedTable(t *testing.T) {
	got := patterns.RewriteLimit("SELECT * FROM loans LIMIT 2", 5)
	assert.Equal(t, "SELECT * FROM loans LIMIT 5", got)
}

func TestRewriteLimit_StripsSemicolonBeforeAppending(t *testing.T) {
	got := patterns.RewriteLimit("SELECT * FROM loans;", 5)
	assert.Equal(t, "SELECT * FROM loans\nLIMIT 5", got)
}

func TestParseOrderClause(t *testing.T) {
	order, ok := patterns.ParseOrderClause("sort by amount desc")
	require.True(t, ok)
	assert.Equal(t, "amount", order.Column)
	assert.Equal(t, "DESC", order.Direction)

	order, ok = patterns.ParseOrderClause("sort by balance")
	require.True(t, ok)
	assert.Equal(t, "DESC", order.Direction)

	_, ok = patterns.ParseOrderClause("how many loans are overdue")
	assert.False(t, ok)
}

func TestRewriteOrder_InsertsBeforeLimit(t *testing.T) {
	got := patterns.RewriteOrder("SELECT * FROM loans LIMIT 5", patterns.OrderClause{Column: "amount", Direction: "DESC"})
	assert.Contains(t, got, "ORDER BY amount DESC")
	assert.True(t, strings.Index(got, "ORDER BY") < strings.Index(got, "LIMIT"))
}

func TestRewriteOrder_ReplacesExisting(t *testing.T) {
	got := patterns.RewriteOrder("SELECT * FROM loans ORDER BY id ASC LIMIT 5", patterns.OrderClause{Column: "amount", Direction: "DESC"})
	assert.Contains(t, got, "ORDER BY amount DESC")
	assert.NotContains(t, got, "ORDER BY id ASC")
}
