// Copyright (c) 2026 Ledger QL. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package generator_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerql/gateway/internal/convo"
	"github.com/ledgerql/gateway/internal/generator"
	"github.com/ledgerql/gateway/internal/kb/types"
	"github.com/ledgerql/gateway/internal/retrieval"
)

type stubCompleter struct {
	response string
	err      error
	calls    int
}

func (s *stubCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	s.calls++
	return s.response, s.err
}

func sampleRules() *types.CompiledRules {
	return &types.CompiledRules{
		Version:    "v1",
		SchemaName: "core",
		Tables: map[string]*types.Table{
			"core.loans":     {Schema: "core", Name: "loans"},
			"core.borrowers": {Schema: "core", Name: "borrowers"},
			"core.branches":  {Schema: "core", Name: "branches"},
		},
		JoinGraph: map[string][]string{},
		JoinPaths: map[string]*types.JoinPath{},
		QueryPolicies: types.QueryPolicies{
			DefaultLimit: 20,
			MaxLimit:     100,
		},
	}
}

func newTestGenerator(completer *stubCompleter) *generator.Generator {
	r := retrieval.New(retrieval.Options{Enabled: true, MaxTables: 5, MaxColumnsPerTable: 10, MaxJoinPaths: 5})
	return generator.New(r, completer)
}

func TestGenerate_RefusesWriteIntent(t *testing.T) {
	g := newTestGenerator(&stubCompleter{})
	result, err := g.Generate(context.Background(), "delete all inactive loans", sampleRules(), nil, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "read_only_system", result.Refusal)
}

func TestGenerate_AllowsNaturalLanguageChange(t *testing.T) {
	completer := &stubCompleter{response: `{"sql": "SELECT 1", "confidence": 0.9, "tables_used": [], "intent_summary": {}}`}
	g := newTestGenerator(completer)
	result, err := g.Generate(context.Background(), "change the sort order please", sampleRules(), nil, "", nil)
	require.NoError(t, err)
	assert.Empty(t, result.Refusal)
	assert.Equal(t, 1, completer.calls)
}

func TestGenerate_DeterministicLimitRewrite_SkipsLLM(t *testing.T) {
	completer := &stubCompleter{}
	g := newTestGenerator(completer)

	rc := &convo.ResolvedContext{
		IsRelated:             true,
		ContinuationType:      convo.ContinuationRefine,
		RefinementInstruction: "limit_change",
		AnchorTurn: &convo.Turn{
			Question: "top 2 branches",
			SQL:      "SELECT * FROM core.branches LIMIT 2",
		},
	}

	result, err := g.Generate(context.Background(), "make it 5", sampleRules(), rc, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM core.branches LIMIT 5", result.SQL)
	assert.Equal(t, 0.99, result.Confidence)
	assert.Equal(t, 0, completer.calls)
}

func TestGenerate_DeterministicOrderRewrite_SkipsLLM(t *testing.T) {
	completer := &stubCompleter{}
	g := newTestGenerator(completer)

	rc := &convo.ResolvedContext{
		IsRelated:             true,
		ContinuationType:      convo.ContinuationRefine,
		RefinementInstruction: "order_change",
		AnchorTurn: &convo.Turn{
			Question: "top 2 branches",
			SQL:      "SELECT * FROM core.branches LIMIT 2",
		},
	}

	result, err := g.Generate(context.Background(), "sort by amount desc", sampleRules(), rc, "", nil)
	require.NoError(t, err)
	assert.Contains(t, result.SQL, "ORDER BY amount DESC")
	assert.Equal(t, 0, completer.calls)
}

func TestGenerate_ClarificationForVagueNewQuestion(t *testing.T) {
	completer := &stubCompleter{}
	g := newTestGenerator(completer)

	result, err := g.Generate(context.Background(), "show data", sampleRules(), nil, "", nil)
	require.NoError(t, err)
	require.NotNil(t, result.Clarification)
	assert.True(t, result.Clarification.NeedsClarification)
	assert.Equal(t, 0, completer.calls)
}

func TestGenerate_ClarificationForTopBranchesWithoutMetric(t *testing.T) {
	completer := &stubCompleter{}
	g := newTestGenerator(completer)

	result, err := g.Generate(context.Background(), "top branches", sampleRules(), nil, "", nil)
	require.NoError(t, err)
	require.NotNil(t, result.Clarification)
	assert.Equal(t, "branches", result.Clarification.PartialIntent["entity"])
}

func TestGenerate_NoClarificationWhenMetricPresent(t *testing.T) {
	completer := &stubCompleter{response: `{"sql": "SELECT 1", "confidence": 0.9, "tables_used": [], "intent_summary": {}}`}
	g := newTestGenerator(completer)

	result, err := g.Generate(context.Background(), "top branches by outstanding balance", sampleRules(), nil, "", nil)
	require.NoError(t, err)
	assert.Nil(t, result.Clarification)
	assert.Equal(t, 1, completer.calls)
}

func TestGenerate_SkipsClarificationWhenAnswerProvided(t *testing.T) {
	completer := &stubCompleter{response: `{"sql": "SELECT 1", "confidence": 0.9, "tables_used": [], "intent_summary": {}}`}
	g := newTestGenerator(completer)

	result, err := g.Generate(context.Background(), "show data", sampleRules(), nil, "loans, latest 20", nil)
	require.NoError(t, err)
	assert.Nil(t, result.Clarification)
	assert.Equal(t, 1, completer.calls)
}

func TestGenerate_ParsesLLMResponse(t *testing.T) {
	completer := &stubCompleter{response: "```json\n{\"sql\": \"SELECT * FROM core.loans LIMIT 10\", \"confidence\": 0.85, \"tables_used\": [\"core.loans\"], \"intent_summary\": {\"subject\": \"loans\"}}\n```"}
	g := newTestGenerator(completer)

	result, err := g.Generate(context.Background(), "how many loans are overdue", sampleRules(), nil, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM core.loans LIMIT 10", result.SQL)
	assert.Equal(t, 0.85, result.Confidence)
	assert.Equal(t, []string{"core.loans"}, result.TablesUsed)
	assert.True(t, result.UsedLLM)
}

func TestGenerate_ErrorsWhenLLMResponseHasNoJSON(t *testing.T) {
	completer := &stubCompleter{response: "I'm not sure how to answer that."}
	g := newTestGenerator(completer)

	_, err := g.Generate(context.Background(), "how many loans are overdue", sampleRules(), nil, "", nil)
	assert.Error(t, err)
}
