// Copyright (c) 2026 Ledger QL. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package llm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerql/gateway/internal/generator/llm"
)

func TestExtractJSON_PlainObject(t *testing.T) {
	got, err := llm.ExtractJSON(`{"sql": "SELECT 1", "confidence": 0.9}`)
	require.NoError(t, err)
	assert.Equal(t, `{"sql": "SELECT 1", "confidence": 0.9}`, got)
}

func TestExtractJSON_StripsMarkdownFence(t *testing.T) {
	got, err := llm.ExtractJSON("```json\n{\"sql\": \"SELECT 1\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, `{"sql": "SELECT 1"}`, got)
}

func TestExtractJSON_IgnoresBracesInsideStrings(t *testing.T) {
	got, err := llm.ExtractJSON(`{"sql": "SELECT '{not json}'"}`)
	require.NoError(t, err)
	assert.Equal(t, `{"sql": "SELECT '{not json}'"}`, got)
}

func TestExtractJSON_TrailingProseIgnored(t *testing.T) {
	got, err := llm.ExtractJSON(`Here you go: {"sql": "SELECT 1"} Hope that helps!`)
	require.NoError(t, err)
	assert.Equal(t, `{"sql": "SELECT 1"}`, got)
}

func TestExtractJSON_NoObjectReturnsError(t *testing.T) {
	_, err := llm.ExtractJSON("no json here")
	assert.Error(t, err)
}

func TestExtractJSON_NestedObject(t *testing.T) {
	got, err := llm.ExtractJSON(`{"sql": "x", "intent_summary": {"subject": "loans", "grouping": ["a"]}}`)
	require.NoError(t, err)
	assert.Contains(t, got, "intent_summary")
}
