// Copyright (c) 2026 Ledger QL. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package prompt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ledgerql/gateway/internal/convo"
	"github.com/ledgerql/gateway/internal/generator/prompt"
	"github.com/ledgerql/gateway/internal/kb/types"
	"github.com/ledgerql/gateway/internal/retrieval"
)

func sampleKBContext() *retrieval.Context {
	return &retrieval.Context{
		SchemaName: "core",
		Tables: map[string]*retrieval.SelectedTable{
			"core.loans": {
				Schema: "core", Table: "loans", SchemaQualifiedName: "core.loans",
				Columns: []types.Column{
					{Name: "id", DataType: "uuid"},
					{Name: "status", DataType: "text", EnumValues: []string{"active", "closed"}},
				},
				PrimaryKey: []string{"id"},
				ForeignKeys: []types.ForeignKey{
					{Column: "borrower_id", ReferencedSchema: "core", ReferencedTable: "borrowers", ReferencedColumn: "id"},
				},
			},
		},
		FKEdges: []types.FKEdge{
			{FromTable: "core.loans", FromColumn: "borrower_id", ToTable: "core.borrowers", ToColumn: "id"},
		},
		QueryPolicies: retrieval.MinimalPolicies{DefaultLimit: 50, MaxLimit: 500},
	}
}

func TestBuild_IncludesSchemaAndFKEdges(t *testing.T) {
	p := prompt.Build(prompt.Input{
		Question:   "how many loans per borrower",
		SchemaName: "core",
		KBContext:  sampleKBContext(),
	})

	assert.Contains(t, p, "Table: core.loans")
	assert.Contains(t, p, "core.loans.borrower_id = core.borrowers.id")
	assert.Contains(t, p, "active, closed")
	assert.Contains(t, p, "LIMIT")
}

func TestBuild_IncludesResolvedContextWhenRelated(t *testing.T) {
	rc := &convo.ResolvedContext{
		IsRelated:        true,
		ContinuationType: convo.ContinuationRefine,
		RefinementInstruction: "limit_change",
		AnchorTurn:       &convo.Turn{Question: "show top 2 branches", SQL: "SELECT * FROM core.branches LIMIT 2"},
	}
	p := prompt.Build(prompt.Input{
		Question:        "make it 5",
		SchemaName:      "core",
		KBContext:       sampleKBContext(),
		ResolvedContext: rc,
	})

	assert.Contains(t, p, "RESOLVED CONTEXT")
	assert.Contains(t, p, "limit_change")
	assert.Contains(t, p, "Previous SQL: SELECT * FROM core.branches LIMIT 2")
}

func TestBuild_OmitsResolvedContextWhenNotRelated(t *testing.T) {
	p := prompt.Build(prompt.Input{
		Question:   "how many loans are there",
		SchemaName: "core",
		KBContext:  sampleKBContext(),
	})
	assert.NotContains(t, p, "RESOLVED CONTEXT")
}

func TestBuild_IncludesClarificationBlock(t *testing.T) {
	p := prompt.Build(prompt.Input{
		Question:            "show loans",
		SchemaName:          "core",
		KBContext:           sampleKBContext(),
		ClarificationAnswer: "20 latest",
		PartialIntent:       map[string]any{"entity": "loans"},
	})
	assert.Contains(t, p, "User clarification")
	assert.Contains(t, p, "20 latest")
}

func TestBuild_DrilldownIncludesCTETemplate(t *testing.T) {
	rc := &convo.ResolvedContext{
		IsRelated:        true,
		ContinuationType: convo.ContinuationDrilldown,
		AnchorTurn:       &convo.Turn{Question: "show borrowers", SQL: "SELECT * FROM core.borrowers LIMIT 3"},
	}
	p := prompt.Build(prompt.Input{
		Question:        "for those borrowers, show their loans",
		SchemaName:      "core",
		KBContext:       sampleKBContext(),
		ResolvedContext: rc,
	})
	assert.Contains(t, p, "WITH previous_results AS")
}
