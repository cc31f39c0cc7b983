// Copyright (c) 2026 Ledger QL. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package joingraph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerql/gateway/internal/kb/joingraph"
	"github.com/ledgerql/gateway/internal/kb/types"
)

func threeTableSchema() *types.KBSchema {
	return &types.KBSchema{
		Tables: map[string]*types.Table{
			"public.loans": {
				Schema: "public", Name: "loans",
				ForeignKeys: []types.ForeignKey{
					{Table: "loans", Column: "borrower_id", ReferencedSchema: "public", ReferencedTable: "borrowers", ReferencedColumn: "id"},
				},
			},
			"public.borrowers": {Schema: "public", Name: "borrowers"},
			"public.payments": {
				Schema: "public", Name: "payments",
				ForeignKeys: []types.ForeignKey{
					{Table: "payments", Column: "loan_id", ReferencedSchema: "public", ReferencedTable: "loans", ReferencedColumn: "id"},
				},
			},
		},
	}
}

func TestBuildFKGraph_Bidirectional(t *testing.T) {
	b := joingraph.New(threeTableSchema())
	b.BuildFKGraph()

	graph := b.JoinGraph()
	assert.Contains(t, graph["public.loans"], "public.borrowers")
	assert.Contains(t, graph["public.borrowers"], "public.loans")
	assert.Contains(t, graph["public.loans"], "public.payments")
	assert.Contains(t, graph["public.payments"], "public.loans")
}

func TestGetFKEdges_BothDirections(t *testing.T) {
	b := joingraph.New(threeTableSchema())
	b.BuildFKGraph()

	edges := b.GetFKEdges()
	require.Len(t, edges, 4)
	for _, e := range edges {
		assert.NotEqual(t, e.FromTable, e.ToTable)
	}
}

func TestComputeJoinPaths_FindsTransitivePath(t *testing.T) {
	b := joingraph.New(threeTableSchema())
	b.BuildFKGraph()

	paths := b.ComputeJoinPaths(4)
	path, ok := paths["public.payments->public.borrowers"]
	require.True(t, ok, "expected a path from payments to borrowers via loans")
	assert.Equal(t, 2, path.Depth)
	assert.Equal(t, []string{"public.payments", "public.loans", "public.borrowers"}, path.Nodes)
}

func TestComputeJoinPaths_RespectsMaxDepth(t *testing.T) {
	b := joingraph.New(threeTableSchema())
	b.BuildFKGraph()

	paths := b.ComputeJoinPaths(1)
	_, ok := paths["public.payments->public.borrowers"]
	assert.False(t, ok, "path of depth 2 should be excluded when maxDepth is 1")
}

func TestDeterministicAcrossRuns(t *testing.T) {
	schema := threeTableSchema()

	first := joingraph.New(schema)
	first.BuildFKGraph()
	firstPaths := first.ComputeJoinPaths(4)

	second := joingraph.New(schema)
	second.BuildFKGraph()
	secondPaths := second.ComputeJoinPaths(4)

	assert.Equal(t, firstPaths["public.payments->public.borrowers"].Nodes, secondPaths["public.payments->public.borrowers"].Nodes)
}
