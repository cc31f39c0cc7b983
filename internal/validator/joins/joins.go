// Copyright (c) 2026 Ledger QL. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package joins implements the two join-safety checks of the validation
pipeline that need the published Compiled Rules snapshot rather than a live
schema: join-path reachability over the declared foreign-key graph, and the
requirement that every JOIN ON predicate actually corresponds to a known
foreign key between the two joined tables.
*/
package joins

import (
	"fmt"
	"strings"

	"github.com/ledgerql/gateway/internal/kb/types"
	"github.com/ledgerql/gateway/internal/validator/ast"
)

// Graph is an undirected adjacency view over a Compiled Rules FK edge list,
// built once per validation call from the published snapshot.
type Graph struct {
	adjacency map[string]map[string]struct{}
	edgesByPair map[[2]string][]types.FKEdge
}

// BuildGraph constructs a Graph from rules.FKEdges. FKEdges already contains
// both directions of every declared foreign key, so the adjacency here only
// needs to record presence.
func BuildGraph(rules *types.CompiledRules) *Graph {
	g := &Graph{
		adjacency:   make(map[string]map[string]struct{}),
		edgesByPair: make(map[[2]string][]types.FKEdge),
	}
	for _, e := range rules.FKEdges {
		if g.adjacency[e.FromTable] == nil {
			g.adjacency[e.FromTable] = make(map[string]struct{})
		}
		g.adjacency[e.FromTable][e.ToTable] = struct{}{}
		pair := [2]string{e.FromTable, e.ToTable}
		g.edgesByPair[pair] = append(g.edgesByPair[pair], e)
	}
	return g
}

// Reachable reports whether to is reachable from from via zero or more FK
// hops, via breadth-first search over the undirected adjacency.
func (g *Graph) Reachable(from, to string) bool {
	if from == to {
		return true
	}
	visited := map[string]struct{}{from: {}}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for next := range g.adjacency[cur] {
			if next == to {
				return true
			}
			if _, ok := visited[next]; !ok {
				visited[next] = struct{}{}
				queue = append(queue, next)
			}
		}
	}
	return false
}

// ValidatePathReachability checks that every physical (non-CTE) table
// referenced by the query is mutually reachable via the FK graph, and
// returns an error describing the first disconnected pair found.
func ValidatePathReachability(g *Graph, physicalTables []string) error {
	for i := 0; i < len(physicalTables); i++ {
		for j := i + 1; j < len(physicalTables); j++ {
			if !g.Reachable(physicalTables[i], physicalTables[j]) {
				return fmt.Errorf("no known join path between %s and %s", physicalTables[i], physicalTables[j])
			}
		}
	}
	return nil
}

// AliasMap resolves a table alias (or bare table name) to its fully
// qualified form, as introduced in the query's FROM/JOIN clauses.
type AliasMap map[string]string

// onConditionMatchesFK reports whether condText contains an equality
// comparison whose two sides resolve (through aliasMap) to the column pair
// of a known FK edge between leftTable and rightTable, in either direction.
// A compound AND condition is accepted if any one conjunct matches.
func onConditionMatchesFK(condText string, leftTable, rightTable string, edges []types.FKEdge) bool {
	if condText == "" {
		return false
	}
	conjuncts := strings.Split(condText, " AND ")
	for _, conjunct := range conjuncts {
		conjunct = strings.TrimSpace(strings.Trim(conjunct, "()"))
		for _, e := range edges {
			fromCol := e.FromColumn
			toCol := e.ToColumn
			if columnPairMentioned(conjunct, fromCol, toCol) {
				return true
			}
		}
	}
	return false
}

// columnPairMentioned reports whether conjunct's equality mentions both
// column names, tolerating table/alias qualification on either side
// (qualified_name.column or bare column).
func columnPairMentioned(conjunct, colA, colB string) bool {
	return mentionsColumn(conjunct, colA) && mentionsColumn(conjunct, colB)
}

func mentionsColumn(text, column string) bool {
	lower := strings.ToLower(text)
	column = strings.ToLower(column)
	if strings.Contains(lower, "."+column) {
		return true
	}
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return r == '=' || r == ' ' || r == '(' || r == ')'
	})
	for _, f := range fields {
		if f == column {
			return true
		}
	}
	return false
}

// ValidateJoinOnFK checks every join in joins against the FK graph: the two
// joined tables must share a declared FK edge, and the ON condition must
// reference that edge's columns. A join whose left/right side resolves to a
// CTE name (present in cteNames) is skipped, since CTEs have no FK metadata.
//
// On an internal resolution error (an alias that can't be mapped to a
// physical table) this fails closed: the join is reported as invalid rather
// than silently accepted, since an unverifiable join is indistinguishable
// from an unsafe one from the caller's perspective.
func ValidateJoinOnFK(g *Graph, joins []ast.Join, aliasMap AliasMap, cteNames map[string]struct{}) []string {
	var problems []string
	for _, j := range joins {
		left := resolveAlias(aliasMap, j.LeftTable)
		right := resolveAlias(aliasMap, j.RightTable)

		if isCTE(left, cteNames) || isCTE(right, cteNames) {
			continue
		}

		if left == "" || right == "" {
			problems = append(problems, fmt.Sprintf("join between %s and %s could not be resolved to known tables", j.LeftTable, j.RightTable))
			continue
		}

		edges := g.edgesByPair[[2]string{left, right}]
		if len(edges) == 0 {
			edges = g.edgesByPair[[2]string{right, left}]
		}
		if len(edges) == 0 {
			problems = append(problems, fmt.Sprintf("no foreign key relationship between %s and %s", left, right))
			continue
		}

		if !onConditionMatchesFK(j.OnCondition, left, right, edges) {
			problems = append(problems, fmt.Sprintf("JOIN ON condition between %s and %s does not match a known foreign key", left, right))
		}
	}
	return problems
}

func resolveAlias(aliasMap AliasMap, name string) string {
	if name == "" {
		return ""
	}
	if resolved, ok := aliasMap[strings.ToLower(name)]; ok {
		return resolved
	}
	return name
}

func isCTE(name string, cteNames map[string]struct{}) bool {
	_, ok := cteNames[strings.ToLower(name)]
	return ok
}
