// Copyright (c) 2026 Ledger QL. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package joingraph builds the bidirectional, column-correct foreign-key graph
over a KB schema and computes all-pairs shortest join paths up to a depth
cutoff via breadth-first search.

Table iteration is always over a sorted key slice, never a raw map range, so
that BFS tie-breaking (first path discovered wins) is deterministic across
runs given the same schema.
*/
package joingraph

import (
	"sort"

	"github.com/ledgerql/gateway/internal/kb/types"
)

// edge is one directed, column-correct hop in the adjacency list.
type edge struct {
	to     string
	column string
	refCol string
}

// Builder constructs the join graph and its derived artifacts from a KB schema.
type Builder struct {
	schema       *types.KBSchema
	adjacency    map[string][]edge
	sortedTables []string
}

// New constructs a Builder for the given schema.
func New(schema *types.KBSchema) *Builder {
	return &Builder{schema: schema}
}

// BuildFKGraph constructs the directed adjacency list. For every declared
// foreign key it inserts two edges: child->parent with (fk_column,
// ref_column) as declared, and parent->child with the columns swapped, so
// that traversal is bidirectional but every edge remains a legal predicate
// "from.column = to.ref_column".
func (b *Builder) BuildFKGraph() {
	keys := make([]string, 0, len(b.schema.Tables))
	for k := range b.schema.Tables {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b.sortedTables = keys

	adjacency := make(map[string][]edge, len(keys))
	for _, k := range keys {
		adjacency[k] = nil
	}

	for _, key := range keys {
		table := b.schema.Tables[key]
		for _, fk := range table.ForeignKeys {
			childKey := table.Key()
			parentKey := fk.ReferencedSchema + "." + fk.ReferencedTable
			if _, ok := b.schema.Tables[parentKey]; !ok {
				continue
			}
			adjacency[childKey] = append(adjacency[childKey], edge{to: parentKey, column: fk.Column, refCol: fk.ReferencedColumn})
			adjacency[parentKey] = append(adjacency[parentKey], edge{to: childKey, column: fk.ReferencedColumn, refCol: fk.Column})
		}
	}

	// Keep adjacency lists in a stable order too.
	for k := range adjacency {
		list := adjacency[k]
		sort.Slice(list, func(i, j int) bool {
			if list[i].to != list[j].to {
				return list[i].to < list[j].to
			}
			return list[i].column < list[j].column
		})
		adjacency[k] = list
	}

	b.adjacency = adjacency
}

// GetFKEdges returns the flat FK edge list stored on [types.CompiledRules]:
// for every declared foreign key, the child->parent edge followed by its
// parent->child reverse.
func (b *Builder) GetFKEdges() []types.FKEdge {
	var out []types.FKEdge
	for _, key := range b.sortedTables {
		table := b.schema.Tables[key]
		for _, fk := range table.ForeignKeys {
			parentKey := fk.ReferencedSchema + "." + fk.ReferencedTable
			if _, ok := b.schema.Tables[parentKey]; !ok {
				continue
			}
			out = append(out, types.FKEdge{
				FromTable:  table.Key(),
				FromColumn: fk.Column,
				ToTable:    parentKey,
				ToColumn:   fk.ReferencedColumn,
			}, types.FKEdge{
				FromTable:  parentKey,
				FromColumn: fk.ReferencedColumn,
				ToTable:    table.Key(),
				ToColumn:   fk.Column,
			})
		}
	}
	return out
}

// JoinGraph returns the adjacency list in the serializable shape stored on
// [types.CompiledRules] (table -> list of reachable neighbor tables).
func (b *Builder) JoinGraph() map[string][]string {
	out := make(map[string][]string, len(b.adjacency))
	for k, edges := range b.adjacency {
		neighbors := make([]string, 0, len(edges))
		for _, e := range edges {
			neighbors = append(neighbors, e.to)
		}
		out[k] = neighbors
	}
	return out
}

// ComputeJoinPaths runs single-source BFS from every table, bounded by
// maxDepth hops, and records the shortest path (by hop count) to every
// other reachable table.
func (b *Builder) ComputeJoinPaths(maxDepth int) map[string]*types.JoinPath {
	paths := make(map[string]*types.JoinPath)

	for _, source := range b.sortedTables {
		visited := map[string]bool{source: true}
		type queueItem struct {
			node  string
			nodes []string
			edges []types.PathEdge
		}
		queue := []queueItem{{node: source, nodes: []string{source}}}

		for len(queue) > 0 {
			item := queue[0]
			queue = queue[1:]

			if len(item.nodes)-1 >= maxDepth {
				continue
			}

			for _, e := range b.adjacency[item.node] {
				if visited[e.to] {
					continue
				}
				visited[e.to] = true

				nodes := append(append([]string{}, item.nodes...), e.to)
				edges := append(append([]types.PathEdge{}, item.edges...), types.PathEdge{
					From: item.node, To: e.to, Column: e.column, RefCol: e.refCol,
				})

				if e.to != source {
					key := source + "->" + e.to
					paths[key] = &types.JoinPath{
						From: source, To: e.to, Nodes: nodes, Edges: edges, Depth: len(nodes) - 1,
					}
				}
				queue = append(queue, queueItem{node: e.to, nodes: nodes, edges: edges})
			}
		}
	}

	return paths
}
