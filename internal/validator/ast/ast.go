// Copyright (c) 2026 Ledger QL. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package ast wraps pg_query_go to parse a generated SQL statement into a
Postgres-native AST and extract the facts the validator pipeline needs:
referenced tables, functions, joins, CTE names, and LIMIT state. Everything
here is a pure tree walk — no policy decisions live in this package.
*/
package ast

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	pgquery "github.com/pganalyze/pg_query_go/v6"
)

// Join describes one JOIN found anywhere in the statement.
type Join struct {
	Type        string // INNER, LEFT, RIGHT, FULL, CROSS, NATURAL
	LeftTable   string
	RightTable  string
	OnCondition string
	Node        *pgquery.JoinExpr
}

// Parse parses sql with the Postgres grammar. A parse error means the
// statement is rejected outright by the caller.
func Parse(sql string) (*pgquery.ParseResult, error) {
	result, err := pgquery.Parse(sql)
	if err != nil {
		return nil, fmt.Errorf("ast: parse: %w", err)
	}
	return result, nil
}

// IsSingleStatement reports whether result contains exactly one statement.
func IsSingleStatement(result *pgquery.ParseResult) bool {
	return len(result.Stmts) == 1
}

// forbiddenNodeCheck checks the statement's top-level node for any
// statement type outside the read-only SELECT family.
func forbiddenNodeCheck(raw *pgquery.RawStmt) error {
	stmt := raw.Stmt
	switch {
	case stmt.GetInsertStmt() != nil:
		return fmt.Errorf("ast: INSERT is not allowed")
	case stmt.GetUpdateStmt() != nil:
		return fmt.Errorf("ast: UPDATE is not allowed")
	case stmt.GetDeleteStmt() != nil:
		return fmt.Errorf("ast: DELETE is not allowed")
	case stmt.GetMergeStmt() != nil:
		return fmt.Errorf("ast: MERGE is not allowed")
	case stmt.GetCreateStmt() != nil, stmt.GetCreateTableAsStmt() != nil:
		return fmt.Errorf("ast: CREATE is not allowed")
	case stmt.GetDropStmt() != nil:
		return fmt.Errorf("ast: DROP is not allowed")
	case stmt.GetAlterTableStmt() != nil:
		return fmt.Errorf("ast: ALTER is not allowed")
	case stmt.GetTruncateStmt() != nil:
		return fmt.Errorf("ast: TRUNCATE is not allowed")
	case stmt.GetRenameStmt() != nil:
		return fmt.Errorf("ast: RENAME is not allowed")
	case stmt.GetGrantStmt() != nil:
		return fmt.Errorf("ast: GRANT is not allowed")
	case stmt.GetVariableSetStmt() != nil:
		return fmt.Errorf("ast: SET is not allowed")
	case stmt.GetVariableShowStmt() != nil:
		return fmt.Errorf("ast: SHOW is not allowed")
	}
	return nil
}

// SelectOnly walks the full parse result and returns the top-level
// SelectStmt if and only if the statement is exclusively SELECT (plain,
// UNION/INTERSECT/EXCEPT via SelectStmt.Op, or a WITH-bearing SELECT).
// Any forbidden node anywhere in the tree is a rejection.
func SelectOnly(result *pgquery.ParseResult) (*pgquery.SelectStmt, error) {
	if len(result.Stmts) == 0 {
		return nil, fmt.Errorf("ast: empty query")
	}
	raw := result.Stmts[0]

	if err := forbiddenNodeCheck(raw); err != nil {
		return nil, err
	}

	selectStmt := raw.Stmt.GetSelectStmt()
	if selectStmt == nil {
		return nil, fmt.Errorf("ast: only SELECT statements are allowed")
	}
	if selectStmt.WithClause != nil {
		for _, cte := range selectStmt.WithClause.Ctes {
			if c := cte.GetCommonTableExpr(); c != nil && c.Ctequery.GetSelectStmt() == nil {
				return nil, fmt.Errorf("ast: only SELECT is allowed inside WITH")
			}
		}
	}
	return selectStmt, nil
}

// ExtractTables returns every RangeVar table name referenced anywhere in
// the tree (including inside CTEs), schema-qualified when available,
// deduplicated in first-seen order.
func ExtractTables(stmt *pgquery.SelectStmt) []string {
	seen := make(map[string]struct{})
	var out []string

	var walkFrom func(node *pgquery.Node)
	walkFrom = func(node *pgquery.Node) {
		if node == nil {
			return
		}
		if rv := node.GetRangeVar(); rv != nil {
			name := rv.Relname
			if rv.Schemaname != "" {
				name = rv.Schemaname + "." + rv.Relname
			}
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				out = append(out, name)
			}
			return
		}
		if je := node.GetJoinExpr(); je != nil {
			walkFrom(je.Larg)
			walkFrom(je.Rarg)
			return
		}
		if rs := node.GetRangeSubselect(); rs != nil {
			if sub := rs.Subquery.GetSelectStmt(); sub != nil {
				for _, f := range sub.FromClause {
					walkFrom(f)
				}
			}
		}
	}

	var visitSelect func(s *pgquery.SelectStmt)
	visitSelect = func(s *pgquery.SelectStmt) {
		if s == nil {
			return
		}
		for _, f := range s.FromClause {
			walkFrom(f)
		}
		if s.WithClause != nil {
			for _, cte := range s.WithClause.Ctes {
				if c := cte.GetCommonTableExpr(); c != nil {
					if inner := c.Ctequery.GetSelectStmt(); inner != nil {
						visitSelect(inner)
					}
				}
			}
		}
		if s.Larg != nil {
			visitSelect(s.Larg)
		}
		if s.Rarg != nil {
			visitSelect(s.Rarg)
		}
	}
	visitSelect(stmt)

	return out
}

// TableRef is one table reference found in a FROM/JOIN clause, carrying
// both its alias (if any) and its schema-qualified or bare name.
type TableRef struct {
	Alias string
	Name  string
}

// ExtractAliasMap walks every FROM/JOIN clause and returns a lower-cased
// alias-or-bare-name to referenced-table-name map, covering plain tables,
// joined tables, and CTE references (whose Name is just the CTE's own
// name, resolved as a CTE by the caller via ExtractCTENames).
func ExtractAliasMap(stmt *pgquery.SelectStmt) map[string]string {
	aliasMap := make(map[string]string)

	var walk func(node *pgquery.Node)
	walk = func(node *pgquery.Node) {
		if node == nil {
			return
		}
		if rv := node.GetRangeVar(); rv != nil {
			name := rv.Relname
			if rv.Schemaname != "" {
				name = rv.Schemaname + "." + rv.Relname
			}
			key := rv.Relname
			if rv.Alias != nil && rv.Alias.Aliasname != "" {
				key = rv.Alias.Aliasname
			}
			aliasMap[strings.ToLower(key)] = name
			return
		}
		if je := node.GetJoinExpr(); je != nil {
			walk(je.Larg)
			walk(je.Rarg)
		}
	}

	var visitSelect func(s *pgquery.SelectStmt)
	visitSelect = func(s *pgquery.SelectStmt) {
		if s == nil {
			return
		}
		for _, f := range s.FromClause {
			walk(f)
		}
		if s.Larg != nil {
			visitSelect(s.Larg)
		}
		if s.Rarg != nil {
			visitSelect(s.Rarg)
		}
	}
	visitSelect(stmt)

	return aliasMap
}

// ExtractCTENames returns the lower-cased set of CTE aliases declared in
// any WITH clause of the statement.
func ExtractCTENames(stmt *pgquery.SelectStmt) map[string]struct{} {
	names := make(map[string]struct{})
	if stmt == nil {
		return names
	}
	if stmt.WithClause != nil {
		for _, cte := range stmt.WithClause.Ctes {
			if c := cte.GetCommonTableExpr(); c != nil {
				names[strings.ToLower(c.Ctename)] = struct{}{}
			}
		}
	}
	if stmt.Larg != nil {
		for k := range ExtractCTENames(stmt.Larg) {
			names[k] = struct{}{}
		}
	}
	if stmt.Rarg != nil {
		for k := range ExtractCTENames(stmt.Rarg) {
			names[k] = struct{}{}
		}
	}
	return names
}

// ExtractFunctions returns the lower-cased set of every function name
// called anywhere in the statement's target list, WHERE, GROUP BY, HAVING,
// and ORDER BY clauses.
func ExtractFunctions(stmt *pgquery.SelectStmt) map[string]struct{} {
	funcs := make(map[string]struct{})
	walkNode(selectClauseNodes(stmt), func(node *pgquery.Node) {
		if fc := node.GetFuncCall(); fc != nil {
			if name := funcName(fc); name != "" {
				funcs[strings.ToLower(name)] = struct{}{}
			}
		}
	})
	return funcs
}

func funcName(fc *pgquery.FuncCall) string {
	if len(fc.Funcname) == 0 {
		return ""
	}
	last := fc.Funcname[len(fc.Funcname)-1]
	if s := last.GetString_(); s != nil {
		return s.Sval
	}
	return ""
}

// ExtractJoins returns every JoinExpr in the FROM clause, with its ON
// condition re-serialized to SQL text for downstream FK-predicate parsing.
func ExtractJoins(stmt *pgquery.SelectStmt) []Join {
	var joins []Join
	if stmt == nil {
		return joins
	}

	var walk func(node *pgquery.Node)
	walk = func(node *pgquery.Node) {
		if node == nil {
			return
		}
		je := node.GetJoinExpr()
		if je == nil {
			return
		}
		walk(je.Larg)
		walk(je.Rarg)

		join := Join{
			Type:       joinTypeName(je),
			LeftTable:  rangeVarName(je.Larg),
			RightTable: rangeVarName(je.Rarg),
			Node:       je,
		}
		if je.Quals != nil {
			if deparsed, err := deparseExpr(je.Quals); err == nil {
				join.OnCondition = deparsed
			}
		}
		joins = append(joins, join)
	}

	for _, f := range stmt.FromClause {
		walk(f)
	}
	return joins
}

func rangeVarName(node *pgquery.Node) string {
	if node == nil {
		return ""
	}
	if rv := node.GetRangeVar(); rv != nil {
		if rv.Alias != nil && rv.Alias.Aliasname != "" {
			return rv.Alias.Aliasname
		}
		return rv.Relname
	}
	if je := node.GetJoinExpr(); je != nil {
		// nested join: no single name, its right-hand table is used for alias resolution purposes
		return rangeVarName(je.Rarg)
	}
	return ""
}

func joinTypeName(je *pgquery.JoinExpr) string {
	if je.IsNatural {
		return "NATURAL"
	}
	switch je.Jointype {
	case pgquery.JoinType_JOIN_INNER:
		return "INNER"
	case pgquery.JoinType_JOIN_LEFT:
		return "LEFT"
	case pgquery.JoinType_JOIN_RIGHT:
		return "RIGHT"
	case pgquery.JoinType_JOIN_FULL:
		return "FULL"
	default:
		return "INNER"
	}
}

// IsCrossJoin reports whether j is NATURAL or joins two tables with no ON
// condition — Postgres represents an explicit CROSS JOIN as an inner join
// with no Quals, so absence of Quals is the signal. A USING join also has no
// Quals and is reported as well.
func IsCrossJoin(j Join) bool {
	return j.Type == "NATURAL" || (j.OnCondition == "" && j.Node.Quals == nil)
}

// HasLimit reports whether the statement carries a LIMIT clause.
func HasLimit(stmt *pgquery.SelectStmt) bool {
	return stmt != nil && stmt.LimitCount != nil
}

// LimitValue returns the integer LIMIT value if present and a literal constant.
func LimitValue(stmt *pgquery.SelectStmt) *int {
	if stmt == nil || stmt.LimitCount == nil {
		return nil
	}
	aConst := stmt.LimitCount.GetAConst()
	if aConst == nil {
		return nil
	}
	if iv := aConst.GetIval(); iv != nil {
		n := int(iv.Ival)
		return &n
	}
	return nil
}

// HasWhere reports whether the statement has a WHERE clause.
func HasWhere(stmt *pgquery.SelectStmt) bool {
	return stmt != nil && stmt.WhereClause != nil
}

func deparseExpr(node *pgquery.Node) (string, error) {
	wrapped := &pgquery.ParseResult{
		Stmts: []*pgquery.RawStmt{{
			Stmt: &pgquery.Node{Node: &pgquery.Node_SelectStmt{
				SelectStmt: &pgquery.SelectStmt{WhereClause: node, FromClause: nil},
			}},
		}},
	}
	sql, err := pgquery.Deparse(wrapped)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(sql, "WHERE "), nil
}

// selectClauseNodes collects every top-level expression node worth scanning
// for function calls: target list, WHERE, GROUP BY, HAVING, ORDER BY.
func selectClauseNodes(stmt *pgquery.SelectStmt) []*pgquery.Node {
	if stmt == nil {
		return nil
	}
	var nodes []*pgquery.Node
	nodes = append(nodes, stmt.TargetList...)
	if stmt.WhereClause != nil {
		nodes = append(nodes, stmt.WhereClause)
	}
	nodes = append(nodes, stmt.GroupClause...)
	if stmt.HavingClause != nil {
		nodes = append(nodes, stmt.HavingClause)
	}
	nodes = append(nodes, stmt.SortClause...)
	return nodes
}

// walkNode recursively visits every descendant of each root node, invoking
// visit on each. It understands enough of the pg_query node shapes (ResTarget,
// A_Expr, BoolExpr, FuncCall args, SortBy, CoalesceExpr, CaseExpr, TypeCast,
// List) to reach function calls and column refs nested arbitrarily deep.
func walkNode(roots []*pgquery.Node, visit func(*pgquery.Node)) {
	var walk func(node *pgquery.Node)
	walk = func(node *pgquery.Node) {
		if node == nil {
			return
		}
		visit(node)

		switch {
		case node.GetResTarget() != nil:
			walk(node.GetResTarget().Val)
		case node.GetAExpr() != nil:
			ae := node.GetAExpr()
			walk(ae.Lexpr)
			walk(ae.Rexpr)
		case node.GetBoolExpr() != nil:
			for _, a := range node.GetBoolExpr().Args {
				walk(a)
			}
		case node.GetFuncCall() != nil:
			for _, a := range node.GetFuncCall().Args {
				walk(a)
			}
		case node.GetSortBy() != nil:
			walk(node.GetSortBy().Node)
		case node.GetCoalesceExpr() != nil:
			for _, a := range node.GetCoalesceExpr().Args {
				walk(a)
			}
		case node.GetCaseExpr() != nil:
			ce := node.GetCaseExpr()
			walk(ce.Arg)
			for _, w := range ce.Args {
				walk(w)
			}
			walk(ce.Defresult)
		case node.GetCaseWhen() != nil:
			cw := node.GetCaseWhen()
			walk(cw.Expr)
			walk(cw.Result)
		case node.GetTypeCast() != nil:
			walk(node.GetTypeCast().Arg)
		case node.GetNullTest() != nil:
			walk(node.GetNullTest().Arg)
		case node.GetList() != nil:
			for _, a := range node.GetList().Items {
				walk(a)
			}
		}
	}
	for _, r := range roots {
		walk(r)
	}
}

// limitClauseRegex matches any `LIMIT n` clause for text-level injection
// when the caller already has a deparsed SQL string rather than an AST.
var limitClauseRegex = regexp.MustCompile(`(?i)\bLIMIT\s+\d+`)

// InjectLimit rewrites sql to carry the given limit, replacing an existing
// LIMIT clause if present or appending one after stripping trailing
// semicolons/whitespace otherwise.
func InjectLimit(sql string, limit int) string {
	if limitClauseRegex.MatchString(sql) {
		return limitClauseRegex.ReplaceAllString(sql, "LIMIT "+strconv.Itoa(limit))
	}
	trimmed := strings.TrimRight(sql, "; \t\n")
	return trimmed + " LIMIT " + strconv.Itoa(limit)
}
