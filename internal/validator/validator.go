// Copyright (c) 2026 Ledger QL. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package validator runs the full SQL safety pipeline against a generated
statement and a published Compiled Rules snapshot. Every check accumulates
into one errors/warnings pair rather than short-circuiting, except the hard
prerequisites (empty input, parse failure, a non-SELECT statement) which abort
the rest of the pipeline immediately since nothing downstream has a usable
SELECT AST without them.
*/
package validator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ledgerql/gateway/internal/kb/types"
	"github.com/ledgerql/gateway/internal/validator/ast"
	"github.com/ledgerql/gateway/internal/validator/blocked"
	"github.com/ledgerql/gateway/internal/validator/joins"
)

// Failure reason codes recorded in metrics, ported verbatim from the
// original validator's taxonomy.
const (
	ReasonEmptySQL           = "empty_sql"
	ReasonParseError         = "parse_error"
	ReasonMultiStatement     = "multi_statement"
	ReasonNotSelect          = "not_select"
	ReasonNotSelectEnhanced  = "not_select_enhanced"
	ReasonBlockedKeywords    = "blocked_keywords"
	ReasonBlockedFunctions   = "blocked_functions"
	ReasonBlockedJoinType    = "blocked_join_type"
	ReasonInvalidJoinPath    = "invalid_join_path"
	ReasonInvalidJoinOn      = "invalid_join_on"
	ReasonJoinDepthViolation = "join_depth_violation"
	ReasonTableNotFound      = "table_not_found"
	ReasonSchemaNotAllowed   = "schema_not_allowed"
)

// Result is the outcome of running the pipeline against one SQL statement.
type Result struct {
	Valid             bool
	SQL               string // possibly rewritten (LIMIT injected/capped)
	Errors            []string
	Warnings          []string
	FailureReasons    []string
	TablesUsed        []string
	SafetyExplanation string
}

func (r *Result) addError(reason, message string) {
	r.Valid = false
	r.Errors = append(r.Errors, message)
	r.FailureReasons = append(r.FailureReasons, reason)
}

func (r *Result) addWarning(message string) {
	r.Warnings = append(r.Warnings, message)
}

// Validate runs the full 15-step pipeline against sql using rules as the
// single immutable snapshot for the duration of the call.
func Validate(sql string, rules *types.CompiledRules) *Result {
	result := &Result{Valid: true, SQL: sql}

	// Step 1: reject empty or non-string SQL (the Go signature already
	// guarantees a string; empty/whitespace-only is the remaining case).
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		result.addError(ReasonEmptySQL, "Empty or invalid SQL")
		return result
	}

	// Step 2: parse. Unparseable is a hard reject.
	parseResult, err := ast.Parse(sql)
	if err != nil {
		result.addError(ReasonParseError, "SQL could not be parsed: "+err.Error())
		return result
	}

	// Step 3: single-statement requirement. Does not block subsequent
	// best-effort checks against the first statement.
	if !ast.IsSingleStatement(parseResult) {
		result.addError(ReasonMultiStatement, "Only a single SQL statement is allowed")
	}

	// Step 4: SELECT-only at the tree level.
	stmt, err := ast.SelectOnly(parseResult)
	if err != nil {
		reason := ReasonNotSelect
		if strings.Contains(err.Error(), "SET") || strings.Contains(err.Error(), "SHOW") {
			reason = ReasonNotSelectEnhanced
		}
		result.addError(reason, err.Error())
		return result
	}

	// Step 5: blocked keyword scan on the text, after stripping literals
	// and comments.
	if found := blocked.ScanKeywords(sql, rules.QueryPolicies.BlockedPatterns); len(found) > 0 {
		result.addError(ReasonBlockedKeywords, "Blocked keyword(s) found: "+strings.Join(found, ", "))
	}

	// Step 6: extract tables, functions, joins, CTE names.
	cteNames := ast.ExtractCTENames(stmt)
	allTables := ast.ExtractTables(stmt)
	funcs := ast.ExtractFunctions(stmt)
	astJoins := ast.ExtractJoins(stmt)
	aliasMap := ast.ExtractAliasMap(stmt)

	var physicalTables []string
	for _, t := range allTables {
		if !isCTEName(t, cteNames) {
			physicalTables = append(physicalTables, t)
		}
	}

	// Step 7: table existence, step 8: schema qualification warning.
	resolvedPhysical := resolveTables(result, physicalTables, rules)

	// Step 9: blocked functions.
	if found := blocked.ScanFunctions(funcs, rules.QueryPolicies.BlockedFunctions); len(found) > 0 {
		result.addError(ReasonBlockedFunctions, "Blocked function(s) called: "+strings.Join(found, ", "))
	}

	// Step 10: blocked join types.
	if found := blocked.ScanJoinTypes(astJoins); len(found) > 0 {
		result.addError(ReasonBlockedJoinType, strings.Join(found, "; "))
	}

	graph := joins.BuildGraph(rules)

	// Step 11: join path validity over physical tables.
	if len(resolvedPhysical) > 1 {
		if err := joins.ValidatePathReachability(graph, resolvedPhysical); err != nil {
			result.addError(ReasonInvalidJoinPath, err.Error())
		}
	}

	// Step 12: JOIN ON FK check.
	resolvedAliasMap := make(joins.AliasMap, len(aliasMap))
	for alias, name := range aliasMap {
		if resolved := resolveBareOrQualified(name, rules); resolved != "" {
			resolvedAliasMap[alias] = resolved
		} else {
			resolvedAliasMap[alias] = name
		}
	}
	if problems := joins.ValidateJoinOnFK(graph, astJoins, resolvedAliasMap, cteNames); len(problems) > 0 {
		result.addError(ReasonInvalidJoinOn, strings.Join(problems, "; "))
	}

	// Step 13: join depth policy, independently evaluated.
	depth := len(uniqueStrings(resolvedPhysical)) - 1
	if depth < 0 {
		depth = 0
	}
	policy := rules.QueryPolicies
	if policy.HardCapJoinDepth > 0 && depth > policy.HardCapJoinDepth {
		result.addError(ReasonJoinDepthViolation, fmt.Sprintf("join depth %d exceeds the hard cap of %d", depth, policy.HardCapJoinDepth))
	}
	if policy.MaxJoinDepth > 0 && depth > policy.MaxJoinDepth {
		result.addWarning(fmt.Sprintf("join depth %d exceeds the recommended maximum of %d", depth, policy.MaxJoinDepth))
	}
	if policy.RequireWhereForDeepJoins && policy.DeepJoinThreshold > 0 && depth >= policy.DeepJoinThreshold && !ast.HasWhere(stmt) {
		result.addError(ReasonJoinDepthViolation, "add a filter to scope the result")
	}

	// Step 14: LIMIT enforcement, rewriting the returned SQL.
	rewritten := sql
	if !ast.HasLimit(stmt) {
		rewritten = ast.InjectLimit(rewritten, policy.DefaultLimit)
		result.addWarning(fmt.Sprintf("no LIMIT found, applied default of %d", policy.DefaultLimit))
	} else if limit := ast.LimitValue(stmt); limit != nil && policy.MaxLimit > 0 && *limit > policy.MaxLimit {
		rewritten = ast.InjectLimit(rewritten, policy.MaxLimit)
		result.addWarning(fmt.Sprintf("LIMIT %d exceeds the maximum of %d, capped", *limit, policy.MaxLimit))
	}
	result.SQL = rewritten
	result.TablesUsed = resolvedPhysical

	// Step 15: safety explanation.
	if result.Valid {
		result.SafetyExplanation = safetyExplanation(result, policy)
	}

	return result
}

func isCTEName(table string, cteNames map[string]struct{}) bool {
	_, ok := cteNames[strings.ToLower(bareName(table))]
	return ok
}

func bareName(qualified string) string {
	parts := strings.SplitN(qualified, ".", 2)
	if len(parts) == 2 {
		return parts[1]
	}
	return qualified
}

// resolveTables implements steps 7-8: every non-CTE table must resolve to
// the allowed schema(s), either by explicit qualification or by unqualified
// lookup; cross-schema qualification is rejected outright. Returns the
// resolved schema-qualified names for tables that passed.
func resolveTables(result *Result, tables []string, rules *types.CompiledRules) []string {
	var resolved []string
	for _, t := range tables {
		parts := strings.SplitN(t, ".", 2)
		if len(parts) == 2 {
			schema, name := parts[0], parts[1]
			if !containsString(rules.QueryPolicies.AllowedSchemas, schema) {
				result.addError(ReasonSchemaNotAllowed, fmt.Sprintf("schema %q is not allowed", schema))
				continue
			}
			key := schema + "." + name
			if _, ok := rules.Tables[key]; !ok {
				result.addError(ReasonTableNotFound, fmt.Sprintf("table %q not found", key))
				continue
			}
			resolved = append(resolved, key)
			continue
		}

		result.addWarning(fmt.Sprintf("table %q is not schema-qualified", t))
		found := resolveBareOrQualified(t, rules)
		if found == "" {
			result.addError(ReasonTableNotFound, fmt.Sprintf("table %q not found", t))
			continue
		}
		resolved = append(resolved, found)
	}
	return resolved
}

// resolveBareOrQualified resolves name (bare or already schema-qualified)
// against the allowed schemas in rules, returning the schema-qualified key
// if found, or "" otherwise.
func resolveBareOrQualified(name string, rules *types.CompiledRules) string {
	if _, ok := rules.Tables[name]; ok {
		return name
	}
	for _, schema := range rules.QueryPolicies.AllowedSchemas {
		key := schema + "." + bareName(name)
		if _, ok := rules.Tables[key]; ok {
			return key
		}
	}
	return ""
}

func containsString(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, v := range in {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

func safetyExplanation(result *Result, policy types.QueryPolicies) string {
	var parts []string
	parts = append(parts, "statement is SELECT-only with no forbidden operations")
	parts = append(parts, "all referenced tables resolved against the allowed schema")
	parts = append(parts, "no blocked functions or keywords present")
	if len(result.TablesUsed) > 1 {
		parts = append(parts, "every join follows a declared foreign key")
	}
	parts = append(parts, "row count is bounded by LIMIT "+strconv.Itoa(policy.MaxLimit)+" at most")
	return strings.Join(parts, "; ")
}
