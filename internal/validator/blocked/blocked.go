// Copyright (c) 2026 Ledger QL. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package blocked implements the keyword and join-type denylist checks of the
SQL validation pipeline: a text-level scan for forbidden keywords once
string literals and comments have been stripped, and an AST-level check for
blocked function calls and blocked join types (CROSS, NATURAL).
*/
package blocked

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ledgerql/gateway/internal/validator/ast"
)

// stringLiteralRegex matches single-quoted SQL string literals, including
// the doubled-quote escape ('' inside a literal).
var stringLiteralRegex = regexp.MustCompile(`'(?:[^']|'')*'`)

// dollarQuotedRegex matches Postgres dollar-quoted strings ($$...$$ or
// $tag$...$tag$).
var dollarQuotedRegex = regexp.MustCompile(`(?s)\$([A-Za-z_]*)\$.*?\$\1\$`)

// lineCommentRegex and blockCommentRegex strip SQL comments before the
// keyword scan so a blocked word mentioned only in a comment never trips
// the check.
var lineCommentRegex = regexp.MustCompile(`--[^\n]*`)
var blockCommentRegex = regexp.MustCompile(`(?s)/\*.*?\*/`)

// StripLiteralsAndComments removes string literal and comment content from
// sql, replacing each with a space so downstream keyword positions don't
// collide across the boundary, but preserves the surrounding structure.
func StripLiteralsAndComments(sql string) string {
	stripped := dollarQuotedRegex.ReplaceAllString(sql, " ")
	stripped = stringLiteralRegex.ReplaceAllString(stripped, " ")
	stripped = blockCommentRegex.ReplaceAllString(stripped, " ")
	stripped = lineCommentRegex.ReplaceAllString(stripped, " ")
	return stripped
}

// keywordPattern builds a word-boundary regex for a single blocked keyword.
func keywordPattern(keyword string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(keyword) + `\b`)
}

// ScanKeywords reports every blocked keyword found in sql after literal and
// comment stripping, in the order keywords were supplied.
func ScanKeywords(sql string, blockedKeywords []string) []string {
	cleaned := StripLiteralsAndComments(sql)
	var found []string
	for _, kw := range blockedKeywords {
		if keywordPattern(kw).MatchString(cleaned) {
			found = append(found, kw)
		}
	}
	return found
}

// ScanFunctions reports every blocked function name present in funcs
// (already lower-cased by the caller), in the order blockedFunctions were
// supplied.
func ScanFunctions(funcs map[string]struct{}, blockedFunctions []string) []string {
	var found []string
	for _, fn := range blockedFunctions {
		if _, ok := funcs[strings.ToLower(fn)]; ok {
			found = append(found, fn)
		}
	}
	return found
}

// BlockedJoinTypes lists the join forms that are never allowed regardless
// of policy: CROSS and NATURAL joins bypass the FK-predicate requirement
// entirely and are rejected outright.
var BlockedJoinTypes = map[string]struct{}{
	"CROSS":   {},
	"NATURAL": {},
}

// ScanJoinTypes reports a rejection message for every join in joins whose
// type is blocked.
func ScanJoinTypes(joins []ast.Join) []string {
	var found []string
	for _, j := range joins {
		if _, blocked := BlockedJoinTypes[j.Type]; blocked || ast.IsCrossJoin(j) {
			found = append(found, fmt.Sprintf("%s JOIN between %s and %s is not allowed", j.Type, j.LeftTable, j.RightTable))
		}
	}
	return found
}
