// Copyright (c) 2026 Ledger QL. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package patterns holds the precompiled regular expressions used to classify
a follow-up question without ever asking the model: refinement detection
(limit/metric/order/filter/time-window changes), drilldown pronoun
detection, and general referential phrasing. Every regex here is compiled
once at package init, not per request.
*/
package patterns

import (
	"regexp"
	"strconv"
	"strings"
)

// instructionPattern pairs a compiled matcher with the refinement
// instruction it signals when matched.
type instructionPattern struct {
	re          *regexp.Regexp
	instruction string
}

// LimitPatterns detect a follow-up that changes only the row limit. Kept
// deliberately conservative: "show me 10 borrowers" must NOT match, only
// messages that are exclusively about the number.
var LimitPatterns = []instructionPattern{
	{regexp.MustCompile(`(?i)^(make it|increase to|decrease to|change to|set to|limit to)\s+(\d+)\s*$`), "limit_change"},
	{regexp.MustCompile(`(?i)^(\d+)\s*$`), "limit_change"},
	{regexp.MustCompile(`(?i)^top\s+(\d+)\s*$`), "limit_change"},
	{regexp.MustCompile(`(?i)^limit\s+(\d+)\s*$`), "limit_change"},
	{regexp.MustCompile(`(?i)^(show|show me|give me)\s+(\d+)\s*(rows|results)?\s*$`), "limit_change"},
}

// MetricPatterns detect a follow-up that swaps the requested measure.
var MetricPatterns = []instructionPattern{
	{regexp.MustCompile(`(?i)\b(now|instead)\s+by\s+(outstanding|outstanding balance|principal|collections|repayments|loan count|number of loans)\b`), "metric_change"},
	{regexp.MustCompile(`(?i)\bby\s+(outstanding|outstanding balance|principal|collections|repayments|loan count|number of loans)\b`), "metric_change"},
}

// OrderPatterns detect a follow-up that changes sort column or direction.
var OrderPatterns = []instructionPattern{
	{regexp.MustCompile(`(?i)\b(sort|order)\s+by\b`), "order_change"},
	{regexp.MustCompile(`(?i)\b(highest|lowest|most|least)\b`), "order_change"},
	{regexp.MustCompile(`(?i)\b(asc|desc|ascending|descending)\b`), "order_change"},
}

// FilterPatterns detect a follow-up that narrows or widens a WHERE filter.
var FilterPatterns = []instructionPattern{
	{regexp.MustCompile(`(?i)\b(only|just|exclude|include|without|with)\s+\w+`), "filter_change"},
}

// TimeWindowPatterns detect a follow-up that changes the date range.
var TimeWindowPatterns = []instructionPattern{
	{regexp.MustCompile(`(?i)\b(last|past|previous)\s+\d+\s+(day|week|month|quarter|year)s?\b`), "time_window_change"},
	{regexp.MustCompile(`(?i)\b(last|past|previous)\s+(day|week|month|quarter|year)\b`), "time_window_change"},
	{regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december)\b`), "time_window_change"},
	{regexp.MustCompile(`(?i)\bin\s+(january|february|march|april|may|june|july|august|september|october|november|december)(\s+\d{4})?\b`), "time_window_change"},
	{regexp.MustCompile(`(?i)\bin\s+\d{4}\b`), "time_window_change"},
	{regexp.MustCompile(`(?i)\bin\s+q[1-4](\s+\d{4})?\b`), "time_window_change"},
	{regexp.MustCompile(`(?i)\b(this|current)\s+(day|week|month|quarter|year)\b`), "time_window_change"},
	{regexp.MustCompile(`(?i)\b(today|yesterday)\b`), "time_window_change"},
}

// refinementPriority is the full dispatch table, checked in this exact
// order: limit changes are the most specific pattern class and so are
// checked first, time-window changes last.
var refinementPriority = [][]instructionPattern{
	LimitPatterns,
	MetricPatterns,
	OrderPatterns,
	FilterPatterns,
	TimeWindowPatterns,
}

// DetectRefinement returns the instruction string for the first matching
// pattern class, or "" if the question matches none.
func DetectRefinement(question string) string {
	for _, class := range refinementPriority {
		for _, p := range class {
			if p.re.MatchString(question) {
				return p.instruction
			}
		}
	}
	return ""
}

// DrilldownPatterns detect pronoun-based references to a previous result set.
var DrilldownPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(they|them|those|these|their)\b`),
	regexp.MustCompile(`(?i)\b(from|in)\s+(the\s+)?(above|previous|prior)\s+(results?|data|rows?|query)\b`),
}

// IsDrilldown reports whether question contains a drilldown pronoun reference.
func IsDrilldown(question string) bool {
	for _, re := range DrilldownPatterns {
		if re.MatchString(question) {
			return true
		}
	}
	return false
}

// ReferentialPatterns detect general "same as before" phrasing that implies
// continuation without a specific refinement instruction.
var ReferentialPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bsame\b`),
	regexp.MustCompile(`(?i)\bwhat about\b`),
	regexp.MustCompile(`(?i)\balso\b`),
	regexp.MustCompile(`(?i)\btoo\b`),
	regexp.MustCompile(`(?i)\bsimilar\b`),
	regexp.MustCompile(`(?i)\bsplit by\b`),
	regexp.MustCompile(`(?i)\bgroup by\b`),
	regexp.MustCompile(`(?i)\bbreak down\b`),
	regexp.MustCompile(`(?i)\bshow details\b`),
}

// IsReferential reports whether question contains general referential phrasing.
func IsReferential(question string) bool {
	for _, re := range ReferentialPatterns {
		if re.MatchString(question) {
			return true
		}
	}
	return false
}

// limitValuePatterns extract the row-count number out of a deterministic
// limit-change follow-up, ported verbatim from `_parse_limit_value`.
var limitValuePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:make it|increase to|decrease to|change to|set to|limit to|show me|give me)\s+(\d+)\b`),
	regexp.MustCompile(`^(\d+)$`),
	regexp.MustCompile(`(?i)\btop\s+(\d+)\b`),
	regexp.MustCompile(`(?i)\blimit\s+(\d+)\b`),
	regexp.MustCompile(`(?i)\bshow\s+(\d+)\b`),
}

// ParseLimitValue extracts a new row limit from questions like "make it 5",
// "show 10", "top 3", returning (value, true) on a match.
func ParseLimitValue(question string) (int, bool) {
	lower := strings.ToLower(strings.TrimSpace(question))
	for _, re := range limitValuePatterns {
		match := re.FindStringSubmatch(lower)
		if match == nil {
			continue
		}
		for _, group := range match[1:] {
			if group == "" {
				continue
			}
			if n, err := strconv.Atoi(group); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// RewriteLimit rewrites sql to carry newLimit, replacing every existing
// `LIMIT n` clause or appending one after stripping a trailing semicolon,
// ported verbatim from `_rewrite_limit` (the decided Open Question: strip
// trailing semicolon, then append `LIMIT N`).
func RewriteLimit(sql string, newLimit int) string {
	if sql == "" {
		return sql
	}
	if limitAnywhereRegex.MatchString(sql) {
		return limitAnywhereRegex.ReplaceAllString(sql, "LIMIT "+strconv.Itoa(newLimit))
	}
	trimmed := strings.TrimRight(strings.TrimSpace(sql), ";")
	trimmed = strings.TrimRight(trimmed, " \t\n")
	return trimmed + "\nLIMIT " + strconv.Itoa(newLimit)
}

// limitAnywhereRegex matches a LIMIT clause anywhere in the statement (not
// just a trailing one), used by RewriteLimit since the anchor SQL may carry
// other trailing clauses after LIMIT in edge cases.
var limitAnywhereRegex = regexp.MustCompile(`(?i)\bLIMIT\s+\d+\b`)

// orderClauseRegex matches "sort by <col>[ asc|desc|ascending|descending]",
// ported verbatim from `_parse_order_clause`.
var orderClauseRegex = regexp.MustCompile(`(?i)\b(?:sort|order)\s+by\s+([\w_]+)(?:\s+(asc|desc|ascending|descending))?\b`)

// OrderClause is the parsed result of ParseOrderClause.
type OrderClause struct {
	Column    string
	Direction string
}

// ParseOrderClause extracts the sort column and direction from questions
// like "sort by amount desc", defaulting direction to DESC when omitted.
func ParseOrderClause(question string) (OrderClause, bool) {
	lower := strings.ToLower(strings.TrimSpace(question))
	match := orderClauseRegex.FindStringSubmatch(lower)
	if match == nil {
		return OrderClause{}, false
	}
	direction := "DESC"
	if match[2] != "" {
		if strings.HasPrefix(match[2], "asc") {
			direction = "ASC"
		} else {
			direction = "DESC"
		}
	}
	return OrderClause{Column: match[1], Direction: direction}, true
}

// existingOrderByRegex matches a full existing ORDER BY clause including its
// direction keyword, so RewriteOrder can replace it in place.
var existingOrderByRegex = regexp.MustCompile(`(?i)\bORDER\s+BY\s+[\w_.]+\s+(?:ASC|DESC)\b`)

// trailingLimitRegex locates the first `LIMIT n` clause in the statement so a
// new ORDER BY can be spliced in immediately before it.
var trailingLimitRegex = regexp.MustCompile(`(?i)\bLIMIT\s+\d+\b`)

// RewriteOrder rewrites sql to carry the given order clause, replacing an
// existing ORDER BY in place, inserting one immediately before any LIMIT, or
// appending at the end, ported verbatim from `_rewrite_order`.
func RewriteOrder(sql string, order OrderClause) string {
	if sql == "" {
		return sql
	}
	newClause := "ORDER BY " + order.Column + " " + order.Direction

	if existingOrderByRegex.MatchString(sql) {
		return existingOrderByRegex.ReplaceAllString(sql, newClause)
	}

	if loc := trailingLimitRegex.FindStringIndex(sql); loc != nil {
		return sql[:loc[0]] + newClause + "\n" + sql[loc[0]:]
	}

	trimmed := strings.TrimRight(strings.TrimSpace(sql), ";")
	trimmed = strings.TrimRight(trimmed, " \t\n")
	return trimmed + "\n" + newClause
}
