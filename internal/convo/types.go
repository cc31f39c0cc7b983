// Copyright (c) 2026 Ledger QL. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package convo defines the conversation-state data model shared by the
// session store and the context resolver: turns, intent summaries, and the
// structured result of resolving a follow-up question against its history.
package convo

// ContinuationType classifies how the current question relates to the
// conversation so far.
type ContinuationType string

const (
	ContinuationNew       ContinuationType = "new"
	ContinuationRefine    ContinuationType = "refine"
	ContinuationDrilldown ContinuationType = "drilldown"
)

// Ordering is a single ORDER BY clause (column, direction).
type Ordering struct {
	Column    string `json:"column"`
	Direction string `json:"direction"`
}

// IntentSummary is the compact, structured record of what one generated
// query actually did, captured so a later turn can refine it without
// re-deriving intent from raw SQL text.
type IntentSummary struct {
	Subject     *string   `json:"subject,omitempty"`
	Metric      *string   `json:"metric,omitempty"`
	TimeWindow  *string   `json:"time_window,omitempty"`
	Grouping    []string  `json:"grouping,omitempty"`
	Ordering    *Ordering `json:"ordering,omitempty"`
	Limit       *int      `json:"limit,omitempty"`
	Tables      []string  `json:"tables,omitempty"`
	ResultScope *string   `json:"result_scope,omitempty"`
}

// Turn is a single exchange: the question asked, the SQL produced for it
// (empty if generation was refused or a clarification was requested), and
// the resulting intent summary.
type Turn struct {
	Question      string        `json:"question"`
	SQL           string        `json:"sql,omitempty"`
	IntentSummary IntentSummary `json:"intent_summary"`
}

// PreservedDimensions carries forward the parts of an anchor turn's intent
// that a refinement or drilldown question should keep unless overridden.
type PreservedDimensions struct {
	Subject     *string
	Metric      *string
	TimeWindow  *string
	Grouping    []string
	Ordering    *Ordering
	Limit       *int
	ResultScope *string
	Tables      []string
}

// ResolvedContext is the structured outcome of resolving one question
// against a session's history.
type ResolvedContext struct {
	IsRelated            bool
	ContinuationType     ContinuationType
	AnchorTurn           *Turn
	PreservedDimensions  PreservedDimensions
	CurrentQuestion      string
	RefinementInstruction string
}
