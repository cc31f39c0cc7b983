// Copyright (c) 2026 Ledger QL. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package resolver classifies a follow-up question as NEW, a REFINE of the
previous turn, or a DRILLDOWN into its results, moving that decision out of
the model and into deterministic, testable code.
*/
package resolver

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/ledgerql/gateway/internal/convo"
	"github.com/ledgerql/gateway/internal/convo/patterns"
	"github.com/ledgerql/gateway/internal/convo/session"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// quoteReplacer normalizes smart quotes to their ASCII equivalents before
// pattern matching, since a question pasted from a chat client frequently
// carries curly quotes that would otherwise break regex boundaries.
var quoteReplacer = strings.NewReplacer(
	"“", `"`, "”", `"`,
	"’", "'", "‘", "'",
)

// Resolver resolves conversational continuity for a fixed session history store.
type Resolver struct {
	sessions *session.Store
	log      *slog.Logger
}

// New constructs a Resolver backed by sessions.
func New(sessions *session.Store, log *slog.Logger) *Resolver {
	return &Resolver{sessions: sessions, log: log}
}

// NormalizeQuestion strips surrounding whitespace/quotes/punctuation and
// collapses internal whitespace, so pattern matching sees a consistent shape.
func NormalizeQuestion(q string) string {
	if q == "" {
		return ""
	}
	q = quoteReplacer.Replace(strings.TrimSpace(q))
	q = strings.Trim(q, `"'`)
	q = whitespaceRegex.ReplaceAllString(q, " ")
	q = strings.TrimSpace(q)
	q = strings.TrimSuffix(q, ".")
	q = strings.TrimSuffix(q, "?")
	q = strings.TrimSuffix(q, "!")
	return q
}

// Resolve classifies currentQuestion against sessionID's turn history.
func (r *Resolver) Resolve(sessionID, currentQuestion string) convo.ResolvedContext {
	normalized := NormalizeQuestion(currentQuestion)

	turns := r.sessions.Turns(sessionID)
	if len(turns) == 0 {
		r.log.Debug("resolve_context_new", slog.String("session_id", sessionID), slog.String("reason", "no_session_or_empty"))
		return convo.ResolvedContext{ContinuationType: convo.ContinuationNew, CurrentQuestion: normalized}
	}

	anchor := anchorTurn(turns)
	if anchor == nil {
		r.log.Debug("resolve_context_new", slog.String("session_id", sessionID), slog.String("reason", "no_anchor_turn_with_sql"))
		return convo.ResolvedContext{ContinuationType: convo.ContinuationNew, CurrentQuestion: normalized}
	}

	if instruction := patterns.DetectRefinement(normalized); instruction != "" {
		r.log.Debug("resolve_context_refine", slog.String("session_id", sessionID), slog.String("instruction", instruction))
		return convo.ResolvedContext{
			IsRelated:             true,
			ContinuationType:      convo.ContinuationRefine,
			AnchorTurn:            anchor,
			PreservedDimensions:   extractDimensions(anchor),
			CurrentQuestion:       normalized,
			RefinementInstruction: instruction,
		}
	}

	if patterns.IsDrilldown(normalized) {
		r.log.Debug("resolve_context_drilldown", slog.String("session_id", sessionID))
		return convo.ResolvedContext{
			IsRelated:           true,
			ContinuationType:    convo.ContinuationDrilldown,
			AnchorTurn:          anchor,
			PreservedDimensions: extractDimensions(anchor),
			CurrentQuestion:     normalized,
		}
	}

	if patterns.IsReferential(normalized) {
		r.log.Debug("resolve_context_refine", slog.String("session_id", sessionID), slog.String("reason", "referential_keyword_detected"))
		return convo.ResolvedContext{
			IsRelated:           true,
			ContinuationType:    convo.ContinuationRefine,
			AnchorTurn:          anchor,
			PreservedDimensions: extractDimensions(anchor),
			CurrentQuestion:     normalized,
		}
	}

	r.log.Debug("resolve_context_new", slog.String("session_id", sessionID), slog.String("reason", "no_pattern_matched"))
	return convo.ResolvedContext{ContinuationType: convo.ContinuationNew, CurrentQuestion: normalized}
}

// AddTurn records a completed turn in sessionID's history.
func (r *Resolver) AddTurn(sessionID string, turn convo.Turn) {
	r.sessions.AddTurn(sessionID, turn)
}

// anchorTurn returns the most recent turn that actually produced SQL,
// walking backward so a refused or clarification-only turn in between is skipped.
func anchorTurn(turns []convo.Turn) *convo.Turn {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].SQL != "" {
			t := turns[i]
			return &t
		}
	}
	return nil
}

func extractDimensions(turn *convo.Turn) convo.PreservedDimensions {
	intent := turn.IntentSummary
	return convo.PreservedDimensions{
		Subject:     intent.Subject,
		Metric:      intent.Metric,
		TimeWindow:  intent.TimeWindow,
		Grouping:    intent.Grouping,
		Ordering:    intent.Ordering,
		Limit:       intent.Limit,
		ResultScope: intent.ResultScope,
		Tables:      intent.Tables,
	}
}
