// Copyright (c) 2026 Ledger QL. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package generator orchestrates one natural-language-to-SQL request: a
refusal gate against write intent, a deterministic LIMIT/ORDER BY rewrite
fast path that skips the model entirely, a clarification gate for
under-specified new questions, KB retrieval, prompt assembly, and finally
the single LLM call. The model is used purely as a SQL compiler — every
context decision is made here in code, never delegated to the prompt.
*/
package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ledgerql/gateway/internal/convo"
	"github.com/ledgerql/gateway/internal/convo/patterns"
	"github.com/ledgerql/gateway/internal/generator/llm"
	"github.com/ledgerql/gateway/internal/generator/prompt"
	"github.com/ledgerql/gateway/internal/kb/types"
	"github.com/ledgerql/gateway/internal/retrieval"
)

// modificationKeywords are write-intent words that trigger an outright
// refusal. Natural-language "change"/"modify" deliberately is not on this
// list — only actual write/DDL vocabulary is.
var modificationKeywords = []string{
	"delete", "remove", "drop", "update", "insert",
	"add row", "create table", "alter", "truncate", "grant", "revoke",
}

var modificationPatterns = compileKeywordPatterns(modificationKeywords)

func compileKeywordPatterns(keywords []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, len(keywords))
	for i, kw := range keywords {
		compiled[i] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(kw) + `\b`)
	}
	return compiled
}

// vagueOpeners are sentence-starters that, combined with no table mention
// and a short token count, signal an under-specified request.
var vagueOpeners = []string{"show", "list", "display", "give", "get"}

var vaguePhrases = map[string]struct{}{
	"show me data": {}, "show data": {}, "show details": {}, "show info": {},
	"give me data": {}, "tell me data": {},
}

var bareEntityRequests = map[string]struct{}{
	"show loans": {}, "list loans": {},
	"show borrowers": {}, "list borrowers": {},
	"show branches": {}, "list branches": {},
}

var topMetricKeywords = []string{
	"collections", "repayments", "outstanding", "principal", "number of loans", "loan count",
}

// ClarificationRequest describes why a question could not be turned into
// SQL without first asking the user a narrowing question.
type ClarificationRequest struct {
	NeedsClarification    bool           `json:"needs_clarification"`
	ClarificationQuestion string         `json:"clarification_question,omitempty"`
	OriginalQuestion      string         `json:"original_question"`
	PartialIntent         map[string]any `json:"partial_intent,omitempty"`
}

// Result is the outcome of one generation request: exactly one of
// Refusal, Clarification, or SQL is populated.
type Result struct {
	Refusal       string
	Clarification *ClarificationRequest
	SQL           string
	Confidence    float64
	TablesUsed    []string
	IntentSummary convo.IntentSummary
	UsedLLM       bool
}

// llmResponse is the JSON shape the model must return.
type llmResponse struct {
	SQL           string              `json:"sql"`
	Confidence    float64             `json:"confidence"`
	TablesUsed    []string            `json:"tables_used"`
	IntentSummary convo.IntentSummary `json:"intent_summary"`
}

// Completer is the narrow seam generator depends on for the actual model
// call, satisfied by *llm.Client; a test double can substitute a canned
// response without touching the network.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Generator wires the retriever and LLM completer behind the orchestration
// pipeline described for one request.
type Generator struct {
	retriever *retrieval.Retriever
	llmClient Completer
}

// New constructs a Generator.
func New(retriever *retrieval.Retriever, llmClient Completer) *Generator {
	return &Generator{retriever: retriever, llmClient: llmClient}
}

// Generate runs the full pipeline for one question against rules, given the
// resolved conversational context (nil for a bare NEW question with no
// session history) and any clarification answer/partial intent carried over
// from a prior turn.
func (g *Generator) Generate(
	ctx context.Context,
	question string,
	rules *types.CompiledRules,
	resolvedContext *convo.ResolvedContext,
	clarificationAnswer string,
	partialIntent map[string]any,
) (*Result, error) {
	if matchesModification(question) {
		return &Result{Refusal: "read_only_system"}, nil
	}

	if resolvedContext != nil && resolvedContext.IsRelated && resolvedContext.AnchorTurn != nil && resolvedContext.AnchorTurn.SQL != "" {
		if result := deterministicRewrite(question, resolvedContext); result != nil {
			return result, nil
		}
	}

	shouldCheckClarification := clarificationAnswer == "" &&
		(resolvedContext == nil || resolvedContext.ContinuationType == convo.ContinuationNew)

	if shouldCheckClarification {
		if cr := detectIncompleteIntent(question, rules); cr.NeedsClarification {
			return &Result{Clarification: &cr, IntentSummary: convo.IntentSummary{}}, nil
		}
	}

	var contextHints []string
	if resolvedContext != nil && resolvedContext.IsRelated {
		contextHints = resolvedContext.PreservedDimensions.Tables
	}

	var partial *retrieval.PartialIntent
	if len(partialIntent) > 0 {
		partial = partialIntentFromMap(partialIntent)
	}

	kbContext := g.retriever.Retrieve(question, rules, contextHints, partial, clarificationAnswer)

	promptText := prompt.Build(prompt.Input{
		Question:            question,
		SchemaName:          rules.SchemaName,
		KBContext:           kbContext,
		ResolvedContext:     resolvedContext,
		ClarificationAnswer: clarificationAnswer,
		PartialIntent:       partialIntent,
	})

	raw, err := g.llmClient.Complete(ctx, promptText)
	if err != nil {
		return nil, fmt.Errorf("generator: llm completion failed: %w", err)
	}

	extracted, err := llm.ExtractJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("generator: could not extract JSON from model response: %w", err)
	}

	var parsed llmResponse
	if err := json.Unmarshal([]byte(extracted), &parsed); err != nil {
		return nil, fmt.Errorf("generator: model response was not valid JSON: %w", err)
	}

	return &Result{
		SQL:           strings.TrimSpace(parsed.SQL),
		Confidence:    parsed.Confidence,
		TablesUsed:    parsed.TablesUsed,
		IntentSummary: parsed.IntentSummary,
		UsedLLM:       true,
	}, nil
}

func matchesModification(question string) bool {
	lower := strings.ToLower(question)
	for _, re := range modificationPatterns {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

// deterministicRewrite implements the LIMIT/ORDER BY fast path, returning
// nil if refinement_instruction isn't one it handles or the question
// doesn't parse as a value change.
func deterministicRewrite(question string, rc *convo.ResolvedContext) *Result {
	prevSQL := rc.AnchorTurn.SQL

	switch rc.RefinementInstruction {
	case "limit_change":
		newLimit, ok := patterns.ParseLimitValue(question)
		if !ok {
			return nil
		}
		newSQL := patterns.RewriteLimit(prevSQL, newLimit)
		intent := rc.AnchorTurn.IntentSummary
		intent.Limit = &newLimit
		return &Result{
			SQL:           newSQL,
			Confidence:    0.99,
			TablesUsed:    rc.PreservedDimensions.Tables,
			IntentSummary: intent,
		}
	case "order_change":
		order, ok := patterns.ParseOrderClause(question)
		if !ok {
			return nil
		}
		newSQL := patterns.RewriteOrder(prevSQL, order)
		intent := rc.AnchorTurn.IntentSummary
		intent.Ordering = &convo.Ordering{Column: order.Column, Direction: order.Direction}
		return &Result{
			SQL:           newSQL,
			Confidence:    0.99,
			TablesUsed:    rc.PreservedDimensions.Tables,
			IntentSummary: intent,
		}
	default:
		return nil
	}
}

// detectIncompleteIntent ports the corrected (non-legacy) clarification
// logic: strongly-vague openers with no table mention, "top ... branch"
// without a recognized metric, and bare entity-list requests.
func detectIncompleteIntent(question string, rules *types.CompiledRules) ClarificationRequest {
	q := strings.ToLower(strings.TrimSpace(question))

	tableTokens := make(map[string]struct{})
	if rules != nil {
		for key, table := range rules.Tables {
			tableTokens[strings.ToLower(key)] = struct{}{}
			tableTokens[strings.ToLower(table.Name)] = struct{}{}
		}
	}
	tableMentioned := false
	for tok := range tableTokens {
		if tok != "" && strings.Contains(q, tok) {
			tableMentioned = true
			break
		}
	}

	_, isVaguePhrase := vaguePhrases[q]
	startsVague := false
	for _, opener := range vagueOpeners {
		if strings.HasPrefix(q, opener) {
			startsVague = true
			break
		}
	}
	shortAndVague := startsVague && !tableMentioned && len(strings.Fields(q)) <= 4

	if isVaguePhrase || shortAndVague {
		return ClarificationRequest{
			NeedsClarification:    true,
			ClarificationQuestion: "Which table do you want (borrowers, loans, branches, collections, repayments, loan_documents, loan_status_history, field_officers)?",
			OriginalQuestion:      question,
			PartialIntent:         map[string]any{"vague": true, "needs_table": true},
		}
	}

	if strings.Contains(q, "top") && strings.Contains(q, "branch") {
		hasMetric := false
		for _, k := range topMetricKeywords {
			if strings.Contains(q, k) {
				hasMetric = true
				break
			}
		}
		if !hasMetric {
			return ClarificationRequest{
				NeedsClarification:    true,
				ClarificationQuestion: "Top branches by what metric: total collections, total repayments, total outstanding balance, total principal, or number of loans?",
				OriginalQuestion:      question,
				PartialIntent:         map[string]any{"entity": "branches", "needs_metric": true},
			}
		}
	}

	if _, ok := bareEntityRequests[q]; ok {
		entity := q
		if idx := strings.LastIndex(q, " "); idx >= 0 {
			entity = q[idx+1:]
		}
		return ClarificationRequest{
			NeedsClarification:    true,
			ClarificationQuestion: "How many records do you want (e.g., 10, 20, 50) and should it be latest-first?",
			OriginalQuestion:      question,
			PartialIntent:         map[string]any{"entity": entity, "needs_limit": true},
		}
	}

	return ClarificationRequest{NeedsClarification: false, OriginalQuestion: question}
}

func partialIntentFromMap(m map[string]any) *retrieval.PartialIntent {
	pi := &retrieval.PartialIntent{}
	if tables, ok := m["tables"].([]string); ok {
		pi.Tables = tables
	} else if rawTables, ok := m["tables"].([]any); ok {
		for _, t := range rawTables {
			if s, ok := t.(string); ok {
				pi.Tables = append(pi.Tables, s)
			}
		}
	}
	if metric, ok := m["metric"].(string); ok {
		pi.Metric = metric
	}
	return pi
}
