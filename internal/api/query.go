// Copyright (c) 2026 Ledger QL. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package api's query.go implements the two natural-language entry points:
POST /query for a fresh or follow-up question, and POST /clarify for the
follow-up turn that carries a clarification answer back from the client.
Both share one pipeline: resolve conversational context, generate SQL (or a
refusal/clarification), validate it, execute it, and record the turn.
*/
package api

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/ledgerql/gateway/internal/convo"
	"github.com/ledgerql/gateway/internal/convo/resolver"
	"github.com/ledgerql/gateway/internal/executor"
	"github.com/ledgerql/gateway/internal/generator"
	"github.com/ledgerql/gateway/internal/kb/scheduler"
	"github.com/ledgerql/gateway/internal/metrics"
	"github.com/ledgerql/gateway/internal/platform/apperr"
	"github.com/ledgerql/gateway/internal/platform/ctxutil"
	requestutil "github.com/ledgerql/gateway/internal/platform/request"
	"github.com/ledgerql/gateway/internal/platform/respond"
	"github.com/ledgerql/gateway/internal/platform/validate"
	"github.com/ledgerql/gateway/internal/validator"
	"github.com/ledgerql/gateway/pkg/slice"
)

// QueryRequest is the POST /query request body.
type QueryRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
}

// ClarifyRequest is the POST /clarify request body.
type ClarifyRequest struct {
	OriginalQuestion    string         `json:"original_question"`
	ClarificationAnswer string         `json:"clarification_answer"`
	PartialIntent       map[string]any `json:"partial_intent,omitempty"`
	SessionID           string         `json:"session_id,omitempty"`
}

// Provenance traces a returned result back to the tables and Compiled Rules
// version that produced it.
type Provenance struct {
	TablesUsed    []string `json:"tables_used"`
	KBVersion     string   `json:"kb_version"`
	CorrelationID string   `json:"correlation_id"`
}

// QueryResponse is the flat response shape shared by /query and /clarify.
type QueryResponse struct {
	NeedsClarification    bool             `json:"needs_clarification"`
	ClarificationQuestion string           `json:"clarification_question,omitempty"`
	PartialIntent         map[string]any   `json:"partial_intent,omitempty"`
	SQL                   string           `json:"sql,omitempty"`
	Rows                  []map[string]any `json:"rows,omitempty"`
	RowCount              int              `json:"row_count,omitempty"`
	ExecutionTimeMS       int64            `json:"execution_time_ms,omitempty"`
	Warnings              []string         `json:"warnings"`
	SafetyExplanation     string           `json:"safety_explanation,omitempty"`
	Confidence            float64          `json:"confidence,omitempty"`
	Provenance            *Provenance      `json:"provenance,omitempty"`
	RefusalMessage        string           `json:"refusal_message,omitempty"`
	CorrelationID         string           `json:"correlation_id"`
	SessionID             string           `json:"session_id"`
}

// QueryHandlers wires the full generation pipeline behind /query and /clarify.
type QueryHandlers struct {
	resolver  *resolver.Resolver
	generator *generator.Generator
	scheduler *scheduler.Scheduler
	executor  *executor.Executor
	metrics   *metrics.Collector

	statementTimeoutSeconds int
	log                     *slog.Logger
}

// NewQueryHandlers constructs the /query and /clarify handler set.
func NewQueryHandlers(
	res *resolver.Resolver,
	gen *generator.Generator,
	sched *scheduler.Scheduler,
	exec *executor.Executor,
	metricsCollector *metrics.Collector,
	statementTimeoutSeconds int,
	log *slog.Logger,
) *QueryHandlers {
	return &QueryHandlers{
		resolver:                res,
		generator:               gen,
		scheduler:               sched,
		executor:                exec,
		metrics:                 metricsCollector,
		statementTimeoutSeconds: statementTimeoutSeconds,
		log:                     log,
	}
}

// Query handles POST /query.
func (h *QueryHandlers) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := requestutil.DecodeJSON(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}

	v := (&validate.Validator{}).Required("question", req.Question)
	if err := v.Err(); err != nil {
		respond.Error(w, r, err)
		return
	}

	h.handle(w, r, req.Question, req.SessionID, "", nil)
}

// Clarify handles POST /clarify.
func (h *QueryHandlers) Clarify(w http.ResponseWriter, r *http.Request) {
	var req ClarifyRequest
	if err := requestutil.DecodeJSON(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}

	v := (&validate.Validator{}).
		Required("original_question", req.OriginalQuestion).
		Required("clarification_answer", req.ClarificationAnswer)
	if err := v.Err(); err != nil {
		respond.Error(w, r, err)
		return
	}

	h.handle(w, r, req.OriginalQuestion, req.SessionID, req.ClarificationAnswer, req.PartialIntent)
}

// handle runs the shared resolve → generate → validate → execute pipeline.
func (h *QueryHandlers) handle(
	w http.ResponseWriter,
	r *http.Request,
	question, sessionID, clarificationAnswer string,
	partialIntent map[string]any,
) {
	ctx := r.Context()
	correlationID := ctxutil.GetRequestID(ctx)
	log := ctxutil.GetLogger(ctx)

	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	rules := h.scheduler.Current()
	if rules == nil {
		respond.Error(w, r, apperr.KBNotReady())
		return
	}

	resolvedContext := h.resolver.Resolve(sessionID, question)

	result, err := h.generator.Generate(ctx, question, rules, &resolvedContext, clarificationAnswer, partialIntent)
	if err != nil {
		log.Error("sql_generation_failed", slog.String("error", err.Error()))
		h.metrics.RecordQuery(false, 0)
		respond.Error(w, r, apperr.GenerationFailed(err.Error(), false))
		return
	}

	if result.Refusal != "" {
		h.metrics.RecordQuery(true, 0)
		respond.JSON(w, http.StatusOK, QueryResponse{
			RefusalMessage: "This system is read-only and cannot modify data.",
			Warnings:       []string{},
			CorrelationID:  correlationID,
			SessionID:      sessionID,
		})
		return
	}

	if result.Clarification != nil {
		h.metrics.RecordClarification()
		respond.JSON(w, http.StatusOK, QueryResponse{
			NeedsClarification:    true,
			ClarificationQuestion: result.Clarification.ClarificationQuestion,
			PartialIntent:         result.Clarification.PartialIntent,
			Warnings:              []string{},
			CorrelationID:         correlationID,
			SessionID:             sessionID,
		})
		return
	}

	if result.SQL == "" {
		h.metrics.RecordQuery(false, 0)
		respond.Error(w, r, apperr.GenerationFailed("the model did not return a SQL statement", true))
		return
	}

	valResult := validator.Validate(result.SQL, rules)
	if !valResult.Valid {
		for _, reason := range valResult.FailureReasons {
			h.metrics.RecordValidationFailure(reason)
		}
		h.metrics.RecordQuery(false, 0)
		respond.Error(w, r, apperr.ValidationFailed(valResult.Errors))
		return
	}

	execResult, err := h.executor.Execute(ctx, valResult.SQL, h.statementTimeoutSeconds)
	if err != nil {
		log.Error("query_execution_failed", slog.String("error", err.Error()))
		h.metrics.RecordQuery(false, 0)
		respond.Error(w, r, apperr.GenerationFailed(err.Error(), true))
		return
	}

	h.metrics.RecordQuery(true, float64(execResult.ExecutionTimeMS))
	anchoredQuestion := question
	if clarificationAnswer != "" {
		anchoredQuestion = question + " [clarified: " + clarificationAnswer + "]"
	}
	h.resolver.AddTurn(sessionID, convo.Turn{
		Question:      anchoredQuestion,
		SQL:           valResult.SQL,
		IntentSummary: result.IntentSummary,
	})

	respond.JSON(w, http.StatusOK, QueryResponse{
		SQL:               valResult.SQL,
		Rows:              execResult.Rows,
		RowCount:          execResult.RowCount,
		ExecutionTimeMS:   execResult.ExecutionTimeMS,
		Warnings:          nonNilWarnings(valResult.Warnings),
		SafetyExplanation: valResult.SafetyExplanation,
		Confidence:        result.Confidence,
		Provenance: &Provenance{
			TablesUsed: slice.Filter(valResult.TablesUsed, func(t string) bool {
				return t != ""
			}),
			KBVersion:     rules.Version,
			CorrelationID: correlationID,
		},
		CorrelationID: correlationID,
		SessionID:     sessionID,
	})
}

func nonNilWarnings(w []string) []string {
	if w == nil {
		return []string{}
	}
	return w
}
