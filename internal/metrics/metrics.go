// Copyright (c) 2026 Ledger QL. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package metrics holds the in-process counters surfaced at /metrics: query
outcomes, clarification requests, validation-failure reasons, execution
timing samples, KB refresh counts, and LLM/RAG request counts and
durations. There is no external metrics backend here (no Prometheus
client in the dependency stack this system descends from) — this mirrors
the original source's single in-memory MetricsCollector, ported to
Go's atomic/mutex primitives instead of a module-level singleton.
*/
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

const maxExecutionSamples = 1000

// Collector accumulates counters for one running process. All fields are
// safe for concurrent use from multiple request goroutines.
type Collector struct {
	totalQueries      atomic.Int64
	successfulQueries atomic.Int64
	failedQueries     atomic.Int64

	clarificationRequests atomic.Int64

	mu                        sync.Mutex
	validationFailures        int64
	validationFailureByReason map[string]int64

	totalExecutionTimeMS float64
	executionTimeSamples []float64
	maxExecutionTimeMS   float64

	kbRefreshCount    atomic.Int64
	kbRefreshFailures atomic.Int64
	lastKBRefresh     time.Time
	kbVersion         string

	llmRequests    atomic.Int64
	llmFailures    atomic.Int64
	totalLLMTimeMS atomic.Int64

	ragRequests    atomic.Int64
	ragFailures    atomic.Int64
	totalRAGTimeMS atomic.Int64
}

// New constructs an empty Collector.
func New() *Collector {
	return &Collector{validationFailureByReason: make(map[string]int64)}
}

// RecordQuery records one completed query request. executionTimeMS is
// ignored (pass 0) when success is false or no row was executed.
func (c *Collector) RecordQuery(success bool, executionTimeMS float64) {
	c.totalQueries.Add(1)
	if !success {
		c.failedQueries.Add(1)
		return
	}
	c.successfulQueries.Add(1)
	if executionTimeMS <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalExecutionTimeMS += executionTimeMS
	c.executionTimeSamples = append(c.executionTimeSamples, executionTimeMS)
	if executionTimeMS > c.maxExecutionTimeMS {
		c.maxExecutionTimeMS = executionTimeMS
	}
	if len(c.executionTimeSamples) > maxExecutionSamples {
		c.executionTimeSamples = c.executionTimeSamples[len(c.executionTimeSamples)-maxExecutionSamples:]
	}
}

// RecordClarification records one clarification request returned to the caller.
func (c *Collector) RecordClarification() {
	c.clarificationRequests.Add(1)
}

// RecordValidationFailure records a rejection under the given reason code
// (one of the validator package's Reason* constants).
func (c *Collector) RecordValidationFailure(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.validationFailures++
	c.validationFailureByReason[reason]++
}

// RecordKBRefresh records one KB Scheduler refresh attempt.
func (c *Collector) RecordKBRefresh(success bool, version string) {
	c.kbRefreshCount.Add(1)
	if !success {
		c.kbRefreshFailures.Add(1)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastKBRefresh = time.Now()
	if version != "" {
		c.kbVersion = version
	}
}

// RecordLLMRequest records one LLM completion call.
func (c *Collector) RecordLLMRequest(success bool, durationMS float64) {
	c.llmRequests.Add(1)
	c.totalLLMTimeMS.Add(int64(durationMS))
	if !success {
		c.llmFailures.Add(1)
	}
}

// RecordRAGRequest records one KB retrieval call.
func (c *Collector) RecordRAGRequest(success bool, durationMS float64) {
	c.ragRequests.Add(1)
	c.totalRAGTimeMS.Add(int64(durationMS))
	if !success {
		c.ragFailures.Add(1)
	}
}

// QueryStats is the queries.* section of Snapshot.
type QueryStats struct {
	Total       int64   `json:"total"`
	Successful  int64   `json:"successful"`
	Failed      int64   `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
}

// ClarificationStats is the clarifications.* section of Snapshot.
type ClarificationStats struct {
	Total int64   `json:"total"`
	Rate  float64 `json:"rate"`
}

// ValidationStats is the validation.* section of Snapshot.
type ValidationStats struct {
	Failures       int64            `json:"failures"`
	FailureReasons map[string]int64 `json:"failure_reasons"`
}

// ExecutionStats is the execution.* section of Snapshot.
type ExecutionStats struct {
	AvgTimeMS   float64 `json:"avg_time_ms"`
	MaxTimeMS   float64 `json:"max_time_ms"`
	TotalTimeMS float64 `json:"total_time_ms"`
}

// KBStats is the kb.* section of Snapshot.
type KBStats struct {
	RefreshCount    int64      `json:"refresh_count"`
	RefreshFailures int64      `json:"refresh_failures"`
	LastRefresh     *time.Time `json:"last_refresh,omitempty"`
	Version         string     `json:"version,omitempty"`
}

// RequestStats is the shared shape of the llm.* and rag.* sections.
type RequestStats struct {
	Requests  int64   `json:"requests"`
	Failures  int64   `json:"failures"`
	AvgTimeMS float64 `json:"avg_time_ms"`
}

// Snapshot is the full point-in-time view serialized at /metrics.
type Snapshot struct {
	Queries        QueryStats         `json:"queries"`
	Clarifications ClarificationStats `json:"clarifications"`
	Validation     ValidationStats    `json:"validation"`
	Execution      ExecutionStats     `json:"execution"`
	KB             KBStats            `json:"kb"`
	LLM            RequestStats       `json:"llm"`
	RAG            RequestStats       `json:"rag"`
}

// Snapshot captures every counter's current value into one immutable struct.
func (c *Collector) Snapshot() Snapshot {
	total := c.totalQueries.Load()
	successful := c.successfulQueries.Load()
	clarifications := c.clarificationRequests.Load()

	c.mu.Lock()
	failureReasons := make(map[string]int64, len(c.validationFailureByReason))
	for k, v := range c.validationFailureByReason {
		failureReasons[k] = v
	}
	failures := c.validationFailures
	avgExec := 0.0
	if len(c.executionTimeSamples) > 0 {
		sum := 0.0
		for _, s := range c.executionTimeSamples {
			sum += s
		}
		avgExec = sum / float64(len(c.executionTimeSamples))
	}
	maxExec := c.maxExecutionTimeMS
	totalExec := c.totalExecutionTimeMS
	var lastRefresh *time.Time
	if !c.lastKBRefresh.IsZero() {
		t := c.lastKBRefresh
		lastRefresh = &t
	}
	version := c.kbVersion
	c.mu.Unlock()

	var successRate, clarificationRate float64
	if total > 0 {
		successRate = float64(successful) / float64(total)
		clarificationRate = float64(clarifications) / float64(total)
	}

	llmRequests := c.llmRequests.Load()
	var llmAvg float64
	if llmRequests > 0 {
		llmAvg = float64(c.totalLLMTimeMS.Load()) / float64(llmRequests)
	}

	ragRequests := c.ragRequests.Load()
	var ragAvg float64
	if ragRequests > 0 {
		ragAvg = float64(c.totalRAGTimeMS.Load()) / float64(ragRequests)
	}

	return Snapshot{
		Queries: QueryStats{
			Total:       total,
			Successful:  successful,
			Failed:      c.failedQueries.Load(),
			SuccessRate: successRate,
		},
		Clarifications: ClarificationStats{
			Total: clarifications,
			Rate:  clarificationRate,
		},
		Validation: ValidationStats{
			Failures:       failures,
			FailureReasons: failureReasons,
		},
		Execution: ExecutionStats{
			AvgTimeMS:   avgExec,
			MaxTimeMS:   maxExec,
			TotalTimeMS: totalExec,
		},
		KB: KBStats{
			RefreshCount:    c.kbRefreshCount.Load(),
			RefreshFailures: c.kbRefreshFailures.Load(),
			LastRefresh:     lastRefresh,
			Version:         version,
		},
		LLM: RequestStats{Requests: llmRequests, Failures: c.llmFailures.Load(), AvgTimeMS: llmAvg},
		RAG: RequestStats{Requests: ragRequests, Failures: c.ragFailures.Load(), AvgTimeMS: ragAvg},
	}
}
