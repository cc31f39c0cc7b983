// Copyright (c) 2026 Ledger QL. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package scheduler owns the Knowledge Base refresh lifecycle: a blocking
refresh at startup, then a ticker-driven periodic refresh for the lifetime of
the process. The most recently compiled [types.CompiledRules] is published
through an atomic pointer so request handling never blocks on, or observes a
torn view of, a refresh in progress.

A failed refresh never replaces a healthy published snapshot: the scheduler
falls back to the "last known good" artifact on disk and marks itself
degraded rather than serving nothing.
*/
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ledgerql/gateway/internal/kb/compiler"
	"github.com/ledgerql/gateway/internal/kb/semantic"
	"github.com/ledgerql/gateway/internal/kb/types"
)

// SchemaIntrospector is the narrow interface the scheduler needs from
// [catalog.Introspector]; declared here so refresh cycles can be tested
// without a live database.
type SchemaIntrospector interface {
	BuildKBSchema(ctx context.Context) (*types.KBSchema, error)
}

// State names the scheduler's coarse lifecycle state, surfaced at /kb-status.
type State string

const (
	StateIdle                  State = "idle"
	StateRefreshing            State = "refreshing"
	StateReady                 State = "ready"
	StateDegradedLastKnownGood State = "degraded_last_known_good"
	StateFailedNoFallback      State = "failed_no_fallback"
)

// Status is the read-only snapshot returned by [Scheduler.Status].
type Status struct {
	State         State     `json:"state"`
	Version       string    `json:"version,omitempty"`
	LastRefresh   time.Time `json:"last_refresh,omitempty"`
	NextRefresh   time.Time `json:"next_refresh,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
	TableCount    int       `json:"table_count,omitempty"`
	InProgress    bool      `json:"in_progress"`
}

// CacheInvalidator is implemented by the metadata cache; the scheduler calls
// it after every successful refresh so stale cached aggregates never survive
// a schema change.
type CacheInvalidator interface {
	InvalidateAll(ctx context.Context) error
}

// Scheduler drives periodic Knowledge Base compilation.
type Scheduler struct {
	introspector SchemaIntrospector
	semantic     *semantic.Store
	compiler     *compiler.Compiler
	schemaName   string
	interval     time.Duration
	cache        CacheInvalidator
	log          *slog.Logger

	rules      atomic.Pointer[types.CompiledRules]
	refreshing atomic.Bool

	mu     statusMu
	status Status
}

// statusMu is a tiny named mutex wrapper so Status reads/writes don't race
// with a concurrent refresh.
type statusMu struct{ ch chan struct{} }

func newStatusMu() statusMu {
	m := statusMu{ch: make(chan struct{}, 1)}
	m.ch <- struct{}{}
	return m
}
func (m statusMu) Lock()   { <-m.ch }
func (m statusMu) Unlock() { m.ch <- struct{}{} }

// New constructs a Scheduler. cache may be nil when no metadata cache is configured.
func New(introspector SchemaIntrospector, semanticStore *semantic.Store, c *compiler.Compiler, schemaName string, interval time.Duration, cache CacheInvalidator, log *slog.Logger) *Scheduler {
	s := &Scheduler{
		introspector: introspector,
		semantic:     semanticStore,
		compiler:     c,
		schemaName:   schemaName,
		interval:     interval,
		cache:        cache,
		log:          log,
		mu:           newStatusMu(),
	}
	s.status.State = StateIdle
	return s
}

// Current returns the currently published Compiled Rules snapshot, or nil if
// no refresh has ever succeeded and no last-known-good artifact could be loaded.
func (s *Scheduler) Current() *types.CompiledRules {
	return s.rules.Load()
}

// Status returns a copy of the scheduler's current status.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	st.InProgress = s.refreshing.Load()
	return st
}

// Start performs one blocking refresh (so the process never serves traffic
// against an empty Knowledge Base) and then launches the periodic refresh
// loop, returning once the ticker goroutine is running. A failure on the
// initial refresh attempts the last-known-good fallback before returning an
// error; the caller should treat a non-nil error as fatal to startup only if
// the fallback also failed (see [Scheduler.Status] for the resulting state).
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.refreshOnce(ctx); err != nil {
		s.log.Error("initial knowledge base refresh failed", slog.String("error", err.Error()))
		if s.rules.Load() == nil {
			return fmt.Errorf("scheduler: initial refresh failed with no fallback available: %w", err)
		}
	}

	go s.loop(ctx)
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.refreshOnce(ctx); err != nil {
				s.log.Error("periodic knowledge base refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}

// refreshOnce performs a single compile-and-publish cycle. Concurrent calls
// (a tick firing while a manual refresh is in flight) are serialized by the
// in-progress flag: the later caller returns immediately without duplicating work.
func (s *Scheduler) refreshOnce(ctx context.Context) error {
	if !s.refreshing.CompareAndSwap(false, true) {
		return nil
	}
	defer s.refreshing.Store(false)

	s.setState(StateRefreshing, "")

	schema, err := s.introspector.BuildKBSchema(ctx)
	if err != nil {
		return s.fallback(fmt.Errorf("introspect: %w", err))
	}

	previous, err := s.semantic.Load()
	if err != nil {
		return s.fallback(fmt.Errorf("load semantic: %w", err))
	}
	semantic.Merge(schema, previous)

	rules, err := s.compiler.Compile(schema, s.schemaName)
	if err != nil {
		return s.fallback(fmt.Errorf("compile: %w", err))
	}

	if err := s.compiler.Persist(schema, rules); err != nil {
		return s.fallback(fmt.Errorf("persist: %w", err))
	}

	s.rules.Store(rules)

	s.mu.Lock()
	s.status = Status{
		State:       StateReady,
		Version:     rules.Version,
		LastRefresh: clockNow(),
		NextRefresh: clockNow().Add(s.interval),
		TableCount:  len(rules.Tables),
	}
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.InvalidateAll(ctx); err != nil {
			s.log.Warn("metadata cache invalidation failed after refresh", slog.String("error", err.Error()))
		}
	}

	s.log.Info("knowledge base refresh succeeded", slog.String("version", rules.Version), slog.Int("tables", len(rules.Tables)))
	return nil
}

// fallback attempts to load the last-known-good artifact from disk when a
// refresh step fails, publishing it if found and marking the scheduler
// degraded; if nothing was ever published, the scheduler has no fallback.
func (s *Scheduler) fallback(refreshErr error) error {
	if existing := s.rules.Load(); existing != nil {
		s.setState(StateDegradedLastKnownGood, refreshErr.Error())
		return refreshErr
	}

	loaded, loadErr := s.compiler.Load()
	if loadErr != nil {
		s.setState(StateFailedNoFallback, refreshErr.Error())
		return refreshErr
	}

	s.rules.Store(loaded)
	s.setState(StateDegradedLastKnownGood, refreshErr.Error())
	return refreshErr
}

func (s *Scheduler) setState(state State, lastError string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.State = state
	s.status.LastError = lastError
	if rules := s.rules.Load(); rules != nil {
		s.status.Version = rules.Version
		s.status.TableCount = len(rules.Tables)
	}
}

// clockNow exists so the only call to time.Now in this package is named and
// easy to find; scheduler timestamps are wall-clock by design.
func clockNow() time.Time { return time.Now() }
