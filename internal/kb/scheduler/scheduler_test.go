// Copyright (c) 2026 Ledger QL. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package scheduler_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerql/gateway/internal/kb/compiler"
	"github.com/ledgerql/gateway/internal/kb/scheduler"
	"github.com/ledgerql/gateway/internal/kb/semantic"
	"github.com/ledgerql/gateway/internal/kb/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPolicy() compiler.Policy {
	return compiler.Policy{
		DefaultLimit: 50, MaxLimit: 500, MaxJoinDepth: 4,
		HardCapJoinDepth: 6, DeepJoinThreshold: 3, StatementTimeoutSeconds: 5,
		AllowedSchemas: []string{"public"},
	}
}

// fakeInvalidator counts how many times the scheduler asked it to drop
// cached aggregates after a successful refresh.
type fakeInvalidator struct{ calls int }

func (f *fakeInvalidator) InvalidateAll(ctx context.Context) error {
	f.calls++
	return nil
}

func TestStatus_InitialStateIsIdle(t *testing.T) {
	dir := t.TempDir()
	c := compiler.New(dir, testPolicy())
	s := semantic.New(filepath.Join(dir, "kb_semantic.json"))

	sched := scheduler.New(nil, s, c, "public", time.Hour, nil, testLogger())
	st := sched.Status()
	assert.Equal(t, scheduler.StateIdle, st.State)
	assert.False(t, st.InProgress)
	assert.Nil(t, sched.Current())
}

func TestStart_FailsWhenNoFallbackAvailable(t *testing.T) {
	dir := t.TempDir()
	c := compiler.New(dir, testPolicy())
	s := semantic.New(filepath.Join(dir, "kb_semantic.json"))

	sched := scheduler.New(&failingIntrospector{}, s, c, "public", time.Hour, nil, testLogger())
	err := sched.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, scheduler.StateFailedNoFallback, sched.Status().State)
}

func TestStart_SucceedsAndInvalidatesCache(t *testing.T) {
	dir := t.TempDir()
	c := compiler.New(dir, testPolicy())
	s := semantic.New(filepath.Join(dir, "kb_semantic.json"))
	cache := &fakeInvalidator{}

	sched := scheduler.New(&stubIntrospector{}, s, c, "public", time.Hour, cache, testLogger())
	err := sched.Start(context.Background())
	require.NoError(t, err)

	st := sched.Status()
	assert.Equal(t, scheduler.StateReady, st.State)
	require.NotNil(t, sched.Current())
	assert.Equal(t, 1, cache.calls)
}

// failingIntrospector always errors, exercising the no-fallback failure path.
type failingIntrospector struct{}

func (failingIntrospector) BuildKBSchema(ctx context.Context) (*types.KBSchema, error) {
	return nil, assert.AnError
}

// stubIntrospector returns a minimal one-table schema.
type stubIntrospector struct{}

func (stubIntrospector) BuildKBSchema(ctx context.Context) (*types.KBSchema, error) {
	return &types.KBSchema{
		Tables: map[string]*types.Table{
			"public.loans": {Schema: "public", Name: "loans"},
		},
	}, nil
}
