// Copyright (c) 2026 Ledger QL. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package metadatacache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerql/gateway/internal/metadatacache"
)

func TestSetGet_LocalFallback(t *testing.T) {
	c := metadatacache.New(nil, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k1", "v1"))
	got, ok := c.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, "v1", got)
}

func TestGet_MissingKeyReturnsFalse(t *testing.T) {
	c := metadatacache.New(nil, time.Minute)
	_, ok := c.Get(context.Background(), "missing")
	assert.False(t, ok)
}

func TestGet_ExpiredEntryIsEvicted(t *testing.T) {
	c := metadatacache.New(nil, time.Millisecond)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k1", "v1"))
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get(ctx, "k1")
	assert.False(t, ok)
}

func TestSetJSON_GetJSON_RoundTrip(t *testing.T) {
	c := metadatacache.New(nil, time.Minute)
	ctx := context.Background()

	type probe struct {
		RowEstimate int64 `json:"row_estimate"`
	}
	require.NoError(t, c.SetJSON(ctx, "k2", probe{RowEstimate: 4200}))

	var got probe
	ok, err := c.GetJSON(ctx, "k2", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(4200), got.RowEstimate)
}

func TestInvalidateKey(t *testing.T) {
	c := metadatacache.New(nil, time.Minute)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k1", "v1"))
	require.NoError(t, c.InvalidateKey(ctx, "k1"))

	_, ok := c.Get(ctx, "k1")
	assert.False(t, ok)
}

func TestInvalidateAll_ClearsEverything(t *testing.T) {
	c := metadatacache.New(nil, time.Minute)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k1", "v1"))
	require.NoError(t, c.Set(ctx, "k2", "v2"))

	require.NoError(t, c.InvalidateAll(ctx))

	_, ok1 := c.Get(ctx, "k1")
	_, ok2 := c.Get(ctx, "k2")
	assert.False(t, ok1)
	assert.False(t, ok2)
}

func TestMaxDateKey_AndRowEstimateKey_AreStable(t *testing.T) {
	assert.Equal(t, metadatacache.MaxDateKey("core.loans", "created_at"), metadatacache.MaxDateKey("core.loans", "created_at"))
	assert.NotEqual(t, metadatacache.MaxDateKey("core.loans", "created_at"), metadatacache.RowEstimateKey("core.loans"))
}
