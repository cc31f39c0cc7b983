// Copyright (c) 2026 Ledger QL. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerql/gateway/internal/convo"
	"github.com/ledgerql/gateway/internal/convo/session"
)

func TestAddTurn_UnknownSessionStartsEmpty(t *testing.T) {
	s := session.New(3)
	assert.Nil(t, s.Turns("unseen"))
}

func TestAddTurn_AppendsInOrder(t *testing.T) {
	s := session.New(3)
	s.AddTurn("s1", convo.Turn{Question: "one"})
	s.AddTurn("s1", convo.Turn{Question: "two"})

	turns := s.Turns("s1")
	require.Len(t, turns, 2)
	assert.Equal(t, "one", turns[0].Question)
	assert.Equal(t, "two", turns[1].Question)
}

func TestAddTurn_EvictsOldestBeyondCapacity(t *testing.T) {
	s := session.New(2)
	s.AddTurn("s1", convo.Turn{Question: "one"})
	s.AddTurn("s1", convo.Turn{Question: "two"})
	s.AddTurn("s1", convo.Turn{Question: "three"})

	turns := s.Turns("s1")
	require.Len(t, turns, 2)
	assert.Equal(t, "two", turns[0].Question)
	assert.Equal(t, "three", turns[1].Question)
}

func TestClear_RemovesHistory(t *testing.T) {
	s := session.New(3)
	s.AddTurn("s1", convo.Turn{Question: "one"})
	s.Clear("s1")
	assert.Nil(t, s.Turns("s1"))
}

func TestSessionCount(t *testing.T) {
	s := session.New(3)
	assert.Equal(t, 0, s.SessionCount())
	s.AddTurn("s1", convo.Turn{Question: "one"})
	s.AddTurn("s2", convo.Turn{Question: "two"})
	assert.Equal(t, 2, s.SessionCount())
}
