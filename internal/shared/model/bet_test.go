package model

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBetTransitions(t *testing.T) {
	valid := [][2]BetStatus{
		{BetPending, BetMatched},
		{BetPending, BetCancelled},
		{BetPending, BetExpired},
		{BetMatched, BetSettled},
	}
	for _, v := range valid {
		b := Bet{ID: "b1", Status: v[0]}
		require.NoError(t, b.Transition(v[1]))
		assert.Equal(t, v[1], b.Status)
	}

	invalid := [][2]BetStatus{
		{BetMatched, BetPending},
		{BetMatched, BetCancelled},
		{BetSettled, BetMatched},
		{BetSettled, BetSettled},
		{BetCancelled, BetMatched},
		{BetExpired, BetPending},
		{BetPending, BetSettled},
	}
	for _, v := range invalid {
		b := Bet{ID: "b1", Status: v[0]}
		err := b.Transition(v[1])
		require.Error(t, err, "%s -> %s", v[0], v[1])
		assert.True(t, IsInvariant(err))
		assert.Equal(t, v[0], b.Status)
	}
}

func TestBetCheckLinks(t *testing.T) {
	b := Bet{ID: "b1", Status: BetMatched, MatchedBetID: "b2"}
	assert.True(t, IsInvariant(b.CheckLinks()))

	b.EscrowID = "e1"
	assert.NoError(t, b.CheckLinks())

	p := Bet{ID: "b3", Status: BetPending, EscrowID: "e1"}
	assert.True(t, IsInvariant(p.CheckLinks()))
}

func TestBetOpen(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	b := Bet{Status: BetPending, MatchStartTime: now.Add(time.Hour)}
	assert.True(t, b.Open(now))
	assert.False(t, b.Open(now.Add(2*time.Hour)))

	b.Status = BetMatched
	assert.False(t, b.Open(now))
}

func TestAccountCheck(t *testing.T) {
	a := Account{UserID: "u1", Balance: d("100"), EscrowBalance: d("40")}
	require.NoError(t, a.Check())
	assert.True(t, d("60").Equal(a.Available()))

	a.EscrowBalance = d("-1")
	assert.True(t, IsInvariant(a.Check()))

	a.EscrowBalance = d("101")
	assert.True(t, IsInvariant(a.Check()))
}

func TestInvariantErrorWrapping(t *testing.T) {
	err := Invariant("ledger.release", "escrow would be %s", "-5")
	wrapped := errors.Join(errors.New("settle"), err)
	assert.True(t, IsInvariant(wrapped))
	assert.False(t, IsInvariant(ErrNotSettleable))
	assert.True(t, Retryable(ErrContended))
	assert.False(t, Retryable(ErrAlreadyMatched))
}

func TestCode(t *testing.T) {
	assert.Equal(t, "", Code(nil))
	assert.Equal(t, "contended", Code(fmt.Errorf("accept: %w", ErrContended)))
	assert.Equal(t, "invariant_violation", Code(fmt.Errorf("tx: %w", Invariant("op", "x"))))
	assert.Equal(t, "internal", Code(errors.New("db down")))
}
