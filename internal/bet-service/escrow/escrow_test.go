package escrow

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/p2p-bet-exchange/internal/shared/model"
	"github.com/radieske/p2p-bet-exchange/internal/shared/store"
	"github.com/radieske/p2p-bet-exchange/internal/shared/store/memstore"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func pair() (original, counterpart model.Bet) {
	original = model.Bet{
		ID: "b1", UserID: "alice", MatchID: "m1", Side: model.Back, Outcome: model.HomeWin,
		Odds: d("3.0"), Stake: d("200"), Liability: d("200"),
	}
	counterpart = original
	counterpart.ID = "b2"
	counterpart.UserID = "bob"
	counterpart.Side = model.Lay
	counterpart.Liability = d("400")
	return original, counterpart
}

func open(t *testing.T, s *memstore.Store, l *Ledger, original, counterpart model.Bet) model.Escrow {
	t.Helper()
	var e model.Escrow
	require.NoError(t, s.InTx(context.Background(), func(tx store.Tx) error {
		var err error
		e, err = l.Open(context.Background(), tx, original, counterpart)
		return err
	}))
	return e
}

func TestOpen_AssignsSidesAndTotal(t *testing.T) {
	s, l := memstore.New(), New()
	original, counterpart := pair()

	e := open(t, s, l, original, counterpart)
	assert.Equal(t, model.EscrowHolding, e.Status)
	assert.Equal(t, "b1", e.BetID)
	assert.Equal(t, "b2", e.MatchedBetID)
	assert.Equal(t, "alice", e.BackerUserID)
	assert.Equal(t, "bob", e.LayerUserID)
	assert.True(t, e.TotalHeld.Equal(d("600")))
	assert.True(t, e.TotalHeld.Equal(e.BackerStake.Add(e.LayerLiability)))
}

func TestOpen_LayOriginal(t *testing.T) {
	s, l := memstore.New(), New()
	backer, layer := pair()
	// o lay publicou, o backer aceitou
	e := open(t, s, l, layer, backer)
	assert.Equal(t, "b2", e.BetID)
	assert.Equal(t, "alice", e.BackerUserID)
	assert.Equal(t, "bob", e.LayerUserID)
}

func TestOpen_RejectsInconsistentPair(t *testing.T) {
	l := New()
	original, counterpart := pair()
	counterpart.Side = model.Back

	err := memstore.New().InTx(context.Background(), func(tx store.Tx) error {
		_, err := l.Open(context.Background(), tx, original, counterpart)
		return err
	})
	assert.True(t, model.IsInvariant(err))
}

func TestRelease(t *testing.T) {
	s, l := memstore.New(), New()
	original, counterpart := pair()
	e := open(t, s, l, original, counterpart)
	ctx := context.Background()

	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		_, err := l.Release(ctx, tx, e.ID, "alice", d("570"), d("30"))
		return err
	}))
	got, _ := s.GetEscrow(ctx, e.ID)
	assert.Equal(t, model.EscrowReleased, got.Status)
	assert.Equal(t, "alice", got.WinnerID)
	assert.True(t, got.WinnerPayout.Decimal.Equal(d("570")))
	assert.NotNil(t, got.ReleasedAt)

	// estado terminal
	err := s.InTx(ctx, func(tx store.Tx) error {
		_, err := l.Refund(ctx, tx, e.ID)
		return err
	})
	assert.True(t, model.IsInvariant(err))
}

func TestRelease_RejectsBadSplitOrStranger(t *testing.T) {
	s, l := memstore.New(), New()
	original, counterpart := pair()
	e := open(t, s, l, original, counterpart)
	ctx := context.Background()

	err := s.InTx(ctx, func(tx store.Tx) error {
		_, err := l.Release(ctx, tx, e.ID, "alice", d("580"), d("30"))
		return err
	})
	assert.True(t, model.IsInvariant(err))

	err = s.InTx(ctx, func(tx store.Tx) error {
		_, err := l.Release(ctx, tx, e.ID, "carol", d("570"), d("30"))
		return err
	})
	assert.True(t, model.IsInvariant(err))

	// soma fecha com o pote, mas o vencedor sairia devendo
	err = s.InTx(ctx, func(tx store.Tx) error {
		_, err := l.Release(ctx, tx, e.ID, "alice", d("-300"), d("900"))
		return err
	})
	assert.True(t, model.IsInvariant(err))

	got, _ := s.GetEscrow(ctx, e.ID)
	assert.Equal(t, model.EscrowHolding, got.Status)
}

func TestRefund(t *testing.T) {
	s, l := memstore.New(), New()
	original, counterpart := pair()
	e := open(t, s, l, original, counterpart)
	ctx := context.Background()

	require.NoError(t, s.InTx(ctx, func(tx store.Tx) error {
		_, err := l.Refund(ctx, tx, e.ID)
		return err
	}))
	got, _ := s.GetEscrow(ctx, e.ID)
	assert.Equal(t, model.EscrowRefunded, got.Status)
	assert.Empty(t, got.WinnerID)
}
