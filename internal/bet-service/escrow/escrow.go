// Package escrow mantém o pote de cada par casado. Não abre transação: roda
// sempre dentro da Tx do matching ou do settlement.
package escrow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/radieske/p2p-bet-exchange/internal/shared/model"
	"github.com/radieske/p2p-bet-exchange/internal/shared/store"
)

type Ledger struct {
	Now   func() time.Time
	NewID func() string
}

func New() *Ledger {
	return &Ledger{
		Now:   func() time.Time { return time.Now().UTC() },
		NewID: uuid.NewString,
	}
}

// Open cria o escrow HOLDING do par. original é a aposta publicada e
// counterpart a contra-aposta criada no aceite; backer e layer saem dos lados.
func (l *Ledger) Open(ctx context.Context, tx store.Tx, original, counterpart model.Bet) (model.Escrow, error) {
	backer, layer := original, counterpart
	if original.Side == model.Lay {
		backer, layer = counterpart, original
	}
	if backer.Side != model.Back || layer.Side != model.Lay {
		return model.Escrow{}, model.Invariant("escrow.open", "pair %s/%s is %s/%s", original.ID, counterpart.ID, original.Side, counterpart.Side)
	}
	if original.MatchID != counterpart.MatchID || !original.Odds.Equal(counterpart.Odds) || !original.Stake.Equal(counterpart.Stake) {
		return model.Escrow{}, model.Invariant("escrow.open", "pair %s/%s differs in match, odds or stake", original.ID, counterpart.ID)
	}
	if original.UserID == counterpart.UserID {
		return model.Escrow{}, model.Invariant("escrow.open", "pair %s/%s has a single user", original.ID, counterpart.ID)
	}

	now := l.Now()
	e := model.Escrow{
		ID:             l.NewID(),
		BetID:          original.ID,
		MatchedBetID:   counterpart.ID,
		BackerUserID:   backer.UserID,
		LayerUserID:    layer.UserID,
		BackerStake:    backer.Liability,
		LayerLiability: layer.Liability,
		TotalHeld:      backer.Liability.Add(layer.Liability),
		Status:         model.EscrowHolding,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := tx.InsertEscrow(ctx, e); err != nil {
		return model.Escrow{}, err
	}
	return e, nil
}

// Release paga o vencedor. payout e fee não podem ser negativos e
// payout + fee tem que fechar com TotalHeld.
func (l *Ledger) Release(ctx context.Context, tx store.Tx, id, winnerID string, payout, fee decimal.Decimal) (model.Escrow, error) {
	e, err := l.holding(ctx, tx, "escrow.release", id)
	if err != nil {
		return model.Escrow{}, err
	}
	if payout.IsNegative() || fee.IsNegative() {
		return model.Escrow{}, model.Invariant("escrow.release", "escrow %s: negative split payout %s fee %s", id, payout, fee)
	}
	if winnerID != e.BackerUserID && winnerID != e.LayerUserID {
		return model.Escrow{}, model.Invariant("escrow.release", "escrow %s: winner %s is not a participant", id, winnerID)
	}
	if !payout.Add(fee).Equal(e.TotalHeld) {
		return model.Escrow{}, model.Invariant("escrow.release", "escrow %s: payout %s + fee %s != held %s", id, payout, fee, e.TotalHeld)
	}

	now := l.Now()
	e.Status = model.EscrowReleased
	e.WinnerID = winnerID
	e.WinnerPayout = decimal.NewNullDecimal(payout)
	e.PlatformFee = decimal.NewNullDecimal(fee)
	e.ReleasedAt = &now
	e.UpdatedAt = now
	if err := tx.UpdateEscrow(ctx, e); err != nil {
		return model.Escrow{}, err
	}
	return e, nil
}

// Refund devolve o pote aos dois lados (partida anulada)
func (l *Ledger) Refund(ctx context.Context, tx store.Tx, id string) (model.Escrow, error) {
	e, err := l.holding(ctx, tx, "escrow.refund", id)
	if err != nil {
		return model.Escrow{}, err
	}
	now := l.Now()
	e.Status = model.EscrowRefunded
	e.ReleasedAt = &now
	e.UpdatedAt = now
	if err := tx.UpdateEscrow(ctx, e); err != nil {
		return model.Escrow{}, err
	}
	return e, nil
}

// holding trava o escrow e exige status HOLDING (estados finais são terminais)
func (l *Ledger) holding(ctx context.Context, tx store.Tx, op, id string) (model.Escrow, error) {
	e, err := tx.GetEscrowForUpdate(ctx, id)
	if err != nil {
		return model.Escrow{}, err
	}
	if e.Status != model.EscrowHolding {
		return model.Escrow{}, model.Invariant(op, "escrow %s is %s", id, e.Status)
	}
	return e, nil
}
