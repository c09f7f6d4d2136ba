// Package ledger concentra toda mutação de saldo. Cada operação trava a linha
// da carteira, valida as invariantes e grava um lançamento append-only na
// mesma transação. As operações de Tx não abrem transação própria: quem
// chama (matching, settlement) define a fronteira.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/p2p-bet-exchange/internal/shared/model"
	"github.com/radieske/p2p-bet-exchange/internal/shared/store"
)

// DefaultHistoryLimit é o tamanho padrão do extrato
const DefaultHistoryLimit = 50

// Ledger aplica débitos, créditos e movimentos de escrow
type Ledger struct {
	Store store.Store
	Log   *zap.Logger

	Now   func() time.Time
	NewID func() string

	OnInvariant func(component string)    // métricas: violação de invariante
	OnOperation func(op string, err error) // métricas: deposit/withdraw
}

// Result é o efeito de um ApplyDelta
type Result struct {
	NewBalance  decimal.Decimal
	Transaction model.Transaction
}

// Balance é a visão de saldo exposta ao usuário
type Balance struct {
	Balance       decimal.Decimal
	EscrowBalance decimal.Decimal
	Available     decimal.Decimal
}

func New(s store.Store, log *zap.Logger) *Ledger {
	return &Ledger{
		Store: s,
		Log:   log,
		Now:   func() time.Time { return time.Now().UTC() },
		NewID: uuid.NewString,
	}
}

// ApplyDelta soma amount (com sinal) ao saldo do usuário.
// Falha com ErrInsufficientFunds se o saldo ficaria negativo ou se um débito
// invadiria o valor em escrow (só o saldo disponível é gastável).
// Valores são arredondados a centavos; delta zero é ErrInvalidAmount.
func (l *Ledger) ApplyDelta(ctx context.Context, tx store.Tx, userID string, amount decimal.Decimal,
	typ model.TxType, referenceID, description string) (Result, error) {
	amount = amount.Round(model.MoneyPlaces)
	if amount.IsZero() {
		return Result{}, fmt.Errorf("user %s delta %s: %w", userID, amount, model.ErrInvalidAmount)
	}

	acc, err := tx.GetAccountForUpdate(ctx, userID)
	if err != nil {
		return Result{}, err
	}

	before := acc.Balance
	after := before.Add(amount)
	if after.IsNegative() {
		return Result{}, fmt.Errorf("user %s balance %s, delta %s: %w", userID, before, amount, model.ErrInsufficientFunds)
	}
	if amount.IsNegative() && after.LessThan(acc.EscrowBalance) {
		return Result{}, fmt.Errorf("user %s available %s, delta %s: %w", userID, acc.Available(), amount, model.ErrInsufficientFunds)
	}

	acc.Balance = after
	rec, err := l.persist(ctx, tx, acc, model.Transaction{
		UserID:        userID,
		Type:          typ,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		ReferenceID:   referenceID,
		Description:   description,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{NewBalance: after, Transaction: rec}, nil
}

// MoveToEscrow trava amount do saldo disponível; o saldo total não muda
func (l *Ledger) MoveToEscrow(ctx context.Context, tx store.Tx, userID string, amount decimal.Decimal, betID string) error {
	amount = amount.Round(model.MoneyPlaces)
	if !amount.IsPositive() {
		return fmt.Errorf("escrow hold %s: %w", amount, model.ErrInvalidAmount)
	}

	acc, err := tx.GetAccountForUpdate(ctx, userID)
	if err != nil {
		return err
	}
	if acc.Available().LessThan(amount) {
		return fmt.Errorf("user %s available %s, required %s: %w", userID, acc.Available(), amount, model.ErrInsufficientFunds)
	}

	acc.EscrowBalance = acc.EscrowBalance.Add(amount)
	_, err = l.persist(ctx, tx, acc, model.Transaction{
		UserID:        userID,
		Type:          model.TxEscrowHold,
		Amount:        amount,
		BalanceBefore: acc.Balance,
		BalanceAfter:  acc.Balance,
		ReferenceID:   betID,
		Description:   "Escrow hold for bet " + betID,
	})
	return err
}

// ReleaseFromEscrow libera amount do escrow. Se won, o valor volta ao saldo.
// Escrow negativo é violação de invariante e aborta a transação.
func (l *Ledger) ReleaseFromEscrow(ctx context.Context, tx store.Tx, userID string, amount decimal.Decimal, betID string, won bool) error {
	amount = amount.Round(model.MoneyPlaces)
	if !amount.IsPositive() {
		return fmt.Errorf("escrow release %s: %w", amount, model.ErrInvalidAmount)
	}

	acc, err := l.releaseEscrow(ctx, tx, "ledger.release_from_escrow", userID, amount)
	if err != nil {
		return err
	}

	before := acc.Balance
	signed := amount.Neg()
	desc := "Bet lost - escrow released for " + betID
	if won {
		acc.Balance = acc.Balance.Add(amount)
		signed = amount
		desc = "Bet won - payout for " + betID
	}
	_, err = l.persist(ctx, tx, acc, model.Transaction{
		UserID:        userID,
		Type:          model.TxEscrowRelease,
		Amount:        signed,
		BalanceBefore: before,
		BalanceAfter:  acc.Balance,
		ReferenceID:   betID,
		Description:   desc,
	})
	return err
}

// RefundEscrow devolve a trava ao saldo disponível (partida anulada)
func (l *Ledger) RefundEscrow(ctx context.Context, tx store.Tx, userID string, amount decimal.Decimal, betID string) error {
	amount = amount.Round(model.MoneyPlaces)
	if !amount.IsPositive() {
		return fmt.Errorf("escrow refund %s: %w", amount, model.ErrInvalidAmount)
	}

	acc, err := l.releaseEscrow(ctx, tx, "ledger.refund_escrow", userID, amount)
	if err != nil {
		return err
	}
	_, err = l.persist(ctx, tx, acc, model.Transaction{
		UserID:        userID,
		Type:          model.TxBetRefund,
		Amount:        amount,
		BalanceBefore: acc.Balance,
		BalanceAfter:  acc.Balance,
		ReferenceID:   betID,
		Description:   "Bet void - escrow refunded for " + betID,
	})
	return err
}

func (l *Ledger) releaseEscrow(ctx context.Context, tx store.Tx, op, userID string, amount decimal.Decimal) (model.Account, error) {
	acc, err := tx.GetAccountForUpdate(ctx, userID)
	if err != nil {
		return model.Account{}, err
	}
	acc.EscrowBalance = acc.EscrowBalance.Sub(amount)
	if acc.EscrowBalance.IsNegative() {
		return model.Account{}, model.Invariant(op, "user %s escrow balance would be %s", userID, acc.EscrowBalance)
	}
	return acc, nil
}

// persist grava a carteira e o lançamento correspondente
func (l *Ledger) persist(ctx context.Context, tx store.Tx, acc model.Account, rec model.Transaction) (model.Transaction, error) {
	now := l.Now()
	acc.UpdatedAt = now
	if err := tx.UpdateAccount(ctx, acc); err != nil {
		return model.Transaction{}, err
	}
	rec.ID = l.NewID()
	rec.CreatedAt = now
	if err := tx.InsertTransaction(ctx, rec); err != nil {
		return model.Transaction{}, err
	}
	return rec, nil
}

// report loga e conta violações das operações avulsas (deposit/withdraw).
// Dentro de matching/settlement quem reporta é o engine dono da transação.
func (l *Ledger) report(op string, err error) error {
	if l.OnOperation != nil {
		l.OnOperation(op, err)
	}
	if model.IsInvariant(err) {
		l.Log.Error("ledger invariant violated", zap.Error(err))
		if l.OnInvariant != nil {
			l.OnInvariant("wallet")
		}
	}
	return err
}
