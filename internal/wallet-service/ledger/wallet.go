package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/p2p-bet-exchange/internal/shared/model"
	"github.com/radieske/p2p-bet-exchange/internal/shared/store"
)

// Deposit credita a carteira, criando-a se ainda não existir
func (l *Ledger) Deposit(ctx context.Context, userID string, amount decimal.Decimal) (Balance, error) {
	amount = amount.Round(model.MoneyPlaces)
	if !amount.IsPositive() {
		return Balance{}, fmt.Errorf("deposit %s: %w", amount, model.ErrInvalidAmount)
	}
	var out Balance
	err := l.Store.InTx(ctx, func(tx store.Tx) error {
		if err := tx.EnsureAccount(ctx, userID); err != nil {
			return err
		}
		if _, err := l.ApplyDelta(ctx, tx, userID, amount, model.TxDeposit, "", "Deposit to wallet"); err != nil {
			return err
		}
		acc, err := tx.GetAccountForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		out = balanceOf(acc)
		return nil
	})
	if err != nil {
		return Balance{}, l.report("deposit", err)
	}
	l.report("deposit", nil)
	l.Log.Info("deposit", zap.String("userId", userID), zap.String("amount", amount.StringFixed(model.MoneyPlaces)))
	return out, nil
}

// Withdraw debita apenas do saldo disponível
func (l *Ledger) Withdraw(ctx context.Context, userID string, amount decimal.Decimal) (Balance, error) {
	amount = amount.Round(model.MoneyPlaces)
	if !amount.IsPositive() {
		return Balance{}, fmt.Errorf("withdraw %s: %w", amount, model.ErrInvalidAmount)
	}
	var out Balance
	err := l.Store.InTx(ctx, func(tx store.Tx) error {
		if _, err := l.ApplyDelta(ctx, tx, userID, amount.Neg(), model.TxWithdrawal, "", "Withdrawal from wallet"); err != nil {
			return err
		}
		acc, err := tx.GetAccountForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		out = balanceOf(acc)
		return nil
	})
	if err != nil {
		return Balance{}, l.report("withdraw", err)
	}
	l.report("withdraw", nil)
	l.Log.Info("withdraw", zap.String("userId", userID), zap.String("amount", amount.StringFixed(model.MoneyPlaces)))
	return out, nil
}

func (l *Ledger) Balance(ctx context.Context, userID string) (Balance, error) {
	acc, err := l.Store.GetAccount(ctx, userID)
	if err != nil {
		return Balance{}, err
	}
	return balanceOf(acc), nil
}

// Transactions devolve o extrato, mais recentes primeiro
func (l *Ledger) Transactions(ctx context.Context, userID string, limit int) ([]model.Transaction, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return l.Store.ListTransactions(ctx, userID, limit)
}

func balanceOf(a model.Account) Balance {
	return Balance{Balance: a.Balance, EscrowBalance: a.EscrowBalance, Available: a.Available()}
}
