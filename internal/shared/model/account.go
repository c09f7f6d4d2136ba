package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account é o estado de carteira de um usuário.
// Invariante: 0 <= EscrowBalance <= Balance.
type Account struct {
	UserID        string
	Balance       decimal.Decimal
	EscrowBalance decimal.Decimal
	TotalBets     int
	WonBets       int
	LostBets      int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Available é o único valor que o usuário pode comprometer
func (a Account) Available() decimal.Decimal {
	return a.Balance.Sub(a.EscrowBalance)
}

// Check valida as invariantes de saldo
func (a Account) Check() error {
	if a.EscrowBalance.IsNegative() {
		return Invariant("account.check", "user %s escrow balance %s is negative", a.UserID, a.EscrowBalance)
	}
	if a.EscrowBalance.GreaterThan(a.Balance) {
		return Invariant("account.check", "user %s escrow balance %s exceeds balance %s", a.UserID, a.EscrowBalance, a.Balance)
	}
	return nil
}

// TxType é o tipo de lançamento no ledger
type TxType string

const (
	TxDeposit       TxType = "DEPOSIT"
	TxWithdrawal    TxType = "WITHDRAWAL"
	TxBetPlaced     TxType = "BET_PLACED"
	TxBetMatched    TxType = "BET_MATCHED"
	TxBetWon        TxType = "BET_WON"
	TxBetLost       TxType = "BET_LOST"
	TxBetRefund     TxType = "BET_REFUND"
	TxPlatformFee   TxType = "PLATFORM_FEE"
	TxEscrowHold    TxType = "ESCROW_HOLD"
	TxEscrowRelease TxType = "ESCROW_RELEASE"
)

// Transaction é uma linha imutável de auditoria: uma por mutação do ledger
type Transaction struct {
	ID            string
	UserID        string
	Type          TxType
	Amount        decimal.Decimal // com sinal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	ReferenceID   string
	Description   string
	CreatedAt     time.Time
}
