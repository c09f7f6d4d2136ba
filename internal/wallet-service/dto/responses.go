package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

type WalletResponse struct {
	UserID        string          `json:"userId"`
	Balance       decimal.Decimal `json:"balance"`
	EscrowBalance decimal.Decimal `json:"escrowBalance"`
	Available     decimal.Decimal `json:"availableBalance"`
}

type TransactionResponse struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balanceBefore"`
	BalanceAfter  decimal.Decimal `json:"balanceAfter"`
	ReferenceID   string          `json:"referenceId,omitempty"`
	Description   string          `json:"description"`
	CreatedAt     time.Time       `json:"createdAt"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
