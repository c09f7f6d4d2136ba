package dto

import "github.com/shopspring/decimal"

// AmountRequest serve para depósito e saque; o usuário vem do header X-User-ID
type AmountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}
