package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// EscrowStatus é o estado do pote de um par casado
type EscrowStatus string

const (
	EscrowHolding  EscrowStatus = "HOLDING"  // fundos travados, aposta ativa
	EscrowReleased EscrowStatus = "RELEASED" // pago ao vencedor
	EscrowRefunded EscrowStatus = "REFUNDED" // devolvido (partida anulada)
)

// Escrow guarda stake do backer + liability do layer de exatamente um par casado.
// TotalHeld é fixado na criação e nunca muda.
type Escrow struct {
	ID             string
	BetID          string
	MatchedBetID   string
	BackerUserID   string
	LayerUserID    string
	BackerStake    decimal.Decimal
	LayerLiability decimal.Decimal
	TotalHeld      decimal.Decimal
	Status         EscrowStatus
	WinnerID       string
	WinnerPayout   decimal.NullDecimal
	PlatformFee    decimal.NullDecimal
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ReleasedAt     *time.Time
}
