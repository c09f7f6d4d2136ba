package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BetStatus é o estado de uma aposta
type BetStatus string

const (
	BetPending   BetStatus = "PENDING"   // aguardando contraparte
	BetMatched   BetStatus = "MATCHED"   // casada com a contra-aposta
	BetSettled   BetStatus = "SETTLED"   // resultado processado
	BetCancelled BetStatus = "CANCELLED" // cancelada pelo dono antes do match
	BetExpired   BetStatus = "EXPIRED"   // partida começou sem contraparte
)

// transições válidas; qualquer outra é defeito
var betTransitions = map[BetStatus][]BetStatus{
	BetPending: {BetMatched, BetCancelled, BetExpired},
	BetMatched: {BetSettled},
}

// Bet é um lado de uma aposta P2P
type Bet struct {
	ID             string
	UserID         string
	MatchID        string
	MatchTitle     string
	MatchStartTime time.Time
	Side           Side
	Outcome        Outcome
	Odds           decimal.Decimal
	Stake          decimal.Decimal
	Liability      decimal.Decimal
	Status         BetStatus
	MatchedBetID   string // vazio quando não casada
	EscrowID       string // vazio quando não casada
	IsPublic       bool
	ChallengeToken string // só apostas privadas
	Payout         decimal.NullDecimal
	ActualResult   Outcome // vazio até o settlement
	CreatedAt      time.Time
	UpdatedAt      time.Time
	SettledAt      *time.Time
}

// Transition move a aposta para `to` validando a máquina de estados
func (b *Bet) Transition(to BetStatus) error {
	for _, next := range betTransitions[b.Status] {
		if next == to {
			b.Status = to
			return nil
		}
	}
	return Invariant("bet.transition", "bet %s: %s -> %s", b.ID, b.Status, to)
}

// CheckLinks valida que apostas MATCHED têm contraparte e escrow, e que
// apostas PENDING/CANCELLED/EXPIRED não têm nenhum dos dois
func (b *Bet) CheckLinks() error {
	linked := b.MatchedBetID != "" && b.EscrowID != ""
	switch b.Status {
	case BetMatched:
		if !linked {
			return Invariant("bet.links", "matched bet %s without counterpart or escrow", b.ID)
		}
	case BetPending, BetCancelled, BetExpired:
		if b.MatchedBetID != "" || b.EscrowID != "" {
			return Invariant("bet.links", "%s bet %s has match links", b.Status, b.ID)
		}
	}
	return nil
}

// Open informa se a aposta ainda pode ser aceita
func (b *Bet) Open(now time.Time) bool {
	return b.Status == BetPending && b.MatchStartTime.After(now)
}
