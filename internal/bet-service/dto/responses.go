package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/p2p-bet-exchange/internal/shared/model"
)

type BetResponse struct {
	ID             string           `json:"id"`
	UserID         string           `json:"userId"`
	MatchID        string           `json:"matchId"`
	MatchTitle     string           `json:"matchTitle"`
	MatchStartTime time.Time        `json:"matchStartTime"`
	BetType        string           `json:"betType"`
	Outcome        string           `json:"outcome"`
	Odds           decimal.Decimal  `json:"odds"`
	Stake          decimal.Decimal  `json:"stake"`
	Liability      decimal.Decimal  `json:"liability"`
	Status         string           `json:"status"`
	MatchedBetID   string           `json:"matchedBetId,omitempty"`
	EscrowID       string           `json:"escrowId,omitempty"`
	IsPublic       bool             `json:"isPublic"`
	ChallengeToken string           `json:"challengeToken,omitempty"` // só para o dono
	Payout         *decimal.Decimal `json:"payout,omitempty"`
	ActualResult   string           `json:"actualResult,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	SettledAt      *time.Time       `json:"settledAt,omitempty"`
}

// BetFromModel converte a aposta; o token do desafio só aparece para o dono
func BetFromModel(b model.Bet, viewer string) BetResponse {
	out := BetResponse{
		ID:             b.ID,
		UserID:         b.UserID,
		MatchID:        b.MatchID,
		MatchTitle:     b.MatchTitle,
		MatchStartTime: b.MatchStartTime,
		BetType:        string(b.Side),
		Outcome:        string(b.Outcome),
		Odds:           b.Odds,
		Stake:          b.Stake,
		Liability:      b.Liability,
		Status:         string(b.Status),
		MatchedBetID:   b.MatchedBetID,
		EscrowID:       b.EscrowID,
		IsPublic:       b.IsPublic,
		ActualResult:   string(b.ActualResult),
		CreatedAt:      b.CreatedAt,
		SettledAt:      b.SettledAt,
	}
	if viewer == b.UserID {
		out.ChallengeToken = b.ChallengeToken
	}
	if b.Payout.Valid {
		p := b.Payout.Decimal
		out.Payout = &p
	}
	return out
}

func BetsFromModel(bets []model.Bet, viewer string) []BetResponse {
	out := make([]BetResponse, 0, len(bets))
	for _, b := range bets {
		out = append(out, BetFromModel(b, viewer))
	}
	return out
}

type CreateBetResponse struct {
	Bet           BetResponse `json:"bet"`
	ChallengeLink string      `json:"challengeLink,omitempty"`
}

type EscrowResponse struct {
	ID           string          `json:"id"`
	BackerUserID string          `json:"backerUserId"`
	LayerUserID  string          `json:"layerUserId"`
	TotalHeld    decimal.Decimal `json:"totalHeld"`
	Status       string          `json:"status"`
}

type AcceptBetResponse struct {
	Bet        BetResponse    `json:"bet"`
	MatchedBet BetResponse    `json:"matchedBet"`
	Escrow     EscrowResponse `json:"escrow"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
