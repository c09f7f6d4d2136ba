package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateBetRequest: o usuário vem do header X-User-ID, não do corpo
type CreateBetRequest struct {
	MatchID        string          `json:"matchId"`
	MatchTitle     string          `json:"matchTitle"`
	MatchStartTime time.Time       `json:"matchStartTime"` // RFC3339
	BetType        string          `json:"betType"`        // "BACK" | "LAY"
	Outcome        string          `json:"outcome"`        // "HOME_WIN" | "AWAY_WIN" | "DRAW"
	Odds           decimal.Decimal `json:"odds"`
	Stake          decimal.Decimal `json:"stake"`
	IsPublic       *bool           `json:"isPublic,omitempty"` // default true
}
