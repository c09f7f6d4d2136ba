package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Evento emitido pelo bet-service quando uma aposta é publicada
type BetCreated struct {
	BetID          string          `json:"betId"`
	UserID         string          `json:"userId"`
	MatchID        string          `json:"matchId"`
	MatchStartTime time.Time       `json:"matchStartTime"`
	Side           string          `json:"side"`
	Outcome        string          `json:"outcome"`
	Odds           decimal.Decimal `json:"odds"`
	Stake          decimal.Decimal `json:"stake"`
	Liability      decimal.Decimal `json:"liability"`
	IsPublic       bool            `json:"isPublic"`
	TsUnixMs       int64           `json:"ts_unix_ms"`
}
