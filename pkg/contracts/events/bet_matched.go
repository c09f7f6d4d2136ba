package events

import "github.com/shopspring/decimal"

// Evento emitido após o commit do aceite de uma aposta
type BetMatched struct {
	BetID          string          `json:"betId"`
	MatchedBetID   string          `json:"matchedBetId"`
	EscrowID       string          `json:"escrowId"`
	MatchID        string          `json:"matchId"`
	BackerUserID   string          `json:"backerUserId"`
	LayerUserID    string          `json:"layerUserId"`
	TotalHeld      decimal.Decimal `json:"totalHeld"`
	AcceptedByUser string          `json:"acceptedBy"`
	TsUnixMs       int64           `json:"ts_unix_ms"`
}
