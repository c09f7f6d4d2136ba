package events

import "github.com/shopspring/decimal"

// Evento emitido após o settlement (ou anulação) de um par
type BetSettled struct {
	BetID         string          `json:"betId"`
	MatchedBetID  string          `json:"matchedBetId"`
	EscrowID      string          `json:"escrowId"`
	MatchID       string          `json:"matchId"`
	ActualOutcome string          `json:"actualOutcome,omitempty"`
	Void          bool            `json:"void,omitempty"`
	WinnerID      string          `json:"winnerId,omitempty"`
	WinnerPayout  decimal.Decimal `json:"winnerPayout"`
	PlatformFee   decimal.Decimal `json:"platformFee"`
	TsUnixMs      int64           `json:"ts_unix_ms"`
}
