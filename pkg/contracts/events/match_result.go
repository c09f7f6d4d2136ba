package events

import "time"

// Evento consumido do tópico "match_results".
// Void=true anula a partida: os pares casados são reembolsados.
type MatchResult struct {
	MatchID   string    `json:"matchId"`
	Outcome   string    `json:"outcome,omitempty"` // "HOME_WIN" | "AWAY_WIN" | "DRAW"
	Void      bool      `json:"void,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	DecidedAt time.Time `json:"decidedAt"`
}
