package topics

const (
	// Resultados de partidas (feed externo)
	MatchResults = "match_results"

	// Bets
	BetCreated = "bet_created"
	BetMatched = "bet_matched"
	BetSettled = "bet_settled"

	// DLQs
	MatchResultsDLQ = "match_results_dlq"
)
