package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/radieske/p2p-bet-exchange/internal/shared/model"
)

const betColumns = `id, user_id, match_id, match_title, match_start_time, side, outcome,
	odds, stake, liability, status, matched_bet_id, escrow_id, is_public, challenge_token,
	payout, actual_result, created_at, updated_at, settled_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBet(r rowScanner) (model.Bet, error) {
	var (
		b                      model.Bet
		matched, escrow, token sql.NullString
		actual                 sql.NullString
		settledAt              sql.NullTime
		side, outcome, status  string
	)
	err := r.Scan(&b.ID, &b.UserID, &b.MatchID, &b.MatchTitle, &b.MatchStartTime, &side, &outcome,
		&b.Odds, &b.Stake, &b.Liability, &status, &matched, &escrow, &b.IsPublic, &token,
		&b.Payout, &actual, &b.CreatedAt, &b.UpdatedAt, &settledAt)
	if err != nil {
		return model.Bet{}, err
	}
	b.Side = model.Side(side)
	b.Outcome = model.Outcome(outcome)
	b.Status = model.BetStatus(status)
	b.MatchedBetID = matched.String
	b.EscrowID = escrow.String
	b.ChallengeToken = token.String
	b.ActualResult = model.Outcome(actual.String)
	if settledAt.Valid {
		t := settledAt.Time
		b.SettledAt = &t
	}
	return b, nil
}

func queryBets(ctx context.Context, q queryer, query string, args ...any) ([]model.Bet, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// GetBetForUpdate lê a aposta com lock pessimista na linha
func (t *tx) GetBetForUpdate(ctx context.Context, id string) (model.Bet, error) {
	b, err := scanBet(t.q.QueryRowContext(ctx, `SELECT `+betColumns+` FROM bets WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return model.Bet{}, fmt.Errorf("get bet %s: %w", id, notFound(err))
	}
	return b, nil
}

// InsertBet persiste uma nova aposta
func (t *tx) InsertBet(ctx context.Context, b model.Bet) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO bets (id, user_id, match_id, match_title, match_start_time, side, outcome,
			odds, stake, liability, status, matched_bet_id, escrow_id, is_public, challenge_token,
			created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		b.ID, b.UserID, b.MatchID, b.MatchTitle, b.MatchStartTime, string(b.Side), string(b.Outcome),
		b.Odds, b.Stake, b.Liability, string(b.Status), nullString(b.MatchedBetID), nullString(b.EscrowID),
		b.IsPublic, nullString(b.ChallengeToken), b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert bet %s: %w", b.ID, checkViolation("postgres.insert_bet", err))
	}
	return nil
}

// UpdateBet grava os campos mutáveis: status, vínculos e resultado.
// liability, odds e stake nunca são reescritos.
func (t *tx) UpdateBet(ctx context.Context, b model.Bet) error {
	var settledAt sql.NullTime
	if b.SettledAt != nil {
		settledAt = sql.NullTime{Time: *b.SettledAt, Valid: true}
	}
	res, err := t.q.ExecContext(ctx, `
		UPDATE bets SET status=$2, matched_bet_id=$3, escrow_id=$4, payout=$5, actual_result=$6,
			settled_at=$7, updated_at=$8
		WHERE id=$1`,
		b.ID, string(b.Status), nullString(b.MatchedBetID), nullString(b.EscrowID), b.Payout,
		nullString(string(b.ActualResult)), settledAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update bet %s: %w", b.ID, checkViolation("postgres.update_bet", err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update bet %s: %w", b.ID, model.ErrNotFound)
	}
	return nil
}

// GetBet lê a aposta sem trava
func (p *Postgres) GetBet(ctx context.Context, id string) (model.Bet, error) {
	b, err := scanBet(p.db.QueryRowContext(ctx, `SELECT `+betColumns+` FROM bets WHERE id=$1`, id))
	if err != nil {
		return model.Bet{}, fmt.Errorf("get bet %s: %w", id, notFound(err))
	}
	return b, nil
}

// GetBetByChallenge busca uma aposta privada ainda pendente pelo token do desafio
func (p *Postgres) GetBetByChallenge(ctx context.Context, token string) (model.Bet, error) {
	b, err := scanBet(p.db.QueryRowContext(ctx,
		`SELECT `+betColumns+` FROM bets WHERE challenge_token=$1 AND status='PENDING'`, token))
	if err != nil {
		return model.Bet{}, fmt.Errorf("get challenge %s: %w", token, notFound(err))
	}
	return b, nil
}

// ListAvailableBets lista o feed público: pendentes, partida no futuro, mais recentes primeiro
func (p *Postgres) ListAvailableBets(ctx context.Context, now time.Time, limit int) ([]model.Bet, error) {
	return queryBets(ctx, p.db, `
		SELECT `+betColumns+` FROM bets
		WHERE status='PENDING' AND is_public AND match_start_time > $1
		ORDER BY created_at DESC
		LIMIT $2`, now, limit)
}

func (p *Postgres) ListUserBets(ctx context.Context, userID string) ([]model.Bet, error) {
	return queryBets(ctx, p.db, `SELECT `+betColumns+` FROM bets WHERE user_id=$1 ORDER BY created_at DESC`, userID)
}

// ListMatchedBets lista apostas casadas de uma partida (entrada do settlement)
func (p *Postgres) ListMatchedBets(ctx context.Context, matchID string) ([]model.Bet, error) {
	return queryBets(ctx, p.db, `
		SELECT `+betColumns+` FROM bets
		WHERE match_id=$1 AND status='MATCHED'
		ORDER BY created_at`, matchID)
}

// ListStartedPending devolve ids de apostas pendentes cuja partida já começou
func (p *Postgres) ListStartedPending(ctx context.Context, now time.Time, limit int) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id FROM bets
		WHERE status='PENDING' AND match_start_time <= $1
		ORDER BY match_start_time
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
