package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/radieske/p2p-bet-exchange/internal/shared/model"
)

const escrowColumns = `id, bet_id, matched_bet_id, backer_user_id, layer_user_id, backer_stake,
	layer_liability, total_held, status, winner_id, winner_payout, platform_fee, created_at, updated_at, released_at`

func scanEscrow(r rowScanner) (model.Escrow, error) {
	var (
		e          model.Escrow
		status     string
		winner     sql.NullString
		releasedAt sql.NullTime
	)
	err := r.Scan(&e.ID, &e.BetID, &e.MatchedBetID, &e.BackerUserID, &e.LayerUserID, &e.BackerStake,
		&e.LayerLiability, &e.TotalHeld, &status, &winner, &e.WinnerPayout, &e.PlatformFee,
		&e.CreatedAt, &e.UpdatedAt, &releasedAt)
	if err != nil {
		return model.Escrow{}, err
	}
	e.Status = model.EscrowStatus(status)
	e.WinnerID = winner.String
	if releasedAt.Valid {
		t := releasedAt.Time
		e.ReleasedAt = &t
	}
	return e, nil
}

// InsertEscrow cria o pote do par; índices únicos garantem um escrow por par
func (t *tx) InsertEscrow(ctx context.Context, e model.Escrow) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO escrows(id, bet_id, matched_bet_id, backer_user_id, layer_user_id, backer_stake,
			layer_liability, total_held, status, created_at, updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		e.ID, e.BetID, e.MatchedBetID, e.BackerUserID, e.LayerUserID, e.BackerStake,
		e.LayerLiability, e.TotalHeld, string(e.Status), e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert escrow %s: %w", e.ID, checkViolation("postgres.insert_escrow", err))
	}
	return nil
}

// GetEscrowForUpdate lê o escrow com lock pessimista
func (t *tx) GetEscrowForUpdate(ctx context.Context, id string) (model.Escrow, error) {
	e, err := scanEscrow(t.q.QueryRowContext(ctx, `SELECT `+escrowColumns+` FROM escrows WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return model.Escrow{}, fmt.Errorf("get escrow %s: %w", id, notFound(err))
	}
	return e, nil
}

// UpdateEscrow grava status e dados de liberação; total_held não é alterado
func (t *tx) UpdateEscrow(ctx context.Context, e model.Escrow) error {
	var releasedAt sql.NullTime
	if e.ReleasedAt != nil {
		releasedAt = sql.NullTime{Time: *e.ReleasedAt, Valid: true}
	}
	_, err := t.q.ExecContext(ctx, `
		UPDATE escrows SET status=$2, winner_id=$3, winner_payout=$4, platform_fee=$5,
			released_at=$6, updated_at=$7
		WHERE id=$1`,
		e.ID, string(e.Status), nullString(e.WinnerID), e.WinnerPayout, e.PlatformFee, releasedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update escrow %s: %w", e.ID, checkViolation("postgres.update_escrow", err))
	}
	return nil
}

func (p *Postgres) GetEscrow(ctx context.Context, id string) (model.Escrow, error) {
	e, err := scanEscrow(p.db.QueryRowContext(ctx, `SELECT `+escrowColumns+` FROM escrows WHERE id=$1`, id))
	if err != nil {
		return model.Escrow{}, fmt.Errorf("get escrow %s: %w", id, notFound(err))
	}
	return e, nil
}
