package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/radieske/p2p-bet-exchange/internal/shared/model"
)

const accountColumns = `user_id, balance, escrow_balance, total_bets, won_bets, lost_bets, created_at, updated_at`

func scanAccount(r rowScanner) (model.Account, error) {
	var a model.Account
	err := r.Scan(&a.UserID, &a.Balance, &a.EscrowBalance, &a.TotalBets, &a.WonBets, &a.LostBets, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// EnsureAccount cria a carteira zerada se não existir (idempotente)
func (t *tx) EnsureAccount(ctx context.Context, userID string) error {
	if _, err := t.q.ExecContext(ctx,
		`INSERT INTO accounts(user_id) VALUES($1) ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
		return fmt.Errorf("ensure account %s: %w", userID, err)
	}
	return nil
}

// GetAccountForUpdate lê a carteira com lock pessimista na linha
func (t *tx) GetAccountForUpdate(ctx context.Context, userID string) (model.Account, error) {
	a, err := scanAccount(t.q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id=$1 FOR UPDATE`, userID))
	if err != nil {
		return model.Account{}, fmt.Errorf("get account %s: %w", userID, notFound(err))
	}
	return a, nil
}

// UpdateAccount grava saldos e contadores; version acompanha cada mutação
func (t *tx) UpdateAccount(ctx context.Context, a model.Account) error {
	_, err := t.q.ExecContext(ctx, `
		UPDATE accounts SET balance=$2, escrow_balance=$3, total_bets=$4, won_bets=$5, lost_bets=$6,
			version = version + 1, updated_at = NOW()
		WHERE user_id=$1`,
		a.UserID, a.Balance, a.EscrowBalance, a.TotalBets, a.WonBets, a.LostBets)
	if err != nil {
		return fmt.Errorf("update account %s: %w", a.UserID, checkViolation("postgres.update_account", err))
	}
	return nil
}

// InsertTransaction registra o lançamento no ledger (append-only)
func (t *tx) InsertTransaction(ctx context.Context, rec model.Transaction) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO transactions(id, user_id, type, amount, balance_before, balance_after, reference_id, description, created_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		rec.ID, rec.UserID, string(rec.Type), rec.Amount, rec.BalanceBefore, rec.BalanceAfter,
		nullString(rec.ReferenceID), rec.Description, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transaction %s: %w", rec.ID, err)
	}
	return nil
}

func (p *Postgres) GetAccount(ctx context.Context, userID string) (model.Account, error) {
	a, err := scanAccount(p.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE user_id=$1`, userID))
	if err != nil {
		return model.Account{}, fmt.Errorf("get account %s: %w", userID, notFound(err))
	}
	return a, nil
}

// ListTransactions devolve o histórico mais recente primeiro
func (p *Postgres) ListTransactions(ctx context.Context, userID string, limit int) ([]model.Transaction, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, type, amount, balance_before, balance_after, reference_id, description, created_at
		FROM transactions
		WHERE user_id=$1
		ORDER BY created_at DESC, seq DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Transaction
	for rows.Next() {
		var (
			rec model.Transaction
			typ string
			ref sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &typ, &rec.Amount, &rec.BalanceBefore, &rec.BalanceAfter,
			&ref, &rec.Description, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Type = model.TxType(typ)
		rec.ReferenceID = ref.String
		out = append(out, rec)
	}
	return out, rows.Err()
}
