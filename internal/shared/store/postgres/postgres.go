// Package postgres implementa store.Store sobre database/sql + lib/pq.
// Travas de linha usam SELECT ... FOR UPDATE dentro da transação.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/radieske/p2p-bet-exchange/internal/shared/model"
	"github.com/radieske/p2p-bet-exchange/internal/shared/store"
)

// Postgres implementa o store transacional em banco
type Postgres struct{ db *sql.DB }

var _ store.Store = (*Postgres)(nil)

// NewPostgres retorna uma instância do store
func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// queryer é o que *sql.DB e *sql.Tx têm em comum
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// InTx abre uma transação READ COMMITTED; as travas FOR UPDATE garantem a serialização
func (p *Postgres) InTx(ctx context.Context, fn func(tx store.Tx) error) (err error) {
	sqlTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = sqlTx.Rollback()
			panic(r)
		}
	}()

	if err = fn(&tx{q: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

type tx struct{ q queryer }

// notFound traduz sql.ErrNoRows para o erro de domínio
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	return err
}

// checkViolation traduz violação de CHECK constraint em erro de invariante
func checkViolation(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "check_violation" {
		return model.Invariant(op, "constraint %s: %s", pqErr.Constraint, pqErr.Message)
	}
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
