// Package store define o contrato de unidade de trabalho usado por ledger,
// escrow, matching e settlement. Toda leitura "ForUpdate" trava a linha até
// o commit/rollback da transação.
package store

import (
	"context"
	"sort"
	"time"

	"github.com/radieske/p2p-bet-exchange/internal/shared/model"
)

// Tx é uma transação aberta. Travas de linha são reentrantes dentro da mesma Tx.
type Tx interface {
	GetBetForUpdate(ctx context.Context, id string) (model.Bet, error)
	InsertBet(ctx context.Context, b model.Bet) error
	UpdateBet(ctx context.Context, b model.Bet) error

	// EnsureAccount cria a linha da carteira se ainda não existir
	EnsureAccount(ctx context.Context, userID string) error
	GetAccountForUpdate(ctx context.Context, userID string) (model.Account, error)
	UpdateAccount(ctx context.Context, a model.Account) error

	InsertTransaction(ctx context.Context, t model.Transaction) error

	InsertEscrow(ctx context.Context, e model.Escrow) error
	GetEscrowForUpdate(ctx context.Context, id string) (model.Escrow, error)
	UpdateEscrow(ctx context.Context, e model.Escrow) error
}

// Reader agrupa consultas sem trava, fora de transação
type Reader interface {
	GetBet(ctx context.Context, id string) (model.Bet, error)
	GetBetByChallenge(ctx context.Context, token string) (model.Bet, error)
	ListAvailableBets(ctx context.Context, now time.Time, limit int) ([]model.Bet, error)
	ListUserBets(ctx context.Context, userID string) ([]model.Bet, error)
	ListMatchedBets(ctx context.Context, matchID string) ([]model.Bet, error)
	ListStartedPending(ctx context.Context, now time.Time, limit int) ([]string, error)
	GetAccount(ctx context.Context, userID string) (model.Account, error)
	GetEscrow(ctx context.Context, id string) (model.Escrow, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]model.Transaction, error)
}

// Store abre transações e responde consultas.
// InTx faz commit se fn retornar nil e rollback em qualquer erro (ou panic).
type Store interface {
	Reader
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
}

// LockAccounts trava as carteiras em ordem crescente de userID.
// Ordem fixa evita deadlock entre dois usuários aceitando apostas um do outro.
func LockAccounts(ctx context.Context, tx Tx, userIDs ...string) (map[string]model.Account, error) {
	ids := make([]string, 0, len(userIDs))
	seen := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make(map[string]model.Account, len(ids))
	for _, id := range ids {
		a, err := tx.GetAccountForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = a
	}
	return out, nil
}
