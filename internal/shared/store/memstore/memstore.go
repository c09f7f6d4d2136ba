// Package memstore é um simulador de transações em memória que implementa
// store.Store com travas de linha exclusivas, escrita em staging e
// commit/rollback atômicos. Os hooks OnWait/OnLocked permitem forçar
// intercalações entre transações nos testes sem depender do scheduler.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/radieske/p2p-bet-exchange/internal/shared/model"
	"github.com/radieske/p2p-bet-exchange/internal/shared/store"
)

// Store guarda o estado "commitado"
type Store struct {
	mu       sync.Mutex
	bets     map[string]model.Bet
	accounts map[string]model.Account
	escrows  map[string]model.Escrow
	txns     []model.Transaction
	seq      map[string]int64 // ordem de inserção das apostas (desempate)
	nextSeq  int64
	rows     map[string]chan struct{}

	// OnWait é chamado quando uma transação vai bloquear esperando uma linha
	OnWait func(key string)
	// OnLocked é chamado logo após uma transação obter a trava de uma linha
	OnLocked func(key string)
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		bets:     make(map[string]model.Bet),
		accounts: make(map[string]model.Account),
		escrows:  make(map[string]model.Escrow),
		seq:      make(map[string]int64),
		rows:     make(map[string]chan struct{}),
	}
}

func betKey(id string) string     { return "bet:" + id }
func accountKey(id string) string { return "account:" + id }
func escrowKey(id string) string  { return "escrow:" + id }

// InTx executa fn numa transação: commit se nil, rollback em erro ou panic
func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) (err error) {
	t := &tx{
		s:        s,
		held:     make(map[string]struct{}),
		bets:     make(map[string]model.Bet),
		accounts: make(map[string]model.Account),
		escrows:  make(map[string]model.Escrow),
	}
	defer func() {
		if p := recover(); p != nil {
			t.release()
			panic(p)
		}
	}()

	if err = fn(t); err != nil {
		t.release()
		return err
	}
	if err = ctx.Err(); err != nil {
		t.release()
		return err
	}
	t.commit()
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) row(key string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.rows[key]
	if !ok {
		ch = make(chan struct{}, 1)
		s.rows[key] = ch
	}
	return ch
}

// --- leitura sem trava ---

func (s *Store) GetBet(_ context.Context, id string) (model.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bets[id]
	if !ok {
		return model.Bet{}, model.ErrNotFound
	}
	return b, nil
}

func (s *Store) GetBetByChallenge(_ context.Context, token string) (model.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bets {
		if token != "" && b.ChallengeToken == token && b.Status == model.BetPending {
			return b, nil
		}
	}
	return model.Bet{}, model.ErrNotFound
}

func (s *Store) ListAvailableBets(_ context.Context, now time.Time, limit int) ([]model.Bet, error) {
	return s.filterBets(func(b model.Bet) bool {
		return b.IsPublic && b.Open(now)
	}, true, limit), nil
}

func (s *Store) ListUserBets(_ context.Context, userID string) ([]model.Bet, error) {
	return s.filterBets(func(b model.Bet) bool { return b.UserID == userID }, true, 0), nil
}

func (s *Store) ListMatchedBets(_ context.Context, matchID string) ([]model.Bet, error) {
	return s.filterBets(func(b model.Bet) bool {
		return b.MatchID == matchID && b.Status == model.BetMatched
	}, false, 0), nil
}

func (s *Store) ListStartedPending(_ context.Context, now time.Time, limit int) ([]string, error) {
	bets := s.filterBets(func(b model.Bet) bool {
		return b.Status == model.BetPending && !b.MatchStartTime.After(now)
	}, false, limit)
	ids := make([]string, 0, len(bets))
	for _, b := range bets {
		ids = append(ids, b.ID)
	}
	return ids, nil
}

func (s *Store) filterBets(keep func(model.Bet) bool, newestFirst bool, limit int) []model.Bet {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Bet
	for _, b := range s.bets {
		if keep(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return s.seq[out[i].ID] > s.seq[out[j].ID]
		}
		return s.seq[out[i].ID] < s.seq[out[j].ID]
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Store) GetAccount(_ context.Context, userID string) (model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[userID]
	if !ok {
		return model.Account{}, model.ErrNotFound
	}
	return a, nil
}

func (s *Store) GetEscrow(_ context.Context, id string) (model.Escrow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.escrows[id]
	if !ok {
		return model.Escrow{}, model.ErrNotFound
	}
	return e, nil
}

func (s *Store) ListTransactions(_ context.Context, userID string, limit int) ([]model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Transaction
	for i := len(s.txns) - 1; i >= 0; i-- {
		if s.txns[i].UserID != userID {
			continue
		}
		out = append(out, s.txns[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// --- helpers de teste ---

// PutAccount grava uma carteira diretamente no estado commitado
func (s *Store) PutAccount(a model.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.UserID] = a
}

// PutBet grava uma aposta diretamente no estado commitado
func (s *Store) PutBet(b model.Bet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putBetLocked(b)
}

func (s *Store) putBetLocked(b model.Bet) {
	if _, ok := s.seq[b.ID]; !ok {
		s.nextSeq++
		s.seq[b.ID] = s.nextSeq
	}
	s.bets[b.ID] = b
}

// TransactionCount devolve o total de lançamentos commitados
func (s *Store) TransactionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.txns)
}

// Escrows devolve todos os escrows commitados
func (s *Store) Escrows() []model.Escrow {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Escrow, 0, len(s.escrows))
	for _, e := range s.escrows {
		out = append(out, e)
	}
	return out
}

// --- transação ---

type tx struct {
	s        *Store
	held     map[string]struct{}
	bets     map[string]model.Bet
	accounts map[string]model.Account
	escrows  map[string]model.Escrow
	txns     []model.Transaction
}

// lock obtém a trava exclusiva da linha; reentrante dentro da mesma tx
func (t *tx) lock(ctx context.Context, key string) error {
	if _, ok := t.held[key]; ok {
		return nil
	}
	ch := t.s.row(key)
	select {
	case ch <- struct{}{}:
	default:
		if t.s.OnWait != nil {
			t.s.OnWait(key)
		}
		select {
		case ch <- struct{}{}:
		case <-ctx.Done():
			return fmt.Errorf("lock %s: %w", key, ctx.Err())
		}
	}
	t.held[key] = struct{}{}
	if t.s.OnLocked != nil {
		t.s.OnLocked(key)
	}
	return nil
}

func (t *tx) release() {
	for key := range t.held {
		<-t.s.row(key)
	}
	t.held = nil
}

func (t *tx) commit() {
	t.s.mu.Lock()
	for _, b := range t.bets {
		t.s.putBetLocked(b)
	}
	for id, a := range t.accounts {
		t.s.accounts[id] = a
	}
	for id, e := range t.escrows {
		t.s.escrows[id] = e
	}
	t.s.txns = append(t.s.txns, t.txns...)
	t.s.mu.Unlock()
	t.release()
}

func (t *tx) GetBetForUpdate(ctx context.Context, id string) (model.Bet, error) {
	if err := t.lock(ctx, betKey(id)); err != nil {
		return model.Bet{}, err
	}
	if b, ok := t.bets[id]; ok {
		return b, nil
	}
	return t.s.GetBet(ctx, id)
}

func (t *tx) InsertBet(ctx context.Context, b model.Bet) error {
	if err := t.lock(ctx, betKey(b.ID)); err != nil {
		return err
	}
	if _, ok := t.bets[b.ID]; ok {
		return fmt.Errorf("insert bet %s: duplicate id", b.ID)
	}
	t.s.mu.Lock()
	_, exists := t.s.bets[b.ID]
	dupToken := false
	if b.ChallengeToken != "" {
		for _, other := range t.s.bets {
			if other.ChallengeToken == b.ChallengeToken {
				dupToken = true
			}
		}
	}
	t.s.mu.Unlock()
	if exists {
		return fmt.Errorf("insert bet %s: duplicate id", b.ID)
	}
	if dupToken {
		return fmt.Errorf("insert bet %s: duplicate challenge token", b.ID)
	}
	if err := b.CheckLinks(); err != nil {
		return err
	}
	t.bets[b.ID] = b
	return nil
}

func (t *tx) UpdateBet(ctx context.Context, b model.Bet) error {
	if _, err := t.GetBetForUpdate(ctx, b.ID); err != nil {
		return err
	}
	if err := b.CheckLinks(); err != nil {
		return err
	}
	t.bets[b.ID] = b
	return nil
}

func (t *tx) EnsureAccount(ctx context.Context, userID string) error {
	if err := t.lock(ctx, accountKey(userID)); err != nil {
		return err
	}
	if _, ok := t.accounts[userID]; ok {
		return nil
	}
	if _, err := t.s.GetAccount(ctx, userID); err == nil {
		return nil
	}
	now := time.Now().UTC()
	t.accounts[userID] = model.Account{UserID: userID, CreatedAt: now, UpdatedAt: now}
	return nil
}

func (t *tx) GetAccountForUpdate(ctx context.Context, userID string) (model.Account, error) {
	if err := t.lock(ctx, accountKey(userID)); err != nil {
		return model.Account{}, err
	}
	if a, ok := t.accounts[userID]; ok {
		return a, nil
	}
	return t.s.GetAccount(ctx, userID)
}

func (t *tx) UpdateAccount(ctx context.Context, a model.Account) error {
	if _, err := t.GetAccountForUpdate(ctx, a.UserID); err != nil {
		return err
	}
	// espelha os CHECK constraints da tabela accounts
	if a.Balance.IsNegative() {
		return model.Invariant("memstore.update_account", "user %s balance %s is negative", a.UserID, a.Balance)
	}
	if err := a.Check(); err != nil {
		return err
	}
	t.accounts[a.UserID] = a
	return nil
}

func (t *tx) InsertTransaction(_ context.Context, rec model.Transaction) error {
	t.txns = append(t.txns, rec)
	return nil
}

func (t *tx) InsertEscrow(ctx context.Context, e model.Escrow) error {
	if err := t.lock(ctx, escrowKey(e.ID)); err != nil {
		return err
	}
	t.s.mu.Lock()
	dup := false
	for _, other := range t.s.escrows {
		if other.ID == e.ID || other.BetID == e.BetID || other.MatchedBetID == e.MatchedBetID {
			dup = true
		}
	}
	t.s.mu.Unlock()
	for _, other := range t.escrows {
		if other.BetID == e.BetID || other.MatchedBetID == e.MatchedBetID {
			dup = true
		}
	}
	if dup {
		return fmt.Errorf("insert escrow %s: pair already has an escrow", e.ID)
	}
	t.escrows[e.ID] = e
	return nil
}

func (t *tx) GetEscrowForUpdate(ctx context.Context, id string) (model.Escrow, error) {
	if err := t.lock(ctx, escrowKey(id)); err != nil {
		return model.Escrow{}, err
	}
	if e, ok := t.escrows[id]; ok {
		return e, nil
	}
	return t.s.GetEscrow(ctx, id)
}

func (t *tx) UpdateEscrow(ctx context.Context, e model.Escrow) error {
	if _, err := t.GetEscrowForUpdate(ctx, e.ID); err != nil {
		return err
	}
	t.escrows[e.ID] = e
	return nil
}
