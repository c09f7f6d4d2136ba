package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/p2p-bet-exchange/internal/bet-service/escrow"
	"github.com/radieske/p2p-bet-exchange/internal/bet-service/matching"
	"github.com/radieske/p2p-bet-exchange/internal/bet-service/settlement"
	"github.com/radieske/p2p-bet-exchange/internal/shared/kafka"
	"github.com/radieske/p2p-bet-exchange/internal/shared/lock"
	"github.com/radieske/p2p-bet-exchange/internal/shared/model"
	"github.com/radieske/p2p-bet-exchange/internal/shared/store/memstore"
	"github.com/radieske/p2p-bet-exchange/internal/wallet-service/ledger"
	"github.com/radieske/p2p-bet-exchange/pkg/contracts/events"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// chanReader entrega as mensagens enfileiradas, registra os commits e depois
// bloqueia até o cancelamento
type chanReader struct {
	ch chan kafka.Message

	mu        sync.Mutex
	committed []int64
}

func newReader(msgs ...kafka.Message) *chanReader {
	r := &chanReader{ch: make(chan kafka.Message, len(msgs))}
	for i, m := range msgs {
		m.Offset = int64(i)
		r.ch <- m
	}
	return r
}

func (r *chanReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.ch:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *chanReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *chanReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type dlq struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (q *dlq) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.msgs = append(q.msgs, msgs...)
	return nil
}

func (q *dlq) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.msgs)
}

func resultMsg(t *testing.T, ev events.MatchResult) kafka.Message {
	t.Helper()
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	return kafka.Message{Key: []byte(ev.MatchID), Value: b}
}

type world struct {
	s      *memstore.Store
	engine *settlement.Engine
}

// newWorld casa dois pares na partida m1 e um na m2
func newWorld(t *testing.T) *world {
	t.Helper()
	s := memstore.New()
	log := zap.NewNop()
	now := time.Now().UTC()
	for _, u := range []string{"alice", "bob", "carol", "dave"} {
		s.PutAccount(model.Account{UserID: u, Balance: d("1000")})
	}
	put := func(id, user, match string) {
		s.PutBet(model.Bet{
			ID: id, UserID: user, MatchID: match, MatchTitle: "Home vs Away",
			MatchStartTime: now.Add(time.Hour), Side: model.Back, Outcome: model.HomeWin,
			Odds: d("2.0"), Stake: d("100"), Liability: d("100"), Status: model.BetPending,
			IsPublic: true, CreatedAt: now, UpdatedAt: now,
		})
	}
	put("p1", "alice", "m1")
	put("p2", "carol", "m1")
	put("p3", "alice", "m2")

	w := ledger.New(s, log)
	esc := escrow.New()
	me := matching.New(s, lock.NewMemory(), w, esc, log)
	for id, acceptor := range map[string]string{"p1": "bob", "p2": "dave", "p3": "bob"} {
		_, err := me.AcceptBet(context.Background(), acceptor, id)
		require.NoError(t, err)
	}
	return &world{s: s, engine: settlement.New(s, w, esc, log)}
}

func (w *world) status(t *testing.T, id string) model.BetStatus {
	t.Helper()
	b, err := w.s.GetBet(context.Background(), id)
	require.NoError(t, err)
	return b.Status
}

func TestHandle_SettlesEachPairOnce(t *testing.T) {
	w := newWorld(t)
	p := New(zap.NewNop(), newReader(), w.s, w.engine)

	n, err := p.Handle(context.Background(), events.MatchResult{MatchID: "m1", Outcome: "HOME_WIN"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, model.BetSettled, w.status(t, "p1"))
	assert.Equal(t, model.BetSettled, w.status(t, "p2"))
	assert.Equal(t, model.BetMatched, w.status(t, "p3"))

	// reentrega: nada mais a liquidar, saldos intactos
	before := w.s.TransactionCount()
	n, err = p.Handle(context.Background(), events.MatchResult{MatchID: "m1", Outcome: "HOME_WIN"})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, before, w.s.TransactionCount())

	a, err := w.s.GetAccount(context.Background(), "alice")
	require.NoError(t, err)
	// ganhou 190 no m1, 100 ainda em escrow no m2
	assert.True(t, a.Balance.Equal(d("1190")), a.Balance.String())
	assert.True(t, a.EscrowBalance.Equal(d("100")))
}

func TestHandle_Void(t *testing.T) {
	w := newWorld(t)
	p := New(zap.NewNop(), newReader(), w.s, w.engine)

	n, err := p.Handle(context.Background(), events.MatchResult{MatchID: "m2", Void: true})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, model.BetSettled, w.status(t, "p3"))

	b, err := w.s.GetAccount(context.Background(), "bob")
	require.NoError(t, err)
	assert.True(t, b.Balance.Equal(d("1000")))
	assert.True(t, b.EscrowBalance.Equal(d("100"))) // p1 ainda casada
}

func TestHandle_RejectsBadResult(t *testing.T) {
	p := New(zap.NewNop(), newReader(), memstore.New(), nil)
	_, err := p.Handle(context.Background(), events.MatchResult{MatchID: "m1", Outcome: "PENALTIES"})
	require.ErrorIs(t, err, errBadResult)
	_, err = p.Handle(context.Background(), events.MatchResult{Outcome: "DRAW"})
	require.ErrorIs(t, err, errBadResult)
}

// flakySettler falha as primeiras `fails` chamadas
type flakySettler struct {
	mu    sync.Mutex
	fails int
	calls int
	err   error
}

func (f *flakySettler) call() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.fails {
		return f.err
	}
	return nil
}

func (f *flakySettler) Settle(context.Context, string, model.Outcome) (settlement.Result, error) {
	return settlement.Result{}, f.call()
}

func (f *flakySettler) Void(context.Context, string) (settlement.Result, error) {
	return settlement.Result{}, f.call()
}

type oneBet struct{}

func (oneBet) ListMatchedBets(context.Context, string) ([]model.Bet, error) {
	return []model.Bet{{ID: "x", MatchedBetID: "y"}, {ID: "y", MatchedBetID: "x"}}, nil
}

func runUntil(t *testing.T, p *Processor, done func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- p.Run(ctx) }()
	require.Eventually(t, done, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)
}

func TestRun_RetriesThenSucceeds(t *testing.T) {
	s := &flakySettler{fails: 2, err: errors.New("db down")}
	q := &dlq{}
	r := newReader(resultMsg(t, events.MatchResult{MatchID: "m1", Outcome: "DRAW"}))
	p := New(zap.NewNop(), r, oneBet{}, s)
	p.DLQ = q
	p.Backoff = time.Millisecond
	var pairs int
	var mu sync.Mutex
	p.OnPairs = func(n int) { mu.Lock(); pairs += n; mu.Unlock() }

	runUntil(t, p, func() bool { return len(r.commits()) == 1 })
	mu.Lock()
	assert.Equal(t, 1, pairs)
	mu.Unlock()
	assert.Equal(t, 3, s.calls)
	assert.Zero(t, q.len())
}

func TestRun_DeadLettersAfterRetries(t *testing.T) {
	s := &flakySettler{fails: 100, err: errors.New("db down")}
	q := &dlq{}
	r := newReader(resultMsg(t, events.MatchResult{MatchID: "m1", Outcome: "DRAW"}))
	p := New(zap.NewNop(), r, oneBet{}, s)
	p.DLQ = q
	p.Backoff = time.Millisecond

	// commit só depois que a mensagem está na DLQ
	runUntil(t, p, func() bool { return len(r.commits()) == 1 })
	assert.Equal(t, 1, q.len())
	assert.Equal(t, 1+DefaultRetries, s.calls)
	assert.Equal(t, "m1", string(q.msgs[0].Key))
}

func TestRun_NoCommitWhileSettling(t *testing.T) {
	s := &flakySettler{fails: 100, err: errors.New("db down")}
	r := newReader(resultMsg(t, events.MatchResult{MatchID: "m1", Outcome: "DRAW"}))
	p := New(zap.NewNop(), r, oneBet{}, s)
	p.DLQ = &dlq{}
	p.Backoff = time.Hour

	// worker para no meio do retry: o resultado precisa ser reentregue
	runUntil(t, p, func() bool { s.mu.Lock(); defer s.mu.Unlock(); return s.calls == 1 })
	assert.Empty(t, r.commits())
}

func TestRun_DLQFailureStopsWithoutCommit(t *testing.T) {
	r := newReader(kafka.Message{Key: []byte("k"), Value: []byte("{")})
	p := New(zap.NewNop(), r, oneBet{}, &flakySettler{})
	p.DLQ = &dlq{err: errors.New("broker down")}

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, context.Canceled)
	assert.Empty(t, r.commits())
}

func TestRun_CommitsInOrder(t *testing.T) {
	w := newWorld(t)
	r := newReader(
		resultMsg(t, events.MatchResult{MatchID: "m1", Outcome: "HOME_WIN"}),
		resultMsg(t, events.MatchResult{MatchID: "m2", Void: true}),
	)
	p := New(zap.NewNop(), r, w.s, w.engine)

	runUntil(t, p, func() bool { return len(r.commits()) == 2 })
	assert.Equal(t, []int64{0, 1}, r.commits())
	assert.Equal(t, model.BetSettled, w.status(t, "p3"))
}

func TestRun_InvariantIsNotRetried(t *testing.T) {
	s := &flakySettler{fails: 100, err: model.Invariant("settlement.pair", "broken")}
	q := &dlq{}
	p := New(zap.NewNop(), newReader(resultMsg(t, events.MatchResult{MatchID: "m1", Outcome: "DRAW"})), oneBet{}, s)
	p.DLQ = q

	runUntil(t, p, func() bool { return q.len() == 1 })
	assert.Equal(t, 1, s.calls)
}

func TestRun_UndecodableGoesToDLQ(t *testing.T) {
	q := &dlq{}
	var phases []string
	var mu sync.Mutex
	r := newReader(kafka.Message{Key: []byte("k"), Value: []byte("{")})
	p := New(zap.NewNop(), r, oneBet{}, &flakySettler{})
	p.DLQ = q
	p.OnError = func(phase string) { mu.Lock(); phases = append(phases, phase); mu.Unlock() }

	runUntil(t, p, func() bool { return len(r.commits()) == 1 })
	assert.Equal(t, []byte("{"), q.msgs[0].Value)
	mu.Lock()
	assert.Equal(t, []string{"decode"}, phases)
	mu.Unlock()
}
