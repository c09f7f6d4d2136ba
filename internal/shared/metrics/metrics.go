package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// invariants é comum aos três serviços: qualquer valor > 0 é defeito
func invariants() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_invariant_violations_total",
		Help: "violações de invariante do ledger/escrow por componente",
	}, []string{"component"})
}

// Bet reúne os contadores do bet-service
type Bet struct {
	created    prometheus.Counter
	expired    prometheus.Counter
	matched    prometheus.Counter
	rejected   *prometheus.CounterVec
	settled    *prometheus.CounterVec
	invariants *prometheus.CounterVec
}

func NewBet(reg prometheus.Registerer) *Bet {
	m := &Bet{
		created:  prometheus.NewCounter(prometheus.CounterOpts{Name: "bets_created_total", Help: "apostas publicadas"}),
		expired:  prometheus.NewCounter(prometheus.CounterOpts{Name: "bets_expired_total", Help: "apostas expiradas sem contraparte"}),
		matched:  prometheus.NewCounter(prometheus.CounterOpts{Name: "bets_matched_total", Help: "pares casados"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "bets_match_rejected_total", Help: "aceites recusados por motivo"}, []string{"reason"}),
		settled:  prometheus.NewCounterVec(prometheus.CounterOpts{Name: "bets_settled_total", Help: "pares liquidados (settled|void)"}, []string{"kind"}),

		invariants: invariants(),
	}
	reg.MustRegister(m.created, m.expired, m.matched, m.rejected, m.settled, m.invariants)
	return m
}

func (m *Bet) Created()                   { m.created.Inc() }
func (m *Bet) Expired(n int)              { m.expired.Add(float64(n)) }
func (m *Bet) Matched()                   { m.matched.Inc() }
func (m *Bet) Rejected(reason string)     { m.rejected.WithLabelValues(reason).Inc() }
func (m *Bet) Settled(kind string)        { m.settled.WithLabelValues(kind).Inc() }
func (m *Bet) Invariant(component string) { m.invariants.WithLabelValues(component).Inc() }

// Wallet cobre depósitos/saques do wallet-service
type Wallet struct {
	ops        *prometheus.CounterVec
	invariants *prometheus.CounterVec
}

func NewWallet(reg prometheus.Registerer) *Wallet {
	m := &Wallet{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_operations_total", Help: "operações de carteira por tipo e resultado",
		}, []string{"op", "ok"}),
		invariants: invariants(),
	}
	reg.MustRegister(m.ops, m.invariants)
	return m
}

func (m *Wallet) Op(op string, err error) {
	m.ops.WithLabelValues(op, strconv.FormatBool(err == nil)).Inc()
}
func (m *Wallet) Invariant(component string) { m.invariants.WithLabelValues(component).Inc() }

// Worker é o settlement-worker: consumo do feed e liquidação
type Worker struct {
	consumed   prometheus.Counter
	pairs      prometheus.Counter
	errors     *prometheus.CounterVec
	settled    *prometheus.CounterVec
	invariants *prometheus.CounterVec
}

func NewWorker(reg prometheus.Registerer) *Worker {
	m := &Worker{
		consumed: prometheus.NewCounter(prometheus.CounterOpts{Name: "settlement_results_consumed_total", Help: "mensagens match_results consumidas"}),
		pairs:    prometheus.NewCounter(prometheus.CounterOpts{Name: "settlement_pairs_total", Help: "pares processados"}),
		errors:   prometheus.NewCounterVec(prometheus.CounterOpts{Name: "settlement_errors_total", Help: "erros por estágio"}, []string{"stage"}),
		settled:  prometheus.NewCounterVec(prometheus.CounterOpts{Name: "bets_settled_total", Help: "pares liquidados (settled|void)"}, []string{"kind"}),

		invariants: invariants(),
	}
	reg.MustRegister(m.consumed, m.pairs, m.errors, m.settled, m.invariants)
	return m
}

func (m *Worker) Consumed()                  { m.consumed.Inc() }
func (m *Worker) Pairs(n int)                { m.pairs.Add(float64(n)) }
func (m *Worker) Error(stage string)         { m.errors.WithLabelValues(stage).Inc() }
func (m *Worker) Settled(kind string)        { m.settled.WithLabelValues(kind).Inc() }
func (m *Worker) Invariant(component string) { m.invariants.WithLabelValues(component).Inc() }
