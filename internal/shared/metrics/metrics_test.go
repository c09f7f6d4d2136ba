package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBetCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBet(reg)

	m.Created()
	m.Matched()
	m.Matched()
	m.Rejected("contended")
	m.Settled("void")
	m.Expired(3)
	m.Invariant("matching")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.created))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.matched))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.expired))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejected.WithLabelValues("contended")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.settled.WithLabelValues("void")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.invariants.WithLabelValues("matching")))
}

func TestWalletAndWorker(t *testing.T) {
	reg := prometheus.NewRegistry()
	w := NewWallet(reg)
	w.Op("deposit", nil)
	w.Op("withdraw", errors.New("insufficient"))
	assert.Equal(t, 1.0, testutil.ToFloat64(w.ops.WithLabelValues("deposit", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(w.ops.WithLabelValues("withdraw", "false")))

	// registry separado: mesmo nome de métrica em outro processo
	wk := NewWorker(prometheus.NewRegistry())
	wk.Consumed()
	wk.Pairs(2)
	wk.Error("decode")
	assert.Equal(t, 2.0, testutil.ToFloat64(wk.pairs))
	assert.Equal(t, 1.0, testutil.ToFloat64(wk.errors.WithLabelValues("decode")))
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewBet(reg).Created()

	healthy := Handler(reg, func(context.Context) error { return nil })
	rec := httptest.NewRecorder()
	healthy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	healthy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "bets_created_total 1"))

	sick := Handler(reg, func(context.Context) error { return nil }, func(context.Context) error { return errors.New("pg") })
	rec = httptest.NewRecorder()
	sick.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "pg")
}
