package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SERVICE_NAME", "bet-service")

	cfg := Load()
	assert.Equal(t, "8083", cfg.HTTPPort)
	assert.Equal(t, "9099", cfg.MetricsPort)
	assert.True(t, cfg.PlatformFeePercent.Equal(decimal.NewFromInt(5)))
	assert.True(t, cfg.MinStake.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, 5*time.Second, cfg.MatchLockTTL)
	assert.Equal(t, time.Minute, cfg.ExpirySweepInterval)
	assert.False(t, cfg.SettlementDebitLoser)
	assert.Equal(t, "match_results", cfg.TopicMatchResults)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SERVICE_NAME", "settlement-worker")
	t.Setenv("PLATFORM_FEE_PERCENT", "2.5")
	t.Setenv("MATCH_LOCK_TTL", "3s")
	t.Setenv("SETTLEMENT_DEBIT_LOSER", "true")
	t.Setenv("EXPIRY_SWEEP_INTERVAL", "not-a-duration")

	cfg := Load()
	assert.Equal(t, "9097", cfg.MetricsPort)
	assert.True(t, cfg.PlatformFeePercent.Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, 3*time.Second, cfg.MatchLockTTL)
	assert.True(t, cfg.SettlementDebitLoser)
	assert.Equal(t, time.Minute, cfg.ExpirySweepInterval)
}

func TestLoad_ResultsServices(t *testing.T) {
	t.Setenv("SERVICE_NAME", "results-simulator")
	cfg := Load()
	assert.Equal(t, "8090", cfg.HTTPPort)
	assert.Equal(t, "ws://localhost:8090/ws", cfg.ResultsFeedURL)

	t.Setenv("SERVICE_NAME", "results-ingest")
	t.Setenv("RESULTS_WS_URL", "wss://feed.example/ws")
	cfg = Load()
	assert.Empty(t, cfg.HTTPPort)
	assert.Equal(t, "9096", cfg.MetricsPort)
	assert.Equal(t, "wss://feed.example/ws", cfg.ResultsFeedURL)
}

func TestLoad_FeePercentBounds(t *testing.T) {
	for _, tc := range []struct{ in, want string }{
		{"0", "0"},
		{"100", "100"},
		{"150", "5"},
		{"-1", "5"},
		{"abc", "5"},
	} {
		t.Run(tc.in, func(t *testing.T) {
			t.Setenv("PLATFORM_FEE_PERCENT", tc.in)
			cfg := Load()
			assert.True(t, cfg.PlatformFeePercent.Equal(decimal.RequireFromString(tc.want)), cfg.PlatformFeePercent.String())
		})
	}
}
