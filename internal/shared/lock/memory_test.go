package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_ExclusiveUntilRelease(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	tok, ok, err := m.Acquire(ctx, BetKey("b1"), DefaultTTL)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, tok)

	_, ok, err = m.Acquire(ctx, BetKey("b1"), DefaultTTL)
	require.NoError(t, err)
	assert.False(t, ok, "segunda aquisição deve falhar enquanto a trava vive")

	// outra chave é independente
	_, ok, _ = m.Acquire(ctx, BetKey("b2"), DefaultTTL)
	assert.True(t, ok)

	released, err := m.Release(ctx, BetKey("b1"), tok)
	require.NoError(t, err)
	assert.True(t, released)
	assert.False(t, m.Held(BetKey("b1")))

	_, ok, _ = m.Acquire(ctx, BetKey("b1"), DefaultTTL)
	assert.True(t, ok)
}

func TestMemory_ReleaseWithWrongTokenKeepsLock(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, ok, _ := m.Acquire(ctx, "k", DefaultTTL)
	require.True(t, ok)

	released, err := m.Release(ctx, "k", "not-the-owner")
	require.NoError(t, err)
	assert.False(t, released)
	assert.True(t, m.Held("k"))
}

func TestMemory_ExpiresAfterTTL(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.Now = func() time.Time { return now }
	ctx := context.Background()

	oldTok, ok, _ := m.Acquire(ctx, "k", 5*time.Second)
	require.True(t, ok)

	now = now.Add(5 * time.Second)
	assert.False(t, m.Held("k"))

	newTok, ok, _ := m.Acquire(ctx, "k", 5*time.Second)
	require.True(t, ok, "trava expirada se auto-cura")

	// o dono antigo não consegue apagar a trava do novo dono
	released, _ := m.Release(ctx, "k", oldTok)
	assert.False(t, released)
	released, _ = m.Release(ctx, "k", newTok)
	assert.True(t, released)
}

func TestAlwaysGrant(t *testing.T) {
	var l Locker = AlwaysGrant{}
	for i := 0; i < 2; i++ {
		_, ok, err := l.Acquire(context.Background(), "k", time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}
