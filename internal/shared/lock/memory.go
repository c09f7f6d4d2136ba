package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type entry struct {
	token   string
	expires time.Time
}

// Memory é um Locker em processo com TTL; serve de dublê do Redis nos testes
// e permite pré-ocupar chaves para exercitar o caminho Contended.
type Memory struct {
	mu    sync.Mutex
	locks map[string]entry
	Now   func() time.Time
}

var _ Locker = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{locks: make(map[string]entry), Now: time.Now}
}

func (m *Memory) Acquire(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.Now()
	if e, ok := m.locks[key]; ok && now.Before(e.expires) {
		return "", false, nil
	}
	token := uuid.NewString()
	m.locks[key] = entry{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

func (m *Memory) Release(_ context.Context, key, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.locks[key]
	if !ok || e.token != token || !m.Now().Before(e.expires) {
		return false, nil
	}
	delete(m.locks, key)
	return true, nil
}

// Held informa se existe trava viva para a chave
func (m *Memory) Held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.locks[key]
	return ok && m.Now().Before(e.expires)
}
