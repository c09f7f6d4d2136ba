// Package lock implementa o lock distribuído de curta duração usado como
// fast-fail antes do matching. Ele não é a fonte de corretude: a trava de
// linha dentro da transação é.
package lock

import (
	"context"
	"time"
)

// DefaultTTL cobre com folga a transação de matching e ainda se auto-cura após crash
const DefaultTTL = 5 * time.Second

// Locker adquire e libera travas por chave de recurso.
// Acquire devolve ok=false (sem erro) quando outra operação já detém a chave.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) (released bool, err error)
}

// BetKey é a chave do lock de uma aposta
func BetKey(betID string) string { return "bet:" + betID }

// AlwaysGrant simula um lock ausente ou concedido em dobro: toda chamada
// consegue a trava. Usado para provar que a trava de linha sozinha basta.
type AlwaysGrant struct{}

func (AlwaysGrant) Acquire(context.Context, string, time.Duration) (string, bool, error) {
	return "always", true, nil
}

func (AlwaysGrant) Release(context.Context, string, string) (bool, error) { return true, nil }
