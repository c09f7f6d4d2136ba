package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseLua só apaga a chave se o valor for o token de quem chama.
// Impede liberar uma trava que expirou e foi readquirida por outro.
const releaseLua = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`

// Redis implementa Locker com SET NX PX e compare-and-delete em Lua
type Redis struct {
	rdb     *redis.Client
	release *redis.Script
}

var _ Locker = (*Redis)(nil)

func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb, release: redis.NewScript(releaseLua)}
}

func redisKey(key string) string { return "lock:" + key }

// Acquire tenta SET lock:{key} {token} NX PX ttl; token é um UUID aleatório
func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := r.rdb.SetNX(ctx, redisKey(key), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release apaga a trava apenas se ainda pertencer ao token informado
func (r *Redis) Release(ctx context.Context, key, token string) (bool, error) {
	n, err := r.release.Run(ctx, r.rdb, []string{redisKey(key)}, token).Int()
	if err != nil {
		return false, fmt.Errorf("release lock %s: %w", key, err)
	}
	return n == 1, nil
}
