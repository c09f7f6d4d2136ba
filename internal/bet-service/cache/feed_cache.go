package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultFeedTTL mantém o feed curto: qualquer criação/aceite invalida
const DefaultFeedTTL = 5 * time.Second

const keyFeed = "bets:feed"

type FeedCache struct {
	R   *redis.Client
	TTL time.Duration
}

func New(r *redis.Client) *FeedCache { return &FeedCache{R: r, TTL: DefaultFeedTTL} }

// GetFeed devolve false em miss
func (c *FeedCache) GetFeed(ctx context.Context, dst any) (bool, error) {
	b, err := c.R.Get(ctx, keyFeed).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(b, dst)
}

func (c *FeedCache) SetFeed(ctx context.Context, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.R.Set(ctx, keyFeed, b, c.TTL).Err()
}

func (c *FeedCache) Invalidate(ctx context.Context) error {
	return c.R.Del(ctx, keyFeed).Err()
}
