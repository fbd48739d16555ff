package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/memebot/internal/domain"
)

// priceTTL bounds how long a price of a token no longer held stays visible.
const priceTTL = 24 * time.Hour

// PriceCache implements domain.PriceCache with one hash per token holding
// "price" and "ts" (Unix nanoseconds).
type PriceCache struct {
	c *Client
}

// NewPriceCache creates a PriceCache.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{c: c}
}

// SetPrice stores the latest price of token.
func (pc *PriceCache) SetPrice(ctx context.Context, token string, price float64, ts time.Time) error {
	key := pc.c.key("price", domain.NormalizeAddress(token))
	pipe := pc.c.Underlying().TxPipeline()
	pipe.HSet(ctx, key,
		"price", strconv.FormatFloat(price, 'f', -1, 64),
		"ts", strconv.FormatInt(ts.UnixNano(), 10),
	)
	pipe.Expire(ctx, key, priceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price %s: %w", token, err)
	}
	return nil
}

// GetPrice returns the cached price of token, or domain.ErrNotFound.
func (pc *PriceCache) GetPrice(ctx context.Context, token string) (float64, time.Time, error) {
	vals, err := pc.c.Underlying().HMGet(ctx, pc.c.key("price", domain.NormalizeAddress(token)), "price", "ts").Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", token, err)
	}
	price, ts, ok := parsePrice(vals)
	if !ok {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", token, domain.ErrNotFound)
	}
	return price, ts, nil
}

// GetPrices returns the cached prices of tokens in one round trip. Tokens
// without a price are omitted.
func (pc *PriceCache) GetPrices(ctx context.Context, tokens []string) (map[string]float64, error) {
	out := make(map[string]float64, len(tokens))
	if len(tokens) == 0 {
		return out, nil
	}

	pipe := pc.c.Underlying().Pipeline()
	cmds := make([]*redis.SliceCmd, len(tokens))
	for i, t := range tokens {
		cmds[i] = pipe.HMGet(ctx, pc.c.key("price", domain.NormalizeAddress(t)), "price", "ts")
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("redis: get prices: %w", err)
	}

	for i, cmd := range cmds {
		if price, _, ok := parsePrice(cmd.Val()); ok {
			out[tokens[i]] = price
		}
	}
	return out, nil
}

func parsePrice(vals []any) (float64, time.Time, bool) {
	if len(vals) != 2 {
		return 0, time.Time{}, false
	}
	ps, ok1 := vals[0].(string)
	ts, ok2 := vals[1].(string)
	if !ok1 || !ok2 {
		return 0, time.Time{}, false
	}
	price, err := strconv.ParseFloat(ps, 64)
	if err != nil {
		return 0, time.Time{}, false
	}
	nanos, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return 0, time.Time{}, false
	}
	return price, time.Unix(0, nanos).UTC(), true
}

var _ domain.PriceCache = (*PriceCache)(nil)
