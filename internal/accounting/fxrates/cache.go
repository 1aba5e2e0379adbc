package fxrates

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheVersionPrefix = "ledger:fx:version"

// Cache memoises rate lookups in Redis. Each pair carries a version that is
// bumped on save, so a new rate invalidates every lookup date at once.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

type cachedRate struct {
	Found bool          `json:"found"`
	Rate  *ExchangeRate `json:"rate,omitempty"`
}

func (c *Cache) enabled() bool { return c != nil && c.client != nil }

// Key returns the versioned cache key for a lookup. Callers resolve it once
// before reading the store so a concurrent save cannot be masked by a stale
// result written under the new version.
func (c *Cache) Key(ctx context.Context, pair Pair, date time.Time) (string, error) {
	if !c.enabled() {
		return "", nil
	}
	ver, err := c.client.Get(ctx, versionKey(pair)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return strings.Join([]string{"ledger", "fx", pair.From, pair.To, date.Format(time.DateOnly), formatVersion(ver)}, ":"), nil
}

// Get returns the cached lookup result stored under key and whether it was a
// hit.
func (c *Cache) Get(ctx context.Context, key string) (*ExchangeRate, bool, error) {
	if !c.enabled() || key == "" {
		return nil, false, nil
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var cached cachedRate
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, false, err
	}
	return cached.Rate, true, nil
}

// Set stores a lookup result, including misses.
func (c *Cache) Set(ctx context.Context, key string, rate *ExchangeRate) error {
	if !c.enabled() || key == "" {
		return nil
	}
	raw, err := json.Marshal(cachedRate{Found: rate != nil, Rate: rate})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// Bump invalidates cached lookups for pair.
func (c *Cache) Bump(ctx context.Context, pair Pair) error {
	if !c.enabled() {
		return nil
	}
	return c.client.Incr(ctx, versionKey(pair)).Err()
}

func versionKey(pair Pair) string {
	return cacheVersionPrefix + ":" + pair.From + ":" + pair.To
}

func formatVersion(v int64) string {
	return "v" + strconv.FormatInt(v, 10)
}
