package sequence

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

const redisKeyPrefix = "ledger:sequence:"

// allocateScript initialises the hash from defaults on first use and then
// advances next_value in a single atomic step.
var allocateScript = redis.NewScript(`
local key = KEYS[1]
redis.call('HSETNX', key, 'prefix', ARGV[1])
redis.call('HSETNX', key, 'next_value', ARGV[2])
redis.call('HSETNX', key, 'increment_by', ARGV[3])
redis.call('HSETNX', key, 'min_value', ARGV[4])
redis.call('HSETNX', key, 'max_value', ARGV[5])
redis.call('HSETNX', key, 'cycle', ARGV[6])
redis.call('HSETNX', key, 'format', ARGV[7])
local value = tonumber(redis.call('HGET', key, 'next_value'))
local inc = tonumber(redis.call('HGET', key, 'increment_by'))
local minv = tonumber(redis.call('HGET', key, 'min_value'))
local maxv = tonumber(redis.call('HGET', key, 'max_value'))
if value > maxv then
  if redis.call('HGET', key, 'cycle') ~= '1' then
    return redis.error_reply('sequence exhausted')
  end
  value = minv
end
redis.call('HSET', key, 'next_value', value + inc)
return {value, redis.call('HGET', key, 'prefix'), redis.call('HGET', key, 'format')}
`)

// RedisAllocator hands out sequence values from Redis hashes.
type RedisAllocator struct {
	client *redis.Client
}

func NewRedisAllocator(client *redis.Client) *RedisAllocator {
	return &RedisAllocator{client: client}
}

func (a *RedisAllocator) Allocate(ctx context.Context, defaults Sequence) (int64, Sequence, error) {
	cycle := "0"
	if defaults.Cycle {
		cycle = "1"
	}
	res, err := allocateScript.Run(ctx, a.client, []string{redisKeyPrefix + defaults.Name},
		defaults.Prefix, defaults.NextValue, defaults.IncrementBy, defaults.MinValue, defaults.MaxValue, cycle, defaults.Format).Slice()
	if err != nil {
		if strings.Contains(err.Error(), "sequence exhausted") {
			return 0, Sequence{}, fmt.Errorf("%w: %s", shared.ErrSequenceExhausted, defaults.Name)
		}
		return 0, Sequence{}, fmt.Errorf("sequence: redis allocate %s: %w", defaults.Name, err)
	}
	if len(res) != 3 {
		return 0, Sequence{}, fmt.Errorf("sequence: unexpected redis reply %v", res)
	}
	value, err := toInt64(res[0])
	if err != nil {
		return 0, Sequence{}, err
	}
	seq := defaults
	seq.Prefix, _ = res[1].(string)
	seq.Format, _ = res[2].(string)
	seq.NextValue = value + defaults.IncrementBy
	return value, seq, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("sequence: unexpected value %T", v)
	}
}
