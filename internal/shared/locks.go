package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld indicates another worker owns the critical section.
var ErrLockHeld = errors.New("lock already held")

// RevaluationLockKey guards forex revaluation runs for one date.
func RevaluationLockKey(date time.Time) string {
	return fmt.Sprintf("ledger:forex:%s:lock", date.Format(time.DateOnly))
}

// RecurringLockKey guards recurring expansion runs.
func RecurringLockKey() string {
	return "ledger:recurring:lock"
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out short-lived redis locks. A nil Locker always grants.
type Locker struct {
	client *redis.Client
}

// NewLocker constructs a locker backed by client.
func NewLocker(client *redis.Client) *Locker {
	return &Locker{client: client}
}

// Acquire takes key for ttl and returns the release func.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if l == nil || l.client == nil {
		return func() {}, nil
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLockHeld, key)
	}
	return func() {
		_ = releaseScript.Run(context.WithoutCancel(ctx), l.client, []string{key}, token).Err()
	}, nil
}
