package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("slot lock not acquired")
)

const lockPrefix = "lock:slot:"

// Locker narrows contention on a slot key across api-server instances. It
// only sheds load; the unique index in Postgres decides who wins.
type Locker interface {
	WithSlotLock(ctx context.Context, slotKey string, fn func(ctx context.Context) error) error
}

// SlotLocker holds one SetNX key per doctor/date/start while a booking
// attempt is in flight.
type SlotLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSlotLocker(client *redis.Client, ttl time.Duration) *SlotLocker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &SlotLocker{client: client, ttl: ttl}
}

// Acquire takes the slot key and returns a release func. The release only
// deletes the key while it still carries our token, so an expired lock that
// someone else picked up is left alone.
func (l *SlotLocker) Acquire(ctx context.Context, slotKey string) (func(), error) {
	key := LockKey(slotKey)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire slot lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}

	release := func() {
		_ = releaseToken(context.WithoutCancel(ctx), l.client, key, token)
	}
	return release, nil
}

func (l *SlotLocker) WithSlotLock(ctx context.Context, slotKey string, fn func(ctx context.Context) error) error {
	release, err := l.Acquire(ctx, slotKey)
	if err != nil {
		return err
	}
	defer release()

	// the work must not outlive the key
	lockCtx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(lockCtx)
}

// LockKey is the Redis key guarding one doctor/date/start slot.
func LockKey(slotKey string) string {
	return lockPrefix + slotKey
}

var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

func releaseToken(ctx context.Context, client *redis.Client, key, token string) error {
	_, err := compareAndDelete.Run(ctx, client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release slot lock %s: %w", key, err)
	}
	return nil
}
