package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// maxLockHold bounds how long a lease can outlive a crashed holder.
const maxLockHold = 30 * time.Second

// Lease is a held action lock. Token identifies the holder so a late release
// never frees a lock someone else acquired since.
type Lease struct {
	Key   string
	Token string
}

// ActionLock suppresses duplicate toggle actions for the same resource and
// user while one is in flight.
type ActionLock interface {
	Acquire(ctx context.Context, key string) (Lease, bool, error)
	Release(ctx context.Context, lease Lease) error
	// ReleaseAfter schedules the release. It does not depend on the caller's
	// connection staying open.
	ReleaseAfter(ctx context.Context, lease Lease, grace time.Duration) error
}

func LockKey(kind, resourceID string, userID uint) string {
	return fmt.Sprintf("%s:%s:%d", kind, resourceID, userID)
}

type InMemoryActionLock struct {
	mu    sync.Mutex
	held  map[string]string
	timer func(time.Duration, func()) *time.Timer
}

func NewInMemoryActionLock() *InMemoryActionLock {
	return &InMemoryActionLock{held: make(map[string]string), timer: time.AfterFunc}
}

func (l *InMemoryActionLock) Acquire(_ context.Context, key string) (Lease, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return Lease{}, false, nil
	}
	lease := Lease{Key: key, Token: uuid.NewString()}
	l.held[key] = lease.Token
	return lease, true, nil
}

func (l *InMemoryActionLock) Release(_ context.Context, lease Lease) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[lease.Key] == lease.Token {
		delete(l.held, lease.Key)
	}
	return nil
}

func (l *InMemoryActionLock) ReleaseAfter(ctx context.Context, lease Lease, grace time.Duration) error {
	if grace <= 0 {
		return l.Release(ctx, lease)
	}
	l.timer(grace, func() { _ = l.Release(context.Background(), lease) })
	return nil
}

func (l *InMemoryActionLock) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok
}

var (
	redisLockReleaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)
	redisLockGraceScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)
)

// RedisActionLock shares duplicate suppression across gateway instances. The
// grace release is a PEXPIRE on the held key, so it fires in Redis even if
// this process goes away.
type RedisActionLock struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisActionLock(client redis.UniversalClient, prefix string) *RedisActionLock {
	if prefix == "" {
		prefix = "action_lock"
	}
	return &RedisActionLock{client: client, prefix: prefix}
}

func (l *RedisActionLock) Acquire(ctx context.Context, key string) (Lease, bool, error) {
	lease := Lease{Key: key, Token: uuid.NewString()}
	ok, err := l.client.SetNX(ctx, l.storeKey(key), lease.Token, maxLockHold).Result()
	if err != nil {
		return Lease{}, false, fmt.Errorf("action lock acquire: %w", err)
	}
	if !ok {
		return Lease{}, false, nil
	}
	return lease, true, nil
}

func (l *RedisActionLock) Release(ctx context.Context, lease Lease) error {
	if err := redisLockReleaseScript.Run(ctx, l.client, []string{l.storeKey(lease.Key)}, lease.Token).Err(); err != nil {
		return fmt.Errorf("action lock release: %w", err)
	}
	return nil
}

func (l *RedisActionLock) ReleaseAfter(ctx context.Context, lease Lease, grace time.Duration) error {
	if grace <= 0 {
		return l.Release(ctx, lease)
	}
	ms := max(grace.Milliseconds(), 1)
	if err := redisLockGraceScript.Run(ctx, l.client, []string{l.storeKey(lease.Key)}, lease.Token, ms).Err(); err != nil {
		return fmt.Errorf("action lock grace: %w", err)
	}
	return nil
}

func (l *RedisActionLock) storeKey(key string) string {
	return l.prefix + ":" + key
}
