package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRegistryTTL = 2 * time.Minute

// ConnectionRegistry tracks the live connections of every user. Add reports
// whether the connection is the user's first, Remove whether it was the last.
type ConnectionRegistry interface {
	Add(ctx context.Context, userID uint, connID string) (bool, error)
	Remove(ctx context.Context, userID uint, connID string) (bool, error)
	Count(ctx context.Context, userID uint) (int, error)
	// Refresh extends the liveness of the user's entry while connections
	// are still heartbeating.
	Refresh(ctx context.Context, userID uint) error
}

type InMemoryConnectionRegistry struct {
	mu    sync.Mutex
	conns map[uint]map[string]struct{}
}

func NewInMemoryConnectionRegistry() *InMemoryConnectionRegistry {
	return &InMemoryConnectionRegistry{conns: make(map[uint]map[string]struct{})}
}

func (r *InMemoryConnectionRegistry) Add(_ context.Context, userID uint, connID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.conns[userID]
	if !ok {
		set = make(map[string]struct{})
		r.conns[userID] = set
	}
	if _, dup := set[connID]; dup {
		return false, nil
	}
	set[connID] = struct{}{}
	return len(set) == 1, nil
}

func (r *InMemoryConnectionRegistry) Remove(_ context.Context, userID uint, connID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.conns[userID]
	if !ok {
		return false, nil
	}
	if _, present := set[connID]; !present {
		return false, nil
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(r.conns, userID)
		return true, nil
	}
	return false, nil
}

func (r *InMemoryConnectionRegistry) Count(_ context.Context, userID uint) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns[userID]), nil
}

func (r *InMemoryConnectionRegistry) Refresh(context.Context, uint) error { return nil }

// RedisConnectionRegistry shares presence across gateway instances. Each user
// owns a set of connection ids whose TTL is renewed by heartbeats, so sets
// left behind by a crashed instance expire on their own.
type RedisConnectionRegistry struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisConnectionRegistry(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisConnectionRegistry {
	if prefix == "" {
		prefix = "ws_conns"
	}
	if ttl <= 0 {
		ttl = defaultRegistryTTL
	}
	return &RedisConnectionRegistry{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisConnectionRegistry) Add(ctx context.Context, userID uint, connID string) (bool, error) {
	key := r.key(userID)
	var added *redis.IntCmd
	var card *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		added = pipe.SAdd(ctx, key, connID)
		pipe.PExpire(ctx, key, r.ttl)
		card = pipe.SCard(ctx, key)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("registry add: %w", err)
	}
	return added.Val() == 1 && card.Val() == 1, nil
}

func (r *RedisConnectionRegistry) Remove(ctx context.Context, userID uint, connID string) (bool, error) {
	key := r.key(userID)
	var removed *redis.IntCmd
	var card *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.SRem(ctx, key, connID)
		card = pipe.SCard(ctx, key)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("registry remove: %w", err)
	}
	return removed.Val() == 1 && card.Val() == 0, nil
}

func (r *RedisConnectionRegistry) Count(ctx context.Context, userID uint) (int, error) {
	n, err := r.client.SCard(ctx, r.key(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("registry count: %w", err)
	}
	return int(n), nil
}

func (r *RedisConnectionRegistry) Refresh(ctx context.Context, userID uint) error {
	return r.client.PExpire(ctx, r.key(userID), r.ttl).Err()
}

func (r *RedisConnectionRegistry) key(userID uint) string {
	return fmt.Sprintf("%s:user:%d", r.prefix, userID)
}
