package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisAudienceCacheStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisAudienceCacheStore(client redis.UniversalClient, prefix string) *RedisAudienceCacheStore {
	if prefix == "" {
		prefix = "presence_audience"
	}
	return &RedisAudienceCacheStore{client: client, prefix: prefix}
}

func (s *RedisAudienceCacheStore) Get(ctx context.Context, userID uint) ([]uint, bool, error) {
	if s.client == nil {
		return nil, false, nil
	}
	raw, err := s.client.Get(ctx, s.key(userID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	audience, err := decodeIDs(raw)
	if err != nil {
		// a corrupt entry is treated as a miss and overwritten on next Set
		return nil, false, nil
	}
	return audience, true, nil
}

func (s *RedisAudienceCacheStore) Set(ctx context.Context, userID uint, audience []uint, ttl time.Duration) error {
	if s.client == nil || ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, s.key(userID), encodeIDs(audience), ttl).Err()
}

func (s *RedisAudienceCacheStore) Invalidate(ctx context.Context, userIDs ...uint) error {
	if s.client == nil || len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, s.key(id))
	}
	return s.client.Del(ctx, keys...).Err()
}

func (s *RedisAudienceCacheStore) key(userID uint) string {
	return fmt.Sprintf("%s:user:%d", s.prefix, userID)
}

func encodeIDs(ids []uint) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatUint(uint64(id), 10))
	}
	return strings.Join(parts, ",")
}

func decodeIDs(raw string) ([]uint, error) {
	if raw == "" {
		return []uint{}, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]uint, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, uint(v))
	}
	return out, nil
}
