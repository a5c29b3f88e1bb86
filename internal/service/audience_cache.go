package service

import (
	"context"
	"sync"
	"time"
)

// AudienceCacheStore caches the presence audience of a user. Entries are
// dropped whenever the friend graph or a block changes for that user.
type AudienceCacheStore interface {
	Get(ctx context.Context, userID uint) ([]uint, bool, error)
	Set(ctx context.Context, userID uint, audience []uint, ttl time.Duration) error
	Invalidate(ctx context.Context, userIDs ...uint) error
}

type NoopAudienceCacheStore struct{}

func NewNoopAudienceCacheStore() *NoopAudienceCacheStore {
	return &NoopAudienceCacheStore{}
}

func (s *NoopAudienceCacheStore) Get(context.Context, uint) ([]uint, bool, error) {
	return nil, false, nil
}

func (s *NoopAudienceCacheStore) Set(context.Context, uint, []uint, time.Duration) error {
	return nil
}

func (s *NoopAudienceCacheStore) Invalidate(context.Context, ...uint) error {
	return nil
}

type audienceEntry struct {
	audience  []uint
	expiresAt time.Time
}

type InMemoryAudienceCacheStore struct {
	mu    sync.RWMutex
	store map[uint]audienceEntry
}

func NewInMemoryAudienceCacheStore() *InMemoryAudienceCacheStore {
	return &InMemoryAudienceCacheStore{store: make(map[uint]audienceEntry)}
}

func (s *InMemoryAudienceCacheStore) Get(_ context.Context, userID uint) ([]uint, bool, error) {
	now := time.Now().UTC()
	s.mu.RLock()
	entry, ok := s.store[userID]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if now.After(entry.expiresAt) {
		s.mu.Lock()
		if cur, ok := s.store[userID]; ok && now.After(cur.expiresAt) {
			delete(s.store, userID)
		}
		s.mu.Unlock()
		return nil, false, nil
	}
	return append([]uint(nil), entry.audience...), true, nil
}

func (s *InMemoryAudienceCacheStore) Set(_ context.Context, userID uint, audience []uint, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store[userID] = audienceEntry{
		audience:  append([]uint(nil), audience...),
		expiresAt: time.Now().UTC().Add(ttl),
	}
	return nil
}

func (s *InMemoryAudienceCacheStore) Invalidate(_ context.Context, userIDs ...uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range userIDs {
		delete(s.store, id)
	}
	return nil
}
