package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/sandeepkv93/social-realtime-backend/internal/domain"
	"github.com/sandeepkv93/social-realtime-backend/internal/repository"

	"golang.org/x/sync/errgroup"
)

const defaultAudienceTTL = 5 * time.Minute

type SocialGraph struct {
	friends       repository.FriendshipRepository
	conversations repository.ConversationRepository
}

func NewSocialGraph(friends repository.FriendshipRepository, conversations repository.ConversationRepository) *SocialGraph {
	return &SocialGraph{friends: friends, conversations: conversations}
}

func (g *SocialGraph) FriendIDs(ctx context.Context, userID uint) ([]uint, error) {
	return g.friends.AcceptedFriendIDs(ctx, userID)
}

// RequestFriendship records a pending friendship, or an accepted one when
// accept is set.
func (g *SocialGraph) RequestFriendship(ctx context.Context, requesterID, addresseeID uint, accept bool) (*domain.Friendship, error) {
	if requesterID == 0 || addresseeID == 0 || requesterID == addresseeID {
		return nil, fmt.Errorf("%w: invalid friendship", ErrValidation)
	}
	f := &domain.Friendship{RequesterID: requesterID, AddresseeID: addresseeID, Status: domain.FriendshipPending}
	if accept {
		f.Status = domain.FriendshipAccepted
	}
	if err := g.friends.Create(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

func (g *SocialGraph) PartnerIDs(ctx context.Context, userID uint) ([]uint, error) {
	return g.conversations.PartnerIDs(ctx, userID, true)
}

// Audience returns everyone who should see the user's presence: accepted
// friends and partners of conversations that are not blocked.
func (g *SocialGraph) Audience(ctx context.Context, userID uint) ([]uint, error) {
	return collectAudience(ctx, userID, g.FriendIDs, g.PartnerIDs)
}

type idLookup func(ctx context.Context, userID uint) ([]uint, error)

func collectAudience(ctx context.Context, userID uint, friendIDs, partnerIDs idLookup) ([]uint, error) {
	var friends, partners []uint
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		ids, err := friendIDs(egCtx, userID)
		friends = ids
		return err
	})
	eg.Go(func() error {
		ids, err := partnerIDs(egCtx, userID)
		partners = ids
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("presence audience for user %d: %w", userID, err)
	}
	out := make([]uint, 0, len(friends)+len(partners))
	out = append(out, friends...)
	out = append(out, partners...)
	slices.Sort(out)
	out = slices.Compact(out)
	return slices.DeleteFunc(out, func(id uint) bool { return id == userID }), nil
}

type PresenceService struct {
	users repository.UserRepository
	graph *SocialGraph
	cache AudienceCacheStore
	ttl   time.Duration
	now   func() time.Time
}

func NewPresenceService(users repository.UserRepository, graph *SocialGraph, cache AudienceCacheStore) *PresenceService {
	if cache == nil {
		cache = NewNoopAudienceCacheStore()
	}
	return &PresenceService{
		users: users,
		graph: graph,
		cache: cache,
		ttl:   defaultAudienceTTL,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *PresenceService) SetOnline(ctx context.Context, userID uint) error {
	return s.users.SetPresence(ctx, userID, true, s.now())
}

func (s *PresenceService) SetOffline(ctx context.Context, userID uint) error {
	return s.users.SetPresence(ctx, userID, false, s.now())
}

// Audience combines the cached friend list with a live read of conversation
// partners. Conversations appear lazily on a first message and change on
// block, so only the friend half is cached.
func (s *PresenceService) Audience(ctx context.Context, userID uint) ([]uint, error) {
	return collectAudience(ctx, userID, s.cachedFriendIDs, s.graph.PartnerIDs)
}

func (s *PresenceService) cachedFriendIDs(ctx context.Context, userID uint) ([]uint, error) {
	if cached, ok, err := s.cache.Get(ctx, userID); err == nil && ok {
		return cached, nil
	}
	ids, err := s.graph.FriendIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	_ = s.cache.Set(ctx, userID, ids, s.ttl)
	return ids, nil
}

// InvalidateAudience drops the cached friend lists of the given users.
func (s *PresenceService) InvalidateAudience(ctx context.Context, userIDs ...uint) error {
	return s.cache.Invalidate(ctx, userIDs...)
}
