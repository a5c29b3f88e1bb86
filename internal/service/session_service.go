package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sandeepkv93/social-realtime-backend/internal/domain"
	"github.com/sandeepkv93/social-realtime-backend/internal/fingerprint"
	"github.com/sandeepkv93/social-realtime-backend/internal/observability"
	"github.com/sandeepkv93/social-realtime-backend/internal/repository"
	"github.com/sandeepkv93/social-realtime-backend/internal/security"
)

const (
	maxSessionWriteAttempts = 5
	cleanupPageSize         = 100
)

// DeviceMeta is the raw connection metadata a session is bound to.
type DeviceMeta struct {
	UserAgent string
	IP        string
	Location  *domain.Location
}

type SessionGrant struct {
	SessionID         string            `json:"session_id"`
	AccessToken       string            `json:"-"`
	RefreshToken      string            `json:"-"`
	CSRFToken         string            `json:"-"`
	DeviceInfo        domain.DeviceInfo `json:"device_info"`
	ExpiresAt         time.Time         `json:"expires_at"`
	IsExistingSession bool              `json:"is_existing_session"`
	EvictedSessionID  string            `json:"-"`
}

type SessionView struct {
	SessionID    string            `json:"session_id"`
	DeviceInfo   domain.DeviceInfo `json:"device_info"`
	Location     domain.Location   `json:"location"`
	LastActivity time.Time         `json:"last_activity"`
	CreatedAt    time.Time         `json:"created_at"`
	ExpiresAt    time.Time         `json:"expires_at"`
	IsCurrent    bool              `json:"is_current"`
}

type SessionStats struct {
	TotalSessions     int `json:"total_sessions"`
	ActiveSessions    int `json:"active_sessions"`
	IdleSessions      int `json:"idle_sessions"`
	RevokedSessions   int `json:"revoked_sessions"`
	ExpiredSessions   int `json:"expired_sessions"`
	UsersWithSessions int `json:"users_with_sessions"`
}

type tokenMinter interface {
	Mint(userID uint, role domain.Role, sessionID string) (TokenPair, error)
}

// SessionService owns the per-user session lifecycle. Every mutation is a
// read-modify-write of the user's session document committed against the
// version it was read at, retried on conflict.
type SessionService struct {
	repo     repository.SessionRepository
	tokens   tokenMinter
	lifetime time.Duration
	now      func() time.Time
	newID    func() (string, error)
	backoff  time.Duration
}

func NewSessionService(repo repository.SessionRepository, tokens *TokenIssuer, lifetime time.Duration) *SessionService {
	if lifetime <= 0 {
		lifetime = domain.SessionLifetime
	}
	return &SessionService{
		repo:     repo,
		tokens:   tokens,
		lifetime: lifetime,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    security.NewSessionID,
		backoff:  5 * time.Millisecond,
	}
}

// OpenSession reuses the live session bound to the same device when one
// exists and is still within its inactivity window, and creates one otherwise.
func (s *SessionService) OpenSession(ctx context.Context, userID uint, meta DeviceMeta) (*SessionGrant, error) {
	existing, err := s.FindExistingSession(ctx, userID, meta)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		ok, err := s.ValidateSession(ctx, userID, existing.SessionID)
		if err != nil {
			return nil, err
		}
		if ok {
			us, err := s.repo.Load(ctx, userID)
			if err != nil {
				return nil, err
			}
			pair, err := s.tokens.Mint(userID, us.Role, existing.SessionID)
			if err != nil {
				return nil, fmt.Errorf("mint tokens: %w", err)
			}
			observability.RecordSessionEvent(ctx, "reuse", "success")
			return &SessionGrant{
				SessionID:         existing.SessionID,
				AccessToken:       pair.AccessToken,
				RefreshToken:      pair.RefreshToken,
				CSRFToken:         pair.CSRFToken,
				DeviceInfo:        existing.DeviceInfo,
				ExpiresAt:         existing.ExpiresAt,
				IsExistingSession: true,
			}, nil
		}
	}
	return s.CreateSession(ctx, userID, meta)
}

func (s *SessionService) CreateSession(ctx context.Context, userID uint, meta DeviceMeta) (*SessionGrant, error) {
	device := fingerprint.Extract(meta.UserAgent, meta.IP)
	location := domain.DefaultLocation()
	if meta.Location != nil {
		location = *meta.Location
	}
	sessionID, err := s.newID()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}

	var created domain.Session
	var evicted string
	us, err := s.mutate(ctx, userID, "create", func(us *repository.UserSessions, now time.Time) (bool, error) {
		list := us.Sessions.PruneExpired(now)
		evicted = ""
		// At most one eviction per call, even when a lowered cap leaves
		// the user further over the limit.
		if list.ActiveCount(now) >= us.Policy.MaxConcurrentSessions {
			if i := list.LeastRecentlyActive(now); i >= 0 {
				list[i].IsActive = false
				evicted = list[i].SessionID
			}
		}
		created = domain.Session{
			SessionID:    sessionID,
			DeviceInfo:   device,
			Location:     location,
			IsActive:     true,
			LastActivity: now,
			CreatedAt:    now,
			ExpiresAt:    now.Add(s.lifetime),
		}
		us.Sessions = list.Append(created)
		return true, nil
	})
	if err != nil {
		observability.RecordSessionEvent(ctx, "create", "error")
		return nil, err
	}
	if evicted != "" {
		observability.RecordSessionEvent(ctx, "evict", "success")
	}
	observability.RecordSessionEvent(ctx, "create", "success")

	pair, err := s.tokens.Mint(userID, us.Role, created.SessionID)
	if err != nil {
		return nil, fmt.Errorf("mint tokens: %w", err)
	}
	grant := &SessionGrant{
		SessionID:        created.SessionID,
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		CSRFToken:        pair.CSRFToken,
		DeviceInfo:       created.DeviceInfo,
		ExpiresAt:        created.ExpiresAt,
		EvictedSessionID: evicted,
	}
	return grant, nil
}

// FindExistingSession returns the live session whose raw user agent and
// source IP both equal meta's, or nil.
func (s *SessionService) FindExistingSession(ctx context.Context, userID uint, meta DeviceMeta) (*domain.Session, error) {
	us, err := s.repo.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	i := us.Sessions.FindByDevice(meta.UserAgent, meta.IP, s.now())
	if i < 0 {
		return nil, nil
	}
	found := us.Sessions[i]
	return &found, nil
}

// ValidateSession reports whether the session is usable and records activity
// on it. An idle session past the user's timeout is deactivated here.
func (s *SessionService) ValidateSession(ctx context.Context, userID uint, sessionID string) (bool, error) {
	var valid bool
	outcome := "invalid"
	_, err := s.mutate(ctx, userID, "validate", func(us *repository.UserSessions, now time.Time) (bool, error) {
		valid = false
		outcome = "invalid"
		i := us.Sessions.FindByID(sessionID)
		if i < 0 || !us.Sessions[i].Live(now) {
			return false, nil
		}
		if now.Sub(us.Sessions[i].LastActivity) > us.Policy.SessionTimeout {
			us.Sessions[i].IsActive = false
			outcome = "timeout"
			return true, nil
		}
		us.Sessions[i].LastActivity = now
		valid = true
		outcome = "success"
		return true, nil
	})
	if errors.Is(err, repository.ErrUserNotFound) {
		observability.RecordSessionEvent(ctx, "validate", "invalid")
		return false, nil
	}
	if err != nil {
		observability.RecordSessionEvent(ctx, "validate", "error")
		return false, err
	}
	observability.RecordSessionEvent(ctx, "validate", outcome)
	return valid, nil
}

// DeactivateSession is idempotent: an absent or already inactive session is
// not an error.
func (s *SessionService) DeactivateSession(ctx context.Context, userID uint, sessionID string) error {
	_, err := s.deactivate(ctx, userID, sessionID)
	return err
}

// RevokeSession is DeactivateSession for callers that must distinguish a
// session the user never had.
func (s *SessionService) RevokeSession(ctx context.Context, userID uint, sessionID string) error {
	found, err := s.deactivate(ctx, userID, sessionID)
	if err != nil {
		return err
	}
	if !found {
		return ErrSessionNotFound
	}
	return nil
}

func (s *SessionService) deactivate(ctx context.Context, userID uint, sessionID string) (bool, error) {
	var found bool
	_, err := s.mutate(ctx, userID, "revoke", func(us *repository.UserSessions, _ time.Time) (bool, error) {
		found = us.Sessions.FindByID(sessionID) >= 0
		return us.Sessions.Deactivate(sessionID), nil
	})
	if err != nil {
		observability.RecordSessionEvent(ctx, "revoke", "error")
		return false, err
	}
	observability.RecordSessionEvent(ctx, "revoke", "success")
	return found, nil
}

func (s *SessionService) DeactivateAllSessions(ctx context.Context, userID uint) (int, error) {
	var n int
	_, err := s.mutate(ctx, userID, "revoke_all", func(us *repository.UserSessions, _ time.Time) (bool, error) {
		n = us.Sessions.DeactivateAll()
		return n > 0, nil
	})
	if err != nil {
		observability.RecordSessionEvent(ctx, "revoke_all", "error")
		return 0, err
	}
	observability.RecordSessionEvent(ctx, "revoke_all", "success")
	return n, nil
}

func (s *SessionService) ListActiveSessions(ctx context.Context, userID uint, currentSessionID string) ([]SessionView, error) {
	us, err := s.repo.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	live := us.Sessions.Live(s.now())
	sort.SliceStable(live, func(i, j int) bool {
		return live[i].LastActivity.After(live[j].LastActivity)
	})
	views := make([]SessionView, 0, len(live))
	for _, sess := range live {
		views = append(views, SessionView{
			SessionID:    sess.SessionID,
			DeviceInfo:   sess.DeviceInfo,
			Location:     sess.Location,
			LastActivity: sess.LastActivity,
			CreatedAt:    sess.CreatedAt,
			ExpiresAt:    sess.ExpiresAt,
			IsCurrent:    sess.SessionID == currentSessionID,
		})
	}
	return views, nil
}

// CleanupExpiredSessions physically removes expired records for every user
// and returns how many were removed.
func (s *SessionService) CleanupExpiredSessions(ctx context.Context) (int, error) {
	removed := 0
	err := s.eachUser(ctx, func(us repository.UserSessions) error {
		if _, n := us.Sessions.RemoveExpired(s.now()); n == 0 {
			return nil
		}
		var dropped int
		_, err := s.mutate(ctx, us.UserID, "cleanup", func(cur *repository.UserSessions, now time.Time) (bool, error) {
			cur.Sessions, dropped = cur.Sessions.RemoveExpired(now)
			return dropped > 0, nil
		})
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("cleanup user %d: %w", us.UserID, err)
		}
		removed += dropped
		return nil
	})
	observability.RecordSessionCleanup(ctx, removed)
	return removed, err
}

func (s *SessionService) GetSessionStats(ctx context.Context) (SessionStats, error) {
	var stats SessionStats
	now := s.now()
	err := s.eachUser(ctx, func(us repository.UserSessions) error {
		if len(us.Sessions) == 0 {
			return nil
		}
		stats.UsersWithSessions++
		for _, sess := range us.Sessions {
			stats.TotalSessions++
			switch sess.State(now, us.Policy.SessionTimeout) {
			case domain.SessionStateActive:
				stats.ActiveSessions++
			case domain.SessionStateTimedOut:
				stats.ActiveSessions++
				stats.IdleSessions++
			case domain.SessionStateRevoked:
				stats.RevokedSessions++
			case domain.SessionStateExpired:
				stats.ExpiredSessions++
			}
		}
		return nil
	})
	if err != nil {
		return SessionStats{}, err
	}
	return stats, nil
}

func (s *SessionService) eachUser(ctx context.Context, fn func(repository.UserSessions) error) error {
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := s.repo.ListPage(ctx, repository.PageRequest{Page: page, PageSize: cleanupPageSize})
		if err != nil {
			return err
		}
		for _, us := range res.Items {
			if err := fn(us); err != nil {
				return err
			}
		}
		if !res.HasNext() {
			return nil
		}
	}
}

type sessionMutation func(us *repository.UserSessions, now time.Time) (bool, error)

func (s *SessionService) mutate(ctx context.Context, userID uint, op string, fn sessionMutation) (*repository.UserSessions, error) {
	for attempt := 1; attempt <= maxSessionWriteAttempts; attempt++ {
		us, err := s.repo.Load(ctx, userID)
		if err != nil {
			return nil, err
		}
		us.Policy = us.Policy.Normalized()
		us.Sessions = us.Sessions.Clone()
		changed, err := fn(us, s.now())
		if err != nil {
			return nil, err
		}
		if !changed {
			return us, nil
		}
		version, err := s.repo.Save(ctx, userID, us.Version, us.Sessions)
		if errors.Is(err, repository.ErrVersionConflict) {
			observability.RecordSessionEvent(ctx, op, "conflict")
			if err := sleepCtx(ctx, time.Duration(attempt)*s.backoff); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		us.Version = version
		return us, nil
	}
	return nil, ErrSessionContention
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
