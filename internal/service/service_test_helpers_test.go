package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sandeepkv93/social-realtime-backend/internal/database"
	"github.com/sandeepkv93/social-realtime-backend/internal/domain"
	"github.com/sandeepkv93/social-realtime-backend/internal/repository"
	"github.com/sandeepkv93/social-realtime-backend/internal/security"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testAccessSecret  = "abcdefghijklmnopqrstuvwxyz123456"
	testRefreshSecret = "abcdefghijklmnopqrstuvwxyz654321"
)

func newRedisClientForTest(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})
	return server, client
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// inMemorySessionRepo enforces the same version check as the gorm store.
type inMemorySessionRepo struct {
	mu        sync.Mutex
	users     map[uint]*repository.UserSessions
	conflicts int
	saves     int
}

func newInMemorySessionRepo() *inMemorySessionRepo {
	return &inMemorySessionRepo{users: map[uint]*repository.UserSessions{}}
}

func (r *inMemorySessionRepo) addUser(id uint, policy domain.SessionPolicy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[id] = &repository.UserSessions{
		UserID:   id,
		Role:     domain.RoleUser,
		Status:   domain.UserStatusActive,
		Policy:   policy,
		Sessions: domain.SessionList{},
	}
}

func (r *inMemorySessionRepo) snapshot(id uint) domain.SessionList {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[id].Sessions.Clone()
}

func (r *inMemorySessionRepo) Load(_ context.Context, userID uint) (*repository.UserSessions, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	us, ok := r.users[userID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *us
	cp.Sessions = us.Sessions.Clone()
	return &cp, nil
}

func (r *inMemorySessionRepo) Save(_ context.Context, userID uint, expectedVersion int64, sessions domain.SessionList) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	us, ok := r.users[userID]
	if !ok {
		return 0, repository.ErrUserNotFound
	}
	if r.conflicts > 0 {
		r.conflicts--
		return 0, repository.ErrVersionConflict
	}
	if us.Version != expectedVersion {
		return 0, repository.ErrVersionConflict
	}
	us.Sessions = sessions.Clone()
	us.Version++
	r.saves++
	return us.Version, nil
}

func (r *inMemorySessionRepo) ListPage(_ context.Context, page repository.PageRequest) (repository.PageResult[repository.UserSessions], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]uint, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if page.Page < 1 {
		page.Page = 1
	}
	if page.PageSize < 1 {
		page.PageSize = repository.DefaultPageSize
	}
	res := repository.PageResult[repository.UserSessions]{Page: page.Page, PageSize: page.PageSize, Total: int64(len(ids))}
	res.TotalPages = (len(ids) + page.PageSize - 1) / page.PageSize
	start := (page.Page - 1) * page.PageSize
	for i := start; i < len(ids) && i < start+page.PageSize; i++ {
		cp := *r.users[ids[i]]
		cp.Sessions = cp.Sessions.Clone()
		res.Items = append(res.Items, cp)
	}
	return res, nil
}

type inMemoryUserRepo struct {
	mu     sync.Mutex
	nextID uint
	byID   map[uint]*domain.User
}

func newInMemoryUserRepo() *inMemoryUserRepo {
	return &inMemoryUserRepo{nextID: 1, byID: map[uint]*domain.User{}}
}

func (r *inMemoryUserRepo) FindByID(_ context.Context, id uint) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *inMemoryUserRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (r *inMemoryUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
	}
	if user.Status == "" {
		user.Status = domain.UserStatusActive
	}
	if user.Role == "" {
		user.Role = domain.RoleUser
	}
	user.ID = r.nextID
	r.nextID++
	cp := *user
	r.byID[user.ID] = &cp
	return nil
}

func (r *inMemoryUserRepo) UpdateStatus(_ context.Context, id uint, status domain.UserStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.Status = status
	return nil
}

func (r *inMemoryUserRepo) SetPresence(_ context.Context, id uint, online bool, seenAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.IsOnline = online
	if !online {
		u.LastSeenAt = &seenAt
	}
	return nil
}

func newTestJWTManager() *security.JWTManager {
	return security.NewJWTManager("test-issuer", "test-audience", testAccessSecret, testRefreshSecret)
}

func newTestIssuer() *TokenIssuer {
	return NewTokenIssuer(newTestJWTManager(), 15*time.Minute, 7*24*time.Hour)
}

func newSessionServiceForTest(t *testing.T) (*SessionService, *inMemorySessionRepo, *testClock) {
	t.Helper()
	repo := newInMemorySessionRepo()
	clock := newTestClock()
	svc := NewSessionService(repo, newTestIssuer(), domain.SessionLifetime)
	svc.now = clock.Now
	svc.backoff = 0
	return svc, repo, clock
}

func newServiceDBForTest(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func createUserForTest(t *testing.T, users repository.UserRepository, email string) *domain.User {
	t.Helper()
	u := &domain.User{Email: email, Name: email, SessionPolicy: domain.DefaultSessionPolicy()}
	if err := users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return u
}
