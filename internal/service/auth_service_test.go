package service

import (
	"context"
	"errors"
	"testing"

	"github.com/sandeepkv93/social-realtime-backend/internal/domain"
	"github.com/sandeepkv93/social-realtime-backend/internal/repository"
	"github.com/sandeepkv93/social-realtime-backend/internal/security"
)

func newAuthServiceForTest(t *testing.T) (*AuthService, *SessionService, repository.UserRepository) {
	t.Helper()
	db := newServiceDBForTest(t)
	users := repository.NewUserRepository(db)
	sessions := NewSessionService(repository.NewSessionRepository(db), newTestIssuer(), domain.SessionLifetime)
	sessions.backoff = 0
	policy := domain.SessionPolicy{MaxConcurrentSessions: 2, SessionTimeout: domain.DefaultSessionTimeout}
	return NewAuthService(users, sessions, security.NewHasher(4), policy), sessions, users
}

func TestRegisterCreatesUserAndSession(t *testing.T) {
	ctx := context.Background()
	auth, sessions, users := newAuthServiceForTest(t)

	res, err := auth.Register(ctx, RegisterInput{Email: "Ada@Example.com", Name: " Ada ", Password: "correct-horse"}, DeviceMeta{UserAgent: chromeWindowsUA, IP: "1.1.1.1"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if res.User.Email != "ada@example.com" || res.User.Name != "Ada" {
		t.Fatalf("unexpected user: %+v", res.User)
	}
	if res.Grant == nil || res.Grant.IsExistingSession {
		t.Fatalf("expected a new session grant, got %+v", res.Grant)
	}
	stored, err := users.FindByID(ctx, res.User.ID)
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	if stored.SessionPolicy.MaxConcurrentSessions != 2 {
		t.Fatalf("expected configured policy, got %+v", stored.SessionPolicy)
	}
	ok, err := sessions.ValidateSession(ctx, res.User.ID, res.Grant.SessionID)
	if err != nil || !ok {
		t.Fatalf("expected registered session to validate, ok=%v err=%v", ok, err)
	}
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	auth, _, _ := newAuthServiceForTest(t)

	cases := []RegisterInput{
		{Email: "not-an-email", Password: "long-enough"},
		{Email: "Ada <ada@example.com>", Password: "long-enough"},
		{Email: "ada@example.com", Password: "short"},
	}
	for _, in := range cases {
		if _, err := auth.Register(ctx, in, DeviceMeta{}); !errors.Is(err, ErrValidation) {
			t.Fatalf("expected ErrValidation for %+v, got %v", in, err)
		}
	}

	if _, err := auth.Register(ctx, RegisterInput{Email: "ada@example.com", Password: "long-enough"}, DeviceMeta{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := auth.Register(ctx, RegisterInput{Email: "ADA@example.com", Password: "long-enough"}, DeviceMeta{}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestLoginReusesSessionOnSameDevice(t *testing.T) {
	ctx := context.Background()
	auth, _, _ := newAuthServiceForTest(t)
	laptop := DeviceMeta{UserAgent: chromeWindowsUA, IP: "1.1.1.1"}
	phone := DeviceMeta{UserAgent: safariIPhoneUA, IP: "2.2.2.2"}

	reg, err := auth.Register(ctx, RegisterInput{Email: "ada@example.com", Password: "correct-horse"}, laptop)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	again, err := auth.Login(ctx, "ada@example.com", "correct-horse", laptop)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !again.Grant.IsExistingSession || again.Grant.SessionID != reg.Grant.SessionID {
		t.Fatalf("expected reuse of %s, got %+v", reg.Grant.SessionID, again.Grant)
	}

	other, err := auth.Login(ctx, "ada@example.com", "correct-horse", phone)
	if err != nil {
		t.Fatalf("login phone: %v", err)
	}
	if other.Grant.IsExistingSession || other.Grant.SessionID == reg.Grant.SessionID {
		t.Fatalf("expected a separate session for a new device, got %+v", other.Grant)
	}
}

func TestLoginEvictsBeyondPolicyCap(t *testing.T) {
	ctx := context.Background()
	auth, sessions, _ := newAuthServiceForTest(t)

	first, err := auth.Register(ctx, RegisterInput{Email: "ada@example.com", Password: "correct-horse"}, DeviceMeta{UserAgent: chromeWindowsUA, IP: "1.1.1.1"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := auth.Login(ctx, "ada@example.com", "correct-horse", DeviceMeta{UserAgent: safariIPhoneUA, IP: "2.2.2.2"}); err != nil {
		t.Fatalf("login phone: %v", err)
	}
	third, err := auth.Login(ctx, "ada@example.com", "correct-horse", DeviceMeta{UserAgent: firefoxLinuxUA, IP: "3.3.3.3"})
	if err != nil {
		t.Fatalf("login linux: %v", err)
	}
	if third.Grant.EvictedSessionID != first.Grant.SessionID {
		t.Fatalf("expected %s evicted, got %q", first.Grant.SessionID, third.Grant.EvictedSessionID)
	}
	views, err := sessions.ListActiveSessions(ctx, first.User.ID, third.Grant.SessionID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected the cap of 2 active sessions, got %d", len(views))
	}
}

func TestLoginRejectsBadCredentialsAndInactiveAccounts(t *testing.T) {
	ctx := context.Background()
	auth, _, users := newAuthServiceForTest(t)
	reg, err := auth.Register(ctx, RegisterInput{Email: "ada@example.com", Password: "correct-horse"}, DeviceMeta{})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := auth.Login(ctx, "ada@example.com", "wrong-horse", DeviceMeta{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := auth.Login(ctx, "nobody@example.com", "correct-horse", DeviceMeta{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
	if _, err := auth.Login(ctx, "garbage", "correct-horse", DeviceMeta{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for malformed email, got %v", err)
	}

	if err := users.UpdateStatus(ctx, reg.User.ID, domain.UserStatusInactive); err != nil {
		t.Fatalf("update status: %v", err)
	}
	if _, err := auth.Login(ctx, "ada@example.com", "correct-horse", DeviceMeta{}); !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}
}

func TestLogoutDeactivatesOnlyCurrentSession(t *testing.T) {
	ctx := context.Background()
	auth, sessions, _ := newAuthServiceForTest(t)
	laptop, err := auth.Register(ctx, RegisterInput{Email: "ada@example.com", Password: "correct-horse"}, DeviceMeta{UserAgent: chromeWindowsUA, IP: "1.1.1.1"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	phone, err := auth.Login(ctx, "ada@example.com", "correct-horse", DeviceMeta{UserAgent: safariIPhoneUA, IP: "2.2.2.2"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := auth.Logout(ctx, laptop.User.ID, laptop.Grant.SessionID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := auth.Logout(ctx, laptop.User.ID, laptop.Grant.SessionID); err != nil {
		t.Fatalf("second logout should be a no-op: %v", err)
	}
	if ok, _ := sessions.ValidateSession(ctx, laptop.User.ID, laptop.Grant.SessionID); ok {
		t.Fatal("expected logged out session to be invalid")
	}
	if ok, _ := sessions.ValidateSession(ctx, laptop.User.ID, phone.Grant.SessionID); !ok {
		t.Fatal("expected other device session to stay valid")
	}
}
