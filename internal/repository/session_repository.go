package repository

import (
	"context"
	"errors"

	"github.com/sandeepkv93/social-realtime-backend/internal/domain"

	"gorm.io/gorm"
)

// UserSessions is the slice of a user row the session lifecycle reads and
// writes back as one document.
type UserSessions struct {
	UserID   uint
	Role     domain.Role
	Status   domain.UserStatus
	Policy   domain.SessionPolicy
	Sessions domain.SessionList
	Version  int64
}

type SessionRepository interface {
	Load(ctx context.Context, userID uint) (*UserSessions, error)
	// Save replaces the session document when the stored version still equals
	// expectedVersion and returns the new version.
	Save(ctx context.Context, userID uint, expectedVersion int64, sessions domain.SessionList) (int64, error)
	ListPage(ctx context.Context, page PageRequest) (PageResult[UserSessions], error)
}

type GormSessionRepository struct{ db *gorm.DB }

func NewSessionRepository(db *gorm.DB) SessionRepository { return &GormSessionRepository{db: db} }

func (r *GormSessionRepository) Load(ctx context.Context, userID uint) (*UserSessions, error) {
	var u domain.User
	err := r.db.WithContext(ctx).
		Select("id", "role", "status", "session_max_concurrent_sessions", "session_session_timeout", "sessions", "version").
		First(&u, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = ErrUserNotFound
	}
	record(ctx, "session", "load", err)
	if err != nil {
		return nil, err
	}
	out := toUserSessions(u)
	return &out, nil
}

func (r *GormSessionRepository) Save(ctx context.Context, userID uint, expectedVersion int64, sessions domain.SessionList) (int64, error) {
	if sessions == nil {
		sessions = domain.SessionList{}
	}
	next := domain.User{ID: userID, Sessions: sessions, Version: expectedVersion + 1}
	res := r.db.WithContext(ctx).Model(&next).
		Where("version = ?", expectedVersion).
		Select("sessions", "version", "updated_at").
		Updates(&next)
	err := res.Error
	if err == nil && res.RowsAffected == 0 {
		err = r.missOrConflict(ctx, userID)
	}
	record(ctx, "session", "save", err)
	if err != nil {
		return 0, err
	}
	return expectedVersion + 1, nil
}

func (r *GormSessionRepository) missOrConflict(ctx context.Context, userID uint) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return ErrVersionConflict
}

// ListPage walks users in id order for the cleanup sweep and statistics.
func (r *GormSessionRepository) ListPage(ctx context.Context, page PageRequest) (PageResult[UserSessions], error) {
	req := page.normalize()
	base := r.db.WithContext(ctx).Model(&domain.User{})
	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		record(ctx, "session", "list_page", err)
		return PageResult[UserSessions]{}, err
	}
	var users []domain.User
	err := base.
		Select("id", "role", "status", "session_max_concurrent_sessions", "session_session_timeout", "sessions", "version").
		Order("id ASC").
		Offset(req.offset()).
		Limit(req.PageSize).
		Find(&users).Error
	record(ctx, "session", "list_page", err)
	if err != nil {
		return PageResult[UserSessions]{}, err
	}
	items := make([]UserSessions, 0, len(users))
	for _, u := range users {
		items = append(items, toUserSessions(u))
	}
	return newPageResult(req, total, items), nil
}

func toUserSessions(u domain.User) UserSessions {
	return UserSessions{
		UserID:   u.ID,
		Role:     u.Role,
		Status:   u.Status,
		Policy:   u.SessionPolicy.Normalized(),
		Sessions: u.Sessions,
		Version:  u.Version,
	}
}
