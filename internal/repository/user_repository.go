package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/social-realtime-backend/internal/domain"

	"gorm.io/gorm"
)

type UserRepository interface {
	FindByID(ctx context.Context, id uint) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) error
	UpdateStatus(ctx context.Context, id uint, status domain.UserStatus) error
	SetPresence(ctx context.Context, id uint, online bool, seenAt time.Time) error
}

type GormUserRepository struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository { return &GormUserRepository{db: db} }

func (r *GormUserRepository) FindByID(ctx context.Context, id uint) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).First(&u, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = ErrUserNotFound
	}
	record(ctx, "user", "find_by_id", err)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *GormUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = ErrUserNotFound
	}
	record(ctx, "user", "find_by_email", err)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *GormUserRepository) Create(ctx context.Context, user *domain.User) error {
	user.SessionPolicy = user.SessionPolicy.Normalized()
	if user.Status == "" {
		user.Status = domain.UserStatusActive
	}
	if user.Role == "" {
		user.Role = domain.RoleUser
	}
	if user.Sessions == nil {
		user.Sessions = domain.SessionList{}
	}
	err := r.db.WithContext(ctx).Create(user).Error
	if isUniqueViolation(err) {
		err = ErrDuplicateEmail
	}
	record(ctx, "user", "create", err)
	return err
}

func (r *GormUserRepository) UpdateStatus(ctx context.Context, id uint, status domain.UserStatus) error {
	res := r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).Update("status", status)
	err := res.Error
	if err == nil && res.RowsAffected == 0 {
		err = ErrUserNotFound
	}
	record(ctx, "user", "update_status", err)
	return err
}

// SetPresence writes only the presence columns so it never races the
// versioned session document.
func (r *GormUserRepository) SetPresence(ctx context.Context, id uint, online bool, seenAt time.Time) error {
	updates := map[string]any{"is_online": online}
	if !online {
		updates["last_seen_at"] = seenAt
	}
	res := r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).UpdateColumns(updates)
	err := res.Error
	if err == nil && res.RowsAffected == 0 {
		err = ErrUserNotFound
	}
	record(ctx, "user", "set_presence", err)
	return err
}
