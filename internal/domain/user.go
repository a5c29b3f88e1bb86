package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultMaxConcurrentSessions = 3
	DefaultSessionTimeout        = 30 * time.Minute
)

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusInactive UserStatus = "inactive"
	UserStatusLocked   UserStatus = "locked"
)

func ParseUserStatus(raw string) (UserStatus, error) {
	switch UserStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case UserStatusActive:
		return UserStatusActive, nil
	case UserStatusInactive:
		return UserStatusInactive, nil
	case UserStatusLocked:
		return UserStatusLocked, nil
	default:
		return "", fmt.Errorf("unknown user status %q", raw)
	}
}

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type SessionPolicy struct {
	MaxConcurrentSessions int           `gorm:"not null;default:3" json:"max_concurrent_sessions"`
	SessionTimeout        time.Duration `gorm:"not null;default:1800000000000" json:"session_timeout"`
}

func DefaultSessionPolicy() SessionPolicy {
	return SessionPolicy{
		MaxConcurrentSessions: DefaultMaxConcurrentSessions,
		SessionTimeout:        DefaultSessionTimeout,
	}
}

// Normalized fills zero values with defaults.
func (p SessionPolicy) Normalized() SessionPolicy {
	if p.MaxConcurrentSessions <= 0 {
		p.MaxConcurrentSessions = DefaultMaxConcurrentSessions
	}
	if p.SessionTimeout <= 0 {
		p.SessionTimeout = DefaultSessionTimeout
	}
	return p
}

type User struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	Email         string        `gorm:"size:320;uniqueIndex;not null" json:"email"`
	Name          string        `gorm:"size:120" json:"name"`
	PasswordHash  string        `gorm:"size:255" json:"-"`
	Role          Role          `gorm:"size:32;not null;default:user" json:"role"`
	Status        UserStatus    `gorm:"size:32;not null;default:active" json:"status"`
	SessionPolicy SessionPolicy `gorm:"embedded;embeddedPrefix:session_" json:"session_policy"`
	Sessions      SessionList   `gorm:"serializer:json" json:"-"`
	IsOnline      bool          `gorm:"not null;default:false" json:"is_online"`
	LastSeenAt    *time.Time    `json:"last_seen_at,omitempty"`
	Version       int64         `gorm:"not null;default:0" json:"-"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}
