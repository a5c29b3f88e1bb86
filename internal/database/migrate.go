package database

import (
	"github.com/sandeepkv93/social-realtime-backend/internal/domain"

	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.User{},
		&domain.Friendship{},
		&domain.Post{},
		&domain.Conversation{},
		&domain.Message{},
	)
}
