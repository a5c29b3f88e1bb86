package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sandeepkv93/social-realtime-backend/internal/domain"

	"gorm.io/gorm"
)

type SeedUser struct {
	Email        string
	Name         string
	PasswordHash string
	Role         domain.Role
}

type SeedReport struct {
	CreatedUsers       int  `json:"created_users"`
	CreatedFriendships int  `json:"created_friendships"`
	CreatedPosts       int  `json:"created_posts"`
	Noop               bool `json:"noop"`
}

// SeedDemo makes sure every given user exists, that they are all accepted
// friends of each other, and that each owns a post to react to. It only
// creates what is missing, so a second run is a no-op.
func SeedDemo(db *gorm.DB, users []SeedUser) (SeedReport, error) {
	var report SeedReport
	err := db.Transaction(func(tx *gorm.DB) error {
		ids := make([]uint, 0, len(users))
		for _, su := range users {
			email := strings.ToLower(strings.TrimSpace(su.Email))
			if email == "" {
				return errors.New("seed user email is required")
			}
			var u domain.User
			err := tx.Where("email = ?", email).First(&u).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				role := su.Role
				if role == "" {
					role = domain.RoleUser
				}
				u = domain.User{
					Email:         email,
					Name:          su.Name,
					PasswordHash:  su.PasswordHash,
					Role:          role,
					Status:        domain.UserStatusActive,
					SessionPolicy: domain.DefaultSessionPolicy(),
					Sessions:      domain.SessionList{},
				}
				if err := tx.Create(&u).Error; err != nil {
					return fmt.Errorf("create user %s: %w", email, err)
				}
				report.CreatedUsers++
			} else if err != nil {
				return fmt.Errorf("find user %s: %w", email, err)
			}
			ids = append(ids, u.ID)

			var posts int64
			if err := tx.Model(&domain.Post{}).Where("author_id = ?", u.ID).Count(&posts).Error; err != nil {
				return err
			}
			if posts == 0 {
				p := domain.Post{AuthorID: u.ID, Content: "Hello from " + su.Name, Likes: []uint{}, Dislikes: []uint{}}
				if err := tx.Create(&p).Error; err != nil {
					return fmt.Errorf("create post for %s: %w", email, err)
				}
				report.CreatedPosts++
			}
		}

		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				var n int64
				if err := tx.Model(&domain.Friendship{}).
					Where("(requester_id = ? AND addressee_id = ?) OR (requester_id = ? AND addressee_id = ?)", ids[i], ids[j], ids[j], ids[i]).
					Count(&n).Error; err != nil {
					return err
				}
				if n > 0 {
					continue
				}
				f := domain.Friendship{RequesterID: ids[i], AddresseeID: ids[j], Status: domain.FriendshipAccepted}
				if err := tx.Create(&f).Error; err != nil {
					return fmt.Errorf("create friendship: %w", err)
				}
				report.CreatedFriendships++
			}
		}
		return nil
	})
	if err != nil {
		return SeedReport{}, err
	}
	report.Noop = report.CreatedUsers == 0 && report.CreatedFriendships == 0 && report.CreatedPosts == 0
	return report, nil
}
