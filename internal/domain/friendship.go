package domain

import "time"

type FriendshipStatus string

const (
	FriendshipPending  FriendshipStatus = "pending"
	FriendshipAccepted FriendshipStatus = "accepted"
	FriendshipBlocked  FriendshipStatus = "blocked"
)

type Friendship struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	RequesterID uint             `gorm:"uniqueIndex:idx_friendship_pair;not null" json:"requester_id"`
	AddresseeID uint             `gorm:"uniqueIndex:idx_friendship_pair;index;not null" json:"addressee_id"`
	Status      FriendshipStatus `gorm:"size:16;index;not null;default:pending" json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}
