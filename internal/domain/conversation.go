package domain

import (
	"fmt"
	"time"
)

// PairKey is the participant-pair key shared by both orderings of a pair.
func PairKey(a, b uint) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

type Conversation struct {
	ID            string        `gorm:"primaryKey;size:36" json:"id"`
	PairKey       string        `gorm:"size:64;uniqueIndex;not null" json:"-"`
	ParticipantA  uint          `gorm:"index;not null" json:"participant_a"`
	ParticipantB  uint          `gorm:"index;not null" json:"participant_b"`
	LastMessageID *string       `gorm:"size:36" json:"last_message_id,omitempty"`
	LastMessageAt *time.Time    `json:"last_message_at,omitempty"`
	UnreadCount   map[uint]int  `gorm:"serializer:json" json:"unread_count"`
	IsBlocked     bool          `gorm:"not null;default:false" json:"is_blocked"`
	BlockedBy     *uint         `json:"blocked_by,omitempty"`
	BlockedAt     *time.Time    `json:"blocked_at,omitempty"`
	Archived      map[uint]bool `gorm:"serializer:json" json:"archived,omitempty"`
	Pinned        map[uint]bool `gorm:"serializer:json" json:"pinned,omitempty"`
	Version       int64         `gorm:"not null;default:0" json:"-"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

func NewConversation(id string, a, b uint) *Conversation {
	if a > b {
		a, b = b, a
	}
	return &Conversation{
		ID:           id,
		PairKey:      PairKey(a, b),
		ParticipantA: a,
		ParticipantB: b,
		UnreadCount:  map[uint]int{a: 0, b: 0},
		Archived:     map[uint]bool{},
		Pinned:       map[uint]bool{},
	}
}

func (c *Conversation) HasParticipant(userID uint) bool {
	return c.ParticipantA == userID || c.ParticipantB == userID
}

func (c *Conversation) Other(userID uint) uint {
	if c.ParticipantA == userID {
		return c.ParticipantB
	}
	return c.ParticipantA
}

func (c *Conversation) RecordMessage(messageID string, receiverID uint, at time.Time) {
	if c.UnreadCount == nil {
		c.UnreadCount = map[uint]int{}
	}
	c.LastMessageID = &messageID
	c.LastMessageAt = &at
	c.UnreadCount[receiverID]++
	// a new message brings the conversation back for the receiver
	if c.Archived != nil {
		delete(c.Archived, receiverID)
	}
}

func (c *Conversation) ResetUnread(userID uint) bool {
	if c.UnreadCount == nil {
		c.UnreadCount = map[uint]int{}
	}
	if c.UnreadCount[userID] == 0 {
		return false
	}
	c.UnreadCount[userID] = 0
	return true
}

func (c *Conversation) DecrementUnread(userID uint) {
	if c.UnreadCount == nil || c.UnreadCount[userID] <= 0 {
		return
	}
	c.UnreadCount[userID]--
}

func (c *Conversation) Block(by uint, at time.Time) bool {
	if c.IsBlocked {
		return false
	}
	c.IsBlocked = true
	c.BlockedBy = &by
	c.BlockedAt = &at
	return true
}

// Unblock clears the block only when requested by the user who placed it.
func (c *Conversation) Unblock(by uint) bool {
	if !c.IsBlocked || c.BlockedBy == nil || *c.BlockedBy != by {
		return false
	}
	c.IsBlocked = false
	c.BlockedBy = nil
	c.BlockedAt = nil
	return true
}
