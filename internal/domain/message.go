package domain

import (
	"fmt"
	"strings"
	"time"
)

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessagePDF   MessageType = "pdf"
	MessageVideo MessageType = "video"
	MessageFile  MessageType = "file"
)

func ParseMessageType(raw string) (MessageType, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return MessageText, nil
	}
	switch MessageType(v) {
	case MessageText, MessageImage, MessagePDF, MessageVideo, MessageFile:
		return MessageType(v), nil
	default:
		return "", fmt.Errorf("unknown message type %q", raw)
	}
}

type MessageStatus string

const (
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageRead      MessageStatus = "read"
)

type Attachment struct {
	URL      string `json:"url"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

type Reaction struct {
	UserID    uint      `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

type Message struct {
	ID             string      `gorm:"primaryKey;size:36" json:"id"`
	ConversationID string      `gorm:"size:36;index;not null" json:"conversation_id"`
	SenderID       uint        `gorm:"index;not null" json:"sender_id"`
	ReceiverID     uint        `gorm:"index;not null" json:"receiver_id"`
	Content        string      `gorm:"type:text" json:"content"`
	Type           MessageType `gorm:"size:16;not null;default:text" json:"type"`
	Attachment     *Attachment `gorm:"serializer:json" json:"attachment,omitempty"`
	IsDelivered    bool        `gorm:"not null;default:false" json:"is_delivered"`
	DeliveredAt    *time.Time  `json:"delivered_at,omitempty"`
	IsRead         bool        `gorm:"index;not null;default:false" json:"is_read"`
	ReadAt         *time.Time  `json:"read_at,omitempty"`
	Reactions      []Reaction  `gorm:"serializer:json" json:"reactions"`
	ReplyTo        *string     `gorm:"size:36" json:"reply_to,omitempty"`
	IsDeleted      bool        `gorm:"not null;default:false" json:"is_deleted"`
	Version        int64       `gorm:"not null;default:0" json:"-"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

func (m *Message) Status() MessageStatus {
	switch {
	case m.IsRead:
		return MessageRead
	case m.IsDelivered:
		return MessageDelivered
	default:
		return MessageSent
	}
}

// MarkDelivered moves Sent to Delivered once; later calls are no-ops.
func (m *Message) MarkDelivered(now time.Time) bool {
	if m.IsDelivered {
		return false
	}
	m.IsDelivered = true
	m.DeliveredAt = &now
	return true
}

// MarkRead moves the message to Read once. A message read before its delivery
// ack is delivered at the same instant so Read always implies Delivered.
func (m *Message) MarkRead(now time.Time) bool {
	if m.IsRead {
		return false
	}
	m.MarkDelivered(now)
	m.IsRead = true
	m.ReadAt = &now
	return true
}

// ToggleReaction removes the (user, emoji) reaction if present, otherwise
// appends it. It reports whether the reaction is now present.
func (m *Message) ToggleReaction(userID uint, emoji string, now time.Time) bool {
	for i, r := range m.Reactions {
		if r.UserID == userID && r.Emoji == emoji {
			m.Reactions = append(m.Reactions[:i:i], m.Reactions[i+1:]...)
			return false
		}
	}
	m.Reactions = append(m.Reactions, Reaction{UserID: userID, Emoji: emoji, CreatedAt: now})
	return true
}
