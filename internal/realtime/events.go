package realtime

import (
	"encoding/json"
	"time"

	"github.com/sandeepkv93/social-realtime-backend/internal/domain"
	"github.com/sandeepkv93/social-realtime-backend/internal/service"
)

// Inbound events.
const (
	EventMessageSend         = "message:send"
	EventMessageDelivered    = "message:delivered"
	EventMessageRead         = "message:read"
	EventConversationOpen    = "conversation:open"
	EventMessageReact        = "message:react"
	EventTypingStart         = "typing:start"
	EventTypingStop          = "typing:stop"
	EventPostLike            = "post:like"
	EventPostUnlike          = "post:unlike"
	EventPostDislike         = "post:dislike"
	EventPostUndislike       = "post:undislike"
	EventConversationBlock   = "conversation:block"
	EventConversationUnblock = "conversation:unblock"
	EventPing                = "ping"
)

// Outbound events.
const (
	EventPresenceOnline        = "presence:online"
	EventPresenceOffline       = "presence:offline"
	EventMessageNew            = "message:new"
	EventMessageSent           = "message:sent"
	EventConversationRead      = "conversation:read"
	EventMessageReaction       = "message:reaction"
	EventTyping                = "typing"
	EventPostLiked             = "post:liked"
	EventPostUnliked           = "post:unliked"
	EventPostDisliked          = "post:disliked"
	EventPostUndisliked        = "post:undisliked"
	EventPostState             = "post:state"
	EventConversationBlocked   = "conversation:blocked"
	EventConversationUnblocked = "conversation:unblocked"
	EventError                 = "error"
	EventPong                  = "pong"
)

// Envelope is the frame exchanged over the socket in both directions.
type Envelope struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// Outbound is a handler result. It goes to the originating connection when
// Self is set, and to every connection of each user in UserIDs.
type Outbound struct {
	Event     string
	Data      any
	RequestID string
	UserIDs   []uint
	Self      bool
}

func (o Outbound) encode() ([]byte, error) {
	data, err := json.Marshal(o.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: o.Event, Data: data, RequestID: o.RequestID})
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}

type messageRefPayload struct {
	MessageID string `json:"message_id"`
}

type conversationRefPayload struct {
	ConversationID string `json:"conversation_id"`
}

type reactPayload struct {
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

type userRefPayload struct {
	UserID uint `json:"user_id"`
}

type postRefPayload struct {
	PostID uint `json:"post_id"`
}

type presencePayload struct {
	UserID     uint   `json:"user_id"`
	Online     bool   `json:"online"`
	LastSeenAt string `json:"last_seen_at,omitempty"`
}

type typingPayload struct {
	UserID   uint `json:"user_id"`
	IsTyping bool `json:"is_typing"`
}

type messageStatusPayload struct {
	MessageID      string     `json:"message_id"`
	ConversationID string     `json:"conversation_id"`
	Status         string     `json:"status"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
}

type conversationReadPayload struct {
	ConversationID string   `json:"conversation_id"`
	ReaderID       uint     `json:"reader_id"`
	MessageIDs     []string `json:"message_ids"`
	UnreadCount    int      `json:"unread_count"`
}

type reactionPayload struct {
	MessageID string            `json:"message_id"`
	UserID    uint              `json:"user_id"`
	Emoji     string            `json:"emoji"`
	Present   bool              `json:"present"`
	Duplicate bool              `json:"duplicate,omitempty"`
	Reactions []domain.Reaction `json:"reactions"`
}

type postPayload struct {
	service.PostReactionResult
	Duplicate bool `json:"duplicate,omitempty"`
}

type blockPayload struct {
	ConversationID string `json:"conversation_id"`
	UserID         uint   `json:"user_id"`
	BlockedBy      *uint  `json:"blocked_by,omitempty"`
	IsBlocked      bool   `json:"is_blocked"`
}
