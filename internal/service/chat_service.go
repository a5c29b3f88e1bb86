package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sandeepkv93/social-realtime-backend/internal/domain"
	"github.com/sandeepkv93/social-realtime-backend/internal/repository"
)

const maxMessageLength = 4000

type SendMessageInput struct {
	ReceiverID uint               `json:"receiver_id"`
	Content    string             `json:"content"`
	Type       string             `json:"type"`
	Attachment *domain.Attachment `json:"attachment,omitempty"`
	ReplyTo    *string            `json:"reply_to,omitempty"`
}

// ChatService runs the message delivery and read state machine over the
// conversation and message stores.
type ChatService struct {
	users         repository.UserRepository
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	now           func() time.Time
}

func NewChatService(users repository.UserRepository, conversations repository.ConversationRepository, messages repository.MessageRepository) *ChatService {
	return &ChatService{
		users:         users,
		conversations: conversations,
		messages:      messages,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *ChatService) SendMessage(ctx context.Context, senderID uint, in SendMessageInput) (*domain.Message, *domain.Conversation, error) {
	msgType, err := domain.ParseMessageType(in.Type)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	content := strings.TrimSpace(in.Content)
	switch {
	case in.ReceiverID == 0 || in.ReceiverID == senderID:
		return nil, nil, fmt.Errorf("%w: invalid receiver", ErrValidation)
	case content == "" && in.Attachment == nil:
		return nil, nil, fmt.Errorf("%w: message is empty", ErrValidation)
	case len(content) > maxMessageLength:
		return nil, nil, fmt.Errorf("%w: message exceeds %d characters", ErrValidation, maxMessageLength)
	case msgType != domain.MessageText && in.Attachment == nil:
		return nil, nil, fmt.Errorf("%w: %s message requires an attachment", ErrValidation, msgType)
	}
	if _, err := s.users.FindByID(ctx, in.ReceiverID); err != nil {
		return nil, nil, err
	}

	conv, err := s.conversations.GetOrCreate(ctx, senderID, in.ReceiverID)
	if err != nil {
		return nil, nil, err
	}
	if conv.IsBlocked {
		return nil, nil, ErrConversationBlocked
	}
	if in.ReplyTo != nil {
		parent, err := s.messages.FindByID(ctx, *in.ReplyTo)
		if err != nil {
			return nil, nil, err
		}
		if parent.ConversationID != conv.ID {
			return nil, nil, fmt.Errorf("%w: reply target is in another conversation", ErrValidation)
		}
	}

	now := s.now()
	msg := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		SenderID:       senderID,
		ReceiverID:     in.ReceiverID,
		Content:        content,
		Type:           msgType,
		Attachment:     in.Attachment,
		ReplyTo:        in.ReplyTo,
		CreatedAt:      now,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, nil, err
	}
	conv, err = s.updateConversation(ctx, conv.ID, func(c *domain.Conversation) (bool, error) {
		if c.IsBlocked {
			return false, ErrConversationBlocked
		}
		c.RecordMessage(msg.ID, msg.ReceiverID, now)
		return true, nil
	})
	if errors.Is(err, ErrConversationBlocked) {
		// blocked after the row was written
		if delErr := s.messages.SoftDelete(ctx, msg.ID); delErr != nil {
			return nil, nil, errors.Join(err, delErr)
		}
		return nil, nil, err
	}
	if err != nil {
		return nil, nil, err
	}
	return msg, conv, nil
}

// MarkDelivered records the receiver's delivery ack. It reports false when
// the message was already delivered.
func (s *ChatService) MarkDelivered(ctx context.Context, receiverID uint, messageID string) (*domain.Message, bool, error) {
	msg, err := s.receivedMessage(ctx, receiverID, messageID)
	if err != nil {
		return nil, false, err
	}
	if msg.IsDelivered {
		return msg, false, nil
	}
	changed, err := s.messages.MarkDelivered(ctx, msg.ID, s.now())
	if err != nil || !changed {
		return msg, false, err
	}
	msg, err = s.messages.FindByID(ctx, msg.ID)
	return msg, err == nil, err
}

func (s *ChatService) MarkRead(ctx context.Context, receiverID uint, messageID string) (*domain.Message, bool, error) {
	msg, err := s.receivedMessage(ctx, receiverID, messageID)
	if err != nil {
		return nil, false, err
	}
	if msg.IsRead {
		return msg, false, nil
	}
	changed, err := s.messages.MarkRead(ctx, msg.ID, s.now())
	if err != nil || !changed {
		return msg, false, err
	}
	if _, err := s.updateConversation(ctx, msg.ConversationID, func(c *domain.Conversation) (bool, error) {
		c.DecrementUnread(receiverID)
		return true, nil
	}); err != nil {
		return nil, false, err
	}
	msg, err = s.messages.FindByID(ctx, msg.ID)
	return msg, err == nil, err
}

// MarkConversationRead marks every unread message from the partner as read
// and zeroes the reader's unread counter. It returns the ids it changed.
func (s *ChatService) MarkConversationRead(ctx context.Context, readerID uint, conversationID string) ([]string, *domain.Conversation, error) {
	conv, err := s.participantConversation(ctx, readerID, conversationID)
	if err != nil {
		return nil, nil, err
	}
	ids, err := s.messages.MarkAllRead(ctx, conv.ID, conv.Other(readerID), readerID, s.now())
	if err != nil {
		return nil, nil, err
	}
	conv, err = s.updateConversation(ctx, conv.ID, func(c *domain.Conversation) (bool, error) {
		return c.ResetUnread(readerID), nil
	})
	if err != nil {
		return nil, nil, err
	}
	return ids, conv, nil
}

// ToggleReaction adds the user's emoji to the message or removes it when
// already present. It reports whether the reaction is now present.
func (s *ChatService) ToggleReaction(ctx context.Context, userID uint, messageID, emoji string) (*domain.Message, bool, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || len(emoji) > 32 {
		return nil, false, fmt.Errorf("%w: invalid emoji", ErrValidation)
	}
	for attempt := 0; attempt < maxSessionWriteAttempts; attempt++ {
		msg, err := s.GetMessage(ctx, userID, messageID)
		if err != nil {
			return nil, false, err
		}
		present := msg.ToggleReaction(userID, emoji, s.now())
		err = s.messages.SaveReactions(ctx, msg)
		if errors.Is(err, repository.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		return msg, present, nil
	}
	return nil, false, fmt.Errorf("message %s: %w", messageID, ErrConflict)
}

// GetMessage returns a message the user sent or received.
func (s *ChatService) GetMessage(ctx context.Context, userID uint, messageID string) (*domain.Message, error) {
	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != userID && msg.ReceiverID != userID {
		return nil, repository.ErrMessageNotFound
	}
	return msg, nil
}

// CanMessage reports whether the pair may exchange messages. A pair with no
// conversation yet may.
func (s *ChatService) CanMessage(ctx context.Context, userID, otherID uint) (bool, error) {
	conv, err := s.conversations.FindByPair(ctx, userID, otherID)
	if errors.Is(err, repository.ErrConversationNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return !conv.IsBlocked, nil
}

func (s *ChatService) BlockConversation(ctx context.Context, userID, otherID uint) (*domain.Conversation, error) {
	if otherID == 0 || otherID == userID {
		return nil, fmt.Errorf("%w: invalid user", ErrValidation)
	}
	conv, err := s.conversations.GetOrCreate(ctx, userID, otherID)
	if err != nil {
		return nil, err
	}
	return s.updateConversation(ctx, conv.ID, func(c *domain.Conversation) (bool, error) {
		return c.Block(userID, s.now()), nil
	})
}

func (s *ChatService) UnblockConversation(ctx context.Context, userID, otherID uint) (*domain.Conversation, error) {
	conv, err := s.conversations.FindByPair(ctx, userID, otherID)
	if err != nil {
		return nil, err
	}
	return s.updateConversation(ctx, conv.ID, func(c *domain.Conversation) (bool, error) {
		if c.IsBlocked && c.BlockedBy != nil && *c.BlockedBy != userID {
			return false, ErrForbidden
		}
		return c.Unblock(userID), nil
	})
}

func (s *ChatService) ListMessages(ctx context.Context, userID uint, conversationID string, page repository.PageRequest) (repository.PageResult[domain.Message], error) {
	if _, err := s.participantConversation(ctx, userID, conversationID); err != nil {
		return repository.PageResult[domain.Message]{}, err
	}
	return s.messages.ListPage(ctx, conversationID, page)
}

func (s *ChatService) ConversationPartnerIDs(ctx context.Context, userID uint, excludeBlocked bool) ([]uint, error) {
	return s.conversations.PartnerIDs(ctx, userID, excludeBlocked)
}

func (s *ChatService) receivedMessage(ctx context.Context, receiverID uint, messageID string) (*domain.Message, error) {
	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	// only the receiving side may acknowledge
	if msg.ReceiverID != receiverID {
		return nil, repository.ErrMessageNotFound
	}
	return msg, nil
}

func (s *ChatService) participantConversation(ctx context.Context, userID uint, conversationID string) (*domain.Conversation, error) {
	conv, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, repository.ErrConversationNotFound
	}
	return conv, nil
}

func (s *ChatService) updateConversation(ctx context.Context, id string, fn func(*domain.Conversation) (bool, error)) (*domain.Conversation, error) {
	for attempt := 0; attempt < maxSessionWriteAttempts; attempt++ {
		conv, err := s.conversations.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		changed, err := fn(conv)
		if err != nil {
			return nil, err
		}
		if !changed {
			return conv, nil
		}
		err = s.conversations.Save(ctx, conv)
		if errors.Is(err, repository.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return conv, nil
	}
	return nil, fmt.Errorf("conversation %s: %w", id, ErrConflict)
}
