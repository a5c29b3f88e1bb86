package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/sandeepkv93/social-realtime-backend/internal/domain"
	"github.com/sandeepkv93/social-realtime-backend/internal/observability"
	"github.com/sandeepkv93/social-realtime-backend/internal/service"
)

var errUnknownEvent = errors.New("unknown event")

type handlerFunc func(ctx context.Context, c *Client, env Envelope) ([]Outbound, error)

var postEvents = map[string]struct {
	action domain.PostAction
	event  string
}{
	EventPostLike:      {domain.PostLike, EventPostLiked},
	EventPostUnlike:    {domain.PostUnlike, EventPostUnliked},
	EventPostDislike:   {domain.PostDislike, EventPostDisliked},
	EventPostUndislike: {domain.PostUndislike, EventPostUndisliked},
}

func (g *Gateway) handlerFor(event string) handlerFunc {
	switch event {
	case EventMessageSend:
		return g.handleSend
	case EventMessageDelivered:
		return g.handleDelivered
	case EventMessageRead:
		return g.handleRead
	case EventConversationOpen:
		return g.handleConversationOpen
	case EventMessageReact:
		return g.handleReact
	case EventTypingStart, EventTypingStop:
		return g.handleTyping
	case EventPostLike, EventPostUnlike, EventPostDislike, EventPostUndislike:
		return g.handlePost
	case EventConversationBlock, EventConversationUnblock:
		return g.handleBlock
	case EventPing:
		return handlePing
	default:
		return nil
	}
}

// dispatch runs on the connection's dispatcher goroutine. Failures are only
// ever reported to the originating connection.
func (g *Gateway) dispatch(ctx context.Context, c *Client, env Envelope) {
	h := g.handlerFor(env.Event)
	if h == nil {
		observability.RecordGatewayEvent(ctx, "unknown", "rejected")
		c.replyError(env.Event, env.RequestID, "VALIDATION_ERROR", errUnknownEvent.Error())
		return
	}
	outs, err := h(ctx, c, env)
	if err != nil {
		code, msg := errorCode(err)
		if code == "INTERNAL" {
			c.logger.ErrorContext(ctx, "realtime handler failed", "event", env.Event, "error", err)
		}
		observability.RecordGatewayEvent(ctx, env.Event, "error")
		c.replyError(env.Event, env.RequestID, code, msg)
		return
	}
	observability.RecordGatewayEvent(ctx, env.Event, "success")
	for _, out := range outs {
		if out.Self {
			out.RequestID = env.RequestID
		}
		g.emit(ctx, c, out)
	}
}

func errorCode(err error) (string, string) {
	switch service.Classify(err) {
	case service.ClassValidation:
		return "VALIDATION_ERROR", err.Error()
	case service.ClassNotFound:
		return "NOT_FOUND", err.Error()
	case service.ClassConflict:
		return "CONFLICT", "concurrent update, retry"
	case service.ClassForbidden:
		return "FORBIDDEN", "forbidden"
	case service.ClassAuth:
		return "UNAUTHORIZED", "invalid or expired session"
	case service.ClassRateLimit:
		return "RATE_LIMITED", "too many requests"
	default:
		return "INTERNAL", "internal server error"
	}
}

func decode[T any](env Envelope) (T, error) {
	var v T
	if len(env.Data) == 0 {
		return v, fmt.Errorf("%w: missing payload", service.ErrValidation)
	}
	if err := json.Unmarshal(env.Data, &v); err != nil {
		return v, fmt.Errorf("%w: malformed payload", service.ErrValidation)
	}
	return v, nil
}

func (g *Gateway) handleSend(ctx context.Context, c *Client, env Envelope) ([]Outbound, error) {
	in, err := decode[service.SendMessageInput](env)
	if err != nil {
		return nil, err
	}
	msg, _, err := g.chat.SendMessage(ctx, c.UserID(), in)
	if err != nil {
		return nil, err
	}
	return []Outbound{
		{Event: EventMessageSent, Data: msg, Self: true},
		{Event: EventMessageNew, Data: msg, UserIDs: []uint{msg.ReceiverID}},
	}, nil
}

func (g *Gateway) handleDelivered(ctx context.Context, c *Client, env Envelope) ([]Outbound, error) {
	ref, err := decode[messageRefPayload](env)
	if err != nil {
		return nil, err
	}
	msg, changed, err := g.chat.MarkDelivered(ctx, c.UserID(), ref.MessageID)
	if err != nil || !changed {
		return nil, err
	}
	return []Outbound{{Event: EventMessageDelivered, Data: statusOf(msg), UserIDs: []uint{msg.SenderID}}}, nil
}

func (g *Gateway) handleRead(ctx context.Context, c *Client, env Envelope) ([]Outbound, error) {
	ref, err := decode[messageRefPayload](env)
	if err != nil {
		return nil, err
	}
	msg, changed, err := g.chat.MarkRead(ctx, c.UserID(), ref.MessageID)
	if err != nil || !changed {
		return nil, err
	}
	return []Outbound{{Event: EventMessageRead, Data: statusOf(msg), UserIDs: []uint{msg.SenderID}}}, nil
}

func statusOf(m *domain.Message) messageStatusPayload {
	return messageStatusPayload{
		MessageID:      m.ID,
		ConversationID: m.ConversationID,
		Status:         string(m.Status()),
		DeliveredAt:    m.DeliveredAt,
		ReadAt:         m.ReadAt,
	}
}

func (g *Gateway) handleConversationOpen(ctx context.Context, c *Client, env Envelope) ([]Outbound, error) {
	ref, err := decode[conversationRefPayload](env)
	if err != nil {
		return nil, err
	}
	ids, conv, err := g.chat.MarkConversationRead(ctx, c.UserID(), ref.ConversationID)
	if err != nil {
		return nil, err
	}
	payload := conversationReadPayload{
		ConversationID: conv.ID,
		ReaderID:       c.UserID(),
		MessageIDs:     ids,
		UnreadCount:    conv.UnreadCount[c.UserID()],
	}
	outs := []Outbound{{Event: EventConversationRead, Data: payload, Self: true}}
	if len(ids) > 0 {
		outs = append(outs, Outbound{Event: EventConversationRead, Data: payload, UserIDs: []uint{conv.Other(c.UserID())}})
	}
	return outs, nil
}

func (g *Gateway) handleReact(ctx context.Context, c *Client, env Envelope) ([]Outbound, error) {
	in, err := decode[reactPayload](env)
	if err != nil {
		return nil, err
	}
	lease, acquired, err := g.locks.Acquire(ctx, LockKey("reaction", in.MessageID+":"+in.Emoji, c.UserID()))
	if err != nil {
		return nil, err
	}
	if !acquired {
		observability.RecordActionLockDuplicate(ctx, EventMessageReact)
		msg, err := g.chat.GetMessage(ctx, c.UserID(), in.MessageID)
		if err != nil {
			return nil, err
		}
		payload := reactionPayload{
			MessageID: msg.ID,
			UserID:    c.UserID(),
			Emoji:     in.Emoji,
			Present:   hasReaction(msg, c.UserID(), in.Emoji),
			Duplicate: true,
			Reactions: msg.Reactions,
		}
		return []Outbound{{Event: EventMessageReaction, Data: payload, Self: true}}, nil
	}
	msg, present, err := g.chat.ToggleReaction(ctx, c.UserID(), in.MessageID, in.Emoji)
	if err != nil {
		g.release(lease)
		return nil, err
	}
	g.releaseAfterGrace(lease)
	payload := reactionPayload{
		MessageID: msg.ID,
		UserID:    c.UserID(),
		Emoji:     in.Emoji,
		Present:   present,
		Reactions: msg.Reactions,
	}
	return []Outbound{{Event: EventMessageReaction, Data: payload, UserIDs: []uint{msg.SenderID, msg.ReceiverID}}}, nil
}

func hasReaction(m *domain.Message, userID uint, emoji string) bool {
	for _, r := range m.Reactions {
		if r.UserID == userID && r.Emoji == emoji {
			return true
		}
	}
	return false
}

func (g *Gateway) handleTyping(ctx context.Context, c *Client, env Envelope) ([]Outbound, error) {
	ref, err := decode[userRefPayload](env)
	if err != nil {
		return nil, err
	}
	if ref.UserID == 0 || ref.UserID == c.UserID() {
		return nil, fmt.Errorf("%w: invalid user", service.ErrValidation)
	}
	ok, err := g.chat.CanMessage(ctx, c.UserID(), ref.UserID)
	if err != nil || !ok {
		return nil, err
	}
	payload := typingPayload{UserID: c.UserID(), IsTyping: env.Event == EventTypingStart}
	return []Outbound{{Event: EventTyping, Data: payload, UserIDs: []uint{ref.UserID}}}, nil
}

// handlePost applies a desired-state reaction. A request arriving while the
// same user's previous action on the post is still held gets the current
// state back on its own connection and changes nothing.
func (g *Gateway) handlePost(ctx context.Context, c *Client, env Envelope) ([]Outbound, error) {
	ref, err := decode[postRefPayload](env)
	if err != nil {
		return nil, err
	}
	if ref.PostID == 0 {
		return nil, fmt.Errorf("%w: invalid post", service.ErrValidation)
	}
	mapping := postEvents[env.Event]
	lease, acquired, err := g.locks.Acquire(ctx, LockKey("post", strconv.FormatUint(uint64(ref.PostID), 10), c.UserID()))
	if err != nil {
		return nil, err
	}
	if !acquired {
		observability.RecordActionLockDuplicate(ctx, env.Event)
		state, err := g.posts.State(ctx, ref.PostID, c.UserID())
		if err != nil {
			return nil, err
		}
		return []Outbound{{Event: EventPostState, Data: postPayload{PostReactionResult: state, Duplicate: true}, Self: true}}, nil
	}
	res, err := g.posts.Apply(ctx, ref.PostID, c.UserID(), mapping.action)
	if err != nil {
		g.release(lease)
		return nil, err
	}
	g.releaseAfterGrace(lease)
	if !res.Changed {
		return []Outbound{{Event: EventPostState, Data: postPayload{PostReactionResult: res}, Self: true}}, nil
	}
	audience, err := g.presence.Audience(ctx, c.UserID())
	if err != nil {
		c.logger.WarnContext(ctx, "post audience lookup failed", "error", err)
	}
	targets := append([]uint{c.UserID()}, audience...)
	if res.AuthorID != 0 && res.AuthorID != c.UserID() {
		targets = append(targets, res.AuthorID)
	}
	return []Outbound{{Event: mapping.event, Data: postPayload{PostReactionResult: res}, UserIDs: dedupe(targets)}}, nil
}

func (g *Gateway) handleBlock(ctx context.Context, c *Client, env Envelope) ([]Outbound, error) {
	ref, err := decode[userRefPayload](env)
	if err != nil {
		return nil, err
	}
	var (
		conv  *domain.Conversation
		event string
	)
	if env.Event == EventConversationBlock {
		conv, err = g.chat.BlockConversation(ctx, c.UserID(), ref.UserID)
		event = EventConversationBlocked
	} else {
		conv, err = g.chat.UnblockConversation(ctx, c.UserID(), ref.UserID)
		event = EventConversationUnblocked
	}
	if err != nil {
		return nil, err
	}
	if err := g.presence.InvalidateAudience(ctx, c.UserID(), ref.UserID); err != nil {
		c.logger.WarnContext(ctx, "audience invalidation failed", "error", err)
	}
	payload := blockPayload{
		ConversationID: conv.ID,
		UserID:         c.UserID(),
		BlockedBy:      conv.BlockedBy,
		IsBlocked:      conv.IsBlocked,
	}
	return []Outbound{{Event: event, Data: payload, UserIDs: []uint{c.UserID(), ref.UserID}}}, nil
}

func handlePing(context.Context, *Client, Envelope) ([]Outbound, error) {
	return []Outbound{{Event: EventPong, Data: struct{}{}, Self: true}}, nil
}

// release and releaseAfterGrace run detached from the connection so a lock
// is freed even when the socket is already gone.
func (g *Gateway) release(lease Lease) {
	if err := g.locks.Release(context.Background(), lease); err != nil {
		g.logger.Warn("action lock release failed", "key", lease.Key, "error", err)
	}
}

func (g *Gateway) releaseAfterGrace(lease Lease) {
	if err := g.locks.ReleaseAfter(context.Background(), lease, g.opts.LockGrace); err != nil {
		g.logger.Warn("action lock grace release failed", "key", lease.Key, "error", err)
	}
}

func dedupe(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
