package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Broadcaster carries frames between gateway instances. Local delivery is
// always done by the Hub itself; a broadcaster only reaches other instances.
type Broadcaster interface {
	Publish(ctx context.Context, msg RoutedFrame) error
	// Subscribe blocks, handing every frame to fn until ctx is done.
	Subscribe(ctx context.Context, fn func(RoutedFrame)) error
}

// RoutedFrame is an encoded envelope addressed to a set of users.
type RoutedFrame struct {
	Origin  string          `json:"origin"`
	UserIDs []uint          `json:"user_ids"`
	Frame   json.RawMessage `json:"frame"`
}

// LocalBroadcaster is used when the gateway runs as a single instance.
type LocalBroadcaster struct{}

func (LocalBroadcaster) Publish(context.Context, RoutedFrame) error { return nil }

func (LocalBroadcaster) Subscribe(ctx context.Context, _ func(RoutedFrame)) error {
	<-ctx.Done()
	return nil
}

type RedisBroadcaster struct {
	client  redis.UniversalClient
	channel string
	logger  *slog.Logger
}

func NewRedisBroadcaster(client redis.UniversalClient, channel string, logger *slog.Logger) *RedisBroadcaster {
	if channel == "" {
		channel = "ws_frames"
	}
	return &RedisBroadcaster{client: client, channel: channel, logger: logger}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, msg RoutedFrame) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, raw).Err(); err != nil {
		return fmt.Errorf("publish frame: %w", err)
	}
	return nil
}

func (b *RedisBroadcaster) Subscribe(ctx context.Context, fn func(RoutedFrame)) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var frame RoutedFrame
			if err := json.Unmarshal([]byte(m.Payload), &frame); err != nil {
				b.logger.Warn("dropping malformed frame", "channel", b.channel, "error", err)
				continue
			}
			fn(frame)
		}
	}
}

// Hub keeps a room per user holding that user's local connections.
type Hub struct {
	id          string
	broadcaster Broadcaster
	logger      *slog.Logger

	mu    sync.RWMutex
	rooms map[uint]map[string]*Client
}

func NewHub(broadcaster Broadcaster, logger *slog.Logger) *Hub {
	if broadcaster == nil {
		broadcaster = LocalBroadcaster{}
	}
	return &Hub{
		id:          uuid.NewString(),
		broadcaster: broadcaster,
		logger:      logger,
		rooms:       make(map[uint]map[string]*Client),
	}
}

func (h *Hub) join(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[c.userID]
	if !ok {
		room = make(map[string]*Client)
		h.rooms[c.userID] = room
	}
	room[c.id] = c
}

func (h *Hub) leave(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[c.userID]
	if !ok {
		return
	}
	delete(room, c.id)
	if len(room) == 0 {
		delete(h.rooms, c.userID)
	}
}

// LocalConnections reports how many connections of the user this instance holds.
func (h *Hub) LocalConnections(userID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[userID])
}

// Emit delivers the frame to local connections of the users and publishes
// it for the other instances.
func (h *Hub) Emit(ctx context.Context, userIDs []uint, frame []byte) {
	if len(userIDs) == 0 {
		return
	}
	h.deliverLocal(userIDs, frame)
	if err := h.broadcaster.Publish(ctx, RoutedFrame{Origin: h.id, UserIDs: userIDs, Frame: frame}); err != nil {
		h.logger.WarnContext(ctx, "frame publish failed", "users", len(userIDs), "error", err)
	}
}

// Run relays frames published by other instances until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	return h.broadcaster.Subscribe(ctx, func(f RoutedFrame) {
		if f.Origin == h.id {
			return
		}
		h.deliverLocal(f.UserIDs, f.Frame)
	})
}

func (h *Hub) deliverLocal(userIDs []uint, frame []byte) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(userIDs))
	for _, id := range userIDs {
		for _, c := range h.rooms[id] {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range targets {
		c.enqueue(frame)
	}
}
