package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sandeepkv93/social-realtime-backend/internal/http/response"
	"github.com/sandeepkv93/social-realtime-backend/internal/observability"
	"github.com/sandeepkv93/social-realtime-backend/internal/security"
	"github.com/sandeepkv93/social-realtime-backend/internal/service"
)

type Options struct {
	SendBuffer      int
	InboundBuffer   int
	MaxMessageBytes int64
	PongWait        time.Duration
	PingPeriod      time.Duration
	WriteWait       time.Duration
	LockGrace       time.Duration
	AllowedOrigins  []string
}

func DefaultOptions() Options {
	return Options{
		SendBuffer:      64,
		InboundBuffer:   32,
		MaxMessageBytes: 64 << 10,
		PongWait:        60 * time.Second,
		PingPeriod:      54 * time.Second,
		WriteWait:       10 * time.Second,
		LockGrace:       2 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SendBuffer <= 0 {
		o.SendBuffer = d.SendBuffer
	}
	if o.InboundBuffer <= 0 {
		o.InboundBuffer = d.InboundBuffer
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = d.MaxMessageBytes
	}
	if o.PongWait <= 0 {
		o.PongWait = d.PongWait
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = d.WriteWait
	}
	if o.LockGrace < 0 {
		o.LockGrace = 0
	}
	return o
}

type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (*service.Principal, error)
}

// Gateway authenticates socket handshakes and runs one actor per connection.
type Gateway struct {
	auth     Authenticator
	chat     *service.ChatService
	presence *service.PresenceService
	posts    *service.PostReactionService
	registry ConnectionRegistry
	locks    ActionLock
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
	opts     Options

	baseCtx context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	closed  bool
	wg      sync.WaitGroup
}

func NewGateway(
	auth Authenticator,
	chat *service.ChatService,
	presence *service.PresenceService,
	posts *service.PostReactionService,
	registry ConnectionRegistry,
	locks ActionLock,
	hub *Hub,
	opts Options,
	logger *slog.Logger,
) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = NewInMemoryConnectionRegistry()
	}
	if locks == nil {
		locks = NewInMemoryActionLock()
	}
	if hub == nil {
		hub = NewHub(LocalBroadcaster{}, logger)
	}
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	g := &Gateway{
		auth:     auth,
		chat:     chat,
		presence: presence,
		posts:    posts,
		registry: registry,
		locks:    locks,
		hub:      hub,
		logger:   logger.With("component", "realtime_gateway"),
		opts:     opts,
		baseCtx:  ctx,
		cancel:   cancel,
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

func (g *Gateway) Hub() *Hub { return g.hub }

// Authenticate resolves the handshake credential. The token may come from
// the "token" query parameter, a bearer header, or the access token cookie.
// The session it names is always re-validated.
func (g *Gateway) Authenticate(r *http.Request) (*service.Principal, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("token"))
	if raw == "" {
		raw = security.BearerToken(r)
	}
	if raw == "" {
		raw = security.GetCookie(r, security.AccessTokenCookie)
	}
	if raw == "" {
		return nil, service.ErrSessionInvalid
	}
	return g.auth.Authenticate(r.Context(), raw)
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	principal, err := g.Authenticate(r)
	if err != nil {
		observability.RecordGatewayEvent(r.Context(), "handshake", "rejected")
		observability.Audit(r, "ws.handshake", "outcome", "rejected")
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired session", nil)
		return
	}
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		response.Error(w, r, http.StatusServiceUnavailable, "UNAVAILABLE", "gateway is shutting down", nil)
		return
	}
	g.wg.Add(1)
	g.mu.Unlock()
	defer g.wg.Done()

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written the failure response
		g.logger.WarnContext(r.Context(), "websocket upgrade failed", "user_id", principal.UserID, "error", err)
		return
	}

	client := newClient(g.baseCtx, uuid.NewString(), principal.UserID, principal.SessionID, conn, g.opts, g.logger)
	g.connect(client)
	observability.Audit(r, "ws.connect", "user_id", principal.UserID, "conn_id", client.ID())
	client.run(g.dispatch, func() {
		if err := g.registry.Refresh(context.Background(), client.UserID()); err != nil {
			client.logger.Debug("connection registry refresh failed", "error", err)
		}
	})
	g.disconnect(client)
}

// Shutdown closes every connection and waits for their actors to exit.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	g.cancel()
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gateway) connect(c *Client) {
	ctx := c.ctx
	g.hub.join(c)
	observability.RecordGatewayConnection(ctx, 1)
	first, err := g.registry.Add(ctx, c.UserID(), c.ID())
	if err != nil {
		c.logger.WarnContext(ctx, "connection registry add failed", "error", err)
		first = g.hub.LocalConnections(c.UserID()) == 1
	}
	if !first {
		return
	}
	if err := g.presence.SetOnline(ctx, c.UserID()); err != nil {
		c.logger.WarnContext(ctx, "mark online failed", "error", err)
	}
	g.broadcastPresence(ctx, c.UserID(), true, time.Time{})
}

func (g *Gateway) disconnect(c *Client) {
	// the connection context is gone; presence updates must still land
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	g.hub.leave(c)
	observability.RecordGatewayConnection(ctx, -1)
	observability.AuditContext(ctx, "ws.disconnect", "user_id", c.UserID(), "conn_id", c.ID())
	last, err := g.registry.Remove(ctx, c.UserID(), c.ID())
	if err != nil {
		c.logger.WarnContext(ctx, "connection registry remove failed", "error", err)
		last = g.hub.LocalConnections(c.UserID()) == 0
	}
	if !last {
		return
	}
	if err := g.presence.SetOffline(ctx, c.UserID()); err != nil {
		c.logger.WarnContext(ctx, "mark offline failed", "error", err)
	}
	g.broadcastPresence(ctx, c.UserID(), false, time.Now().UTC())
}

func (g *Gateway) broadcastPresence(ctx context.Context, userID uint, online bool, seenAt time.Time) {
	audience, err := g.presence.Audience(ctx, userID)
	if err != nil {
		g.logger.WarnContext(ctx, "presence audience lookup failed", "user_id", userID, "error", err)
		return
	}
	event := EventPresenceOnline
	payload := presencePayload{UserID: userID, Online: online}
	if !online {
		event = EventPresenceOffline
		payload.LastSeenAt = seenAt.Format(time.RFC3339)
	}
	g.emit(ctx, nil, Outbound{Event: event, Data: payload, UserIDs: audience})
}

// emit routes a handler result. Self frames go only to the originating
// connection; user frames go to every connection of each listed user.
func (g *Gateway) emit(ctx context.Context, self *Client, out Outbound) {
	frame, err := out.encode()
	if err != nil {
		g.logger.ErrorContext(ctx, "encode outbound frame failed", "event", out.Event, "error", err)
		return
	}
	if out.Self && self != nil {
		self.enqueue(frame)
	}
	if len(out.UserIDs) > 0 {
		g.hub.Emit(ctx, out.UserIDs, frame)
	}
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(g.opts.AllowedOrigins) == 0 {
		return origin == "" || sameHost(origin, r.Host)
	}
	if slices.Contains(g.opts.AllowedOrigins, "*") {
		return true
	}
	return slices.ContainsFunc(g.opts.AllowedOrigins, func(allowed string) bool {
		return strings.EqualFold(strings.TrimRight(allowed, "/"), origin)
	})
}

func sameHost(origin, host string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, host)
}
