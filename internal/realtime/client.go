package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is one authenticated socket. Three goroutines own it: the read pump
// feeds a bounded inbound queue, the dispatcher runs handlers one frame at a
// time, and the write pump drains a bounded outbound queue. Closing cancels
// all three.
type Client struct {
	id        string
	userID    uint
	sessionID string
	conn      *websocket.Conn
	logger    *slog.Logger
	opts      Options

	inbound chan Envelope
	send    chan []byte

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func newClient(parent context.Context, id string, userID uint, sessionID string, conn *websocket.Conn, opts Options, logger *slog.Logger) *Client {
	ctx, cancel := context.WithCancel(parent)
	return &Client{
		id:        id,
		userID:    userID,
		sessionID: sessionID,
		conn:      conn,
		logger:    logger.With("conn_id", id, "user_id", userID),
		opts:      opts,
		inbound:   make(chan Envelope, opts.InboundBuffer),
		send:      make(chan []byte, opts.SendBuffer),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (c *Client) ID() string            { return c.id }
func (c *Client) UserID() uint          { return c.userID }
func (c *Client) Done() <-chan struct{} { return c.ctx.Done() }

// enqueue never blocks. A client whose outbound queue is full is too slow to
// keep up and is disconnected.
func (c *Client) enqueue(frame []byte) {
	select {
	case <-c.ctx.Done():
		return
	default:
	}
	select {
	case c.send <- frame:
	default:
		c.logger.Warn("outbound queue full, closing slow connection")
		c.close()
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		_ = c.conn.Close()
	})
}

func (c *Client) run(dispatch func(ctx context.Context, c *Client, env Envelope), onHeartbeat func()) {
	c.wg.Add(2)
	go c.writePump()
	go c.dispatchLoop(dispatch)
	c.readPump(onHeartbeat)
	c.close()
	c.wg.Wait()
}

func (c *Client) readPump(onHeartbeat func()) {
	c.conn.SetReadLimit(c.opts.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		if onHeartbeat != nil {
			onHeartbeat()
		}
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, context.Canceled) {
				c.logger.Debug("websocket read ended", "error", err)
			}
			return
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
			c.replyError(EventError, "", "VALIDATION_ERROR", "malformed frame")
			continue
		}
		select {
		case c.inbound <- env:
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) dispatchLoop(dispatch func(ctx context.Context, c *Client, env Envelope)) {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case env := <-c.inbound:
			dispatch(c.ctx, c, env)
		}
	}
}

func (c *Client) writePump() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.opts.WriteWait))
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteWait)); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *Client) replyError(event, requestID, code, message string) {
	frame, err := Outbound{
		Event:     EventError,
		Data:      ErrorPayload{Code: code, Message: message, Event: event},
		RequestID: requestID,
	}.encode()
	if err != nil {
		return
	}
	c.enqueue(frame)
}
