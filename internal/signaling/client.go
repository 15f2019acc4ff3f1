package signaling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/flux/internal/protocol"
	"github.com/1ureka/flux/internal/util"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// ErrClientClosed is returned by Send after Close.
var ErrClientClosed = errors.New("signaling client closed")

// Compile-time interface check.
var _ Sender = (*Client)(nil)

// Client is the WebSocket end of the signaling channel. Writes are serialized
// by a mutex; reads happen on a single goroutine inside Run, so handlers see
// inbound events one at a time and in receipt order.
type Client struct {
	conn *websocket.Conn

	mu     sync.Mutex // guards writes and closed
	closed bool

	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the signaling server at url.
func Dial(ctx context.Context, url string) (*Client, error) {
	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to signaling server: %w", err)
	}
	return newClient(conn), nil
}

func newClient(conn *websocket.Conn) *Client {
	c := &Client{
		conn: conn,
		done: make(chan struct{}),
	}

	conn.SetReadLimit(protocol.MaxEnvelopeSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	return c
}

// Send encodes and writes one event.
func (c *Client) Send(event string, payload any) error {
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("failed to send %s: %w", event, err)
	}
	return nil
}

// Run reads envelopes and dispatches them through router until the
// connection fails, Close is called, or ctx is cancelled. It also keeps the
// connection alive with periodic pings.
func (c *Client) Run(ctx context.Context, router *Router) error {
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.done:
		}
	}()
	go c.pingLoop()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return nil
			default:
			}
			c.Close()
			return fmt.Errorf("failed to read signaling message: %w", err)
		}

		env, err := protocol.Decode(frame)
		if err != nil {
			util.LogWarning("dropping undecodable signaling frame: %v", err)
			util.Stats.AddDropped()
			continue
		}
		router.Dispatch(env)
	}
}

// pingLoop writes a ping every pingPeriod until the client closes.
func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			var err error
			if !c.closed {
				err = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			}
			c.mu.Unlock()
			if err != nil {
				util.LogDebug("signaling ping failed: %v", err)
				return
			}
		case <-c.done:
			return
		}
	}
}

// Close sends a close frame and releases the connection. Safe to call
// multiple times.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.mu.Unlock()

		close(c.done)
		err = c.conn.Close()
	})
	return err
}
