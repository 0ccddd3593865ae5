// ABOUTME: Self-healing websocket client for the session server
// ABOUTME: Reconnects with a two-state retry delay and 5s keep-alive pings
package ws

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// DefaultRetryDelay is the fixed delay before a reconnect attempt
	// that follows a failed connect or a second consecutive drop. The
	// first reconnect after a successful-then-dropped connection is
	// immediate.
	DefaultRetryDelay = 5 * time.Second

	// DefaultPingInterval is the keep-alive probe cadence on an idle
	// connection.
	DefaultPingInterval = 5 * time.Second
)

// ErrNotConnected is returned by Send when no connection is active.
// Callers that need delivery must buffer and retry after reconnect.
var ErrNotConnected = errors.New("websocket not connected")

// Frame kinds surfaced to the consumer.
const (
	FrameText = iota
	FrameBinary
)

// Frame is one inbound application message
type Frame struct {
	Kind int
	Data []byte
}

// Config holds client configuration
type Config struct {
	// URL is the fully derived ws(s) endpoint, without identity query
	// parameters.
	URL            string
	ClientID       string
	SignatureToken string

	// OnConnect runs after each successful handshake, before any
	// inbound frame is surfaced. Used to request the connection
	// identity and flush buffered commands.
	OnConnect func()

	RetryDelay   time.Duration
	PingInterval time.Duration

	Logger *zap.Logger
}

// Client maintains exactly one logical connection to the server,
// reconnecting forever until the context it was started with is
// cancelled.
type Client struct {
	cfg Config
	log *zap.Logger

	mu        sync.RWMutex
	queue     *outQueue
	connected bool

	// pingerStopped, when set, observes keep-alive teardown. Test
	// hook only.
	pingerStopped func()
}

// New creates a client; Start begins the connection loop
func New(cfg Config) *Client {
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{cfg: cfg, log: cfg.Logger}
}

// EndpointURL derives the websocket endpoint from an HTTP(S) origin:
// the scheme is swapped (http->ws, https->wss) and /ws appended.
func EndpointURL(origin string) (string, error) {
	switch {
	case strings.HasPrefix(origin, "https://"):
		return "wss://" + strings.TrimPrefix(origin, "https://") + "/ws", nil
	case strings.HasPrefix(origin, "http://"):
		return "ws://" + strings.TrimPrefix(origin, "http://") + "/ws", nil
	default:
		return "", fmt.Errorf("unsupported origin %q", origin)
	}
}

// dialURL appends the identity query parameters when configured
func (c *Client) dialURL() string {
	q := url.Values{}
	if c.cfg.ClientID != "" {
		q.Set("clientId", c.cfg.ClientID)
	}
	if c.cfg.SignatureToken != "" {
		q.Set("signature", c.cfg.SignatureToken)
	}
	if len(q) == 0 {
		return c.cfg.URL
	}
	return c.cfg.URL + "?" + q.Encode()
}

// Start launches the connection loop and returns the inbound frame
// stream. The channel closes when ctx is cancelled and the loop has
// fully stopped.
func (c *Client) Start(ctx context.Context) <-chan Frame {
	frames := make(chan Frame, 1024)
	go c.run(ctx, frames)
	return frames
}

// Connected reports whether a connection is currently established
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Send enqueues an outbound text message on the active connection.
// Enqueue order is delivery order.
func (c *Client) Send(data []byte) error {
	c.mu.RLock()
	q := c.queue
	c.mu.RUnlock()
	if q == nil || !q.push(outFrame{kind: frameKindText, data: data}) {
		return ErrNotConnected
	}
	return nil
}

// run is the reconnect loop. Connect failures are logged and retried
// indefinitely; only ctx cancellation is terminal.
func (c *Client) run(ctx context.Context, frames chan<- Frame) {
	defer close(frames)

	justRetried := false
	for {
		if ctx.Err() != nil {
			c.log.Debug("cancelling connect")
			return
		}

		c.log.Debug("connecting to websocket", zap.String("url", c.cfg.URL))
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.dialURL(), nil)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Debug("cancelling connect")
				return
			}
			c.log.Error("failed to connect to websocket server", zap.Error(err))
		} else {
			if justRetried {
				c.log.Info("websocket successfully reconnected")
			}
			justRetried = false

			c.serve(ctx, conn, frames)
			c.log.Info("websocket connection closed")
		}

		if justRetried {
			select {
			case <-time.After(c.cfg.RetryDelay):
			case <-ctx.Done():
				c.log.Debug("cancelling retry")
				return
			}
		} else {
			justRetried = true
		}
	}
}

// serve runs one connect-to-disconnect cycle: a reader, a writer
// draining the outbound queue, and a keep-alive prober. Any of them
// failing trips the connection-scoped close signal, which unwinds the
// others without tearing down the client.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn, frames chan<- Frame) {
	closeCh := make(chan struct{})
	var closeOnce sync.Once
	closeConn := func() { closeOnce.Do(func() { close(closeCh) }) }

	q := newOutQueue()
	c.mu.Lock()
	c.queue = q
	c.connected = true
	c.mu.Unlock()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			f, ok := q.pop()
			if !ok {
				return
			}
			var err error
			switch f.kind {
			case frameKindText:
				err = conn.WriteMessage(websocket.TextMessage, f.data)
			case frameKindPing:
				c.log.Debug("sending ping to server")
				err = conn.WriteMessage(websocket.PingMessage, nil)
			}
			if err != nil {
				c.log.Error("write loop error", zap.Error(err))
				closeConn()
				return
			}
		}
	}()

	// The reader starts only after OnConnect returns, so identity
	// requests and flushed commands are queued before any inbound
	// frame is surfaced.
	if c.cfg.OnConnect != nil {
		c.cfg.OnConnect()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					c.log.Error("read loop error", zap.Error(err))
				}
				closeConn()
				return
			}
			var frame Frame
			switch kind {
			case websocket.TextMessage:
				frame = Frame{Kind: FrameText, Data: data}
			case websocket.BinaryMessage:
				frame = Frame{Kind: FrameBinary, Data: data}
			default:
				continue
			}
			select {
			case frames <- frame:
			case <-closeCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	pingerDone := make(chan struct{})
	go func() {
		defer func() {
			if c.pingerStopped != nil {
				c.pingerStopped()
			}
			close(pingerDone)
		}()
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-closeCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !q.push(outFrame{kind: frameKindPing}) {
					closeConn()
					return
				}
			}
		}
	}()

	select {
	case <-closeCh:
	case <-ctx.Done():
	}
	closeConn()

	c.mu.Lock()
	c.queue = nil
	c.connected = false
	c.mu.Unlock()

	q.close()
	_ = conn.Close()

	c.log.Debug("waiting for pinger to finish")
	<-pingerDone
	wg.Wait()
}
