package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/facescan/go/internal/relay/protocol"
)

// ErrNotConnected is returned by Send before Dial succeeds or after Close.
var ErrNotConnected = errors.New("relay client not connected")

// HandlerFunc receives every well-formed envelope pushed by the relay
type HandlerFunc func(env *protocol.Envelope)

// Client is one persistent connection to the relay. Writes are serialized;
// reads happen only in Listen.
type Client struct {
	url          string
	dialer       *websocket.Dialer
	writeTimeout time.Duration
	minBackoff   time.Duration
	maxBackoff   time.Duration
	header       http.Header

	mu   sync.Mutex
	conn *websocket.Conn
}

// Options configures a relay client
type Options struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	Header           http.Header
	MinBackoff       time.Duration
	MaxBackoff       time.Duration
}

// DefaultOptions returns default client options
func DefaultOptions() Options {
	return Options{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		MinBackoff:       time.Second,
		MaxBackoff:       30 * time.Second,
	}
}

// New creates a client for the relay WebSocket at url (e.g. ws://localhost:4000/ws)
func New(url string, opts Options) *Client {
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = time.Second
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = opts.MinBackoff
	}
	return &Client{
		url: url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: opts.HandshakeTimeout,
			Proxy:            http.ProxyFromEnvironment,
		},
		writeTimeout: opts.WriteTimeout,
		minBackoff:   opts.MinBackoff,
		maxBackoff:   opts.MaxBackoff,
		header:       opts.Header,
	}
}

// Dial connects to the relay
func (c *Client) Dial(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		return fmt.Errorf("dial relay %s: %w", c.url, err)
	}

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = conn
	c.mu.Unlock()

	log.Info().Str("url", c.url).Msg("connected to relay")
	return nil
}

// Send writes one envelope to the relay
func (c *Client) Send(env *protocol.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return fmt.Errorf("encode %s: %w", env.Kind, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	if c.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write %s: %w", env.Kind, err)
	}
	return nil
}

// Listen reads frames until the connection fails or ctx is cancelled.
// Malformed frames are logged and skipped.
func (c *Client) Listen(ctx context.Context, handle HandlerFunc) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read from relay: %w", err)
		}

		env, err := protocol.Decode(frame)
		if err != nil {
			log.Warn().Err(err).Msg("ignoring malformed relay message")
			continue
		}
		handle(env)
	}
}

// Run keeps the client connected until ctx is cancelled. After every
// successful dial it calls onConnect, then reads frames into handle until the
// connection drops. Dial failures back off exponentially up to MaxBackoff.
func (c *Client) Run(ctx context.Context, onConnect func(ctx context.Context) error, handle HandlerFunc) error {
	backoff := c.minBackoff
	for {
		if err := c.Dial(ctx); err != nil {
			log.Warn().Err(err).Dur("retry_in", backoff).Msg("relay unavailable")
		} else {
			backoff = c.minBackoff
			if err := onConnect(ctx); err != nil {
				log.Error().Err(err).Msg("relay handshake failed")
			} else if err := c.Listen(ctx, handle); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Msg("relay connection lost")
			}
		}

		select {
		case <-ctx.Done():
			c.Close()
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
}

// Close closes the connection to the relay
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := c.conn.Close()
	c.conn = nil
	return err
}
