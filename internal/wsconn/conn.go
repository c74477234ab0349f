// Package wsconn owns the persistent websocket used for both the JSON control
// channel and the binary audio stream.
package wsconn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
	sendBufferSize = 256

	defaultHandshakeTimeout = 10 * time.Second
)

var (
	// ErrClosed is returned by writes after the connection has shut down.
	ErrClosed = errors.New("connection closed")
	// ErrSendBufferFull is returned when the outbound queue cannot accept a frame.
	ErrSendBufferFull = errors.New("send buffer full")
)

// Config controls how the socket is dialed.
type Config struct {
	URL              string
	Header           http.Header
	HandshakeTimeout time.Duration
	Logger           *slog.Logger
}

// Handler receives inbound traffic. Calls are made sequentially from a single
// read goroutine, in arrival order. HandleClose is called exactly once.
type Handler interface {
	HandleText([]byte)
	HandleBinary([]byte)
	HandleClose(error)
}

type outbound struct {
	messageType int
	data        []byte
}

// Conn is one dialed websocket with a single-writer send queue.
type Conn struct {
	conn    *websocket.Conn
	handler Handler
	logger  *slog.Logger

	send chan outbound
	done chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	cause     error
}

// Dial opens the socket and starts its read and write pumps.
func Dial(ctx context.Context, cfg Config, handler Handler) (*Conn, error) {
	if handler == nil {
		return nil, errors.New("wsconn: handler is nil")
	}
	ws, target, err := dialSocket(ctx, cfg)
	if err != nil {
		return nil, err
	}
	ws.SetReadLimit(maxMessageSize)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	c := &Conn{
		conn:    ws,
		handler: handler,
		logger:  logger,
		send:    make(chan outbound, sendBufferSize),
		done:    make(chan struct{}),
	}
	go c.writePump()
	go c.readPump()

	logger.Debug("socket connected", "url", redact(target))
	return c, nil
}

// dialSocket performs the websocket upgrade and returns the raw socket with
// its normalized target.
func dialSocket(ctx context.Context, cfg Config) (*websocket.Conn, string, error) {
	target, err := NormalizeURL(cfg.URL)
	if err != nil {
		return nil, "", err
	}

	timeout := cfg.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
	}

	ws, resp, err := dialer.DialContext(ctx, target, cfg.Header)
	if err != nil {
		if resp != nil {
			return nil, "", fmt.Errorf("dial %s: %w (HTTP %d)", redact(target), err, resp.StatusCode)
		}
		return nil, "", fmt.Errorf("dial %s: %w", redact(target), err)
	}
	return ws, target, nil
}

// WriteText queues a text frame.
func (c *Conn) WriteText(data []byte) error {
	return c.enqueue(websocket.TextMessage, data)
}

// WriteBinary queues a binary frame. The caller must not reuse data.
func (c *Conn) WriteBinary(data []byte) error {
	return c.enqueue(websocket.BinaryMessage, data)
}

// Close shuts the connection down immediately. Queued frames are discarded.
// Safe to call repeatedly and concurrently with writes.
func (c *Conn) Close() error {
	c.shutdown(ErrClosed)
	return nil
}

// Done is closed once the connection has started shutting down.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) enqueue(messageType int, data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.send <- outbound{messageType: messageType, data: data}:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrSendBufferFull
	}
}

// shutdown records the first cause, sends a best-effort close frame, and
// closes the socket so the read pump unblocks.
func (c *Conn) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.cause = cause
		c.mu.Unlock()

		close(c.done)
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		_ = c.conn.Close()
	})
}

func (c *Conn) readPump() {
	var readErr error
	defer func() {
		c.shutdown(readErr)
		c.handler.HandleClose(c.closeCause())
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("socket read error", "error", err.Error())
			}
			readErr = err
			return
		}

		switch messageType {
		case websocket.TextMessage:
			c.handler.HandleText(data)
		case websocket.BinaryMessage:
			c.handler.HandleBinary(data)
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(msg.messageType, msg.data); err != nil {
				c.logger.Warn("socket write error", "error", err.Error())
				c.shutdown(fmt.Errorf("write: %w", err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown(fmt.Errorf("ping: %w", err))
				return
			}
		}
	}
}

// closeCause reports the recorded shutdown cause, or nil for locally
// requested closures and close frames with a normal or going-away code.
func (c *Conn) closeCause() error {
	c.mu.Lock()
	cause := c.cause
	c.mu.Unlock()

	if cause == nil || errors.Is(cause, ErrClosed) {
		return nil
	}
	if websocket.IsCloseError(cause, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	return cause
}

// NormalizeURL accepts ws, wss, http, and https URLs and returns the socket URL.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("server url is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("server url scheme %q is not supported (use ws, wss, http, or https)", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server url %q has no host", raw)
	}
	return u.String(), nil
}

// redact drops query parameters, which may carry tokens, from logged URLs.
func redact(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}
