package connection

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// acceptEncoding mirrors what the browser extension sends.
const acceptEncoding = "gzip, deflate, br, zstd"

// Client is a single WebSocket connection to the scoring service.
type Client struct {
	cfg    ClientConfig
	logger *slog.Logger

	conn *websocket.Conn

	// Write serialization
	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
}

// NewClient creates a new WebSocket client.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:    cfg,
		logger: logger,
	}
}

// Connect dials the endpoint, through the configured proxy when set.
// Handshake failures with an HTTP response include its status in the error.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.mu.Unlock()

	// The dialer generates Host, Upgrade and Sec-WebSocket-* itself.
	header := http.Header{}
	if c.cfg.Origin != "" {
		header.Set("Origin", c.cfg.Origin)
	}
	if c.cfg.UserAgent != "" {
		header.Set("User-Agent", c.cfg.UserAgent)
	}
	if c.cfg.AcceptLanguage != "" {
		header.Set("Accept-Language", c.cfg.AcceptLanguage)
	}
	header.Set("Accept-Encoding", acceptEncoding)

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
		TLSClientConfig:  &tls.Config{InsecureSkipVerify: c.cfg.InsecureSkipVerify},
	}
	if c.cfg.Proxy != "" {
		proxyURL, err := url.Parse(c.cfg.Proxy)
		if err != nil {
			return fmt.Errorf("parse proxy: %w", err)
		}
		dialer.Proxy = http.ProxyURL(proxyURL)
	}

	conn, resp, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("%w: %s", err, resp.Status)
		}
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.logger.Debug("websocket connected", "url", c.cfg.URL)

	return nil
}

// WriteJSON sends v as a text frame.
func (c *Client) WriteJSON(v any) error {
	conn, err := c.current()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.cfg.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	return conn.WriteJSON(v)
}

// ReadMessage blocks for the next data frame. Only one goroutine may read.
func (c *Client) ReadMessage() ([]byte, error) {
	conn, err := c.current()
	if err != nil {
		return nil, err
	}
	_, data, err := conn.ReadMessage()
	return data, err
}

// Interrupt unblocks a pending ReadMessage. Reads do not observe contexts.
func (c *Client) Interrupt() {
	if conn, err := c.current(); err == nil {
		conn.SetReadDeadline(time.Now())
	}
}

// Close sends a close frame and closes the socket. Safe to call twice.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()

	return conn.Close()
}

func (c *Client) current() (*websocket.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrAlreadyClosed
	}
	if c.conn == nil {
		return nil, ErrNotConnected
	}
	return c.conn, nil
}
