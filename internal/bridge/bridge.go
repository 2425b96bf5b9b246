// Package bridge talks to the companion app that exposes the Android and
// iOS speech engines over a websocket. Calls are JSON requests matched to
// responses by id; messages without an id are callbacks from the engine.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

// ErrClosed is returned for calls on a closed or dropped connection.
var ErrClosed = errors.New("bridge connection closed")

// Message is the wire format in both directions.
type Message struct {
	ID     uint64          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Handler receives callback parameters.
type Handler func(params json.RawMessage)

// Client is a bridge connection. It connects lazily on the first call and
// reconnects after the connection drops.
type Client struct {
	url    string
	logger *log.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	pending  map[uint64]chan Message
	next     uint64
	handlers map[string]Handler
	closed   bool

	writeMu sync.Mutex
}

// New creates a client for url without connecting.
func New(url string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		url:      url,
		logger:   logger,
		pending:  make(map[uint64]chan Message),
		handlers: make(map[string]Handler),
	}
}

// URL returns the bridge address.
func (c *Client) URL() string {
	return c.url
}

// Handle registers fn for callbacks named method, replacing any previous one.
func (c *Client) Handle(method string, fn Handler) {
	c.mu.Lock()
	c.handlers[method] = fn
	c.mu.Unlock()
}

// Connect dials the bridge if not connected.
func (c *Client) Connect(ctx context.Context) error {
	_, err := c.connection(ctx)
	return err
}

func (c *Client) connection(ctx context.Context) (*websocket.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.conn != nil {
		return c.conn, nil
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second
	c.logger.Debug("Connecting to bridge", "url", c.url)
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to bridge: %w", err)
	}
	c.conn = conn
	go c.readLoop(conn)
	return conn, nil
}

// Call sends method with params and decodes the response into result,
// which may be nil.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	conn, err := c.connection(ctx)
	if err != nil {
		return err
	}

	raw, err := marshalParams(params)
	if err != nil {
		return err
	}

	reply := make(chan Message, 1)
	c.mu.Lock()
	c.next++
	id := c.next
	c.pending[id] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(conn, Message{ID: id, Method: method, Params: raw}); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case msg, ok := <-reply:
		if !ok {
			return ErrClosed
		}
		if msg.Error != "" {
			return fmt.Errorf("%s: %s", method, msg.Error)
		}
		if result != nil && len(msg.Result) > 0 {
			if err := json.Unmarshal(msg.Result, result); err != nil {
				return fmt.Errorf("error decoding %s result: %w", method, err)
			}
		}
		return nil
	}
}

// Notify sends method without waiting for a response.
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	conn, err := c.connection(ctx)
	if err != nil {
		return err
	}
	raw, err := marshalParams(params)
	if err != nil {
		return err
	}
	return c.write(conn, Message{Method: method, Params: raw})
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("error encoding params: %w", err)
	}
	return raw, nil
}

func (c *Client) write(conn *websocket.Conn, msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(msg); err != nil {
		c.drop(conn)
		return fmt.Errorf("failed to write %s: %w", msg.Method, err)
	}
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.drop(conn)
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			c.logger.Debug("Bridge read ended", "error", err)
			return
		}

		c.mu.Lock()
		if msg.ID != 0 {
			if reply, ok := c.pending[msg.ID]; ok {
				select {
				case reply <- msg:
				default:
				}
			}
			c.mu.Unlock()
			continue
		}
		handler := c.handlers[msg.Method]
		c.mu.Unlock()

		if handler == nil {
			c.logger.Debug("Unhandled bridge callback", "method", msg.Method)
			continue
		}
		handler(msg.Params)
	}
}

// drop forgets conn and fails the calls waiting on it.
func (c *Client) drop(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()

	_ = conn.Close()
}

// Close closes the connection. Later calls fail with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	c.drop(conn)
	return nil
}
