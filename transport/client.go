package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"treemirror/wire"
)

// ErrNotConnected is returned by Send while the client has no live socket.
// The dispatcher treats it like any other per-message delivery failure.
var ErrNotConnected = errors.New("transport: not connected")

const (
	dialTimeout    = 10 * time.Second
	writeTimeout   = 10 * time.Second
	reconnectBase  = time.Second
	reconnectLimit = 30 * time.Second
)

// Client is the producer-side websocket sender. It dials the consumer,
// reconnects with exponential backoff, and invokes the onConnect hook after
// every successful (re)connect so the pipeline can schedule a full snapshot;
// the consumer cleared its collection the moment the new session registered.
type Client struct {
	url       string
	codec     *wire.Codec
	onConnect func()

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewClient builds a client for the given ws:// URL. onConnect may be nil.
func NewClient(url string, codec *wire.Codec, onConnect func()) *Client {
	return &Client{url: url, codec: codec, onConnect: onConnect}
}

// Run maintains the connection until the context is cancelled.
func (c *Client) Run(ctx context.Context) {
	bo := newBackoff(reconnectBase, reconnectLimit)
	for {
		if ctx.Err() != nil {
			c.dropConn()
			return
		}
		conn, err := c.dial(ctx)
		if err != nil {
			delay := bo.Next()
			log.Printf("Client: dial %s failed: %v (retry in %s)", c.url, err, delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
		bo.Reset()
		log.Printf("Client: connected to %s", c.url)

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		if c.onConnect != nil {
			c.onConnect()
		}

		// The consumer never pushes application messages; the read loop only
		// notices closure and control frames.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				log.Printf("Client: connection lost: %v", err)
				break
			}
		}
		c.dropConn()
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.url, nil)
	return conn, err
}

func (c *Client) dropConn() {
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()
}

// Send encodes and delivers one message. Implements dispatch.Sender. Writes
// are serialized under the client mutex; the dispatcher is single-threaded
// per cycle but heartbeats may race a reconnect.
func (c *Client) Send(m *wire.Message) error {
	data, err := c.codec.Encode(m)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("transport: write %s: %w", m.Type, err)
	}
	return nil
}

// Connected reports whether a live socket is attached.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}
