package network

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/tx2tx/tx2tx/internal/logger"
)

// Client is the wire-protocol half of the client-side receiver: it dials
// the server, performs the hello handshake, and exposes received messages
// on a channel. Reconnection policy (spec.md §6 client.reconnect) is driven
// by the caller, which calls Connect again after Disconnected fires.
// Grounded on the teacher's internal/network/client.go connect/readLoop
// split, with the length-prefix JSON codec from protocol.go instead of
// protobuf.
type Client struct {
	name string

	mu   sync.Mutex
	conn net.Conn

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup

	messages     chan Message
	disconnected chan struct{}
}

// NewClient builds a Client that will identify itself as name on handshake.
func NewClient(name string) *Client {
	return &Client{
		name:         name,
		stop:         make(chan struct{}),
		messages:     make(chan Message, 64),
		disconnected: make(chan struct{}, 1),
	}
}

// Connect dials address, performs the hello handshake, and starts the read
// loop. Returns an error on dial or handshake failure; the caller decides
// whether to retry per its reconnect policy.
func (c *Client) Connect(ctx context.Context, address string) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return fmt.Errorf("network: client already connected")
	}
	c.mu.Unlock()

	dialer := &net.Dialer{Timeout: 5 * time.Second}
	nc, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("network: dial %s: %w", address, err)
	}

	if err := WriteMessage(nc, Message{MsgType: MsgHello, Name: c.name, Version: ProtocolVersion}); err != nil {
		_ = nc.Close()
		return fmt.Errorf("network: send hello: %w", err)
	}

	r := bufio.NewReader(nc)
	reply, err := ReadMessage(r)
	if err != nil || reply.MsgType != MsgHello {
		_ = nc.Close()
		return fmt.Errorf("network: handshake reply: %w", err)
	}

	c.mu.Lock()
	c.conn = nc
	c.stop = make(chan struct{})
	c.stopOnce = sync.Once{}
	c.mu.Unlock()

	c.wg.Add(1)
	go c.readLoop(r)

	return nil
}

// Disconnect closes the connection and stops the read loop.
func (c *Client) Disconnect() {
	c.stopOnce.Do(func() {
		close(c.stop)
		c.mu.Lock()
		if c.conn != nil {
			_ = c.conn.Close()
			c.conn = nil
		}
		c.mu.Unlock()
		c.wg.Wait()
	})
}

// IsConnected reports whether the client currently holds a live connection.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Messages returns the channel of messages received from the server.
func (c *Client) Messages() <-chan Message {
	return c.messages
}

// Disconnected fires once, non-blocking, when the connection drops.
func (c *Client) Disconnected() <-chan struct{} {
	return c.disconnected
}

// Send writes msg to the server (keepalive, screen_info).
func (c *Client) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("network: not connected")
	}
	return WriteMessage(c.conn, msg)
}

func (c *Client) readLoop(r *bufio.Reader) {
	defer c.wg.Done()
	defer func() {
		c.mu.Lock()
		if c.conn != nil {
			_ = c.conn.Close()
			c.conn = nil
		}
		c.mu.Unlock()
		select {
		case c.disconnected <- struct{}{}:
		default:
		}
	}()

	for {
		select {
		case <-c.stop:
			return
		default:
		}
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		msg, err := ReadMessage(r)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			logger.Debugf("network: client read error: %v", err)
			return
		}
		select {
		case c.messages <- msg:
		case <-c.stop:
			return
		}
	}
}
