package broadcaster

import (
	"context"
	"errors"
	"sync"

	"github.com/Odillon241/Chronodil-sub001/internal/auth"
	"github.com/Odillon241/Chronodil-sub001/internal/protocol"
)

var (
	ErrConnectionClosed     = errors.New("connection closed")
	ErrSendQueueFull        = errors.New("connection send queue is full")
	ErrAlreadyAuthenticated = errors.New("connection is already authenticated")
)

type Connection struct {
	Id string

	mu       sync.RWMutex
	identity auth.Identity
	send     chan protocol.Frame
	closed   bool
}

func NewConnection(id string, sendBufferSize int) *Connection {
	return &Connection{
		Id:   id,
		send: make(chan protocol.Frame, sendBufferSize),
	}
}

// Outbound is drained by the transport writer. It is closed once the
// connection is closed.
func (c *Connection) Outbound() <-chan protocol.Frame {
	return c.send
}

// Deliver queues a frame without blocking.
func (c *Connection) Deliver(frame protocol.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrConnectionClosed
	}

	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// DeliverEvent encodes and queues an outbound event.
func (c *Connection) DeliverEvent(event any) error {
	frame, err := protocol.Encode(event)
	if err != nil {
		return err
	}

	return c.Deliver(frame)
}

// Authenticate records the identity. A connection is authenticated at most once.
func (c *Connection) Authenticate(identity auth.Identity) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.identity.IsAuthenticated() {
		return ErrAlreadyAuthenticated
	}

	c.identity = identity

	return nil
}

func (c *Connection) Identity() auth.Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.identity
}

func (c *Connection) IsAuthenticated() bool {
	return c.Identity().IsAuthenticated()
}

// Close stops delivery and closes the outbound queue. It is idempotent.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	close(c.send)
}

func (c *Connection) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.closed
}

type contextKey string

const connectionKey contextKey = "connection"

func WithConnection(ctx context.Context, conn *Connection) context.Context {
	return context.WithValue(ctx, connectionKey, conn)
}

func ConnectionFromContext(ctx context.Context) (*Connection, bool) {
	conn, ok := ctx.Value(connectionKey).(*Connection)

	return conn, ok
}
