package session

import (
	"sync"

	"github.com/google/uuid"
)

// OutboundQueueSize bounds the per-session delivery queue. A session that
// falls this far behind is torn down rather than backpressuring senders.
const OutboundQueueSize = 64

// Client is one joined session. The network connection behind it is owned
// by the transport layer; the room only ever sees the outbound queue.
type Client struct {
	ID       string // connection id for logs
	UserID   int
	Name     string
	RoomName string
	DocName  string

	mu   sync.Mutex
	hook func([]byte)

	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient() *Client {
	return &Client{
		ID:   uuid.NewString(),
		out:  make(chan []byte, OutboundQueueSize),
		done: make(chan struct{}),
	}
}

// SetSendHook replaces queue delivery (used in tests).
func (c *Client) SetSendHook(fn func([]byte)) {
	c.mu.Lock()
	c.hook = fn
	c.mu.Unlock()
}

// Send enqueues one encoded line without blocking. A full queue or a
// closed session closes the client and reports false; delivery to other
// sessions is unaffected.
func (c *Client) Send(line []byte) bool {
	c.mu.Lock()
	hook := c.hook
	c.mu.Unlock()
	if hook != nil {
		hook(line)
		return true
	}

	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- line:
		return true
	default:
		c.Close()
		return false
	}
}

func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Outbound is drained by the session's writer goroutine.
func (c *Client) Outbound() <-chan []byte { return c.out }

// Done is closed exactly once when the session terminates.
func (c *Client) Done() <-chan struct{} { return c.done }
