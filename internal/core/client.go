package core

import "github.com/plasmarift/lobby-server/internal/proto"

// Client is one transport connection as seen by the Router. The transport
// layer drains Out and writes each message to the socket; a closed Out
// tells it to tear the connection down.
type Client struct {
	ID  string
	Out chan proto.Outgoing

	// stalled is set once the outbound buffer overflows. Only the Router
	// goroutine touches it.
	stalled bool
}

// NewClient constructs a client with an initialized outbound channel.
func NewClient(id string) *Client {
	return &Client{
		ID:  id,
		Out: make(chan proto.Outgoing, 16),
	}
}

// send queues a message. A consumer that lets the buffer fill up is
// stalled: rather than silently losing snapshots, Out is closed so the
// transport disconnects the client. Returns false when nothing was queued.
func (c *Client) send(msg proto.Outgoing) bool {
	if c.stalled {
		return false
	}
	select {
	case c.Out <- msg:
		return true
	default:
		c.stalled = true
		close(c.Out)
		return false
	}
}
