package broker

import "github.com/brokerhq/jobcentre/pkg/codec"

// Client tracks one connected peer's ownership and blocking state. A
// client's Waiting set is non-empty exactly when it is registered on every
// queue named in an outstanding blocking get (invariant 2).
type Client struct {
	ID      int64
	Working map[int64]bool
	Waiting map[string]bool

	// pendingReply is the reply channel of the get that parked this client,
	// or nil while idle. Disconnect closes it (without a value) so the
	// goroutine waiting on that get's response can return.
	pendingReply chan codec.Response
}

func newClient(id int64) *Client {
	return &Client{
		ID:      id,
		Working: make(map[int64]bool),
		Waiting: make(map[string]bool),
	}
}

func (c *Client) blocked() bool { return len(c.Waiting) > 0 }
