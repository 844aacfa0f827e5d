// Package faketransport provides an in-memory transport.Transport/Channel
// pair for tests, replacing the deleted coreengine/testutil mocks with a
// fixture scoped to this module's own transport contract.
package faketransport

import (
	"context"
	"errors"
	"sync"

	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/transport"
)

// Channel is an in-memory transport.Channel: Send appends to Sent, Recv
// reads from an inbound queue a test can feed via Deliver.
type Channel struct {
	mu       sync.Mutex
	inbound  chan transport.Frame
	events   chan transport.ConnEvent
	Sent     []transport.Frame
	resetCnt int
}

// NewChannel creates a Channel with the given inbound buffer size.
func NewChannel(buffer int) *Channel {
	return &Channel{
		inbound: make(chan transport.Frame, buffer),
		events:  make(chan transport.ConnEvent, buffer),
	}
}

func (c *Channel) Send(ctx context.Context, frame transport.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Sent = append(c.Sent, frame)
	return nil
}

func (c *Channel) Recv(ctx context.Context) (transport.Frame, error) {
	select {
	case f, ok := <-c.inbound:
		if !ok {
			return transport.Frame{}, errors.New("channel closed")
		}
		return f, nil
	case <-ctx.Done():
		return transport.Frame{}, ctx.Err()
	}
}

func (c *Channel) Events() <-chan transport.ConnEvent { return c.events }

func (c *Channel) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetCnt++
}

// ResetCount reports how many times Reset has been called.
func (c *Channel) ResetCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resetCnt
}

// Deliver feeds a frame into the channel as if the kernel had sent it.
func (c *Channel) Deliver(f transport.Frame) {
	c.inbound <- f
}

// Disconnect emits a Disconnected connection event.
func (c *Channel) Disconnect() {
	c.events <- transport.ConnEvent{Kind: transport.Disconnected}
}

// Connect emits a Connected connection event.
func (c *Channel) Connect() {
	c.events <- transport.ConnEvent{Kind: transport.Connected}
}

// Transport is an in-memory transport.Transport backed by one Channel per
// transport.ChannelName.
type Transport struct {
	mu       sync.Mutex
	channels map[transport.ChannelName]*Channel
}

// New creates a Transport with a fresh Channel already provisioned for all
// four standard channel names.
func New() *Transport {
	t := &Transport{channels: make(map[transport.ChannelName]*Channel)}
	for _, name := range transport.Channels {
		t.channels[name] = NewChannel(16)
	}
	return t
}

func (t *Transport) Channel(name transport.ChannelName) (transport.Channel, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.channels[name]
	if !ok {
		return nil, errors.New("unknown channel " + string(name))
	}
	return ch, nil
}

// Fake returns the concrete *Channel for name, for tests that need to call
// Deliver/Disconnect/ResetCount directly.
func (t *Transport) Fake(name transport.ChannelName) *Channel {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.channels[name]
}

var (
	_ transport.Transport = (*Transport)(nil)
	_ transport.Channel   = (*Channel)(nil)
)
