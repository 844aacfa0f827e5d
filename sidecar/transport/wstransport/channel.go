package wstransport

import (
	"context"

	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/transport"
)

// channel is one of the four demultiplexed views onto the shared websocket
// connection. Recv reads from a buffered queue fed by Transport.readPump;
// Send writes directly to the shared connection, tagging the frame with
// this channel's name.
type channel struct {
	name   transport.ChannelName
	parent *Transport
	inbox  chan transport.Frame
	events chan transport.ConnEvent
}

func newChannel(name transport.ChannelName, parent *Transport) *channel {
	return &channel{
		name:   name,
		parent: parent,
		inbox:  make(chan transport.Frame, 64),
		events: make(chan transport.ConnEvent, 4),
	}
}

func (c *channel) Send(ctx context.Context, f transport.Frame) error {
	return c.parent.send(ctx, c.name, f)
}

func (c *channel) Recv(ctx context.Context) (transport.Frame, error) {
	select {
	case f := <-c.inbox:
		return f, nil
	case <-ctx.Done():
		return transport.Frame{}, ctx.Err()
	}
}

func (c *channel) Events() <-chan transport.ConnEvent {
	return c.events
}

// Reset drops the shared websocket connection, which cycles all four
// channels since they are demultiplexed from one socket.
func (c *channel) Reset() {
	c.parent.reset()
}

func (c *channel) deliver(f transport.Frame) {
	select {
	case c.inbox <- f:
	default:
	}
}

func (c *channel) notifyConnected() {
	c.emit(transport.ConnEvent{Kind: transport.Connected})
}

func (c *channel) notifyDisconnected() {
	c.emit(transport.ConnEvent{Kind: transport.Disconnected})
}

func (c *channel) emit(ev transport.ConnEvent) {
	select {
	case c.events <- ev:
	default:
	}
}

var _ transport.Channel = (*channel)(nil)
