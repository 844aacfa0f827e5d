// Package transport defines the external collaborator contract spec.md §6
// assumes: a lower-level client offering four named channels, each with a
// synchronous send, an async recv, and a connection-event stream. Wire
// framing and signing live entirely on the other side of this interface —
// out of scope per spec.md §1.
package transport

import "context"

// ChannelName identifies one of the four sockets the sidecar multiplexes.
type ChannelName string

const (
	Shell   ChannelName = "shell"
	IOPub   ChannelName = "iopub"
	Control ChannelName = "control"
	Stdin   ChannelName = "stdin"
)

// Channels lists all four channel names in a stable order, used when
// starting the per-channel supervisors.
var Channels = [...]ChannelName{Shell, IOPub, Control, Stdin}

// Frame is the dict-like message shape from spec.md §6. Field names are
// contractual. Header and ParentHeader are left as maps here (rather than
// the sidecar's own Header type) because the transport is not expected to
// know anything about this module's message model — it only moves dicts.
type Frame struct {
	Buffers      [][]byte
	Content      map[string]any
	Header       map[string]any
	Metadata     map[string]any
	MsgID        string
	MsgType      string
	ParentHeader map[string]any
}

// ConnEventKind enumerates the connection-state events a channel's event
// stream may emit.
type ConnEventKind string

const (
	Connected    ConnEventKind = "connected"
	Disconnected ConnEventKind = "disconnected"
)

// ConnEvent is a single connection-state transition observed on a channel.
type ConnEvent struct {
	Kind ConnEventKind
}

// Channel is the per-socket surface a Transport exposes.
type Channel interface {
	// Send transmits a frame synchronously. May fail with a transport-level
	// error; callers wrap it in sidecarerrors.TransportError.
	Send(ctx context.Context, frame Frame) error

	// Recv blocks for the next inbound frame.
	Recv(ctx context.Context) (Frame, error)

	// Events returns a stream of connection-state transitions. Closed when
	// the channel is torn down.
	Events() <-chan ConnEvent

	// Reset drops cached connection state so the next Transport.Channel call
	// reconnects.
	Reset()
}

// Transport bootstraps and hands back the four named channels.
type Transport interface {
	Channel(name ChannelName) (Channel, error)
}
