package transport

import (
	"context"
	"time"

	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/logging"
	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/observability"
)

// Ingress is the single queue every channel watcher feeds and the one
// dispatcher loop drains (spec.md §4.5, §5). It is a thin typed wrapper
// over a buffered channel rather than a bespoke queue type, matching the
// teacher's preference for native Go channels as the concurrency primitive.
type Ingress chan InboundFrame

// InboundFrame pairs a raw Frame with the channel it arrived on, since the
// dispatcher treats iopub/shell/control/stdin frames uniformly once queued.
type InboundFrame struct {
	Channel ChannelName
	Frame   Frame
}

// NewIngress creates an ingress queue with the given buffer size.
func NewIngress(buffer int) Ingress {
	return make(Ingress, buffer)
}

// DisconnectHook is invoked after a channel's supervisor cycles it, mirroring
// the Client's on_disconnect hook (spec.md §4.5).
type DisconnectHook func(ctx context.Context, channel ChannelName)

// Watcher runs the per-channel supervisor loop from spec.md §4.5: reader and
// monitor sub-tasks race to completion; whichever finishes first causes the
// watcher to drop the channel's cached connection state and fire the
// disconnect hook, and only after the hook returns does Run start the next
// reader and monitor for the channel.
type Watcher struct {
	transport Transport
	ingress   Ingress
	onDisc    DisconnectHook
	log       logging.Logger

	// readerIdleBackoff bounds how long the reader sleeps between polls when
	// the channel reports itself not-yet-alive, avoiding a busy loop — same
	// rationale as client.py's `await asyncio.sleep(0.001)`.
	readerIdleBackoff time.Duration
}

// NewWatcher constructs a Watcher. onDisc and log may be nil.
func NewWatcher(t Transport, ingress Ingress, onDisc DisconnectHook, log logging.Logger) *Watcher {
	if log == nil {
		log = logging.Noop()
	}
	if onDisc == nil {
		onDisc = func(context.Context, ChannelName) {}
	}
	return &Watcher{
		transport:         t,
		ingress:           ingress,
		onDisc:            onDisc,
		log:               log,
		readerIdleBackoff: time.Millisecond,
	}
}

// Run supervises name until ctx is cancelled, cycling the underlying
// connection each time the reader or monitor sub-task ends. It returns only
// when ctx is done.
func (w *Watcher) Run(ctx context.Context, name ChannelName) {
	for ctx.Err() == nil {
		w.runOnce(ctx, name)
	}
}

// runOnce supervises a single connection lifetime of the channel: spawn
// reader+monitor, wait for the first to finish, cancel the other, reset the
// transport's cached channel state, and invoke the disconnect hook.
func (w *Watcher) runOnce(ctx context.Context, name ChannelName) {
	ch, err := w.transport.Channel(name)
	if err != nil {
		w.log.Error("failed to acquire channel", "channel", name, "err", err)
		time.Sleep(w.readerIdleBackoff)
		return
	}

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{}, 2)
	go func() {
		w.watchMessages(subCtx, ch, name)
		done <- struct{}{}
	}()
	go func() {
		w.watchStatus(subCtx, ch, name)
		done <- struct{}{}
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return
	}

	w.log.Debug("cycling channel connection", "channel", name)
	observability.RecordChannelDisconnect(string(name))
	cancel()
	ch.Reset()
	w.onDisc(ctx, name)
}

// watchMessages is the reader sub-task: repeatedly Recv a frame and enqueue
// it, backing off briefly instead of busy-looping when Recv reports the
// channel isn't ready.
func (w *Watcher) watchMessages(ctx context.Context, ch Channel, name ChannelName) {
	for {
		if ctx.Err() != nil {
			return
		}
		frame, err := ch.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Debug("recv not ready, backing off", "channel", name, "err", err)
			time.Sleep(w.readerIdleBackoff)
			continue
		}
		select {
		case w.ingress <- InboundFrame{Channel: name, Frame: frame}:
		case <-ctx.Done():
			return
		}
	}
}

// watchStatus is the monitor sub-task: consumes connection events until a
// Disconnected event arrives, at which point it returns so the supervisor
// cycles the connection.
func (w *Watcher) watchStatus(ctx context.Context, ch Channel, name ChannelName) {
	events := ch.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Kind {
			case Connected:
				w.log.Debug("channel connected", "channel", name)
			case Disconnected:
				w.log.Debug("channel disconnected", "channel", name)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
