// Package client implements the Client orchestrator (spec.md §4.4): request
// submission, the single-consumer dispatch loop, and the convenience
// request methods layered on top of sidecar/request's builders. Grounded on
// original_source/.../kernel_sidecar/client.py's KernelSidecarClient and on
// coreengine/kernel/kernel.go's central-coordinator shape (subsystems
// composed by one struct, aggregate Shutdown).
package client

import (
	"context"
	"sync"
	"time"

	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/action"
	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/comm"
	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/handler"
	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/logging"
	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/message"
	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/observability"
	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/request"
	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/sidecarerrors"
	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/transport"
)

// Hooks bundles the callbacks spec.md §4.4's dispatch loop and §4.5's
// watcher invoke for conditions that are not fatal to the loop itself.
type Hooks struct {
	OnOrphan      func(ctx context.Context, frame transport.Frame)
	OnUnparseable func(ctx context.Context, frame transport.Frame, err error)
	OnUntracked   func(ctx context.Context, msg message.Message)
	OnDisconnect  func(ctx context.Context, channel transport.ChannelName)

	// OnLateMessage fires for every non-comm message dropped because it
	// arrived for an Action that had already reached done (spec.md §9 open
	// question (a): "drop + count via error hook").
	OnLateMessage func(ctx context.Context, msgID, msgType string)
}

// Option configures a Client at construction time, mirroring the teacher's
// functional-options pattern.
type Option func(*Client)

// WithDefaultHandlers appends handlers to every Action's pipeline, after
// any caller-supplied handlers and before the Comm Manager (spec.md §4.4).
func WithDefaultHandlers(handlers ...handler.Handler) Option {
	return func(c *Client) { c.defaultHandlers = append(c.defaultHandlers, handlers...) }
}

// WithCommManager overrides the Comm Manager instance, matching client.py's
// `comm_manager` constructor argument.
func WithCommManager(m *comm.Manager) Option {
	return func(c *Client) { c.comms = m }
}

// WithHooks installs the error/diagnostic hooks.
func WithHooks(h Hooks) Option {
	return func(c *Client) { c.hooks = h }
}

// WithLogger installs a logger; defaults to logging.Noop().
func WithLogger(log logging.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithIngressBuffer sets the ingress queue's buffer size (default 256).
func WithIngressBuffer(n int) Option {
	return func(c *Client) { c.ingressBuffer = n }
}

// WithHandlerTimeout bounds how long a single message's handler pipeline may
// run before the dispatcher abandons it and moves on (spec.md §6's
// HandlerTimeout knob). Unset (zero) means unbounded.
func WithHandlerTimeout(d time.Duration) Option {
	return func(c *Client) { c.handlerTimeout = d }
}

// Client is the orchestrator tying together the Channel Watchers, the
// Action registry, and the dispatch loop.
type Client struct {
	transport transport.Transport
	builder   *request.Builder
	log       logging.Logger
	hooks     Hooks

	defaultHandlers []handler.Handler
	comms           *comm.Manager
	ingressBuffer   int
	handlerTimeout  time.Duration
	ingress         transport.Ingress

	mu       sync.Mutex
	registry map[string]*action.Action
	order    []string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Client over t. Start must be called to begin watching
// channels and dispatching.
func New(t transport.Transport, opts ...Option) *Client {
	c := &Client{
		transport:     t,
		builder:       request.NewBuilder(),
		log:           logging.Noop(),
		ingressBuffer: 256,
		registry:      make(map[string]*action.Action),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.comms == nil {
		c.comms = comm.New(c.log)
		c.comms.RegisterTarget("jupyter.widget", func(commID string) comm.Handler {
			return &nullCommHandler{}
		})
	}
	c.ingress = transport.NewIngress(c.ingressBuffer)
	return c
}

// Comms exposes the Comm Manager so a host can RegisterTarget before Start.
func (c *Client) Comms() *comm.Manager { return c.comms }

// Start spawns the four channel watchers plus the dispatch loop. It returns
// immediately; call Close to stop.
func (c *Client) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	for _, name := range transport.Channels {
		name := name
		w := transport.NewWatcher(c.transport, c.ingress, c.onDisconnect, c.log)
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			w.Run(ctx, name)
		}()
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.dispatchLoop(ctx)
	}()
}

// Close cancels all watchers and the dispatch loop and waits for them to
// return. Cancellation never surfaces an error out of this teardown path,
// matching spec.md §5's cancellation guarantee.
func (c *Client) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

func (c *Client) onDisconnect(ctx context.Context, channel transport.ChannelName) {
	if c.hooks.OnDisconnect != nil {
		c.hooks.OnDisconnect(ctx, channel)
	}
}

func (c *Client) onLateMessage(ctx context.Context, msgID, msgType string) {
	if c.hooks.OnLateMessage != nil {
		c.hooks.OnLateMessage(ctx, msgID, msgType)
	}
}

// RunningAction returns a best-effort guess at the Action the kernel is
// currently executing: the first non-done Action in registration order whose
// state is StateActive (a busy status has been observed for it), or nil when
// there is none, mirroring client.py's running_action property (dict iteration order in
// Python 3.7+ is insertion order; Go maps have none, so this is tracked via
// a separate ordered slice).
func (c *Client) RunningAction() *action.Action {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range c.order {
		a := c.registry[id]
		if a == nil {
			continue
		}
		select {
		case <-a.Done():
		default:
			if a.State() == action.StateActive {
				return a
			}
		}
	}
	return nil
}

// Send submits req, builds its Action with handlers appended in the
// mandated order (caller handlers, then default handlers, then the Comm
// Manager), and registers it. Returns sidecarerrors.ResubmissionError if
// msg_id is already tracked.
func (c *Client) Send(ctx context.Context, req request.Request, handlers ...handler.Handler) (*action.Action, error) {
	msgID := req.MsgID()

	c.mu.Lock()
	if _, exists := c.registry[msgID]; exists {
		c.mu.Unlock()
		return nil, sidecarerrors.NewResubmissionError(msgID)
	}
	c.mu.Unlock()

	full := make([]handler.Handler, 0, len(handlers)+len(c.defaultHandlers)+1)
	full = append(full, handlers...)
	full = append(full, c.defaultHandlers...)
	full = append(full, c.comms)

	ch, err := c.transport.Channel(req.Channel)
	if err != nil {
		return nil, sidecarerrors.NewTransportError(string(req.Channel), err)
	}
	if err := ch.Send(ctx, req.Frame()); err != nil {
		return nil, sidecarerrors.NewTransportError(string(req.Channel), err)
	}

	// Action construction (in-flight gauge, span) happens only once the send
	// has actually succeeded — a failed send must not leak an Action that
	// will never register a reply and never finish (the gauge/span would
	// otherwise leak on every transport error, a common event on a
	// reconnect-heavy transport).
	expectedType, hasReply := request.ReplyMsgType(req.MsgType())
	a := action.New(msgID, req.MsgType(), expectedType, hasReply, full, c.log)
	if c.handlerTimeout > 0 {
		a.SetHandlerTimeout(c.handlerTimeout)
	}
	a.SetLateMessageHook(c.onLateMessage)

	c.mu.Lock()
	c.registry[msgID] = a
	c.order = append(c.order, msgID)
	c.mu.Unlock()

	c.log.Debug("sent request", "msg_type", req.MsgType(), "msg_id", msgID)
	return a, nil
}

// Convenience requests (spec.md §4.4).

func (c *Client) KernelInfo(ctx context.Context, handlers ...handler.Handler) (*action.Action, error) {
	return c.Send(ctx, c.builder.KernelInfo(), handlers...)
}

func (c *Client) Execute(ctx context.Context, code string, opts request.ExecuteOptions, handlers ...handler.Handler) (*action.Action, error) {
	return c.Send(ctx, c.builder.Execute(code, opts), handlers...)
}

func (c *Client) Inspect(ctx context.Context, code string, cursorPos, detailLevel int, handlers ...handler.Handler) (*action.Action, error) {
	return c.Send(ctx, c.builder.Inspect(code, cursorPos, detailLevel), handlers...)
}

func (c *Client) Complete(ctx context.Context, code string, cursorPos int, handlers ...handler.Handler) (*action.Action, error) {
	return c.Send(ctx, c.builder.Complete(code, cursorPos), handlers...)
}

func (c *Client) History(ctx context.Context, opts request.HistoryOptions, handlers ...handler.Handler) (*action.Action, error) {
	return c.Send(ctx, c.builder.History(opts), handlers...)
}

func (c *Client) IsComplete(ctx context.Context, code string, handlers ...handler.Handler) (*action.Action, error) {
	return c.Send(ctx, c.builder.IsComplete(code), handlers...)
}

func (c *Client) Interrupt(ctx context.Context, handlers ...handler.Handler) (*action.Action, error) {
	return c.Send(ctx, c.builder.Interrupt(), handlers...)
}

func (c *Client) ShutdownRequest(ctx context.Context, restart bool, handlers ...handler.Handler) (*action.Action, error) {
	return c.Send(ctx, c.builder.Shutdown(restart), handlers...)
}

func (c *Client) DebugDumpCell(ctx context.Context, code string, handlers ...handler.Handler) (*action.Action, error) {
	return c.Send(ctx, c.builder.DebugDumpCell(code), handlers...)
}

func (c *Client) DebugInfo(ctx context.Context, handlers ...handler.Handler) (*action.Action, error) {
	return c.Send(ctx, c.builder.DebugInfo(), handlers...)
}

func (c *Client) DebugInspectVariables(ctx context.Context, handlers ...handler.Handler) (*action.Action, error) {
	return c.Send(ctx, c.builder.DebugInspectVariables(), handlers...)
}

func (c *Client) DebugRichInspectVariables(ctx context.Context, variablesReference int, handlers ...handler.Handler) (*action.Action, error) {
	return c.Send(ctx, c.builder.DebugRichInspectVariables(variablesReference), handlers...)
}

// SendStdin is fire-and-forget: there is no reply and no Action, matching
// client.py's send_stdin.
func (c *Client) SendStdin(ctx context.Context, value string) error {
	req := c.builder.InputReply(value)
	ch, err := c.transport.Channel(req.Channel)
	if err != nil {
		return sidecarerrors.NewTransportError(string(req.Channel), err)
	}
	if err := ch.Send(ctx, req.Frame()); err != nil {
		c.log.Error("error sending input_reply", "err", err)
		return sidecarerrors.NewTransportError(string(req.Channel), err)
	}
	return nil
}

// commOpenWatcher is the ephemeral handler used only to observe whether the
// kernel rejected a high-level CommOpen, mirroring client.py's
// CommOpenHandler.
type commOpenWatcher struct {
	commID       string
	stderrText   string
	closedForID  string
	closedForSet bool
}

func (w *commOpenWatcher) Handle(ctx context.Context, msg message.Message) error {
	switch v := msg.(type) {
	case message.Stream:
		if v.Content.Name == message.Stderr {
			w.stderrText = v.Content.Text
		}
	case message.CommClose:
		w.closedForID = v.Content.CommID
		w.closedForSet = true
	}
	return nil
}

// nullCommHandler is the default jupyter.widget target handler: it accepts
// and silently drops comm traffic for widgets the host hasn't wired a real
// handler for (SPEC_FULL.md §12's widget-target supplement).
type nullCommHandler struct{}

func (nullCommHandler) Handle(context.Context, message.Message) error { return nil }

// CommOpen is the high-level helper from spec.md §4.4: send a comm_open
// with a freshly minted comm_id, pre-register h in the Comm Manager, await
// completion, and surface CommTargetNotFoundError if the kernel rejected
// the target (observed as a comm_close for the same comm_id, optionally
// preceded by a stderr stream).
func (c *Client) CommOpen(ctx context.Context, targetName string, h comm.Handler, data map[string]any) error {
	watcher := &commOpenWatcher{}
	req := c.builder.CommOpen(targetName, data)
	commID, _ := req.Content["comm_id"].(string)

	c.comms.RegisterComm(commID, h)

	a, err := c.Send(ctx, req, watcher)
	if err != nil {
		return err
	}
	if err := a.Wait(ctx); err != nil {
		return err
	}
	if watcher.closedForSet && watcher.closedForID == commID {
		return sidecarerrors.NewCommTargetNotFoundError(targetName, commID, watcher.stderrText)
	}
	return nil
}

func (c *Client) CommInfo(ctx context.Context, targetName string, handlers ...handler.Handler) (*action.Action, error) {
	return c.Send(ctx, c.builder.CommInfo(targetName), handlers...)
}

func (c *Client) CommOpenRequest(ctx context.Context, targetName string, data map[string]any, handlers ...handler.Handler) (*action.Action, error) {
	return c.Send(ctx, c.builder.CommOpen(targetName, data), handlers...)
}

func (c *Client) CommMsg(ctx context.Context, commID string, data map[string]any, handlers ...handler.Handler) (*action.Action, error) {
	return c.Send(ctx, c.builder.CommMsg(commID, data), handlers...)
}

func (c *Client) CommClose(ctx context.Context, commID string, data map[string]any, handlers ...handler.Handler) (*action.Action, error) {
	return c.Send(ctx, c.builder.CommClose(commID, data), handlers...)
}

// dispatchLoop is the single-consumer loop from spec.md §4.4: for every raw
// frame, orphan-check, parse, look up the owning Action, and hand it off.
func (c *Client) dispatchLoop(ctx context.Context) {
	for {
		select {
		case inbound, ok := <-c.ingress:
			if !ok {
				return
			}
			c.dispatchOne(ctx, inbound.Frame)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) dispatchOne(ctx context.Context, frame transport.Frame) {
	start := time.Now()
	defer func() { observability.RecordDispatch(frame.MsgType, time.Since(start).Seconds()) }()

	if len(frame.ParentHeader) == 0 {
		if c.hooks.OnOrphan != nil {
			c.hooks.OnOrphan(ctx, frame)
		}
		return
	}

	msg, err := message.Parse(frame)
	if err != nil {
		wrapped := sidecarerrors.NewParseError(frame.MsgType, err)
		c.log.Warn("unparseable message", "err", wrapped)
		if c.hooks.OnUnparseable != nil {
			c.hooks.OnUnparseable(ctx, frame, wrapped)
		}
		return
	}

	parentID := msg.ParentHeader().MsgID
	c.mu.Lock()
	a, tracked := c.registry[parentID]
	c.mu.Unlock()
	if !tracked {
		if c.hooks.OnUntracked != nil {
			c.hooks.OnUntracked(ctx, msg)
		}
		c.log.Debug("untracked message", "err", sidecarerrors.NewUntrackedMessageError(parentID, msg.MsgType()))
		return
	}

	// spec.md §4.4 step 4: if a different Action is still running, this
	// message arrived out of order relative to it. Logged only — no
	// corrective action is taken (spec.md §9 Open Question (b)).
	if running := c.RunningAction(); running != nil && running.MsgID() != parentID {
		c.log.Warn("out-of-order message", "msg_type", msg.MsgType(), "msg_id", parentID, "running_msg_id", running.MsgID())
	}

	if err := a.Handle(ctx, msg); err != nil {
		c.log.Error("action handle failed", "msg_id", parentID, "err", err)
	}
}
