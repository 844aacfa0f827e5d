// Package action implements the Action state machine (spec.md §4.3): the
// armed → running? → {running, done} lifecycle tracked per outbound
// request, the handler pipeline invoked for every message that belongs to
// it, and the 3-second safety net that force-completes an Action whose
// expected reply never arrives. Grounded on
// original_source/.../kernel_sidecar/actions.py's KernelAction, reworked
// from asyncio Events into channel-based signaling and Mutex-guarded
// state, following the copy-then-release idiom the teacher uses for its
// registries (coreengine's RWMutex+copy pattern before the deletion of
// coreengine/kernel, captured in DESIGN.md).
package action

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/handler"
	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/logging"
	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/message"
	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/observability"
	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/sidecarerrors"
)

// SafetyNetDelay is the default T from spec.md §4.3: how long an Action
// waits after idle_seen for its expected reply before the safety net fires.
// It is a var, not a const, solely so tests can shrink it instead of
// sleeping three real seconds per case.
var SafetyNetDelay = 3 * time.Second

// State is one of the four states this package tracks from the spec.md §4.3
// transition table; reply_seen and idle_seen are kept as separate flags.
type State string

const (
	StateArmed   State = "armed"
	StateRunning State = "running?"
	StateActive  State = "running"
	StateDone    State = "done"
)

// Action tracks one outbound request's lifecycle and owns the ordered
// handler pipeline invoked for every message addressed to it.
type Action struct {
	msgID        string
	requestType  string
	expectedType string
	hasReply     bool
	log          logging.Logger
	submittedAt  time.Time

	mu             sync.Mutex
	state          State
	replySeen      bool
	idleSeen       bool
	done           bool
	doneCh         chan struct{}
	safetyTimer    *time.Timer
	safetyNet      bool
	handlerTimeout time.Duration
	span           trace.Span
	onLateMessage  func(ctx context.Context, msgID, msgType string)

	handlers []handler.Handler
}

// New creates an armed Action for msgID, whose originating request had
// msg_type requestType. expectedType/hasReply come from
// request.ReplyMsgType — hasReply=false is the comm_open/comm_msg/comm_close
// case, which transitions straight to done once idle is seen regardless of
// reply_seen. handlers must already be in final order: user handlers, then
// the Client's default handlers, then the Comm Manager (spec.md §4.4).
func New(msgID, requestType, expectedType string, hasReply bool, handlers []handler.Handler, log logging.Logger) *Action {
	if log == nil {
		log = logging.Noop()
	}
	observability.RecordActionSubmitted()
	_, span := observability.Tracer("kernelsidecar/action").Start(context.Background(), "action."+requestType)
	return &Action{
		msgID:        msgID,
		requestType:  requestType,
		expectedType: expectedType,
		hasReply:     hasReply,
		log:          log,
		submittedAt:  time.Now(),
		state:        StateArmed,
		doneCh:       make(chan struct{}),
		handlers:     handlers,
		span:         span,
	}
}

func (a *Action) MsgID() string { return a.msgID }

// SetHandlerTimeout bounds how long a single message's handler pipeline may
// run (spec.md §6's HandlerTimeout knob). Zero (the default) means
// unbounded. Must be called before Handle is first invoked; the Client sets
// this once, right after New, from its own configured HandlerTimeout option.
func (a *Action) SetHandlerTimeout(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlerTimeout = d
}

// SetLateMessageHook installs the callback invoked for every non-comm
// message dropped because it arrived after the Action reached done
// (spec.md §4.3 edge policy / §9 open question (a): "drop + count via
// error hook"). Must be called before Handle is first invoked; the Client
// sets this once, right after New, wiring it to Hooks.OnLateMessage.
func (a *Action) SetLateMessageHook(f func(ctx context.Context, msgID, msgType string)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onLateMessage = f
}

// State returns the Action's current state under lock.
func (a *Action) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Done returns a channel closed once the Action reaches StateDone.
func (a *Action) Done() <-chan struct{} {
	return a.doneCh
}

// Wait blocks until the Action is done or ctx is cancelled.
func (a *Action) Wait(ctx context.Context) error {
	select {
	case <-a.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handle delivers msg through the handler pipeline and advances the state
// machine. Edge policy (spec.md §4.3, invariant I4): once done, a comm-type
// message is delivered only to the Comm Manager (the last handler in the
// pipeline, per the submit-order invariant spec.md §4.4 establishes); every
// other late message is dropped at the Action level and counted via the
// error hook (§9 open question (a)) — the rest of the pipeline never runs
// again.
func (a *Action) Handle(ctx context.Context, msg message.Message) error {
	a.mu.Lock()
	done := a.done
	a.mu.Unlock()

	if done {
		if isCommMessage(msg) {
			a.deliverLateCommMessage(ctx, msg)
		} else {
			a.recordLateMessage(ctx, msg)
		}
		return nil
	}

	a.runHandlersWithTimeout(ctx, msg)
	a.advance(msg)
	return nil
}

// deliverLateCommMessage is the I4 exception: a comm-type message still
// reaches the Comm Manager after done, since it may need to observe a late
// comm_close. It is always the last handler in a.handlers, per the
// (user handlers, default handlers, Comm Manager) order Client.Send
// appends in — no other handler in the pipeline runs.
func (a *Action) deliverLateCommMessage(ctx context.Context, msg message.Message) {
	if len(a.handlers) == 0 {
		return
	}
	commManager := a.handlers[len(a.handlers)-1]
	if err := commManager.Handle(ctx, msg); err != nil {
		wrapped := sidecarerrors.NewHandlerExceptionError(msg.MsgType(), err)
		observability.RecordHandlerException(msg.MsgType())
		a.log.Error("late comm handler failed", "err", wrapped)
	}
}

// recordLateMessage drops a non-comm message for a done Action, logging it
// and counting it via the configured metric and (if installed) the
// onLateMessage hook, per spec.md §9 open question (a).
func (a *Action) recordLateMessage(ctx context.Context, msg message.Message) {
	observability.RecordLateMessage(msg.MsgType())
	a.log.Warn("dropping late message for completed action", "msg_type", msg.MsgType(), "msg_id", a.msgID)

	a.mu.Lock()
	hook := a.onLateMessage
	a.mu.Unlock()
	if hook != nil {
		hook(ctx, a.msgID, msg.MsgType())
	}
}

// runHandlersWithTimeout bounds the handler pipeline by a.handlerTimeout, if
// set (spec.md §4.4 step 5 / §7 HandlerTimeout): a slow message's handlers
// are abandoned after the deadline so the dispatcher keeps moving; their
// ctx is cancelled and the abandoned goroutine is left to finish on its own,
// matching "a timeout cancels handlers for that message only and does not
// terminate the loop".
func (a *Action) runHandlersWithTimeout(ctx context.Context, msg message.Message) {
	a.mu.Lock()
	timeout := a.handlerTimeout
	a.mu.Unlock()

	if timeout <= 0 {
		a.runHandlers(ctx, msg)
		return
	}

	handlerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		a.runHandlers(handlerCtx, msg)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		observability.RecordHandlerTimeout(msg.MsgType())
		a.log.Warn("handler timeout", "err", sidecarerrors.NewHandlerTimeoutError(a.msgID, msg.MsgType()))
	}
}

func isCommMessage(msg message.Message) bool {
	switch msg.(type) {
	case message.CommOpen, message.CommMsg, message.CommClose:
		return true
	default:
		return false
	}
}

// runHandlers invokes every handler in registration order. A handler that
// returns an error is logged via HandlerExceptionError and does not stop
// the remaining handlers (spec.md §4.2). Each invocation runs under its own
// child span of the Action's span (SPEC_FULL.md §11).
func (a *Action) runHandlers(ctx context.Context, msg message.Message) {
	for _, h := range a.handlers {
		spanCtx := trace.ContextWithSpan(ctx, a.span)
		handlerCtx, span := observability.Tracer("kernelsidecar/action").Start(spanCtx, "handler."+msg.MsgType())
		err := h.Handle(handlerCtx, msg)
		span.End()
		if err != nil {
			wrapped := sidecarerrors.NewHandlerExceptionError(msg.MsgType(), err)
			observability.RecordHandlerException(msg.MsgType())
			a.log.Error("handler failed", "err", wrapped)
		}
	}
}

// advance applies the status/reply observation from msg to the state
// machine, per the spec.md §4.3 transition table.
func (a *Action) advance(msg message.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if status, ok := msg.(message.Status); ok {
		switch status.Content.ExecutionState {
		case message.Busy:
			if a.state == StateArmed || a.state == StateRunning {
				a.state = StateActive
			}
		case message.Idle:
			a.idleSeen = true
			if a.state == StateArmed {
				a.state = StateRunning
			}
		}
	}

	if a.hasReply && a.expectedType != "" && msg.MsgType() == a.expectedType {
		a.replySeen = true
	}

	a.maybeFinish()
}

// maybeFinish transitions to done once the completion predicate from
// spec.md §4.3 holds: idle_seen and (reply_seen or no expected reply).
// Caller must hold a.mu.
func (a *Action) maybeFinish() {
	if a.done {
		return
	}
	if !a.idleSeen {
		return
	}
	if a.hasReply && !a.replySeen {
		a.armSafetyNetLocked()
		return
	}
	a.finishLocked()
}

// armSafetyNetLocked starts the 3s safety net the first time idle is seen
// without the expected reply. Caller must hold a.mu.
func (a *Action) armSafetyNetLocked() {
	if a.safetyTimer != nil {
		return
	}
	a.safetyTimer = time.AfterFunc(SafetyNetDelay, a.fireSafetyNet)
}

// fireSafetyNet runs on its own goroutine via time.AfterFunc. It sets
// reply_seen and finalizes the Action, logging a warning, per spec.md
// §4.3's safety-net rationale.
func (a *Action) fireSafetyNet() {
	a.mu.Lock()
	if a.done {
		a.mu.Unlock()
		return
	}
	a.replySeen = true
	a.safetyNet = true
	observability.RecordSafetyNetTriggered(a.requestType)
	a.log.Warn("safety net fired", "err", sidecarerrors.NewSafetyNetTriggeredError(a.msgID, a.expectedType))
	a.finishLocked()
	a.mu.Unlock()
}

// finishLocked runs the completion contract: invoke every handler's
// OnActionComplete sequentially in registration order, then mark done and
// close doneCh. Caller must hold a.mu; the handler invocations themselves
// run with the lock held, matching the single-consumer dispatch model
// described in spec.md §5 (no concurrent Handle calls on one Action).
func (a *Action) finishLocked() {
	if a.done {
		return
	}
	if a.safetyTimer != nil {
		a.safetyTimer.Stop()
	}
	for _, h := range a.handlers {
		ch, ok := h.(handler.CompletionHandler)
		if !ok {
			continue
		}
		if err := ch.OnActionComplete(context.Background()); err != nil {
			a.log.Error("on_action_complete failed", "err", err)
		}
	}
	a.state = StateDone
	a.done = true
	outcome := "done"
	if a.safetyNet {
		outcome = "safety_net"
	}
	observability.RecordActionDone(a.requestType, outcome, time.Since(a.submittedAt).Seconds())
	a.span.End()
	close(a.doneCh)
}

// SafetyNetFired reports whether the safety net, rather than an observed
// reply, finalized this Action. Useful for tests and diagnostics.
func (a *Action) SafetyNetFired() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.safetyNet
}
