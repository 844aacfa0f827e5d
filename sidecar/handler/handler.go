// Package handler defines the per-message dispatch abstraction an Action
// invokes for every inbound message, and the OnActionComplete hook invoked
// once the Action reaches done. This replaces the attribute-name dispatch
// (`getattr(self, msg.msg_type, self.unhandled)`) of
// original_source/.../handlers/base.py with an explicit interface, per
// spec.md §9 REDESIGN FLAGS and grounded on commbus/protocols.go's
// Handler/HandlerFunc adapter pair.
package handler

import (
	"context"

	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/message"
)

// Handler is invoked once for every message delivered to an Action, in
// registration order (spec.md §4.2). Handle must not block indefinitely:
// the dispatcher may wrap the call in a per-message timeout and cancel ctx
// when it expires.
type Handler interface {
	Handle(ctx context.Context, msg message.Message) error
}

// CompletionHandler is an optional extension a Handler can also implement:
// OnActionComplete is invoked exactly once per handler, sequentially in
// registration order, when the Action completes: after its completion
// predicate holds and before its Done channel is closed (spec.md §4.2,
// §4.3 "Completion contract").
type CompletionHandler interface {
	OnActionComplete(ctx context.Context) error
}

// Func adapts a plain function to Handler, mirroring commbus/protocols.go's
// HandlerFunc.
type Func func(ctx context.Context, msg message.Message) error

func (f Func) Handle(ctx context.Context, msg message.Message) error {
	return f(ctx, msg)
}

// FuncWithCompletion adapts a pair of functions into a Handler that also
// satisfies CompletionHandler. OnComplete may be nil, in which case
// OnActionComplete is a no-op.
type FuncWithCompletion struct {
	OnMessage  func(ctx context.Context, msg message.Message) error
	OnComplete func(ctx context.Context) error
}

func (f FuncWithCompletion) Handle(ctx context.Context, msg message.Message) error {
	if f.OnMessage == nil {
		return nil
	}
	return f.OnMessage(ctx, msg)
}

func (f FuncWithCompletion) OnActionComplete(ctx context.Context) error {
	if f.OnComplete == nil {
		return nil
	}
	return f.OnComplete(ctx)
}

var (
	_ Handler           = Func(nil)
	_ Handler           = FuncWithCompletion{}
	_ CompletionHandler = FuncWithCompletion{}
)
