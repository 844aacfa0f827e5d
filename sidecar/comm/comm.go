// Package comm implements the Comm Manager (spec.md §4.6): a stateful,
// cross-cutting handler attached to every Action that routes comm_open /
// comm_msg / comm_close messages to per-comm_id handlers, keyed by the
// target_name a host registers ahead of time. Grounded directly on
// original_source/.../kernel_sidecar/comms.py's CommManager/CommHandler.
package comm

import (
	"context"
	"sync"

	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/handler"
	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/logging"
	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/message"
)

// Handler is what a registered comm target produces: one instance per
// comm_id, receiving every comm_open/comm_msg/comm_close addressed to it.
// It embeds handler.Handler so a comm handler can also be appended directly
// to an Action's pipeline if a caller wants to watch a single comm in
// isolation.
type Handler interface {
	handler.Handler
}

// Factory mints a Handler for a newly observed comm_id, mirroring comms.py's
// `handler_cls(comm_id=comm_id)`.
type Factory func(commID string) Handler

// Manager is the Comm Manager. It is safe for concurrent use; in this
// runtime's single-consumer dispatch loop it is only ever driven from one
// goroutine at a time, but the mutex guards against a host also calling
// Lookup, RegisterTarget or RegisterComm concurrently.
type Manager struct {
	log logging.Logger

	mu      sync.RWMutex
	targets map[string]Factory
	comms   map[string]Handler
}

// New creates an empty Comm Manager. Targets are registered with
// RegisterTarget by the host before the client starts dispatching, matching
// comms.py's CommManager(handlers=...) constructor argument.
func New(log logging.Logger) *Manager {
	if log == nil {
		log = logging.Noop()
	}
	return &Manager{
		log:     log,
		targets: make(map[string]Factory),
		comms:   make(map[string]Handler),
	}
}

// RegisterTarget maps target_name to the factory used to build a Handler
// the first time that target is seen in a comm_open.
func (m *Manager) RegisterTarget(targetName string, factory Factory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.targets[targetName] = factory
}

// RegisterComm pre-registers a Handler for a comm_id before any comm_open
// has arrived, used by the Client's high-level CommOpen (spec.md §4.4) to
// attach a handler to a comm_id it is about to mint itself.
func (m *Manager) RegisterComm(commID string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.comms[commID] = h
}

// Handle implements handler.Handler. It is a no-op for any message that
// isn't a comm_* variant, so it can be appended, unconditionally, as the
// last handler on every Action (spec.md §4.4's ordering guarantee).
func (m *Manager) Handle(ctx context.Context, msg message.Message) error {
	switch v := msg.(type) {
	case message.CommOpen:
		return m.handleCommOpen(ctx, v)
	case message.CommMsg:
		return m.handleCommMsg(ctx, v)
	case message.CommClose:
		return m.handleCommClose(ctx, v)
	default:
		return nil
	}
}

func (m *Manager) handleCommOpen(ctx context.Context, msg message.CommOpen) error {
	commID := msg.Content.CommID
	targetName := msg.Content.TargetName

	m.mu.Lock()
	h, known := m.comms[commID]
	if !known {
		factory, hasTarget := m.targets[targetName]
		if !hasTarget {
			m.mu.Unlock()
			m.onUnrecognizedTarget(msg)
			return nil
		}
		h = factory(commID)
		m.comms[commID] = h
		m.log.Debug("registered comm", "comm_id", commID, "target_name", targetName)
	}
	m.mu.Unlock()

	return h.Handle(ctx, msg)
}

func (m *Manager) handleCommMsg(ctx context.Context, msg message.CommMsg) error {
	m.mu.RLock()
	h, known := m.comms[msg.Content.CommID]
	m.mu.RUnlock()
	if !known {
		m.onUnrecognizedComm(msg.Content.CommID)
		return nil
	}
	return h.Handle(ctx, msg)
}

func (m *Manager) handleCommClose(ctx context.Context, msg message.CommClose) error {
	m.mu.RLock()
	h, known := m.comms[msg.Content.CommID]
	m.mu.RUnlock()
	if !known {
		m.onUnrecognizedComm(msg.Content.CommID)
		return nil
	}
	err := h.Handle(ctx, msg)
	m.mu.Lock()
	delete(m.comms, msg.Content.CommID)
	m.mu.Unlock()
	return err
}

// onUnrecognizedTarget is the counterpart of comms.py's
// handle_unrecognized_comm_target: it logs a warning and the comm_open is
// dropped. It is an unexported method called directly by handleCommOpen, so
// a host cannot replace it, and embedding Manager does not change it.
func (m *Manager) onUnrecognizedTarget(msg message.CommOpen) {
	m.log.Warn("comm_open for unregistered target", "target_name", msg.Content.TargetName, "comm_id", msg.Content.CommID)
}

func (m *Manager) onUnrecognizedComm(commID string) {
	m.log.Debug("unrecognized comm_id", "comm_id", commID)
}

// Lookup returns the Handler registered for commID, if any — used by tests
// and by the Client's high-level CommOpen to retrieve the handler it just
// pre-registered.
func (m *Manager) Lookup(commID string) (Handler, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.comms[commID]
	return h, ok
}

var _ handler.Handler = (*Manager)(nil)
