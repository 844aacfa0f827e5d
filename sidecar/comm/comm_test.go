package comm_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/comm"
	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/logging"
	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/message"
)

type recorder struct {
	commID string
	msgs   []message.Message
}

func (r *recorder) Handle(ctx context.Context, msg message.Message) error {
	r.msgs = append(r.msgs, msg)
	return nil
}

func TestManager_CommOpen_RoutesToRegisteredTarget(t *testing.T) {
	m := comm.New(logging.Noop())
	var built *recorder
	m.RegisterTarget("jupyter.widget", func(commID string) comm.Handler {
		built = &recorder{commID: commID}
		return built
	})

	open := message.CommOpen{Content: message.CommOpenContent{CommID: "c1", TargetName: "jupyter.widget"}}
	require.NoError(t, m.Handle(context.Background(), open))

	require.NotNil(t, built)
	assert.Equal(t, "c1", built.commID)
	assert.Len(t, built.msgs, 1)

	h, ok := m.Lookup("c1")
	require.True(t, ok)
	assert.Same(t, built, h)
}

func TestManager_CommOpen_UnregisteredTargetIsDropped(t *testing.T) {
	m := comm.New(logging.Noop())
	open := message.CommOpen{Content: message.CommOpenContent{CommID: "c1", TargetName: "unknown"}}
	require.NoError(t, m.Handle(context.Background(), open))
	_, ok := m.Lookup("c1")
	assert.False(t, ok)
}

func TestManager_CommOpen_DuplicateIsIdempotent(t *testing.T) {
	m := comm.New(logging.Noop())
	var calls int
	m.RegisterTarget("jupyter.widget", func(commID string) comm.Handler {
		calls++
		return &recorder{commID: commID}
	})

	open := message.CommOpen{Content: message.CommOpenContent{CommID: "c1", TargetName: "jupyter.widget"}}
	require.NoError(t, m.Handle(context.Background(), open))
	require.NoError(t, m.Handle(context.Background(), open))

	assert.Equal(t, 1, calls, "a second comm_open for the same comm_id must reuse the existing handler")
}

func TestManager_CommMsg_UnrecognizedIDIsDropped(t *testing.T) {
	m := comm.New(logging.Noop())
	msg := message.CommMsg{Content: message.CommMsgContent{CommID: "ghost"}}
	require.NoError(t, m.Handle(context.Background(), msg))
}

func TestManager_CommClose_RemovesFromTable(t *testing.T) {
	m := comm.New(logging.Noop())
	r := &recorder{}
	m.RegisterComm("c1", r)

	closeMsg := message.CommClose{Content: message.CommCloseContent{CommID: "c1"}}
	require.NoError(t, m.Handle(context.Background(), closeMsg))

	_, ok := m.Lookup("c1")
	assert.False(t, ok)
	assert.Len(t, r.msgs, 1)
}

func TestManager_IgnoresNonCommMessages(t *testing.T) {
	m := comm.New(logging.Noop())
	require.NoError(t, m.Handle(context.Background(), message.Status{Content: message.StatusContent{ExecutionState: message.Idle}}))
}
