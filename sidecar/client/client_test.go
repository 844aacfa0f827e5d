package client_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/client"
	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/comm"
	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/handler"
	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/message"
	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/transport"
	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/transport/faketransport"
)

func frameFor(msgType, parentID string, content map[string]any) transport.Frame {
	return transport.Frame{
		MsgType:      msgType,
		Header:       map[string]any{"msg_id": "reply-" + msgType, "msg_type": msgType},
		ParentHeader: map[string]any{"msg_id": parentID, "msg_type": "execute_request"},
		Content:      content,
	}
}

func TestClient_KernelInfo_CompletesOnBusyReplyIdle(t *testing.T) {
	tr := faketransport.New()
	c := client.New(tr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Close()

	var received []string
	h := handler.Func(func(ctx context.Context, msg message.Message) error {
		received = append(received, msg.MsgType())
		return nil
	})

	a, err := c.KernelInfo(ctx, h)
	require.NoError(t, err)

	require.Len(t, tr.Fake(transport.Shell).Sent, 1)
	sentMsgID, _ := tr.Fake(transport.Shell).Sent[0].Header["msg_id"].(string)
	require.Equal(t, a.MsgID(), sentMsgID)

	shell := tr.Fake(transport.Shell)
	iopub := tr.Fake(transport.IOPub)

	iopub.Deliver(transport.Frame{
		MsgType:      "status",
		Header:       map[string]any{"msg_id": "s1", "msg_type": "status"},
		ParentHeader: map[string]any{"msg_id": a.MsgID(), "msg_type": "kernel_info_request"},
		Content:      map[string]any{"execution_state": "busy"},
	})
	shell.Deliver(transport.Frame{
		MsgType:      "kernel_info_reply",
		Header:       map[string]any{"msg_id": "r1", "msg_type": "kernel_info_reply"},
		ParentHeader: map[string]any{"msg_id": a.MsgID(), "msg_type": "kernel_info_request"},
		Content: map[string]any{
			"banner": "x", "implementation": "python", "implementation_version": "1",
			"language_info": map[string]any{"name": "python"}, "protocol_version": "5.3", "status": "ok",
		},
	})
	iopub.Deliver(transport.Frame{
		MsgType:      "status",
		Header:       map[string]any{"msg_id": "s2", "msg_type": "status"},
		ParentHeader: map[string]any{"msg_id": a.MsgID(), "msg_type": "kernel_info_request"},
		Content:      map[string]any{"execution_state": "idle"},
	})

	select {
	case <-a.Done():
	case <-time.After(time.Second):
		t.Fatal("action never completed")
	}
	assert.False(t, a.SafetyNetFired())
	assert.Contains(t, received, "kernel_info_reply")
}

func TestClient_CommOpen_SucceedsWhenTargetRecognized(t *testing.T) {
	tr := faketransport.New()
	c := client.New(tr)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Close()

	recv := &recordingCommHandler{}

	go func() {
		time.Sleep(20 * time.Millisecond)
		shell := tr.Fake(transport.Shell)
		if len(shell.Sent) != 1 {
			return
		}
		msgID, _ := shell.Sent[0].Header["msg_id"].(string)

		iopub := tr.Fake(transport.IOPub)
		iopub.Deliver(transport.Frame{
			MsgType:      "status",
			Header:       map[string]any{"msg_id": "s1", "msg_type": "status"},
			ParentHeader: map[string]any{"msg_id": msgID, "msg_type": "comm_open"},
			Content:      map[string]any{"execution_state": "busy"},
		})
		iopub.Deliver(transport.Frame{
			MsgType:      "status",
			Header:       map[string]any{"msg_id": "s2", "msg_type": "status"},
			ParentHeader: map[string]any{"msg_id": msgID, "msg_type": "comm_open"},
			Content:      map[string]any{"execution_state": "idle"},
		})
	}()

	err := c.CommOpen(ctx, "jupyter.widget", recv, nil)
	require.NoError(t, err)
}

func TestClient_HandlerTimeout_DoesNotBlockDispatchLoop(t *testing.T) {
	tr := faketransport.New()
	c := client.New(tr, client.WithHandlerTimeout(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Close()

	release := make(chan struct{})
	defer close(release)
	slow := handler.Func(func(ctx context.Context, msg message.Message) error {
		<-release
		return nil
	})

	a, err := c.KernelInfo(ctx, slow)
	require.NoError(t, err)

	iopub := tr.Fake(transport.IOPub)
	shell := tr.Fake(transport.Shell)
	shell.Deliver(transport.Frame{
		MsgType:      "kernel_info_reply",
		Header:       map[string]any{"msg_id": "r1", "msg_type": "kernel_info_reply"},
		ParentHeader: map[string]any{"msg_id": a.MsgID(), "msg_type": "kernel_info_request"},
		Content: map[string]any{
			"banner": "x", "implementation": "python", "implementation_version": "1",
			"language_info": map[string]any{"name": "python"}, "protocol_version": "5.3", "status": "ok",
		},
	})
	iopub.Deliver(transport.Frame{
		MsgType:      "status",
		Header:       map[string]any{"msg_id": "s1", "msg_type": "status"},
		ParentHeader: map[string]any{"msg_id": a.MsgID(), "msg_type": "kernel_info_request"},
		Content:      map[string]any{"execution_state": "idle"},
	})

	select {
	case <-a.Done():
	case <-time.After(time.Second):
		t.Fatal("action should complete once idle+reply are seen even though its slow handler never returns")
	}
}

type recordingCommHandler struct {
	msgs []message.Message
}

func (h *recordingCommHandler) Handle(ctx context.Context, msg message.Message) error {
	h.msgs = append(h.msgs, msg)
	return nil
}

var _ comm.Handler = (*recordingCommHandler)(nil)
