package wstransport_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/transport"
	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/transport/wstransport"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type serverFrame struct {
	Channel string         `json:"channel"`
	Header  map[string]any `json:"header"`
	Content map[string]any `json:"content"`
}

func newFakeGateway(t *testing.T, onMessage func(*websocket.Conn, serverFrame)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var f serverFrame
			if err := json.Unmarshal(raw, &f); err != nil {
				continue
			}
			if onMessage != nil {
				onMessage(conn, f)
			}
		}
	}))
	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestTransport_SendDeliversFrameWithChannelTag(t *testing.T) {
	received := make(chan serverFrame, 1)
	server := newFakeGateway(t, func(conn *websocket.Conn, f serverFrame) {
		received <- f
	})
	defer server.Close()

	tr := wstransport.New(wsURL(server), nil)
	ch, err := tr.Channel(transport.Shell)
	require.NoError(t, err)

	err = ch.Send(context.Background(), transport.Frame{
		MsgType: "kernel_info_request",
		Header:  map[string]any{"msg_id": "abc", "msg_type": "kernel_info_request"},
	})
	require.NoError(t, err)

	select {
	case f := <-received:
		require.Equal(t, "shell", f.Channel)
		require.Equal(t, "abc", f.Header["msg_id"])
	case <-time.After(time.Second):
		t.Fatal("server never received frame")
	}
}

func TestTransport_RecvDemultiplexesByChannelField(t *testing.T) {
	server := newFakeGateway(t, func(conn *websocket.Conn, f serverFrame) {
		reply, _ := json.Marshal(map[string]any{
			"channel": "iopub",
			"header":  map[string]any{"msg_id": "reply1", "msg_type": "status"},
			"content": map[string]any{"execution_state": "busy"},
		})
		_ = conn.WriteMessage(websocket.TextMessage, reply)
	})
	defer server.Close()

	tr := wstransport.New(wsURL(server), nil)
	shell, err := tr.Channel(transport.Shell)
	require.NoError(t, err)
	iopub, err := tr.Channel(transport.IOPub)
	require.NoError(t, err)

	err = shell.Send(context.Background(), transport.Frame{MsgType: "kernel_info_request"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	f, err := iopub.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, "status", f.Header["msg_type"])
}

func TestTransport_OversizedFrameTriggersDisconnect(t *testing.T) {
	server := newFakeGateway(t, func(conn *websocket.Conn, f serverFrame) {
		oversized, _ := json.Marshal(map[string]any{
			"channel": "iopub",
			"header":  map[string]any{"msg_id": "big1", "msg_type": "stream"},
			"content": map[string]any{"text": strings.Repeat("x", 2048)},
		})
		_ = conn.WriteMessage(websocket.TextMessage, oversized)
	})
	defer server.Close()

	tr := wstransport.New(wsURL(server), nil, wstransport.WithMaxMessageSize(1024))
	shell, err := tr.Channel(transport.Shell)
	require.NoError(t, err)
	iopub, err := tr.Channel(transport.IOPub)
	require.NoError(t, err)

	// drain the initial Connected event fired by the first Channel() dial.
	select {
	case ev := <-iopub.Events():
		require.Equal(t, transport.Connected, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("no initial connected event observed")
	}

	err = shell.Send(context.Background(), transport.Frame{MsgType: "kernel_info_request"})
	require.NoError(t, err)

	select {
	case ev := <-iopub.Events():
		require.Equal(t, transport.Disconnected, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("oversized frame never triggered a disconnect event")
	}
}

func TestTransport_ChannelEventsReportConnected(t *testing.T) {
	server := newFakeGateway(t, nil)
	defer server.Close()

	tr := wstransport.New(wsURL(server), nil)
	ch, err := tr.Channel(transport.Control)
	require.NoError(t, err)

	select {
	case ev := <-ch.Events():
		require.Equal(t, transport.Connected, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("no connected event observed")
	}
}
