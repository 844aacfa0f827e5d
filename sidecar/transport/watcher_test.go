package transport_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/logging"
	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/transport"
	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/transport/faketransport"
)

func TestWatcher_DeliversFramesToIngress(t *testing.T) {
	tr := faketransport.New()
	ingress := transport.NewIngress(8)
	w := transport.NewWatcher(tr, ingress, nil, logging.Noop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx, transport.Shell)

	tr.Fake(transport.Shell).Deliver(transport.Frame{MsgType: "status"})

	select {
	case f := <-ingress:
		assert.Equal(t, transport.Shell, f.Channel)
		assert.Equal(t, "status", f.Frame.MsgType)
	case <-time.After(time.Second):
		t.Fatal("frame was not delivered to ingress")
	}
}

func TestWatcher_CyclesOnDisconnect(t *testing.T) {
	tr := faketransport.New()
	ingress := transport.NewIngress(8)

	disconnected := make(chan transport.ChannelName, 4)
	w := transport.NewWatcher(tr, ingress, func(ctx context.Context, ch transport.ChannelName) {
		disconnected <- ch
	}, logging.Noop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx, transport.Shell)

	tr.Fake(transport.Shell).Disconnect()

	select {
	case ch := <-disconnected:
		assert.Equal(t, transport.Shell, ch)
	case <-time.After(time.Second):
		t.Fatal("on-disconnect hook was not invoked")
	}

	require.Eventually(t, func() bool {
		return tr.Fake(transport.Shell).ResetCount() >= 1
	}, time.Second, 10*time.Millisecond)
}
