// Command sidecar dials a kernel gateway over a websocket and runs the
// Client orchestrator against it until interrupted. Flag parsing and
// graceful-shutdown-on-signal follow the same shape the teacher's
// coreengine entrypoint used for its gRPC server.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/client"
	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/logging"
	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/observability"
	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/transport"
	"github.com/jeeves-cluster-organization/kernelsidecar/sidecar/transport/wstransport"
)

func main() {
	gatewayURL := flag.String("gateway-url", "ws://127.0.0.1:8888/api/kernels/default/channels", "kernel gateway websocket URL")
	otlpEndpoint := flag.String("otlp-endpoint", "", "OTLP/gRPC collector endpoint; tracing disabled when empty")
	dialTimeout := flag.Duration("dial-timeout", 10*time.Second, "websocket handshake timeout")
	maxMessageSize := flag.Int64("max-message-size", 0, "drop inbound frames over this many bytes by closing the connection; 0 disables the limit")
	handlerTimeout := flag.Duration("handler-timeout", 0, "bound how long a single message's handler pipeline may run; 0 disables the timeout")
	prettyLogs := flag.Bool("pretty-logs", false, "render structured log fields one per line instead of packed into a single line")
	flag.Parse()

	logger := &logging.StdLogger{Pretty: *prettyLogs}

	if *otlpEndpoint != "" {
		shutdown, err := observability.InitTracer("kernelsidecar", *otlpEndpoint)
		if err != nil {
			log.Fatalf("failed to initialize tracing: %v", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				logger.Warn("tracer shutdown failed", "err", err)
			}
		}()
	}

	tr := wstransport.New(*gatewayURL, nil,
		wstransport.WithDialTimeout(*dialTimeout),
		wstransport.WithLogger(logger),
		wstransport.WithMaxMessageSize(*maxMessageSize),
	)

	c := client.New(tr,
		client.WithLogger(logger),
		client.WithHandlerTimeout(*handlerTimeout),
		client.WithHooks(client.Hooks{
			OnOrphan: func(ctx context.Context, frame transport.Frame) {
				logger.Debug("dropping orphan message", "msg_type", frame.MsgType)
			},
			OnDisconnect: func(ctx context.Context, channel transport.ChannelName) {
				logger.Warn("channel disconnected", "channel", string(channel))
			},
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())
	cancel()
	c.Close()
}
