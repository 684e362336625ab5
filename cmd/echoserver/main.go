// Command echoserver runs a standalone RPC server over the TCP binding,
// registering an Echo unary handler and a Numbers stream handler —
// enough to exercise echoclient end-to-end without any in-process
// wiring.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"

	"aeronrpc/metrics"
	"aeronrpc/middleware"
	"aeronrpc/rpcconfig"
	"aeronrpc/serializer"
	"aeronrpc/server"
	"aeronrpc/transport"
)

// echoPayload is the structured value carried inside the Echo call's
// RPCMessage.Payload, round-tripped through serializer.JSON rather than
// passed as raw bytes.
type echoPayload struct {
	Text string `json:"text"`
}

func main() {
	addr := flag.String("addr", ":9090", "TCP address to listen on")
	flag.Parse()

	listener, err := transport.ListenTCP(*addr)
	if err != nil {
		log.Fatalf("echoserver: listen: %v", err)
	}
	log.Printf("echoserver: listening on %s", listener.Addr())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		pub, sub, err := listener.Accept()
		if err != nil {
			log.Printf("echoserver: accept: %v", err)
			return
		}
		go serve(ctx, pub, sub)
	}
}

func serve(ctx context.Context, pub transport.Publication, sub transport.Subscription) {
	srv, err := server.NewServer(pub, sub, rpcconfig.DefaultServerConfig(), metrics.NewMonitoringService(), nil)
	if err != nil {
		log.Printf("echoserver: new server: %v", err)
		return
	}
	srv.Use(middleware.LoggingMiddleware())
	srv.WithAdmissionGate(100, 50)

	codec := serializer.JSON{}
	srv.RegisterUnary("Echo", func(ctx context.Context, payload []byte) ([]byte, error) {
		var req echoPayload
		if err := codec.Deserialize(payload, &req); err != nil {
			return nil, err
		}
		return codec.Serialize(req)
	})
	srv.RegisterStream("Numbers", func(ctx context.Context, payload []byte, sink server.StreamSink) {
		n := 5
		if len(payload) > 0 {
			n = int(payload[0])
		}
		for i := 1; i <= n; i++ {
			sink.OnNext([]byte{byte(i)})
		}
		sink.OnComplete()
	})

	if err := srv.Start(); err != nil {
		log.Printf("echoserver: start: %v", err)
		return
	}

	<-ctx.Done()
	srv.Close()
}
