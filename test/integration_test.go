// Package test exercises the client and server engines end-to-end over
// the in-process transport binding, covering the unary, fan-in,
// streaming, handler-error, and reply-timeout scenarios a real
// deployment would hit.
package test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"aeronrpc/client"
	"aeronrpc/loadbalance"
	"aeronrpc/metrics"
	"aeronrpc/pending"
	"aeronrpc/registry"
	"aeronrpc/rpcconfig"
	"aeronrpc/rpcerrors"
	"aeronrpc/server"
	"aeronrpc/transport"
)

// harness bundles one client and the server it talks to over a shared
// InmemBroker address, both torn down by Close.
type harness struct {
	srv *server.Server
	cli *client.Client
}

func (h *harness) Close() {
	h.cli.Close()
	h.srv.Close()
}

// newHarness dials addr against a freshly built server whose handlers
// are the caller's responsibility — so this passes the unstarted server
// to register, then starts it.
func newHarness(t *testing.T, addr string, register func(*server.Server)) *harness {
	t.Helper()
	broker := transport.NewInmemBroker()
	listener := broker.Listen(addr)

	srvCh := make(chan *server.Server, 1)
	go func() {
		pub, sub, err := listener.Accept()
		if err != nil {
			close(srvCh)
			return
		}
		srv, err := server.NewServer(pub, sub, rpcconfig.DefaultServerConfig(), metrics.NewMonitoringService(), nil)
		if err != nil {
			close(srvCh)
			return
		}
		register(srv)
		if err := srv.Start(); err != nil {
			close(srvCh)
			return
		}
		srvCh <- srv
	}()

	resolver := registry.NewStaticResolver()
	resolver.Register("Arith", registry.ServiceEndpoint{ID: "1", Channel: addr, Weight: 1})

	cli, err := client.NewClient(transport.InmemDialer{Broker: broker}, resolver, &loadbalance.RoundRobin{}, nil, rpcconfig.DefaultClientConfig())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	srv, ok := <-srvCh
	if !ok || srv == nil {
		t.Fatal("server failed to start")
	}
	return &harness{srv: srv, cli: cli}
}

// Scenario 5: unary echo round-trip.
func TestUnaryEchoRoundTrip(t *testing.T) {
	h := newHarness(t, "scenario-5", func(s *server.Server) {
		s.RegisterUnary("echo", func(ctx context.Context, payload []byte) ([]byte, error) {
			return payload, nil
		})
	})
	defer h.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := h.cli.Call(ctx, "Arith", "echo", []byte("Hello RPC!"))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if string(resp) != "Hello RPC!" {
		t.Fatalf("got %q, want %q", resp, "Hello RPC!")
	}
}

// Scenario 6: fan-in (MANY_TO_ONE) — three concurrent callers hitting a
// shared counter service.
func TestFanInCounterService(t *testing.T) {
	var counter int64
	h := newHarness(t, "scenario-6", func(s *server.Server) {
		s.RegisterUnary("increment", func(ctx context.Context, payload []byte) ([]byte, error) {
			n := atomic.AddInt64(&counter, 1)
			return []byte(fmt.Sprintf("%d", n)), nil
		})
	})
	defer h.Close()

	results := make(chan string, 3)
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := h.cli.Call(context.Background(), "Arith", "increment", nil)
			if err != nil {
				t.Errorf("Call: %v", err)
				return
			}
			results <- string(resp)
		}()
	}
	wg.Wait()
	close(results)

	seen := map[string]bool{}
	for r := range results {
		seen[r] = true
	}
	if len(seen) != 3 || !seen["1"] || !seen["2"] || !seen["3"] {
		t.Fatalf("got results %v, want {1,2,3}", seen)
	}
	if atomic.LoadInt64(&counter) != 3 {
		t.Fatalf("got counter=%d, want 3", counter)
	}
}

// Scenario 7: server streaming — numbers(n) emits 1..=n then completes.
func TestServerStreamingNumbers(t *testing.T) {
	h := newHarness(t, "scenario-7", func(s *server.Server) {
		s.RegisterStream("numbers", func(ctx context.Context, payload []byte, sink server.StreamSink) {
			n := int(payload[0])
			for i := 1; i <= n; i++ {
				sink.OnNext([]byte{byte(i)})
			}
			sink.OnComplete()
		})
	})
	defer h.Close()

	var mu sync.Mutex
	var values []int
	sum := 0
	done := make(chan error, 1)
	sink := numbersSink{
		onNext: func(p []byte) {
			mu.Lock()
			defer mu.Unlock()
			v := int(p[0])
			values = append(values, v)
			sum += v
		},
		onComplete: func() { done <- nil },
		onError:    func(err error) { done <- err },
	}

	if err := h.cli.Stream(context.Background(), "Arith", "numbers", []byte{5}, sink); err != nil {
		t.Fatalf("Stream: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for stream completion")
	}

	mu.Lock()
	defer mu.Unlock()
	if fmt.Sprint(values) != "[1 2 3 4 5]" {
		t.Fatalf("got %v, want [1 2 3 4 5]", values)
	}
	if sum != 15 {
		t.Fatalf("got sum=%d, want 15", sum)
	}
}

// Scenario 8: server error — the handler's error text reaches the
// caller. The client returns a plain error built from the ERROR payload,
// not a *rpcerrors.HandlerError, and its message contains the original
// text.
func TestServerHandlerError(t *testing.T) {
	h := newHarness(t, "scenario-8", func(s *server.Server) {
		s.RegisterUnary("boom", func(ctx context.Context, payload []byte) ([]byte, error) {
			return nil, errors.New("Test error")
		})
	})
	defer h.Close()

	_, err := h.cli.Call(context.Background(), "Arith", "boom", nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "Test error") {
		t.Fatalf("got error %q, want it to contain %q", err.Error(), "Test error")
	}
}

// Scenario 9: reply timeout — with T=200ms and nothing on the other end
// ever replying, the client observes ReplyTimeout by t=400ms.
func TestReplyTimeoutWithoutHandler(t *testing.T) {
	broker := transport.NewInmemBroker()
	addr := "scenario-9"
	listener := broker.Listen(addr)
	go listener.Accept() // accepts but never registers a handler or starts a server

	resolver := registry.NewStaticResolver()
	resolver.Register("Arith", registry.ServiceEndpoint{ID: "1", Channel: addr})

	cfg := rpcconfig.DefaultClientConfig()
	cfg.Timeout = 200 * time.Millisecond
	cfg.ReaperInterval = 50 * time.Millisecond

	cli, err := client.NewClient(transport.InmemDialer{Broker: broker}, resolver, &loadbalance.RoundRobin{}, nil, cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer cli.Close()

	start := time.Now()
	_, err = cli.Call(context.Background(), "Arith", "never-registered", nil)
	elapsed := time.Since(start)

	if !errors.Is(err, rpcerrors.ErrReplyTimeout) {
		t.Fatalf("got %v, want ErrReplyTimeout", err)
	}
	if elapsed > 400*time.Millisecond {
		t.Fatalf("took %v, want under 400ms", elapsed)
	}
}

type numbersSink struct {
	onNext     func([]byte)
	onError    func(error)
	onComplete func()
}

func (s numbersSink) OnNext(p []byte) { s.onNext(p) }
func (s numbersSink) OnError(e error) { s.onError(e) }
func (s numbersSink) OnComplete()     { s.onComplete() }

var _ pending.StreamSink = numbersSink{}
