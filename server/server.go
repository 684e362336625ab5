// Package server implements the RPC server dispatch engine: an explicit
// Handler registry (no reflection), a bounded worker pool, and a single
// poll loop reading the request subscription and replying on the
// publication — the same read/dispatch/reply shape as a connection
// handler loop, generalized from one TCP connection per client to one
// substrate Publication/Subscription pair shared by every caller.
package server

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"aeronrpc/idle"
	"aeronrpc/message"
	"aeronrpc/metrics"
	"aeronrpc/middleware"
	"aeronrpc/rpcconfig"
	"aeronrpc/rpcerrors"
	"aeronrpc/transport"
)

// State is the server's lifecycle state, advanced only via
// compare-and-swap so Start/Close are safe to call concurrently and
// idempotently.
type State int32

const (
	StateNew State = iota
	StateStarting
	StateRunning
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// UnaryHandler processes one request and returns its reply payload, or
// an error to be forwarded to the caller as an ERROR frame.
type UnaryHandler func(ctx context.Context, payload []byte) ([]byte, error)

// StreamSink is the handler-facing side of a streaming reply: OnNext
// for each value, then exactly one of OnError/OnComplete. Calls after
// the first terminal call are silently dropped.
type StreamSink interface {
	OnNext(payload []byte)
	OnError(err error)
	OnComplete()
}

// StreamHandler processes one streaming request, emitting values and a
// terminal signal through sink. The handler owns sink's lifetime for
// the duration of the call; it must eventually call OnComplete or
// OnError exactly once.
type StreamHandler func(ctx context.Context, payload []byte, sink StreamSink)

type handlerEntry struct {
	unary    UnaryHandler
	stream   StreamHandler
	isStream bool
}

// Server is the RPC server dispatch engine: handler registry, worker pool,
// and poll loop.
type Server struct {
	state atomic.Int32

	mu       sync.RWMutex
	handlers map[string]handlerEntry

	pub transport.Publication
	sub transport.Subscription

	cfg          rpcconfig.ServerConfig
	idleStrategy idle.Strategy
	metricsSink  metrics.MonitoringSink
	middlewares  []middleware.Middleware

	// admission is an optional coarse global ceiling, independent of
	// whatever per-client token bucket the client engine enforces on
	// its own side. nil means no global gate.
	admission *rate.Limiter

	workQueue chan func()
	workers   sync.WaitGroup

	stopPoll chan struct{}
	pollDone chan struct{}
}

// NewServer builds a server around one Publication/Subscription pair.
// cfg is validated in place; pass a zero-valued rpcconfig.ServerConfig
// to accept its defaults.
func NewServer(pub transport.Publication, sub transport.Subscription, cfg rpcconfig.ServerConfig, sink metrics.MonitoringSink, idleStrategy idle.Strategy) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = metrics.NewMonitoringService()
	}
	if idleStrategy == nil {
		idleStrategy = idle.NewBackoff()
	}
	return &Server{
		handlers:     make(map[string]handlerEntry),
		pub:          pub,
		sub:          sub,
		cfg:          cfg,
		idleStrategy: idleStrategy,
		metricsSink:  sink,
		workQueue:    make(chan func(), cfg.QueueCapacity),
		stopPoll:     make(chan struct{}),
		pollDone:     make(chan struct{}),
	}, nil
}

// Use registers a middleware applied to every unary handler invocation,
// in the order added. Must be called before Start. Streaming handlers
// bypass the chain entirely.
func (s *Server) Use(mw middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw)
}

// WithAdmissionGate attaches a coarse golang.org/x/time/rate limiter as
// a global ceiling above every per-client ratelimit.TokenBucket — a
// second, independent layer of admission control, not a replacement.
// Must be called before Start.
func (s *Server) WithAdmissionGate(limit rate.Limit, burst int) {
	s.admission = rate.NewLimiter(limit, burst)
}

// RegisterUnary registers a unary handler under name. Must be called
// before Start. Returns rpcerrors.ErrDuplicateHandler if name is
// already registered.
func (s *Server) RegisterUnary(name string, h UnaryHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.handlers[name]; exists {
		return rpcerrors.ErrDuplicateHandler
	}
	s.handlers[name] = handlerEntry{unary: h}
	return nil
}

// RegisterStream registers a streaming handler under name. Must be
// called before Start.
func (s *Server) RegisterStream(name string, h StreamHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.handlers[name]; exists {
		return rpcerrors.ErrDuplicateHandler
	}
	s.handlers[name] = handlerEntry{stream: h, isStream: true}
	return nil
}

func (s *Server) lookup(name string) (handlerEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.handlers[name]
	return e, ok
}

// Start transitions NEW -> STARTING -> RUNNING, spins up the worker
// pool, and launches the poll loop. Calling Start twice is an error:
// the second caller's CAS fails and it gets an error naming the state
// the server was in.
func (s *Server) Start() error {
	if !s.state.CompareAndSwap(int32(StateNew), int32(StateStarting)) {
		return fmt.Errorf("rpc: server Start called from state %s, want NEW", State(s.state.Load()))
	}

	for i := 0; i < s.cfg.MaxWorkers; i++ {
		s.workers.Add(1)
		go s.runWorker()
	}

	s.state.Store(int32(StateRunning))
	go s.pollLoop()
	return nil
}

func (s *Server) runWorker() {
	defer s.workers.Done()
	for task := range s.workQueue {
		task()
	}
}

func (s *Server) pollLoop() {
	defer close(s.pollDone)
	for {
		select {
		case <-s.stopPoll:
			return
		default:
		}

		n, err := s.sub.Poll(s.onFrame, s.cfg.FragmentLimit)
		if err != nil {
			log.Printf("server: subscription closed, stopping poll loop: %v", err)
			go s.Close()
			return
		}
		s.idleStrategy.Idle(n)
	}
}

// onFrame is the per-fragment handler passed to Subscription.Poll. It
// never blocks on send — lookups miss and admission denials reply with
// a single, non-retrying Offer from the poll goroutine itself, so it
// never blocks the poll loop on a send.
func (s *Server) onFrame(data []byte) {
	req, err := message.Decode(data)
	if err != nil {
		log.Printf("server: dropping malformed frame: %v", err)
		return
	}
	if req.Type != message.TypeRequest {
		return // replies/completions never arrive on the request subscription
	}

	s.metricsSink.RecordRequest(req.ServiceName)

	if s.admission != nil && !s.admission.Allow() {
		s.replyImmediate(errorMessage(req, "RateLimited"))
		return
	}

	entry, ok := s.lookup(req.ServiceName)
	if !ok {
		s.replyImmediate(errorMessage(req, fmt.Sprintf("ServiceNotFound: %s", req.ServiceName)))
		return
	}

	var task func()
	if entry.isStream {
		task = func() { s.handleStream(req, entry.stream) }
	} else {
		task = func() { s.handleUnary(req, entry.unary) }
	}

	select {
	case s.workQueue <- task:
	default:
		s.metricsSink.RecordError(req.ServiceName, false)
		s.replyImmediate(errorMessage(req, "Overloaded"))
	}
}

func errorMessage(req *message.RPCMessage, text string) *message.RPCMessage {
	return &message.RPCMessage{
		RequestID:   req.RequestID,
		Type:        message.TypeError,
		ServiceName: req.ServiceName,
		MethodName:  req.MethodName,
		Payload:     []byte(text),
	}
}

func (s *Server) handleUnary(req *message.RPCMessage, h UnaryHandler) {
	ctx := context.Background()
	start := time.Now()

	dispatch := func(ctx context.Context, req *message.RPCMessage) *message.RPCMessage {
		payload, err := h(ctx, req.Payload)
		if err != nil {
			herr := rpcerrors.NewHandlerError(req.ServiceName, req.MethodName, err)
			return errorMessage(req, herr.Error())
		}
		return &message.RPCMessage{
			RequestID:   req.RequestID,
			Type:        message.TypeResponse,
			ServiceName: req.ServiceName,
			MethodName:  req.MethodName,
			Payload:     payload,
		}
	}

	resp := middleware.Chain(s.middlewares...)(dispatch)(ctx, req)
	duration := time.Since(start)
	if resp.Type == message.TypeError {
		s.metricsSink.RecordError(req.ServiceName, false)
	} else {
		s.metricsSink.RecordResponse(req.ServiceName, len(resp.Payload), duration)
	}
	s.sendWithBackpressure(resp)
}

func (s *Server) handleStream(req *message.RPCMessage, h StreamHandler) {
	sink := &serverStreamSink{srv: s, req: req, start: time.Now()}
	h(context.Background(), req.Payload, sink)
}

// serverStreamSink implements StreamSink over the server's reply
// publication. OnNext may be called from the worker goroutine running
// the handler only (one handler invocation owns one
// sink), but the mutex still guards against a handler that spawns its
// own goroutines to call back into the sink concurrently.
type serverStreamSink struct {
	mu        sync.Mutex
	srv       *Server
	req       *message.RPCMessage
	done      bool
	start     time.Time
	bytesSent int
}

func (sk *serverStreamSink) OnNext(payload []byte) {
	sk.mu.Lock()
	defer sk.mu.Unlock()
	if sk.done {
		return
	}
	sk.srv.sendWithBackpressure(&message.RPCMessage{
		RequestID:   sk.req.RequestID,
		Type:        message.TypeResponse,
		ServiceName: sk.req.ServiceName,
		MethodName:  sk.req.MethodName,
		Payload:     payload,
	})
	sk.bytesSent += len(payload)
}

func (sk *serverStreamSink) OnError(err error) {
	sk.mu.Lock()
	defer sk.mu.Unlock()
	if sk.done {
		return
	}
	sk.done = true
	sk.srv.sendWithBackpressure(errorMessage(sk.req, err.Error()))
	sk.srv.metricsSink.RecordError(sk.req.ServiceName, false)
}

func (sk *serverStreamSink) OnComplete() {
	sk.mu.Lock()
	defer sk.mu.Unlock()
	if sk.done {
		return
	}
	sk.done = true
	sk.srv.sendWithBackpressure(&message.RPCMessage{
		RequestID:   sk.req.RequestID,
		Type:        message.TypeComplete,
		ServiceName: sk.req.ServiceName,
		MethodName:  sk.req.MethodName,
	})
	sk.srv.metricsSink.RecordResponse(sk.req.ServiceName, sk.bytesSent, time.Since(sk.start))
}

// replyImmediate makes exactly one non-retrying Offer attempt — for use
// directly on the poll goroutine, which must never block on send.
func (s *Server) replyImmediate(msg *message.RPCMessage) {
	if _, err := s.pub.Offer(message.Encode(msg)); err != nil {
		log.Printf("server: immediate reply offer failed: %v", err)
	}
}

// sendWithBackpressure retries a back-pressured Offer with the idle
// strategy up to cfg.SendDeadline; on exceeding it, records a dropped
// reply and attempts exactly one final ERROR emission. Called only from
// worker goroutines, never the poll loop.
func (s *Server) sendWithBackpressure(msg *message.RPCMessage) {
	data := message.Encode(msg)
	deadline := time.Now().Add(s.cfg.SendDeadline)
	// A fresh strategy per call: Backoff carries mutable ladder state
	// that isn't safe to share across the concurrent worker goroutines
	// calling this method.
	backoff := idle.NewBackoff()

	for {
		res, err := s.pub.Offer(data)
		if err != nil {
			log.Printf("server: reply offer failed: %v", err)
			return
		}
		switch res {
		case transport.Accepted:
			return
		case transport.Closed:
			return
		case transport.BackPressured:
			if time.Now().After(deadline) {
				s.metricsSink.RecordError(msg.ServiceName, false)
				s.pub.Offer(message.Encode(errorMessage(msg, "reply dropped: back-pressure exceeded send deadline")))
				return
			}
			backoff.Idle(0)
		}
	}
}

// Close transitions to CLOSING, stops the poll loop, drains the worker
// pool, and releases the publication/subscription. Idempotent: a
// second call while already CLOSING/CLOSED is a no-op.
func (s *Server) Close() error {
	for {
		cur := State(s.state.Load())
		if cur == StateClosing || cur == StateClosed {
			return nil
		}
		if s.state.CompareAndSwap(int32(cur), int32(StateClosing)) {
			break
		}
	}

	close(s.stopPoll)
	<-s.pollDone
	close(s.workQueue)
	s.workers.Wait()

	s.sub.Close()
	s.pub.Close()

	s.state.Store(int32(StateClosed))
	return nil
}

// State returns the server's current lifecycle state.
func (s *Server) State() State {
	return State(s.state.Load())
}
