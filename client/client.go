// Package client implements the RPC client dispatch engine: per-endpoint
// send/poll/reaper loops multiplexed behind one Client, each endpoint
// dialed lazily into its own engine — one Publication, Subscription,
// and pending.Table per endpoint, so every engine owns its own
// correlation state independent of the others.
package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"aeronrpc/idle"
	"aeronrpc/loadbalance"
	"aeronrpc/message"
	"aeronrpc/pending"
	"aeronrpc/ratelimit"
	"aeronrpc/registry"
	"aeronrpc/rpcconfig"
	"aeronrpc/rpcerrors"
	"aeronrpc/transport"
)

// Client multiplexes calls across the endpoints an EndpointResolver and
// Balancer select, dialing and tearing down one endpointEngine per
// resolved address lazily.
type Client struct {
	dialer   transport.Dialer
	resolver registry.EndpointResolver
	balancer loadbalance.Balancer
	limiter  *ratelimit.TokenBucket // nil means no admission control
	cfg      rpcconfig.ClientConfig

	mu      sync.Mutex
	engines map[string]*endpointEngine
	closed  atomic.Bool
}

// NewClient builds a Client. limiter may be nil to disable client-side
// rate limiting. cfg is validated in place.
func NewClient(dialer transport.Dialer, resolver registry.EndpointResolver, balancer loadbalance.Balancer, limiter *ratelimit.TokenBucket, cfg rpcconfig.ClientConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		dialer:   dialer,
		resolver: resolver,
		balancer: balancer,
		limiter:  limiter,
		cfg:      cfg,
		engines:  make(map[string]*endpointEngine),
	}, nil
}

// Call issues a unary request and blocks until the reply arrives, the
// deadline elapses, or ctx is cancelled.
func (c *Client) Call(ctx context.Context, service, method string, payload []byte) ([]byte, error) {
	eng, ep, err := c.prepare(ctx, service)
	if err != nil {
		return nil, err
	}

	if lc, ok := c.balancer.(*loadbalance.LeastConnections); ok {
		lc.Increment(ep.ID)
		defer lc.Decrement(ep.ID)
	}

	deadline := time.Now().Add(c.cfg.Timeout)
	id := eng.nextID.Add(1)
	entry := pending.NewUnaryEntry(id, deadline)
	if err := eng.pendingTable.Insert(entry); err != nil {
		return nil, err
	}

	req := &message.RPCMessage{RequestID: id, Type: message.TypeRequest, ServiceName: service, MethodName: method, Payload: payload}
	if err := eng.send(req, deadline); err != nil {
		eng.pendingTable.Remove(id)
		return nil, err
	}

	select {
	case res := <-entry.Done():
		return res.Payload, res.Err
	case <-ctx.Done():
		eng.pendingTable.Remove(id)
		return nil, ctx.Err()
	}
}

// Stream issues a streaming request. It returns once the request is
// accepted by the transport; payloads and the terminal signal arrive
// asynchronously via sink, applying the same per-call deadline T to the
// whole stream (a long-lived legitimate stream that outlives T is cut
// short by the reaper — callers needing longer-lived streams should size
// cfg.Timeout accordingly, since the wire protocol has no separate
// per-stream lease).
func (c *Client) Stream(ctx context.Context, service, method string, payload []byte, sink pending.StreamSink) error {
	eng, _, err := c.prepare(ctx, service)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(c.cfg.Timeout)
	id := eng.nextID.Add(1)
	entry := pending.NewStreamEntry(id, deadline, sink)
	if err := eng.pendingTable.Insert(entry); err != nil {
		return err
	}

	req := &message.RPCMessage{RequestID: id, Type: message.TypeRequest, ServiceName: service, MethodName: method, Payload: payload}
	if err := eng.send(req, deadline); err != nil {
		eng.pendingTable.Remove(id)
		return err
	}
	return nil
}

// prepare runs the admission/resolve/pick/dial steps shared by Call and
// Stream.
func (c *Client) prepare(ctx context.Context, service string) (*endpointEngine, registry.ServiceEndpoint, error) {
	if c.closed.Load() {
		return nil, registry.ServiceEndpoint{}, rpcerrors.ErrClosed
	}
	if c.limiter != nil && !c.limiter.Allow() {
		return nil, registry.ServiceEndpoint{}, rpcerrors.ErrRateLimited
	}

	endpoints, err := c.resolver.FindEndpoints(service)
	if err != nil {
		return nil, registry.ServiceEndpoint{}, err
	}
	if len(endpoints) == 0 {
		return nil, registry.ServiceEndpoint{}, rpcerrors.ErrNoEndpoints
	}

	ep, ok := c.balancer.Pick(service, endpoints)
	if !ok {
		return nil, registry.ServiceEndpoint{}, rpcerrors.ErrNoEndpoints
	}

	eng, err := c.engineFor(ctx, *ep)
	if err != nil {
		return nil, registry.ServiceEndpoint{}, err
	}
	return eng, *ep, nil
}

func (c *Client) engineFor(ctx context.Context, ep registry.ServiceEndpoint) (*endpointEngine, error) {
	// Channel is the generic substrate address (e.g. an in-process
	// listener name or a TCP "host:port"); Addr() is only a TCP-binding
	// fallback for endpoints that never set one.
	key := ep.Channel
	if key == "" {
		key = ep.Addr()
	}

	c.mu.Lock()
	eng, ok := c.engines[key]
	c.mu.Unlock()
	if ok {
		return eng, nil
	}

	pub, sub, err := c.dialer.Dial(ctx, transport.Channel{Addr: key, StreamID: ep.StreamID})
	if err != nil {
		return nil, err
	}
	eng = newEndpointEngine(pub, sub, c.cfg)

	c.mu.Lock()
	if existing, ok := c.engines[key]; ok {
		c.mu.Unlock()
		eng.close()
		return existing, nil
	}
	c.engines[key] = eng
	c.mu.Unlock()
	return eng, nil
}

// Close transitions the client to CLOSING, stopping and draining every
// per-endpoint engine. Idempotent.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.mu.Lock()
	engines := c.engines
	c.engines = make(map[string]*endpointEngine)
	c.mu.Unlock()

	for _, eng := range engines {
		eng.close()
	}
	return nil
}

// endpointEngine owns one Publication/Subscription pair to a single
// resolved endpoint, along with its own send/poll/reaper loops and
// pending table, independent of every other endpoint's state.
type endpointEngine struct {
	pub transport.Publication
	sub transport.Subscription

	pendingTable *pending.Table
	nextID       atomic.Uint64
	cfg          rpcconfig.ClientConfig

	stopPoll   chan struct{}
	pollDone   chan struct{}
	stopReaper chan struct{}
	reaperDone chan struct{}
}

func newEndpointEngine(pub transport.Publication, sub transport.Subscription, cfg rpcconfig.ClientConfig) *endpointEngine {
	e := &endpointEngine{
		pub:          pub,
		sub:          sub,
		pendingTable: pending.NewTable(),
		cfg:          cfg,
		stopPoll:     make(chan struct{}),
		pollDone:     make(chan struct{}),
		stopReaper:   make(chan struct{}),
		reaperDone:   make(chan struct{}),
	}
	go e.pollLoop()
	go e.reaperLoop()
	return e
}

func (e *endpointEngine) pollLoop() {
	defer close(e.pollDone)
	backoff := idle.NewBackoff()
	for {
		select {
		case <-e.stopPoll:
			return
		default:
		}

		n, err := e.sub.Poll(e.onFrame, e.cfg.FragmentLimit)
		if err != nil {
			return
		}
		backoff.Idle(n)
	}
}

// onFrame routes one decoded reply frame to its pending entry, per
// the reply-poll dispatch table. A frame whose id has no
// entry is a stale reply (already timed out or delivered) and is
// dropped silently.
func (e *endpointEngine) onFrame(data []byte) {
	msg, err := message.Decode(data)
	if err != nil {
		return
	}

	entry := e.pendingTable.Peek(msg.RequestID)
	if entry == nil {
		return
	}

	switch msg.Type {
	case message.TypeResponse:
		if entry.IsStreaming() {
			e.pendingTable.DeliverNext(msg.RequestID, msg.Payload)
		} else {
			e.pendingTable.CompleteUnary(msg.RequestID, pending.Result{Payload: msg.Payload})
		}
	case message.TypeError:
		cause := errors.New(string(msg.Payload))
		if entry.IsStreaming() {
			e.pendingTable.CompleteStreamError(msg.RequestID, cause)
		} else {
			e.pendingTable.CompleteUnary(msg.RequestID, pending.Result{Err: cause})
		}
	case message.TypeComplete:
		e.pendingTable.CompleteStreamDone(msg.RequestID)
	}
}

func (e *endpointEngine) reaperLoop() {
	defer close(e.reaperDone)
	ticker := time.NewTicker(e.cfg.ReaperInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopReaper:
			return
		case <-ticker.C:
			e.pendingTable.SweepExpired(time.Now())
		}
	}
}

// send offers req, retrying against back-pressure with a fresh idle
// strategy up to deadline.
func (e *endpointEngine) send(req *message.RPCMessage, deadline time.Time) error {
	data := message.Encode(req)
	backoff := idle.NewBackoff()
	for {
		res, err := e.pub.Offer(data)
		if err != nil {
			return err
		}
		switch res {
		case transport.Accepted:
			return nil
		case transport.Closed:
			return rpcerrors.ErrClosed
		case transport.BackPressured:
			if time.Now().After(deadline) {
				return rpcerrors.ErrSendTimeout
			}
			backoff.Idle(0)
		}
	}
}

// close stops both loops and cancels every entry still pending, per
// the shutdown sequence.
func (e *endpointEngine) close() {
	close(e.stopPoll)
	close(e.stopReaper)
	<-e.pollDone
	<-e.reaperDone
	e.pendingTable.DrainCancelled()
	e.sub.Close()
	e.pub.Close()
}
