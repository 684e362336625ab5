package loadbalance

import (
	"sync/atomic"

	"aeronrpc/registry"
)

// RoundRobin distributes requests evenly across all endpoints in order.
// Uses an atomic counter for lock-free, goroutine-safe operation. It
// ignores weight entirely — SWRR is the weighted default; this exists
// for callers that want uniform rotation regardless of weight.
type RoundRobin struct {
	counter atomic.Int64
}

func (b *RoundRobin) Pick(serviceName string, endpoints []registry.ServiceEndpoint) (*registry.ServiceEndpoint, bool) {
	if len(endpoints) == 0 {
		return nil, false
	}
	index := b.counter.Add(1) % int64(len(endpoints))
	e := endpoints[index]
	return &e, true
}

func (b *RoundRobin) Name() string { return "RoundRobin" }
