package loadbalance

import (
	"sync"

	"aeronrpc/registry"
)

// LeastConnections selects the endpoint with the minimum externally
// reported in-flight count, ties broken by list order. The client must
// call Increment before a send and Decrement once
// the corresponding reply (or timeout) lands — this balancer only reads
// that count; it never manages the lifecycle itself.
type LeastConnections struct {
	mu    sync.Mutex
	inUse map[string]int // endpoint ID -> in-flight count
}

// NewLeastConnections builds an empty LeastConnections balancer.
func NewLeastConnections() *LeastConnections {
	return &LeastConnections{inUse: make(map[string]int)}
}

func (b *LeastConnections) Pick(serviceName string, endpoints []registry.ServiceEndpoint) (*registry.ServiceEndpoint, bool) {
	if len(endpoints) == 0 {
		return nil, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	best := endpoints[0]
	bestCount := b.inUse[best.ID]
	for _, e := range endpoints[1:] {
		if c := b.inUse[e.ID]; c < bestCount {
			best, bestCount = e, c
		}
	}
	return &best, true
}

func (b *LeastConnections) Name() string { return "LeastConnections" }

// Increment records one more in-flight send to endpointID. Call before
// offering the request.
func (b *LeastConnections) Increment(endpointID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inUse[endpointID]++
}

// Decrement records that an in-flight send to endpointID has completed
// (by reply or timeout). Call exactly once per matching Increment.
func (b *LeastConnections) Decrement(endpointID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inUse[endpointID] > 0 {
		b.inUse[endpointID]--
	}
}
