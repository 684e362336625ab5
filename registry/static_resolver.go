package registry

import "sync"

// StaticResolver is an in-memory, order-preserving EndpointResolver:
// good enough for single-process wiring and as the default resolver in
// tests, with Register/Deregister so callers can build it up
// incrementally.
type StaticResolver struct {
	mu        sync.Mutex
	endpoints map[string][]ServiceEndpoint
}

// NewStaticResolver builds an empty resolver.
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{endpoints: make(map[string][]ServiceEndpoint)}
}

// Register appends an endpoint for serviceName. Registration order is
// preserved, which matters for SWRR's deterministic tie-break.
func (r *StaticResolver) Register(serviceName string, endpoint ServiceEndpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[serviceName] = append(r.endpoints[serviceName], endpoint)
}

// Deregister removes the first endpoint matching id for serviceName.
func (r *StaticResolver) Deregister(serviceName, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.endpoints[serviceName]
	for i, e := range list {
		if e.ID == id {
			r.endpoints[serviceName] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// FindEndpoints implements EndpointResolver.
func (r *StaticResolver) FindEndpoints(serviceName string) ([]ServiceEndpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Copy out so the balancer's reconciliation never races a concurrent
	// Register/Deregister mutating the backing slice.
	list := r.endpoints[serviceName]
	out := make([]ServiceEndpoint, len(list))
	copy(out, list)
	return out, nil
}
