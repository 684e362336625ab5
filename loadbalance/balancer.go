// Package loadbalance provides load balancing strategies for selecting a
// service endpoint from a candidate set. Smooth Weighted Round-Robin
// (SWRR) is the default and the only strategy with the mandated
// distribution/sequence properties; RoundRobin, Random, WeightedRandom,
// and LeastConnections are included as peer strategies for callers that
// don't need weighted fairness.
package loadbalance

import "aeronrpc/registry"

// Balancer selects one endpoint from a candidate list. Implementations
// must be goroutine-safe: Pick is called on every RPC.
type Balancer interface {
	// Pick selects one endpoint for serviceName among endpoints. Returns
	// ok=false if endpoints is empty — callers should treat that as
	// rpcerrors.ErrNoEndpoints, not as an error from the balancer itself.
	Pick(serviceName string, endpoints []registry.ServiceEndpoint) (endpoint *registry.ServiceEndpoint, ok bool)

	// Name returns the strategy name, for logging/debugging.
	Name() string
}
