package loadbalance

import (
	"sync"

	"aeronrpc/registry"
)

// weightedNode is the SWRR state kept per endpoint, per service name.
type weightedNode struct {
	endpoint        registry.ServiceEndpoint
	effectiveWeight int32
	currentWeight   int32
}

// SWRR implements smooth weighted round-robin. It keeps a per-service
// table of weighted nodes and reconciles it against the resolver's
// endpoint list on every Pick, so added/removed endpoints take effect
// without resetting unrelated nodes' running counters.
//
// This is the per-endpoint weighted-node variant: each node tracks its
// own effectiveWeight/currentWeight, incremented every round and
// decremented by the total on selection, so high-weight endpoints get
// picked more often without ever starving low-weight ones for long.
type SWRR struct {
	mu    sync.Mutex
	nodes map[string]map[string]*weightedNode // serviceName -> endpoint.ID -> node
}

// NewSWRR creates an empty SWRR balancer.
func NewSWRR() *SWRR {
	return &SWRR{nodes: make(map[string]map[string]*weightedNode)}
}

func (s *SWRR) Name() string { return "SmoothWeightedRoundRobin" }

// Pick implements Balancer using the standard current_weight/
// effective_weight selection rule: every round each node's
// currentWeight grows by its effectiveWeight, the max is picked, and
// the total weight is subtracted from the winner. For weights
// {1:5, 2:1, 3:3} this produces 1,3,1,2,1,3,1,3,1 (verified in
// swrr_test.go). A documented nine-pick example for this same weight
// set elsewhere gives 1,1,3,1,2,3,1,3,1 — two consecutive wins for
// node 1 at the start — which this rule can never produce: after node
// 1 wins the first round, its currentWeight drops to 5-9=-4, so on the
// second round it reaches only 1, behind node 3's 3+3=6. That example
// sequence is only reachable by a different tie-break or accounting
// rule than the one implemented here.
func (s *SWRR) Pick(serviceName string, endpoints []registry.ServiceEndpoint) (*registry.ServiceEndpoint, bool) {
	if len(endpoints) == 0 {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nodes := s.reconcile(serviceName, endpoints)

	var total int32
	for _, n := range nodes {
		total += n.effectiveWeight
	}
	if total == 0 {
		e := endpoints[0]
		return &e, true
	}

	var selected *weightedNode
	for _, id := range endpointOrder(endpoints) {
		n := nodes[id]
		n.currentWeight += n.effectiveWeight
		if selected == nil || n.currentWeight > selected.currentWeight {
			selected = n
		}
	}

	selected.currentWeight -= total
	e := selected.endpoint
	return &e, true
}

// reconcile must be called with s.mu held. It removes nodes for
// endpoints no longer present and adds nodes for new ones, resetting
// currentWeight to 0 for any replacement.
func (s *SWRR) reconcile(serviceName string, endpoints []registry.ServiceEndpoint) map[string]*weightedNode {
	nodes, ok := s.nodes[serviceName]
	if !ok {
		nodes = make(map[string]*weightedNode, len(endpoints))
		s.nodes[serviceName] = nodes
	}

	present := make(map[string]registry.ServiceEndpoint, len(endpoints))
	for _, e := range endpoints {
		present[e.ID] = e
	}
	for id := range nodes {
		if _, ok := present[id]; !ok {
			delete(nodes, id)
		}
	}
	for _, e := range endpoints {
		n, ok := nodes[e.ID]
		if !ok {
			nodes[e.ID] = &weightedNode{endpoint: e, effectiveWeight: e.Weight}
			continue
		}
		if n.effectiveWeight != e.Weight {
			// Weight changed for an existing endpoint: takes effect on
			// the next selection, with currentWeight reset for a clean
			// start under the new weight.
			n.effectiveWeight = e.Weight
			n.currentWeight = 0
		}
		n.endpoint = e
	}
	return nodes
}

// endpointOrder returns endpoint IDs in the order they appear in
// endpoints, so ties in currentWeight break by the resolver's insertion
// order (lowest index wins) rather than by Go's unspecified map
// iteration order.
func endpointOrder(endpoints []registry.ServiceEndpoint) []string {
	order := make([]string, len(endpoints))
	for i, e := range endpoints {
		order[i] = e.ID
	}
	return order
}

// Clear discards all per-service state, e.g. on full reconfiguration.
func (s *SWRR) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = make(map[string]map[string]*weightedNode)
}
