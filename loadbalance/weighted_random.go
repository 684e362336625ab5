package loadbalance

import (
	"math/rand"

	"aeronrpc/registry"
)

// Random picks uniformly among endpoints, ignoring weight.
type Random struct{}

func (Random) Pick(serviceName string, endpoints []registry.ServiceEndpoint) (*registry.ServiceEndpoint, bool) {
	if len(endpoints) == 0 {
		return nil, false
	}
	e := endpoints[rand.Intn(len(endpoints))]
	return &e, true
}

func (Random) Name() string { return "Random" }

// WeightedRandom picks an endpoint with probability proportional to its
// weight, via cumulative-sum selection over a single random draw in
// [0, totalWeight). Endpoints with weight 0 are never selected unless
// every endpoint has weight 0, in which case it falls back to uniform.
type WeightedRandom struct{}

func (WeightedRandom) Pick(serviceName string, endpoints []registry.ServiceEndpoint) (*registry.ServiceEndpoint, bool) {
	if len(endpoints) == 0 {
		return nil, false
	}

	var total int32
	for _, e := range endpoints {
		total += e.Weight
	}
	if total <= 0 {
		e := endpoints[rand.Intn(len(endpoints))]
		return &e, true
	}

	r := rand.Int31n(total)
	for _, e := range endpoints {
		r -= e.Weight
		if r < 0 {
			return &e, true
		}
	}
	// Unreachable given the loop invariant, but keep Pick total.
	e := endpoints[len(endpoints)-1]
	return &e, true
}

func (WeightedRandom) Name() string { return "WeightedRandom" }
