// Package registry provides the endpoint resolver contract the client
// engine and load balancer consume, plus two implementations: a static
// in-memory resolver for tests and single-process wiring, and an
// etcd-backed resolver for real service discovery.
//
// Service discovery itself is a peripheral adapter, not part of the
// core: the client and server packages only ever depend on
// EndpointResolver, never on a concrete registry.
package registry

import "fmt"

// ServiceEndpoint describes one routable instance of a service.
type ServiceEndpoint struct {
	ID       string
	Host     string
	Port     int
	Channel  string // substrate address the client dials: "host:port" for TCP, a listener name in-process
	StreamID int
	Weight   int32
	Version  string // semver(major.minor.patch)
}

// Addr is the "host:port" form used when the endpoint's channel is a
// plain TCP binding.
func (e ServiceEndpoint) Addr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// EndpointResolver resolves a service name to its candidate endpoints.
// The order of the returned slice is significant: the SWRR balancer uses
// it to break ties deterministically, so a resolver SHOULD return
// endpoints in a stable order across calls when the underlying set is
// unchanged. An empty (nil or zero-length) result is valid and means "no
// endpoints currently available" — not an error.
type EndpointResolver interface {
	FindEndpoints(serviceName string) ([]ServiceEndpoint, error)
}
