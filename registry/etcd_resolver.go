// etcd_resolver.go is an etcd-backed EndpointResolver: etcd is the
// "distributed phonebook" (TTL leases plus prefix Watch), with entries
// stored as ServiceEndpoint values.
package registry

import (
	"context"
	"encoding/json"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdResolver implements EndpointResolver (and the registration side of
// service discovery) on top of etcd v3.
//
//	Key:   /aeron-rpc/{ServiceName}/{EndpointID}
//	Value: JSON-encoded ServiceEndpoint
type EtcdResolver struct {
	client *clientv3.Client
}

// NewEtcdResolver connects to the given etcd endpoints.
func NewEtcdResolver(endpoints []string) (*EtcdResolver, error) {
	c, err := clientv3.New(clientv3.Config{Endpoints: endpoints})
	if err != nil {
		return nil, err
	}
	return &EtcdResolver{client: c}, nil
}

const keyPrefix = "/aeron-rpc/"

// Register adds an endpoint under a TTL lease and starts background
// KeepAlive renewal; if the process dies without deregistering, the
// lease expires and the entry disappears on its own.
func (r *EtcdResolver) Register(serviceName string, endpoint ServiceEndpoint, ttl int64) error {
	ctx := context.Background()

	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(endpoint)
	if err != nil {
		return err
	}

	key := keyPrefix + serviceName + "/" + endpoint.ID
	if _, err := r.client.Put(ctx, key, string(val), clientv3.WithLease(lease.ID)); err != nil {
		return err
	}

	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}
	go func() {
		for range ch {
		}
	}()
	return nil
}

// Deregister removes an endpoint immediately, ahead of its lease expiry —
// used on graceful shutdown so other clients stop routing to it without
// waiting out the TTL.
func (r *EtcdResolver) Deregister(serviceName, endpointID string) error {
	_, err := r.client.Delete(context.Background(), keyPrefix+serviceName+"/"+endpointID)
	return err
}

// FindEndpoints implements EndpointResolver.
func (r *EtcdResolver) FindEndpoints(serviceName string) ([]ServiceEndpoint, error) {
	ctx := context.Background()
	prefix := keyPrefix + serviceName + "/"

	resp, err := r.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	endpoints := make([]ServiceEndpoint, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var e ServiceEndpoint
		if err := json.Unmarshal(kv.Value, &e); err != nil {
			continue // skip malformed entries rather than fail the whole lookup
		}
		endpoints = append(endpoints, e)
	}
	return endpoints, nil
}

// Watch emits a fresh endpoint list on any registration change under the
// service's prefix, using etcd's server-push Watch API rather than
// polling.
func (r *EtcdResolver) Watch(serviceName string) <-chan []ServiceEndpoint {
	ctx := context.Background()
	out := make(chan []ServiceEndpoint, 1)
	prefix := keyPrefix + serviceName + "/"

	go func() {
		watchChan := r.client.Watch(ctx, prefix, clientv3.WithPrefix())
		for range watchChan {
			endpoints, err := r.FindEndpoints(serviceName)
			if err == nil {
				out <- endpoints
			}
		}
	}()

	return out
}

// Close releases the underlying etcd client connection.
func (r *EtcdResolver) Close() error {
	return r.client.Close()
}
