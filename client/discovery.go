package client

import (
	"context"
	"fmt"

	"chemrpc/loadbalance"
	"chemrpc/registry"
)

// DialService resolves serviceName through reg, lets bal pick one endpoint and dials it.
// A nil bal means round robin. The dial is attempted once; a dead endpoint surfaces as
// *transport.ConnectError like any other Dial.
func DialService(ctx context.Context, reg registry.Registry, bal loadbalance.Balancer, serviceName string, opts ...Option) (*Client, error) {
	instances, err := reg.Discover(serviceName)
	if err != nil {
		return nil, fmt.Errorf("client: discover %s: %w", serviceName, err)
	}
	if bal == nil {
		bal = &loadbalance.RoundRobinBalancer{}
	}
	inst, err := bal.Pick(instances)
	if err != nil {
		return nil, fmt.Errorf("client: pick %s: %w", serviceName, err)
	}
	return Dial(ctx, inst.Endpoint, opts...)
}
