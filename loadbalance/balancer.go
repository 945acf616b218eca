// Package loadbalance picks one endpoint when a service name resolves to several
// running instances (e.g. one chemistry service per catalog shard).
//
// Two strategies are implemented:
//   - RoundRobin:      equal-capacity instances
//   - WeightedRandom:  heterogeneous instances (bigger catalogs, faster hosts)
package loadbalance

import (
	"errors"

	"chemrpc/registry"
)

// Strategy names as they appear in config files.
const (
	RoundRobin     = "round_robin"
	WeightedRandom = "weighted_random"
)

// ErrNoInstances is returned when there is nothing to pick from.
var ErrNoInstances = errors.New("loadbalance: no instances available")

// Balancer is the interface for load balancing strategies.
// The client calls Pick() once per dial, so it must be goroutine-safe.
type Balancer interface {
	// Pick selects one instance from the available list.
	Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error)

	// Name returns the strategy's config name.
	Name() string
}

// ByName returns the balancer for a config name; unknown names get round robin.
func ByName(name string) Balancer {
	if name == WeightedRandom {
		return &WeightedRandomBalancer{}
	}
	return &RoundRobinBalancer{}
}
