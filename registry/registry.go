// Package registry maps service names to the local endpoints serving them.
//
// A chemistry service started by the launcher publishes its socket path under its
// service name; callers that only know the name resolve it here before dialing.
package registry

// ServiceInstance is one running service process reachable at Endpoint.
type ServiceInstance struct {
	Endpoint string `json:"endpoint"` // Socket path, e.g. "/tmp/chemdata"
	Weight   int    `json:"weight"`   // Weight for load balancing
	Version  string `json:"version"`
	PID      int    `json:"pid,omitempty"`
}

type Registry interface {
	Register(serviceName string, instance ServiceInstance, ttl int64) error
	Deregister(serviceName string, endpoint string) error
	Discover(serviceName string) ([]ServiceInstance, error)
	Watch(serviceName string) <-chan []ServiceInstance
}
