package registry

import (
	"sync"
)

// MemoryRegistry is an in-process Registry. TTLs are ignored: entries live until
// deregistered. Useful for single-host harnesses and tests that have no etcd.
type MemoryRegistry struct {
	mu        sync.Mutex
	instances map[string][]ServiceInstance
	watchers  map[string][]chan []ServiceInstance
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		instances: make(map[string][]ServiceInstance),
		watchers:  make(map[string][]chan []ServiceInstance),
	}
}

// Register adds or replaces the instance with the same endpoint.
func (m *MemoryRegistry) Register(serviceName string, inst ServiceInstance, ttl int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	insts := m.instances[serviceName]
	for i := range insts {
		if insts[i].Endpoint == inst.Endpoint {
			insts[i] = inst
			m.notify(serviceName)
			return nil
		}
	}
	m.instances[serviceName] = append(insts, inst)
	m.notify(serviceName)
	return nil
}

func (m *MemoryRegistry) Deregister(serviceName string, endpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	insts := m.instances[serviceName]
	for i, inst := range insts {
		if inst.Endpoint == endpoint {
			m.instances[serviceName] = append(insts[:i:i], insts[i+1:]...)
			m.notify(serviceName)
			break
		}
	}
	return nil
}

func (m *MemoryRegistry) Discover(serviceName string) ([]ServiceInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ServiceInstance(nil), m.instances[serviceName]...), nil
}

// Watch emits the full instance list after every change. Slow readers only ever see
// the latest list.
func (m *MemoryRegistry) Watch(serviceName string) <-chan []ServiceInstance {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan []ServiceInstance, 1)
	m.watchers[serviceName] = append(m.watchers[serviceName], ch)
	return ch
}

// notify must be called with mu held.
func (m *MemoryRegistry) notify(serviceName string) {
	snapshot := append([]ServiceInstance(nil), m.instances[serviceName]...)
	for _, ch := range m.watchers[serviceName] {
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	}
}
