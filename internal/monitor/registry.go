package monitor

import (
	"fmt"
	"slices"
	"sync"
)

// Registry holds the monitors of one engine in insertion order.
type Registry struct {
	mu       sync.RWMutex
	monitors map[string]*Monitor
	order    []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{monitors: make(map[string]*Monitor)}
}

// Add registers m. Monitor ids are unique.
func (r *Registry) Add(m *Monitor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.monitors[m.ID()]; ok {
		return fmt.Errorf("monitor %q already registered", m.ID())
	}
	r.monitors[m.ID()] = m
	r.order = append(r.order, m.ID())
	return nil
}

// Get returns the monitor with the given id.
func (r *Registry) Get(id string) (*Monitor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.monitors[id]
	return m, ok
}

// Remove unregisters a monitor and reports whether it existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.monitors[id]; !ok {
		return false
	}
	delete(r.monitors, id)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })
	return true
}

// All returns every monitor in insertion order.
func (r *Registry) All() []*Monitor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Monitor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.monitors[id])
	}
	return out
}

// ForTrace returns the monitors watching the named trace, in insertion order.
func (r *Registry) ForTrace(name string) []*Monitor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Monitor
	for _, id := range r.order {
		if m := r.monitors[id]; m.spec.Trace == name {
			out = append(out, m)
		}
	}
	return out
}

// Len returns the number of registered monitors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
