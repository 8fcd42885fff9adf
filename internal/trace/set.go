package trace

import (
	"slices"
	"sync"
)

// Set owns the traces of one engine, keyed by channel name.
// Traces are created on first use.
type Set struct {
	mu     sync.Mutex
	traces map[string]*Trace
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{traces: make(map[string]*Trace)}
}

// Get returns the named trace, creating it if needed.
func (s *Set) Get(name string) *Trace {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.traces[name]
	if !ok {
		t = New(name)
		s.traces[name] = t
	}
	return t
}

// Lookup returns the named trace without creating it.
func (s *Set) Lookup(name string) (*Trace, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.traces[name]
	return t, ok
}

// Names returns the channel names in sorted order.
func (s *Set) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.traces))
	for n := range s.traces {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
