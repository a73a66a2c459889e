// Package connectivity wraps the host environment's reachability primitive.
// The engine treats the signal as a black box that may be wrong; actual
// failures at call time are handled by the sync cycle like any other
// remote failure.
package connectivity

import (
	"sync"

	"github.com/kimhsiao/offsync/internal/logging"
)

// Monitor exposes the current reachability of the backend and notifies
// subscribers on transitions. The host's connectivity primitive pushes
// state changes through SetReachable.
type Monitor struct {
	mu        sync.RWMutex
	reachable bool
	nextID    int
	subs      map[int]func(reachable bool)
}

// NewMonitor creates a Monitor with the given initial state.
func NewMonitor(initial bool) *Monitor {
	return &Monitor{
		reachable: initial,
		subs:      make(map[int]func(bool)),
	}
}

// IsReachable returns the current reachability state.
func (m *Monitor) IsReachable() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reachable
}

// SetReachable records the state reported by the host primitive.
// Subscribers are notified only on transitions, outside the state lock.
func (m *Monitor) SetReachable(reachable bool) {
	m.mu.Lock()
	if m.reachable == reachable {
		m.mu.Unlock()
		return
	}
	m.reachable = reachable

	notify := make([]func(bool), 0, len(m.subs))
	for _, fn := range m.subs {
		notify = append(notify, fn)
	}
	m.mu.Unlock()

	logging.Info("Connectivity changed",
		map[string]interface{}{"reachable": reachable})

	for _, fn := range notify {
		fn(reachable)
	}
}

// Subscribe registers a transition callback and returns an unsubscribe
// function. The callback receives the new state.
func (m *Monitor) Subscribe(fn func(reachable bool)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}
