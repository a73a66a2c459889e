// Package connectivity provides unit tests for the reachability monitor.
package connectivity

import (
	"sync"
	"testing"
)

// TestInitialState verifies the constructor seeds the state.
func TestInitialState(t *testing.T) {
	if !NewMonitor(true).IsReachable() {
		t.Error("monitor seeded reachable should report reachable")
	}
	if NewMonitor(false).IsReachable() {
		t.Error("monitor seeded unreachable should report unreachable")
	}
}

// TestTransitionNotifies verifies subscribers see both transition directions.
func TestTransitionNotifies(t *testing.T) {
	m := NewMonitor(false)

	var mu sync.Mutex
	var events []bool
	m.Subscribe(func(reachable bool) {
		mu.Lock()
		events = append(events, reachable)
		mu.Unlock()
	})

	m.SetReachable(true)
	m.SetReachable(false)

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0] != true || events[1] != false {
		t.Errorf("events = %v, want [true false]", events)
	}
}

// TestNoNotifyWithoutTransition verifies repeated identical states are
// silent.
func TestNoNotifyWithoutTransition(t *testing.T) {
	m := NewMonitor(true)

	calls := 0
	m.Subscribe(func(bool) { calls++ })

	m.SetReachable(true)
	m.SetReachable(true)

	if calls != 0 {
		t.Errorf("got %d notifications without a transition, want 0", calls)
	}
}

// TestUnsubscribe verifies an unsubscribed callback is not invoked.
func TestUnsubscribe(t *testing.T) {
	m := NewMonitor(false)

	calls := 0
	unsubscribe := m.Subscribe(func(bool) { calls++ })

	m.SetReachable(true)
	unsubscribe()
	m.SetReachable(false)

	if calls != 1 {
		t.Errorf("got %d calls, want 1 (none after unsubscribe)", calls)
	}
}

// TestMultipleSubscribers verifies every subscriber is notified.
func TestMultipleSubscribers(t *testing.T) {
	m := NewMonitor(false)

	var mu sync.Mutex
	counts := make([]int, 3)
	for i := range counts {
		i := i
		m.Subscribe(func(bool) {
			mu.Lock()
			counts[i]++
			mu.Unlock()
		})
	}

	m.SetReachable(true)

	mu.Lock()
	defer mu.Unlock()
	for i, c := range counts {
		if c != 1 {
			t.Errorf("subscriber %d notified %d times, want 1", i, c)
		}
	}
}

// TestSubscriberMayReadState verifies callbacks can query the monitor
// without deadlocking.
func TestSubscriberMayReadState(t *testing.T) {
	m := NewMonitor(false)

	var observed bool
	m.Subscribe(func(bool) {
		observed = m.IsReachable()
	})

	m.SetReachable(true)

	if !observed {
		t.Error("subscriber should observe the new state")
	}
}
