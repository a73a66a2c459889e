// Package scheduler drives automatic sync cycles from periodic timers,
// connectivity changes, and new queue work.
package scheduler

import (
	"context"
	gosync "sync"
	"time"

	"github.com/kimhsiao/offsync/internal/connectivity"
	"github.com/kimhsiao/offsync/internal/logging"
	syncpkg "github.com/kimhsiao/offsync/internal/sync"
	"github.com/kimhsiao/offsync/internal/sync/queue"
)

// Config holds scheduler configuration.
type Config struct {
	// SyncInterval is how often a periodic cycle is attempted while the
	// queue has entries (default: 30 seconds).
	SyncInterval time.Duration
}

// DefaultConfig returns default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval: 30 * time.Second,
	}
}

// Scheduler owns the background goroutine that fires automatic cycles.
// Automatic triggers respect the coordinator's auto-sync setting; manual
// triggers bypass it. The coordinator itself enforces single-flight and
// the reachability and empty-queue guards, so overlapping triggers are
// harmless no-ops.
type Scheduler struct {
	coordinator *syncpkg.Coordinator
	queue       *queue.Manager
	monitor     *connectivity.Monitor
	interval    time.Duration

	stopCh      chan struct{}
	wg          gosync.WaitGroup
	unsubscribe func()

	mu        gosync.RWMutex
	isRunning bool
}

// NewScheduler creates a Scheduler. A nil config applies defaults.
func NewScheduler(coordinator *syncpkg.Coordinator, q *queue.Manager, monitor *connectivity.Monitor, config *Config) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}

	return &Scheduler{
		coordinator: coordinator,
		queue:       q,
		monitor:     monitor,
		interval:    config.SyncInterval,
		stopCh:      make(chan struct{}),
	}
}

// Start launches the scheduler loop and subscribes to connectivity
// transitions. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	// Regained connectivity drains the queue without waiting for the
	// next tick. The callback must not block the monitor.
	s.unsubscribe = s.monitor.Subscribe(func(reachable bool) {
		if reachable {
			go s.autoSync(ctx)
		}
	})

	s.wg.Add(1)
	go s.loop(ctx)

	logging.Info("Sync scheduler started",
		map[string]interface{}{"interval_seconds": s.interval.Seconds()})
}

// Stop shuts the scheduler down gracefully. A cycle already in flight in
// the coordinator runs to completion on its own goroutine.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	close(s.stopCh)
	s.wg.Wait()

	logging.Info("Sync scheduler stopped", nil)
}

// IsRunning reports whether the scheduler loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// TriggerSync runs one cycle immediately, regardless of the auto-sync
// setting, and returns its stats. The coordinator's guards still apply.
func (s *Scheduler) TriggerSync(ctx context.Context) syncpkg.CycleStats {
	return s.coordinator.RunCycle(ctx)
}

// loop fires automatic cycles. The periodic timer only matters while the
// queue holds entries; new work wakes the loop directly so a freshly
// enqueued action does not wait out a full interval.
func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-s.queue.Wake():
			s.autoSync(ctx)
		case <-ticker.C:
			if s.queue.Len() == 0 {
				continue
			}
			s.autoSync(ctx)
		}
	}
}

// autoSync runs one cycle if automatic sync is enabled.
func (s *Scheduler) autoSync(ctx context.Context) {
	if !s.coordinator.AutoSyncEnabled() {
		logging.Debug("Auto-sync disabled, skipping scheduled cycle")
		return
	}
	s.coordinator.RunCycle(ctx)
}
