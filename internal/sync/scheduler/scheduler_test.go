package scheduler

import (
	"context"
	gosync "sync"
	"testing"
	"time"

	"github.com/kimhsiao/offsync/internal/connectivity"
	"github.com/kimhsiao/offsync/internal/models"
	syncpkg "github.com/kimhsiao/offsync/internal/sync"
	"github.com/kimhsiao/offsync/internal/sync/queue"
)

type memStore struct {
	mu      gosync.Mutex
	entries []models.QueuedAction
}

func (s *memStore) Load() []models.QueuedAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.QueuedAction, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *memStore) Save(entries []models.QueuedAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make([]models.QueuedAction, len(entries))
	copy(s.entries, entries)
	return nil
}

func setup(t *testing.T, reachable bool, applier syncpkg.Applier, cfg *Config) (*Scheduler, *queue.Manager, *connectivity.Monitor) {
	t.Helper()
	q := queue.NewManager(&memStore{}, nil)
	monitor := connectivity.NewMonitor(reachable)
	coord := syncpkg.NewCoordinator(q, monitor, applier, nil, nil)
	return NewScheduler(coord, q, monitor, cfg), q, monitor
}

func succeedAll() syncpkg.Applier {
	return syncpkg.ApplierFunc(func(_ context.Context, e models.QueuedAction) syncpkg.Outcome {
		return syncpkg.Success(e.ID)
	})
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func entryStatus(t *testing.T, q *queue.Manager, id string) models.Status {
	t.Helper()
	entry, err := q.Get(id)
	if err != nil {
		t.Fatalf("Get(%s): %v", id, err)
	}
	return entry.Status
}

func TestStartStop(t *testing.T) {
	s, _, _ := setup(t, true, succeedAll(), nil)

	if s.IsRunning() {
		t.Error("scheduler should not run before Start")
	}

	s.Start(context.Background())
	if !s.IsRunning() {
		t.Error("scheduler should run after Start")
	}
	s.Start(context.Background()) // second Start is a no-op

	s.Stop()
	if s.IsRunning() {
		t.Error("scheduler should stop after Stop")
	}
	s.Stop() // second Stop is a no-op
}

func TestEnqueueWakesScheduler(t *testing.T) {
	s, q, _ := setup(t, true, succeedAll(), &Config{SyncInterval: time.Hour})
	s.Start(context.Background())
	defer s.Stop()

	id := q.Enqueue("note", models.OperationCreate, []byte(`{"title":"a"}`))

	if !waitFor(t, 2*time.Second, func() bool {
		return entryStatus(t, q, id) == models.StatusSynced
	}) {
		t.Error("enqueued entry should sync without waiting for the periodic tick")
	}
}

func TestPeriodicTickRetriesFailedEntries(t *testing.T) {
	var mu gosync.Mutex
	attempts := 0
	applier := syncpkg.ApplierFunc(func(_ context.Context, e models.QueuedAction) syncpkg.Outcome {
		mu.Lock()
		attempts++
		first := attempts == 1
		mu.Unlock()
		if first {
			return syncpkg.Failed(e.ID, "transient")
		}
		return syncpkg.Success(e.ID)
	})

	s, q, _ := setup(t, true, applier, &Config{SyncInterval: 20 * time.Millisecond})
	s.Start(context.Background())
	defer s.Stop()

	id := q.Enqueue("note", models.OperationUpdate, nil)

	// The wake-driven cycle fails the entry; the ticker retries it.
	if !waitFor(t, 2*time.Second, func() bool {
		return entryStatus(t, q, id) == models.StatusSynced
	}) {
		t.Errorf("entry should sync on a later tick, status = %s", entryStatus(t, q, id))
	}
}

func TestReconnectTriggersCycle(t *testing.T) {
	s, q, monitor := setup(t, false, succeedAll(), &Config{SyncInterval: time.Hour})
	s.Start(context.Background())
	defer s.Stop()

	id := q.Enqueue("note", models.OperationCreate, nil)

	time.Sleep(50 * time.Millisecond)
	if got := entryStatus(t, q, id); got != models.StatusPending {
		t.Fatalf("status while unreachable = %s, want pending", got)
	}

	monitor.SetReachable(true)

	if !waitFor(t, 2*time.Second, func() bool {
		return entryStatus(t, q, id) == models.StatusSynced
	}) {
		t.Error("regained connectivity should drain the queue")
	}
}

func TestAutoSyncDisabledBlocksAutomaticCycles(t *testing.T) {
	s, q, _ := setup(t, true, succeedAll(), &Config{SyncInterval: 20 * time.Millisecond})
	s.coordinator.SetAutoSync(false)
	s.Start(context.Background())
	defer s.Stop()

	id := q.Enqueue("note", models.OperationCreate, nil)

	time.Sleep(100 * time.Millisecond)
	if got := entryStatus(t, q, id); got != models.StatusPending {
		t.Fatalf("status with auto-sync disabled = %s, want pending", got)
	}

	// Manual trigger bypasses the auto-sync setting.
	stats := s.TriggerSync(context.Background())
	if !stats.Ran || stats.Synced != 1 {
		t.Errorf("manual trigger stats = %+v, want 1 synced", stats)
	}
	if got := entryStatus(t, q, id); got != models.StatusSynced {
		t.Errorf("status after manual trigger = %s, want synced", got)
	}
}

func TestStopUnsubscribesFromConnectivity(t *testing.T) {
	s, q, monitor := setup(t, false, succeedAll(), &Config{SyncInterval: time.Hour})
	s.Start(context.Background())

	id := q.Enqueue("note", models.OperationCreate, nil)
	s.Stop()

	monitor.SetReachable(true)
	time.Sleep(50 * time.Millisecond)

	if got := entryStatus(t, q, id); got != models.StatusPending {
		t.Errorf("stopped scheduler must not react to connectivity, status = %s", got)
	}
}
