// Package sync provides the sync cycle coordinator.
package sync

import (
	"context"
	"sync"
	"time"

	"github.com/kimhsiao/offsync/internal/connectivity"
	apperrors "github.com/kimhsiao/offsync/internal/errors"
	"github.com/kimhsiao/offsync/internal/logging"
	"github.com/kimhsiao/offsync/internal/models"
	"github.com/kimhsiao/offsync/internal/sync/conflict"
	"github.com/kimhsiao/offsync/internal/sync/queue"
)

// Events receives cycle lifecycle notifications, e.g. for a UI event hub.
// All methods are called from the cycle goroutine and must not block.
type Events interface {
	SyncStarted(eligible int)
	SyncCompleted(stats CycleStats, duration time.Duration)
	ConflictDetected(entry models.QueuedAction, resolution string)
}

// noopEvents is used when the caller supplies no sink.
type noopEvents struct{}

func (noopEvents) SyncStarted(int)                              {}
func (noopEvents) SyncCompleted(CycleStats, time.Duration)      {}
func (noopEvents) ConflictDetected(models.QueuedAction, string) {}

// CycleStats summarizes one synchronization cycle.
type CycleStats struct {
	Ran       bool `json:"ran"`
	Synced    int  `json:"synced"`
	Failed    int  `json:"failed"`
	Conflicts int  `json:"conflicts"`
	Swept     int  `json:"swept"`
}

// Status is the read-only projection exposed to external collaborators.
type Status struct {
	QueueLength         int        `json:"queue_length"`
	HasErrors           bool       `json:"has_errors"`
	OldestPendingAt     *time.Time `json:"oldest_pending_at,omitempty"`
	LastSyncCompletedAt *time.Time `json:"last_sync_completed_at,omitempty"`
	IsSyncing           bool       `json:"is_syncing"`
	IsAutoSyncEnabled   bool       `json:"is_auto_sync_enabled"`
}

// Coordinator drives synchronization cycles: it selects eligible entries,
// invokes the remote-apply collaborator, interprets outcomes, and updates
// the queue manager. At most one cycle is in flight at a time.
type Coordinator struct {
	queue    *queue.Manager
	monitor  *connectivity.Monitor
	applier  Applier
	resolver conflict.Resolver
	events   Events

	mu       sync.Mutex
	inFlight bool
	autoSync bool
	lastSync time.Time
}

// NewCoordinator creates a Coordinator. A nil resolver defaults to
// server-wins; a nil events sink is ignored. Auto-sync starts enabled.
func NewCoordinator(q *queue.Manager, monitor *connectivity.Monitor, applier Applier, resolver conflict.Resolver, events Events) *Coordinator {
	if resolver == nil {
		resolver = conflict.ServerWins()
	}
	if events == nil {
		events = noopEvents{}
	}
	return &Coordinator{
		queue:    q,
		monitor:  monitor,
		applier:  applier,
		resolver: resolver,
		events:   events,
		autoSync: true,
	}
}

// RunCycle performs one synchronization pass. It returns immediately with
// Ran=false when a cycle is already in flight, the backend is unreachable,
// or nothing is eligible. Per-entry failures never abort the cycle and are
// never surfaced as an error from RunCycle itself.
func (c *Coordinator) RunCycle(ctx context.Context) CycleStats {
	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		logging.Debug("Sync cycle already in flight, skipping")
		return CycleStats{}
	}
	if !c.monitor.IsReachable() {
		c.mu.Unlock()
		logging.Debug("Backend unreachable, skipping sync cycle")
		return CycleStats{}
	}
	eligible := c.queue.EligibleForSync()
	if len(eligible) == 0 {
		c.mu.Unlock()
		return CycleStats{}
	}
	c.inFlight = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()
	}()

	started := time.Now()
	stats := CycleStats{Ran: true}

	logging.Info("Sync cycle started", map[string]interface{}{"eligible": len(eligible)})
	c.events.SyncStarted(len(eligible))

	ids := make([]string, len(eligible))
	for i, e := range eligible {
		ids[i] = e.ID
	}
	c.queue.MarkSyncing(ids)

	// Entries are processed in insertion order; each runs to completion
	// before the next. There is no mid-cycle cancellation.
	for _, entry := range eligible {
		outcome := c.applier.Apply(ctx, entry)

		switch outcome.Result {
		case ResultSuccess:
			c.queue.MarkSynced([]string{entry.ID})
			stats.Synced++

		case ResultConflict:
			stats.Conflicts++
			if c.resolveConflict(ctx, entry, outcome) {
				stats.Synced++
			} else {
				stats.Failed++
			}

		default:
			c.queue.MarkError(entry.ID, outcome.ErrorMessage)
			stats.Failed++
			logging.Warn("Entry failed to sync",
				map[string]interface{}{
					"id":    entry.ID,
					"error": outcome.ErrorMessage,
				})
		}
	}

	stats.Swept = c.queue.SweepExpired()

	now := time.Now()
	c.mu.Lock()
	c.lastSync = now
	c.mu.Unlock()

	duration := now.Sub(started)
	logging.Info("Sync cycle completed",
		map[string]interface{}{
			"synced":      stats.Synced,
			"failed":      stats.Failed,
			"conflicts":   stats.Conflicts,
			"duration_ms": duration.Milliseconds(),
		})
	c.events.SyncCompleted(stats, duration)

	return stats
}

// resolveConflict consults the resolver hook and applies its directive.
// Returns true when the entry ends synced. A resolver error degrades to
// server-wins so the queue cannot deadlock on an unresolved conflict; a
// failed re-attempt after local or merge becomes a normal error status,
// never a second conflict round.
func (c *Coordinator) resolveConflict(ctx context.Context, entry models.QueuedAction, outcome Outcome) bool {
	resolution, err := c.resolver.Resolve(entry, outcome.ConflictData)
	if err != nil {
		logging.ErrorWithCode("Conflict hook failed, defaulting to server-wins",
			string(apperrors.ErrSyncConflict), err,
			map[string]interface{}{"id": entry.ID})
		resolution = conflict.KeepServer()
	}

	logging.Info("Conflict resolved",
		map[string]interface{}{
			"id":         entry.ID,
			"resolution": resolution.String(),
		})
	c.events.ConflictDetected(entry, resolution.String())

	if resolution.IsServer() {
		// The remote value wins; the queued payload is discarded.
		c.queue.MarkSynced([]string{entry.ID})
		return true
	}

	retry := entry
	if merged, ok := resolution.MergePayload(); ok {
		retry.Payload = merged
	}

	result := c.applier.Apply(ctx, retry)
	if result.Result == ResultSuccess {
		c.queue.MarkSynced([]string{entry.ID})
		return true
	}

	message := result.ErrorMessage
	if result.Result == ResultConflict {
		message = "conflict persisted after " + resolution.String() + " resolution"
	}
	c.queue.MarkError(entry.ID, message)
	return false
}

// IsSyncing reports whether a cycle is currently in flight.
func (c *Coordinator) IsSyncing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// SetAutoSync enables or disables automatic cycles. Manual triggers are
// always permitted; disabling prevents future automatic cycles only and
// never aborts one already running.
func (c *Coordinator) SetAutoSync(enabled bool) {
	c.mu.Lock()
	changed := c.autoSync != enabled
	c.autoSync = enabled
	c.mu.Unlock()

	if changed {
		logging.Info("Auto-sync setting changed",
			map[string]interface{}{"enabled": enabled})
	}
}

// AutoSyncEnabled reports whether automatic cycles are enabled.
func (c *Coordinator) AutoSyncEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoSync
}

// LastSyncCompletedAt returns when the last cycle completed, or nil if no
// cycle has run yet.
func (c *Coordinator) LastSyncCompletedAt() *time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastSync.IsZero() {
		return nil
	}
	t := c.lastSync
	return &t
}

// Status assembles the observable projection for external collaborators.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	inFlight := c.inFlight
	autoSync := c.autoSync
	var lastSync *time.Time
	if !c.lastSync.IsZero() {
		t := c.lastSync
		lastSync = &t
	}
	c.mu.Unlock()

	return Status{
		QueueLength:         c.queue.Len(),
		HasErrors:           c.queue.HasErrors(),
		OldestPendingAt:     c.queue.OldestPendingAt(),
		LastSyncCompletedAt: lastSync,
		IsSyncing:           inFlight,
		IsAutoSyncEnabled:   autoSync,
	}
}
