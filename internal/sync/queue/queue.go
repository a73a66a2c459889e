// Package queue provides the in-memory action queue manager.
// The manager owns the queue sequence and its durable persistence; every
// mutation is synchronous in memory and asynchronously written through the
// persistent store.
package queue

import (
	"encoding/json"
	"sync"
	"time"

	apperrors "github.com/kimhsiao/offsync/internal/errors"
	"github.com/kimhsiao/offsync/internal/logging"
	"github.com/kimhsiao/offsync/internal/models"
	"github.com/kimhsiao/offsync/internal/uuid"
)

// Store is the durable storage primitive the queue persists through.
// Load degrades to an empty sequence when the backing storage is
// unavailable or corrupted; Save failures are reported but must never
// lose the in-memory state.
type Store interface {
	Load() []models.QueuedAction
	Save(entries []models.QueuedAction) error
}

// DefaultRetentionWindow is how long synced entries are kept before the
// garbage-collection sweep removes them.
const DefaultRetentionWindow = time.Hour

// Config holds queue manager configuration.
type Config struct {
	// RetentionWindow is the age past which synced entries are swept.
	RetentionWindow time.Duration

	// MaxAutoRetries caps automatic retries of failed entries. Zero means
	// unlimited: the engine keeps re-attempting error entries on every
	// eligible cycle until the user removes them. Entries at the cap stay
	// visible and can still be retried manually.
	MaxAutoRetries int
}

// DefaultConfig returns default queue manager configuration.
func DefaultConfig() *Config {
	return &Config{
		RetentionWindow: DefaultRetentionWindow,
		MaxAutoRetries:  0,
	}
}

// Manager owns the ordered action queue.
type Manager struct {
	mu      sync.RWMutex
	entries []*models.QueuedAction // insertion order
	index   map[string]*models.QueuedAction

	store Store
	cfg   *Config

	// saveMu serializes persistence writes; each write snapshots the
	// current sequence, so a later write never regresses the store.
	saveMu sync.Mutex

	wake chan struct{}
}

// NewManager creates a Manager backed by the given store and reloads any
// persisted queue. Entries that were mid-cycle when the process died are
// returned to pending so they become eligible again.
func NewManager(store Store, cfg *Config) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	m := &Manager{
		index: make(map[string]*models.QueuedAction),
		store: store,
		cfg:   cfg,
		wake:  make(chan struct{}, 1),
	}

	recovered := 0
	for _, a := range store.Load() {
		entry := a
		if entry.Status == models.StatusSyncing {
			entry.Status = models.StatusPending
			recovered++
		}
		m.entries = append(m.entries, &entry)
		m.index[entry.ID] = &entry
	}

	if len(m.entries) > 0 {
		logging.Info("Action queue restored",
			map[string]interface{}{
				"entries":   len(m.entries),
				"recovered": recovered,
			})
	}

	return m
}

// Enqueue appends a new pending action and returns its id.
// Enqueue never rejects; failures are deferred to sync time.
func (m *Manager) Enqueue(entityType models.EntityType, operation models.Operation, payload json.RawMessage) string {
	now := time.Now()
	entry := &models.QueuedAction{
		ID:         uuid.New(),
		EntityType: entityType,
		Operation:  operation,
		Payload:    payload,
		Status:     models.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	m.mu.Lock()
	m.entries = append(m.entries, entry)
	m.index[entry.ID] = entry
	m.mu.Unlock()

	logging.Debug("Action enqueued",
		map[string]interface{}{
			"id":          entry.ID,
			"entity_type": string(entityType),
			"operation":   string(operation),
		})

	m.persistAsync()
	m.signalWake()

	return entry.ID
}

// GetAll returns a read-only snapshot of the queue in insertion order.
func (m *Manager) GetAll() []models.QueuedAction {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.QueuedAction, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, *e)
	}
	return out
}

// Get returns a copy of a single entry.
func (m *Manager) Get(id string) (models.QueuedAction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.index[id]
	if !ok {
		return models.QueuedAction{}, apperrors.New(apperrors.ErrEntryNotFound, "entry "+id+" not found")
	}
	return *entry, nil
}

// EligibleForSync returns pending and error entries in insertion order.
// Failed entries are retried automatically unless the retry cap excludes
// them; capped entries remain visible and manually retryable.
func (m *Manager) EligibleForSync() []models.QueuedAction {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var eligible []models.QueuedAction
	for _, e := range m.entries {
		if !e.Eligible() {
			continue
		}
		if e.Status == models.StatusError && m.cfg.MaxAutoRetries > 0 && e.RetryCount >= m.cfg.MaxAutoRetries {
			continue
		}
		eligible = append(eligible, *e)
	}
	return eligible
}

// MarkSyncing transitions the given entries to syncing as one batch.
// Entries that are not eligible are skipped.
func (m *Manager) MarkSyncing(ids []string) {
	now := time.Now()

	m.mu.Lock()
	for _, id := range ids {
		entry, ok := m.index[id]
		if !ok || !entry.Eligible() {
			continue
		}
		entry.Status = models.StatusSyncing
		entry.UpdatedAt = now
	}
	m.mu.Unlock()

	m.persistAsync()
}

// MarkSynced transitions the given entries to their terminal state.
func (m *Manager) MarkSynced(ids []string) {
	now := time.Now()

	m.mu.Lock()
	for _, id := range ids {
		entry, ok := m.index[id]
		if !ok || entry.Status != models.StatusSyncing {
			continue
		}
		entry.Status = models.StatusSynced
		entry.UpdatedAt = now
	}
	m.mu.Unlock()

	m.persistAsync()
}

// MarkError records a failed attempt: increments the retry count and keeps
// the last error message for the user.
func (m *Manager) MarkError(id string, message string) {
	now := time.Now()

	m.mu.Lock()
	entry, ok := m.index[id]
	if ok && entry.Status == models.StatusSyncing {
		entry.Status = models.StatusError
		entry.RetryCount++
		entry.LastError = message
		entry.UpdatedAt = now
	}
	m.mu.Unlock()

	if !ok {
		logging.Warn("MarkError for unknown entry", map[string]interface{}{"id": id})
		return
	}

	m.persistAsync()
}

// ManualRetry forces an error entry back to pending and clears its last
// error. The retry count is historical and is not reset.
func (m *Manager) ManualRetry(id string) error {
	m.mu.Lock()
	entry, ok := m.index[id]
	if !ok {
		m.mu.Unlock()
		return apperrors.New(apperrors.ErrEntryNotFound, "entry "+id+" not found")
	}
	if entry.Status != models.StatusError {
		status := entry.Status
		m.mu.Unlock()
		return apperrors.New(apperrors.ErrInvalidStatus,
			"entry "+id+" is "+string(status)+", only error entries can be retried")
	}
	entry.Status = models.StatusPending
	entry.LastError = ""
	entry.UpdatedAt = time.Now()
	m.mu.Unlock()

	logging.Info("Manual retry", map[string]interface{}{"id": id})

	m.persistAsync()
	m.signalWake()

	return nil
}

// Remove deletes a single entry, user-initiated.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	if _, ok := m.index[id]; !ok {
		m.mu.Unlock()
		return apperrors.New(apperrors.ErrEntryNotFound, "entry "+id+" not found")
	}
	delete(m.index, id)
	m.entries = removeID(m.entries, id)
	m.mu.Unlock()

	m.persistAsync()
	return nil
}

// ClearAll deletes every entry, user-initiated.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	count := len(m.entries)
	m.entries = nil
	m.index = make(map[string]*models.QueuedAction)
	m.mu.Unlock()

	logging.Info("Action queue cleared", map[string]interface{}{"removed": count})

	m.persistAsync()
}

// SweepExpired removes synced entries older than the retention window and
// returns how many were removed.
func (m *Manager) SweepExpired() int {
	cutoff := time.Now().Add(-m.cfg.RetentionWindow)

	m.mu.Lock()
	var kept []*models.QueuedAction
	removed := 0
	for _, e := range m.entries {
		if e.Status == models.StatusSynced && e.CreatedAt.Before(cutoff) {
			delete(m.index, e.ID)
			removed++
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	m.mu.Unlock()

	if removed > 0 {
		logging.Debug("Swept expired entries", map[string]interface{}{"removed": removed})
		m.persistAsync()
	}

	return removed
}

// Len returns the number of entries in the queue.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// HasErrors reports whether any entry has recorded a failed attempt.
func (m *Manager) HasErrors() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.entries {
		if e.RetryCount > 0 {
			return true
		}
	}
	return false
}

// OldestPendingAt returns the enqueue time of the oldest eligible entry,
// or nil when nothing is waiting.
func (m *Manager) OldestPendingAt() *time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.entries {
		if e.Eligible() {
			t := e.CreatedAt
			return &t
		}
	}
	return nil
}

// Stats returns per-status entry counts.
func (m *Manager) Stats() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := map[string]int{
		"total":   0,
		"pending": 0,
		"syncing": 0,
		"synced":  0,
		"error":   0,
	}

	for _, e := range m.entries {
		stats["total"]++
		stats[string(e.Status)]++
	}

	return stats
}

// Wake returns a channel pulsed when new work becomes eligible, letting the
// scheduler arm its timer only while the queue has entries.
func (m *Manager) Wake() <-chan struct{} {
	return m.wake
}

// Flush persists the current queue synchronously.
func (m *Manager) Flush() error {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	m.mu.RLock()
	snapshot := make([]models.QueuedAction, 0, len(m.entries))
	for _, e := range m.entries {
		snapshot = append(snapshot, *e)
	}
	m.mu.RUnlock()

	return m.store.Save(snapshot)
}

// persistAsync writes the queue through the store without blocking the
// caller. A failed write keeps the in-memory state authoritative; the
// queue operates memory-only until the store recovers.
func (m *Manager) persistAsync() {
	go func() {
		if err := m.Flush(); err != nil {
			logging.ErrorWithCode("Queue persistence failed, continuing in memory",
				string(apperrors.ErrStoreWrite), err)
		}
	}()
}

// signalWake pulses the wake channel without blocking.
func (m *Manager) signalWake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// removeID filters one id out of an ordered entry slice.
func removeID(entries []*models.QueuedAction, id string) []*models.QueuedAction {
	for i, e := range entries {
		if e.ID == id {
			return append(entries[:i], entries[i+1:]...)
		}
	}
	return entries
}
