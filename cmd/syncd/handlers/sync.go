package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/kimhsiao/offsync/internal/connectivity"
	syncpkg "github.com/kimhsiao/offsync/internal/sync"
)

// SyncHandler handles sync status, trigger, and settings endpoints.
type SyncHandler struct {
	coordinator *syncpkg.Coordinator
	monitor     *connectivity.Monitor
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(coordinator *syncpkg.Coordinator, monitor *connectivity.Monitor) *SyncHandler {
	return &SyncHandler{
		coordinator: coordinator,
		monitor:     monitor,
	}
}

// Status handles GET /api/sync/status.
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	status := h.coordinator.Status()

	response := map[string]interface{}{
		"queue_length":         status.QueueLength,
		"has_errors":           status.HasErrors,
		"is_syncing":           status.IsSyncing,
		"is_auto_sync_enabled": status.IsAutoSyncEnabled,
		"is_reachable":         h.monitor.IsReachable(),
	}
	if status.OldestPendingAt != nil {
		response["oldest_pending_at"] = status.OldestPendingAt.Unix()
	}
	if status.LastSyncCompletedAt != nil {
		response["last_sync_completed_at"] = status.LastSyncCompletedAt.Unix()
	}

	writeJSON(w, http.StatusOK, response)
}

// TriggerSync handles POST /api/sync/now. The manual trigger ignores the
// auto-sync setting; the cycle's own guards still apply, so the response
// distinguishes a cycle that ran from one that was skipped.
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	stats := h.coordinator.RunCycle(r.Context())

	response := map[string]interface{}{
		"ran": stats.Ran,
	}
	if stats.Ran {
		response["synced"] = stats.Synced
		response["failed"] = stats.Failed
		response["conflicts"] = stats.Conflicts
	} else if !h.monitor.IsReachable() {
		response["reason"] = "backend unreachable"
	}

	writeJSON(w, http.StatusOK, response)
}

// SetAutoSync handles PUT /api/sync/auto.
func (h *SyncHandler) SetAutoSync(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil || request.Enabled == nil {
		http.Error(w, "enabled is required", http.StatusBadRequest)
		return
	}

	h.coordinator.SetAutoSync(*request.Enabled)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"is_auto_sync_enabled": *request.Enabled,
	})
}

// SetConnectivity handles PUT /api/connectivity. The host application
// reports reachability transitions here; the engine performs no probing
// of its own.
func (h *SyncHandler) SetConnectivity(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Reachable *bool `json:"reachable"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil || request.Reachable == nil {
		http.Error(w, "reachable is required", http.StatusBadRequest)
		return
	}

	h.monitor.SetReachable(*request.Reachable)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"is_reachable": *request.Reachable,
	})
}
