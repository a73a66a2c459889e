package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kimhsiao/offsync/internal/connectivity"
	"github.com/kimhsiao/offsync/internal/models"
	syncpkg "github.com/kimhsiao/offsync/internal/sync"
	"github.com/kimhsiao/offsync/internal/sync/queue"
)

func setupSyncHandler(t *testing.T, reachable bool, applier syncpkg.Applier) (*SyncHandler, *queue.Manager, *connectivity.Monitor) {
	t.Helper()
	q := queue.NewManager(&memStore{}, nil)
	monitor := connectivity.NewMonitor(reachable)
	coordinator := syncpkg.NewCoordinator(q, monitor, applier, nil, nil)
	return NewSyncHandler(coordinator, monitor), q, monitor
}

func succeedAll() syncpkg.Applier {
	return syncpkg.ApplierFunc(func(_ context.Context, e models.QueuedAction) syncpkg.Outcome {
		return syncpkg.Success(e.ID)
	})
}

func TestSyncHandler_Status(t *testing.T) {
	h, q, _ := setupSyncHandler(t, true, succeedAll())

	req := httptest.NewRequest(http.MethodGet, "/api/sync/status", nil)
	w := httptest.NewRecorder()
	h.Status(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if response["queue_length"] != float64(0) {
		t.Errorf("queue_length = %v, want 0", response["queue_length"])
	}
	if response["is_syncing"] != false {
		t.Error("is_syncing should be false")
	}
	if response["is_auto_sync_enabled"] != true {
		t.Error("is_auto_sync_enabled should default to true")
	}
	if response["is_reachable"] != true {
		t.Error("is_reachable should be true")
	}
	if _, ok := response["last_sync_completed_at"]; ok {
		t.Error("last_sync_completed_at should be absent before any cycle")
	}

	q.Enqueue("note", models.OperationCreate, nil)

	w = httptest.NewRecorder()
	h.Status(w, req)
	response = map[string]interface{}{}
	json.Unmarshal(w.Body.Bytes(), &response)
	if response["queue_length"] != float64(1) {
		t.Errorf("queue_length = %v, want 1", response["queue_length"])
	}
	if _, ok := response["oldest_pending_at"]; !ok {
		t.Error("oldest_pending_at should be present with a pending entry")
	}
}

func TestSyncHandler_TriggerSync(t *testing.T) {
	h, q, _ := setupSyncHandler(t, true, succeedAll())
	q.Enqueue("note", models.OperationCreate, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/sync/now", nil)
	w := httptest.NewRecorder()
	h.TriggerSync(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if response["ran"] != true {
		t.Errorf("ran = %v, want true", response["ran"])
	}
	if response["synced"] != float64(1) {
		t.Errorf("synced = %v, want 1", response["synced"])
	}
}

func TestSyncHandler_TriggerSyncUnreachable(t *testing.T) {
	h, q, _ := setupSyncHandler(t, false, succeedAll())
	q.Enqueue("note", models.OperationCreate, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/sync/now", nil)
	w := httptest.NewRecorder()
	h.TriggerSync(w, req)

	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if response["ran"] != false {
		t.Errorf("ran = %v, want false while unreachable", response["ran"])
	}
	if response["reason"] != "backend unreachable" {
		t.Errorf("reason = %v", response["reason"])
	}
}

func TestSyncHandler_SetAutoSync(t *testing.T) {
	h, _, _ := setupSyncHandler(t, true, succeedAll())

	body := bytes.NewBufferString(`{"enabled":false}`)
	req := httptest.NewRequest(http.MethodPut, "/api/sync/auto", body)
	w := httptest.NewRecorder()
	h.SetAutoSync(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if h.coordinator.AutoSyncEnabled() {
		t.Error("auto-sync should be disabled")
	}

	// Missing field is rejected.
	req = httptest.NewRequest(http.MethodPut, "/api/sync/auto", bytes.NewBufferString(`{}`))
	w = httptest.NewRecorder()
	h.SetAutoSync(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for missing field", w.Code)
	}
}

func TestSyncHandler_SetConnectivity(t *testing.T) {
	h, _, monitor := setupSyncHandler(t, true, succeedAll())

	body := bytes.NewBufferString(`{"reachable":false}`)
	req := httptest.NewRequest(http.MethodPut, "/api/connectivity", body)
	w := httptest.NewRecorder()
	h.SetConnectivity(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if monitor.IsReachable() {
		t.Error("monitor should report unreachable")
	}
}
