// Package handlers provides REST API handlers for the action queue and
// sync engine.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/kimhsiao/offsync/internal/errors"
	"github.com/kimhsiao/offsync/internal/models"
	"github.com/kimhsiao/offsync/internal/sync/queue"
)

// WSQueueBroadcaster pushes queue change notifications to clients.
type WSQueueBroadcaster interface {
	BroadcastQueueUpdated(stats map[string]int)
}

// QueueHandler handles action queue endpoints.
type QueueHandler struct {
	queue *queue.Manager
	wsHub WSQueueBroadcaster
}

// NewQueueHandler creates a new QueueHandler.
func NewQueueHandler(q *queue.Manager) *QueueHandler {
	return &QueueHandler{queue: q}
}

// SetWebSocketHub sets the hub used for queue change broadcasts.
func (h *QueueHandler) SetWebSocketHub(wsHub WSQueueBroadcaster) {
	h.wsHub = wsHub
}

// List handles GET /api/queue.
func (h *QueueHandler) List(w http.ResponseWriter, r *http.Request) {
	entries := h.queue.GetAll()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// Enqueue handles POST /api/queue.
func (h *QueueHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var request struct {
		EntityType string          `json:"entity_type"`
		Operation  string          `json:"operation"`
		Payload    json.RawMessage `json:"payload"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if request.EntityType == "" {
		http.Error(w, "entity_type is required", http.StatusBadRequest)
		return
	}
	if !models.ValidOperation(models.Operation(request.Operation)) {
		http.Error(w, "operation must be create, update or delete", http.StatusBadRequest)
		return
	}

	id := h.queue.Enqueue(
		models.EntityType(request.EntityType),
		models.Operation(request.Operation),
		request.Payload,
	)
	h.broadcastUpdate()

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":     id,
		"status": string(models.StatusPending),
	})
}

// Get handles GET /api/queue/{id}.
func (h *QueueHandler) Get(w http.ResponseWriter, r *http.Request) {
	entry, err := h.queue.Get(r.PathValue("id"))
	if err != nil {
		writeQueueError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

// Retry handles POST /api/queue/{id}/retry.
func (h *QueueHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.queue.ManualRetry(id); err != nil {
		writeQueueError(w, err)
		return
	}
	h.broadcastUpdate()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":     id,
		"status": string(models.StatusPending),
	})
}

// Remove handles DELETE /api/queue/{id}.
func (h *QueueHandler) Remove(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.Remove(r.PathValue("id")); err != nil {
		writeQueueError(w, err)
		return
	}
	h.broadcastUpdate()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "removed",
	})
}

// Clear handles DELETE /api/queue.
func (h *QueueHandler) Clear(w http.ResponseWriter, r *http.Request) {
	h.queue.ClearAll()
	h.broadcastUpdate()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "cleared",
	})
}

// Stats handles GET /api/queue/stats.
func (h *QueueHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.queue.Stats())
}

func (h *QueueHandler) broadcastUpdate() {
	if h.wsHub != nil {
		h.wsHub.BroadcastQueueUpdated(h.queue.Stats())
	}
}

// writeQueueError maps queue manager errors to HTTP status codes.
func writeQueueError(w http.ResponseWriter, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case apperrors.ErrEntryNotFound:
			http.Error(w, appErr.Message, http.StatusNotFound)
			return
		case apperrors.ErrInvalidStatus:
			http.Error(w, appErr.Message, http.StatusConflict)
			return
		}
	}
	http.Error(w, "Internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
