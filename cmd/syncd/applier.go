// HTTP applier: replays queued actions against the remote backend.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/kimhsiao/offsync/internal/models"
	syncpkg "github.com/kimhsiao/offsync/internal/sync"
)

// httpApplier posts each action envelope to the backend's apply endpoint.
// The payload is opaque to the engine, so the backend routes on the
// entity type and operation it receives. A 409 response is reported as a
// conflict with the server's current state taken from the response body.
type httpApplier struct {
	applyURL string
	client   *http.Client
}

func newApplier() syncpkg.Applier {
	baseURL := os.Getenv("BACKEND_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	return &httpApplier{
		applyURL: baseURL + "/api/sync/apply",
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *httpApplier) Apply(ctx context.Context, entry models.QueuedAction) syncpkg.Outcome {
	envelope, err := json.Marshal(map[string]interface{}{
		"id":          entry.ID,
		"entity_type": string(entry.EntityType),
		"operation":   string(entry.Operation),
		"payload":     entry.Payload,
		"created_at":  entry.CreatedAt.UnixNano(),
	})
	if err != nil {
		return syncpkg.Failed(entry.ID, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.applyURL, bytes.NewReader(envelope))
	if err != nil {
		return syncpkg.Failed(entry.ID, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	// The backend deduplicates replays of the same action.
	req.Header.Set("X-Idempotency-Key", entry.ID)

	resp, err := a.client.Do(req)
	if err != nil {
		return syncpkg.Failed(entry.ID, err.Error())
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return syncpkg.Success(entry.ID)

	case resp.StatusCode == http.StatusConflict:
		conflictData, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return syncpkg.Conflicted(entry.ID, conflictData)

	default:
		return syncpkg.Failed(entry.ID,
			fmt.Sprintf("backend returned %d", resp.StatusCode))
	}
}
