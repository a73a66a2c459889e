// Package sync drives synchronization cycles over the action queue.
package sync

import (
	"context"
	"encoding/json"

	"github.com/kimhsiao/offsync/internal/models"
)

// Result classifies a single remote-apply attempt.
type Result string

const (
	ResultSuccess  Result = "success"
	ResultConflict Result = "conflict"
	ResultFailure  Result = "failure"
)

// Outcome is the per-entry, per-cycle result of a remote-apply attempt.
// It is ephemeral and never persisted.
type Outcome struct {
	EntryID      string
	Result       Result
	ConflictData json.RawMessage
	ErrorMessage string
}

// Success builds a success outcome for an entry.
func Success(entryID string) Outcome {
	return Outcome{EntryID: entryID, Result: ResultSuccess}
}

// Conflicted builds a conflict outcome carrying the opaque divergence
// description reported by the backend.
func Conflicted(entryID string, conflictData json.RawMessage) Outcome {
	return Outcome{EntryID: entryID, Result: ResultConflict, ConflictData: conflictData}
}

// Failed builds a failure outcome with a human-readable message.
func Failed(entryID string, message string) Outcome {
	return Outcome{EntryID: entryID, Result: ResultFailure, ErrorMessage: message}
}

// Applier is the remote-apply collaborator that persists entries against
// the backend. Implementations should be idempotent with respect to the
// entry id where feasible, since the engine may retry an entry whose
// previous attempt's result is unknown.
type Applier interface {
	Apply(ctx context.Context, entry models.QueuedAction) Outcome
}

// ApplierFunc adapts a function to the Applier interface.
type ApplierFunc func(ctx context.Context, entry models.QueuedAction) Outcome

// Apply implements Applier.
func (f ApplierFunc) Apply(ctx context.Context, entry models.QueuedAction) Outcome {
	return f(ctx, entry)
}
