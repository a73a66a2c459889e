// Package conflict provides conflict resolution for the sync cycle.
// A conflict is a first-class remote-apply outcome, not an error: the
// backend's state diverged from what a queued mutation assumed, and an
// external decision point chooses how to reconcile.
package conflict

import (
	"encoding/json"

	"github.com/kimhsiao/offsync/internal/logging"
	"github.com/kimhsiao/offsync/internal/models"
)

// kind discriminates the resolution variants.
type kind int

const (
	kindServer kind = iota
	kindLocal
	kindMerge
)

// Resolution is the directive returned by a resolver. It is a tagged
// variant: the merge case carries its resolved payload, so a merge
// without a payload cannot be expressed.
type Resolution struct {
	kind    kind
	payload json.RawMessage
}

// KeepLocal directs the coordinator to re-apply the queued payload; the
// local mutation wins.
func KeepLocal() Resolution {
	return Resolution{kind: kindLocal}
}

// KeepServer directs the coordinator to discard the queued mutation; the
// remote value wins.
func KeepServer() Resolution {
	return Resolution{kind: kindServer}
}

// Merge directs the coordinator to re-attempt once with the resolved
// payload produced by the resolver.
func Merge(payload json.RawMessage) Resolution {
	return Resolution{kind: kindMerge, payload: payload}
}

// IsLocal reports whether the local mutation wins.
func (r Resolution) IsLocal() bool {
	return r.kind == kindLocal
}

// IsServer reports whether the remote value wins.
func (r Resolution) IsServer() bool {
	return r.kind == kindServer
}

// MergePayload returns the resolved payload and whether this is a merge
// directive.
func (r Resolution) MergePayload() (json.RawMessage, bool) {
	if r.kind != kindMerge {
		return nil, false
	}
	return r.payload, true
}

// String returns the directive tag for logging.
func (r Resolution) String() string {
	switch r.kind {
	case kindLocal:
		return "local"
	case kindMerge:
		return "merge"
	default:
		return "server"
	}
}

// Resolver is the external decision point consulted when remote state has
// diverged from what a queued mutation assumed. conflictData is the
// opaque divergence description reported by the remote-apply collaborator.
type Resolver interface {
	Resolve(entry models.QueuedAction, conflictData json.RawMessage) (Resolution, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(entry models.QueuedAction, conflictData json.RawMessage) (Resolution, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(entry models.QueuedAction, conflictData json.RawMessage) (Resolution, error) {
	return f(entry, conflictData)
}

// ServerWins returns the default resolver used when the application
// supplies no hook: every conflict resolves to the remote value, so the
// queue never deadlocks on an unresolved conflict.
func ServerWins() Resolver {
	return ResolverFunc(func(entry models.QueuedAction, conflictData json.RawMessage) (Resolution, error) {
		logging.Debug("No conflict hook supplied, defaulting to server-wins",
			map[string]interface{}{"id": entry.ID})
		return KeepServer(), nil
	})
}
