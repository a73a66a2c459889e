// Package models provides data model definitions for the offsync engine.
package models

import (
	"encoding/json"
	"time"
)

// Operation identifies the kind of mutation a queued action carries.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// ValidOperation reports whether op is one of the known operations.
func ValidOperation(op Operation) bool {
	switch op {
	case OperationCreate, OperationUpdate, OperationDelete:
		return true
	}
	return false
}

// Status is the lifecycle state of a queued action.
type Status string

const (
	StatusPending Status = "pending"
	StatusSyncing Status = "syncing"
	StatusSynced  Status = "synced"
	StatusError   Status = "error"
)

// EntityType tags the kind of domain object an action targets.
// The engine treats it opaquely; any finite closed set of tags is valid.
type EntityType string

// QueuedAction is a single deferred mutation awaiting synchronization.
type QueuedAction struct {
	ID         string          `db:"id" json:"id"`
	EntityType EntityType      `db:"entity_type" json:"entity_type"`
	Operation  Operation       `db:"operation" json:"operation"`
	Payload    json.RawMessage `db:"payload" json:"payload,omitempty"`
	Status     Status          `db:"status" json:"status"`
	RetryCount int             `db:"retry_count" json:"retry_count"`
	LastError  string          `db:"last_error" json:"last_error,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for QueuedAction.
func (QueuedAction) TableName() string {
	return "action_queue"
}

// Terminal reports whether the action has reached its terminal state.
// Terminal actions are immutable and only removed by the retention sweep.
func (a *QueuedAction) Terminal() bool {
	return a.Status == StatusSynced
}

// Eligible reports whether the action is a candidate for the next sync cycle.
func (a *QueuedAction) Eligible() bool {
	return a.Status == StatusPending || a.Status == StatusError
}
