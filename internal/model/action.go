package model

import "time"

// ActionKind is the type of remote action a pending token protects.
type ActionKind string

const (
	ActionDelete  ActionKind = "delete"
	ActionRestart ActionKind = "restart"

	// ActionCancel is the "no" half of a confirmation pair. It never reaches
	// an executor; resolving it cancels its sibling.
	ActionCancel ActionKind = "cancel"
)

// ActionState is the lifecycle state of a pending action token.
type ActionState string

const (
	ActionStateCreated    ActionState = "created"
	ActionStateAwaiting   ActionState = "awaiting_confirmation"
	ActionStateConfirmed  ActionState = "confirmed"
	ActionStateExecuted   ActionState = "executed"
	ActionStateCancelled  ActionState = "cancelled"
	ActionStateSuperseded ActionState = "superseded"
	ActionStateExpired    ActionState = "expired"
)

// Terminal reports whether the state can never transition again.
func (s ActionState) Terminal() bool {
	switch s {
	case ActionStateExecuted, ActionStateCancelled, ActionStateSuperseded, ActionStateExpired:
		return true
	}
	return false
}

// PendingAction binds a rendered button to a deferred, not-yet-confirmed
// mutating operation. Tokens are single-use and unique across batches.
type PendingAction struct {
	Token     string      `json:"token"`
	Kind      ActionKind  `json:"kind"`
	Payload   string      `json:"payload"`
	Label     string      `json:"label"`
	BatchID   uint64      `json:"batch_id"`
	State     ActionState `json:"state"`
	CreatedAt time.Time   `json:"created_at"`

	// Sibling links the confirm/cancel halves of a confirmation pair.
	Sibling string `json:"sibling,omitempty"`
}

// ActionResult is what an executor reports back. The message is surfaced to
// the operator verbatim.
type ActionResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}
