package model

import "time"

// ProbeID identifies a monitored source (e.g. "disk", "system", "docker").
type ProbeID string

// ConditionKey identifies one measurable condition within a probe. A probe
// may expose several conditions (ram, swap, load, ...), each with its own
// alert lifecycle.
type ConditionKey string

// Sample is a single observation of a condition's value. Samples are
// produced each tick and are not persisted.
type Sample struct {
	Value float64   `json:"value"`
	At    time.Time `json:"at"`
}

// Policy controls how a condition's samples are evaluated.
type Policy struct {
	// Threshold is the value at or above which the condition is abnormal.
	// Boolean conditions encode true as 1 with a threshold of 1.
	Threshold float64 `json:"threshold"`

	// Cooldown is the minimum interval between repeat notifications while
	// the condition stays abnormal.
	Cooldown time.Duration `json:"cooldown"`

	// ReportBaseline requests a status notification for the very first
	// sample ever seen for the condition.
	ReportBaseline bool `json:"report_baseline"`
}

// Transition is the outcome of evaluating one sample.
type Transition string

const (
	// TransitionNone means nothing changed and nothing should be sent.
	TransitionNone Transition = "none"

	// TransitionBaseline is the first-ever sample for a condition, reported
	// only when the policy asks for it.
	TransitionBaseline Transition = "baseline"

	// TransitionRaised is an upward threshold crossing.
	TransitionRaised Transition = "raised"

	// TransitionRepeated is a reminder for a still-abnormal condition after
	// the cooldown has elapsed.
	TransitionRepeated Transition = "repeated"

	// TransitionSuppressed is a still-abnormal condition inside the cooldown
	// window. Not notifiable.
	TransitionSuppressed Transition = "suppressed"

	// TransitionCleared is a downward threshold crossing.
	TransitionCleared Transition = "cleared"
)

// Notifiable reports whether the transition should produce a message.
func (t Transition) Notifiable() bool {
	switch t {
	case TransitionBaseline, TransitionRaised, TransitionRepeated, TransitionCleared:
		return true
	}
	return false
}
