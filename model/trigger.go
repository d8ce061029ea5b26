package model

import "time"

// EventKind identifies the neighbor-relation measurement event a trigger
// evaluates, mirroring the cellular A4/A5/D2 event family.
type EventKind int

const (
	// EventA4: neighbor-better. Enters when the candidate's RSRP exceeds a
	// threshold plus hysteresis.
	EventA4 EventKind = iota
	// EventA5: serving-worse AND neighbor-better. Both RSRP conditions must
	// hold simultaneously.
	EventA5
	// EventD2: distance band. The serving satellite has moved beyond a far
	// threshold while the candidate is within a near threshold.
	EventD2
)

func (k EventKind) String() string {
	switch k {
	case EventA4:
		return "a4"
	case EventA5:
		return "a5"
	case EventD2:
		return "d2"
	default:
		return "unknown"
	}
}

// TriggerState is the debounce state of a single event trigger.
type TriggerState int

const (
	// TriggerIdle: enter condition not met.
	TriggerIdle TriggerState = iota
	// TriggerPending: enter condition met, time-to-trigger timer running.
	TriggerPending
	// TriggerTriggered: the condition held continuously for the full
	// time-to-trigger duration.
	TriggerTriggered
)

func (s TriggerState) String() string {
	switch s {
	case TriggerIdle:
		return "idle"
	case TriggerPending:
		return "pending"
	case TriggerTriggered:
		return "triggered"
	default:
		return "unknown"
	}
}

// EventTrigger is the per-(UE, candidate) state machine for one measurement
// event. It is exclusively owned by the worker managing its pair; no locking
// is needed by construction.
type EventTrigger struct {
	Kind                 EventKind
	CandidateSatelliteID string

	State              TriggerState
	ConditionTrueSince time.Time
	LastObservation    time.Time
	FiredAt            time.Time
}

// Held returns how long the enter condition has been continuously true as of
// the given instant. Zero when the trigger is idle.
func (t *EventTrigger) Held(now time.Time) time.Duration {
	if t.State == TriggerIdle || t.ConditionTrueSince.IsZero() {
		return 0
	}
	return now.Sub(t.ConditionTrueSince)
}
