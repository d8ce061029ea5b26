package core

import (
	"time"

	"github.com/signalsfoundry/handover-engine/model"
)

// TriggerEvaluator advances the per-(UE, candidate) event trigger state
// machines. Each event kind carries its own enter/leave predicate over the
// incoming metric; a trigger only fires after its enter condition has held
// continuously for the configured time-to-trigger, measured against
// observation timestamps rather than wall-clock calls.
type TriggerEvaluator struct {
	a4     A4Config
	a5     A5Config
	d2     D2Config
	maxGap time.Duration
}

// NewTriggerEvaluator builds an evaluator from validated event configs.
func NewTriggerEvaluator(cfg Config) *TriggerEvaluator {
	return &TriggerEvaluator{
		a4:     cfg.A4,
		a5:     cfg.A5,
		d2:     cfg.D2,
		maxGap: cfg.MaxObservationGap,
	}
}

// NewTrigger creates an idle trigger of the given kind for a candidate that
// has just become visible.
func NewTrigger(kind model.EventKind, candidateID string) *model.EventTrigger {
	return &model.EventTrigger{
		Kind:                 kind,
		CandidateSatelliteID: candidateID,
		State:                model.TriggerIdle,
	}
}

// Evaluate feeds one pair of observations (serving and candidate, taken at
// the same instant) to the trigger and returns the new state plus whether
// the trigger fired on this observation. Fired is true exactly once per
// Pending -> Triggered transition; a Triggered trigger re-arms through Idle
// when its leave condition holds.
func (e *TriggerEvaluator) Evaluate(tr *model.EventTrigger, serving, candidate model.SatelliteObservation) (model.TriggerState, bool) {
	now := candidate.Timestamp

	// A gap in the observation series invalidates a running debounce
	// timer: restart it rather than firing off stale data.
	if !tr.LastObservation.IsZero() && now.Sub(tr.LastObservation) > e.maxGap {
		if tr.State == model.TriggerPending {
			tr.State = model.TriggerIdle
		}
		tr.ConditionTrueSince = time.Time{}
	}
	tr.LastObservation = now

	enter, leave := e.conditions(tr.Kind, serving, candidate)

	fired := false
	switch tr.State {
	case model.TriggerIdle:
		if enter {
			tr.State = model.TriggerPending
			tr.ConditionTrueSince = now
			if tr.Held(now) >= e.timeToTrigger(tr.Kind) {
				// Zero time-to-trigger fires on the entering observation.
				tr.State = model.TriggerTriggered
				tr.FiredAt = now
				fired = true
			}
		}

	case model.TriggerPending:
		if leave {
			// Dropped out of the hysteresis band before the timer ran
			// down; oscillation inside the band keeps the timer alive.
			tr.State = model.TriggerIdle
			tr.ConditionTrueSince = time.Time{}
		} else if tr.Held(now) >= e.timeToTrigger(tr.Kind) {
			tr.State = model.TriggerTriggered
			tr.FiredAt = now
			fired = true
		}

	case model.TriggerTriggered:
		if leave {
			tr.State = model.TriggerIdle
			tr.ConditionTrueSince = time.Time{}
		}
	}
	return tr.State, fired
}

// conditions evaluates the kind-specific enter and leave predicates.
func (e *TriggerEvaluator) conditions(kind model.EventKind, serving, candidate model.SatelliteObservation) (enter, leave bool) {
	switch kind {
	case model.EventA4:
		// Neighbor-better: candidate RSRP above threshold plus hysteresis.
		enter = candidate.RSRPDBm > e.a4.ThresholdDBm+e.a4.HysteresisDB
		leave = candidate.RSRPDBm < e.a4.ThresholdDBm-e.a4.HysteresisDB

	case model.EventA5:
		// Serving-worse AND neighbor-better; both must hold to enter,
		// either clearing with hysteresis leaves.
		servingWorse := serving.RSRPDBm+e.a5.HysteresisDB < e.a5.ServingThresholdDBm
		neighborBetter := candidate.RSRPDBm-e.a5.HysteresisDB > e.a5.NeighborThresholdDBm
		enter = servingWorse && neighborBetter
		servingRecovered := serving.RSRPDBm-e.a5.HysteresisDB > e.a5.ServingThresholdDBm
		neighborFaded := candidate.RSRPDBm+e.a5.HysteresisDB < e.a5.NeighborThresholdDBm
		leave = servingRecovered || neighborFaded

	case model.EventD2:
		// Distance band: serving beyond the far threshold while the
		// candidate is within the near one.
		servingFar := serving.RangeKm-e.d2.HysteresisKm > e.d2.ServingFarKm
		candidateNear := candidate.RangeKm+e.d2.HysteresisKm < e.d2.CandidateNearKm
		enter = servingFar && candidateNear
		servingBack := serving.RangeKm+e.d2.HysteresisKm < e.d2.ServingFarKm
		candidateGone := candidate.RangeKm-e.d2.HysteresisKm > e.d2.CandidateNearKm
		leave = servingBack || candidateGone
	}
	return enter, leave
}

func (e *TriggerEvaluator) timeToTrigger(kind model.EventKind) time.Duration {
	switch kind {
	case model.EventA4:
		return e.a4.TimeToTrigger
	case model.EventA5:
		return e.a5.TimeToTrigger
	case model.EventD2:
		return e.d2.TimeToTrigger
	default:
		return 0
	}
}
