package core

import (
	"math"
	"time"

	"github.com/signalsfoundry/handover-engine/model"
)

// PhaseClassifier maps serving-satellite elevation to a handover phase with
// hysteresis. Escalation to a more urgent phase is applied immediately;
// de-escalation requires the elevation to clear the band boundary by the
// hysteresis margin and to hold there for at least one observation interval.
//
// The classifier is exclusively owned by its pair worker and carries the
// per-pair state between observations.
type PhaseClassifier struct {
	cfg      PhaseConfig
	interval time.Duration

	phase   model.HandoverPhase
	lastObs time.Time

	// relaxSince is when the current de-escalation condition was first
	// seen; zero when none is pending.
	relaxSince time.Time
}

// NewPhaseClassifier builds a classifier starting in the Monitoring phase.
// The interval is the worker's observation cadence, used as the dwell
// required before a de-escalation is applied.
func NewPhaseClassifier(cfg PhaseConfig, interval time.Duration) *PhaseClassifier {
	return &PhaseClassifier{
		cfg:      cfg,
		interval: interval,
		phase:    model.PhaseMonitoring,
	}
}

// Phase returns the current phase without consuming an observation.
func (c *PhaseClassifier) Phase() model.HandoverPhase { return c.phase }

// Classify consumes one elevation observation and returns the resulting
// phase. The second return value is the stale-input flag: when the elevation
// is NaN or out of range, or the timestamp does not advance, the previous
// phase is returned unchanged and the caller decides how to react to the
// staleness.
func (c *PhaseClassifier) Classify(elevationDeg float64, at time.Time) (model.HandoverPhase, bool) {
	if math.IsNaN(elevationDeg) || elevationDeg < -90 || elevationDeg > 90 {
		return c.phase, true
	}
	if !c.lastObs.IsZero() && !at.After(c.lastObs) {
		return c.phase, true
	}
	c.lastObs = at

	raw := c.rawPhase(elevationDeg)
	switch {
	case raw.MoreUrgentThan(c.phase):
		// Escalation is never delayed.
		c.phase = raw
		c.relaxSince = time.Time{}

	case raw < c.phase:
		// De-escalate one band at a time, and only once the elevation has
		// cleared the boundary plus hysteresis for a full interval.
		target := c.phase - 1
		if elevationDeg >= c.boundary(target)+c.cfg.HysteresisDeg {
			if c.relaxSince.IsZero() {
				c.relaxSince = at
			} else if at.Sub(c.relaxSince) >= c.interval {
				c.phase = target
				c.relaxSince = time.Time{}
			}
		} else {
			c.relaxSince = time.Time{}
		}

	default:
		c.relaxSince = time.Time{}
	}
	return c.phase, false
}

// rawPhase is the phase the elevation falls into with no hysteresis applied.
func (c *PhaseClassifier) rawPhase(elevationDeg float64) model.HandoverPhase {
	switch {
	case elevationDeg >= c.cfg.MonitoringMinDeg:
		return model.PhaseMonitoring
	case elevationDeg >= c.cfg.PreHandoverMinDeg:
		return model.PhasePreHandover
	case elevationDeg >= c.cfg.ExecutionMinDeg:
		return model.PhaseExecution
	default:
		return model.PhaseCritical
	}
}

// boundary returns the minimum elevation of the given phase's band, i.e. the
// threshold whose crossing escalates out of it.
func (c *PhaseClassifier) boundary(p model.HandoverPhase) float64 {
	switch p {
	case model.PhaseMonitoring:
		return c.cfg.MonitoringMinDeg
	case model.PhasePreHandover:
		return c.cfg.PreHandoverMinDeg
	case model.PhaseExecution:
		return c.cfg.ExecutionMinDeg
	default:
		return c.cfg.CriticalFloorDeg
	}
}
