package core

import (
	"fmt"
	"math"
	"time"
)

// PhaseConfig holds the elevation bands and hysteresis of the phase
// classifier. Band boundaries are the minimum elevation of the band above:
// Monitoring >= MonitoringMinDeg, PreHandover [PreHandoverMinDeg,
// MonitoringMinDeg), Execution [ExecutionMinDeg, PreHandoverMinDeg),
// Critical below that, down to the hard floor.
type PhaseConfig struct {
	MonitoringMinDeg  float64
	PreHandoverMinDeg float64
	ExecutionMinDeg   float64
	CriticalFloorDeg  float64

	// HysteresisDeg is the margin a de-escalating elevation must clear
	// beyond the band boundary before the phase may relax.
	HysteresisDeg float64
}

// A4Config parameterizes a neighbor-better RSRP event.
type A4Config struct {
	ThresholdDBm  float64
	HysteresisDB  float64
	TimeToTrigger time.Duration
}

// A5Config parameterizes a serving-worse AND neighbor-better RSRP event.
type A5Config struct {
	ServingThresholdDBm  float64
	NeighborThresholdDBm float64
	HysteresisDB         float64
	TimeToTrigger        time.Duration
}

// D2Config parameterizes a dual-threshold distance event: the serving
// satellite beyond a far threshold while the candidate is within a near one.
type D2Config struct {
	ServingFarKm    float64
	CandidateNearKm float64
	HysteresisKm    float64
	TimeToTrigger   time.Duration
}

// PredictorConfig bounds the access-time predictor's work.
type PredictorConfig struct {
	// Delta is the spacing of the two initial samples, and so the width of
	// the prediction window.
	Delta time.Duration
	// ToleranceMs is the bracket width, in milliseconds, at which the
	// search stops as converged.
	ToleranceMs float64
	// MaxIterations caps the bisection loop regardless of tolerance.
	MaxIterations int
}

// CoordinatorConfig governs decision emission.
type CoordinatorConfig struct {
	// SafetyMargin is subtracted from the predicted access time so the
	// downstream execution layer has time to act.
	SafetyMargin time.Duration
	// MinConfidence is the floor a converged prediction must clear before
	// a regular (non-best-effort) decision is emitted.
	MinConfidence float64
}

// Config is the full, validated engine configuration. It is checked once at
// construction; a misconfigured engine never starts a worker.
type Config struct {
	Phase       PhaseConfig
	A4          A4Config
	A5          A5Config
	D2          D2Config
	Predictor   PredictorConfig
	Coordinator CoordinatorConfig

	// ObservationInterval is the periodic cadence of each pair worker.
	ObservationInterval time.Duration
	// MaxObservationGap resets pending trigger timers when exceeded, so a
	// stale series cannot fire a debounced event.
	MaxObservationGap time.Duration
	// VisibilityFloorDeg is the elevation below which a candidate is
	// considered set: its triggers are destroyed and its in-flight work
	// cancelled.
	VisibilityFloorDeg float64
}

// DefaultConfig returns the engine defaults from the system design: layered
// elevation bands 20/12/8 with a 3 degree floor and 2 degrees of hysteresis,
// cellular-style event thresholds, a 2 minute prediction window refined to
// 50 ms, and a few hundred milliseconds of execution headroom.
func DefaultConfig() Config {
	return Config{
		Phase: PhaseConfig{
			MonitoringMinDeg:  20.0,
			PreHandoverMinDeg: 12.0,
			ExecutionMinDeg:   8.0,
			CriticalFloorDeg:  3.0,
			HysteresisDeg:     2.0,
		},
		A4: A4Config{
			ThresholdDBm:  -95.0,
			HysteresisDB:  3.0,
			TimeToTrigger: 640 * time.Millisecond,
		},
		A5: A5Config{
			ServingThresholdDBm:  -115.0,
			NeighborThresholdDBm: -105.0,
			HysteresisDB:         3.0,
			TimeToTrigger:        640 * time.Millisecond,
		},
		D2: D2Config{
			ServingFarKm:    1500.0,
			CandidateNearKm: 1200.0,
			HysteresisKm:    50.0,
			TimeToTrigger:   640 * time.Millisecond,
		},
		Predictor: PredictorConfig{
			Delta:         2 * time.Minute,
			ToleranceMs:   50.0,
			MaxIterations: 10,
		},
		Coordinator: CoordinatorConfig{
			SafetyMargin:  300 * time.Millisecond,
			MinConfidence: 0.5,
		},
		ObservationInterval: 1 * time.Second,
		MaxObservationGap:   5 * time.Second,
		VisibilityFloorDeg:  3.0,
	}
}

// Validate checks the configuration for internal consistency. Every problem
// found is reported wrapped in ErrConfigurationInvalid.
func (c Config) Validate() error {
	p := c.Phase
	for _, v := range []float64{p.MonitoringMinDeg, p.PreHandoverMinDeg, p.ExecutionMinDeg, p.CriticalFloorDeg, p.HysteresisDeg} {
		if math.IsNaN(v) {
			return fmt.Errorf("%w: phase thresholds must not be NaN", ErrConfigurationInvalid)
		}
	}
	if !(p.MonitoringMinDeg > p.PreHandoverMinDeg && p.PreHandoverMinDeg > p.ExecutionMinDeg && p.ExecutionMinDeg > p.CriticalFloorDeg) {
		return fmt.Errorf("%w: phase bands must be strictly decreasing (monitoring %.1f > pre %.1f > execution %.1f > floor %.1f)",
			ErrConfigurationInvalid, p.MonitoringMinDeg, p.PreHandoverMinDeg, p.ExecutionMinDeg, p.CriticalFloorDeg)
	}
	if p.HysteresisDeg < 0 {
		return fmt.Errorf("%w: phase hysteresis must be >= 0, got %.1f", ErrConfigurationInvalid, p.HysteresisDeg)
	}
	if p.HysteresisDeg >= p.PreHandoverMinDeg-p.ExecutionMinDeg || p.HysteresisDeg >= p.MonitoringMinDeg-p.PreHandoverMinDeg {
		return fmt.Errorf("%w: phase hysteresis %.1f must be narrower than every band", ErrConfigurationInvalid, p.HysteresisDeg)
	}

	if c.A4.HysteresisDB < 0 || c.A5.HysteresisDB < 0 || c.D2.HysteresisKm < 0 {
		return fmt.Errorf("%w: event hysteresis must be >= 0", ErrConfigurationInvalid)
	}
	if c.A4.TimeToTrigger < 0 || c.A5.TimeToTrigger < 0 || c.D2.TimeToTrigger < 0 {
		return fmt.Errorf("%w: time-to-trigger must be >= 0", ErrConfigurationInvalid)
	}
	if c.A5.ServingThresholdDBm >= c.A5.NeighborThresholdDBm {
		return fmt.Errorf("%w: A5 serving threshold %.1f must lie below the neighbor threshold %.1f",
			ErrConfigurationInvalid, c.A5.ServingThresholdDBm, c.A5.NeighborThresholdDBm)
	}
	if c.D2.ServingFarKm <= 0 || c.D2.CandidateNearKm <= 0 {
		return fmt.Errorf("%w: D2 distance thresholds must be positive", ErrConfigurationInvalid)
	}

	if c.Predictor.Delta <= 0 {
		return fmt.Errorf("%w: predictor delta must be positive, got %s", ErrConfigurationInvalid, c.Predictor.Delta)
	}
	if c.Predictor.ToleranceMs <= 0 {
		return fmt.Errorf("%w: predictor tolerance must be positive, got %.1f ms", ErrConfigurationInvalid, c.Predictor.ToleranceMs)
	}
	if c.Predictor.MaxIterations < 1 {
		return fmt.Errorf("%w: predictor needs at least one iteration, got %d", ErrConfigurationInvalid, c.Predictor.MaxIterations)
	}

	if c.Coordinator.SafetyMargin < 0 {
		return fmt.Errorf("%w: safety margin must be >= 0, got %s", ErrConfigurationInvalid, c.Coordinator.SafetyMargin)
	}
	if c.Coordinator.MinConfidence < 0 || c.Coordinator.MinConfidence > 1 {
		return fmt.Errorf("%w: confidence floor must be in [0, 1], got %.2f", ErrConfigurationInvalid, c.Coordinator.MinConfidence)
	}

	if c.ObservationInterval <= 0 {
		return fmt.Errorf("%w: observation interval must be positive, got %s", ErrConfigurationInvalid, c.ObservationInterval)
	}
	if c.MaxObservationGap < c.ObservationInterval {
		return fmt.Errorf("%w: max observation gap %s must be >= observation interval %s",
			ErrConfigurationInvalid, c.MaxObservationGap, c.ObservationInterval)
	}
	if c.VisibilityFloorDeg < -90 || c.VisibilityFloorDeg > 90 {
		return fmt.Errorf("%w: visibility floor must be a valid elevation, got %.1f", ErrConfigurationInvalid, c.VisibilityFloorDeg)
	}
	return nil
}
