package core

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/handover-engine/model"
)

// risingElevationProvider produces a candidate elevation that crosses the
// execution threshold linearly at the given instant.
func risingElevationProvider(crossing time.Time, thresholdDeg float64) GeometryProvider {
	return GeometryFunc(func(_ context.Context, satelliteID, ueID string, at time.Time) (model.SatelliteObservation, error) {
		return model.SatelliteObservation{
			SatelliteID:  satelliteID,
			UEID:         ueID,
			Timestamp:    at,
			ElevationDeg: thresholdDeg + at.Sub(crossing).Seconds()*0.25,
			RangeKm:      900.0,
			RSRPDBm:      -90.0,
		}, nil
	})
}

// flatElevationProvider never crosses the execution threshold.
func flatElevationProvider(elevationDeg float64) GeometryProvider {
	return GeometryFunc(func(_ context.Context, satelliteID, ueID string, at time.Time) (model.SatelliteObservation, error) {
		return model.SatelliteObservation{
			SatelliteID:  satelliteID,
			UEID:         ueID,
			Timestamp:    at,
			ElevationDeg: elevationDeg,
			RangeKm:      900.0,
			RSRPDBm:      -90.0,
		}, nil
	})
}

func coordinatorUnderTest(t *testing.T, provider GeometryProvider, syncReg *SyncPointRegistry) *DecisionCoordinator {
	t.Helper()
	cfg := DefaultConfig()
	if syncReg == nil {
		syncReg = NewSyncPointRegistry(nil)
	}
	predictor := NewAccessTimePredictor(cfg.Predictor, nil)
	return NewDecisionCoordinator(cfg, provider, predictor, syncReg, NewPredictionHistory(0), nil, nil)
}

func triggeredCandidate(id string, obs model.SatelliteObservation) CandidateState {
	tr := NewTrigger(model.EventA4, id)
	tr.State = model.TriggerTriggered
	return CandidateState{SatelliteID: id, Observation: obs, Triggers: []*model.EventTrigger{tr}}
}

func idleCandidate(id string, obs model.SatelliteObservation) CandidateState {
	return CandidateState{SatelliteID: id, Observation: obs, Triggers: []*model.EventTrigger{NewTrigger(model.EventA4, id)}}
}

func servingObs(at time.Time) model.SatelliteObservation {
	return model.SatelliteObservation{
		SatelliteID:  "sat-serving",
		UEID:         "ue-1",
		Timestamp:    at,
		ElevationDeg: 9.0,
		RangeKm:      1600.0,
		RSRPDBm:      -110.0,
	}
}

func candidateObs(id string, at time.Time) model.SatelliteObservation {
	return model.SatelliteObservation{
		SatelliteID:  id,
		UEID:         "ue-1",
		Timestamp:    at,
		ElevationDeg: 6.0,
		RangeKm:      900.0,
		RSRPDBm:      -90.0,
	}
}

func TestDecideEmitsOnExecutionWithConvergedPrediction(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	crossing := now.Add(30 * time.Second)
	dc := coordinatorUnderTest(t, risingElevationProvider(crossing, 8.0), nil)

	decision, err := dc.Decide(context.Background(), DecisionInput{
		UEID:               "ue-1",
		ServingSatelliteID: "sat-serving",
		Phase:              model.PhaseExecution,
		Serving:            servingObs(now),
		Candidates:         []CandidateState{triggeredCandidate("sat-cand", candidateObs("sat-cand", now))},
		Now:                now,
	})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if decision == nil {
		t.Fatal("no decision emitted")
	}
	if decision.TargetSatelliteID != "sat-cand" {
		t.Fatalf("target = %q, want sat-cand", decision.TargetSatelliteID)
	}
	if decision.SourceSatelliteID != "sat-serving" || decision.UEID != "ue-1" {
		t.Fatalf("identity fields wrong: %+v", decision)
	}
	if decision.ID == "" {
		t.Fatal("decision has no id")
	}

	// Execute-at is the predicted access instant minus the safety margin.
	want := crossing.Add(-300 * time.Millisecond)
	if !decision.ExecuteAt.Equal(want) {
		t.Fatalf("ExecuteAt = %v, want %v", decision.ExecuteAt, want)
	}
	if decision.Confidence != 1.0 {
		t.Fatalf("Confidence = %v, want 1.0", decision.Confidence)
	}
	if !strings.Contains(decision.Rationale, "predicted") {
		t.Fatalf("Rationale = %q, want a predicted rationale", decision.Rationale)
	}
}

func TestDecideWithholdsBelowExecutionPhase(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	dc := coordinatorUnderTest(t, risingElevationProvider(now.Add(30*time.Second), 8.0), nil)

	for _, phase := range []model.HandoverPhase{model.PhaseMonitoring, model.PhasePreHandover} {
		decision, err := dc.Decide(context.Background(), DecisionInput{
			UEID:               "ue-1",
			ServingSatelliteID: "sat-serving",
			Phase:              phase,
			Serving:            servingObs(now),
			Candidates:         []CandidateState{triggeredCandidate("sat-cand", candidateObs("sat-cand", now))},
			Now:                now,
		})
		if err != nil {
			t.Fatalf("phase %v: %v", phase, err)
		}
		if decision != nil {
			t.Fatalf("phase %v: decision emitted below execution", phase)
		}
	}
}

func TestDecideWithholdsWithoutTriggeredCandidate(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	dc := coordinatorUnderTest(t, risingElevationProvider(now.Add(30*time.Second), 8.0), nil)

	decision, err := dc.Decide(context.Background(), DecisionInput{
		UEID:               "ue-1",
		ServingSatelliteID: "sat-serving",
		Phase:              model.PhaseExecution,
		Serving:            servingObs(now),
		Candidates:         []CandidateState{idleCandidate("sat-cand", candidateObs("sat-cand", now))},
		Now:                now,
	})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if decision != nil {
		t.Fatal("decision emitted without a triggered candidate outside critical")
	}
}

func TestDecideDefersNonConvergentOutsideCritical(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	dc := coordinatorUnderTest(t, flatElevationProvider(5.0), nil)

	decision, err := dc.Decide(context.Background(), DecisionInput{
		UEID:               "ue-1",
		ServingSatelliteID: "sat-serving",
		Phase:              model.PhaseExecution,
		Serving:            servingObs(now),
		Candidates:         []CandidateState{triggeredCandidate("sat-cand", candidateObs("sat-cand", now))},
		Now:                now,
	})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if decision != nil {
		t.Fatal("acted on a non-convergent prediction outside critical")
	}
}

func TestDecideCriticalBestEffortWithoutConvergence(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	dc := coordinatorUnderTest(t, flatElevationProvider(5.0), nil)

	decision, err := dc.Decide(context.Background(), DecisionInput{
		UEID:               "ue-1",
		ServingSatelliteID: "sat-serving",
		Phase:              model.PhaseCritical,
		Serving:            servingObs(now),
		Candidates:         []CandidateState{triggeredCandidate("sat-cand", candidateObs("sat-cand", now))},
		Now:                now,
	})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if decision == nil {
		t.Fatal("critical phase withheld a best-effort decision")
	}
	if decision.Confidence >= 0.5 {
		t.Fatalf("Confidence = %v, want depressed best-effort value", decision.Confidence)
	}
	if !strings.Contains(decision.Rationale, "best-effort") {
		t.Fatalf("Rationale = %q, want a best-effort rationale", decision.Rationale)
	}
}

func TestDecideCriticalFallsBackToUntriggeredCandidates(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	dc := coordinatorUnderTest(t, risingElevationProvider(now.Add(30*time.Second), 8.0), nil)

	decision, err := dc.Decide(context.Background(), DecisionInput{
		UEID:               "ue-1",
		ServingSatelliteID: "sat-serving",
		Phase:              model.PhaseCritical,
		Serving:            servingObs(now),
		Candidates:         []CandidateState{idleCandidate("sat-cand", candidateObs("sat-cand", now))},
		Now:                now,
	})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if decision == nil {
		t.Fatal("critical phase withheld a decision with a visible candidate")
	}
	if !strings.Contains(decision.Rationale, "no triggered candidate") {
		t.Fatalf("Rationale = %q, want the fallback noted", decision.Rationale)
	}

	// With no candidates at all there is nothing to decide.
	decision, err = dc.Decide(context.Background(), DecisionInput{
		UEID:               "ue-1",
		ServingSatelliteID: "sat-serving",
		Phase:              model.PhaseCritical,
		Serving:            servingObs(now),
		Now:                now,
	})
	if err != nil || decision != nil {
		t.Fatalf("empty candidate set: decision = %v, err = %v; want nil, nil", decision, err)
	}
}

func TestDecideAlignsExecuteAtToSyncDomain(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	crossing := now.Add(30 * time.Second)

	syncReg := NewSyncPointRegistry(nil)
	if err := syncReg.Update("ue-1", model.SyncPoint{AnchorTime: now, ClockOffsetMs: 250.0, AccuracyMs: 2.0}); err != nil {
		t.Fatalf("sync update: %v", err)
	}
	dc := coordinatorUnderTest(t, risingElevationProvider(crossing, 8.0), syncReg)

	decision, err := dc.Decide(context.Background(), DecisionInput{
		UEID:               "ue-1",
		ServingSatelliteID: "sat-serving",
		Phase:              model.PhaseExecution,
		Serving:            servingObs(now),
		Candidates:         []CandidateState{triggeredCandidate("sat-cand", candidateObs("sat-cand", now))},
		Now:                now,
	})
	if err != nil || decision == nil {
		t.Fatalf("Decide = %v, %v", decision, err)
	}
	want := crossing.Add(-300 * time.Millisecond).Add(250 * time.Millisecond)
	if !decision.ExecuteAt.Equal(want) {
		t.Fatalf("ExecuteAt = %v, want %v aligned into the ue-1 domain", decision.ExecuteAt, want)
	}
}

func TestStalePredictionCompletionIsDiscarded(t *testing.T) {
	dc := coordinatorUnderTest(t, flatElevationProvider(5.0), nil)

	if !dc.acceptPrediction("ue-1", "sat-1", model.AccessPrediction{Seq: 5}) {
		t.Fatal("first completion rejected")
	}
	if dc.acceptPrediction("ue-1", "sat-1", model.AccessPrediction{Seq: 3}) {
		t.Fatal("stale completion accepted")
	}
	if !dc.acceptPrediction("ue-1", "sat-1", model.AccessPrediction{Seq: 6}) {
		t.Fatal("newer completion rejected")
	}
	// Ordering is per pair.
	if !dc.acceptPrediction("ue-1", "sat-2", model.AccessPrediction{Seq: 1}) {
		t.Fatal("independent pair affected by another pair's sequence")
	}
}
