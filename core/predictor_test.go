package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func predictorTestConfig() PredictorConfig {
	return PredictorConfig{
		Delta:         2 * time.Minute,
		ToleranceMs:   50.0,
		MaxIterations: 20,
	}
}

func predictorTestStart() time.Time {
	return time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
}

// linearMetric rises through zero at the crossing instant, one unit per
// second. Over a LEO pass the elevation is close to linear at this scale, so
// the secant probe lands on the crossing exactly.
func linearMetric(crossing time.Time) MetricFunc {
	return func(_ context.Context, at time.Time) (float64, error) {
		return at.Sub(crossing).Seconds(), nil
	}
}

// quadraticMetric crosses zero at start+60s with visible curvature, so the
// secant probe misses and bisection has to do real work.
func quadraticMetric(start time.Time) MetricFunc {
	return func(_ context.Context, at time.Time) (float64, error) {
		x := at.Sub(start).Seconds() / 30.0
		return x*x - 4.0, nil
	}
}

func TestPredictLinearMetricConverges(t *testing.T) {
	p := NewAccessTimePredictor(predictorTestConfig(), nil)
	start := predictorTestStart()
	crossing := start.Add(30 * time.Second)

	pred, err := p.Predict(context.Background(), "ue-1", "sat-1", linearMetric(crossing), 0, start)
	if err != nil {
		t.Fatalf("Predict returned error: %v", err)
	}
	if !pred.ConvergenceAchieved {
		t.Fatalf("linear metric did not converge: error bound %.1fms after %d iterations", pred.ErrorBoundMs, pred.IterationsUsed)
	}
	if !pred.PredictedAccessTime.Equal(crossing) {
		t.Fatalf("PredictedAccessTime = %v, want %v", pred.PredictedAccessTime, crossing)
	}
	if pred.IterationsUsed != 1 {
		t.Fatalf("IterationsUsed = %d, want 1 for an exact secant hit", pred.IterationsUsed)
	}
	if pred.ConfidenceScore != 1.0 {
		t.Fatalf("ConfidenceScore = %v, want 1.0", pred.ConfidenceScore)
	}
}

func TestPredictQuadraticMetricConvergesWithinTolerance(t *testing.T) {
	p := NewAccessTimePredictor(predictorTestConfig(), nil)
	start := predictorTestStart()
	crossing := start.Add(60 * time.Second)

	pred, err := p.Predict(context.Background(), "ue-1", "sat-1", quadraticMetric(start), 0, start)
	if err != nil {
		t.Fatalf("Predict returned error: %v", err)
	}
	if !pred.ConvergenceAchieved {
		t.Fatalf("did not converge: error bound %.1fms after %d iterations", pred.ErrorBoundMs, pred.IterationsUsed)
	}
	if pred.ErrorBoundMs > 50.0 {
		t.Fatalf("ErrorBoundMs = %.2f, want <= 50", pred.ErrorBoundMs)
	}
	if diff := pred.PredictedAccessTime.Sub(crossing); diff < -50*time.Millisecond || diff > 50*time.Millisecond {
		t.Fatalf("PredictedAccessTime off by %v, want within 50ms of %v", diff, crossing)
	}
	if pred.IterationsUsed < 2 || pred.IterationsUsed > 20 {
		t.Fatalf("IterationsUsed = %d, want a real bisection run", pred.IterationsUsed)
	}
	if pred.ConfidenceScore < 0.7 || pred.ConfidenceScore > 1.0 {
		t.Fatalf("ConfidenceScore = %v, want within [0.7, 1.0] for a converged run", pred.ConfidenceScore)
	}
}

func TestPredictNarrowWindowConvergesWithoutProbes(t *testing.T) {
	cfg := predictorTestConfig()
	cfg.Delta = 40 * time.Millisecond
	p := NewAccessTimePredictor(cfg, nil)
	start := predictorTestStart()
	crossing := start.Add(20 * time.Millisecond)

	pred, err := p.Predict(context.Background(), "ue-1", "sat-1", linearMetric(crossing), 0, start)
	if err != nil {
		t.Fatalf("Predict returned error: %v", err)
	}
	if !pred.ConvergenceAchieved {
		t.Fatalf("a window narrower than the tolerance must converge, error bound %.1fms", pred.ErrorBoundMs)
	}
	if pred.IterationsUsed != 0 {
		t.Fatalf("IterationsUsed = %d, want 0 for a window already inside tolerance", pred.IterationsUsed)
	}
	if pred.ConfidenceScore != 1.0 {
		t.Fatalf("ConfidenceScore = %v, want 1.0", pred.ConfidenceScore)
	}
}

func TestPredictBracketWidthNonIncreasing(t *testing.T) {
	p := NewAccessTimePredictor(predictorTestConfig(), nil)
	start := predictorTestStart()

	var probes []time.Time
	inner := quadraticMetric(start)
	metric := func(ctx context.Context, at time.Time) (float64, error) {
		probes = append(probes, at)
		return inner(ctx, at)
	}

	pred, err := p.Predict(context.Background(), "ue-1", "sat-1", metric, 0, start)
	if err != nil {
		t.Fatalf("Predict returned error: %v", err)
	}
	if len(probes) < 4 {
		t.Fatalf("recorded %d probes, want a refinement run", len(probes))
	}

	// The first two probes sample the window endpoints; every later probe
	// splits the live bracket. Replaying the split decisions against the
	// deterministic metric reconstructs the bracket after each iteration,
	// whose width must never grow.
	lo, hi := probes[0], probes[1]
	slo, _ := inner(context.Background(), lo)
	width := hi.Sub(lo)
	for i, probe := range probes[2:] {
		if probe.Before(lo) || probe.After(hi) {
			t.Fatalf("probe %d at %v escaped bracket [%v, %v]", i, probe, lo, hi)
		}
		sm, _ := inner(context.Background(), probe)
		if opposite(slo, sm) {
			hi = probe
		} else {
			lo = probe
			slo = sm
		}
		if next := hi.Sub(lo); next > width {
			t.Fatalf("bracket grew from %v to %v at iteration %d", width, next, i+1)
		} else {
			width = next
		}
	}
	if got := time.Duration(pred.ErrorBoundMs * float64(time.Millisecond)); got != width {
		t.Fatalf("reported error bound %v does not match final bracket width %v", got, width)
	}
}

func TestPredictBracketAlwaysInsideWindow(t *testing.T) {
	p := NewAccessTimePredictor(predictorTestConfig(), nil)
	start := predictorTestStart()
	end := start.Add(2 * time.Minute)

	pred, err := p.Predict(context.Background(), "ue-1", "sat-1", quadraticMetric(start), 0, start)
	if err != nil {
		t.Fatalf("Predict returned error: %v", err)
	}
	if pred.PredictedAccessTime.Before(start) || pred.PredictedAccessTime.After(end) {
		t.Fatalf("PredictedAccessTime %v escaped window [%v, %v]", pred.PredictedAccessTime, start, end)
	}
}

func TestPredictIterationBudgetExhausted(t *testing.T) {
	cfg := predictorTestConfig()
	cfg.MaxIterations = 3
	p := NewAccessTimePredictor(cfg, nil)
	start := predictorTestStart()

	pred, err := p.Predict(context.Background(), "ue-1", "sat-1", quadraticMetric(start), 0, start)
	if err != nil {
		t.Fatalf("budget exhaustion must not be an error, got: %v", err)
	}
	if pred.ConvergenceAchieved {
		t.Fatal("ConvergenceAchieved = true with a 3 iteration budget")
	}
	if pred.IterationsUsed != 3 {
		t.Fatalf("IterationsUsed = %d, want 3", pred.IterationsUsed)
	}
	if pred.ConfidenceScore >= 0.7 {
		t.Fatalf("ConfidenceScore = %v, want below every converged score", pred.ConfidenceScore)
	}
}

func TestPredictWindowWithoutCrossing(t *testing.T) {
	p := NewAccessTimePredictor(predictorTestConfig(), nil)
	start := predictorTestStart()

	metric := func(context.Context, time.Time) (float64, error) { return 5.0, nil }
	pred, err := p.Predict(context.Background(), "ue-1", "sat-1", metric, 0, start)
	if err != nil {
		t.Fatalf("a non-bracketing window must not be an error, got: %v", err)
	}
	if pred.ConvergenceAchieved {
		t.Fatal("ConvergenceAchieved = true without a bracketed crossing")
	}
	if pred.IterationsUsed != 0 {
		t.Fatalf("IterationsUsed = %d, want 0", pred.IterationsUsed)
	}
	if pred.ErrorBoundMs != 120000.0 {
		t.Fatalf("ErrorBoundMs = %v, want the full 120000ms window", pred.ErrorBoundMs)
	}
	if want := start.Add(time.Minute); !pred.PredictedAccessTime.Equal(want) {
		t.Fatalf("PredictedAccessTime = %v, want window midpoint %v", pred.PredictedAccessTime, want)
	}
}

func TestPredictMetricFailureAtWindowStart(t *testing.T) {
	p := NewAccessTimePredictor(predictorTestConfig(), nil)

	metric := func(context.Context, time.Time) (float64, error) {
		return 0, errors.New("ephemeris gap")
	}
	pred, err := p.Predict(context.Background(), "ue-1", "sat-1", metric, 0, predictorTestStart())
	if !errors.Is(err, ErrGeometryUnavailable) {
		t.Fatalf("err = %v, want ErrGeometryUnavailable", err)
	}
	if pred.ConvergenceAchieved {
		t.Fatal("ConvergenceAchieved = true on a failed query")
	}
}

func TestPredictMetricFailureMidSearchKeepsBestBracket(t *testing.T) {
	p := NewAccessTimePredictor(predictorTestConfig(), nil)
	start := predictorTestStart()

	calls := 0
	inner := quadraticMetric(start)
	metric := func(ctx context.Context, at time.Time) (float64, error) {
		calls++
		if calls > 3 {
			return 0, errors.New("ephemeris gap")
		}
		return inner(ctx, at)
	}

	pred, err := p.Predict(context.Background(), "ue-1", "sat-1", metric, 0, start)
	if !errors.Is(err, ErrGeometryUnavailable) {
		t.Fatalf("err = %v, want ErrGeometryUnavailable", err)
	}
	// Endpoints plus one refinement succeeded before the failure, so the
	// reported bracket must already be tighter than the full window.
	if pred.IterationsUsed != 1 {
		t.Fatalf("IterationsUsed = %d, want 1", pred.IterationsUsed)
	}
	if pred.ErrorBoundMs >= 120000.0 {
		t.Fatalf("ErrorBoundMs = %v, want tighter than the full window", pred.ErrorBoundMs)
	}
	if pred.ConvergenceAchieved {
		t.Fatal("ConvergenceAchieved = true on a failed query")
	}
}

func TestPredictCancellationReturnsBestBracket(t *testing.T) {
	p := NewAccessTimePredictor(predictorTestConfig(), nil)
	start := predictorTestStart()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	inner := quadraticMetric(start)
	metric := func(ctx context.Context, at time.Time) (float64, error) {
		calls++
		if calls == 2 {
			cancel()
		}
		return inner(ctx, at)
	}

	pred, err := p.Predict(ctx, "ue-1", "sat-1", metric, 0, start)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if pred.ConvergenceAchieved {
		t.Fatal("ConvergenceAchieved = true after cancellation")
	}
	if calls != 2 {
		t.Fatalf("metric calls = %d, want the search to stop at the cancellation check", calls)
	}
}

func TestPredictIsRepeatable(t *testing.T) {
	p := NewAccessTimePredictor(predictorTestConfig(), nil)
	start := predictorTestStart()
	metric := linearMetric(start.Add(45 * time.Second))

	first, err := p.Predict(context.Background(), "ue-1", "sat-1", metric, 0, start)
	if err != nil {
		t.Fatalf("first Predict: %v", err)
	}
	second, err := p.Predict(context.Background(), "ue-1", "sat-1", metric, 0, start)
	if err != nil {
		t.Fatalf("second Predict: %v", err)
	}
	if !first.PredictedAccessTime.Equal(second.PredictedAccessTime) {
		t.Fatalf("identical inputs produced %v then %v", first.PredictedAccessTime, second.PredictedAccessTime)
	}
	if second.Seq <= first.Seq {
		t.Fatalf("Seq did not advance: %d then %d", first.Seq, second.Seq)
	}
}

func TestConfidenceOrdering(t *testing.T) {
	cfg := predictorTestConfig()

	// Worst converged score: the full iteration budget was spent.
	worstConverged := confidenceScore(true, 50.0, cfg.MaxIterations, cfg)
	if worstConverged < 0.7 {
		t.Fatalf("worst converged confidence = %v, want >= 0.7", worstConverged)
	}

	// Any non-converged score must rank below any converged one.
	for _, errBound := range []float64{60.0, 1000.0, 60000.0} {
		nc := confidenceScore(false, errBound, cfg.MaxIterations, cfg)
		if nc >= worstConverged {
			t.Fatalf("non-converged confidence %v (bound %.0fms) not below converged floor %v", nc, errBound, worstConverged)
		}
	}

	// Confidence decays with iterations spent.
	if a, b := confidenceScore(true, 10.0, 2, cfg), confidenceScore(true, 10.0, 10, cfg); a <= b {
		t.Fatalf("confidence did not decay with iterations: %v then %v", a, b)
	}
}
