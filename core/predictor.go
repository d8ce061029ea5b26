package core

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/handover-engine/internal/logging"
	"github.com/signalsfoundry/handover-engine/model"
)

// MetricFunc samples a scalar access metric at an arbitrary instant. The
// predictor treats it as a black box; it is the only suspension point of a
// prediction and the only place a prediction can hard-fail.
type MetricFunc func(ctx context.Context, at time.Time) (float64, error)

// AccessTimePredictor pins down the instant a scalar metric crosses a
// threshold to a bounded error, without any signaling exchange: a two-point
// extrapolation produces a coarse bracket, then iterative bisection halves
// it until the tolerance or the iteration budget is reached.
//
// Non-convergence is a normal terminal state reported through the
// prediction, never an error.
type AccessTimePredictor struct {
	cfg PredictorConfig
	log logging.Logger

	seq atomic.Uint64
}

// NewAccessTimePredictor builds a predictor from a validated config.
func NewAccessTimePredictor(cfg PredictorConfig, log logging.Logger) *AccessTimePredictor {
	if log == nil {
		log = logging.Noop()
	}
	return &AccessTimePredictor{cfg: cfg, log: log}
}

// Predict finds where metric crosses threshold inside [start, start+Delta].
//
// The returned prediction always lies inside the original window. When the
// two endpoint samples do not bracket a crossing, the full window is
// reported with ConvergenceAchieved=false. When the metric function fails
// mid-search, the best bracket obtained so far is returned together with the
// wrapped collaborator error. Cancellation is checked between iterations and
// surfaces as ctx.Err() alongside the best bracket.
func (p *AccessTimePredictor) Predict(ctx context.Context, ueID, satelliteID string, metric MetricFunc, threshold float64, start time.Time) (model.AccessPrediction, error) {
	end := start.Add(p.cfg.Delta)

	ctx, span := otel.Tracer("core/predictor").Start(ctx, "AccessTimePredictor.Predict",
		trace.WithAttributes(
			attribute.String("ue_id", ueID),
			attribute.String("satellite_id", satelliteID),
			attribute.Float64("threshold", threshold),
		))
	defer span.End()

	pred := model.AccessPrediction{
		UEID:                 ueID,
		SatelliteID:          satelliteID,
		SampleTimeT:          start,
		SampleTimeTPlusDelta: end,
		Seq:                  p.seq.Add(1),
	}

	f0, err := metric(ctx, start)
	if err != nil {
		p.finish(&pred, start, end, 0, false)
		return pred, fmt.Errorf("%w: sampling window start: %v", ErrGeometryUnavailable, err)
	}
	f1, err := metric(ctx, end)
	if err != nil {
		p.finish(&pred, start, end, 0, false)
		return pred, fmt.Errorf("%w: sampling window end: %v", ErrGeometryUnavailable, err)
	}

	s0 := f0 - threshold
	s1 := f1 - threshold
	if !opposite(s0, s1) {
		// No sign change across the window: the crossing is not bracketed
		// and bisection cannot be trusted to converge. Report the whole
		// window as the uncertainty.
		p.finish(&pred, start, end, 0, false)
		p.log.Debug(ctx, "prediction window does not bracket a crossing",
			logging.String("ue_id", ueID),
			logging.String("satellite_id", satelliteID),
			logging.Float64("metric_at_start", f0),
			logging.Float64("metric_at_end", f1),
		)
		return pred, nil
	}

	lo, hi := start, end
	slo := s0
	iters := 0

	// First probe: the secant (linear two-point) estimate of the crossing
	// rather than the plain midpoint. Over a LEO pass the metric is close
	// to linear at this scale, so this usually lands near the answer and
	// the bisection that follows only sharpens it.
	probe := secantEstimate(lo, hi, s0, s1)

	for width(lo, hi) > p.tolerance() && iters < p.cfg.MaxIterations {
		if err := ctx.Err(); err != nil {
			p.finish(&pred, lo, hi, iters, false)
			return pred, err
		}

		fm, err := metric(ctx, probe)
		if err != nil {
			// Collaborator failure: abort the query, keep the bracket.
			p.finish(&pred, lo, hi, iters, false)
			return pred, fmt.Errorf("%w: sampling refinement point: %v", ErrGeometryUnavailable, err)
		}
		iters++

		sm := fm - threshold
		if sm == 0 {
			// The probe landed exactly on the crossing.
			lo, hi = probe, probe
			break
		}
		if opposite(slo, sm) {
			hi = probe
		} else {
			lo = probe
			slo = sm
		}
		probe = midpoint(lo, hi)
	}

	converged := width(lo, hi) <= p.tolerance()
	p.finish(&pred, lo, hi, iters, converged)

	span.SetAttributes(
		attribute.Int("iterations", iters),
		attribute.Float64("error_bound_ms", pred.ErrorBoundMs),
		attribute.Bool("converged", converged),
	)
	p.log.Debug(ctx, "prediction complete",
		logging.String("ue_id", ueID),
		logging.String("satellite_id", satelliteID),
		logging.Int("iterations", iters),
		logging.Float64("error_bound_ms", pred.ErrorBoundMs),
		logging.Any("converged", converged),
	)
	return pred, nil
}

// finish fills the bracket-derived fields of a prediction.
func (p *AccessTimePredictor) finish(pred *model.AccessPrediction, lo, hi time.Time, iters int, converged bool) {
	pred.PredictedAccessTime = midpoint(lo, hi)
	pred.ErrorBoundMs = float64(hi.Sub(lo)) / float64(time.Millisecond)
	pred.IterationsUsed = iters
	pred.ConvergenceAchieved = converged
	pred.ConfidenceScore = confidenceScore(converged, pred.ErrorBoundMs, iters, p.cfg)
}

func (p *AccessTimePredictor) tolerance() time.Duration {
	return time.Duration(p.cfg.ToleranceMs * float64(time.Millisecond))
}

// confidenceScore maps a prediction outcome onto [0, 1]. It is 1.0 for a
// convergence in a single probe and decays monotonically as iterations pile
// up; without convergence it decays further with the residual error bound.
func confidenceScore(converged bool, errorBoundMs float64, iters int, cfg PredictorConfig) float64 {
	if converged {
		// Convergence without a refinement probe happens when the window
		// is already narrower than the tolerance; score it like a
		// single-probe hit.
		if iters < 1 {
			iters = 1
		}
		if cfg.MaxIterations <= 1 {
			return 1.0
		}
		return 1.0 - 0.3*float64(iters-1)/float64(cfg.MaxIterations-1)
	}
	windowMs := float64(cfg.Delta) / float64(time.Millisecond)
	if windowMs <= 0 || errorBoundMs >= windowMs {
		return 0.0
	}
	// Scale the non-converged range below every converged score.
	return 0.5 * cfg.ToleranceMs / (cfg.ToleranceMs + errorBoundMs)
}

func opposite(a, b float64) bool {
	return (a <= 0 && b > 0) || (a > 0 && b <= 0)
}

func midpoint(lo, hi time.Time) time.Time {
	return lo.Add(hi.Sub(lo) / 2)
}

func width(lo, hi time.Time) time.Duration {
	return hi.Sub(lo)
}

// secantEstimate interpolates the crossing instant linearly between the two
// endpoint samples, clamped strictly inside the bracket so the subsequent
// split always shrinks it.
func secantEstimate(lo, hi time.Time, slo, shi float64) time.Time {
	span := hi.Sub(lo)
	denom := slo - shi
	if denom == 0 {
		return midpoint(lo, hi)
	}
	frac := slo / denom
	if frac < 0.05 {
		frac = 0.05
	} else if frac > 0.95 {
		frac = 0.95
	}
	return lo.Add(time.Duration(float64(span) * frac))
}
