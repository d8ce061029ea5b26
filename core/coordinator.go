package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/handover-engine/internal/logging"
	"github.com/signalsfoundry/handover-engine/internal/observability"
	"github.com/signalsfoundry/handover-engine/model"
)

// maxPredictedCandidates caps how many triggered candidates get a full
// prediction per decision cycle; the rest are ranked on measurements alone.
const maxPredictedCandidates = 3

// CandidateState is a pair worker's view of one visible candidate at
// decision time: its latest observation and its event triggers.
type CandidateState struct {
	SatelliteID string
	Observation model.SatelliteObservation
	Triggers    []*model.EventTrigger
}

// Triggered reports whether any of the candidate's events is in the
// Triggered state.
func (c CandidateState) Triggered() bool {
	for _, tr := range c.Triggers {
		if tr != nil && tr.State == model.TriggerTriggered {
			return true
		}
	}
	return false
}

// DecisionInput is the snapshot a pair worker hands to the coordinator.
type DecisionInput struct {
	UEID               string
	ServingSatelliteID string
	Phase              model.HandoverPhase
	Serving            model.SatelliteObservation
	Candidates         []CandidateState
	Now                time.Time
}

// DecisionCoordinator fuses phase, trigger state and predicted access time
// into a HandoverDecision. A regular decision needs an Execution or Critical
// phase, a Triggered candidate, and a converged prediction above the
// confidence floor; in the Critical phase a best-effort decision is emitted
// even without convergence, because dropping a connection is worse than an
// imperfectly timed handover.
type DecisionCoordinator struct {
	cfg       CoordinatorConfig
	accessDeg float64

	provider  GeometryProvider
	predictor *AccessTimePredictor
	syncReg   *SyncPointRegistry
	history   *PredictionHistory
	metrics   *observability.EngineCollector
	log       logging.Logger

	// lastSeq orders prediction completions per (UE, satellite) pair so a
	// stale prediction can never override a newer one.
	mu      sync.Mutex
	lastSeq map[string]uint64
}

// NewDecisionCoordinator wires the coordinator with its collaborators. The
// history and metrics collectors are optional.
func NewDecisionCoordinator(
	cfg Config,
	provider GeometryProvider,
	predictor *AccessTimePredictor,
	syncReg *SyncPointRegistry,
	history *PredictionHistory,
	metrics *observability.EngineCollector,
	log logging.Logger,
) *DecisionCoordinator {
	if log == nil {
		log = logging.Noop()
	}
	return &DecisionCoordinator{
		cfg:       cfg.Coordinator,
		accessDeg: cfg.Phase.ExecutionMinDeg,
		provider:  provider,
		predictor: predictor,
		syncReg:   syncReg,
		history:   history,
		metrics:   metrics,
		log:       log,
		lastSeq:   make(map[string]uint64),
	}
}

// scoredCandidate couples a candidate with its prediction and rank.
type scoredCandidate struct {
	CandidateState
	prediction model.AccessPrediction
	predicted  bool
	score      float64
}

// Decide evaluates one decision cycle and returns the decision to emit, or
// nil when the gating conditions are not met. Per-pair failures are
// isolated: a geometry error only degrades this cycle for this pair.
func (dc *DecisionCoordinator) Decide(ctx context.Context, in DecisionInput) (*model.HandoverDecision, error) {
	if !in.Phase.MoreUrgentThan(model.PhasePreHandover) {
		return nil, nil
	}

	ctx, span := otel.Tracer("core/coordinator").Start(ctx, "DecisionCoordinator.Decide",
		trace.WithAttributes(
			attribute.String("ue_id", in.UEID),
			attribute.String("serving_satellite_id", in.ServingSatelliteID),
			attribute.String("phase", in.Phase.String()),
		))
	defer span.End()

	pool := triggeredCandidates(in.Candidates)
	bestEffortPool := false
	if len(pool) == 0 {
		if in.Phase != model.PhaseCritical || len(in.Candidates) == 0 {
			return nil, nil
		}
		// Critical with nothing triggered: fall back to every visible
		// candidate rather than withholding a decision.
		pool = in.Candidates
		bestEffortPool = true
	}

	scored := dc.rank(ctx, in, pool)
	if len(scored) == 0 {
		return nil, nil
	}
	best := scored[0]

	converged := best.predicted &&
		best.prediction.ConvergenceAchieved &&
		best.prediction.ConfidenceScore >= dc.cfg.MinConfidence

	if !converged && in.Phase != model.PhaseCritical {
		// Not urgent enough to act on a shaky prediction; defer to the
		// next cycle.
		return nil, nil
	}

	decision := dc.buildDecision(in, best, converged, bestEffortPool)
	span.SetAttributes(
		attribute.String("target_satellite_id", decision.TargetSatelliteID),
		attribute.Float64("confidence", decision.Confidence),
	)
	dc.metrics.DecisionEmitted(decisionKind(converged))
	dc.log.Info(ctx, "handover decision emitted",
		logging.String("ue_id", in.UEID),
		logging.String("source", in.ServingSatelliteID),
		logging.String("target", decision.TargetSatelliteID),
		logging.String("phase", in.Phase.String()),
		logging.Float64("confidence", decision.Confidence),
		logging.Any("converged", converged),
	)
	return decision, nil
}

// rank predicts access times for the leading triggered candidates and sorts
// the pool by combined score.
func (dc *DecisionCoordinator) rank(ctx context.Context, in DecisionInput, pool []CandidateState) []scoredCandidate {
	// Measurement-only pre-ranking decides which candidates are worth a
	// full prediction.
	pre := make([]scoredCandidate, 0, len(pool))
	for _, c := range pool {
		pre = append(pre, scoredCandidate{
			CandidateState: c,
			score:          dc.combinedScore(in.Serving, c.Observation, 0, false),
		})
	}
	sort.SliceStable(pre, func(i, j int) bool { return pre[i].score > pre[j].score })

	for i := range pre {
		if i >= maxPredictedCandidates {
			break
		}
		c := &pre[i]
		pred, err := dc.predictAccess(ctx, in.UEID, c.SatelliteID, in.Now)
		if err != nil {
			dc.metrics.GeometryError()
			dc.log.Warn(ctx, "access prediction degraded",
				logging.String("ue_id", in.UEID),
				logging.String("candidate", c.SatelliteID),
				logging.String("error", err.Error()),
			)
			// Keep the measurement-only score; the prediction may still
			// carry a usable best-so-far bracket.
		}
		if dc.acceptPrediction(in.UEID, c.SatelliteID, pred) {
			c.prediction = pred
			c.predicted = true
			c.score = dc.combinedScore(in.Serving, c.Observation, pred.ConfidenceScore, true)
		}
	}

	sort.SliceStable(pre, func(i, j int) bool { return pre[i].score > pre[j].score })
	return pre
}

// predictAccess runs the predictor against the candidate's geometric access
// metric: its elevation crossing the execution threshold.
func (dc *DecisionCoordinator) predictAccess(ctx context.Context, ueID, satelliteID string, now time.Time) (model.AccessPrediction, error) {
	metric := func(ctx context.Context, at time.Time) (float64, error) {
		obs, err := dc.provider.Sample(ctx, satelliteID, ueID, at)
		if err != nil {
			return 0, err
		}
		if !obs.Valid() {
			return 0, fmt.Errorf("%w: invalid sample for %s at %s", ErrGeometryUnavailable, satelliteID, at)
		}
		return obs.ElevationDeg, nil
	}

	pred, err := dc.predictor.Predict(ctx, ueID, satelliteID, metric, dc.accessDeg, now)
	if dc.history != nil {
		dc.history.Record(pred)
	}
	dc.metrics.ObservePrediction(pred.ConvergenceAchieved, pred.IterationsUsed, pred.ErrorBoundMs)
	return pred, err
}

// acceptPrediction enforces per-pair ordering: a completion whose sequence
// number is older than the newest one seen for the pair is discarded.
func (dc *DecisionCoordinator) acceptPrediction(ueID, satelliteID string, pred model.AccessPrediction) bool {
	key := ueID + "/" + satelliteID
	dc.mu.Lock()
	defer dc.mu.Unlock()
	if pred.Seq < dc.lastSeq[key] {
		return false
	}
	dc.lastSeq[key] = pred.Seq
	return true
}

// combinedScore ranks a candidate on signal margin over the serving cell,
// prediction confidence, and remaining visibility (elevation headroom).
func (dc *DecisionCoordinator) combinedScore(serving, candidate model.SatelliteObservation, confidence float64, predicted bool) float64 {
	margin := clamp((candidate.RSRPDBm-serving.RSRPDBm+20)/40, 0, 1)
	visibility := clamp(candidate.ElevationDeg/45, 0, 1)
	if !predicted {
		return 0.55*margin + 0.45*visibility
	}
	return 0.40*margin + 0.30*confidence + 0.30*visibility
}

func (dc *DecisionCoordinator) buildDecision(in DecisionInput, best scoredCandidate, converged, bestEffortPool bool) *model.HandoverDecision {
	executeAt := in.Now.Add(dc.cfg.SafetyMargin)
	confidence := 0.1
	rationale := fmt.Sprintf("critical best-effort: phase=%s no converged prediction", in.Phase)

	if best.predicted {
		confidence = best.prediction.ConfidenceScore
		at := best.prediction.PredictedAccessTime.Add(-dc.cfg.SafetyMargin)
		if at.After(in.Now) {
			executeAt = at
		}
		if converged {
			rationale = fmt.Sprintf("predicted: access at %s within %.0fms after %d iterations",
				best.prediction.PredictedAccessTime.UTC().Format(time.RFC3339Nano),
				best.prediction.ErrorBoundMs, best.prediction.IterationsUsed)
		} else {
			rationale = fmt.Sprintf("critical best-effort: non-convergent prediction, error bound %.0fms",
				best.prediction.ErrorBoundMs)
		}
	}
	if bestEffortPool {
		rationale += "; no triggered candidate"
	}

	return &model.HandoverDecision{
		ID:                uuid.NewString(),
		UEID:              in.UEID,
		SourceSatelliteID: in.ServingSatelliteID,
		TargetSatelliteID: best.SatelliteID,
		DecisionTime:      in.Now,
		ExecuteAt:         dc.syncReg.Align(in.UEID, executeAt),
		Confidence:        confidence,
		Rationale:         rationale,
	}
}

func triggeredCandidates(candidates []CandidateState) []CandidateState {
	out := make([]CandidateState, 0, len(candidates))
	for _, c := range candidates {
		if c.Triggered() {
			out = append(out, c)
		}
	}
	return out
}

func decisionKind(converged bool) string {
	if converged {
		return "predicted"
	}
	return "best_effort"
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
