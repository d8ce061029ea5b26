package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/handover-engine/core"
	"github.com/signalsfoundry/handover-engine/internal/logging"
	"github.com/signalsfoundry/handover-engine/internal/observability"
	"github.com/signalsfoundry/handover-engine/model"
	"github.com/signalsfoundry/handover-engine/timectrl"
)

// Pair names one (UE, serving satellite) relationship to supervise, along
// with the candidate satellites considered for handover.
type Pair struct {
	UEID               string
	ServingSatelliteID string
	Candidates         []string
}

func (p Pair) key() string { return p.UEID + "/" + p.ServingSatelliteID }

// PairStatus is a read-only snapshot of one running pair worker.
type PairStatus struct {
	UEID               string              `json:"ue_id"`
	ServingSatelliteID string              `json:"serving_satellite_id"`
	Phase              model.HandoverPhase `json:"phase"`
	PhaseName          string              `json:"phase_name"`
	Candidates         []string            `json:"candidates"`
	Cycles             uint64              `json:"cycles"`
}

// Engine owns one worker goroutine per supervised pair. Each worker samples
// geometry on the observation cadence, runs phase classification and event
// trigger evaluation, and hands decision cycles to the coordinator. Workers
// are isolated: a geometry failure on one pair never stalls another.
type Engine struct {
	cfg       core.Config
	provider  core.GeometryProvider
	clock     timectrl.Clock
	evaluator *core.TriggerEvaluator
	coord     *core.DecisionCoordinator
	feed      *DecisionFeed
	metrics   *observability.EngineCollector
	log       logging.Logger

	mu      sync.Mutex
	workers map[string]*pairWorker
	wg      sync.WaitGroup
	closed  bool
}

// New validates the configuration and constructs an engine. The metrics
// collector is optional; a nil clock defaults to the system clock.
func New(
	cfg core.Config,
	provider core.GeometryProvider,
	clock timectrl.Clock,
	coord *core.DecisionCoordinator,
	feed *DecisionFeed,
	metrics *observability.EngineCollector,
	log logging.Logger,
) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, fmt.Errorf("geometry provider is required: %w", core.ErrConfigurationInvalid)
	}
	if coord == nil {
		return nil, fmt.Errorf("decision coordinator is required: %w", core.ErrConfigurationInvalid)
	}
	if clock == nil {
		clock = timectrl.SystemClock{}
	}
	if feed == nil {
		feed = NewDecisionFeed()
	}
	if log == nil {
		log = logging.Noop()
	}
	return &Engine{
		cfg:       cfg,
		provider:  provider,
		clock:     clock,
		evaluator: core.NewTriggerEvaluator(cfg),
		coord:     coord,
		feed:      feed,
		metrics:   metrics,
		log:       log,
		workers:   make(map[string]*pairWorker),
	}, nil
}

// Feed returns the decision feed the engine publishes to.
func (e *Engine) Feed() *DecisionFeed { return e.feed }

// StartPair spawns a worker for the pair. Starting an already supervised
// pair is an error; stop it first to change its candidate set.
func (e *Engine) StartPair(p Pair) error {
	if p.UEID == "" || p.ServingSatelliteID == "" {
		return fmt.Errorf("pair needs ue and serving satellite ids: %w", core.ErrConfigurationInvalid)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("engine is closed")
	}
	if _, exists := e.workers[p.key()]; exists {
		return fmt.Errorf("pair %s already supervised", p.key())
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &pairWorker{
		pair:       p,
		engine:     e,
		cancel:     cancel,
		classifier: core.NewPhaseClassifier(e.cfg.Phase, e.cfg.ObservationInterval),
		triggers:   make(map[string][]*model.EventTrigger),
	}
	e.workers[p.key()] = w
	e.metrics.SetActivePairs(len(e.workers))

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		w.run(ctx)
	}()

	e.log.Info(ctx, "pair worker started",
		logging.String("ue_id", p.UEID),
		logging.String("serving", p.ServingSatelliteID),
		logging.Int("candidates", len(p.Candidates)),
	)
	return nil
}

// StopPair cancels the worker for the pair, if one is running.
func (e *Engine) StopPair(ueID, servingSatelliteID string) {
	key := ueID + "/" + servingSatelliteID

	e.mu.Lock()
	w, ok := e.workers[key]
	if ok {
		delete(e.workers, key)
		e.metrics.SetActivePairs(len(e.workers))
	}
	e.mu.Unlock()

	if ok {
		w.cancel()
	}
}

// Close stops every worker and waits for them to exit.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	workers := make([]*pairWorker, 0, len(e.workers))
	for _, w := range e.workers {
		workers = append(workers, w)
	}
	e.workers = make(map[string]*pairWorker)
	e.metrics.SetActivePairs(0)
	e.mu.Unlock()

	for _, w := range workers {
		w.cancel()
	}
	e.wg.Wait()
}

// Status returns a snapshot of every supervised pair, sorted by key.
func (e *Engine) Status() []PairStatus {
	e.mu.Lock()
	workers := make([]*pairWorker, 0, len(e.workers))
	for _, w := range e.workers {
		workers = append(workers, w)
	}
	e.mu.Unlock()

	out := make([]PairStatus, 0, len(workers))
	for _, w := range workers {
		out = append(out, w.status())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UEID != out[j].UEID {
			return out[i].UEID < out[j].UEID
		}
		return out[i].ServingSatelliteID < out[j].ServingSatelliteID
	})
	return out
}

// pairWorker supervises one (UE, serving satellite) pair.
type pairWorker struct {
	pair       Pair
	engine     *Engine
	cancel     context.CancelFunc
	classifier *core.PhaseClassifier

	// triggers holds the live event triggers per candidate. Entries are
	// created when a candidate rises above the visibility floor and
	// destroyed when it sets below it.
	triggers map[string][]*model.EventTrigger

	mu     sync.Mutex
	phase  model.HandoverPhase
	cycles uint64
}

func (w *pairWorker) status() PairStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return PairStatus{
		UEID:               w.pair.UEID,
		ServingSatelliteID: w.pair.ServingSatelliteID,
		Phase:              w.phase,
		PhaseName:          w.phase.String(),
		Candidates:         append([]string(nil), w.pair.Candidates...),
		Cycles:             w.cycles,
	}
}

func (w *pairWorker) run(ctx context.Context) {
	e := w.engine
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.clock.After(e.cfg.ObservationInterval):
		}
		w.cycle(ctx)
	}
}

// cycle runs one observation interval: sample, classify, evaluate, decide.
func (w *pairWorker) cycle(ctx context.Context) {
	e := w.engine
	now := e.clock.Now()

	serving, err := e.provider.Sample(ctx, w.pair.ServingSatelliteID, w.pair.UEID, now)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		e.metrics.GeometryError()
		e.log.Warn(ctx, "serving geometry unavailable",
			logging.String("ue_id", w.pair.UEID),
			logging.String("serving", w.pair.ServingSatelliteID),
			logging.String("error", err.Error()),
		)
		return
	}

	phase, stale := w.classifier.Classify(serving.ElevationDeg, serving.Timestamp)
	w.mu.Lock()
	w.phase = phase
	w.cycles++
	w.mu.Unlock()

	if stale {
		e.log.Debug(ctx, "stale serving observation, holding phase",
			logging.String("ue_id", w.pair.UEID),
			logging.String("phase", phase.String()),
		)
		return
	}

	candidates := w.observeCandidates(ctx, serving)

	decision, err := e.coord.Decide(ctx, core.DecisionInput{
		UEID:               w.pair.UEID,
		ServingSatelliteID: w.pair.ServingSatelliteID,
		Phase:              phase,
		Serving:            serving,
		Candidates:         candidates,
		Now:                now,
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		e.log.Warn(ctx, "decision cycle failed",
			logging.String("ue_id", w.pair.UEID),
			logging.String("error", err.Error()),
		)
		return
	}
	if decision != nil {
		e.feed.Publish(*decision)
	}
}

// observeCandidates samples every candidate and advances its trigger
// lifecycle. A candidate that cannot be sampled is skipped this cycle; one
// that has set below the visibility floor has its triggers destroyed.
func (w *pairWorker) observeCandidates(ctx context.Context, serving model.SatelliteObservation) []core.CandidateState {
	e := w.engine
	states := make([]core.CandidateState, 0, len(w.pair.Candidates))

	for _, id := range w.pair.Candidates {
		if id == w.pair.ServingSatelliteID {
			continue
		}

		obs, err := e.provider.Sample(ctx, id, w.pair.UEID, serving.Timestamp)
		if err != nil {
			if ctx.Err() != nil {
				return states
			}
			e.metrics.GeometryError()
			e.log.Debug(ctx, "candidate geometry unavailable",
				logging.String("ue_id", w.pair.UEID),
				logging.String("candidate", id),
				logging.String("error", err.Error()),
			)
			continue
		}

		if obs.ElevationDeg < e.cfg.VisibilityFloorDeg {
			if _, had := w.triggers[id]; had {
				delete(w.triggers, id)
				e.log.Debug(ctx, "candidate set below visibility floor",
					logging.String("ue_id", w.pair.UEID),
					logging.String("candidate", id),
				)
			}
			continue
		}

		trs, ok := w.triggers[id]
		if !ok {
			trs = []*model.EventTrigger{
				core.NewTrigger(model.EventA4, id),
				core.NewTrigger(model.EventA5, id),
				core.NewTrigger(model.EventD2, id),
			}
			w.triggers[id] = trs
		}

		for _, tr := range trs {
			if _, fired := e.evaluator.Evaluate(tr, serving, obs); fired {
				e.metrics.TriggerFired(tr.Kind.String())
				e.log.Info(ctx, "event trigger fired",
					logging.String("ue_id", w.pair.UEID),
					logging.String("candidate", id),
					logging.String("event", tr.Kind.String()),
				)
			}
		}

		states = append(states, core.CandidateState{
			SatelliteID: id,
			Observation: obs,
			Triggers:    trs,
		})
	}
	return states
}
