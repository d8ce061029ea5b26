package observability

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// EngineCollector bundles the Prometheus metrics of the handover engine. All
// recording methods are nil-safe so components can run without metrics wired.
type EngineCollector struct {
	gatherer prometheus.Gatherer

	Decisions     *prometheus.CounterVec
	TriggersFired *prometheus.CounterVec
	Predictions   *prometheus.CounterVec

	PredictionIterations prometheus.Histogram
	PredictionErrorBound prometheus.Histogram

	ActivePairs    prometheus.Gauge
	GeometryErrors prometheus.Counter
}

// NewEngineCollector registers the engine metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
// Re-registration of identical collectors is tolerated so tests and
// restarted engines can share a registry.
func NewEngineCollector(reg prometheus.Registerer) (*EngineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	decisions, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "handover_decisions_total",
		Help: "Handover decisions emitted, labeled by kind (predicted or best_effort).",
	}, []string{"kind"}), "handover_decisions_total")
	if err != nil {
		return nil, err
	}

	triggers, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "handover_triggers_fired_total",
		Help: "Measurement event triggers fired, labeled by event kind (a4, a5, d2).",
	}, []string{"event"}), "handover_triggers_fired_total")
	if err != nil {
		return nil, err
	}

	predictions, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "access_predictions_total",
		Help: "Access-time predictions issued, labeled by convergence outcome.",
	}, []string{"converged"}), "access_predictions_total")
	if err != nil {
		return nil, err
	}

	iterations, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "access_prediction_iterations",
		Help:    "Bisection iterations used per access-time prediction.",
		Buckets: prometheus.LinearBuckets(0, 1, 12),
	}), "access_prediction_iterations")
	if err != nil {
		return nil, err
	}

	errorBound, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "access_prediction_error_bound_ms",
		Help:    "Final bracket width of access-time predictions in milliseconds.",
		Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 5000, 30000, 120000},
	}), "access_prediction_error_bound_ms")
	if err != nil {
		return nil, err
	}

	activePairs, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "handover_active_pairs",
		Help: "Currently running (UE, serving satellite) pair workers.",
	}), "handover_active_pairs")
	if err != nil {
		return nil, err
	}

	geometryErrors, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geometry_unavailable_total",
		Help: "Recoverable geometry provider failures.",
	}), "geometry_unavailable_total")
	if err != nil {
		return nil, err
	}

	return &EngineCollector{
		gatherer:             gatherer,
		Decisions:            decisions,
		TriggersFired:        triggers,
		Predictions:          predictions,
		PredictionIterations: iterations,
		PredictionErrorBound: errorBound,
		ActivePairs:          activePairs,
		GeometryErrors:       geometryErrors,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *EngineCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// DecisionEmitted records one emitted decision of the given kind.
func (c *EngineCollector) DecisionEmitted(kind string) {
	if c == nil || c.Decisions == nil {
		return
	}
	c.Decisions.WithLabelValues(kind).Inc()
}

// TriggerFired records one fired event trigger.
func (c *EngineCollector) TriggerFired(event string) {
	if c == nil || c.TriggersFired == nil {
		return
	}
	c.TriggersFired.WithLabelValues(event).Inc()
}

// ObservePrediction records the outcome of one access-time prediction.
func (c *EngineCollector) ObservePrediction(converged bool, iterations int, errorBoundMs float64) {
	if c == nil {
		return
	}
	if c.Predictions != nil {
		c.Predictions.WithLabelValues(strconv.FormatBool(converged)).Inc()
	}
	if c.PredictionIterations != nil {
		c.PredictionIterations.Observe(float64(iterations))
	}
	if c.PredictionErrorBound != nil {
		c.PredictionErrorBound.Observe(errorBoundMs)
	}
}

// SetActivePairs updates the running pair-worker gauge.
func (c *EngineCollector) SetActivePairs(n int) {
	if c == nil || c.ActivePairs == nil {
		return
	}
	c.ActivePairs.Set(float64(n))
}

// GeometryError records one recoverable geometry provider failure.
func (c *EngineCollector) GeometryError() {
	if c == nil || c.GeometryErrors == nil {
		return
	}
	c.GeometryErrors.Inc()
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
