package core

import (
	"sync"

	"github.com/signalsfoundry/handover-engine/model"
)

// defaultHistoryDepth bounds the per-pair diagnostics ring.
const defaultHistoryDepth = 64

// PredictionHistory keeps a bounded, append-only record of predictions per
// (UE, satellite) pair for offline accuracy auditing. Records are stored as
// issued and never mutated.
type PredictionHistory struct {
	mu    sync.RWMutex
	depth int
	byKey map[string][]model.AccessPrediction
}

// NewPredictionHistory constructs a history with the given per-pair depth;
// depth <= 0 selects the default.
func NewPredictionHistory(depth int) *PredictionHistory {
	if depth <= 0 {
		depth = defaultHistoryDepth
	}
	return &PredictionHistory{
		depth: depth,
		byKey: make(map[string][]model.AccessPrediction),
	}
}

// Record appends a prediction, evicting the oldest once the pair's ring is
// full.
func (h *PredictionHistory) Record(p model.AccessPrediction) {
	key := p.UEID + "/" + p.SatelliteID
	h.mu.Lock()
	defer h.mu.Unlock()
	ring := append(h.byKey[key], p)
	if len(ring) > h.depth {
		ring = ring[len(ring)-h.depth:]
	}
	h.byKey[key] = ring
}

// List returns the recorded predictions for a pair, oldest first.
func (h *PredictionHistory) List(ueID, satelliteID string) []model.AccessPrediction {
	key := ueID + "/" + satelliteID
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]model.AccessPrediction(nil), h.byKey[key]...)
}

// Latest returns the most recent prediction for a pair.
func (h *PredictionHistory) Latest(ueID, satelliteID string) (model.AccessPrediction, bool) {
	key := ueID + "/" + satelliteID
	h.mu.RLock()
	defer h.mu.RUnlock()
	ring := h.byKey[key]
	if len(ring) == 0 {
		return model.AccessPrediction{}, false
	}
	return ring[len(ring)-1], true
}
