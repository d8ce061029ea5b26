package model

import "time"

// AccessPrediction is the outcome of one access-time prediction request.
// It is created fresh per request and never mutated afterwards; per-pair
// append-only history is kept for diagnostics.
type AccessPrediction struct {
	UEID        string `json:"ue_id"`
	SatelliteID string `json:"satellite_id"`

	SampleTimeT          time.Time `json:"sample_time_t"`
	SampleTimeTPlusDelta time.Time `json:"sample_time_t_plus_delta"`
	PredictedAccessTime  time.Time `json:"predicted_access_time"`

	ConfidenceScore     float64 `json:"confidence_score"`
	IterationsUsed      int     `json:"iterations_used"`
	ErrorBoundMs        float64 `json:"error_bound_ms"`
	ConvergenceAchieved bool    `json:"convergence_achieved"`

	// Seq orders predictions for the same (UE, satellite) pair by issue
	// time. Completions that arrive out of order are discarded.
	Seq uint64 `json:"-"`
}
