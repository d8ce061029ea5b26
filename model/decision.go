package model

import "time"

// HandoverDecision is the engine's terminal output: which candidate to hand
// over to and the absolute instant at which to execute. Emitted once per
// completed decision cycle; execution itself is a downstream concern.
type HandoverDecision struct {
	ID                string    `json:"id"`
	UEID              string    `json:"ue_id"`
	SourceSatelliteID string    `json:"source_satellite_id"`
	TargetSatelliteID string    `json:"target_satellite_id"`
	DecisionTime      time.Time `json:"decision_time"`
	ExecuteAt         time.Time `json:"execute_at"`
	Confidence        float64   `json:"confidence"`
	Rationale         string    `json:"rationale"`
}
